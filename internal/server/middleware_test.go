package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vidasmart/coachgw/internal/auth"
	"github.com/vidasmart/coachgw/internal/domain"
)

func checkHeader(t *testing.T, rec *httptest.ResponseRecorder, key, want string) {
	t.Helper()
	if got := rec.Header().Get(key); got != want {
		t.Errorf("header %s = %q, want %q", key, got, want)
	}
}

// =============================================================================
// RequestIDMiddleware Tests
// =============================================================================

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		reuse    bool
	}{
		{name: "generated", incoming: "", reuse: false},
		{name: "propagated", incoming: "wa-msg-123", reuse: true},
		{name: "oversized replaced", incoming: strings.Repeat("x", 200), reuse: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodPost, "/v1/coach/chat", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if seen == "" {
				t.Fatal("GetRequestID() = \"\" inside handler")
			}
			if tt.reuse && seen != tt.incoming {
				t.Errorf("request id = %q, want %q", seen, tt.incoming)
			}
			if !tt.reuse && seen == tt.incoming {
				t.Errorf("request id = %q, want a generated id", seen)
			}
			checkHeader(t, rec, RequestIDHeader, seen)
		})
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() = %q, want empty", got)
	}
}

// =============================================================================
// LoggingMiddleware Tests
// =============================================================================

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := RequestIDMiddleware(LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddLogField(r.Context(), "user_id", "u-1")
		AddLogField(r.Context(), "ignored", "")
		AddError(r.Context(), errors.New("boom"))
		AddError(r.Context(), nil)
		w.WriteHeader(http.StatusBadGateway)
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/coach/chat", nil))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, buf.String())
	}

	want := map[string]any{
		"msg":     "request completed",
		"level":   "WARN",
		"path":    "/v1/coach/chat",
		"user_id": "u-1",
		"error":   "boom",
		"status":  float64(http.StatusBadGateway),
	}
	for k, v := range want {
		if line[k] != v {
			t.Errorf("log[%s] = %v, want %v", k, line[k], v)
		}
	}
	if _, ok := line["ignored"]; ok {
		t.Error("empty field was logged")
	}
	if line["request_id"] == "" {
		t.Error("request_id missing from log line")
	}
}

func TestAddLogField_NoMiddleware(t *testing.T) {
	// Must not panic.
	AddLogField(context.Background(), "k", "v")
	AddError(context.Background(), errors.New("x"))
}

// =============================================================================
// TimeoutMiddleware Tests
// =============================================================================

func TestTimeoutMiddleware(t *testing.T) {
	h := TimeoutMiddleware(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			w.WriteHeader(http.StatusGatewayTimeout)
		case <-time.After(time.Second):
			w.WriteHeader(http.StatusOK)
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusGatewayTimeout)
	}
}

// =============================================================================
// SecretMiddleware Tests
// =============================================================================

func TestSecretMiddleware(t *testing.T) {
	v, err := auth.NewVerifier(auth.HashSecret("s3cret"))
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name     string
		verifier *auth.Verifier
		header   string
		want     int
	}{
		{name: "valid secret", verifier: v, header: "s3cret", want: http.StatusNoContent},
		{name: "wrong secret", verifier: v, header: "nope", want: http.StatusUnauthorized},
		{name: "missing secret", verifier: v, header: "", want: http.StatusUnauthorized},
		{name: "auth disabled", verifier: nil, header: "", want: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := SecretMiddleware(tt.verifier, "")(ok)
			req := httptest.NewRequest(http.MethodPost, "/v1/coach/chat", nil)
			if tt.header != "" {
				req.Header.Set(auth.DefaultHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized {
				var body ErrorBody
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
					t.Fatalf("decode body: %v", err)
				}
				if body.Error != string(domain.ErrorTypeAuthentication) {
					t.Errorf("error = %q, want authentication", body.Error)
				}
			}
		})
	}
}

// =============================================================================
// WriteError Tests
// =============================================================================

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
		wantParam  string
	}{
		{
			name:       "missing field",
			err:        domain.ErrMissingField("messageContent"),
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_request",
			wantParam:  "messageContent",
		},
		{
			name:       "wrapped api error",
			err:        errors.Join(errors.New("ctx"), domain.ErrAuthentication("bad")),
			wantStatus: http.StatusUnauthorized,
			wantError:  "authentication",
		},
		{
			name:       "plain error hidden",
			err:        errors.New("database is locked"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			checkHeader(t, rec, "Content-Type", "application/json")

			var body ErrorBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error != tt.wantError {
				t.Errorf("error = %q, want %q", body.Error, tt.wantError)
			}
			if body.Param != tt.wantParam {
				t.Errorf("param = %q, want %q", body.Param, tt.wantParam)
			}
			if strings.Contains(body.Details, "database") {
				t.Errorf("details leaked internal error: %q", body.Details)
			}
		})
	}
}

// =============================================================================
// UserLimiter Tests
// =============================================================================

func TestUserLimiter(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	l := NewUserLimiter(10, 3, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, info := l.Allow("5511999990000", false)
		if !ok {
			t.Fatalf("anonymous message %d rejected", i+1)
		}
		if info.RequestsLimit != 3 {
			t.Errorf("RequestsLimit = %d, want 3", info.RequestsLimit)
		}
		if info.RequestsRemaining != 2-i {
			t.Errorf("RequestsRemaining = %d, want %d", info.RequestsRemaining, 2-i)
		}
	}

	ok, info := l.Allow("5511999990000", false)
	if ok {
		t.Fatal("fourth anonymous message allowed")
	}
	if info.RequestsReset <= 0 {
		t.Errorf("RequestsReset = %v, want positive", info.RequestsReset)
	}

	for i := 0; i < 10; i++ {
		if ok, _ := l.Allow("u-1", true); !ok {
			t.Fatalf("registered message %d rejected", i+1)
		}
	}
	if ok, _ := l.Allow("u-1", true); ok {
		t.Error("eleventh registered message allowed")
	}

	// One token refills every window/limit.
	now = now.Add(20 * time.Second)
	if ok, _ := l.Allow("5511999990000", false); !ok {
		t.Error("anonymous message rejected after refill")
	}
}

func TestUserLimiter_Disabled(t *testing.T) {
	l := NewUserLimiter(0, 0, time.Minute)
	for i := 0; i < 100; i++ {
		if ok, _ := l.Allow("u-1", true); !ok {
			t.Fatal("disabled limiter rejected a message")
		}
	}
}

func TestUserLimiter_Sweep(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	l := NewUserLimiter(10, 3, time.Minute)
	l.now = func() time.Time { return now }

	l.Allow("a", true)
	l.Allow("b", false)
	now = now.Add(2 * time.Minute)
	l.Allow("c", true)

	if removed := l.Sweep(); removed != 2 {
		t.Errorf("Sweep() = %d, want 2", removed)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
}

func TestWriteRateLimitHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteRateLimitHeaders(rec.Header(), RateLimitInfo{RequestsLimit: 10, RequestsRemaining: 0, RequestsReset: 5400 * time.Millisecond})

	checkHeader(t, rec, "x-ratelimit-limit-requests", "10")
	checkHeader(t, rec, "x-ratelimit-remaining-requests", "0")
	checkHeader(t, rec, "x-ratelimit-reset-requests", "5s")

	empty := httptest.NewRecorder()
	WriteRateLimitHeaders(empty.Header(), RateLimitInfo{})
	if empty.Header().Get("x-ratelimit-limit-requests") != "" {
		t.Error("headers written for a disabled limiter")
	}
}

// =============================================================================
// KeyedMutex Tests
// =============================================================================

func TestKeyedMutex_SerialisesPerKey(t *testing.T) {
	km := NewKeyedMutex()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("u-1")
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen)
	}
	if km.Len() != 0 {
		t.Errorf("Len() = %d after all unlocks, want 0", km.Len())
	}
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	unlockA := km.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := km.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

// =============================================================================
// Server Tests
// =============================================================================

func TestServer_Routes(t *testing.T) {
	v, _ := auth.NewVerifier(auth.HashSecret("s3cret"))
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	s := New(Options{RequestTimeout: time.Second}, logger, SecretMiddleware(v, ""))
	s.API.Post("/v1/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		method string
		path   string
		secret string
		want   int
	}{
		{name: "health is public", method: http.MethodGet, path: "/healthz", want: http.StatusOK},
		{name: "api needs secret", method: http.MethodPost, path: "/v1/ping", want: http.StatusUnauthorized},
		{name: "api with secret", method: http.MethodPost, path: "/v1/ping", secret: "s3cret", want: http.StatusNoContent},
		{name: "metrics hidden without gatherer", method: http.MethodGet, path: "/metrics", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.secret != "" {
				req.Header.Set(auth.DefaultHeader, tt.secret)
			}
			rec := httptest.NewRecorder()
			s.Router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
			}
		})
	}
}
