// Package chat is the HTTP front door for coach messages. It owns the
// read-modify-write around the stateless orchestrator: loading the
// persisted stage and history, serialising requests per user, applying
// the rate limit, storing the outcome and publishing the reply event.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vidasmart/coachgw/internal/coach"
	"github.com/vidasmart/coachgw/internal/domain"
	"github.com/vidasmart/coachgw/internal/events"
	"github.com/vidasmart/coachgw/internal/frontdoor"
	"github.com/vidasmart/coachgw/internal/guard"
	"github.com/vidasmart/coachgw/internal/plan"
	"github.com/vidasmart/coachgw/internal/server"
	"github.com/vidasmart/coachgw/internal/storage"
	"github.com/vidasmart/coachgw/internal/telemetry"
)

const (
	// DebugHeader set to "1" adds the debugStage block to the response.
	DebugHeader = "X-Debug-Stage"

	maxBodyBytes = 1 << 20

	// storedHistoryLimit is how many stored turns are loaded when the
	// caller does not send chatHistory.
	storedHistoryLimit = 20
)

// Coach answers one message.
type Coach interface {
	HandleMessage(ctx context.Context, req coach.Request) (*coach.Response, error)
}

// ChatRequest is the body of POST /v1/coach/chat.
type ChatRequest struct {
	MessageContent string               `json:"messageContent"`
	UserProfile    *domain.UserProfile  `json:"userProfile"`
	ChatHistory    []domain.ChatMessage `json:"chatHistory,omitempty"`
	Flags          guard.Flags          `json:"flags,omitempty"`
	ActivePlans    []plan.ActivePlan    `json:"activePlans,omitempty"`
	CompletedItems []string             `json:"completedItems,omitempty"`
}

// ChatResponse is the success body.
type ChatResponse struct {
	Reply     string       `json:"reply"`
	Stage     domain.Stage `json:"stage"`
	Timestamp time.Time    `json:"timestamp"`
	Fallback  bool         `json:"fallback,omitempty"`
	Debug     *coach.Debug `json:"debugStage,omitempty"`
}

// StageResponse is the body of GET /v1/coach/users/{userID}/stage.
type StageResponse struct {
	UserID  string                `json:"userId"`
	Stage   domain.Stage          `json:"stage"`
	Metrics []storage.GuardMetric `json:"metrics"`
}

type Handler struct {
	coach     Coach
	store     storage.Store
	publisher events.Publisher
	limiter   *server.UserLimiter
	locks     *server.KeyedMutex
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithLimiter enables per-user rate limiting.
func WithLimiter(l *server.UserLimiter) Option {
	return func(h *Handler) { h.limiter = l }
}

// WithPublisher sets where reply events go.
func WithPublisher(p events.Publisher) Option {
	return func(h *Handler) { h.publisher = p }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func NewHandler(c Coach, store storage.Store, opts ...Option) *Handler {
	h := &Handler{
		coach:  c,
		store:  store,
		locks:  server.NewKeyedMutex(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Name() string { return "chat" }

func (h *Handler) Routes() []frontdoor.Route {
	return []frontdoor.Route{
		{Method: http.MethodPost, Path: "/v1/coach/chat", Handler: h.HandleChat},
		{Method: http.MethodGet, Path: "/v1/coach/users/{userID}/stage", Handler: h.HandleStage},
	}
}

func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	server.AddLogField(ctx, "frontdoor", "coach")

	var req ChatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		server.AddError(ctx, err)
		server.WriteError(w, domain.ErrInvalidRequest("request body is not valid JSON").WithCode(domain.ErrorCodeInvalidJSON))
		return
	}
	if strings.TrimSpace(req.MessageContent) == "" {
		server.WriteError(w, domain.ErrMissingField("messageContent"))
		return
	}
	if req.UserProfile == nil || strings.TrimSpace(req.UserProfile.ID) == "" {
		server.WriteError(w, domain.ErrMissingField("userProfile"))
		return
	}

	profile := *req.UserProfile
	server.AddLogField(ctx, "user_id", profile.ID)

	unlock := h.locks.Lock(profile.ID)
	defer unlock()

	if err := h.store.UpsertProfile(ctx, &profile); err != nil {
		h.logger.WarnContext(ctx, "failed to store profile",
			slog.String("user_id", profile.ID),
			slog.String("error", err.Error()))
	}

	persisted, err := h.loadStage(ctx, profile.ID)
	if err != nil {
		server.AddError(ctx, err)
		server.WriteError(w, stateError(err))
		return
	}

	history := req.ChatHistory
	if history == nil {
		history, err = h.store.History(ctx, profile.ID, storedHistoryLimit)
		if err != nil {
			server.AddError(ctx, err)
			server.WriteError(w, stateError(err))
			return
		}
	}

	flags := req.Flags
	if h.limiter != nil {
		allowed, info := h.limiter.Allow(profile.ID, !profile.CreatedAt.IsZero())
		server.WriteRateLimitHeaders(w.Header(), info)
		if !allowed {
			flags.RateLimited = true
			h.metrics.RateLimited()
			server.AddLogField(ctx, "rate_limited", "true")
		}
	}

	resp, err := h.coach.HandleMessage(ctx, coach.Request{
		Message:   req.MessageContent,
		Profile:   profile,
		History:   history,
		Stage:     persisted,
		Flags:     flags,
		Plans:     req.ActivePlans,
		Completed: completedSet(req.CompletedItems),
		Debug:     wantsDebug(r),
	})
	if err != nil {
		server.AddError(ctx, err)
		server.WriteError(w, err)
		return
	}

	now := h.now()
	server.AddLogField(ctx, "stage", string(resp.Stage))
	server.AddLogField(ctx, "guard_action", string(resp.Decision.Action))
	h.record(ctx, profile, persisted, req.MessageContent, resp, now)

	server.WriteJSON(w, http.StatusOK, ChatResponse{
		Reply:     resp.Reply,
		Stage:     resp.Stage,
		Timestamp: now,
		Fallback:  resp.Fallback,
		Debug:     resp.Debug,
	})
}

func (h *Handler) HandleStage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userID")

	st, err := h.loadStage(ctx, userID)
	if err != nil {
		server.AddError(ctx, err)
		server.WriteError(w, stateError(err))
		return
	}
	metrics, err := h.store.ListMetrics(ctx, userID, 20)
	if err != nil {
		server.AddError(ctx, err)
		server.WriteError(w, stateError(err))
		return
	}
	server.WriteJSON(w, http.StatusOK, StageResponse{UserID: userID, Stage: st, Metrics: metrics})
}

// loadStage returns the persisted stage, lead when none is stored.
func (h *Handler) loadStage(ctx context.Context, userID string) (domain.Stage, error) {
	st, err := h.store.GetStage(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.StageLead, nil
	}
	return st, err
}

func stateError(err error) *domain.APIError {
	return domain.ErrServer("failed to load conversation state").WithCause(err)
}

// record persists the outcome. Failures are logged; the reply was already
// produced and is still returned.
func (h *Handler) record(ctx context.Context, profile domain.UserProfile, persisted domain.Stage, message string, resp *coach.Response, now time.Time) {
	log := h.logger.With(slog.String("user_id", profile.ID))

	if resp.Stage != persisted {
		if err := h.store.SetStage(ctx, profile.ID, resp.Stage); err != nil {
			server.AddError(ctx, err)
			log.ErrorContext(ctx, "failed to persist stage", slog.String("error", err.Error()))
		}
	}

	userAt, replyAt := now, now
	turns := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: message, Timestamp: &userAt},
		{Role: domain.RoleAssistant, Content: resp.Reply, Timestamp: &replyAt},
	}
	if err := h.store.AppendMessages(ctx, profile.ID, turns...); err != nil {
		log.ErrorContext(ctx, "failed to append history", slog.String("error", err.Error()))
	}

	if h.publisher == nil {
		return
	}
	ev := &events.Reply{
		ID:          uuid.NewString(),
		UserID:      profile.ID,
		Phone:       profile.Phone,
		Reply:       resp.Reply,
		StageBefore: persisted,
		Stage:       resp.Stage,
		Detected:    resp.Detection.Stage,
		Confidence:  resp.Detection.Confidence,
		Action:      string(resp.Decision.Action),
		Issues:      labels(resp.Decision.Issues),
		Hints:       hintCodes(resp.Decision.Hints),
		Fallback:    resp.Fallback,
		Timestamp:   now,
	}
	if err := h.publisher.Publish(ctx, ev); err != nil {
		log.WarnContext(ctx, "failed to publish reply event", slog.String("error", err.Error()))
	}
}

func wantsDebug(r *http.Request) bool {
	return r.Header.Get(DebugHeader) == "1" || r.URL.Query().Get("debug") == "1"
}

func completedSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func labels(issues []guard.Issue) []string {
	out := make([]string, len(issues))
	for i, issue := range issues {
		out[i] = string(issue)
	}
	return out
}

func hintCodes(hints []guard.Hint) []string {
	out := make([]string, len(hints))
	for i, h := range hints {
		out[i] = string(h.Code)
	}
	return out
}
