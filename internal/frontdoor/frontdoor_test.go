package frontdoor

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

type stubFrontdoor struct{ routes []Route }

func (s stubFrontdoor) Name() string    { return "stub" }
func (s stubFrontdoor) Routes() []Route { return s.routes }

func TestMount(t *testing.T) {
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }
	r := chi.NewRouter()
	Mount(r, nil,
		stubFrontdoor{routes: []Route{{Method: http.MethodPost, Path: "/a", Handler: ok}}},
		stubFrontdoor{routes: []Route{{Method: http.MethodGet, Path: "/b/{id}", Handler: ok}}},
	)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodPost, "/a", http.StatusNoContent},
		{http.MethodGet, "/b/42", http.StatusNoContent},
		{http.MethodGet, "/a", http.StatusMethodNotAllowed},
		{http.MethodGet, "/c", http.StatusNotFound},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
	}
}
