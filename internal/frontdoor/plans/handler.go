// Package plans exposes plan item extraction for the completion-tracking
// screens.
package plans

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/vidasmart/coachgw/internal/domain"
	"github.com/vidasmart/coachgw/internal/frontdoor"
	"github.com/vidasmart/coachgw/internal/plan"
	"github.com/vidasmart/coachgw/internal/server"
)

const maxBodyBytes = 1 << 20

// ItemsRequest is the body of POST /v1/plans/items. PlanData may be an
// object or a JSON-encoded string.
type ItemsRequest struct {
	PlanType string          `json:"planType"`
	PlanData json.RawMessage `json:"planData"`
}

type ItemsResponse struct {
	PlanType plan.Type   `json:"planType"`
	Items    []plan.Item `json:"items"`
}

type Handler struct {
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger}
}

func (h *Handler) Name() string { return "plans" }

func (h *Handler) Routes() []frontdoor.Route {
	return []frontdoor.Route{
		{Method: http.MethodPost, Path: "/v1/plans/items", Handler: h.HandleItems},
	}
}

func (h *Handler) HandleItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	server.AddLogField(ctx, "frontdoor", "plans")

	var req ItemsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		server.AddError(ctx, err)
		server.WriteError(w, domain.ErrInvalidRequest("request body is not valid JSON").WithCode(domain.ErrorCodeInvalidJSON))
		return
	}
	if req.PlanType == "" {
		server.WriteError(w, domain.ErrMissingField("planType"))
		return
	}
	t, err := plan.ParseType(req.PlanType)
	if err != nil {
		server.WriteError(w, domain.ErrInvalidRequest(err.Error()).WithParam("planType"))
		return
	}

	server.AddLogField(ctx, "plan_type", string(t))
	items := plan.Extract(ctx, h.logger, req.PlanData, t)
	server.WriteJSON(w, http.StatusOK, ItemsResponse{PlanType: t, Items: items})
}
