package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vidasmart/coachgw/internal/domain"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status and an ErrorBody. Errors that are not
// *domain.APIError become 500 without leaking their message.
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		WriteJSON(w, http.StatusInternalServerError, ErrorBody{
			Error:   "internal_error",
			Details: "unexpected error while processing the message",
		})
		return
	}

	WriteJSON(w, apiErr.HTTPStatusCode(), ErrorBody{
		Error:   string(apiErr.Type),
		Details: apiErr.Message,
		Code:    string(apiErr.Code),
		Param:   apiErr.Param,
	})
}
