// Package frontdoor registers the HTTP API handlers on the router. Each
// handler package lists its routes and Mount wires them.
package frontdoor

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Route is one HTTP endpoint.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Frontdoor is a group of routes served together.
type Frontdoor interface {
	Name() string
	Routes() []Route
}

// Mount registers every route of every frontdoor on r.
func Mount(r chi.Router, logger *slog.Logger, fds ...Frontdoor) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, fd := range fds {
		for _, rt := range fd.Routes() {
			r.Method(rt.Method, rt.Path, rt.Handler)
			logger.Debug("registered route",
				slog.String("frontdoor", fd.Name()),
				slog.String("method", rt.Method),
				slog.String("path", rt.Path))
		}
	}
}
