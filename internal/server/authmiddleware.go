package server

import (
	"net/http"

	"github.com/vidasmart/coachgw/internal/auth"
	"github.com/vidasmart/coachgw/internal/domain"
)

// SecretMiddleware rejects requests whose header does not carry the
// shared secret. A nil verifier disables the check.
func SecretMiddleware(v *auth.Verifier, header string) func(http.Handler) http.Handler {
	if header == "" {
		header = auth.DefaultHeader
	}
	return func(next http.Handler) http.Handler {
		if v == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !v.Verify(r.Header.Get(header)) {
				AddLogField(r.Context(), "auth", "rejected")
				WriteError(w, domain.ErrAuthentication("missing or invalid internal secret"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
