package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/ignite/wa-outreach/internal/dispatch"
	"github.com/ignite/wa-outreach/internal/pkg/httputil"
)

// RequireInternalToken guards collaborator callbacks with the shared
// token sent in X-Internal-Token. An empty token rejects every request.
func RequireInternalToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(dispatch.TokenHeader)
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				httputil.Unauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
