package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/ignite/wa-outreach/internal/pkg/httputil"
)

// OrgContextKey is the key for storing the organization id.
type OrgContextKey struct{}

// OrgIDFromRequest extracts the organization id.
// Priority: 1. X-Organization-ID header, 2. org_id query parameter.
// ok is false when neither is present; err is set when the value is not a UUID.
func OrgIDFromRequest(r *http.Request) (orgID string, ok bool, err error) {
	raw := strings.TrimSpace(r.Header.Get("X-Organization-ID"))
	if raw == "" {
		raw = strings.TrimSpace(r.URL.Query().Get("org_id"))
	}
	if raw == "" {
		return "", false, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", true, err
	}
	return id.String(), true, nil
}

// RequireOrg rejects requests that carry no organization id and stores
// it in the request context otherwise.
func RequireOrg(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID, ok, err := OrgIDFromRequest(r)
		if !ok {
			httputil.BadRequest(w, "missing_org_id")
			return
		}
		if err != nil {
			httputil.BadRequest(w, "invalid_org_id")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), OrgContextKey{}, orgID)))
	})
}

// OptionalOrg stores the organization id when one is given.
func OptionalOrg(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID, ok, err := OrgIDFromRequest(r)
		if ok && err != nil {
			httputil.BadRequest(w, "invalid_org_id")
			return
		}
		if ok {
			r = r.WithContext(context.WithValue(r.Context(), OrgContextKey{}, orgID))
		}
		next.ServeHTTP(w, r)
	})
}

// OrgIDFromContext returns the organization id stored by RequireOrg.
func OrgIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(OrgContextKey{}).(string)
	return id
}

// localeFromRequest prefers ?locale= and falls back to the first tag of
// Accept-Language. An empty result means the resolver default.
func localeFromRequest(r *http.Request) string {
	if l := strings.TrimSpace(r.URL.Query().Get("locale")); l != "" {
		return l
	}
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return ""
	}
	return tags[0].String()
}
