package middleware

import (
	"net/http"
	"strings"
)

// OriginPolicy decides which browser origins may read the API. It is shared
// by the CORS middleware and the WebSocket upgrader.
type OriginPolicy struct {
	any     bool
	origins map[string]struct{}
}

// NewOriginPolicy allows the listed origins. An empty list or a "*" entry
// allows every origin. Matching ignores case and a trailing slash.
func NewOriginPolicy(allowed []string) OriginPolicy {
	p := OriginPolicy{any: len(allowed) == 0, origins: make(map[string]struct{}, len(allowed))}
	for _, o := range allowed {
		if o == "*" {
			p.any = true
			continue
		}
		p.origins[normalizeOrigin(o)] = struct{}{}
	}
	return p
}

// Allows reports whether origin may call the API.
func (p OriginPolicy) Allows(origin string) bool {
	if p.any {
		return true
	}
	_, ok := p.origins[normalizeOrigin(origin)]
	return ok
}

func normalizeOrigin(o string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(o), "/"))
}

// CORS answers preflights and tags responses for allowed origins. The API is
// read-only, so only GET is advertised. A preflight from an origin outside
// the policy gets 403.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := NewOriginPolicy(allowedOrigins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := origin != "" && policy.Allows(origin)
			if origin != "" {
				w.Header().Add("Vary", "Origin")
			}
			if allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
				h.Set("Access-Control-Max-Age", "86400")
			}

			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if origin != "" && !allowed {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
