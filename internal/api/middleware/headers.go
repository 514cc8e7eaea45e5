package middleware

import (
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/eventalerts/internal/notifier"
)

// SecurityHeaders adds security-related HTTP headers to responses.
// The API serves JSON and event streams only, so the CSP denies everything.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		next.ServeHTTP(w, r)
	})
}

// CORS allows cross-origin requests from origins whose host matches one of
// the domain patterns. Preflight requests are answered directly.
func CORS(patterns []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(origin, patterns) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CrossSiteGuard rejects state-changing requests issued by other sites.
// A request with an Origin header passes only when the origin is the API's
// own host or matches one of the trusted domain patterns; without an Origin,
// a Sec-Fetch-Site of "cross-site" is rejected. Safe methods pass unchanged.
// Clients that are not browsers send neither header and are not affected.
func CrossSiteGuard(trusted []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			allowed := true
			if origin := r.Header.Get("Origin"); origin != "" {
				allowed = sameHost(origin, r.Host) || originAllowed(origin, trusted)
			} else if r.Header.Get("Sec-Fetch-Site") == "cross-site" {
				allowed = false
			}
			if !allowed {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(`{"error":{"code":"FORBIDDEN","message":"Cross-site request rejected"}}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// sameHost reports whether origin names the host:port the request was sent to.
func sameHost(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

func originAllowed(origin string, patterns []string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Hostname() == "" {
		return false
	}
	return notifier.MatchDomain(u.Hostname(), patterns)
}

// Recoverer recovers from panics, logs them with stack trace, and returns a 500 error.
func Recoverer(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error().
						Interface("panic", rec).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Bytes("stack", debug.Stack()).
						Msg("panic recovered")
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					if _, err := w.Write([]byte(`{"error":{"code":"INTERNAL_ERROR","message":"Internal server error"}}`)); err != nil {
						log.Debug().Err(err).Msg("write error response")
					}
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
