package middleware

import (
	"net/http"
	"strings"

	"github.com/edvin/periodical/internal/api/response"
)

// MaintenanceRetryAfter is the Retry-After value, in seconds, sent while the
// site is down for maintenance.
const MaintenanceRetryAfter = "60"

// Maintenance answers 503 while active reports true. An exempt path and
// everything below it is always served so that operators can watch and finish
// a restore.
func Maintenance(active func() bool, exempt ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if active() && !underAny(r.URL.Path, exempt) {
				w.Header().Set("Retry-After", MaintenanceRetryAfter)
				response.WriteError(w, http.StatusServiceUnavailable, "service unavailable: maintenance in progress")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func underAny(path string, roots []string) bool {
	for _, p := range roots {
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}
