package request

import (
	"net/http"
	"strconv"
)

// ParseLimit reads the "limit" query parameter. Missing, malformed or
// non-positive values yield def; values above ceiling are capped.
func ParseLimit(r *http.Request, def, ceiling int) int {
	limit := def
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > ceiling {
		limit = ceiling
	}
	return limit
}
