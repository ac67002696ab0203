package middleware

import (
	"net/http"
	"strconv"

	"github.com/julienstroheker/wsrelay/internal/metrics"
)

// otherPath labels requests for routes the server does not register
const otherPath = "other"

// Metrics is a middleware that counts requests by path and status code.
// Paths outside known are folded into a single label to bound cardinality.
func Metrics(m *metrics.Metrics, known ...string) func(http.Handler) http.Handler {
	paths := make(map[string]struct{}, len(known))
	for _, p := range known {
		paths[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := wrap(w)
			next.ServeHTTP(rw, r)

			path := r.URL.Path
			if _, ok := paths[path]; !ok {
				path = otherPath
			}
			m.HTTPRequest(path, strconv.Itoa(rw.statusCode))
		})
	}
}
