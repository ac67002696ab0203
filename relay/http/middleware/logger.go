package middleware

import (
	"net/http"
	"time"

	"github.com/julienstroheker/wsrelay/internal/logging"
)

// responseWriter is a wrapper around http.ResponseWriter that captures the status code
type responseWriter struct {
	http.ResponseWriter

	statusCode int
	written    bool
}

func wrap(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Logger is a middleware that logs HTTP requests and responses.
// The logger is stored in the request context for downstream handlers to access.
func Logger(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logging.WithContext(r.Context(), logger)
			r = r.WithContext(ctx)
			start := time.Now()

			requestID := GetRequestID(ctx)
			clientRequestID := GetClientRequestID(ctx)

			fields := []logging.Field{
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.String("remote_addr", r.RemoteAddr),
			}
			if requestID != "" {
				fields = append(fields, logging.String("request_id", requestID))
			}
			if clientRequestID != "" {
				fields = append(fields, logging.String("client_request_id", clientRequestID))
			}

			logger.Info("Request received", fields...)

			rw := wrap(w)
			next.ServeHTTP(rw, r)

			responseFields := []logging.Field{
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.Int("status", rw.statusCode),
				logging.Duration("duration", time.Since(start)),
			}
			if requestID != "" {
				responseFields = append(responseFields, logging.String("request_id", requestID))
			}
			if clientRequestID != "" {
				responseFields = append(responseFields, logging.String("client_request_id", clientRequestID))
			}

			logger.Info("Response sent", responseFields...)
		})
	}
}
