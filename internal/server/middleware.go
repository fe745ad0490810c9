// # internal/server/middleware.go
package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"reviewd/internal/observability"
)

// statusRecorder captures the response code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// logRequests tags every request with an ID and emits one structured log
// line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		observability.HTTPRequestsTotal.WithLabelValues(routeLabel(r.URL.Path), strconv.Itoa(rec.status)).Inc()
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client", GetClientIP(r),
			"request_id", requestID,
		)
	})
}

// routeLabel keeps metric cardinality bounded on arbitrary request paths.
func routeLabel(path string) string {
	switch path {
	case "/", "/analyze", "/analyze/upload", "/history", "/healthz", "/metrics", "/openapi.json":
		return path
	default:
		return "other"
	}
}

// cors applies the configured origin policy and answers preflights.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allowedOrigin resolves the Access-Control-Allow-Origin value for this
// request. An empty configured list means allow all.
func (s *Server) allowedOrigin(r *http.Request) string {
	origins := s.state.Load().cfg.Server.CORSOrigins
	if len(origins) == 0 {
		return "*"
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range origins {
		if allowed == "*" {
			return "*"
		}
		if allowed == origin {
			return origin
		}
	}
	return ""
}
