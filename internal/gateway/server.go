package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the gateway's HTTP surface: a health check and the
// service-routing proxy, mounted under /svc/{key}.
type Server struct {
	Router *chi.Mux
	proxy  *Proxy
	log    *slog.Logger
}

// NewServer wires the gateway's router.
func NewServer(proxy *Proxy, log *slog.Logger) *Server {
	s := &Server{Router: chi.NewRouter(), proxy: proxy, log: log}

	s.Router.Use(middleware.RequestID)
	s.Router.Use(requestLogger(log))
	s.Router.Use(middleware.Recoverer)

	s.Router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	s.Router.HandleFunc("/svc/{key}/*", s.handleProxy)
	s.Router.HandleFunc("/svc/{key}", s.handleProxy)

	return s
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	s.proxy.ServeKey(w, r, key, "/svc/"+key)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// requestLogger logs every proxied request with method, path, status, and
// duration, the same structured shape the coordinator's request log uses.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}
