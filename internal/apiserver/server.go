package apiserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/klubi/stratus/internal/host"
	"github.com/klubi/stratus/internal/store"
)

// Server is the stratus REST API. It serves the host's registry, runs
// workflows synchronously or through the run controller, and exposes
// agents, tools and eval results.
type Server struct {
	router   *mux.Router
	host     *host.Host
	store    store.Store
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a fully-wired Server ready to Start(). Runs are
// persisted in the host's store; without one the run listing endpoints
// answer 503 and only synchronous runs work.
func NewServer(addr string, h *host.Host, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	srv := &Server{
		router:   mux.NewRouter(),
		host:     h,
		store:    h.Store(),
		gatherer: gatherer,
		logger:   logger,
	}
	srv.registerRoutes()
	srv.server = &http.Server{
		Addr:        addr,
		Handler:     srv.Handler(),
		ReadTimeout: 15 * time.Second,
		// Synchronous runs wait on the model.
		WriteTimeout: 5 * time.Minute,
	}
	return srv
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start blocks until the server is shut down or fails.
func (s *Server) Start() error {
	s.logger.Info("API server starting", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// logRequests logs one line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
