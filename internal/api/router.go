package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter registers every route. metrics may be nil to omit /metrics.
func NewRouter(h *Handler, metrics prometheus.Gatherer, logger *zap.Logger) *mux.Router {
	root := mux.NewRouter()
	root.Use(recoveryMiddleware(logger))

	root.HandleFunc("/api/operations", h.ListOperations).Methods("GET")
	root.HandleFunc("/api/operations/{kind}", h.ExecuteOperation).Methods("POST")
	root.HandleFunc("/api/users", h.ListUsers).Methods("GET")
	root.HandleFunc("/api/users/{id}", h.GetUser).Methods("GET")
	root.HandleFunc("/api/enforcers", h.ListEnforcers).Methods("GET")
	root.HandleFunc("/api/enforcers/{id}", h.GetEnforcer).Methods("GET")
	root.HandleFunc("/api/health", h.CheckHealth).Methods("GET")

	if metrics != nil {
		root.Handle("/metrics", promhttp.HandlerFor(metrics, promhttp.HandlerOpts{})).Methods("GET")
	}
	return root
}

// recoveryMiddleware intercepts panics from downstream handlers, logs details, and returns HTTP 500.
func recoveryMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("method", r.Method),
						zap.String("url", r.URL.String()),
						zap.ByteString("stack", debug.Stack()))
					WriteError(w, http.StatusInternalServerError, "")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Server runs the HTTP API until its context is canceled.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer creates a server for handler on addr.
func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
		},
		logger: logger,
	}
}

// Run binds the listen address and serves until ctx is canceled, then shuts
// down gracefully. A failed bind is returned before anything is served.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	s.logger.Info("HTTP API listening", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP API failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
