// Package httpapi exposes the classification and admin surfaces over
// HTTP. It is a thin adapter: URL decomposition aside, all decisions live
// in the service layer.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seclayer/urlfilter/internal/urlfilter/common/log"
	"github.com/seclayer/urlfilter/internal/urlfilter/services/admin"
	"github.com/seclayer/urlfilter/internal/urlfilter/services/classifier"
)

const (
	readTimeout     = 5 * time.Second
	writeTimeout    = 10 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 5 * time.Second
	maxBodyBytes    = 1 << 20
)

// Server serves the classification endpoint, the admin API, and health
// probes.
type Server struct {
	classifier *classifier.Service
	admin      *admin.Service
	logger     log.Logger
	srv        *http.Server
}

// Options configures a Server.
type Options struct {
	Addr       string
	Classifier *classifier.Service
	Admin      *admin.Service
	Logger     log.Logger
}

// New constructs a Server with all routes wired.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	s := &Server{
		classifier: opts.Classifier,
		admin:      opts.Admin,
		logger:     logger,
	}
	s.srv = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.buildRouter(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s
}

// buildRouter constructs the chi mux with all routes wired.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Liveness and readiness probes.
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// Classification. Mirrored traffic carries every method, so the route
	// is method-agnostic. The wildcard tail is the original URL.
	r.HandleFunc("/urlinfo/1/*", s.handleClassify)

	r.Route("/admin/v1", func(r chi.Router) {
		r.Get("/domains", s.handleListDomains)
		r.Get("/domains/{shardKey}", s.handleGetDomain)
		r.Put("/domains/{shardKey}", s.handlePutDomain)
		r.Delete("/domains/{shardKey}", s.handleDeleteDomain)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(map[string]any{"error": err.Error()}, "HTTP server shutdown error")
		}
	}()

	s.logger.Info(map[string]any{"addr": s.srv.Addr}, "HTTP server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

type statusBody struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeStatus(w http.ResponseWriter, code int, status, message string) {
	writeJSON(w, code, statusBody{Status: status, Message: message})
}
