// Package server exposes the dependency engine over HTTP/JSON: bearer-token
// authentication, per-token rate limiting, request ids, and a uniform error
// envelope around the /v1 operations.
package server

import (
	"context"
	"crypto/sha256"
	"errors"
	"net/http"

	"github.com/skeinhq/skein/internal/config"
	"github.com/skeinhq/skein/internal/engine"
	"github.com/skeinhq/skein/internal/logging"
)

// Server serves the /v1 API for one engine.
type Server struct {
	engine   *engine.Engine
	cfg      config.ServerConfig
	tokens   [][sha256.Size]byte
	limiters *tokenLimiters
	log      *logging.Logger
}

// New builds a server. Tokens are kept as digests so authorization compares
// fixed-length values in constant time.
func New(eng *engine.Engine, cfg config.ServerConfig, auth config.AuthConfig, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	s := &Server{
		engine:   eng,
		cfg:      cfg,
		limiters: newTokenLimiters(cfg.RateLimit, cfg.RateBurst),
		log:      log.WithComponent("server"),
	}
	for _, tok := range auth.Tokens {
		if tok == "" {
			continue
		}
		s.tokens = append(s.tokens, sha256.Sum256([]byte(tok)))
	}
	if len(s.tokens) == 0 {
		s.log.Warn("no auth tokens configured, serving unauthenticated")
	}
	return s
}

// Handler builds the route table. Health stays outside the auth chain so
// probes need no credentials.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/identify-task-type", s.handleIdentify)
	api.HandleFunc("POST /v1/identify-task-types", s.handleIdentifyBatch)
	api.HandleFunc("POST /v1/validate-dependencies", s.handleValidate)
	api.HandleFunc("POST /v1/auto-fix-dependencies", s.handleAutoFix)
	api.HandleFunc("POST /v1/apply-phase-dependencies", s.handleApplyPhase)
	api.HandleFunc("POST /v1/apply-global-dependencies", s.handleApplyGlobal)
	api.HandleFunc("POST /v1/projects/{id}/plan", s.handlePlan)
	api.HandleFunc("GET /v1/projects/{id}/graph", s.handleGraph)
	api.HandleFunc("POST /v1/check-eligibility", s.handleEligibility)
	api.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, CodeInvalidRequest, "unknown endpoint", r.URL.Path)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/healthz", s.handleHealthz)
	mux.Handle("/", s.withAuth(api))
	return s.withRequestID(s.withLogging(mux))
}

// Run serves until the context is canceled, then shuts down gracefully within
// the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("listening", "addr", s.cfg.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx := context.Background()
		if s.cfg.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(shutdownCtx, s.cfg.ShutdownTimeout)
			defer cancel()
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		s.log.Info("shut down")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
