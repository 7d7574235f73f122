// Package server exposes the table editor and auth provider settings over
// HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/koustreak/tablekit/internal/authconfig"
	"github.com/koustreak/tablekit/internal/editor"
	"github.com/koustreak/tablekit/internal/errs"
	"github.com/koustreak/tablekit/internal/filestore"
	"github.com/koustreak/tablekit/internal/logger"
	"github.com/koustreak/tablekit/internal/pgmeta"
)

// Config holds listener and authentication settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxBodyBytes int64 // 0 means unlimited

	JWT JWTConfig
}

// JWTConfig enables HS256 bearer authentication when Secret is set.
type JWTConfig struct {
	Secret   string
	Issuer   string // checked when set
	Audience string // checked when set
}

// Deps are the services behind the routes. Auth and Store may be nil, in
// which case their routes are not mounted.
type Deps struct {
	Editor *editor.Editor
	Meta   pgmeta.API
	Auth   *authconfig.Service
	Store  filestore.Store

	// DefaultBucket resolves object locations that name only a key.
	DefaultBucket string

	Log *logger.Logger
}

// Server is the HTTP API.
type Server struct {
	cfg    Config
	deps   Deps
	log    *logger.Logger
	router chi.Router
}

// New builds the router.
func New(cfg Config, deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{cfg: cfg, deps: deps, log: log}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.NotFound(notFound)
		r.MethodNotAllowed(methodNotAllowed)
		if s.cfg.JWT.Secret != "" {
			r.Use(s.authenticate)
		}
		if s.cfg.MaxBodyBytes > 0 {
			r.Use(middleware.RequestSize(s.cfg.MaxBodyBytes))
		}

		r.Route("/tables", func(r chi.Router) {
			r.Get("/", s.listTables)
			r.Post("/", s.createTable)
			r.Route("/{schema}/{name}", func(r chi.Router) {
				r.Get("/", s.getTable)
				r.Patch("/", s.updateTable)
				r.Delete("/", s.deleteTable)
				r.Post("/duplicate", s.duplicateTable)
				r.Post("/rows/import", s.importRows)
				r.Post("/columns", s.createColumn)
				r.Patch("/columns/{column}", s.updateColumn)
				r.Delete("/columns/{column}", s.deleteColumn)
			})
		})

		r.Post("/spreadsheet/infer", s.inferSpreadsheet)
		if s.deps.Store != nil {
			r.Get("/spreadsheet/sources", s.listSources)
		}
		r.Post("/sql/foreign-keys", s.previewForeignKeys)

		if s.deps.Auth != nil {
			r.Get("/auth/config", s.getAuthConfig)
			r.Get("/auth/providers", s.listAuthProviders)
			r.Get("/auth/providers/{provider}", s.getAuthProvider)
			r.Patch("/auth/config/providers/{provider}", s.updateAuthProvider)
		}
	})

	return r
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return s.log.WithContext(context.Background()) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.InfoWith("http server listening", map[string]any{"addr": s.cfg.Addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errs.Wrap(errs.ErrKindConnectionFailed, "http server stopped", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.log.Info("shutting down http server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errs.Wrap(errs.ErrKindTimeout, "http server shutdown", err)
		}
		return nil
	}
}
