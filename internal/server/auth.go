package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/koustreak/tablekit/internal/authconfig"
	"github.com/koustreak/tablekit/internal/errs"
)

func (s *Server) getAuthConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.deps.Auth.Config(r.Context())
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) listAuthProviders(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.deps.Auth.Statuses(r.Context())
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": statuses})
}

func (s *Server) getAuthProvider(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "provider")
	p, ok := authconfig.Lookup(id)
	if !ok {
		writeError(w, r, errs.Newf(errs.ErrKindNotFound, "unknown auth provider %q", id), 0)
		return
	}
	form, err := s.deps.Auth.Form(r.Context(), id)
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"provider": p, "form": form})
}

func (s *Server) updateAuthProvider(w http.ResponseWriter, r *http.Request) {
	var form authconfig.Config
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, r, err, 0)
		return
	}
	res, err := s.deps.Auth.UpdateProvider(r.Context(), chi.URLParam(r, "provider"), form)
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
