package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/koustreak/tablekit/internal/errs"
	"github.com/koustreak/tablekit/internal/logger"
)

type errorBody struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf maps an error kind to its HTTP status.
func statusOf(kind errs.ErrKind) int {
	switch kind {
	case errs.ErrKindValidation:
		return http.StatusUnprocessableEntity
	case errs.ErrKindInvalidInput, errs.ErrKindQueryFailed:
		return http.StatusBadRequest
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case errs.ErrKindConnectionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": {...}}. A zero status is derived from
// the error kind. Errors outside errs never leak their text.
func writeError(w http.ResponseWriter, r *http.Request, err error, status int) {
	body := errorBody{Kind: errs.ErrKindUnknown.String(), Message: "internal error"}
	var e *errs.Error
	if errors.As(err, &e) {
		body.Kind = e.Kind.String()
		body.Message = e.Message
		body.Fields = e.Fields
	}
	if status == 0 {
		status = statusOf(errs.KindOf(err))
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).ErrorWith("request error", err, nil)
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, errs.Newf(errs.ErrKindNotFound, "no route for %s %s", r.Method, r.URL.Path), 0)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, errs.Newf(errs.ErrKindInvalidInput, "method %s is not allowed on %s", r.Method, r.URL.Path), http.StatusMethodNotAllowed)
}

// decodeJSON reads a JSON body into v. Numbers decode as json.Number so
// auth settings round-trip unchanged.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.Wrap(errs.ErrKindInvalidInput, "request body too large", err)
		}
		return errs.Wrap(errs.ErrKindInvalidInput, "malformed JSON body", err)
	}
	return nil
}
