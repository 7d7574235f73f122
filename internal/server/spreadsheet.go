package server

import (
	"net/http"
	"strconv"

	"github.com/koustreak/tablekit/internal/column"
	"github.com/koustreak/tablekit/internal/errs"
	"github.com/koustreak/tablekit/internal/filestore"
	"github.com/koustreak/tablekit/internal/pgmeta"
	"github.com/koustreak/tablekit/internal/relation"
	"github.com/koustreak/tablekit/internal/spreadsheet"
)

const previewRows = 20

type inferResponse struct {
	Headers  []string          `json:"headers"`
	RowCount int               `json:"rowCount"`
	Types    map[string]string `json:"types"`
	Columns  []column.Field    `json:"columns"`
	Preview  []spreadsheet.Row `json:"preview"`
}

// inferSpreadsheet parses an uploaded file, or ?object=, and proposes
// column types for a new table.
func (s *Server) inferSpreadsheet(w http.ResponseWriter, r *http.Request) {
	var src = bodySource(r)
	if loc := r.URL.Query().Get("object"); loc != "" {
		obj, opts, err := s.openObject(r, loc)
		if err != nil {
			writeError(w, r, err, 0)
			return
		}
		defer obj.Close()
		src.Reader, src.Options = obj, opts
	}
	if src.Reader == nil {
		writeError(w, r, errs.New(errs.ErrKindInvalidInput, "spreadsheet file is required"), 0)
		return
	}
	if n, err := strconv.Atoi(r.URL.Query().Get("maxRows")); err == nil && n > 0 {
		src.Options.MaxRows = n
	}

	content, err := spreadsheet.Parse(src.Reader, src.Options)
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, inferResponse{
		Headers:  content.Headers,
		RowCount: content.RowCount,
		Types:    spreadsheet.InferColumnTypes(content),
		Columns:  spreadsheet.Fields(content),
		Preview:  content.Rows[:min(len(content.Rows), previewRows)],
	})
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	bucket := r.URL.Query().Get("bucket")
	if bucket == "" {
		bucket = s.deps.DefaultBucket
	}
	if bucket == "" {
		writeError(w, r, errs.New(errs.ErrKindInvalidInput, "bucket is required"), 0)
		return
	}
	sources, err := spreadsheet.ListSources(r.Context(), s.deps.Store, bucket, r.URL.Query().Get("prefix"))
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	if sources == nil {
		sources = []filestore.ObjectInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bucket": bucket, "sources": sources})
}

type foreignKeyPreview struct {
	Schema      string                `json:"schema"`
	Table       string                `json:"table"`
	ForeignKeys []relation.ForeignKey `json:"foreignKeys"`
	Existing    []relation.ForeignKey `json:"existing"`
}

// previewForeignKeys returns the SQL that would reconcile edited foreign
// keys against the persisted ones, without running it.
func (s *Server) previewForeignKeys(w http.ResponseWriter, r *http.Request) {
	var req foreignKeyPreview
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, 0)
		return
	}
	if req.Table == "" {
		writeError(w, r, errs.FieldErrors{"table": "Table name is required"}.Err(), 0)
		return
	}
	if req.Schema == "" {
		req.Schema = "public"
	}

	fieldErrs := errs.FieldErrors{}
	for i, fk := range req.ForeignKeys {
		fieldErrs.Merge("foreignKeys."+strconv.Itoa(i)+".", fk.Validate())
	}
	if err := fieldErrs.Err(); err != nil {
		writeError(w, r, err, 0)
		return
	}

	ref := pgmeta.TableRef{Schema: req.Schema, Name: req.Table}
	changes := relation.Diff(req.ForeignKeys, req.Existing)
	writeJSON(w, http.StatusOK, map[string]any{
		"pending": changes.Pending(),
		"sql":     relation.ChangesSQL(ref, changes),
	})
}
