package server

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/koustreak/tablekit/internal/column"
	"github.com/koustreak/tablekit/internal/editor"
	"github.com/koustreak/tablekit/internal/errs"
	"github.com/koustreak/tablekit/internal/filestore"
	"github.com/koustreak/tablekit/internal/pgmeta"
	"github.com/koustreak/tablekit/internal/spreadsheet"
)

type tableResponse struct {
	Table *pgmeta.Table `json:"table"`
	Draft editor.Draft  `json:"draft"`
}

func queryBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && v
}

func (s *Server) loadTable(r *http.Request) (*pgmeta.Table, error) {
	return s.deps.Meta.RetrieveTable(r.Context(), chi.URLParam(r, "schema"), chi.URLParam(r, "name"))
}

func (s *Server) listTables(w http.ResponseWriter, r *http.Request) {
	schema := r.URL.Query().Get("schema")
	if schema == "" {
		schema = "public"
	}
	names, err := s.deps.Meta.ListTables(r.Context(), schema)
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"schema": schema, "tables": names})
}

func (s *Server) getTable(w http.ResponseWriter, r *http.Request) {
	t, err := s.loadTable(r)
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	fks, err := s.deps.Meta.ListForeignKeyConstraints(r.Context(), t.Schema, t.Name)
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, tableResponse{Table: t, Draft: editor.FromTable(t, fks)})
}

func (s *Server) createTable(w http.ResponseWriter, r *http.Request) {
	var d editor.Draft
	if err := decodeJSON(r, &d); err != nil {
		writeError(w, r, err, 0)
		return
	}
	res, err := s.deps.Editor.CreateTable(r.Context(), &d)
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) updateTable(w http.ResponseWriter, r *http.Request) {
	var d editor.Draft
	if err := decodeJSON(r, &d); err != nil {
		writeError(w, r, err, 0)
		return
	}
	t, err := s.loadTable(r)
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	if d.Schema == "" {
		d.Schema = t.Schema
	}
	fks, err := s.deps.Meta.ListForeignKeyConstraints(r.Context(), t.Schema, t.Name)
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	res, err := s.deps.Editor.UpdateTable(r.Context(), t, &d, fks)
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) deleteTable(w http.ResponseWriter, r *http.Request) {
	ref := pgmeta.TableRef{Schema: chi.URLParam(r, "schema"), Name: chi.URLParam(r, "name")}
	if err := s.deps.Meta.DeleteTable(r.Context(), ref, queryBool(r, "cascade")); err != nil {
		writeError(w, r, err, 0)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) duplicateTable(w http.ResponseWriter, r *http.Request) {
	var opts editor.DuplicateOptions
	if err := decodeJSON(r, &opts); err != nil {
		writeError(w, r, err, 0)
		return
	}
	t, err := s.loadTable(r)
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	dup, err := s.deps.Editor.DuplicateTable(r.Context(), t, opts)
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusCreated, dup)
}

func (s *Server) createColumn(w http.ResponseWriter, r *http.Request) {
	var f column.Field
	if err := decodeJSON(r, &f); err != nil {
		writeError(w, r, err, 0)
		return
	}
	t, err := s.loadTable(r)
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	col, err := s.deps.Editor.CreateColumn(r.Context(), t, f)
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusCreated, col)
}

// lookupColumn loads the table and the column named in the route.
func (s *Server) lookupColumn(r *http.Request) (*pgmeta.Table, pgmeta.Column, error) {
	t, err := s.loadTable(r)
	if err != nil {
		return nil, pgmeta.Column{}, err
	}
	name := chi.URLParam(r, "column")
	c, ok := t.Column(name)
	if !ok {
		return nil, pgmeta.Column{}, errs.Newf(errs.ErrKindNotFound, "column %q not found on %s.%s", name, t.Schema, t.Name)
	}
	return t, c, nil
}

func (s *Server) updateColumn(w http.ResponseWriter, r *http.Request) {
	var f column.Field
	if err := decodeJSON(r, &f); err != nil {
		writeError(w, r, err, 0)
		return
	}
	t, orig, err := s.lookupColumn(r)
	if err != nil {
		writeError(w, r, err, 0)
		return
	}

	u := editor.ColumnUpdate{
		Table:          t,
		Original:       orig,
		Field:          f,
		SkipPrimaryKey: queryBool(r, "skipPrimaryKey"),
	}
	if f.ForeignKey != nil {
		u.ExistingForeignKeys, err = s.deps.Meta.ListForeignKeyConstraints(r.Context(), t.Schema, t.Name)
		if err != nil {
			writeError(w, r, err, 0)
			return
		}
	}

	col, err := s.deps.Editor.UpdateColumn(r.Context(), u)
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, col)
}

func (s *Server) deleteColumn(w http.ResponseWriter, r *http.Request) {
	_, c, err := s.lookupColumn(r)
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	if err := s.deps.Editor.DeleteColumn(r.Context(), c, queryBool(r, "cascade")); err != nil {
		writeError(w, r, err, 0)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// importRows streams rows into an existing table, either from the request
// body or, with ?object=bucket/key, from the object store.
func (s *Server) importRows(w http.ResponseWriter, r *http.Request) {
	t, err := s.loadTable(r)
	if err != nil {
		writeError(w, r, err, 0)
		return
	}

	var src editor.FileSource
	if loc := r.URL.Query().Get("object"); loc != "" {
		obj, opts, err := s.openObject(r, loc)
		if err != nil {
			writeError(w, r, err, 0)
			return
		}
		defer obj.Close()
		src = editor.FileSource{Reader: obj, Size: max(obj.Info().Size, 0), Options: opts}
	} else {
		src = bodySource(r)
	}

	res, err := s.deps.Editor.ImportFile(r.Context(), t, src)
	if err != nil && res.Inserted == 0 {
		writeError(w, r, err, 0)
		return
	}
	if err != nil {
		// Earlier batches are committed; report them with the failure.
		writeJSON(w, statusOf(errs.KindOf(err)), map[string]any{
			"imported": res,
			"error":    errorBody{Kind: errs.KindOf(err).String(), Message: err.Error()},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imported": res})
}

func (s *Server) openObject(r *http.Request, loc string) (filestore.Object, spreadsheet.ParseOptions, error) {
	if s.deps.Store == nil {
		return nil, spreadsheet.ParseOptions{}, errs.New(errs.ErrKindInvalidInput, "no object store is configured")
	}
	bucket, key, err := filestore.ParseLocation(loc, s.deps.DefaultBucket)
	if err != nil {
		return nil, spreadsheet.ParseOptions{}, err
	}
	return spreadsheet.OpenObject(r.Context(), s.deps.Store, bucket, key)
}

// bodySource reads the import file from the request body. The file name
// comes from ?filename= and a tab-separated content type forces TSV.
func bodySource(r *http.Request) editor.FileSource {
	if r.Body == nil || r.Body == http.NoBody {
		return editor.FileSource{}
	}
	opts := spreadsheet.ParseOptions{FileName: r.URL.Query().Get("filename")}
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && mt == "text/tab-separated-values" {
		opts.Delimiter = '\t'
	}
	return editor.FileSource{Reader: r.Body, Size: max(r.ContentLength, 0), Options: opts}
}
