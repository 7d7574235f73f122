package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/koustreak/tablekit/internal/authconfig"
	"github.com/koustreak/tablekit/internal/database/dbtest"
	"github.com/koustreak/tablekit/internal/editor"
	"github.com/koustreak/tablekit/internal/errs"
	"github.com/koustreak/tablekit/internal/pgmeta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memMeta serves tables from memory.
type memMeta struct {
	mu      sync.Mutex
	tables  map[pgmeta.TableRef]*pgmeta.Table
	deleted []pgmeta.TableRef
	dropped []string
}

func newMemMeta(tables ...*pgmeta.Table) *memMeta {
	m := &memMeta{tables: map[pgmeta.TableRef]*pgmeta.Table{}}
	for _, t := range tables {
		m.tables[t.Ref()] = t
	}
	return m
}

func (m *memMeta) get(ref pgmeta.TableRef) (*pgmeta.Table, error) {
	t, ok := m.tables[ref]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %s.%s not found", ref.Schema, ref.Name)
	}
	c := *t
	c.Columns = slices.Clone(t.Columns)
	return &c, nil
}

func (m *memMeta) ListTables(_ context.Context, schema string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for ref := range m.tables {
		if ref.Schema == schema {
			names = append(names, ref.Name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (m *memMeta) RetrieveTable(_ context.Context, schema, name string) (*pgmeta.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(pgmeta.TableRef{Schema: schema, Name: name})
}

func (m *memMeta) ListForeignKeyConstraints(context.Context, string, string) ([]pgmeta.ForeignKeyConstraint, error) {
	return nil, nil
}

func (m *memMeta) CreateTable(_ context.Context, p pgmeta.CreateTablePayload) (*pgmeta.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &pgmeta.Table{Schema: p.Schema, Name: p.Name}
	m.tables[t.Ref()] = t
	return t, nil
}

func (m *memMeta) UpdateTable(_ context.Context, t *pgmeta.Table, _ pgmeta.UpdateTablePayload) (*pgmeta.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(t.Ref())
}

func (m *memMeta) DeleteTable(_ context.Context, ref pgmeta.TableRef, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.get(ref); err != nil {
		return err
	}
	delete(m.tables, ref)
	m.deleted = append(m.deleted, ref)
	return nil
}

func (m *memMeta) CreateColumn(_ context.Context, p pgmeta.CreateColumnPayload) (*pgmeta.Column, error) {
	return &pgmeta.Column{Schema: p.Schema, Table: p.Table, Name: p.Name, Format: p.Type}, nil
}

func (m *memMeta) UpdateColumn(_ context.Context, c pgmeta.Column, _ pgmeta.UpdateColumnPayload) (*pgmeta.Column, error) {
	return &c, nil
}

func (m *memMeta) DeleteColumn(_ context.Context, c pgmeta.Column, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped = append(m.dropped, c.Name)
	return nil
}

func todos() *pgmeta.Table {
	return &pgmeta.Table{
		ID:                42,
		Schema:            "public",
		Name:              "todos",
		PrimaryKeyName:    "todos_pkey",
		PrimaryKeyColumns: []string{"id"},
		Columns: []pgmeta.Column{
			{ID: "42.1", TableID: 42, Schema: "public", Table: "todos", Name: "id", Format: "int8", IsIdentity: true},
			{ID: "42.2", TableID: 42, Schema: "public", Table: "todos", Name: "title", Format: "text", IsNullable: true},
		},
	}
}

type fakeAuthAPI struct {
	cfg     authconfig.Config
	updates []authconfig.Config
}

func (f *fakeAuthAPI) Get(context.Context) (authconfig.Config, error) {
	return f.cfg.Clone(), nil
}

func (f *fakeAuthAPI) Update(_ context.Context, p authconfig.Config) (authconfig.Config, error) {
	f.updates = append(f.updates, p)
	for k, v := range p {
		f.cfg[k] = v
	}
	return f.cfg.Clone(), nil
}

type testEnv struct {
	db   *dbtest.Recorder
	meta *memMeta
	srv  *Server
}

func newTestEnv(cfg Config, auth authconfig.API, tables ...*pgmeta.Table) *testEnv {
	db := dbtest.New()
	meta := newMemMeta(tables...)
	deps := Deps{
		Editor: editor.New(db, meta, nil, nil, editor.DefaultOptions()),
		Meta:   meta,
	}
	if auth != nil {
		deps.Auth = authconfig.NewService(auth)
	}
	return &testEnv{db: db, meta: meta, srv: New(cfg, deps)}
}

func (e *testEnv) do(t *testing.T, method, target, body string, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func errorOf(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error body: %v", body)
	return e
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(Config{}, nil)
	rec, body := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestListTables(t *testing.T) {
	env := newTestEnv(Config{}, nil, todos(), &pgmeta.Table{Schema: "public", Name: "orgs"})

	rec, body := env.do(t, http.MethodGet, "/v1/tables", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"orgs", "todos"}, body["tables"])

	_, body = env.do(t, http.MethodGet, "/v1/tables?schema=auth", "")
	assert.Equal(t, []any{}, body["tables"])
}

func TestGetTable(t *testing.T) {
	env := newTestEnv(Config{}, nil, todos())

	rec, body := env.do(t, http.MethodGet, "/v1/tables/public/todos", "")
	require.Equal(t, http.StatusOK, rec.Code)
	draft := body["draft"].(map[string]any)
	assert.Equal(t, "todos", draft["name"])
	assert.Len(t, draft["columns"], 2)

	rec, body = env.do(t, http.MethodGet, "/v1/tables/public/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorOf(t, body)["kind"])
}

func TestCreateTable(t *testing.T) {
	// The table is registered up front so the post-create lookup finds it.
	notes := &pgmeta.Table{Schema: "public", Name: "notes"}
	env := newTestEnv(Config{}, nil, notes)

	rec, body := env.do(t, http.MethodPost, "/v1/tables",
		`{"schema":"public","name":"notes","columns":[{"name":"body","format":"text","isNullable":true,"isNewColumn":true}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "notes", body["table"].(map[string]any)["name"])
	assert.Equal(t, 1, env.db.Count(`CREATE TABLE "public"."notes"`))
	assert.Equal(t, 1, env.db.Commits())
}

func TestCreateTable_Validation(t *testing.T) {
	env := newTestEnv(Config{}, nil)

	rec, body := env.do(t, http.MethodPost, "/v1/tables", `{"schema":"public","name":"","columns":[{"name":"x"}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	e := errorOf(t, body)
	assert.Equal(t, "validation", e["kind"])
	fields := e["fields"].(map[string]any)
	assert.Equal(t, "Please assign a name to your table", fields["name"])
	assert.Equal(t, "Please select a type for your column", fields["columns.0.format"])
	assert.Empty(t, env.db.Statements())
}

func TestCreateTable_MalformedBody(t *testing.T) {
	env := newTestEnv(Config{}, nil)
	rec, body := env.do(t, http.MethodPost, "/v1/tables", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", errorOf(t, body)["kind"])
}

func TestDeleteTable(t *testing.T) {
	env := newTestEnv(Config{}, nil, todos())

	rec, _ := env.do(t, http.MethodDelete, "/v1/tables/public/todos?cascade=true", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []pgmeta.TableRef{{Schema: "public", Name: "todos"}}, env.meta.deleted)

	rec, _ = env.do(t, http.MethodDelete, "/v1/tables/public/todos", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteColumn(t *testing.T) {
	env := newTestEnv(Config{}, nil, todos())

	rec, _ := env.do(t, http.MethodDelete, "/v1/tables/public/todos/columns/title", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"title"}, env.meta.dropped)

	rec, body := env.do(t, http.MethodDelete, "/v1/tables/public/todos/columns/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, errorOf(t, body)["message"], `column "nope" not found`)
}

func TestImportRows_Body(t *testing.T) {
	env := newTestEnv(Config{}, nil, todos())

	rec, body := env.do(t, http.MethodPost, "/v1/tables/public/todos/rows/import?filename=todos.csv",
		"id,title\n7,ship it\n8,test it\n", "Content-Type", "text/csv")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(2), body["imported"].(map[string]any)["inserted"])
	assert.Equal(t, 1, env.db.Count("json_populate_recordset"))
	assert.Equal(t, 1, env.db.Count("setval("), "identity sequence follows imported ids")
}

func TestImportRows_Errors(t *testing.T) {
	env := newTestEnv(Config{}, nil, todos())

	rec, body := env.do(t, http.MethodPost, "/v1/tables/public/todos/rows/import", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "import file is required", errorOf(t, body)["message"])

	rec, body = env.do(t, http.MethodPost, "/v1/tables/public/todos/rows/import?object=imports/todos.csv", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no object store is configured", errorOf(t, body)["message"])
}

func TestInferSpreadsheet(t *testing.T) {
	env := newTestEnv(Config{}, nil)

	rec, body := env.do(t, http.MethodPost, "/v1/spreadsheet/infer?filename=people.tsv",
		"name\tage\tactive\nada\t36\ttrue\ngrace\t45\tfalse\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []any{"name", "age", "active"}, body["headers"])
	assert.Equal(t, float64(2), body["rowCount"])
	types := body["types"].(map[string]any)
	assert.Equal(t, "text", types["name"])
	assert.Equal(t, "int8", types["age"])
	assert.Equal(t, "bool", types["active"])
	assert.Len(t, body["columns"], 3)
	assert.Len(t, body["preview"], 2)

	rec, _ = env.do(t, http.MethodPost, "/v1/spreadsheet/infer", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreviewForeignKeys(t *testing.T) {
	env := newTestEnv(Config{}, nil)

	rec, body := env.do(t, http.MethodPost, "/v1/sql/foreign-keys", `{
		"table": "todos",
		"foreignKeys": [{"id": "draft-1", "schema": "public", "table": "orgs",
			"columns": [{"source": "org_id", "target": "id"}], "deletionAction": "CASCADE"}],
		"existing": []
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["pending"])
	assert.Contains(t, body["sql"], `ALTER TABLE "public"."todos" ADD CONSTRAINT`)
	assert.Contains(t, body["sql"], "ON DELETE CASCADE")

	rec, body = env.do(t, http.MethodPost, "/v1/sql/foreign-keys",
		`{"table": "todos", "foreignKeys": [{"id": "draft-1", "schema": "public", "columns": []}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	fields := errorOf(t, body)["fields"].(map[string]any)
	assert.Equal(t, "Please select a table to reference", fields["foreignKeys.0.table"])
}

func TestAuthRoutes(t *testing.T) {
	api := &fakeAuthAPI{cfg: authconfig.Config{
		"EXTERNAL_GITHUB_ENABLED":   false,
		"EXTERNAL_GITHUB_CLIENT_ID": "",
		"EXTERNAL_GITHUB_SECRET":    "",
	}}
	env := newTestEnv(Config{}, api)

	rec, body := env.do(t, http.MethodGet, "/v1/auth/providers/github", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GitHub", body["provider"].(map[string]any)["title"])

	rec, body = env.do(t, http.MethodPatch, "/v1/auth/config/providers/github", `{"EXTERNAL_GITHUB_ENABLED": true}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	fields := errorOf(t, body)["fields"].(map[string]any)
	assert.Equal(t, "Client ID is required", fields["EXTERNAL_GITHUB_CLIENT_ID"])
	assert.Empty(t, api.updates)

	rec, body = env.do(t, http.MethodPatch, "/v1/auth/config/providers/github",
		`{"EXTERNAL_GITHUB_ENABLED": true, "EXTERNAL_GITHUB_CLIENT_ID": "abc", "EXTERNAL_GITHUB_SECRET": "xyz"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["changed"])
	require.Len(t, api.updates, 1)
	assert.Equal(t, "abc", api.updates[0]["EXTERNAL_GITHUB_CLIENT_ID"])

	rec, _ = env.do(t, http.MethodGet, "/v1/auth/providers/myspace", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthRoutes_NotMountedWithoutService(t *testing.T) {
	env := newTestEnv(Config{}, nil)
	rec, body := env.do(t, http.MethodGet, "/v1/auth/config", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorOf(t, body)["kind"])
}

func TestUnknownRoutes(t *testing.T) {
	env := newTestEnv(Config{}, nil, todos())

	tests := []struct {
		name   string
		method string
		target string
		status int
		kind   string
	}{
		{"root", http.MethodGet, "/nope", http.StatusNotFound, "not_found"},
		{"v1", http.MethodGet, "/v1/nope", http.StatusNotFound, "not_found"},
		{"sources without store", http.MethodGet, "/v1/spreadsheet/sources", http.StatusNotFound, "not_found"},
		{"wrong method", http.MethodPut, "/v1/tables/public/todos", http.StatusMethodNotAllowed, "invalid_input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.do(t, tt.method, tt.target, "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.kind, errorOf(t, body)["kind"])
		})
	}
}

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestAuthenticate(t *testing.T) {
	cfg := Config{JWT: JWTConfig{Secret: "s3cret", Issuer: "tablekit", Audience: "editor"}}
	env := newTestEnv(cfg, nil, todos())

	valid := jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "tablekit",
		Audience:  jwt.ClaimStrings{"editor"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	wrongAudience := valid
	wrongAudience.Audience = jwt.ClaimStrings{"billing"}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"valid", "Bearer " + signToken(t, "s3cret", valid), http.StatusOK},
		{"wrong secret", "Bearer " + signToken(t, "other", valid), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, "s3cret", expired), http.StatusUnauthorized},
		{"wrong audience", "Bearer " + signToken(t, "s3cret", wrongAudience), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hdr []string
			if tt.header != "" {
				hdr = []string{"Authorization", tt.header}
			}
			rec, _ := env.do(t, http.MethodGet, "/v1/tables", "", hdr...)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	rec, _ := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code, "health checks stay public")
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		kind errs.ErrKind
		want int
	}{
		{errs.ErrKindValidation, http.StatusUnprocessableEntity},
		{errs.ErrKindInvalidInput, http.StatusBadRequest},
		{errs.ErrKindQueryFailed, http.StatusBadRequest},
		{errs.ErrKindNotFound, http.StatusNotFound},
		{errs.ErrKindPermissionDenied, http.StatusForbidden},
		{errs.ErrKindTimeout, http.StatusGatewayTimeout},
		{errs.ErrKindConnectionFailed, http.StatusBadGateway},
		{errs.ErrKindPartialFailure, http.StatusInternalServerError},
		{errs.ErrKindUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.kind))
		})
	}
}
