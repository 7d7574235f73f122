package editor

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/koustreak/tablekit/internal/errs"
	"github.com/koustreak/tablekit/internal/pgmeta"
	"github.com/koustreak/tablekit/internal/telemetry"
)

// fakeMeta is an in-memory pgmeta.API that records the calls made to it.
type fakeMeta struct {
	mu     sync.Mutex
	tables map[pgmeta.TableRef]*pgmeta.Table
	fks    []pgmeta.ForeignKeyConstraint
	calls  []string

	createdColumns []pgmeta.CreateColumnPayload
	updatedColumns map[string]pgmeta.UpdateColumnPayload

	failCreateColumn map[string]error
	failUpdateColumn map[string]error
	failDeleteTable  error
}

func newFakeMeta(tables ...*pgmeta.Table) *fakeMeta {
	m := &fakeMeta{
		tables:           map[pgmeta.TableRef]*pgmeta.Table{},
		updatedColumns:   map[string]pgmeta.UpdateColumnPayload{},
		failCreateColumn: map[string]error{},
		failUpdateColumn: map[string]error{},
	}
	for _, t := range tables {
		m.tables[t.Ref()] = t
	}
	return m
}

func (m *fakeMeta) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *fakeMeta) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

func cloneTable(t *pgmeta.Table) *pgmeta.Table {
	c := *t
	c.Columns = slices.Clone(t.Columns)
	c.PrimaryKeyColumns = slices.Clone(t.PrimaryKeyColumns)
	return &c
}

func (m *fakeMeta) ListTables(_ context.Context, schema string) ([]string, error) {
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

func (m *fakeMeta) RetrieveTable(_ context.Context, schema, name string) (*pgmeta.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[pgmeta.TableRef{Schema: schema, Name: name}]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %s.%s not found", schema, name)
	}
	return cloneTable(t), nil
}

func (m *fakeMeta) ListForeignKeyConstraints(_ context.Context, schema, table string) ([]pgmeta.ForeignKeyConstraint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pgmeta.ForeignKeyConstraint
	for _, fk := range m.fks {
		if fk.SourceSchema == schema && fk.SourceTable == table {
			out = append(out, fk)
		}
	}
	return out, nil
}

func (m *fakeMeta) CreateTable(_ context.Context, p pgmeta.CreateTablePayload) (*pgmeta.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("create_table")
	t := &pgmeta.Table{ID: int64(100 + len(m.tables)), Schema: p.Schema, Name: p.Name, Comment: p.Comment}
	m.tables[t.Ref()] = t
	return cloneTable(t), nil
}

func (m *fakeMeta) UpdateTable(_ context.Context, t *pgmeta.Table, p pgmeta.UpdateTablePayload) (*pgmeta.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("update_table")
	stored, ok := m.tables[t.Ref()]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "table not found")
	}
	if p.Comment != nil {
		stored.Comment = p.Comment
	}
	if p.RLSEnabled != nil {
		stored.RLSEnabled = *p.RLSEnabled
	}
	if p.RealtimeEnabled != nil {
		stored.RealtimeEnabled = *p.RealtimeEnabled
	}
	if p.Name != nil {
		delete(m.tables, stored.Ref())
		stored.Name = *p.Name
		for i := range stored.Columns {
			stored.Columns[i].Table = *p.Name
		}
		m.tables[stored.Ref()] = stored
	}
	return cloneTable(stored), nil
}

func (m *fakeMeta) DeleteTable(_ context.Context, t pgmeta.TableRef, cascade bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(fmt.Sprintf("delete_table cascade=%t", cascade))
	if m.failDeleteTable != nil {
		return m.failDeleteTable
	}
	delete(m.tables, t)
	return nil
}

func (m *fakeMeta) CreateColumn(_ context.Context, p pgmeta.CreateColumnPayload) (*pgmeta.Column, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("create_column:" + p.Name)
	m.createdColumns = append(m.createdColumns, p)
	if err := m.failCreateColumn[p.Name]; err != nil {
		return nil, err
	}
	t, ok := m.tables[pgmeta.TableRef{Schema: p.Schema, Name: p.Table}]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "table not found")
	}
	col := pgmeta.Column{
		ID:         fmt.Sprintf("%d.%d", t.ID, len(t.Columns)+1),
		TableID:    t.ID,
		Schema:     p.Schema,
		Table:      p.Table,
		Name:       p.Name,
		Format:     p.Type,
		IsIdentity: p.IsIdentity,
		IsNullable: p.IsNullable,
		IsUnique:   p.IsUnique,
	}
	t.Columns = append(t.Columns, col)
	return &col, nil
}

func (m *fakeMeta) UpdateColumn(_ context.Context, c pgmeta.Column, p pgmeta.UpdateColumnPayload) (*pgmeta.Column, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("update_column:" + c.Name)
	m.updatedColumns[c.Name] = p
	if err := m.failUpdateColumn[c.Name]; err != nil {
		return nil, err
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	return &c, nil
}

func (m *fakeMeta) DeleteColumn(_ context.Context, c pgmeta.Column, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("delete_column:" + c.Name)
	if t, ok := m.tables[c.Ref()]; ok {
		t.Columns = slices.DeleteFunc(t.Columns, func(x pgmeta.Column) bool { return x.ID == c.ID })
	}
	return nil
}

// fakeTracker collects events synchronously.
type fakeTracker struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (t *fakeTracker) Track(ev telemetry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, ev)
}

func (t *fakeTracker) Close(context.Context) error { return nil }

func (t *fakeTracker) Actions() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, ev := range t.events {
		out = append(out, ev.Action)
	}
	return out
}

func ptr(s string) *string { return &s }

// todosTable is a persisted table: id int8 identity primary key, title
// text, done bool.
func todosTable() *pgmeta.Table {
	col := func(pos int, name, format string) pgmeta.Column {
		return pgmeta.Column{
			ID:              fmt.Sprintf("42.%d", pos),
			TableID:         42,
			Schema:          "public",
			Table:           "todos",
			Name:            name,
			OrdinalPosition: pos,
			Format:          format,
			IsNullable:      true,
		}
	}
	id := col(1, "id", "int8")
	id.IsIdentity = true
	id.IdentityGeneration = "BY DEFAULT"
	id.IsNullable = false

	return &pgmeta.Table{
		ID:                42,
		Schema:            "public",
		Name:              "todos",
		PrimaryKeyName:    "todos_pkey",
		PrimaryKeyColumns: []string{"id"},
		Columns:           []pgmeta.Column{id, col(2, "title", "text"), col(3, "done", "bool")},
	}
}
