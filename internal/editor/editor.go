// Package editor orchestrates multi-step table saves: it turns a Draft into
// the metadata calls and SQL scripts that create or alter a table, its
// columns, primary key and foreign keys, then imports any staged rows.
package editor

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/koustreak/tablekit/internal/column"
	"github.com/koustreak/tablekit/internal/database"
	"github.com/koustreak/tablekit/internal/errs"
	"github.com/koustreak/tablekit/internal/logger"
	"github.com/koustreak/tablekit/internal/pgmeta"
	"github.com/koustreak/tablekit/internal/relation"
	"github.com/koustreak/tablekit/internal/spreadsheet"
	"github.com/koustreak/tablekit/internal/telemetry"
)

// Options configures an Editor.
type Options struct {
	// Transactional creates a table, its columns and constraints in one
	// transaction. When false each step is a separate call and a failure
	// after the table exists drops it again.
	Transactional bool

	// Publication is the realtime publication tables join.
	Publication string

	// Groups attributes telemetry events.
	Groups telemetry.Groups

	// KindOptions lists enum types known to column validation.
	KindOptions column.KindOptions

	// OnProgress receives import progress.
	OnProgress spreadsheet.ProgressFunc
}

// DefaultOptions returns transactional creation on the default publication.
func DefaultOptions() Options {
	return Options{Transactional: true, Publication: pgmeta.DefaultRealtimePublication}
}

// Editor runs table saves. It holds no per-save state and is safe for
// concurrent use.
type Editor struct {
	db       database.DB
	meta     pgmeta.API
	importer *spreadsheet.Importer
	tracker  telemetry.Tracker
	opts     Options
}

// New creates an Editor. A nil importer uses default batching over db; a
// nil tracker discards events.
func New(db database.DB, meta pgmeta.API, importer *spreadsheet.Importer, tracker telemetry.Tracker, opts Options) *Editor {
	if importer == nil {
		importer = spreadsheet.NewImporter(db, spreadsheet.DefaultOptions())
	}
	if tracker == nil {
		tracker = telemetry.Nop()
	}
	if opts.Publication == "" {
		opts.Publication = pgmeta.DefaultRealtimePublication
	}
	return &Editor{db: db, meta: meta, importer: importer, tracker: tracker, opts: opts}
}

// CreateResult is the outcome of CreateTable. The table exists whenever the
// result is non-nil; ImportErr reports rows that could not be inserted.
type CreateResult struct {
	Table       *pgmeta.Table      `json:"table"`
	Imported    spreadsheet.Result `json:"imported"`
	ImportErr   error              `json:"-"`
	ImportError string             `json:"import_error,omitempty"`
}

// UpdateResult is the outcome of UpdateTable. HasError is set when at least
// one column could not be saved; ColumnErrors holds the messages by column.
type UpdateResult struct {
	Table        *pgmeta.Table     `json:"table"`
	HasError     bool              `json:"has_error"`
	ColumnErrors map[string]string `json:"column_errors,omitempty"`
}

func (e *Editor) log(ctx context.Context, t pgmeta.TableRef) *logger.Logger {
	return logger.FromContext(ctx).Table(t.Schema, t.Name)
}

func (e *Editor) track(action string, t pgmeta.TableRef) {
	e.tracker.Track(telemetry.TableEvent(action, t.Schema, t.Name, e.opts.Groups))
}

func (e *Editor) exec(ctx context.Context, db database.Execer, step string, t pgmeta.TableRef, sql string) error {
	if sql == "" {
		return nil
	}
	e.log(ctx, t).Step(step, nil)
	if _, err := db.Exec(ctx, sql); err != nil {
		return fmt.Errorf("%s on %s.%s: %w", step, t.Schema, t.Name, err)
	}
	return nil
}

// createColumnPayloads converts the draft's columns with primary key
// membership stripped; the key is added afterwards as one constraint.
func createColumnPayloads(t pgmeta.TableRef, d *Draft) []pgmeta.CreateColumnPayload {
	out := make([]pgmeta.CreateColumnPayload, 0, len(d.Columns))
	for _, f := range d.Columns {
		f.IsPrimaryKey = false
		out = append(out, column.GenerateCreatePayload(t, f))
	}
	return out
}

// CreateScript returns the statements that create d in one transaction:
// table, RLS, realtime, columns, primary key, foreign keys.
func CreateScript(d *Draft, publication string) string {
	ref := d.Ref()
	stmts := []string{pgmeta.CreateTableSQL(pgmeta.CreateTablePayload{
		Schema:  ref.Schema,
		Name:    ref.Name,
		Comment: d.Comment,
	})}
	if d.IsRLSEnabled {
		stmts = append(stmts, relation.EnableRLSSQL(ref))
	}
	if d.IsRealtimeEnabled {
		stmts = append(stmts, pgmeta.RealtimeSQL(ref, publication, true))
	}
	for _, p := range createColumnPayloads(ref, d) {
		stmts = append(stmts, pgmeta.CreateColumnSQL(p))
	}
	if pk := d.PrimaryKeyColumns(); len(pk) > 0 {
		stmts = append(stmts, relation.AddPrimaryKeySQL(ref, pk))
	}
	if fks := d.Relations(); len(fks) > 0 {
		stmts = append(stmts, relation.AddForeignKeySQL(ref, fks))
	}
	return pgmeta.Script(stmts...)
}

// CreateTable validates d, creates the table with its columns, primary key
// and foreign keys, then imports d's staged rows. Validation failures
// execute nothing.
func (e *Editor) CreateTable(ctx context.Context, d *Draft) (*CreateResult, error) {
	if err := d.Validate(e.opts.KindOptions).Err(); err != nil {
		return nil, err
	}
	ref := d.Ref()
	log := e.log(ctx, ref)

	var err error
	if e.opts.Transactional {
		err = e.db.InTx(ctx, func(tx database.Execer) error {
			return e.exec(ctx, tx, "create_table", ref, CreateScript(d, e.opts.Publication))
		})
	} else {
		err = e.createSequenced(ctx, d)
	}
	if err != nil {
		log.ErrorWith("create table failed", err, nil)
		return nil, err
	}

	e.track(telemetry.ActionTableCreated, ref)
	if d.IsRLSEnabled {
		e.track(telemetry.ActionTableRLSEnabled, ref)
	}

	table, err := e.meta.RetrieveTable(ctx, ref.Schema, ref.Name)
	if err != nil {
		return nil, err
	}
	res := &CreateResult{Table: table}

	if d.ImportFile == nil && d.Import == nil {
		return res, nil
	}
	res.Imported, res.ImportErr = e.importRows(ctx, table, d)
	if res.ImportErr != nil {
		res.ImportError = fmt.Sprintf("table %s has been created but rows could not be inserted: %v",
			ref.Name, res.ImportErr)
		log.ErrorWith("import after create failed", res.ImportErr, map[string]any{"inserted": res.Imported.Inserted})
	} else if res.Imported.Inserted > 0 {
		e.track(telemetry.ActionTableDataAdded, ref)
	}

	e.bumpIdentities(ctx, ref, d.IdentityColumns())
	return res, nil
}

// bumpIdentities moves identity sequences past values the imported rows
// carried explicitly. Failures are logged only.
func (e *Editor) bumpIdentities(ctx context.Context, ref pgmeta.TableRef, cols []string) {
	if len(cols) == 0 {
		return
	}
	stmts := make([]string, len(cols))
	for i, c := range cols {
		stmts[i] = relation.UpdateIdentitySequenceSQL(ref, c)
	}
	if err := e.exec(ctx, e.db, "update_identity_sequences", ref, pgmeta.Script(stmts...)); err != nil {
		e.log(ctx, ref).WarnWith("identity sequences not updated", err, nil)
	}
}

func identityColumns(t *pgmeta.Table) []string {
	var cols []string
	for _, c := range t.Columns {
		if c.IsIdentity {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

// createSequenced runs each creation step as its own call and drops the
// table again if a later step fails.
func (e *Editor) createSequenced(ctx context.Context, d *Draft) error {
	ref := d.Ref()
	t, err := e.meta.CreateTable(ctx, pgmeta.CreateTablePayload{Schema: ref.Schema, Name: ref.Name, Comment: d.Comment})
	if err != nil {
		return err
	}

	if err := e.populate(ctx, t, d); err != nil {
		if derr := e.meta.DeleteTable(ctx, ref, true); derr != nil {
			e.log(ctx, ref).ErrorWith("compensating delete failed", derr, nil)
			return errors.Join(err, fmt.Errorf("drop partially created table: %w", derr))
		}
		return err
	}
	return nil
}

func (e *Editor) populate(ctx context.Context, t *pgmeta.Table, d *Draft) error {
	ref := t.Ref()
	if d.IsRLSEnabled || d.IsRealtimeEnabled {
		var p pgmeta.UpdateTablePayload
		if d.IsRLSEnabled {
			p.RLSEnabled = &d.IsRLSEnabled
		}
		if d.IsRealtimeEnabled {
			p.RealtimeEnabled = &d.IsRealtimeEnabled
		}
		if _, err := e.meta.UpdateTable(ctx, t, p); err != nil {
			return err
		}
	}
	for _, p := range createColumnPayloads(ref, d) {
		if _, err := e.meta.CreateColumn(ctx, p); err != nil {
			return err
		}
	}
	if pk := d.PrimaryKeyColumns(); len(pk) > 0 {
		if err := e.exec(ctx, e.db, "add_primary_key", ref, relation.AddPrimaryKeySQL(ref, pk)); err != nil {
			return err
		}
	}
	if fks := d.Relations(); len(fks) > 0 {
		return e.exec(ctx, e.db, "add_foreign_keys", ref, relation.AddForeignKeySQL(ref, fks))
	}
	return nil
}

func (e *Editor) importRows(ctx context.Context, table *pgmeta.Table, d *Draft) (spreadsheet.Result, error) {
	ref := table.Ref()
	if src := d.ImportFile; src != nil {
		return e.importer.InsertFile(ctx, ref, src.Reader, src.Size, src.Options, table.Columns, e.opts.OnProgress)
	}
	return e.ImportContent(ctx, table, d.Import)
}

// ImportContent inserts parsed rows into an existing table. Headers that do
// not match a column are ignored.
func (e *Editor) ImportContent(ctx context.Context, table *pgmeta.Table, content *spreadsheet.Content) (spreadsheet.Result, error) {
	if content == nil || len(content.Rows) == 0 {
		return spreadsheet.Result{}, nil
	}
	values, used := spreadsheet.FormatRows(content.Rows, content.Headers, table.Columns)
	if len(used) == 0 {
		return spreadsheet.Result{}, errs.New(errs.ErrKindInvalidInput, "no spreadsheet header matches a table column")
	}
	return e.importer.InsertRows(ctx, table.Ref(), used, values, e.opts.OnProgress)
}

// ImportFile streams a CSV or TSV file into an existing table, batch by
// batch. Rows already inserted stay when a later batch fails.
func (e *Editor) ImportFile(ctx context.Context, table *pgmeta.Table, src FileSource) (spreadsheet.Result, error) {
	if src.Reader == nil {
		return spreadsheet.Result{}, errs.New(errs.ErrKindInvalidInput, "import file is required")
	}
	res, err := e.importer.InsertFile(ctx, table.Ref(), src.Reader, src.Size, src.Options, table.Columns, e.opts.OnProgress)
	if err != nil {
		return res, err
	}
	if res.Inserted > 0 {
		e.track(telemetry.ActionTableDataAdded, table.Ref())
	}
	e.bumpIdentities(ctx, table.Ref(), identityColumns(table))
	return res, nil
}

// UpdateTable saves d over the persisted table t. existing lists t's
// persisted foreign keys. Column failures are collected in the result and
// do not abort the save; any other failure does.
func (e *Editor) UpdateTable(ctx context.Context, t *pgmeta.Table, d *Draft, existing []pgmeta.ForeignKeyConstraint) (*UpdateResult, error) {
	if err := d.Validate(e.opts.KindOptions).Err(); err != nil {
		return nil, err
	}
	ref := t.Ref()
	log := e.log(ctx, ref)

	pk := d.PrimaryKeyColumns()
	pkChanged := !slices.Equal(pk, t.PrimaryKeyColumns)

	// Drop the key before touching columns so removed key columns need no
	// special handling.
	if pkChanged && len(t.PrimaryKeyColumns) > 0 {
		if err := e.exec(ctx, e.db, "drop_primary_key", ref, relation.DropPrimaryKeySQL(ref, t.PrimaryKeyName)); err != nil {
			return nil, err
		}
	}

	payload := TablePayload(t, d)
	var (
		updated *pgmeta.Table
		err     error
	)
	if payload.IsEmpty() {
		updated, err = e.meta.RetrieveTable(ctx, t.Schema, t.Name)
	} else {
		updated, err = e.meta.UpdateTable(ctx, t, payload)
	}
	if err != nil {
		return nil, err
	}
	if payload.RLSEnabled != nil && *payload.RLSEnabled {
		e.track(telemetry.ActionTableRLSEnabled, updated.Ref())
	}

	res := &UpdateResult{ColumnErrors: map[string]string{}}
	if err := e.saveColumns(ctx, t, updated, d, res); err != nil {
		return nil, err
	}

	if pkChanged && len(pk) > 0 {
		if err := e.exec(ctx, e.db, "add_primary_key", updated.Ref(), relation.AddPrimaryKeySQL(updated.Ref(), pk)); err != nil {
			return nil, err
		}
	}

	changes := relation.Diff(d.AllForeignKeys(), relation.FromConstraints(existing))
	if err := e.exec(ctx, e.db, "update_foreign_keys", updated.Ref(), relation.ChangesSQL(updated.Ref(), changes)); err != nil {
		return nil, err
	}

	if res.Table, err = e.meta.RetrieveTable(ctx, updated.Schema, updated.Name); err != nil {
		return nil, err
	}
	if len(res.ColumnErrors) == 0 {
		res.ColumnErrors = nil
	} else {
		log.WarnWith("table saved with column errors", nil, map[string]any{"columns": len(res.ColumnErrors)})
	}
	return res, nil
}

// saveColumns deletes columns missing from d, creates new ones and updates
// changed ones. orig is the table as loaded by the caller, updated the
// table after the table-level update.
func (e *Editor) saveColumns(ctx context.Context, orig, updated *pgmeta.Table, d *Draft, res *UpdateResult) error {
	keep := make(map[string]bool, len(d.Columns))
	for _, f := range d.Columns {
		keep[f.ID] = true
	}
	for _, c := range updated.Columns {
		if keep[c.ID] {
			continue
		}
		if err := e.meta.DeleteColumn(ctx, c, false); err != nil {
			return err
		}
	}

	ref := updated.Ref()
	for _, f := range d.Columns {
		before, persisted := orig.ColumnByID(f.ID)
		if f.IsNewColumn || !persisted {
			f.IsPrimaryKey = false
			if _, err := e.meta.CreateColumn(ctx, column.GenerateCreatePayload(ref, f)); err != nil {
				res.fail(f.Name, err)
			}
			continue
		}

		p := column.GenerateUpdatePayload(before, updated, f).WithoutPrimaryKey()
		if p.IsEmpty() {
			continue
		}
		before.Schema, before.Table = updated.Schema, updated.Name
		if _, err := e.meta.UpdateColumn(ctx, before, p); err != nil {
			res.fail(f.Name, err)
		}
	}
	return nil
}

func (r *UpdateResult) fail(col string, err error) {
	r.HasError = true
	r.ColumnErrors[col] = err.Error()
}

// CreateColumn adds f to t. A primary key column is appended to the
// existing key, which is dropped and re-added. f's foreign key, if any, is
// created after the column.
func (e *Editor) CreateColumn(ctx context.Context, t *pgmeta.Table, f column.Field) (*pgmeta.Column, error) {
	if err := column.Validate(f, e.opts.KindOptions).Err(); err != nil {
		return nil, err
	}
	ref := t.Ref()
	p := column.GenerateCreatePayload(ref, f)
	isPK := p.IsPrimaryKey != nil && *p.IsPrimaryKey
	p.IsPrimaryKey = nil

	col, err := e.meta.CreateColumn(ctx, p)
	if err != nil {
		return nil, err
	}

	if isPK {
		if err := e.replacePrimaryKey(ctx, t, append(slices.Clone(t.PrimaryKeyColumns), col.Name)); err != nil {
			return nil, err
		}
	}
	if fk := f.ForeignKey; fk != nil && !fk.ToRemove {
		if err := e.exec(ctx, e.db, "add_foreign_keys", ref, relation.AddForeignKeySQL(ref, []relation.ForeignKey{fk.ForColumn(col.Name)})); err != nil {
			return nil, err
		}
	}
	return col, nil
}

// ColumnUpdate describes an edit of one persisted column.
type ColumnUpdate struct {
	Table    *pgmeta.Table
	Original pgmeta.Column
	Field    column.Field

	// ExistingForeignKeys are the table's persisted foreign keys, needed
	// when Field carries a relation.
	ExistingForeignKeys []pgmeta.ForeignKeyConstraint

	// SkipPrimaryKey leaves key membership alone.
	SkipPrimaryKey bool
}

// UpdateColumn applies the changed keys of u.Field. A change of primary key
// membership rebuilds the key with the column added or removed.
func (e *Editor) UpdateColumn(ctx context.Context, u ColumnUpdate) (*pgmeta.Column, error) {
	if err := column.Validate(u.Field, e.opts.KindOptions).Err(); err != nil {
		return nil, err
	}
	ref := u.Table.Ref()
	p := column.GenerateUpdatePayload(u.Original, u.Table, u.Field)

	col, err := e.meta.UpdateColumn(ctx, u.Original, p.WithoutPrimaryKey())
	if err != nil {
		return nil, err
	}

	if !u.SkipPrimaryKey && p.IsPrimaryKey != nil {
		pk := slices.DeleteFunc(slices.Clone(u.Table.PrimaryKeyColumns), func(c string) bool {
			return c == u.Original.Name || c == col.Name
		})
		if *p.IsPrimaryKey {
			pk = append(pk, col.Name)
		}
		if err := e.replacePrimaryKey(ctx, u.Table, pk); err != nil {
			return nil, err
		}
	}

	if fk := u.Field.ForeignKey; fk != nil {
		changes := relation.Diff([]relation.ForeignKey{fk.ForColumn(col.Name)}, relation.FromConstraints(u.ExistingForeignKeys))
		if err := e.exec(ctx, e.db, "update_foreign_keys", ref, relation.ChangesSQL(ref, changes)); err != nil {
			return nil, err
		}
	}
	return col, nil
}

// replacePrimaryKey drops t's key, if any, and adds one over cols.
func (e *Editor) replacePrimaryKey(ctx context.Context, t *pgmeta.Table, cols []string) error {
	ref := t.Ref()
	stmts := []string{}
	if len(t.PrimaryKeyColumns) > 0 {
		stmts = append(stmts, relation.DropPrimaryKeySQL(ref, t.PrimaryKeyName))
	}
	if len(cols) > 0 {
		stmts = append(stmts, relation.AddPrimaryKeySQL(ref, cols))
	}
	return e.exec(ctx, e.db, "replace_primary_key", ref, pgmeta.Script(stmts...))
}

// DeleteColumn drops a column.
func (e *Editor) DeleteColumn(ctx context.Context, c pgmeta.Column, cascade bool) error {
	return e.meta.DeleteColumn(ctx, c, cascade)
}

// DuplicateOptions controls DuplicateTable.
type DuplicateOptions struct {
	Name       string  `json:"name"`
	Comment    *string `json:"comment,omitempty"`
	RLSEnabled bool    `json:"rls_enabled"`
	CopyRows   bool    `json:"copy_rows"`
}

// DuplicateTable copies source's structure into a new table in the same
// schema. Foreign keys are not carried by LIKE and are re-added from the
// source's constraints. With CopyRows, rows are copied and identity
// sequences moved past the copied values.
func (e *Editor) DuplicateTable(ctx context.Context, source *pgmeta.Table, opts DuplicateOptions) (*pgmeta.Table, error) {
	if opts.Name == "" {
		return nil, errs.FieldErrors{"name": "Please assign a name to your table"}.Err()
	}
	src := source.Ref()
	target := pgmeta.TableRef{Schema: source.Schema, Name: opts.Name}

	fks, err := e.meta.ListForeignKeyConstraints(ctx, source.Schema, source.Name)
	if err != nil {
		return nil, err
	}

	stmts := []string{relation.DuplicateTableSQL(src, target, opts.Comment)}
	if len(fks) > 0 {
		stmts = append(stmts, relation.AddForeignKeySQL(target, relation.FromConstraints(fks)))
	}
	if opts.CopyRows {
		stmts = append(stmts, relation.CopyRowsSQL(src, target))
		for _, c := range source.Columns {
			if c.IsIdentity {
				stmts = append(stmts, relation.UpdateIdentitySequenceSQL(target, c.Name))
			}
		}
	}
	if opts.RLSEnabled {
		stmts = append(stmts, relation.EnableRLSSQL(target))
	}

	err = e.db.InTx(ctx, func(tx database.Execer) error {
		return e.exec(ctx, tx, "duplicate_table", target, pgmeta.Script(stmts...))
	})
	if err != nil {
		return nil, err
	}
	if opts.RLSEnabled {
		e.track(telemetry.ActionTableRLSEnabled, target)
	}
	return e.meta.RetrieveTable(ctx, target.Schema, target.Name)
}
