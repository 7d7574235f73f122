package pgmeta

import (
	"context"
	"fmt"

	"github.com/koustreak/tablekit/internal/database"
	"github.com/koustreak/tablekit/internal/errs"
	"github.com/koustreak/tablekit/internal/logger"
)

// API is the table metadata surface the editor works against.
type API interface {
	// ListTables returns all user table names in schema.
	ListTables(ctx context.Context, schema string) ([]string, error)

	// RetrieveTable returns a table with its columns and primary key.
	RetrieveTable(ctx context.Context, schema, name string) (*Table, error)

	// ListForeignKeyConstraints returns the foreign keys whose source is schema.table.
	ListForeignKeyConstraints(ctx context.Context, schema, table string) ([]ForeignKeyConstraint, error)

	CreateTable(ctx context.Context, p CreateTablePayload) (*Table, error)
	UpdateTable(ctx context.Context, t *Table, p UpdateTablePayload) (*Table, error)
	DeleteTable(ctx context.Context, t TableRef, cascade bool) error

	CreateColumn(ctx context.Context, p CreateColumnPayload) (*Column, error)
	UpdateColumn(ctx context.Context, c Column, p UpdateColumnPayload) (*Column, error)
	DeleteColumn(ctx context.Context, c Column, cascade bool) error
}

// Client implements API over a database.DB using pg_catalog introspection.
type Client struct {
	db          database.DB
	publication string
}

var _ API = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithPublication overrides the realtime publication name.
func WithPublication(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.publication = name
		}
	}
}

// New creates a metadata Client.
func New(db database.DB, opts ...Option) *Client {
	c := &Client{db: db, publication: DefaultRealtimePublication}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Publication returns the realtime publication name.
func (c *Client) Publication() string {
	return c.publication
}

const listTablesSQL = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = $1
	  AND table_type = 'BASE TABLE'
	ORDER BY table_name`

// ListTables returns all user-defined table names in the given schema.
func (c *Client) ListTables(ctx context.Context, schema string) ([]string, error) {
	rows, err := c.db.Query(ctx, listTablesSQL, schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	tables, err := database.ScanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	if tables == nil {
		tables = []string{}
	}
	return tables, nil
}

const retrieveTableSQL = `
	SELECT
		c.oid::int8                          AS id,
		n.nspname                            AS schema,
		c.relname                            AS name,
		obj_description(c.oid, 'pg_class')   AS comment,
		c.relrowsecurity                     AS rls_enabled,
		COALESCE((
			SELECT k.conname FROM pg_constraint k
			WHERE k.conrelid = c.oid AND k.contype = 'p'
		), '')                               AS primary_key_name,
		EXISTS (
			SELECT 1 FROM pg_publication_tables p
			WHERE p.pubname = $3
			  AND p.schemaname = n.nspname
			  AND p.tablename = c.relname
		)                                    AS realtime_enabled
	FROM pg_class c
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $1
	  AND c.relname = $2
	  AND c.relkind IN ('r', 'p')`

const listColumnsSQL = `
	SELECT
		a.attnum::int4                                  AS position,
		a.attname                                       AS name,
		format_type(a.atttypid, a.atttypmod)            AS data_type,
		t.typname                                       AS format,
		pg_get_expr(d.adbin, d.adrelid)                 AS default_value,
		a.attidentity IN ('a', 'd')                     AS is_identity,
		CASE a.attidentity
			WHEN 'a' THEN 'ALWAYS'
			WHEN 'd' THEN 'BY DEFAULT'
			ELSE ''
		END                                             AS identity_generation,
		NOT a.attnotnull                                AS is_nullable,
		EXISTS (
			SELECT 1 FROM pg_constraint u
			WHERE u.conrelid = a.attrelid
			  AND u.contype = 'u'
			  AND u.conkey = ARRAY[a.attnum]
		)                                               AS is_unique,
		col_description(a.attrelid, a.attnum)           AS comment,
		(
			SELECT pg_get_expr(k.conbin, k.conrelid) FROM pg_constraint k
			WHERE k.conrelid = a.attrelid
			  AND k.contype = 'c'
			  AND k.conkey = ARRAY[a.attnum]
			LIMIT 1
		)                                               AS check_expr,
		ARRAY(
			SELECT e.enumlabel::text FROM pg_enum e
			WHERE e.enumtypid = a.atttypid
			ORDER BY e.enumsortorder
		)                                               AS enums
	FROM pg_attribute a
	JOIN pg_type t ON t.oid = a.atttypid
	LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
	WHERE a.attrelid = $1
	  AND a.attnum > 0
	  AND NOT a.attisdropped
	ORDER BY a.attnum`

const primaryKeyColumnsSQL = `
	SELECT a.attname
	FROM pg_constraint k
	CROSS JOIN LATERAL unnest(k.conkey) WITH ORDINALITY AS u(attnum, ord)
	JOIN pg_attribute a ON a.attrelid = k.conrelid AND a.attnum = u.attnum
	WHERE k.conrelid = $1
	  AND k.contype = 'p'
	ORDER BY u.ord`

// RetrieveTable returns the table with its columns in ordinal order and its
// primary key columns in constraint order.
func (c *Client) RetrieveTable(ctx context.Context, schema, name string) (*Table, error) {
	t := &Table{}
	err := c.db.QueryRow(ctx, retrieveTableSQL, schema, name, c.publication).Scan(
		&t.ID, &t.Schema, &t.Name, &t.Comment, &t.RLSEnabled, &t.PrimaryKeyName, &t.RealtimeEnabled,
	)
	if err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.Newf(errs.ErrKindNotFound, "table %s.%s not found", schema, name)
		}
		return nil, fmt.Errorf("retrieve table %s.%s: %w", schema, name, err)
	}

	if t.Columns, err = c.listColumns(ctx, t); err != nil {
		return nil, err
	}

	rows, err := c.db.Query(ctx, primaryKeyColumnsSQL, t.ID)
	if err != nil {
		return nil, fmt.Errorf("primary key of %s.%s: %w", schema, name, err)
	}
	if t.PrimaryKeyColumns, err = database.ScanStrings(rows); err != nil {
		return nil, fmt.Errorf("primary key of %s.%s: %w", schema, name, err)
	}
	return t, nil
}

func (c *Client) listColumns(ctx context.Context, t *Table) ([]Column, error) {
	rows, err := c.db.Query(ctx, listColumnsSQL, t.ID)
	if err != nil {
		return nil, fmt.Errorf("inspect columns of %s.%s: %w", t.Schema, t.Name, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		col := Column{TableID: t.ID, Schema: t.Schema, Table: t.Name}
		if err := rows.Scan(
			&col.OrdinalPosition,
			&col.Name,
			&col.DataType,
			&col.Format,
			&col.DefaultValue,
			&col.IsIdentity,
			&col.IdentityGeneration,
			&col.IsNullable,
			&col.IsUnique,
			&col.Comment,
			&col.Check,
			&col.Enums,
		); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col.ID = fmt.Sprintf("%d.%d", t.ID, col.OrdinalPosition)
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cols, nil
}

const listForeignKeysSQL = `
	SELECT
		k.oid::int8                 AS id,
		k.conname                   AS constraint_name,
		sn.nspname                  AS source_schema,
		sc.relname                  AS source_table_name,
		ARRAY(
			SELECT a.attname::text
			FROM unnest(k.conkey) WITH ORDINALITY AS u(attnum, ord)
			JOIN pg_attribute a ON a.attrelid = k.conrelid AND a.attnum = u.attnum
			ORDER BY u.ord
		)                           AS source_columns,
		tn.nspname                  AS target_schema,
		tc.relname                  AS target_table_name,
		ARRAY(
			SELECT a.attname::text
			FROM unnest(k.confkey) WITH ORDINALITY AS u(attnum, ord)
			JOIN pg_attribute a ON a.attrelid = k.confrelid AND a.attnum = u.attnum
			ORDER BY u.ord
		)                           AS target_columns,
		k.confdeltype::text         AS deletion_action,
		k.confupdtype::text         AS update_action
	FROM pg_constraint k
	JOIN pg_class sc ON sc.oid = k.conrelid
	JOIN pg_namespace sn ON sn.oid = sc.relnamespace
	JOIN pg_class tc ON tc.oid = k.confrelid
	JOIN pg_namespace tn ON tn.oid = tc.relnamespace
	WHERE k.contype = 'f'
	  AND sn.nspname = $1
	  AND sc.relname = $2
	ORDER BY k.conname`

// ListForeignKeyConstraints returns every foreign key declared on schema.table.
func (c *Client) ListForeignKeyConstraints(ctx context.Context, schema, table string) ([]ForeignKeyConstraint, error) {
	rows, err := c.db.Query(ctx, listForeignKeysSQL, schema, table)
	if err != nil {
		return nil, fmt.Errorf("list foreign keys: %w", err)
	}
	defer rows.Close()

	fks := []ForeignKeyConstraint{}
	for rows.Next() {
		var fk ForeignKeyConstraint
		if err := rows.Scan(
			&fk.ID, &fk.Name,
			&fk.SourceSchema, &fk.SourceTable, &fk.SourceColumns,
			&fk.TargetSchema, &fk.TargetTable, &fk.TargetColumns,
			&fk.DeletionAction, &fk.UpdateAction,
		); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// CreateTable creates an empty table and returns it.
func (c *Client) CreateTable(ctx context.Context, p CreateTablePayload) (*Table, error) {
	if p.Name == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "table name is required")
	}
	if p.Schema == "" {
		p.Schema = "public"
	}
	c.step(ctx, p.Schema, p.Name, "create_table")
	if _, err := c.db.Exec(ctx, CreateTableSQL(p)); err != nil {
		return nil, fmt.Errorf("create table %s.%s: %w", p.Schema, p.Name, err)
	}
	return c.RetrieveTable(ctx, p.Schema, p.Name)
}

// UpdateTable applies p to t and returns the refreshed table. An empty
// payload issues no statement.
func (c *Client) UpdateTable(ctx context.Context, t *Table, p UpdateTablePayload) (*Table, error) {
	if p.IsEmpty() {
		return t, nil
	}
	c.step(ctx, t.Schema, t.Name, "update_table")
	if _, err := c.db.Exec(ctx, UpdateTableSQL(t.Ref(), p, c.publication)); err != nil {
		return nil, fmt.Errorf("update table %s.%s: %w", t.Schema, t.Name, err)
	}
	name := t.Name
	if p.Name != nil {
		name = *p.Name
	}
	return c.RetrieveTable(ctx, t.Schema, name)
}

// DeleteTable drops a table.
func (c *Client) DeleteTable(ctx context.Context, t TableRef, cascade bool) error {
	c.step(ctx, t.Schema, t.Name, "delete_table")
	if _, err := c.db.Exec(ctx, DeleteTableSQL(t, cascade)); err != nil {
		return fmt.Errorf("delete table %s.%s: %w", t.Schema, t.Name, err)
	}
	return nil
}

// CreateColumn adds a column and returns it as stored.
func (c *Client) CreateColumn(ctx context.Context, p CreateColumnPayload) (*Column, error) {
	if p.Name == "" || p.Type == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "column name and type are required")
	}
	c.step(ctx, p.Schema, p.Table, "create_column")
	if _, err := c.db.Exec(ctx, CreateColumnSQL(p)); err != nil {
		return nil, fmt.Errorf("create column %q: %w", p.Name, err)
	}
	return c.retrieveColumn(ctx, p.Schema, p.Table, p.Name)
}

// UpdateColumn applies p to col and returns the refreshed column. An empty
// payload issues no statement.
func (c *Client) UpdateColumn(ctx context.Context, col Column, p UpdateColumnPayload) (*Column, error) {
	sql := UpdateColumnSQL(col, p)
	if sql == "" {
		return &col, nil
	}
	c.step(ctx, col.Schema, col.Table, "update_column")
	if _, err := c.db.Exec(ctx, sql); err != nil {
		return nil, fmt.Errorf("update column %q: %w", col.Name, err)
	}
	name := col.Name
	if p.Name != nil {
		name = *p.Name
	}
	return c.retrieveColumn(ctx, col.Schema, col.Table, name)
}

// DeleteColumn drops a column.
func (c *Client) DeleteColumn(ctx context.Context, col Column, cascade bool) error {
	c.step(ctx, col.Schema, col.Table, "delete_column")
	if _, err := c.db.Exec(ctx, DeleteColumnSQL(col, cascade)); err != nil {
		return fmt.Errorf("delete column %q: %w", col.Name, err)
	}
	return nil
}

func (c *Client) retrieveColumn(ctx context.Context, schema, table, name string) (*Column, error) {
	t, err := c.RetrieveTable(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	col, ok := t.Column(name)
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "column %q not found on %s.%s", name, schema, table)
	}
	return &col, nil
}

func (c *Client) step(ctx context.Context, schema, table, step string) {
	logger.FromContext(ctx).Table(schema, table).Step(step, nil)
}
