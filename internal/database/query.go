package database

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/koustreak/tablekit/internal/errs"
)

// InsertBuilder constructs a single INSERT for a batch of rows. The rows
// travel as one JSON parameter expanded server-side with
// json_populate_recordset, so the statement text stays the same size no
// matter how many rows a batch carries and values are never interpolated.
//
// Usage:
//
//	sql, args, err := Insert("public", "users").
//	    Columns("id", "name").
//	    Rows(batch).
//	    Build()
type InsertBuilder struct {
	schema  string
	table   string
	columns []string
	rows    []map[string]any
}

// Insert starts a new InsertBuilder for schema.table.
func Insert(schema, table string) *InsertBuilder {
	return &InsertBuilder{schema: schema, table: table}
}

// Columns restricts the INSERT to the specified columns, in order.
func (b *InsertBuilder) Columns(cols ...string) *InsertBuilder {
	b.columns = cols
	return b
}

// Rows sets the batch to insert. Keys not listed in Columns are ignored.
func (b *InsertBuilder) Rows(rows []map[string]any) *InsertBuilder {
	b.rows = rows
	return b
}

// Build produces the final SQL string and argument slice.
func (b *InsertBuilder) Build() (string, []any, error) {
	if b.table == "" {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "insert requires a table name")
	}
	if len(b.columns) == 0 {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "insert requires at least one column")
	}
	if len(b.rows) == 0 {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "insert requires at least one row")
	}

	payload, err := json.Marshal(b.rows)
	if err != nil {
		return "", nil, errs.Wrap(errs.ErrKindInvalidInput, "rows are not JSON encodable", err)
	}

	quoted := make([]string, len(b.columns))
	for i, c := range b.columns {
		quoted[i] = QuoteIdent(c)
	}
	cols := strings.Join(quoted, ", ")
	target := QualifiedName(b.schema, b.table)

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(target)
	sb.WriteString(" (")
	sb.WriteString(cols)
	sb.WriteString(") SELECT ")
	sb.WriteString(cols)
	sb.WriteString(fmt.Sprintf(" FROM json_populate_recordset(NULL::%s, $1::json)", target))

	return sb.String(), []any{string(payload)}, nil
}

// QuoteIdent wraps a SQL identifier in double-quotes, doubling any embedded
// quote. This handles reserved words and mixed-case names.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifiedName renders "schema"."name". An empty schema yields just "name".
func QualifiedName(schema, name string) string {
	if schema == "" {
		return QuoteIdent(name)
	}
	return QuoteIdent(schema) + "." + QuoteIdent(name)
}

// QuoteLiteral renders s as a single-quoted SQL string literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
