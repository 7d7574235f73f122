package dbtest

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/koustreak/tablekit/internal/errs"
)

// Rows is a canned result set. Columns are the sorted keys of the first row
// unless set explicitly with WithColumns.
type Rows struct {
	data    []map[string]any
	columns []string
	pos     int
}

// NewRows builds Rows from maps.
func NewRows(data []map[string]any) *Rows {
	var cols []string
	if len(data) > 0 {
		for k := range data[0] {
			cols = append(cols, k)
		}
		sort.Strings(cols)
	}
	return &Rows{data: data, columns: cols, pos: -1}
}

// WithColumns fixes the column order used by Scan.
func (r *Rows) WithColumns(cols ...string) *Rows {
	r.columns = cols
	return r
}

func (r *Rows) Next() bool {
	r.pos++
	return r.pos < len(r.data)
}

func (r *Rows) Columns() ([]string, error) { return r.columns, nil }
func (r *Rows) Close()                     {}
func (r *Rows) Err() error                 { return nil }

// Scan assigns the current row's values, in column order, to dest.
func (r *Rows) Scan(dest ...any) error {
	if r.pos < 0 || r.pos >= len(r.data) {
		return pgx.ErrNoRows
	}
	if len(dest) > len(r.columns) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(r.columns))
	}
	current := r.data[r.pos]
	for i, d := range dest {
		if err := assign(d, current[r.columns[i]]); err != nil {
			return fmt.Errorf("scan column %q: %w", r.columns[i], err)
		}
	}
	return nil
}

func assign(dest, value any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("destination must be a non-nil pointer")
	}
	target := dv.Elem()
	if value == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}
	vv := reflect.ValueOf(value)
	switch {
	case vv.Type().AssignableTo(target.Type()):
		target.Set(vv)
	case target.Kind() == reflect.Pointer && vv.Type().AssignableTo(target.Type().Elem()):
		p := reflect.New(target.Type().Elem())
		p.Elem().Set(vv)
		target.Set(p)
	case vv.Type().ConvertibleTo(target.Type()):
		target.Set(vv.Convert(target.Type()))
	default:
		return fmt.Errorf("cannot assign %T to %s", value, target.Type())
	}
	return nil
}

type row struct {
	rows interface {
		Next() bool
		Scan(...any) error
	}
	err error
}

func (r *row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if !r.rows.Next() {
		return errs.Wrap(errs.ErrKindNotFound, "scan failed", pgx.ErrNoRows)
	}
	return r.rows.Scan(dest...)
}
