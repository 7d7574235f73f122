package editor

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/koustreak/tablekit/internal/column"
	"github.com/koustreak/tablekit/internal/errs"
	"github.com/koustreak/tablekit/internal/pgmeta"
	"github.com/koustreak/tablekit/internal/relation"
	"github.com/koustreak/tablekit/internal/spreadsheet"
)

// Draft is the edited state of one table: the single value a save
// operation works from.
type Draft struct {
	Schema            string                `json:"schema" yaml:"schema"`
	Name              string                `json:"name" yaml:"name"`
	Comment           *string               `json:"comment,omitempty" yaml:"comment,omitempty"`
	IsRLSEnabled      bool                  `json:"isRLSEnabled" yaml:"isRLSEnabled"`
	IsRealtimeEnabled bool                  `json:"isRealtimeEnabled" yaml:"isRealtimeEnabled"`
	Columns           []column.Field        `json:"columns" yaml:"columns"`
	ForeignKeys       []relation.ForeignKey `json:"foreignKeys,omitempty" yaml:"foreignKeys,omitempty"`

	// Import holds pasted or pre-parsed rows inserted after creation.
	Import *spreadsheet.Content `json:"import,omitempty" yaml:"-"`

	// ImportFile streams a large file instead; it takes precedence over Import.
	ImportFile *FileSource `json:"-" yaml:"-"`
}

// FileSource is a spreadsheet read batch by batch during import.
type FileSource struct {
	Reader  io.Reader
	Size    int64 // bytes, 0 if unknown
	Options spreadsheet.ParseOptions
}

// Ref returns the draft's target table.
func (d *Draft) Ref() pgmeta.TableRef {
	schema := d.Schema
	if schema == "" {
		schema = "public"
	}
	return pgmeta.TableRef{Schema: schema, Name: strings.TrimSpace(d.Name)}
}

// PrimaryKeyColumns returns the names of columns flagged as primary key,
// in declared order.
func (d *Draft) PrimaryKeyColumns() []string {
	var pk []string
	for _, f := range d.Columns {
		if f.IsPrimaryKey {
			pk = append(pk, strings.TrimSpace(f.Name))
		}
	}
	return pk
}

// IdentityColumns returns the names of identity columns.
func (d *Draft) IdentityColumns() []string {
	var cols []string
	for _, f := range d.Columns {
		if f.IsIdentity {
			cols = append(cols, strings.TrimSpace(f.Name))
		}
	}
	return cols
}

// AllForeignKeys returns the table-level foreign keys followed by those
// declared on columns. A column relation whose id is already listed at
// table level is skipped.
func (d *Draft) AllForeignKeys() []relation.ForeignKey {
	out := slices.Clone(d.ForeignKeys)
	seen := make(map[string]bool, len(out))
	for _, fk := range out {
		if id := fk.ID.String(); id != "" {
			seen[id] = true
		}
	}
	for _, f := range d.Columns {
		if f.ForeignKey == nil {
			continue
		}
		fk := f.ForeignKey.ForColumn(strings.TrimSpace(f.Name))
		if id := fk.ID.String(); id != "" {
			if seen[id] {
				continue
			}
			seen[id] = true
		}
		out = append(out, fk)
	}
	return out
}

// Relations returns the foreign keys to keep, without those marked for removal.
func (d *Draft) Relations() []relation.ForeignKey {
	var out []relation.ForeignKey
	for _, fk := range d.AllForeignKeys() {
		if !fk.ToRemove {
			out = append(out, fk)
		}
	}
	return out
}

// Validate checks the table and every column. Keys are "name",
// "columns.<i>.<field>" and "foreignKeys.<i>.<field>".
func (d *Draft) Validate(opts column.KindOptions) errs.FieldErrors {
	fe := errs.FieldErrors{}
	if strings.TrimSpace(d.Name) == "" {
		fe.Add("name", "Please assign a name to your table")
	}

	seen := make(map[string]bool, len(d.Columns))
	for i, f := range d.Columns {
		prefix := fmt.Sprintf("columns.%d.", i)
		fe.Merge(prefix, column.Validate(f, opts))

		name := strings.TrimSpace(f.Name)
		if name == "" {
			continue
		}
		if seen[name] {
			fe.Add(prefix+"name", fmt.Sprintf("Column %q is defined more than once", name))
		}
		seen[name] = true
	}

	for i, fk := range d.ForeignKeys {
		if fk.ToRemove {
			continue
		}
		fe.Merge(fmt.Sprintf("foreignKeys.%d.", i), fk.Validate())
	}
	return fe
}

// FromTable builds a draft holding the persisted state of t and its
// foreign keys, ready to be edited and passed to UpdateTable.
func FromTable(t *pgmeta.Table, fks []pgmeta.ForeignKeyConstraint) Draft {
	d := Draft{
		Schema:            t.Schema,
		Name:              t.Name,
		Comment:           t.Comment,
		IsRLSEnabled:      t.RLSEnabled,
		IsRealtimeEnabled: t.RealtimeEnabled,
		ForeignKeys:       relation.FromConstraints(fks),
	}
	for _, c := range t.Columns {
		d.Columns = append(d.Columns, column.FromColumn(c, t.PrimaryKeyColumns))
	}
	return d
}

func sameComment(a, b *string) bool {
	av, bv := "", ""
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return av == bv
}

// TablePayload returns the table-level keys of d that differ from t.
func TablePayload(t *pgmeta.Table, d *Draft) pgmeta.UpdateTablePayload {
	var p pgmeta.UpdateTablePayload
	if name := strings.TrimSpace(d.Name); name != "" && name != t.Name {
		p.Name = &name
	}
	if !sameComment(d.Comment, t.Comment) {
		c := ""
		if d.Comment != nil {
			c = *d.Comment
		}
		p.Comment = &c
	}
	if d.IsRLSEnabled != t.RLSEnabled {
		v := d.IsRLSEnabled
		p.RLSEnabled = &v
	}
	if d.IsRealtimeEnabled != t.RealtimeEnabled {
		v := d.IsRealtimeEnabled
		p.RealtimeEnabled = &v
	}
	return p
}
