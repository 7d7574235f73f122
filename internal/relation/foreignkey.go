// Package relation models foreign keys as edited in a table draft, diffs
// them against the persisted constraints and assembles the constraint DDL.
package relation

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/koustreak/tablekit/internal/errs"
	"github.com/koustreak/tablekit/internal/pgmeta"
	"go.yaml.in/yaml/v3"
)

// ID identifies a relation. A persisted constraint carries its numeric oid;
// a relation added in the editor carries a generated uuid until saved.
type ID struct {
	existing  int64
	persisted bool
	draft     string
}

// ExistingID wraps the oid of a persisted constraint.
func ExistingID(oid int64) ID {
	return ID{existing: oid, persisted: true}
}

// NewID generates an id for a relation that has not been saved yet.
func NewID() ID {
	return ID{draft: uuid.NewString()}
}

// IsNew reports whether the relation has never been persisted.
func (id ID) IsNew() bool {
	return !id.persisted
}

// Existing returns the constraint oid of a persisted relation.
func (id ID) Existing() (int64, bool) {
	return id.existing, id.persisted
}

func (id ID) String() string {
	if id.persisted {
		return strconv.FormatInt(id.existing, 10)
	}
	return id.draft
}

// MarshalJSON renders persisted ids as numbers and draft ids as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.persisted {
		return []byte(strconv.FormatInt(id.existing, 10)), nil
	}
	return json.Marshal(id.draft)
}

// UnmarshalJSON accepts a number (persisted) or a string (draft).
func (id *ID) UnmarshalJSON(b []byte) error {
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*id = ExistingID(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "relation id must be a number or a string", err)
	}
	*id = ID{draft: s}
	return nil
}

// MarshalYAML mirrors MarshalJSON.
func (id ID) MarshalYAML() (any, error) {
	if id.persisted {
		return id.existing, nil
	}
	return id.draft, nil
}

// UnmarshalYAML accepts an integer (persisted) or a string (draft).
func (id *ID) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!int" {
		n, err := strconv.ParseInt(node.Value, 10, 64)
		if err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, "relation id out of range", err)
		}
		*id = ExistingID(n)
		return nil
	}
	*id = ID{draft: node.Value}
	return nil
}

// Action is a referential action applied on update or delete.
type Action int

const (
	NoAction Action = iota
	Cascade
	Restrict
	SetDefault
	SetNull
)

var actionNames = map[Action]string{
	NoAction:   "NO ACTION",
	Cascade:    "CASCADE",
	Restrict:   "RESTRICT",
	SetDefault: "SET DEFAULT",
	SetNull:    "SET NULL",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return "NO ACTION"
}

// Code returns the pg_constraint single-letter code.
func (a Action) Code() string {
	if a < NoAction || a > SetNull {
		return "a"
	}
	return [...]string{"a", "c", "r", "d", "n"}[a]
}

// ParseAction accepts pg_constraint codes ("c") and SQL names
// ("CASCADE", "set_null"). The empty string is NoAction.
func ParseAction(s string) (Action, error) {
	norm := strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(s, "_", " ")))
	switch norm {
	case "", "A", "NO ACTION":
		return NoAction, nil
	case "C", "CASCADE":
		return Cascade, nil
	case "R", "RESTRICT":
		return Restrict, nil
	case "D", "SET DEFAULT":
		return SetDefault, nil
	case "N", "SET NULL":
		return SetNull, nil
	}
	return NoAction, errs.Newf(errs.ErrKindInvalidInput, "unknown referential action %q", s)
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(b []byte) error {
	parsed, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ColumnPair links a source column to the referenced column.
type ColumnPair struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// ForeignKey is a relation from the edited table to Schema.Table.
type ForeignKey struct {
	ID             ID           `json:"id" yaml:"id"`
	Name           string       `json:"name,omitempty" yaml:"name,omitempty"`
	Schema         string       `json:"schema" yaml:"schema"`
	Table          string       `json:"table" yaml:"table"`
	Columns        []ColumnPair `json:"columns" yaml:"columns"`
	DeletionAction Action       `json:"deletionAction" yaml:"deletionAction"`
	UpdateAction   Action       `json:"updateAction" yaml:"updateAction"`
	ToRemove       bool         `json:"toRemove,omitempty" yaml:"toRemove,omitempty"`
}

// FromConstraint converts a persisted constraint. Unknown action codes
// degrade to NoAction.
func FromConstraint(c pgmeta.ForeignKeyConstraint) ForeignKey {
	fk := ForeignKey{
		ID:     ExistingID(c.ID),
		Name:   c.Name,
		Schema: c.TargetSchema,
		Table:  c.TargetTable,
	}
	for i, src := range c.SourceColumns {
		pair := ColumnPair{Source: src}
		if i < len(c.TargetColumns) {
			pair.Target = c.TargetColumns[i]
		}
		fk.Columns = append(fk.Columns, pair)
	}
	fk.DeletionAction, _ = ParseAction(c.DeletionAction)
	fk.UpdateAction, _ = ParseAction(c.UpdateAction)
	return fk
}

// FromConstraints converts a constraint list.
func FromConstraints(cs []pgmeta.ForeignKeyConstraint) []ForeignKey {
	out := make([]ForeignKey, 0, len(cs))
	for _, c := range cs {
		out = append(out, FromConstraint(c))
	}
	return out
}

// SourceColumns returns the referencing columns in declared order.
func (fk ForeignKey) SourceColumns() []string {
	cols := make([]string, len(fk.Columns))
	for i, p := range fk.Columns {
		cols[i] = p.Source
	}
	return cols
}

// TargetColumns returns the referenced columns in declared order.
func (fk ForeignKey) TargetColumns() []string {
	cols := make([]string, len(fk.Columns))
	for i, p := range fk.Columns {
		cols[i] = p.Target
	}
	return cols
}

// Equal compares target table, ordered column pairs and both actions.
// Identity and name are not part of the comparison.
func (fk ForeignKey) Equal(other ForeignKey) bool {
	return fk.Schema == other.Schema &&
		fk.Table == other.Table &&
		slices.Equal(fk.Columns, other.Columns) &&
		fk.DeletionAction == other.DeletionAction &&
		fk.UpdateAction == other.UpdateAction
}

// Validate reports problems keyed by field name.
// ForColumn returns fk as declared on column col: pairs without a source
// column take col.
func (fk ForeignKey) ForColumn(col string) ForeignKey {
	fk.Columns = slices.Clone(fk.Columns)
	for i := range fk.Columns {
		if fk.Columns[i].Source == "" {
			fk.Columns[i].Source = col
		}
	}
	return fk
}

func (fk ForeignKey) Validate() errs.FieldErrors {
	fe := errs.FieldErrors{}
	if fk.Table == "" {
		fe.Add("table", "Please select a table to reference")
	}
	if len(fk.Columns) == 0 {
		fe.Add("columns", "Please select at least one column pair")
	}
	for i, p := range fk.Columns {
		if p.Source == "" || p.Target == "" {
			fe.Add(fmt.Sprintf("columns.%d", i), "Both a source and a target column are required")
		}
	}
	return fe
}
