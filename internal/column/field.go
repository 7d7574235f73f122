package column

import (
	"regexp"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/koustreak/tablekit/internal/pgmeta"
	"github.com/koustreak/tablekit/internal/relation"
)

// Field is the editable state of one column in a table draft.
type Field struct {
	ID           string               `json:"id" yaml:"id"`
	Name         string               `json:"name" yaml:"name"`
	Format       string               `json:"format" yaml:"format"` // element type when IsArray
	Comment      *string              `json:"comment,omitempty" yaml:"comment,omitempty"`
	Check        *string              `json:"check,omitempty" yaml:"check,omitempty"`
	DefaultValue *string              `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
	IsNullable   bool                 `json:"isNullable" yaml:"isNullable"`
	IsUnique     bool                 `json:"isUnique" yaml:"isUnique"`
	IsArray      bool                 `json:"isArray" yaml:"isArray"`
	IsIdentity   bool                 `json:"isIdentity" yaml:"isIdentity"`
	IsPrimaryKey bool                 `json:"isPrimaryKey" yaml:"isPrimaryKey"`
	IsNewColumn  bool                 `json:"isNewColumn" yaml:"isNewColumn"`
	IsEncrypted  bool                 `json:"isEncrypted,omitempty" yaml:"isEncrypted,omitempty"`
	ForeignKey   *relation.ForeignKey `json:"foreignKey,omitempty" yaml:"foreignKey,omitempty"`
}

// NewField returns an empty nullable column ready for editing.
func NewField(name, format string) Field {
	return Field{
		ID:          uuid.NewString(),
		Name:        name,
		Format:      format,
		IsNullable:  true,
		IsNewColumn: true,
	}
}

// Type returns the Postgres type sent to the server: the udt array form
// ("_int8") when IsArray.
func (f Field) Type() string {
	if f.IsArray && !strings.HasPrefix(f.Format, "_") {
		return "_" + f.Format
	}
	return f.Format
}

// Kind classifies the field's type.
func (f Field) Kind(opts KindOptions) Kind {
	return KindOf(f.Type(), opts)
}

// castDefault matches server-rendered defaults such as 'abc'::text or
// '{1,2}'::bigint[].
var castDefault = regexp.MustCompile(`^'((?:[^']|'')*)'::[\w\s\[\]".]+$`)

// EditableDefault turns a server default expression into the value a user
// would type: casts of quoted literals are unwrapped.
func EditableDefault(v *string) *string {
	if v == nil {
		return nil
	}
	if m := castDefault.FindStringSubmatch(*v); m != nil {
		s := strings.ReplaceAll(m[1], "''", "'")
		return &s
	}
	s := *v
	return &s
}

// FromColumn builds the editable state of a persisted column. pk lists the
// table's primary key columns.
func FromColumn(c pgmeta.Column, pk []string) Field {
	f := Field{
		ID:           c.ID,
		Name:         c.Name,
		Format:       c.Format,
		Comment:      c.Comment,
		Check:        c.Check,
		IsNullable:   c.IsNullable,
		IsUnique:     c.IsUnique,
		IsIdentity:   c.IsIdentity,
		IsPrimaryKey: slices.Contains(pk, c.Name),
	}
	if elem, ok := strings.CutPrefix(c.Format, "_"); ok {
		f.Format = elem
		f.IsArray = true
	}
	if !c.IsIdentity {
		f.DefaultValue = EditableDefault(c.DefaultValue)
	}
	return f
}
