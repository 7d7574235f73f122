// Package column holds the editable state of a column, classifies Postgres
// types into a closed set of kinds, and diffs edited columns against their
// persisted version.
package column

import "strings"

// Tag is the discriminant of Kind.
type Tag int

const (
	Other Tag = iota
	Number
	Text
	Boolean
	JSON
	DateTime
	Select
	Array
)

func (t Tag) String() string {
	switch t {
	case Number:
		return "number"
	case Text:
		return "text"
	case Boolean:
		return "boolean"
	case JSON:
		return "json"
	case DateTime:
		return "datetime"
	case Select:
		return "select"
	case Array:
		return "array"
	default:
		return "other"
	}
}

// Kind classifies a column type. Elem is set only for Array.
type Kind struct {
	Tag  Tag
	Elem *Kind
}

// KindOptions carries the context needed to recognise user-defined types.
type KindOptions struct {
	Enums []string // names of enum types visible to the table
}

var builtinKinds = map[string]Tag{
	"int2": Number, "int4": Number, "int8": Number,
	"float4": Number, "float8": Number, "numeric": Number,
	"smallint": Number, "integer": Number, "bigint": Number,
	"real": Number, "double precision": Number,

	"text": Text, "varchar": Text, "bpchar": Text, "char": Text,
	"uuid": Text, "citext": Text, "character varying": Text,

	"bool": Boolean, "boolean": Boolean,

	"json": JSON, "jsonb": JSON,

	"date": DateTime, "time": DateTime, "timetz": DateTime,
	"timestamp": DateTime, "timestamptz": DateTime,
}

// KindOf classifies a Postgres type name. Array types are recognised by a
// leading "_" (udt form) or a trailing "[]".
func KindOf(format string, opts KindOptions) Kind {
	format = strings.TrimSpace(format)
	if elem, ok := strings.CutPrefix(format, "_"); ok {
		inner := KindOf(elem, opts)
		return Kind{Tag: Array, Elem: &inner}
	}
	if elem, ok := strings.CutSuffix(format, "[]"); ok {
		inner := KindOf(elem, opts)
		return Kind{Tag: Array, Elem: &inner}
	}

	base := strings.ToLower(format)
	if i := strings.IndexByte(base, '('); i > 0 {
		base = strings.TrimSpace(base[:i])
	}
	if tag, ok := builtinKinds[base]; ok {
		return Kind{Tag: tag}
	}
	for _, e := range opts.Enums {
		if e == format {
			return Kind{Tag: Select}
		}
	}
	return Kind{Tag: Other}
}

// IsArray reports whether k is an array kind.
func (k Kind) IsArray() bool {
	return k.Tag == Array
}

// Base returns the innermost element kind.
func (k Kind) Base() Kind {
	for k.Tag == Array && k.Elem != nil {
		k = *k.Elem
	}
	return k
}

func (k Kind) String() string {
	if k.Tag == Array && k.Elem != nil {
		return "array<" + k.Elem.String() + ">"
	}
	return k.Tag.String()
}
