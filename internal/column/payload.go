package column

import (
	"strings"

	"github.com/koustreak/tablekit/internal/pgmeta"
)

// ClassifyDefault decides whether a default is sent as a SQL expression or
// as a literal to be quoted. A nil value, CURRENT_DATE, a fully
// parenthesised value, or an unspaced value containing "(" followed later by
// ")" is an expression.
func ClassifyDefault(v *string) pgmeta.DefaultFormat {
	if v == nil {
		return pgmeta.DefaultExpression
	}
	s := *v
	switch {
	case s == "CURRENT_DATE":
		return pgmeta.DefaultExpression
	case strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"):
		return pgmeta.DefaultExpression
	case !strings.Contains(s, " "):
		open := strings.Index(s, "(")
		if open >= 0 && strings.Contains(s[open+1:], ")") {
			return pgmeta.DefaultExpression
		}
	}
	return pgmeta.DefaultLiteral
}

// ArrayDefault rewrites a bracketed array ("[1,2,3]") into Postgres array
// literal syntax ("{1,2,3}"). Other values are returned unchanged.
func ArrayDefault(v string) string {
	t := strings.TrimSpace(v)
	if strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]") {
		return strings.NewReplacer("[", "{", "]", "}").Replace(t)
	}
	return v
}

func (f Field) defaultValue() *string {
	if f.IsIdentity || f.DefaultValue == nil || *f.DefaultValue == "" {
		return nil
	}
	v := *f.DefaultValue
	if f.IsArray {
		v = ArrayDefault(v)
	}
	return &v
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

// GenerateCreatePayload converts a new column. Primary key membership is
// included only when set; callers creating composite keys strip it.
func GenerateCreatePayload(table pgmeta.TableRef, f Field) pgmeta.CreateColumnPayload {
	p := pgmeta.CreateColumnPayload{
		Schema:     table.Schema,
		Table:      table.Name,
		Name:       strings.TrimSpace(f.Name),
		Type:       f.Type(),
		Comment:    nonEmpty(f.Comment),
		Check:      nonEmpty(f.Check),
		IsIdentity: f.IsIdentity,
		IsNullable: f.IsNullable,
		IsUnique:   f.IsUnique,
	}
	if def := f.defaultValue(); def != nil {
		p.DefaultValue = def
		p.DefaultValueFormat = ClassifyDefault(def)
	}
	if f.IsPrimaryKey {
		yes := true
		p.IsPrimaryKey = &yes
	}
	return p
}

func same(a, b *string) bool {
	a, b = nonEmpty(a), nonEmpty(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func valueOf(s *string) *string {
	v := ""
	if s != nil {
		v = *s
	}
	return &v
}

// GenerateUpdatePayload returns only the keys of f that differ from the
// persisted column. Editing nothing yields an empty payload.
func GenerateUpdatePayload(orig pgmeta.Column, table *pgmeta.Table, f Field) pgmeta.UpdateColumnPayload {
	var pk []string
	if table != nil {
		pk = table.PrimaryKeyColumns
	}
	was := FromColumn(orig, pk)

	var p pgmeta.UpdateColumnPayload
	if name := strings.TrimSpace(f.Name); name != was.Name {
		p.Name = &name
	}
	if !same(f.Comment, was.Comment) {
		p.Comment = valueOf(f.Comment)
	}
	if !same(f.Check, was.Check) {
		p.Check = valueOf(f.Check)
	}
	if typ := f.Type(); typ != was.Type() {
		p.Type = &typ
	}

	if f.IsIdentity && !was.IsIdentity && was.DefaultValue != nil {
		p.DropDefault = true
		p.DefaultValueFormat = pgmeta.DefaultExpression
	}
	if !f.IsIdentity {
		def := f.defaultValue()
		switch {
		case def == nil && was.DefaultValue != nil && *was.DefaultValue != "" && !was.IsIdentity:
			p.DropDefault = true
			p.DefaultValueFormat = pgmeta.DefaultExpression
		case def != nil && !same(def, was.DefaultValue):
			p.DefaultValue = def
			p.DefaultValueFormat = ClassifyDefault(def)
		}
	}

	if f.IsIdentity != was.IsIdentity {
		v := f.IsIdentity
		p.IsIdentity = &v
	}
	if f.IsNullable != was.IsNullable {
		v := f.IsNullable
		p.IsNullable = &v
	}
	if f.IsUnique != was.IsUnique {
		v := f.IsUnique
		p.IsUnique = &v
	}
	if f.IsPrimaryKey != was.IsPrimaryKey {
		v := f.IsPrimaryKey
		p.IsPrimaryKey = &v
	}
	return p
}
