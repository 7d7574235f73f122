package pgmeta

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/koustreak/tablekit/internal/database"
)

var plainType = regexp.MustCompile(`^[a-z0-9_ ]+(\(\d+(,\s*\d+)?\))?$`)

// Script joins statements with ";" and terminates the last one.
func Script(stmts ...string) string {
	out := make([]string, 0, len(stmts))
	for _, s := range stmts {
		if s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), ";")); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, ";\n") + ";"
}

// ColumnType renders a type name for DDL. Array udt names ("_int8") become
// "int8[]"; anything that is not a plain lowercase builtin is quoted.
func ColumnType(format string) string {
	if elem, ok := strings.CutPrefix(format, "_"); ok {
		return ColumnType(elem) + "[]"
	}
	if strings.HasSuffix(format, "[]") || plainType.MatchString(format) {
		return format
	}
	return database.QuoteIdent(format)
}

func renderDefault(value string, format DefaultFormat) string {
	if format == DefaultExpression {
		return value
	}
	return database.QuoteLiteral(value)
}

func commentValue(c *string) string {
	if c == nil || *c == "" {
		return "NULL"
	}
	return database.QuoteLiteral(*c)
}

func target(t TableRef) string {
	return database.QualifiedName(t.Schema, t.Name)
}

// CreateTableSQL creates an empty table and sets its comment.
func CreateTableSQL(p CreateTablePayload) string {
	ref := TableRef{Schema: p.Schema, Name: p.Name}
	stmts := []string{fmt.Sprintf("CREATE TABLE %s ()", target(ref))}
	if p.Comment != nil && *p.Comment != "" {
		stmts = append(stmts, fmt.Sprintf("COMMENT ON TABLE %s IS %s", target(ref), commentValue(p.Comment)))
	}
	return Script(stmts...)
}

// DeleteTableSQL drops a table, optionally with its dependents.
func DeleteTableSQL(t TableRef, cascade bool) string {
	sql := "DROP TABLE " + target(t)
	if cascade {
		sql += " CASCADE"
	}
	return Script(sql)
}

// RLSSQL toggles row level security.
func RLSSQL(t TableRef, enabled bool) string {
	verb := "DISABLE"
	if enabled {
		verb = "ENABLE"
	}
	return Script(fmt.Sprintf("ALTER TABLE %s %s ROW LEVEL SECURITY", target(t), verb))
}

// RealtimeSQL adds the table to, or removes it from, a publication.
func RealtimeSQL(t TableRef, publication string, enabled bool) string {
	if publication == "" {
		publication = DefaultRealtimePublication
	}
	verb := "DROP"
	if enabled {
		verb = "ADD"
	}
	return Script(fmt.Sprintf("ALTER PUBLICATION %s %s TABLE %s", database.QuoteIdent(publication), verb, target(t)))
}

// UpdateTableSQL applies the changed table-level keys. The rename runs last
// so the other statements can still address the old name.
func UpdateTableSQL(t TableRef, p UpdateTablePayload, publication string) string {
	var stmts []string
	if p.Comment != nil {
		stmts = append(stmts, fmt.Sprintf("COMMENT ON TABLE %s IS %s", target(t), commentValue(p.Comment)))
	}
	if p.RLSEnabled != nil {
		stmts = append(stmts, RLSSQL(t, *p.RLSEnabled))
	}
	if p.RealtimeEnabled != nil {
		stmts = append(stmts, RealtimeSQL(t, publication, *p.RealtimeEnabled))
	}
	if p.Name != nil && *p.Name != t.Name {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", target(t), database.QuoteIdent(*p.Name)))
	}
	return Script(stmts...)
}

// CreateColumnSQL adds a column with its inline constraints.
func CreateColumnSQL(p CreateColumnPayload) string {
	ref := TableRef{Schema: p.Schema, Name: p.Table}

	var def strings.Builder
	fmt.Fprintf(&def, "ALTER TABLE %s ADD COLUMN %s %s", target(ref), database.QuoteIdent(p.Name), ColumnType(p.Type))

	switch {
	case p.IsIdentity:
		gen := p.IdentityGeneration
		if gen == "" {
			gen = "BY DEFAULT"
		}
		fmt.Fprintf(&def, " GENERATED %s AS IDENTITY", gen)
	case p.DefaultValue != nil:
		fmt.Fprintf(&def, " DEFAULT %s", renderDefault(*p.DefaultValue, p.DefaultValueFormat))
	}
	if !p.IsNullable {
		def.WriteString(" NOT NULL")
	}
	if p.IsUnique {
		def.WriteString(" UNIQUE")
	}
	if p.IsPrimaryKey != nil && *p.IsPrimaryKey {
		def.WriteString(" PRIMARY KEY")
	}
	if p.Check != nil && *p.Check != "" {
		fmt.Fprintf(&def, " CHECK (%s)", *p.Check)
	}

	stmts := []string{def.String()}
	if p.Comment != nil && *p.Comment != "" {
		stmts = append(stmts, fmt.Sprintf("COMMENT ON COLUMN %s.%s IS %s",
			target(ref), database.QuoteIdent(p.Name), commentValue(p.Comment)))
	}
	return Script(stmts...)
}

// UpdateColumnSQL applies the changed column keys. Primary key membership
// is not handled here; it needs the table-wide constraint.
func UpdateColumnSQL(c Column, p UpdateColumnPayload) string {
	t := target(c.Ref())
	col := database.QuoteIdent(c.Name)
	alter := func(format string, args ...any) string {
		return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s ", t, col) + fmt.Sprintf(format, args...)
	}

	var stmts []string
	if p.IsNullable != nil {
		if *p.IsNullable {
			stmts = append(stmts, alter("DROP NOT NULL"))
		} else {
			stmts = append(stmts, alter("SET NOT NULL"))
		}
	}
	if p.Type != nil {
		typ := ColumnType(*p.Type)
		stmts = append(stmts, alter("SET DATA TYPE %s USING %s::%s", typ, col, typ))
	}
	if p.DropDefault {
		stmts = append(stmts, alter("DROP DEFAULT"))
	} else if p.DefaultValue != nil {
		stmts = append(stmts, alter("SET DEFAULT %s", renderDefault(*p.DefaultValue, p.DefaultValueFormat)))
	}
	switch {
	case p.IsIdentity != nil && !*p.IsIdentity:
		stmts = append(stmts, alter("DROP IDENTITY IF EXISTS"))
	case p.IsIdentity != nil && *p.IsIdentity:
		gen := "BY DEFAULT"
		if p.IdentityGeneration != nil && *p.IdentityGeneration != "" {
			gen = *p.IdentityGeneration
		}
		stmts = append(stmts, alter("ADD GENERATED %s AS IDENTITY", gen))
	case p.IdentityGeneration != nil && c.IsIdentity:
		stmts = append(stmts, alter("SET GENERATED %s", *p.IdentityGeneration))
	}
	if p.IsUnique != nil {
		name := database.QuoteIdent(c.Table + "_" + c.Name + "_key")
		if *p.IsUnique {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)", t, name, col))
		} else {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s", t, name))
		}
	}
	if p.Comment != nil {
		stmts = append(stmts, fmt.Sprintf("COMMENT ON COLUMN %s.%s IS %s", t, col, commentValue(p.Comment)))
	}
	if p.Check != nil {
		name := database.QuoteIdent(c.Table + "_" + c.Name + "_check")
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s", t, name))
		if *p.Check != "" {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s)", t, name, *p.Check))
		}
	}
	if p.Name != nil && *p.Name != c.Name {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", t, col, database.QuoteIdent(*p.Name)))
	}
	return Script(stmts...)
}

// DeleteColumnSQL drops a column, optionally with its dependents.
func DeleteColumnSQL(c Column, cascade bool) string {
	sql := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", target(c.Ref()), database.QuoteIdent(c.Name))
	if cascade {
		sql += " CASCADE"
	}
	return Script(sql)
}
