package relation

import (
	"fmt"
	"strings"

	"github.com/koustreak/tablekit/internal/database"
	"github.com/koustreak/tablekit/internal/pgmeta"
)

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = database.QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func qualified(t pgmeta.TableRef) string {
	return database.QualifiedName(t.Schema, t.Name)
}

// DerivedName is the constraint name given to relations added from a draft:
// <schema>_<table>_<source columns>_fkey.
func DerivedName(table pgmeta.TableRef, fk ForeignKey) string {
	return fmt.Sprintf("%s_%s_%s_fkey", table.Schema, table.Name, strings.Join(fk.SourceColumns(), "_"))
}

func updateClause(a Action) string {
	switch a {
	case Cascade, Restrict:
		return " ON UPDATE " + a.String()
	}
	return ""
}

func deleteClause(a Action) string {
	switch a {
	case Cascade, Restrict, SetDefault, SetNull:
		return " ON DELETE " + a.String()
	}
	return ""
}

// AddForeignKeySQL adds one constraint per relation on table.
func AddForeignKeySQL(table pgmeta.TableRef, fks []ForeignKey) string {
	stmts := make([]string, 0, len(fks))
	for _, fk := range fks {
		ref := pgmeta.TableRef{Schema: fk.Schema, Name: fk.Table}
		stmts = append(stmts, fmt.Sprintf(
			"ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)%s%s",
			qualified(table),
			database.QuoteIdent(DerivedName(table, fk)),
			quoteList(fk.SourceColumns()),
			qualified(ref),
			quoteList(fk.TargetColumns()),
			updateClause(fk.UpdateAction),
			deleteClause(fk.DeletionAction),
		))
	}
	return pgmeta.Script(stmts...)
}

// RemoveForeignKeySQL drops each relation's constraint. The persisted name
// is used when known, otherwise the derived one.
func RemoveForeignKeySQL(table pgmeta.TableRef, fks []ForeignKey) string {
	stmts := make([]string, 0, len(fks))
	for _, fk := range fks {
		name := fk.Name
		if name == "" {
			name = DerivedName(table, fk)
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE IF EXISTS %s DROP CONSTRAINT IF EXISTS %s",
			qualified(table), database.QuoteIdent(name)))
	}
	return pgmeta.Script(stmts...)
}

// UpdateForeignKeySQL recreates each relation: drop, then add.
func UpdateForeignKeySQL(table pgmeta.TableRef, fks []ForeignKey) string {
	return pgmeta.Script(RemoveForeignKeySQL(table, fks), AddForeignKeySQL(table, fks))
}

// ChangesSQL applies a diff: additions, removals, then updates.
func ChangesSQL(table pgmeta.TableRef, changes Changes) string {
	var stmts []string
	if added := changes.Added(); len(added) > 0 {
		stmts = append(stmts, AddForeignKeySQL(table, added))
	}
	if removed := changes.Removed(); len(removed) > 0 {
		stmts = append(stmts, RemoveForeignKeySQL(table, removed))
	}
	if updated := changes.Updated(); len(updated) > 0 {
		stmts = append(stmts, UpdateForeignKeySQL(table, updated))
	}
	return pgmeta.Script(stmts...)
}

// AddPrimaryKeySQL adds one primary key over cols, in order.
func AddPrimaryKeySQL(table pgmeta.TableRef, cols []string) string {
	return pgmeta.Script(fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s)", qualified(table), quoteList(cols)))
}

// DropPrimaryKeySQL drops the primary key constraint. An empty name falls
// back to <table>_pkey, which only matches tables created with the default
// naming.
func DropPrimaryKeySQL(table pgmeta.TableRef, name string) string {
	if name == "" {
		name = table.Name + "_pkey"
	}
	return pgmeta.Script(fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", qualified(table), database.QuoteIdent(name)))
}

// EnableRLSSQL turns on row level security.
func EnableRLSSQL(table pgmeta.TableRef) string {
	return pgmeta.RLSSQL(table, true)
}

// UpdateIdentitySequenceSQL moves the column's sequence past the largest
// stored value, after rows were inserted with explicit ids.
func UpdateIdentitySequenceSQL(table pgmeta.TableRef, column string) string {
	seq := database.QualifiedName(table.Schema, table.Name+"_"+column+"_seq")
	return pgmeta.Script(fmt.Sprintf("SELECT setval(%s, (SELECT COALESCE(MAX(%s), 1) FROM %s))",
		database.QuoteLiteral(seq), database.QuoteIdent(column), qualified(table)))
}

// DuplicateTableSQL copies the structure of source, including defaults,
// constraints and indexes, into a new table.
func DuplicateTableSQL(source, target pgmeta.TableRef, comment *string) string {
	stmts := []string{fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING ALL)", qualified(target), qualified(source))}
	if comment != nil && *comment != "" {
		stmts = append(stmts, fmt.Sprintf("COMMENT ON TABLE %s IS %s", qualified(target), database.QuoteLiteral(*comment)))
	}
	return pgmeta.Script(stmts...)
}

// CopyRowsSQL copies every row of source into target.
func CopyRowsSQL(source, target pgmeta.TableRef) string {
	return pgmeta.Script(fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", qualified(target), qualified(source)))
}
