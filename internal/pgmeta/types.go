// Package pgmeta is the table metadata API: it introspects tables, columns
// and constraints from pg_catalog and turns create/update/delete payloads
// into DDL executed through database.DB.
package pgmeta

// DefaultRealtimePublication is the logical replication publication a table
// joins when realtime is enabled for it.
const DefaultRealtimePublication = "supabase_realtime"

// TableRef identifies a table by schema and name.
type TableRef struct {
	Schema string `json:"schema" yaml:"schema"`
	Name   string `json:"name" yaml:"name"`
}

// Table describes an existing table as returned by RetrieveTable.
type Table struct {
	ID                int64    `json:"id"`
	Schema            string   `json:"schema"`
	Name              string   `json:"name"`
	Comment           *string  `json:"comment"`
	RLSEnabled        bool     `json:"rls_enabled"`
	RealtimeEnabled   bool     `json:"realtime_enabled"`
	PrimaryKeyName    string   `json:"primary_key_name,omitempty"`
	PrimaryKeyColumns []string `json:"primary_keys"`
	Columns           []Column `json:"columns"`
}

// Ref returns the table's schema and name.
func (t *Table) Ref() TableRef {
	return TableRef{Schema: t.Schema, Name: t.Name}
}

// Column finds a column by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnByID finds a column by its "<table id>.<position>" identifier.
func (t *Table) ColumnByID(id string) (Column, bool) {
	for _, c := range t.Columns {
		if c.ID == id {
			return c, true
		}
	}
	return Column{}, false
}

// Column describes an existing column.
type Column struct {
	ID                 string   `json:"id"`
	TableID            int64    `json:"table_id"`
	Schema             string   `json:"schema"`
	Table              string   `json:"table"`
	Name               string   `json:"name"`
	OrdinalPosition    int      `json:"ordinal_position"`
	DataType           string   `json:"data_type"` // information_schema name, e.g. "ARRAY", "bigint"
	Format             string   `json:"format"`    // udt name, e.g. "int8", "_text"
	DefaultValue       *string  `json:"default_value"`
	IsIdentity         bool     `json:"is_identity"`
	IdentityGeneration string   `json:"identity_generation,omitempty"`
	IsNullable         bool     `json:"is_nullable"`
	IsUnique           bool     `json:"is_unique"`
	Enums              []string `json:"enums"`
	Check              *string  `json:"check"`
	Comment            *string  `json:"comment"`
}

// Ref returns the owning table's schema and name.
func (c Column) Ref() TableRef {
	return TableRef{Schema: c.Schema, Name: c.Table}
}

// ForeignKeyConstraint is a persisted foreign key. Actions use the
// single-letter codes of pg_constraint (a, c, r, d, n).
type ForeignKeyConstraint struct {
	ID             int64    `json:"id"`
	Name           string   `json:"constraint_name"`
	SourceSchema   string   `json:"source_schema"`
	SourceTable    string   `json:"source_table_name"`
	SourceColumns  []string `json:"source_columns"`
	TargetSchema   string   `json:"target_schema"`
	TargetTable    string   `json:"target_table_name"`
	TargetColumns  []string `json:"target_columns"`
	DeletionAction string   `json:"deletion_action"`
	UpdateAction   string   `json:"update_action"`
}
