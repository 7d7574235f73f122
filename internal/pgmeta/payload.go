package pgmeta

// DefaultFormat tells the DDL layer how to render a default value.
type DefaultFormat string

const (
	// DefaultLiteral values are quoted as SQL string literals.
	DefaultLiteral DefaultFormat = "literal"
	// DefaultExpression values are inlined and evaluated by the server.
	DefaultExpression DefaultFormat = "expression"
)

// CreateTablePayload creates an empty table.
type CreateTablePayload struct {
	Schema  string  `json:"schema"`
	Name    string  `json:"name"`
	Comment *string `json:"comment,omitempty"`
}

// UpdateTablePayload carries only the table-level keys that changed.
type UpdateTablePayload struct {
	Name            *string `json:"name,omitempty"`
	Comment         *string `json:"comment,omitempty"`
	RLSEnabled      *bool   `json:"rls_enabled,omitempty"`
	RealtimeEnabled *bool   `json:"realtime_enabled,omitempty"`
}

// IsEmpty reports whether the payload changes nothing.
func (p UpdateTablePayload) IsEmpty() bool {
	return p.Name == nil && p.Comment == nil && p.RLSEnabled == nil && p.RealtimeEnabled == nil
}

// CreateColumnPayload adds one column. IsPrimaryKey is omitted entirely when
// nil; table editors add composite keys in a separate statement.
type CreateColumnPayload struct {
	Schema             string        `json:"schema"`
	Table              string        `json:"table"`
	Name               string        `json:"name"`
	Type               string        `json:"type"`
	Comment            *string       `json:"comment,omitempty"`
	Check              *string       `json:"check,omitempty"`
	DefaultValue       *string       `json:"default_value,omitempty"`
	DefaultValueFormat DefaultFormat `json:"default_value_format,omitempty"`
	IsIdentity         bool          `json:"is_identity"`
	IdentityGeneration string        `json:"identity_generation,omitempty"`
	IsNullable         bool          `json:"is_nullable"`
	IsUnique           bool          `json:"is_unique"`
	IsPrimaryKey       *bool         `json:"is_primary_key,omitempty"`
}

// UpdateColumnPayload carries only the column keys that changed.
type UpdateColumnPayload struct {
	Name               *string       `json:"name,omitempty"`
	Comment            *string       `json:"comment,omitempty"`
	Check              *string       `json:"check,omitempty"`
	Type               *string       `json:"type,omitempty"`
	DefaultValue       *string       `json:"default_value,omitempty"`
	DefaultValueFormat DefaultFormat `json:"default_value_format,omitempty"`
	DropDefault        bool          `json:"drop_default,omitempty"`
	IsIdentity         *bool         `json:"is_identity,omitempty"`
	IdentityGeneration *string       `json:"identity_generation,omitempty"`
	IsNullable         *bool         `json:"is_nullable,omitempty"`
	IsUnique           *bool         `json:"is_unique,omitempty"`
	IsPrimaryKey       *bool         `json:"is_primary_key,omitempty"`
}

// IsEmpty reports whether the payload changes nothing.
func (p UpdateColumnPayload) IsEmpty() bool {
	return p.Name == nil && p.Comment == nil && p.Check == nil && p.Type == nil &&
		p.DefaultValue == nil && !p.DropDefault && p.IsIdentity == nil &&
		p.IdentityGeneration == nil && p.IsNullable == nil && p.IsUnique == nil &&
		p.IsPrimaryKey == nil
}

// WithoutPrimaryKey returns a copy that leaves primary key membership alone.
func (p UpdateColumnPayload) WithoutPrimaryKey() UpdateColumnPayload {
	p.IsPrimaryKey = nil
	return p
}
