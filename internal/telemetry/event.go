// Package telemetry sends product events to an HTTP collector without
// blocking the operation that produced them.
package telemetry

// Table editor actions.
const (
	ActionTableCreated    = "table_created"
	ActionTableDataAdded  = "table_data_added"
	ActionTableRLSEnabled = "table_rls_enabled"
)

// MethodTableEditor is the "method" property of events raised by the editor.
const MethodTableEditor = "table_editor"

// Groups attributes an event to a project and organization.
type Groups struct {
	Project      string `json:"project,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// Event is one telemetry record.
type Event struct {
	Action     string         `json:"action"`
	Properties map[string]any `json:"properties,omitempty"`
	Groups     Groups         `json:"groups"`
}

// TableEvent builds an editor event about schema.table.
func TableEvent(action, schema, table string, groups Groups) Event {
	return Event{
		Action: action,
		Properties: map[string]any{
			"method":      MethodTableEditor,
			"schema_name": schema,
			"table_name":  table,
		},
		Groups: groups,
	}
}
