package editor

import (
	"testing"

	"github.com/koustreak/tablekit/internal/column"
	"github.com/koustreak/tablekit/internal/pgmeta"
	"github.com/koustreak/tablekit/internal/relation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"
)

func TestDraft_PrimaryKeyColumns(t *testing.T) {
	d := Draft{Columns: []column.Field{
		{Name: "b", IsPrimaryKey: true},
		{Name: "x"},
		{Name: " a ", IsPrimaryKey: true},
	}}
	assert.Equal(t, []string{"b", "a"}, d.PrimaryKeyColumns())
	assert.Empty(t, (&Draft{}).PrimaryKeyColumns())
}

func TestDraft_Ref(t *testing.T) {
	assert.Equal(t, pgmeta.TableRef{Schema: "public", Name: "todos"}, (&Draft{Name: " todos "}).Ref())
	assert.Equal(t, pgmeta.TableRef{Schema: "app", Name: "t"}, (&Draft{Schema: "app", Name: "t"}).Ref())
}

func TestDraft_Validate(t *testing.T) {
	d := Draft{
		Columns: []column.Field{
			{Name: "id", Format: "int8"},
			{Name: "secret", Format: "int4", IsEncrypted: true},
			{Name: "id", Format: "text"},
		},
		ForeignKeys: []relation.ForeignKey{
			{ID: relation.NewID()},
			{ID: relation.ExistingID(3), ToRemove: true},
		},
	}

	fe := d.Validate(column.KindOptions{})
	assert.Equal(t, map[string]bool{
		"name":                  true,
		"columns.1.isEncrypted": true,
		"columns.2.name":        true,
		"foreignKeys.0.table":   true,
		"foreignKeys.0.columns": true,
	}, keys(fe))
}

func TestDraft_AllForeignKeys(t *testing.T) {
	shared := relation.ForeignKey{
		ID:      relation.ExistingID(9),
		Schema:  "public",
		Table:   "users",
		Columns: []relation.ColumnPair{{Source: "owner_id", Target: "id"}},
	}
	org := relation.ForeignKey{
		ID:             relation.NewID(),
		Schema:         "public",
		Table:          "orgs",
		Columns:        []relation.ColumnPair{{Target: "id"}},
		DeletionAction: relation.Cascade,
	}
	gone := relation.ForeignKey{
		ID:       relation.ExistingID(4),
		Table:    "teams",
		Columns:  []relation.ColumnPair{{Source: "team_id", Target: "id"}},
		ToRemove: true,
	}

	d := Draft{
		Columns: []column.Field{
			{Name: "owner_id", Format: "int8", ForeignKey: &shared},
			{Name: " org_id ", Format: "int8", ForeignKey: &org},
			{Name: "team_id", Format: "int8", ForeignKey: &gone},
			{Name: "title", Format: "text"},
		},
		ForeignKeys: []relation.ForeignKey{shared},
	}

	all := d.AllForeignKeys()
	require.Len(t, all, 3)
	assert.Equal(t, shared, all[0])
	assert.Equal(t, "orgs", all[1].Table)
	assert.Equal(t, []relation.ColumnPair{{Source: "org_id", Target: "id"}}, all[1].Columns)
	assert.Empty(t, org.Columns[0].Source, "the column's relation is not modified")
	assert.True(t, all[2].ToRemove)

	kept := d.Relations()
	require.Len(t, kept, 2)
	assert.Equal(t, "users", kept[0].Table)
	assert.Equal(t, "orgs", kept[1].Table)
}

func keys(m map[string]string) map[string]bool {
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}

func TestFromTableAndTablePayload(t *testing.T) {
	table := todosTable()
	table.Comment = ptr("things")
	table.RLSEnabled = true

	d := FromTable(table, nil)
	require.Len(t, d.Columns, 3)
	assert.Equal(t, []string{"id"}, d.PrimaryKeyColumns())
	assert.Equal(t, "42.2", d.Columns[1].ID)
	assert.True(t, TablePayload(table, &d).IsEmpty())

	d.Name = "tasks"
	d.Comment = nil
	d.IsRLSEnabled = false
	d.IsRealtimeEnabled = true
	p := TablePayload(table, &d)
	assert.Equal(t, ptr("tasks"), p.Name)
	assert.Equal(t, ptr(""), p.Comment)
	require.NotNil(t, p.RLSEnabled)
	assert.False(t, *p.RLSEnabled)
	require.NotNil(t, p.RealtimeEnabled)
	assert.True(t, *p.RealtimeEnabled)
}

func TestDraft_YAML(t *testing.T) {
	src := `
schema: public
name: todos
isRLSEnabled: true
columns:
  - name: id
    format: int8
    isIdentity: true
    isPrimaryKey: true
  - name: tags
    format: text
    isArray: true
    isNullable: true
    defaultValue: "[a,b]"
foreignKeys:
  - id: 12
    schema: public
    table: users
    columns:
      - source: owner_id
        target: id
    deletionAction: c
`
	var d Draft
	require.NoError(t, yaml.Unmarshal([]byte(src), &d))
	assert.Equal(t, []string{"id"}, d.PrimaryKeyColumns())
	assert.Equal(t, "_text", d.Columns[1].Type())
	require.Len(t, d.ForeignKeys, 1)
	id, ok := d.ForeignKeys[0].ID.Existing()
	assert.True(t, ok)
	assert.Equal(t, int64(12), id)
	assert.Equal(t, relation.Cascade, d.ForeignKeys[0].DeletionAction)
	assert.Empty(t, d.Validate(column.KindOptions{}))
}
