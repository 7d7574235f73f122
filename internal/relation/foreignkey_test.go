package relation

import (
	"encoding/json"
	"testing"

	"github.com/koustreak/tablekit/internal/errs"
	"github.com/koustreak/tablekit/internal/pgmeta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"
)

func TestParseAction(t *testing.T) {
	tests := map[string]Action{
		"":            NoAction,
		"a":           NoAction,
		"NO ACTION":   NoAction,
		"c":           Cascade,
		"cascade":     Cascade,
		"r":           Restrict,
		"set_default": SetDefault,
		"d":           SetDefault,
		"SET NULL":    SetNull,
		"n":           SetNull,
	}
	for in, want := range tests {
		got, err := ParseAction(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseAction("explode")
	assert.True(t, errs.IsInvalidInput(err))
}

func TestActionCodeRoundTrip(t *testing.T) {
	for _, a := range []Action{NoAction, Cascade, Restrict, SetDefault, SetNull} {
		parsed, err := ParseAction(a.Code())
		require.NoError(t, err)
		assert.Equal(t, a, parsed)
	}
}

func TestID(t *testing.T) {
	fresh := NewID()
	assert.True(t, fresh.IsNew())
	assert.Len(t, fresh.String(), 36)

	old := ExistingID(17)
	assert.False(t, old.IsNew())
	n, ok := old.Existing()
	assert.True(t, ok)
	assert.Equal(t, int64(17), n)

	var zero ID
	assert.True(t, zero.IsNew())
}

func TestForeignKey_JSON(t *testing.T) {
	var fks []ForeignKey
	body := `[
		{"id": 12, "schema": "public", "table": "users", "columns": [{"source": "user_id", "target": "id"}],
		 "deletionAction": "CASCADE", "updateAction": "NO ACTION", "toRemove": true},
		{"id": "3f1c9a2e-6a55-4a0e-9b9c-3c1f3b1f9a11", "schema": "public", "table": "teams",
		 "columns": [{"source": "team_id", "target": "id"}], "deletionAction": "r"}
	]`
	require.NoError(t, json.Unmarshal([]byte(body), &fks))
	require.Len(t, fks, 2)

	assert.False(t, fks[0].ID.IsNew())
	assert.True(t, fks[0].ToRemove)
	assert.Equal(t, Cascade, fks[0].DeletionAction)
	assert.True(t, fks[1].ID.IsNew())
	assert.Equal(t, Restrict, fks[1].DeletionAction)

	out, err := json.Marshal(fks[0])
	require.NoError(t, err)
	assert.Contains(t, string(out), `"id":12`)
	assert.Contains(t, string(out), `"deletionAction":"CASCADE"`)
}

func TestForeignKey_YAML(t *testing.T) {
	doc := `
- id: 4
  schema: public
  table: users
  columns:
    - {source: user_id, target: id}
  deletionAction: set null
- schema: public
  table: teams
  columns:
    - {source: team_id, target: id}
`
	var fks []ForeignKey
	require.NoError(t, yaml.Unmarshal([]byte(doc), &fks))
	require.Len(t, fks, 2)
	n, ok := fks[0].ID.Existing()
	assert.True(t, ok)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, SetNull, fks[0].DeletionAction)
	assert.True(t, fks[1].ID.IsNew())
}

func TestFromConstraint(t *testing.T) {
	fk := FromConstraint(pgmeta.ForeignKeyConstraint{
		ID:             99,
		Name:           "orders_user_id_fkey",
		SourceSchema:   "public",
		SourceTable:    "orders",
		SourceColumns:  []string{"user_id"},
		TargetSchema:   "auth",
		TargetTable:    "users",
		TargetColumns:  []string{"id"},
		DeletionAction: "c",
		UpdateAction:   "a",
	})

	id, _ := fk.ID.Existing()
	assert.Equal(t, int64(99), id)
	assert.Equal(t, "auth", fk.Schema)
	assert.Equal(t, []ColumnPair{{Source: "user_id", Target: "id"}}, fk.Columns)
	assert.Equal(t, Cascade, fk.DeletionAction)
	assert.Equal(t, NoAction, fk.UpdateAction)
}

func TestForeignKey_Equal(t *testing.T) {
	a := userFK()
	b := userFK()
	b.Name = "different"
	assert.True(t, a.Equal(b))

	b.Columns = []ColumnPair{{Source: "owner_id", Target: "id"}}
	assert.False(t, a.Equal(b))
}

func TestForeignKey_Validate(t *testing.T) {
	assert.Empty(t, userFK().Validate())

	fe := ForeignKey{Columns: []ColumnPair{{Source: "a"}}}.Validate()
	assert.Contains(t, fe, "table")
	assert.Contains(t, fe, "columns.0")

	fe = ForeignKey{Table: "users"}.Validate()
	assert.Contains(t, fe, "columns")
}
