package database

import (
	"encoding/json"
	"testing"

	"github.com/koustreak/tablekit/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertBuilder_Build(t *testing.T) {
	sql, args, err := Insert("public", "users").
		Columns("id", "name").
		Rows([]map[string]any{{"id": 1, "name": "ada"}, {"id": 2, "name": nil}}).
		Build()
	require.NoError(t, err)

	assert.Equal(t,
		`INSERT INTO "public"."users" ("id", "name") SELECT "id", "name" FROM json_populate_recordset(NULL::"public"."users", $1::json)`,
		sql)
	require.Len(t, args, 1)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(args[0].(string)), &decoded))
	assert.Len(t, decoded, 2)
	assert.Nil(t, decoded[1]["name"])
}

func TestInsertBuilder_Invalid(t *testing.T) {
	tests := []struct {
		name string
		b    *InsertBuilder
	}{
		{"no table", Insert("public", "").Columns("a").Rows([]map[string]any{{"a": 1}})},
		{"no columns", Insert("public", "t").Rows([]map[string]any{{"a": 1}})},
		{"no rows", Insert("public", "t").Columns("a")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.b.Build()
			assert.True(t, errs.IsInvalidInput(err))
		})
	}
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, `"we""ird"`, QuoteIdent(`we"ird`))
	assert.Equal(t, `"s"."t"`, QualifiedName("s", "t"))
	assert.Equal(t, `"t"`, QualifiedName("", "t"))
	assert.Equal(t, `'it''s'`, QuoteLiteral("it's"))
}
