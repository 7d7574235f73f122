package spreadsheet

import (
	"encoding/json"
	"strings"

	"github.com/koustreak/tablekit/internal/column"
	"github.com/koustreak/tablekit/internal/pgmeta"
)

// FormatRows converts raw cells into insert values for the target columns.
// Headers without a matching column are dropped. JSON and array cells are
// decoded when they parse; empty cells become NULL for nullable columns.
func FormatRows(rows []Row, headers []string, columns []pgmeta.Column) ([]map[string]any, []string) {
	byName := make(map[string]pgmeta.Column, len(columns))
	for _, c := range columns {
		byName[c.Name] = c
	}

	var used []string
	for _, h := range headers {
		if _, ok := byName[h]; ok {
			used = append(used, h)
		}
	}

	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		rec := make(map[string]any, len(used))
		for _, h := range used {
			rec[h] = formatValue(r[h], byName[h])
		}
		out = append(out, rec)
	}
	return out, used
}

func formatValue(raw string, c pgmeta.Column) any {
	if raw == "" && c.IsNullable {
		return nil
	}

	kind := column.KindOf(c.Format, column.KindOptions{Enums: c.Enums})
	switch {
	case kind.IsArray():
		t := strings.TrimSpace(raw)
		if strings.HasPrefix(t, "{") && strings.HasSuffix(t, "}") {
			t = "[" + t[1:len(t)-1] + "]"
		}
		var v []any
		if err := json.Unmarshal([]byte(t), &v); err == nil {
			return v
		}
	case kind.Tag == column.JSON:
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return v
		}
	}
	return raw
}
