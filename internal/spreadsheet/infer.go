package spreadsheet

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/tablekit/internal/column"
)

// Inferred Postgres types.
const (
	TypeInt8        = "int8"
	TypeFloat8      = "float8"
	TypeBool        = "bool"
	TypeJSONB       = "jsonb"
	TypeDate        = "date"
	TypeTimestamptz = "timestamptz"
	TypeText        = "text"
)

const dateLayout = "2006-01-02"

var (
	numberPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)
	wholePattern  = regexp.MustCompile(`^[+-]?\d+$`)

	timestampLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.999999",
	}
)

func isNumber(v string) bool { return numberPattern.MatchString(v) }

func isBool(v string) bool {
	l := strings.ToLower(v)
	return l == "true" || l == "false"
}

func isJSON(v string) bool {
	t := strings.TrimSpace(v)
	if !(strings.HasPrefix(t, "{") || strings.HasPrefix(t, "[")) {
		return false
	}
	return json.Valid([]byte(t))
}

func isDate(v string) bool {
	_, err := time.Parse(dateLayout, v)
	return err == nil
}

func isTimestamp(v string) bool {
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

// InferColumnType guesses a Postgres type for one column. The first
// non-empty value picks the candidate; every other non-empty value must
// agree or the column falls back to text.
func InferColumnType(name string, rows []Row) string {
	values := make([]string, 0, len(rows))
	for _, r := range rows {
		if v := strings.TrimSpace(r[name]); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return TypeText
	}

	all := func(pred func(string) bool) bool {
		for _, v := range values {
			if !pred(v) {
				return false
			}
		}
		return true
	}

	first := values[0]
	switch {
	case isNumber(first):
		if !all(isNumber) {
			return TypeText
		}
		whole := all(func(v string) bool {
			if !wholePattern.MatchString(v) {
				return false
			}
			_, err := strconv.ParseInt(v, 10, 64)
			return err == nil
		})
		if whole {
			return TypeInt8
		}
		return TypeFloat8
	case isBool(first):
		if all(isBool) {
			return TypeBool
		}
	case isJSON(first):
		if all(isJSON) {
			return TypeJSONB
		}
	case isDate(first):
		if all(isDate) {
			return TypeDate
		}
	case isTimestamp(first):
		if all(isTimestamp) {
			return TypeTimestamptz
		}
	}
	return TypeText
}

// InferColumnTypes maps each header to its inferred type.
func InferColumnTypes(c *Content) map[string]string {
	types := make(map[string]string, len(c.Headers))
	for _, h := range c.Headers {
		types[h] = InferColumnType(h, c.Rows)
	}
	return types
}

// Fields proposes nullable columns, in header order, for creating a table
// from c.
func Fields(c *Content) []column.Field {
	fields := make([]column.Field, 0, len(c.Headers))
	for _, h := range c.Headers {
		fields = append(fields, column.NewField(h, InferColumnType(h, c.Rows)))
	}
	return fields
}
