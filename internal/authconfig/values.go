// Package authconfig edits the settings of third-party authentication
// providers held by the auth configuration API.
//
// The API exchanges one flat object keyed by environment-variable style
// names (EXTERNAL_GITHUB_ENABLED, MAILER_OTP_EXP, ...). A provider owns a
// subset of those keys; editing a provider validates its form, computes the
// changed keys and PATCHes only those.
package authconfig

import (
	"encoding/json"
	"maps"
	"strconv"
	"strings"
)

// Config is the flat key-value settings object.
type Config map[string]any

// Clone returns a shallow copy of c. A nil c clones to an empty Config.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	maps.Copy(out, c)
	return out
}

// String renders the value of key as text. Missing and null values are "".
func (c Config) String(key string) string {
	switch v := c[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// Bool reports whether key holds true or the string "true".
func (c Config) Bool(key string) bool {
	switch v := c[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	}
	return false
}

// Number returns the numeric value of key. present is false for missing,
// null and empty values; ok is false when a value is present but is not a
// number.
func (c Config) Number(key string) (n float64, present, ok bool) {
	v, found := c[key]
	if !found || v == nil {
		return 0, false, false
	}
	f, isNum := toFloat(v)
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		return 0, false, false
	}
	return f, true, isNum
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// equalValue compares two settings values. Numbers compare by value so a
// YAML int equals a JSON float; null equals the empty string.
func equalValue(a, b any) bool {
	if isBlank(a) && isBlank(b) {
		return true
	}
	if _, aStr := a.(string); !aStr {
		if _, bStr := b.(string); !bStr {
			fa, okA := toFloat(a)
			fb, okB := toFloat(b)
			if okA && okB {
				return fa == fb
			}
		}
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
