package tool

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/telebiz/agentcore/internal/domain"
)

// Args is a decoded tool-call argument payload. Accessors are lenient about
// the JSON type the model chose (numbers as strings and the reverse).
type Args map[string]any

// Has reports whether key is present and non-null.
func (a Args) Has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

// String returns key as a trimmed string. Numbers are formatted.
func (a Args) String(key string) string {
	switch v := a[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// Int returns key as an integer, or def when absent or not numeric.
func (a Args) Int(key string, def int64) int64 {
	switch v := a[key].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
	}
	return def
}

// Bool returns key as a bool. ok is false when the value is absent or not
// interpretable as a boolean.
func (a Args) Bool(key string) (value bool, ok bool) {
	switch v := a[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return b, err == nil
	}
	return false, false
}

// Strings returns key as a string list. A single string or number becomes a
// one-element list.
func (a Args) Strings(key string) []string {
	switch v := a[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s := Args{"v": item}.String("v")
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	case string, float64, int, int64, json.Number:
		if s := a.String(key); s != "" {
			return []string{s}
		}
	}
	return nil
}

// Ints returns key as an integer list, skipping non-numeric items.
func (a Args) Ints(key string) []int64 {
	raw, ok := a[key].([]any)
	if !ok {
		if n := a.Int(key, -1); n >= 0 && a.Has(key) {
			return []int64{n}
		}
		return nil
	}
	out := make([]int64, 0, len(raw))
	for _, item := range raw {
		if n := (Args{"v": item}).Int("v", -1); n >= 0 {
			out = append(out, n)
		}
	}
	return out
}

// Maps returns key as a list of objects.
func (a Args) Maps(key string) []map[string]any {
	raw, ok := a[key].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// Clone returns a shallow copy.
func (a Args) Clone() Args {
	out := make(Args, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// MissingError reports a required argument that is absent or blank.
type MissingError struct {
	Field string
}

func (e *MissingError) Error() string {
	return e.Field + " is required"
}

// Unwrap lets callers match with errors.Is(err, ErrInvalidArgs).
func (e *MissingError) Unwrap() error { return ErrInvalidArgs }

// Require returns a MissingError for the first field that is absent, null,
// a blank string or an empty list.
func (a Args) Require(fields ...string) error {
	for _, f := range fields {
		if isBlank(a[f]) {
			return &MissingError{Field: f}
		}
	}
	return nil
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	}
	return false
}

// Validate checks args against the definition's required list and enum
// constraints on string properties.
func Validate(def domain.ToolDefinition, args Args) error {
	if err := args.Require(def.Required()...); err != nil {
		return err
	}

	props, _ := def.Parameters["properties"].(map[string]any)
	for name, spec := range props {
		schema, ok := spec.(map[string]any)
		if !ok || !args.Has(name) {
			continue
		}
		enum := enumValues(schema["enum"])
		if len(enum) == 0 {
			continue
		}
		got := args.String(name)
		if !contains(enum, got) {
			return fmt.Errorf("invalid %s: %q (must be one of %s)", name, got, strings.Join(enum, ", "))
		}
	}
	return nil
}

func enumValues(v any) []string {
	switch e := v.(type) {
	case []string:
		return e
	case []any:
		out := make([]string, 0, len(e))
		for _, item := range e {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
