package graph

import "time"

// GetString extracts a string value from a Record.
func GetString(r Record, key string) string {
	if s, ok := r[key].(string); ok {
		return s
	}
	return ""
}

// GetInt64 extracts an integer; bolt returns int64, fakes often int.
func GetInt64(r Record, key string) int64 {
	switch n := r[key].(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

// GetInt is GetInt64 narrowed to int.
func GetInt(r Record, key string) int {
	return int(GetInt64(r, key))
}

func GetBool(r Record, key string) bool {
	b, _ := r[key].(bool)
	return b
}

// GetTime reads a unix-millisecond column.
func GetTime(r Record, key string) time.Time {
	ms := GetInt64(r, key)
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// GetStringSlice handles both []string and the []any lists bolt returns.
func GetStringSlice(r Record, key string) []string {
	switch s := r[key].(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}
