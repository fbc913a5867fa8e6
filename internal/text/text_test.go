package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer sentence", 10, "a longe..."},
		{"abcdef", 3, "abc"},
		{"héllo wörld", 8, "héllo..."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Truncate(tt.in, tt.max), tt.in)
	}
}

func TestWordWrap(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{"short line", "hello world", 80, "hello world"},
		{"wraps at width", "hello world test", 10, "hello\nworld test"},
		{"keeps newlines", "line1\nline2", 80, "line1\nline2"},
		{"empty", "", 80, ""},
		{"zero width", "test", 0, "test"},
		{"overlong word", "superlongword short", 5, "superlongword\nshort"},
		{"escapes are free", "\x1b[1mbold\x1b[0m text", 9, "\x1b[1mbold\x1b[0m text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WordWrap(tt.in, tt.width))
		})
	}
}

func TestVisibleWidth(t *testing.T) {
	assert.Equal(t, 5, VisibleWidth("hello"))
	assert.Equal(t, 4, VisibleWidth("\x1b[31mred!\x1b[0m"))
	assert.Equal(t, 5, VisibleWidth("héllo"))
	assert.Zero(t, VisibleWidth(""))
}
