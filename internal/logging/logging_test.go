package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T, level Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Configure(&buf, level)
	t.Cleanup(func() { Configure(os.Stderr, LevelInfo) })
	return &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLoggerEmitsComponentAndEvent(t *testing.T) {
	buf := captureLogs(t, LevelDebug)

	New("plan").WithSession("s1").WithConversation("c1").Info("plan_proposed", map[string]any{"steps": 2})

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "plan", lines[0]["component"])
	assert.Equal(t, "plan_proposed", lines[0]["event"])
	assert.Equal(t, "s1", lines[0]["session"])
	assert.Equal(t, "c1", lines[0]["conversation"])
	extra := lines[0]["extra"].(map[string]any)
	assert.Equal(t, float64(2), extra["steps"])
}

func TestLoggerLevelFilter(t *testing.T) {
	buf := captureLogs(t, LevelWarn)

	l := New("exec")
	l.Debug("hidden", nil)
	l.Info("hidden", nil)
	l.Warn("visible", nil, errors.New("boom"))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "visible", lines[0]["event"])
	assert.Equal(t, "boom", lines[0]["error"])
}

func TestTimedEvent(t *testing.T) {
	buf := captureLogs(t, LevelInfo)

	New("runner").TimedEvent("turn", time.Now().Add(-50*time.Millisecond), nil)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.GreaterOrEqual(t, lines[0]["duration_ms"], float64(50))
}

func TestSanitizeArgs(t *testing.T) {
	long := strings.Repeat("x", 300)
	got := SanitizeArgs(map[string]any{
		"api_key": "sk-123",
		"text":    long,
		"chatId":  "42",
	})

	assert.Equal(t, "[REDACTED]", got["api_key"])
	assert.Len(t, got["text"], 200)
	assert.Equal(t, "42", got["chatId"])
	assert.Nil(t, SanitizeArgs(nil))
}

func TestRecoveryWrapError(t *testing.T) {
	_ = captureLogs(t, LevelError)

	var called bool
	h := NewRecoveryHandler("tool")
	h.OnPanic = func(any, string) { called = true }

	err := h.WrapError(func() error { panic("bad executor") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in tool: bad executor")
	assert.True(t, called)

	assert.NoError(t, h.WrapError(func() error { return nil }))
}
