package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telebiz/agentcore/internal/domain"
)

type echoTool struct {
	panics bool
}

func (e *echoTool) Definition() domain.ToolDefinition {
	return Def("echoChat", "Echo a chat id", Object(map[string]any{
		"chatId": String("Chat id"),
		"tone":   Enum("Tone", "formal", "casual"),
	}, "chatId"))
}

func (e *echoTool) Execute(ctx context.Context, args Args) domain.ToolResult {
	if e.panics {
		panic("boom")
	}
	return domain.OK(map[string]any{"chatId": args.String("chatId")}, "extra")
}

func (e *echoTool) AffectedChats(args Args) []string {
	return []string{args.String("chatId")}
}

func (e *echoTool) Inverse(args Args, _ domain.ToolResult) (domain.UndoAction, bool) {
	return domain.UndoAction{ToolName: "unechoChat", Args: args.Clone()}, true
}

// --- Set Tests ---

func TestSetExecute(t *testing.T) {
	s := NewSet("core")
	s.Register(&echoTool{}, false)

	tests := []struct {
		name    string
		args    Args
		success bool
		errMsg  string
	}{
		{name: "valid", args: Args{"chatId": "42"}, success: true},
		{name: "numeric chat id", args: Args{"chatId": float64(42)}, success: true},
		{name: "missing", args: Args{}, errMsg: "chatId is required"},
		{name: "blank", args: Args{"chatId": "  "}, errMsg: "chatId is required"},
		{name: "nil args", args: nil, errMsg: "chatId is required"},
		{name: "bad enum", args: Args{"chatId": "1", "tone": "angry"}, errMsg: "invalid tone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Execute(context.Background(), "echoChat", tt.args)
			assert.Equal(t, tt.success, res.Success)
			if !tt.success {
				assert.Contains(t, res.Error, tt.errMsg)
				assert.Equal(t, domain.ErrorKindValidation, res.ErrorKind)
			}
		})
	}
}

func TestSetMergesAffectedChats(t *testing.T) {
	s := NewSet("core")
	s.Register(&echoTool{}, false)

	res := s.Execute(context.Background(), "echoChat", Args{"chatId": "42"})
	require.True(t, res.Success)
	assert.Equal(t, []string{"42", "extra"}, res.AffectedChatIDs)
}

func TestSetRecoversPanics(t *testing.T) {
	s := NewSet("core")
	s.Register(&echoTool{panics: true}, false)

	res := s.Execute(context.Background(), "echoChat", Args{"chatId": "42"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "boom")
}

func TestSetUnknownToolSuggests(t *testing.T) {
	s := NewSet("crm")
	s.Register(&echoTool{}, false)

	res := s.Execute(context.Background(), "echoCht", Args{})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Unknown crm tool: echoCht")
	assert.Contains(t, res.Error, "Did you mean: echoChat?")
}

func TestSetReadOnlyAndInverse(t *testing.T) {
	s := NewSet("core")
	s.Register(&echoTool{}, true)

	assert.True(t, s.IsReadOnly("echoChat"))
	assert.Equal(t, []string{"echoChat"}, s.ReadOnlyNames())
	assert.Equal(t, []string{"echoChat"}, s.Names())

	undo, ok := s.Inverse("echoChat", Args{"chatId": "1"}, domain.OK(nil))
	require.True(t, ok)
	assert.Equal(t, "unechoChat", undo.ToolName)

	_, ok = s.Inverse("missing", Args{}, domain.OK(nil))
	assert.False(t, ok)
}

// --- Args Tests ---

func TestArgsAccessors(t *testing.T) {
	a := Args{
		"id":      float64(7),
		"idStr":   "12",
		"flag":    "true",
		"ids":     []any{float64(1), "2", "x"},
		"names":   []any{"a", "", "b"},
		"single":  "solo",
		"objects": []any{map[string]any{"action": "dismiss"}, "skip"},
	}

	assert.Equal(t, "7", a.String("id"))
	assert.Equal(t, int64(12), a.Int("idStr", 0))
	assert.Equal(t, int64(5), a.Int("missing", 5))
	b, ok := a.Bool("flag")
	assert.True(t, ok)
	assert.True(t, b)
	_, ok = a.Bool("missing")
	assert.False(t, ok)
	assert.Equal(t, []int64{1, 2}, a.Ints("ids"))
	assert.Equal(t, []string{"a", "b"}, a.Strings("names"))
	assert.Equal(t, []string{"solo"}, a.Strings("single"))
	assert.Len(t, a.Maps("objects"), 1)
}

func TestStringsAcceptsSingleNumbers(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want []string
	}{
		{"float", float64(42), []string{"42"}},
		{"int", 42, []string{"42"}},
		{"int64", int64(-1001), []string{"-1001"}},
		{"json number", json.Number("77"), []string{"77"}},
		{"blank", "  ", nil},
		{"bool", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Args{"chatId": tt.val}.Strings("chatId"))
		})
	}
}

func TestRequire(t *testing.T) {
	err := Args{"name": ""}.Require("name")
	require.Error(t, err)
	assert.Equal(t, "name is required", err.Error())
	assert.True(t, errors.Is(err, ErrInvalidArgs))

	var missing *MissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "name", missing.Field)

	assert.NoError(t, Args{"checked": false}.Require("checked"))
	assert.Error(t, Args{"ids": []any{}}.Require("ids"))
}

// --- Policy Tests ---

func TestPolicy(t *testing.T) {
	p, err := NewPolicy([]string{"crm/create*", "*/delete*"})
	require.NoError(t, err)

	assert.False(t, p.Allowed("crm", "createDeal"))
	assert.False(t, p.Allowed("core", "deleteChat"))
	assert.False(t, p.Allowed("reminders", "deleteReminder"))
	assert.True(t, p.Allowed("crm", "linkEntityToChat"))

	var nilPolicy *Policy
	assert.True(t, nilPolicy.Allowed("crm", "createDeal"))

	_, err = NewPolicy([]string{"crm/[create"})
	assert.Error(t, err)
}

func TestSuggest(t *testing.T) {
	got := Suggest("sendMsg", []string{"sendMessage", "listChats", "searchEntities"})
	require.NotEmpty(t, got)
	assert.Equal(t, "sendMessage", got[0])
	assert.Nil(t, Suggest("", []string{"a"}))
}
