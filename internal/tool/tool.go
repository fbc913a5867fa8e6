// Package tool defines the executor contract shared by every agent tool and
// the Set type that groups executors, validates their input and dispatches.
package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/logging"
)

// Executor is the interface all tools must implement. Execute never panics
// on bad input and never returns a Go error: failures are ToolResults.
type Executor interface {
	Definition() domain.ToolDefinition
	Execute(ctx context.Context, args Args) domain.ToolResult
}

// ChatAffecter is implemented by tools that know up front which chats a
// call touches. The declaration is merged with ids carried by the result.
type ChatAffecter interface {
	AffectedChats(args Args) []string
}

// Inverter is implemented by tools whose effect can be reversed by
// another tool call. ok is false when the call has no safe inverse. A zero
// UndoAction with ok true means the call changed nothing.
type Inverter interface {
	Inverse(args Args, result domain.ToolResult) (undo domain.UndoAction, ok bool)
}

// ArgValidator is implemented by tools that check their own input and
// want their own error wording instead of the schema-driven Validate.
type ArgValidator interface {
	ValidateArgs(args Args) error
}

// Heavy marks tools that get the longer rate-limit delay.
type Heavy interface {
	Heavy() bool
}

// Set holds a named group of tools with a read-only subset.
type Set struct {
	name     string
	tools    map[string]Executor
	order    []string
	readOnly map[string]bool
	log      *logging.Logger
}

// NewSet creates an empty tool set.
func NewSet(name string) *Set {
	return &Set{
		name:     name,
		tools:    make(map[string]Executor),
		readOnly: make(map[string]bool),
		log:      logging.New("tool"),
	}
}

// Name returns the set name.
func (s *Set) Name() string { return s.name }

// Register adds a tool. Registering a name twice replaces the first tool.
func (s *Set) Register(t Executor, readOnly bool) {
	name := t.Definition().Name
	if _, exists := s.tools[name]; !exists {
		s.order = append(s.order, name)
	}
	s.tools[name] = t
	s.readOnly[name] = readOnly
}

// Get returns the tool registered under name.
func (s *Set) Get(name string) (Executor, bool) {
	t, ok := s.tools[name]
	return t, ok
}

// Has reports whether name is registered.
func (s *Set) Has(name string) bool {
	_, ok := s.tools[name]
	return ok
}

// Names returns tool names in registration order.
func (s *Set) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Definitions returns tool definitions in registration order.
func (s *Set) Definitions() []domain.ToolDefinition {
	out := make([]domain.ToolDefinition, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tools[name].Definition())
	}
	return out
}

// IsReadOnly reports whether name is in the read-only subset.
func (s *Set) IsReadOnly(name string) bool {
	return s.readOnly[name]
}

// ReadOnlyNames returns the read-only subset, sorted.
func (s *Set) ReadOnlyNames() []string {
	var out []string
	for name, ro := range s.readOnly {
		if ro {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// AffectedChats returns the chats a call declares it will touch.
func (s *Set) AffectedChats(name string, args Args) []string {
	t, ok := s.tools[name]
	if !ok {
		return nil
	}
	if a, ok := t.(ChatAffecter); ok {
		return domain.MergeChatIDs(a.AffectedChats(args))
	}
	return nil
}

// Inverse derives the undo action for a completed call.
func (s *Set) Inverse(name string, args Args, result domain.ToolResult) (domain.UndoAction, bool) {
	t, ok := s.tools[name]
	if !ok {
		return domain.UndoAction{}, false
	}
	if inv, ok := t.(Inverter); ok {
		return inv.Inverse(args, result)
	}
	return domain.UndoAction{}, false
}

// IsHeavy reports whether name declares itself heavy.
func (s *Set) IsHeavy(name string) bool {
	if h, ok := s.tools[name].(Heavy); ok {
		return h.Heavy()
	}
	return false
}

// Execute validates args against the tool schema, runs the tool with panic
// recovery and merges declared affected chats into the result.
func (s *Set) Execute(ctx context.Context, name string, args Args) domain.ToolResult {
	t, ok := s.tools[name]
	if !ok {
		msg := fmt.Sprintf("Unknown %s tool: %s", s.name, name)
		if sugg := Suggest(name, s.order); len(sugg) > 0 {
			msg += ". Did you mean: " + strings.Join(sugg, ", ") + "?"
		}
		return domain.Fail(domain.ErrorKindValidation, msg)
	}
	if args == nil {
		args = Args{}
	}

	var err error
	if v, ok := t.(ArgValidator); ok {
		err = v.ValidateArgs(args)
	} else {
		err = Validate(t.Definition(), args)
	}
	if err != nil {
		s.log.ToolCall(name, args, false, err.Error(), 0)
		return domain.Fail(domain.ErrorKindValidation, err.Error())
	}

	start := time.Now()
	var result domain.ToolResult
	recovery := logging.NewRecoveryHandler("tool." + s.name)
	if err := recovery.WrapError(func() error {
		result = t.Execute(ctx, args)
		return nil
	}); err != nil {
		result = domain.Fail(domain.ErrorKindRemote, err.Error())
	}

	if result.Success {
		result.AffectedChatIDs = domain.MergeChatIDs(s.AffectedChats(name, args), result.AffectedChatIDs)
	}
	s.log.ToolCall(name, args, result.Success, result.Error, time.Since(start))
	return result
}

// ToolError is a sentinel error for tool dispatch failures.
type ToolError string

func (e ToolError) Error() string { return string(e) }

const (
	ErrToolNotFound ToolError = "tool not found"
	ErrInvalidArgs  ToolError = "invalid arguments"
)
