// Package thinking tracks the progress indicator shown while the agent
// works: whether it is busy, what it is doing and the steps so far.
package thinking

import (
	"fmt"
	"sync"
	"time"

	"github.com/telebiz/agentcore/internal/domain"
)

// Labels shown while tools are prepared and run.
const (
	ExecutingTools = "Executing tools"
)

// Preparing labels a turn that is streaming tool calls.
func Preparing(count int, name string) string {
	if count <= 1 {
		if name == "" {
			name = "tool"
		}
		return "Preparing " + name
	}
	return fmt.Sprintf("Preparing %d tools", count)
}

// Executing labels one running tool.
func Executing(toolName string) string {
	return "Executing " + toolName
}

// Snapshot is a point-in-time view of a Tracker.
type Snapshot struct {
	Thinking  bool          `json:"isThinking"`
	Label     string        `json:"currentStep,omitempty"`
	Steps     []string      `json:"steps"`
	StartedAt time.Time     `json:"startedAt"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	now      func() time.Time
	thinking bool
	label    string
	steps    []string
	started  time.Time
	calls    map[string]bool
	onChange func(Snapshot)
}

// New creates an idle tracker. onChange, if set, receives a snapshot after
// every change.
func New(onChange func(Snapshot)) *Tracker {
	return &Tracker{now: time.Now, onChange: onChange, calls: map[string]bool{}}
}

// WithClock overrides time.Now.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func (t *Tracker) changed() {
	if t.onChange == nil {
		return
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()
	t.onChange(snap)
	t.mu.Lock()
}

// Start begins (or restarts) a thinking phase with label.
func (t *Tracker) Start(label string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.thinking = true
	t.started = t.now()
	t.label = label
	t.changed()
}

// NewTurn forgets the tool calls counted for the previous model turn.
func (t *Tracker) NewTurn() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = map[string]bool{}
}

// Step records label as the current step and appends it to the history
// when it is new.
func (t *Tracker) Step(label string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.thinking {
		t.thinking = true
		t.started = t.now()
	}
	t.label = label
	if !contains(t.steps, label) {
		t.steps = append(t.steps, label)
	}
	t.changed()
}

// Pause hides the indicator while content streams, keeping the history.
func (t *Tracker) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.thinking {
		return
	}
	t.thinking = false
	t.changed()
}

// Stop ends the phase and clears the history.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.thinking = false
	t.label = ""
	t.steps = nil
	t.calls = map[string]bool{}
	t.changed()
}

// Observe updates the tracker from one streamed delta.
func (t *Tracker) Observe(d domain.StreamDelta) {
	switch d.Type {
	case domain.DeltaContent:
		if d.Content != "" {
			t.Pause()
		}
	case domain.DeltaThinkingStart:
		t.Start(d.Label)
	case domain.DeltaReasoning:
		if d.Label != "" {
			t.Step(d.Label)
		}
	case domain.DeltaToolCall:
		if d.ToolCall == nil || d.ToolCall.ID == "" {
			return
		}
		t.mu.Lock()
		isNew := !t.calls[d.ToolCall.ID]
		t.calls[d.ToolCall.ID] = true
		count := len(t.calls)
		t.mu.Unlock()
		if isNew || d.ToolCall.Name != "" {
			t.Start(Preparing(count, d.ToolCall.Name))
		}
	}
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	s := Snapshot{
		Thinking:  t.thinking,
		Label:     t.label,
		Steps:     append([]string{}, t.steps...),
		StartedAt: t.started,
	}
	if t.thinking {
		s.Elapsed = t.now().Sub(t.started)
	}
	return s
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
