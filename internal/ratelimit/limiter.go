// Package ratelimit paces outgoing tool calls so the user's messaging
// account never looks automated. One Limiter is shared by the whole process;
// each plan execution draws from it through its own Scope.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Config holds the limiter ceilings and delays.
type Config struct {
	MinDelay        time.Duration // between any two calls
	HeavyDelay      time.Duration // before a heavy call
	MaxPerExecution int
	MaxPerWindow    int
	Window          time.Duration
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		MinDelay:        500 * time.Millisecond,
		HeavyDelay:      1000 * time.Millisecond,
		MaxPerExecution: 20,
		MaxPerWindow:    30,
		Window:          time.Minute,
	}
}

// heavyTools get HeavyDelay. Tools may also declare themselves heavy.
var heavyTools = map[string]bool{
	"sendMessage":       true,
	"forwardMessages":   true,
	"deleteMessages":    true,
	"createGroup":       true,
	"addChatMembers":    true,
	"removeChatMember":  true,
	"archiveChat":       true,
	"deleteChat":        true,
	"createFolder":      true,
	"deleteFolder":      true,
	"batchSendMessage":  true,
	"batchArchive":      true,
	"batchAddToFolder":  true,
	"batchDismissTasks": true,
	"batchSnoozeTasks":  true,
}

// IsHeavy reports whether toolName is in the built-in heavy set.
func IsHeavy(toolName string) bool {
	return heavyTools[toolName]
}

// HeavyTools returns the built-in heavy set, sorted.
func HeavyTools() []string {
	out := make([]string, 0, len(heavyTools))
	for name := range heavyTools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Reason says which ceiling rejected a call.
type Reason string

const (
	ReasonExecution Reason = "execution"
	ReasonWindow    Reason = "window"
)

// RejectedError is returned when a call would exceed a ceiling.
type RejectedError struct {
	Reason     Reason
	Limit      int
	RetryAfter time.Duration
}

func (e *RejectedError) Error() string {
	if e.Reason == ReasonExecution {
		return fmt.Sprintf("Rate limit: Maximum %d API calls per request reached. Please be more specific or break your request into smaller parts.", e.Limit)
	}
	secs := int(math.Ceil(e.RetryAfter.Seconds()))
	return fmt.Sprintf("Rate limit: Too many API calls. Please wait %d seconds before trying again.", secs)
}

// State is a snapshot of the limiter counters.
type State struct {
	RequestCalls int         `json:"requestCalls"`
	Window       []time.Time `json:"window"`
	LastCall     time.Time   `json:"lastCall"`
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithSleep replaces the context-aware sleep used for the delay gate.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) { l.sleep = sleep }
}

// Limiter tracks the trailing call window shared by every execution.
type Limiter struct {
	cfg   Config
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	gate sync.Mutex // serializes Wait so the delay gate is exact

	mu       sync.Mutex
	window   []time.Time
	lastCall time.Time
}

// New creates a limiter.
func New(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{cfg: cfg, now: time.Now, sleep: sleepCtx}
	for _, o := range opts {
		o(l)
	}
	return l
}

var (
	global     *Limiter
	globalOnce sync.Once
)

// Global returns the process-wide limiter with default limits.
func Global() *Limiter {
	globalOnce.Do(func() {
		global = New(DefaultConfig())
	})
	return global
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Config returns the limiter configuration.
func (l *Limiter) Config() Config { return l.cfg }

// BeginExecution starts a fresh per-execution budget.
func (l *Limiter) BeginExecution() *Scope {
	return &Scope{limiter: l}
}

// Snapshot returns the shared window state.
func (l *Limiter) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := make([]time.Time, len(l.window))
	copy(w, l.window)
	return State{Window: w, LastCall: l.lastCall}
}

// prune drops window entries older than the window length. Caller holds mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.cfg.Window)
	i := 0
	for i < len(l.window) && l.window[i].Before(cutoff) {
		i++
	}
	l.window = l.window[i:]
}

// Scope is one execution's view of the limiter.
type Scope struct {
	limiter *Limiter
	mu      sync.Mutex
	calls   int
}

// Calls returns how many calls this scope has made.
func (s *Scope) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Snapshot returns the shared state plus this scope's call count.
func (s *Scope) Snapshot() State {
	st := s.limiter.Snapshot()
	st.RequestCalls = s.Calls()
	return st
}

// Wait blocks until toolName may run, then records the call. It returns a
// *RejectedError when a ceiling is reached and ctx.Err() when ctx ends
// during the delay. Nothing is recorded on either error.
func (s *Scope) Wait(ctx context.Context, toolName string, heavy bool) error {
	l := s.limiter
	l.gate.Lock()
	defer l.gate.Unlock()

	s.mu.Lock()
	calls := s.calls
	s.mu.Unlock()
	if calls >= l.cfg.MaxPerExecution {
		return &RejectedError{Reason: ReasonExecution, Limit: l.cfg.MaxPerExecution}
	}

	now := l.now()
	l.mu.Lock()
	l.prune(now)
	if len(l.window) >= l.cfg.MaxPerWindow {
		retry := l.window[0].Add(l.cfg.Window).Sub(now)
		l.mu.Unlock()
		return &RejectedError{Reason: ReasonWindow, Limit: l.cfg.MaxPerWindow, RetryAfter: retry}
	}
	last := l.lastCall
	l.mu.Unlock()

	delay := l.cfg.MinDelay
	if heavy || IsHeavy(toolName) {
		delay = l.cfg.HeavyDelay
	}
	if !last.IsZero() {
		if since := now.Sub(last); since < delay {
			if err := l.sleep(ctx, delay-since); err != nil {
				return err
			}
		}
	}

	at := l.now()
	l.mu.Lock()
	l.window = append(l.window, at)
	l.lastCall = at
	l.mu.Unlock()

	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return nil
}
