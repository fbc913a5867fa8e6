// Package logging provides structured JSON logging for agent components.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var (
	baseMu sync.RWMutex
	base   = newBase(os.Stderr, levelFromEnv())
)

func newBase(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func levelFromEnv() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("TELEBIZ_LOG_LEVEL")))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Configure replaces the output and minimum level used by every Logger.
// Loggers created earlier pick up the change on their next event.
func Configure(w io.Writer, level Level) {
	lvl, err := zerolog.ParseLevel(string(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	baseMu.Lock()
	base = newBase(w, lvl)
	baseMu.Unlock()
}

// Logger provides structured logging
type Logger struct {
	component    string
	session      string
	conversation string
}

// New creates a new logger for a component
func New(component string) *Logger {
	return &Logger{
		component: component,
		session:   os.Getenv("TELEBIZ_SESSION_ID"),
	}
}

// WithSession sets the agent session context
func (l *Logger) WithSession(session string) *Logger {
	cp := *l
	cp.session = session
	return &cp
}

// WithConversation sets the conversation context
func (l *Logger) WithConversation(conversation string) *Logger {
	cp := *l
	cp.conversation = conversation
	return &cp
}

func (l *Logger) event(level zerolog.Level, event string) *zerolog.Event {
	baseMu.RLock()
	zl := base
	baseMu.RUnlock()

	e := zl.WithLevel(level).Str("component", l.component).Str("event", event)
	if l.session != "" {
		e = e.Str("session", l.session)
	}
	if l.conversation != "" {
		e = e.Str("conversation", l.conversation)
	}
	return e
}

// log emits a structured log event
func (l *Logger) log(level zerolog.Level, event string, extra map[string]any, err error) {
	e := l.event(level, event)
	if err != nil {
		e = e.Err(err)
	}
	if len(extra) > 0 {
		e = e.Interface("extra", extra)
	}
	e.Send()
}

// Debug logs a debug event
func (l *Logger) Debug(event string, extra map[string]any) {
	l.log(zerolog.DebugLevel, event, extra, nil)
}

// Info logs an info event
func (l *Logger) Info(event string, extra map[string]any) {
	l.log(zerolog.InfoLevel, event, extra, nil)
}

// Warn logs a warning event
func (l *Logger) Warn(event string, extra map[string]any, err error) {
	l.log(zerolog.WarnLevel, event, extra, err)
}

// Error logs an error event
func (l *Logger) Error(event string, extra map[string]any, err error) {
	l.log(zerolog.ErrorLevel, event, extra, err)
}

// TimedEvent logs an event with duration
func (l *Logger) TimedEvent(event string, start time.Time, extra map[string]any) {
	e := l.event(zerolog.InfoLevel, event).Int64("duration_ms", time.Since(start).Milliseconds())
	if len(extra) > 0 {
		e = e.Interface("extra", extra)
	}
	e.Send()
}

// ToolCall logs one tool dispatch with sanitized arguments.
func (l *Logger) ToolCall(name string, args map[string]any, success bool, errMsg string, duration time.Duration) {
	level := zerolog.InfoLevel
	if !success {
		level = zerolog.WarnLevel
	}
	e := l.event(level, "tool_call").
		Str("tool", name).
		Bool("success", success).
		Int64("duration_ms", duration.Milliseconds()).
		Interface("args", SanitizeArgs(args))
	if errMsg != "" {
		e = e.Str("error", errMsg)
	}
	e.Send()
}

// SanitizeArgs redacts credentials and truncates long free text so
// message bodies do not end up verbatim in logs.
func SanitizeArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	safe := make(map[string]any, len(args))
	for k, v := range args {
		switch strings.ToLower(k) {
		case "content", "text", "body", "notecontent", "message":
			if s, ok := v.(string); ok && len(s) > 200 {
				safe[k] = s[:197] + "..."
			} else {
				safe[k] = v
			}
		case "password", "secret", "token", "key", "api_key", "apikey":
			safe[k] = "[REDACTED]"
		default:
			safe[k] = v
		}
	}
	return safe
}
