// Package metrics provides a simple Prometheus-compatible metrics endpoint.
package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/telebiz/agentcore/internal/domain"
)

// Metrics holds runtime counters of the agent.
type Metrics struct {
	// Turns
	Turns         atomic.Int64
	TurnErrors    atomic.Int64
	LastTurnMs    atomic.Int64
	Confirmations atomic.Int64
	Cancellations atomic.Int64

	// Executions
	Executions        atomic.Int64
	ExecutionsFailed  atomic.Int64
	ExecutionsPartial atomic.Int64
	StepsCompleted    atomic.Int64
	StepsFailed       atomic.Int64
	StepsSkipped      atomic.Int64
	ChatsAffected     atomic.Int64
	Undos             atomic.Int64

	// Background work
	RemindersNotified atomic.Int64
	ReminderFailures  atomic.Int64
	GraphWrites       atomic.Int64
	GraphWriteErrors  atomic.Int64

	startTime time.Time
}

var (
	global     *Metrics
	globalOnce sync.Once
)

// New returns an empty instance.
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// Global returns the process-wide instance.
func Global() *Metrics {
	globalOnce.Do(func() {
		global = New()
	})
	return global
}

// RecordTurn records one finished agent turn.
func (m *Metrics) RecordTurn(success bool, d time.Duration) {
	m.Turns.Add(1)
	if !success {
		m.TurnErrors.Add(1)
	}
	m.LastTurnMs.Store(d.Milliseconds())
}

// RecordDecision records the user's answer to a confirmation request.
func (m *Metrics) RecordDecision(confirmed bool) {
	if confirmed {
		m.Confirmations.Add(1)
	} else {
		m.Cancellations.Add(1)
	}
}

// RecordExecution counts a finished execution. Recording the same
// execution again after an undo only counts the undo.
func (m *Metrics) RecordExecution(_ context.Context, e *domain.AgentExecution) error {
	if e.Undone {
		m.Undos.Add(1)
		return nil
	}
	m.Executions.Add(1)
	switch e.Status {
	case domain.ExecutionFailed:
		m.ExecutionsFailed.Add(1)
	case domain.ExecutionPartial:
		m.ExecutionsPartial.Add(1)
	}
	for _, s := range e.Steps {
		switch s.Status {
		case domain.StepCompleted:
			m.StepsCompleted.Add(1)
		case domain.StepFailed:
			m.StepsFailed.Add(1)
		case domain.StepSkipped:
			m.StepsSkipped.Add(1)
		}
	}
	m.ChatsAffected.Add(int64(len(e.AffectedChatIDs)))
	return nil
}

// RecordReminderSweep records the outcome of one reminder sweep.
func (m *Metrics) RecordReminderSweep(notified, failed int) {
	m.RemindersNotified.Add(int64(notified))
	m.ReminderFailures.Add(int64(failed))
}

// RecordGraphWrite records an audit graph write attempt.
func (m *Metrics) RecordGraphWrite(success bool) {
	m.GraphWrites.Add(1)
	if !success {
		m.GraphWriteErrors.Add(1)
	}
}

func write(w io.Writer, name, kind, help string, value any) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
	switch v := value.(type) {
	case float64:
		fmt.Fprintf(w, "%s %.2f\n\n", name, v)
	default:
		fmt.Fprintf(w, "%s %d\n\n", name, v)
	}
}

// Write renders all metrics in the Prometheus text format.
func (m *Metrics) Write(w io.Writer) {
	write(w, "telebiz_uptime_seconds", "gauge", "Time since the agent started", time.Since(m.startTime).Seconds())

	write(w, "telebiz_turns_total", "counter", "Agent turns run", m.Turns.Load())
	write(w, "telebiz_turn_errors_total", "counter", "Agent turns that ended in an error", m.TurnErrors.Load())
	write(w, "telebiz_last_turn_duration_ms", "gauge", "Duration of the last agent turn", m.LastTurnMs.Load())
	write(w, "telebiz_plan_confirmations_total", "counter", "Plans confirmed by the user", m.Confirmations.Load())
	write(w, "telebiz_plan_cancellations_total", "counter", "Plans cancelled by the user", m.Cancellations.Load())

	write(w, "telebiz_executions_total", "counter", "Executions recorded", m.Executions.Load())
	write(w, "telebiz_executions_failed_total", "counter", "Executions with no completed step", m.ExecutionsFailed.Load())
	write(w, "telebiz_executions_partial_total", "counter", "Executions with some failed steps", m.ExecutionsPartial.Load())
	write(w, "telebiz_steps_completed_total", "counter", "Execution steps completed", m.StepsCompleted.Load())
	write(w, "telebiz_steps_failed_total", "counter", "Execution steps failed", m.StepsFailed.Load())
	write(w, "telebiz_steps_skipped_total", "counter", "Execution steps skipped", m.StepsSkipped.Load())
	write(w, "telebiz_chats_affected_total", "counter", "Chats changed by executions", m.ChatsAffected.Load())
	write(w, "telebiz_undos_total", "counter", "Executions undone", m.Undos.Load())

	write(w, "telebiz_reminders_notified_total", "counter", "Due reminders moved to the task inbox", m.RemindersNotified.Load())
	write(w, "telebiz_reminder_failures_total", "counter", "Due reminders that failed to notify", m.ReminderFailures.Load())
	write(w, "telebiz_graph_writes_total", "counter", "Audit graph write attempts", m.GraphWrites.Load())
	write(w, "telebiz_graph_write_errors_total", "counter", "Audit graph write failures", m.GraphWriteErrors.Load())
}

// Handler serves the metrics.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m.Write(w)
	}
}
