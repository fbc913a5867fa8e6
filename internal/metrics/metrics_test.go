package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telebiz/agentcore/internal/domain"
)

func TestMetricsGlobal(t *testing.T) {
	assert.Same(t, Global(), Global())
}

func TestRecordTurn(t *testing.T) {
	m := New()

	m.RecordTurn(true, 120*time.Millisecond)
	m.RecordTurn(false, 80*time.Millisecond)

	assert.Equal(t, int64(2), m.Turns.Load())
	assert.Equal(t, int64(1), m.TurnErrors.Load())
	assert.Equal(t, int64(80), m.LastTurnMs.Load())
}

func TestRecordDecision(t *testing.T) {
	m := New()
	m.RecordDecision(true)
	m.RecordDecision(true)
	m.RecordDecision(false)
	assert.Equal(t, int64(2), m.Confirmations.Load())
	assert.Equal(t, int64(1), m.Cancellations.Load())
}

func TestRecordExecution(t *testing.T) {
	m := New()
	e := &domain.AgentExecution{
		ID:              "e1",
		Status:          domain.ExecutionPartial,
		AffectedChatIDs: []string{"1", "2"},
		Steps: []domain.ExecutionStep{
			{PlanStep: domain.PlanStep{Status: domain.StepCompleted}},
			{PlanStep: domain.PlanStep{Status: domain.StepFailed}},
			{PlanStep: domain.PlanStep{Status: domain.StepSkipped}},
		},
	}
	require.NoError(t, m.RecordExecution(context.Background(), e))

	assert.Equal(t, int64(1), m.Executions.Load())
	assert.Equal(t, int64(1), m.ExecutionsPartial.Load())
	assert.Equal(t, int64(1), m.StepsCompleted.Load())
	assert.Equal(t, int64(1), m.StepsFailed.Load())
	assert.Equal(t, int64(1), m.StepsSkipped.Load())
	assert.Equal(t, int64(2), m.ChatsAffected.Load())

	e.Undone = true
	require.NoError(t, m.RecordExecution(context.Background(), e))
	assert.Equal(t, int64(1), m.Executions.Load(), "undo is not a new execution")
	assert.Equal(t, int64(1), m.Undos.Load())
}

func TestRecordBackground(t *testing.T) {
	m := New()
	m.RecordReminderSweep(3, 1)
	m.RecordGraphWrite(true)
	m.RecordGraphWrite(false)

	assert.Equal(t, int64(3), m.RemindersNotified.Load())
	assert.Equal(t, int64(1), m.ReminderFailures.Load())
	assert.Equal(t, int64(2), m.GraphWrites.Load())
	assert.Equal(t, int64(1), m.GraphWriteErrors.Load())
}

func TestMetricsHandler(t *testing.T) {
	m := New()
	m.RecordTurn(true, time.Second)
	m.RecordDecision(false)

	rec := httptest.NewRecorder()
	m.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)

	for _, line := range []string{
		"telebiz_turns_total 1",
		"telebiz_last_turn_duration_ms 1000",
		"telebiz_plan_cancellations_total 1",
		"telebiz_executions_total 0",
		"# TYPE telebiz_uptime_seconds gauge",
		"# HELP telebiz_undos_total Executions undone",
	} {
		assert.Contains(t, text, line)
	}
}

func TestMetricsPrometheusFormat(t *testing.T) {
	var sb strings.Builder
	New().Write(&sb)

	for _, line := range strings.Split(sb.String(), "\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		assert.Len(t, parts, 2, "metric line %q", line)
		assert.True(t, strings.HasPrefix(parts[0], "telebiz_"), line)
	}
}

func TestConcurrentMetricsRecording(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordTurn(true, time.Millisecond)
			m.RecordGraphWrite(true)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), m.Turns.Load())
	assert.Equal(t, int64(50), m.GraphWrites.Load())
}
