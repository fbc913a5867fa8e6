package plan

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/testutil"
	"github.com/telebiz/agentcore/internal/tool"
)

// classifier marks the listed tools read-only and declares recipientIds.
type classifier map[string]bool

func (c classifier) IsReadOnly(name string) bool { return c[name] }

func (c classifier) AffectedChats(_ string, args tool.Args) []string {
	return args.Strings("recipientIds")
}

var readOnly = classifier{"listChats": true, "getChatInfo": true, "searchEntities": true}

func newEngine() *Engine {
	n := 0
	return NewEngine(readOnly,
		WithClock(func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }),
		WithIDs(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}))
}

func call(id, name string, args map[string]any) domain.ToolCall {
	return testutil.Call(id, name, args)
}

// --- Propose Tests ---

func TestProposeStatusByMode(t *testing.T) {
	readCall := call("t1", "listChats", map[string]any{})
	writeCall := call("t2", "sendMessage", map[string]any{"chatId": "42", "text": "hi"})

	tests := []struct {
		name  string
		mode  domain.Mode
		calls []domain.ToolCall
		want  domain.PlanStatus
		err   error
	}{
		{"agent read-only runs", domain.ModeAgent, []domain.ToolCall{readCall}, domain.PlanExecuting, nil},
		{"agent write confirms", domain.ModeAgent, []domain.ToolCall{readCall, writeCall}, domain.PlanAwaitingConfirmation, nil},
		{"plan write confirms", domain.ModePlan, []domain.ToolCall{writeCall}, domain.PlanAwaitingConfirmation, nil},
		{"plan read-only confirms", domain.ModePlan, []domain.ToolCall{readCall}, domain.PlanAwaitingConfirmation, nil},
		{"ask read-only confirms", domain.ModeAsk, []domain.ToolCall{readCall}, domain.PlanAwaitingConfirmation, nil},
		{"ask write rejected", domain.ModeAsk, []domain.ToolCall{readCall, writeCall}, "", ErrReadOnlyMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine()
			p, err := e.Propose("conv", "", tt.calls, tt.mode)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.Nil(t, e.Current("conv"))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Status)
			assert.Equal(t, tt.mode, p.Mode)
			assert.Equal(t, "Executing requested actions", p.Description)
			for _, s := range p.Steps {
				assert.Equal(t, domain.StepPending, s.Status)
				assert.Equal(t, !readOnly[s.ToolName], s.Destructive)
				assert.Equal(t, "Execute "+s.ToolName, s.Description)
			}
		})
	}
}

func TestImmediateLookups(t *testing.T) {
	reads := []domain.ToolCall{call("t1", "listChats", nil), call("t2", "getChatInfo", map[string]any{"chatId": "1"})}

	for _, mode := range []domain.Mode{domain.ModeAsk, domain.ModePlan, domain.ModeAgent} {
		e := newEngine()
		require.True(t, e.AllReadOnly(reads))
		p, err := e.Immediate("conv", reads, mode)
		require.NoError(t, err, mode)
		assert.Equal(t, domain.PlanExecuting, p.Status, mode)
		assert.False(t, p.IsDestructive())
	}

	e := newEngine()
	mixed := append(reads, call("t3", "deleteChat", map[string]any{"chatId": "1"}))
	assert.False(t, e.AllReadOnly(mixed))
	_, err := e.Immediate("conv", mixed, domain.ModeAgent)
	assert.ErrorIs(t, err, ErrReadOnlyMode)
}

func TestProposeRejectsBadInput(t *testing.T) {
	e := newEngine()

	_, err := e.Propose("conv", "", nil, domain.ModeAgent)
	assert.Error(t, err)

	_, err = e.Propose("conv", "", []domain.ToolCall{call("t1", "listChats", nil)}, "yolo")
	assert.Error(t, err)

	_, err = e.Propose("conv", "", []domain.ToolCall{{ID: "t1", Name: "listChats", Arguments: "{oops"}}, domain.ModeAgent)
	assert.Error(t, err)
}

func TestProposeWhileInProgress(t *testing.T) {
	e := newEngine()
	write := []domain.ToolCall{call("t1", "deleteChat", map[string]any{"chatId": "1"})}

	p, err := e.Propose("conv", "delete", write, domain.ModeAgent)
	require.NoError(t, err)

	_, err = e.Propose("conv", "again", write, domain.ModeAgent)
	assert.ErrorIs(t, err, ErrPlanInProgress)

	// other conversations are independent
	_, err = e.Propose("other", "", write, domain.ModeAgent)
	assert.NoError(t, err)

	require.NoError(t, e.Cancel(p.ID))
	_, err = e.Propose("conv", "again", write, domain.ModeAgent)
	assert.NoError(t, err)
}

func TestProposePrunesFinishedPlans(t *testing.T) {
	e := newEngine()
	write := []domain.ToolCall{call("t1", "deleteChat", map[string]any{"chatId": "1"})}

	first, err := e.Propose("conv", "delete", write, domain.ModeAgent)
	require.NoError(t, err)
	require.NoError(t, e.Cancel(first.ID))

	// still readable while current
	got, err := e.Get(first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanCancelled, got.Status)

	for i := 0; i < 5; i++ {
		p, err := e.Propose("conv", "again", write, domain.ModeAgent)
		require.NoError(t, err)
		require.NoError(t, e.Cancel(p.ID))
	}
	_, err = e.Propose("other", "", write, domain.ModeAgent)
	require.NoError(t, err)

	_, err = e.Get(first.ID)
	assert.ErrorIs(t, err, ErrPlanNotFound)
	e.mu.Lock()
	assert.Len(t, e.plans, 2)
	e.mu.Unlock()
	assert.Equal(t, domain.PlanCancelled, e.Current("conv").Status)
}

// --- Confirmation Tests ---

func TestConfirmationRequestImpact(t *testing.T) {
	e := newEngine()
	p, err := e.Propose("conv", "Tidy up", []domain.ToolCall{
		call("t1", "sendMessage", map[string]any{"chatId": "42", "text": "hi"}),
		call("t2", "batchSendMessage", map[string]any{"chatIds": []any{"1", "2", "42"}, "text": "x"}),
		call("t3", "forward", map[string]any{"peerId": "7", "recipientIds": []any{"9"}}),
		call("t4", "listChats", map[string]any{}),
	}, domain.ModeAgent)
	require.NoError(t, err)

	req, err := e.ConfirmationRequest(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, req.PlanID)
	assert.Equal(t, "Tidy up", req.Description)
	assert.Len(t, req.Steps, 4)
	assert.True(t, req.EstimatedImpact.IsDestructive)
	assert.Equal(t, 4, req.EstimatedImpact.MessagesAffected)
	assert.ElementsMatch(t, []string{"42", "1", "2", "7", "9"}, req.EstimatedImpact.ChatsAffected)

	require.NoError(t, e.Confirm(p.ID))
	_, err = e.ConfirmationRequest(p.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAwaitConfirm(t *testing.T) {
	e := newEngine()
	p, err := e.Propose("conv", "", []domain.ToolCall{call("t1", "deleteChat", map[string]any{"chatId": "1"})}, domain.ModeAgent)
	require.NoError(t, err)

	done := make(chan domain.PlanStatus, 1)
	go func() {
		status, err := e.Await(context.Background(), p.ID)
		assert.NoError(t, err)
		done <- status
	}()

	select {
	case <-done:
		t.Fatal("Await returned before a decision")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, e.Confirm(p.ID))
	select {
	case status := <-done:
		assert.Equal(t, domain.PlanExecuting, status)
	case <-time.After(time.Second):
		t.Fatal("Await did not return after Confirm")
	}

	assert.ErrorIs(t, e.Confirm(p.ID), ErrInvalidTransition)
	assert.ErrorIs(t, e.Cancel(p.ID), ErrInvalidTransition)
}

func TestAwaitCancel(t *testing.T) {
	e := newEngine()
	p, err := e.Propose("conv", "", []domain.ToolCall{
		call("t1", "deleteChat", map[string]any{"chatId": "1"}),
		call("t2", "deleteChat", map[string]any{"chatId": "2"}),
	}, domain.ModePlan)
	require.NoError(t, err)

	require.NoError(t, e.Cancel(p.ID))
	status, err := e.Await(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanCancelled, status)

	cur := e.Current("conv")
	for _, s := range cur.Steps {
		assert.Equal(t, domain.StepSkipped, s.Status)
	}
	assert.ErrorIs(t, e.StartStep(p.ID, cur.Steps[0].ID), ErrInvalidTransition)
}

func TestAwaitContext(t *testing.T) {
	e := newEngine()
	p, err := e.Propose("conv", "", []domain.ToolCall{call("t1", "deleteChat", map[string]any{"chatId": "1"})}, domain.ModeAgent)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = e.Await(ctx, p.ID)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	_, err = e.Await(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestForgetWakesWaiter(t *testing.T) {
	e := newEngine()
	p, err := e.Propose("conv", "", []domain.ToolCall{call("t1", "deleteChat", map[string]any{"chatId": "1"})}, domain.ModeAgent)
	require.NoError(t, err)

	done := make(chan domain.PlanStatus, 1)
	go func() {
		status, _ := e.Await(context.Background(), p.ID)
		done <- status
	}()
	time.Sleep(10 * time.Millisecond)
	e.Forget("conv")

	select {
	case status := <-done:
		assert.Equal(t, domain.PlanCancelled, status)
	case <-time.After(time.Second):
		t.Fatal("waiter not released")
	}
	assert.Nil(t, e.Current("conv"))
	assert.Empty(t, e.Pending())
}

// --- Step Tests ---

func TestStepLifecycle(t *testing.T) {
	e := newEngine()
	p, err := e.Propose("conv", "", []domain.ToolCall{
		call("t1", "listChats", nil),
		call("t2", "getChatInfo", map[string]any{"chatId": "1"}),
	}, domain.ModeAgent)
	require.NoError(t, err)
	require.Equal(t, domain.PlanExecuting, p.Status)
	s1, s2 := p.Steps[0].ID, p.Steps[1].ID

	assert.ErrorIs(t, e.FinishStep(p.ID, s1, domain.OK(nil)), ErrInvalidTransition, "pending cannot complete")
	require.NoError(t, e.StartStep(p.ID, s1))
	require.NoError(t, e.FinishStep(p.ID, s1, domain.OK("ok")))
	assert.ErrorIs(t, e.StartStep(p.ID, s1), ErrInvalidTransition, "terminal stays terminal")
	require.NoError(t, e.SkipStep(p.ID, s2))
	assert.ErrorIs(t, e.SkipStep(p.ID, "nope"), ErrStepNotFound)

	require.NoError(t, e.MarkFinished(p.ID, domain.PlanCompleted))
	assert.Error(t, e.MarkFinished(p.ID, domain.PlanFailed))

	got, err := e.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepCompleted, got.Steps[0].Status)
	assert.Equal(t, "ok", got.Steps[0].Result.Data)
	assert.Equal(t, domain.StepSkipped, got.Steps[1].Status)
	assert.Equal(t, domain.PlanCompleted, got.Status)
}

func TestFailStepFromPending(t *testing.T) {
	e := newEngine()
	p, err := e.Propose("conv", "", []domain.ToolCall{call("t1", "listChats", nil)}, domain.ModeAgent)
	require.NoError(t, err)

	require.NoError(t, e.FailStep(p.ID, p.Steps[0].ID, domain.Fail(domain.ErrorKindRateLimit, "slow down")))
	got, _ := e.Get(p.ID)
	assert.Equal(t, domain.StepFailed, got.Steps[0].Status)
	assert.Equal(t, "slow down", got.Steps[0].Result.Error)
}

// --- Create Guard Tests ---

func TestCreateAfterLinkNotFound(t *testing.T) {
	e := newEngine()
	p, err := e.Propose("conv", "", []domain.ToolCall{
		call("t1", "linkEntityToChat", map[string]any{"chatId": "1", "entityId": "999"}),
		call("t2", "createContact", map[string]any{"name": "Bob"}),
	}, domain.ModeAgent)
	require.NoError(t, err)
	link, create := p.Steps[0].ID, p.Steps[1].ID
	require.NoError(t, e.Confirm(p.ID))

	require.NoError(t, e.CheckStep(p.ID, create), "nothing has failed yet")
	require.NoError(t, e.StartStep(p.ID, link))
	require.NoError(t, e.FinishStep(p.ID, link, domain.Fail(domain.ErrorKindNotFound, "contact 999 not found")))

	assert.True(t, e.CreateLocked("conv"))
	assert.ErrorIs(t, e.CheckStep(p.ID, create), ErrCreateAfterNotFound)
	require.NoError(t, e.MarkFinished(p.ID, domain.PlanFailed))

	_, err = e.Propose("conv", "", []domain.ToolCall{call("t3", "createDeal", map[string]any{"title": "x"})}, domain.ModeAgent)
	assert.ErrorIs(t, err, ErrCreateAfterNotFound)
	assert.False(t, e.CreateLocked("other"))

	e.NoteUserMessage("conv")
	_, err = e.Propose("conv", "", []domain.ToolCall{call("t3", "createDeal", map[string]any{"title": "x"})}, domain.ModeAgent)
	assert.NoError(t, err)
}

func TestLinkRemoteFailureDoesNotLock(t *testing.T) {
	e := newEngine()
	p, err := e.Propose("conv", "", []domain.ToolCall{call("t1", "linkEntityToChat", map[string]any{"chatId": "1"})}, domain.ModeAgent)
	require.NoError(t, err)
	require.NoError(t, e.Confirm(p.ID))
	require.NoError(t, e.StartStep(p.ID, p.Steps[0].ID))
	require.NoError(t, e.FinishStep(p.ID, p.Steps[0].ID, domain.Fail(domain.ErrorKindRemote, "timeout")))
	assert.False(t, e.CreateLocked("conv"))
}

func TestChatsFromArgs(t *testing.T) {
	got := ChatsFromArgs(map[string]any{
		"chatId":      "1",
		"chatIds":     []any{"2", "1"},
		"recipientId": float64(3),
		"peerId":      "",
		"other":       "9",
	})
	assert.Equal(t, []string{"1", "2", "3"}, got)
}
