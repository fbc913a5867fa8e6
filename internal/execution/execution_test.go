package execution

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telebiz/agentcore/internal/chattool"
	"github.com/telebiz/agentcore/internal/dispatch"
	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/integrations"
	"github.com/telebiz/agentcore/internal/plan"
	"github.com/telebiz/agentcore/internal/ratelimit"
	"github.com/telebiz/agentcore/internal/testutil"
	"github.com/telebiz/agentcore/internal/tool"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return epoch }

func noSleep(context.Context, time.Duration) error { return nil }

func testLimiter(cfg ratelimit.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg, ratelimit.WithClock(fixedNow), ratelimit.WithSleep(noSleep))
}

func fastConfig() ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	cfg.MinDelay = 0
	cfg.HeavyDelay = 0
	return cfg
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

type fixture struct {
	messenger *testutil.FakeMessenger
	tasks     *testutil.FakeTasks
	plans     *plan.Engine
	engine    *Engine
	limiter   *ratelimit.Limiter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		messenger: testutil.NewFakeMessenger(
			integrations.Chat{ID: "42", Title: "Carol", Type: "private"},
			integrations.Chat{ID: "c1", Title: "Acme Deal", Type: "group"},
			integrations.Chat{ID: "c2", Title: "Bob", Type: "private", Archived: true},
		),
		tasks:   testutil.NewFakeTasks(),
		limiter: testLimiter(fastConfig()),
	}
	core := chattool.NewSet(chattool.Deps{Messenger: f.messenger, Tasks: f.tasks})
	d := dispatch.New(core, nil, nil)
	f.plans = plan.NewEngine(d, plan.WithClock(fixedNow), plan.WithIDs(sequentialIDs()))
	f.engine = New(f.plans, d, f.limiter, WithClock(fixedNow), WithIDs(func() string { return "exec-1" }))
	return f
}

// released proposes calls in agent mode and confirms when needed.
func released(t *testing.T, plans *plan.Engine, calls ...domain.ToolCall) *domain.AgentPlan {
	t.Helper()
	p, err := plans.Propose("conv-1", "", calls, domain.ModeAgent)
	require.NoError(t, err)
	if p.Status == domain.PlanAwaitingConfirmation {
		require.NoError(t, plans.Confirm(p.ID))
	}
	p, err = plans.Get(p.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PlanExecuting, p.Status)
	return p
}

func call(id, name, args string) domain.ToolCall {
	return domain.ToolCall{ID: id, Name: name, Arguments: args}
}

func runToEnd(t *testing.T, e *Engine, p *domain.AgentPlan, opts Options) ([]domain.ExecutionStep, *domain.AgentExecution) {
	t.Helper()
	ch, err := e.Run(context.Background(), p, opts)
	require.NoError(t, err)
	var updates []domain.ExecutionStep
	for s := range ch {
		updates = append(updates, s)
	}
	exec := e.Result()
	require.NotNil(t, exec)
	return updates, exec
}

func statuses(exec *domain.AgentExecution) []domain.StepStatus {
	out := make([]domain.StepStatus, len(exec.Steps))
	for i, s := range exec.Steps {
		out[i] = s.Status
	}
	return out
}

// scriptedDispatcher answers every call with a fixed result and can run a
// hook before answering.
type scriptedDispatcher struct {
	mu       sync.Mutex
	results  map[string]domain.ToolResult
	readOnly map[string]bool
	inverse  map[string]domain.UndoAction
	before   func(name string, n int)
	calls    []string
}

func (d *scriptedDispatcher) Execute(_ context.Context, name string, _ tool.Args) domain.ToolResult {
	d.mu.Lock()
	d.calls = append(d.calls, name)
	n := len(d.calls)
	hook := d.before
	d.mu.Unlock()
	if hook != nil {
		hook(name, n)
	}
	if r, ok := d.results[name]; ok {
		return r
	}
	return domain.OK(map[string]any{"ok": true})
}

func (d *scriptedDispatcher) Inverse(name string, _ tool.Args, _ domain.ToolResult) (domain.UndoAction, bool) {
	u, ok := d.inverse[name]
	return u, ok
}

func (d *scriptedDispatcher) IsReadOnly(name string) bool { return d.readOnly[name] }

func (d *scriptedDispatcher) IsHeavy(string) bool { return false }

func (d *scriptedDispatcher) AffectedChats(string, tool.Args) []string { return nil }

func (d *scriptedDispatcher) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func newScripted(t *testing.T, d *scriptedDispatcher) (*plan.Engine, *Engine) {
	t.Helper()
	plans := plan.NewEngine(d, plan.WithClock(fixedNow), plan.WithIDs(sequentialIDs()))
	return plans, New(plans, d, testLimiter(fastConfig()), WithClock(fixedNow))
}

// --- Run Tests ---

func TestRunCompletesAllSteps(t *testing.T) {
	f := newFixture(t)
	p := released(t, f.plans,
		call("t1", "archiveChat", `{"chatId":"c1"}`),
		call("t2", "sendMessage", `{"chatId":"42","text":"hi"}`),
	)

	updates, exec := runToEnd(t, f.engine, p, Options{UserID: "u1", Request: "tidy up"})

	assert.Equal(t, domain.ExecutionCompleted, exec.Status)
	assert.Equal(t, []domain.StepStatus{domain.StepCompleted, domain.StepCompleted}, statuses(exec))
	assert.Equal(t, "exec-1", exec.ID)
	assert.Equal(t, "u1", exec.UserID)
	assert.Equal(t, "conv-1", exec.ConversationID)
	assert.Equal(t, []string{"c1", "42"}, exec.AffectedChatIDs)
	assert.Len(t, updates, 4, "running and completed for each step")
	assert.Equal(t, domain.StepRunning, updates[0].Status)
	assert.Equal(t, domain.StepCompleted, updates[1].Status)

	require.NotNil(t, exec.Plan)
	assert.Equal(t, domain.PlanCompleted, exec.Plan.Status)
	assert.Len(t, f.messenger.Sent, 1)
	assert.False(t, f.engine.Running())
}

func TestRunRequiresExecutingPlan(t *testing.T) {
	f := newFixture(t)
	p, err := f.plans.Propose("conv-1", "", []domain.ToolCall{call("t1", "deleteChat", `{"chatId":"c1"}`)}, domain.ModeAgent)
	require.NoError(t, err)
	require.Equal(t, domain.PlanAwaitingConfirmation, p.Status)

	_, err = f.engine.Run(context.Background(), p, Options{})
	assert.ErrorIs(t, err, plan.ErrInvalidTransition)
	assert.Empty(t, f.messenger.Calls())
}

func TestRunRejectedByWindowLimit(t *testing.T) {
	f := newFixture(t)
	f.tasks.Add(integrations.Notification{ID: 1, ChatID: "42", Title: "Follow up"})

	// 29 calls already went out in this window from earlier requests.
	ctx := context.Background()
	earlier := f.limiter.BeginExecution()
	for i := 0; i < 20; i++ {
		require.NoError(t, earlier.Wait(ctx, "getChatInfo", false))
	}
	later := f.limiter.BeginExecution()
	for i := 0; i < 9; i++ {
		require.NoError(t, later.Wait(ctx, "getChatInfo", false))
	}

	p := released(t, f.plans,
		call("t1", "dismissNotification", `{"id":1}`),
		call("t2", "sendMessage", `{"chatId":"42","text":"hi"}`),
	)
	_, exec := runToEnd(t, f.engine, p, Options{})

	assert.Equal(t, domain.ExecutionPartial, exec.Status)
	assert.Equal(t, []domain.StepStatus{domain.StepCompleted, domain.StepFailed}, statuses(exec))
	require.NotNil(t, exec.Steps[1].Result)
	assert.Equal(t, domain.ErrorKindRateLimit, exec.Steps[1].Result.ErrorKind)
	assert.Contains(t, exec.Steps[1].Result.Error, "Too many API calls")
	assert.Equal(t, []int64{1}, f.tasks.Dismissed)
	assert.Empty(t, f.messenger.Sent)
	assert.Equal(t, domain.PlanFailed, exec.Plan.Status)
}

func TestRunFirstStepFailure(t *testing.T) {
	f := newFixture(t)
	p := released(t, f.plans,
		call("t1", "sendMessage", `{"chatId":"missing","text":"hi"}`),
		call("t2", "archiveChat", `{"chatId":"c1"}`),
	)
	_, exec := runToEnd(t, f.engine, p, Options{})

	assert.Equal(t, domain.ExecutionFailed, exec.Status)
	assert.Equal(t, []domain.StepStatus{domain.StepFailed, domain.StepCompleted}, statuses(exec))
	assert.Equal(t, domain.ErrorKindNotFound, exec.Steps[0].Result.ErrorKind)
}

func TestRunAllOrNothingSkipsRest(t *testing.T) {
	f := newFixture(t)
	p := released(t, f.plans,
		call("t1", "archiveChat", `{"chatId":"c1"}`),
		call("t2", "sendMessage", `{"chatId":"missing","text":"hi"}`),
		call("t3", "archiveChat", `{"chatId":"42"}`),
	)
	updates, exec := runToEnd(t, f.engine, p, Options{AllOrNothing: true})

	assert.Equal(t, domain.ExecutionPartial, exec.Status)
	assert.Equal(t, []domain.StepStatus{domain.StepCompleted, domain.StepFailed, domain.StepSkipped}, statuses(exec))
	assert.Equal(t, domain.StepSkipped, updates[len(updates)-1].Status)
	assert.True(t, exec.Plan.AllOrNothing)

	chat, err := f.messenger.GetChat(context.Background(), "42")
	require.NoError(t, err)
	assert.False(t, chat.Archived)
}

func TestRunCancelBetweenSteps(t *testing.T) {
	d := &scriptedDispatcher{}
	plans, engine := newScripted(t, d)
	d.before = func(_ string, n int) {
		if n == 2 {
			engine.Cancel()
		}
	}

	var calls []domain.ToolCall
	for _, id := range []string{"t1", "t2", "t3", "t4", "t5"} {
		calls = append(calls, call(id, "archiveChat", `{"chatId":"`+id+`"}`))
	}
	p := released(t, plans, calls...)
	_, exec := runToEnd(t, engine, p, Options{})

	assert.Equal(t, domain.ExecutionCancelled, exec.Status)
	assert.Equal(t, []domain.StepStatus{
		domain.StepCompleted, domain.StepCompleted,
		domain.StepSkipped, domain.StepSkipped, domain.StepSkipped,
	}, statuses(exec))
	assert.Len(t, d.Calls(), 2)
	assert.Equal(t, domain.PlanCancelled, exec.Plan.Status)
}

func TestRunContextCancelledBeforeStart(t *testing.T) {
	d := &scriptedDispatcher{}
	plans, engine := newScripted(t, d)
	p := released(t, plans, call("t1", "archiveChat", `{"chatId":"c1"}`))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch, err := engine.Run(ctx, p, Options{})
	require.NoError(t, err)
	for range ch {
	}

	exec := engine.Result()
	require.NotNil(t, exec)
	assert.Equal(t, domain.ExecutionCancelled, exec.Status)
	assert.Empty(t, d.Calls())
}

func TestRunBusy(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	d := &scriptedDispatcher{}
	plans, engine := newScripted(t, d)
	d.before = func(string, int) {
		close(started)
		<-release
	}
	p := released(t, plans, call("t1", "archiveChat", `{"chatId":"c1"}`))

	ch, err := engine.Run(context.Background(), p, Options{})
	require.NoError(t, err)
	<-started
	assert.True(t, engine.Running())

	_, err = engine.Run(context.Background(), p, Options{})
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	for range ch {
	}
	assert.False(t, engine.Running())
}

func TestRunDeterministicReplay(t *testing.T) {
	run := func() *domain.AgentExecution {
		f := newFixture(t)
		p := released(t, f.plans,
			call("t1", "archiveChat", `{"chatId":"c1"}`),
			call("t2", "sendMessage", `{"chatId":"missing","text":"x"}`),
			call("t3", "unarchiveChat", `{"chatId":"c2"}`),
		)
		_, exec := runToEnd(t, f.engine, p, Options{})
		return exec
	}
	first, second := run(), run()
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, statuses(first), statuses(second))
	assert.Equal(t, first.AffectedChatIDs, second.AffectedChatIDs)
}

func TestRunCreateBlockedAfterLinkNotFound(t *testing.T) {
	d := &scriptedDispatcher{
		results: map[string]domain.ToolResult{
			"linkEntityToChat": domain.Fail(domain.ErrorKindNotFound, "Entity not found: deal 9"),
		},
	}
	plans, engine := newScripted(t, d)
	p := released(t, plans,
		call("t1", "linkEntityToChat", `{"chatId":"c1","entityType":"deal","entityId":"9"}`),
		call("t2", "createDeal", `{"chatId":"c1","name":"Acme"}`),
	)
	_, exec := runToEnd(t, engine, p, Options{})

	assert.Equal(t, []domain.StepStatus{domain.StepFailed, domain.StepFailed}, statuses(exec))
	assert.Equal(t, domain.ErrorKindPolicy, exec.Steps[1].Result.ErrorKind)
	assert.Equal(t, []string{"linkEntityToChat"}, d.Calls())
	assert.True(t, plans.CreateLocked("conv-1"))
}

// --- Undo Tests ---

func TestCanUndo(t *testing.T) {
	undo := &domain.UndoAction{ToolName: "unarchiveChat", Args: map[string]any{"chatId": "c1"}}
	tests := []struct {
		name  string
		steps []domain.ExecutionStep
		want  bool
	}{
		{"no side effects", []domain.ExecutionStep{{}}, true},
		{"every side effect undoable", []domain.ExecutionStep{{SideEffect: true, UndoAction: undo}}, true},
		{"one without undo", []domain.ExecutionStep{{SideEffect: true, UndoAction: undo}, {SideEffect: true}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanUndo(tt.steps))
		})
	}
}

func TestFinalStatus(t *testing.T) {
	step := func(s domain.StepStatus) domain.ExecutionStep {
		return domain.ExecutionStep{PlanStep: domain.PlanStep{Status: s}}
	}
	tests := []struct {
		name      string
		steps     []domain.ExecutionStep
		cancelled bool
		want      domain.ExecutionStatus
	}{
		{"all completed", []domain.ExecutionStep{step(domain.StepCompleted)}, false, domain.ExecutionCompleted},
		{"first failed", []domain.ExecutionStep{step(domain.StepFailed), step(domain.StepCompleted)}, false, domain.ExecutionFailed},
		{"later failed", []domain.ExecutionStep{step(domain.StepCompleted), step(domain.StepFailed)}, false, domain.ExecutionPartial},
		{"cancelled wins", []domain.ExecutionStep{step(domain.StepFailed)}, true, domain.ExecutionCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FinalStatus(tt.steps, tt.cancelled))
		})
	}
}

func TestUndoReversesWrites(t *testing.T) {
	f := newFixture(t)
	p := released(t, f.plans,
		call("t1", "archiveChat", `{"chatId":"c1"}`),
		call("t2", "unarchiveChat", `{"chatId":"c2"}`),
	)
	_, exec := runToEnd(t, f.engine, p, Options{Request: "swap"})
	require.True(t, exec.CanUndo)
	require.NotNil(t, exec.Steps[0].UndoAction)
	assert.Equal(t, "unarchiveChat", exec.Steps[0].UndoAction.ToolName)

	results, err := f.engine.Undo(context.Background(), exec)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "archiveChat", results[0].Action.ToolName, "reverse order")
	assert.Equal(t, "unarchiveChat", results[1].Action.ToolName)
	assert.True(t, exec.Undone)

	c1, _ := f.messenger.GetChat(context.Background(), "c1")
	c2, _ := f.messenger.GetChat(context.Background(), "c2")
	assert.False(t, c1.Archived)
	assert.True(t, c2.Archived)

	_, err = f.engine.Undo(context.Background(), exec)
	assert.ErrorIs(t, err, ErrNotUndoable)
}

func TestAlreadyInStateIsNoSideEffect(t *testing.T) {
	f := newFixture(t)
	p := released(t, f.plans, call("t1", "archiveChat", `{"chatId":"c2"}`))
	_, exec := runToEnd(t, f.engine, p, Options{})

	assert.Equal(t, domain.ExecutionCompleted, exec.Status)
	assert.False(t, exec.Steps[0].SideEffect)
	assert.Nil(t, exec.Steps[0].UndoAction)
	assert.True(t, exec.CanUndo)
}

func TestDeleteIsNotUndoable(t *testing.T) {
	f := newFixture(t)
	p := released(t, f.plans, call("t1", "deleteChat", `{"chatId":"c1"}`))
	_, exec := runToEnd(t, f.engine, p, Options{})

	assert.True(t, exec.Steps[0].SideEffect)
	assert.False(t, exec.CanUndo)
	_, err := f.engine.Undo(context.Background(), exec)
	assert.ErrorIs(t, err, ErrNotUndoable)
}

func TestUndoAlreadyUndone(t *testing.T) {
	f := newFixture(t)
	exec := &domain.AgentExecution{CanUndo: true, Undone: true}
	_, err := f.engine.Undo(context.Background(), exec)
	assert.ErrorIs(t, err, ErrAlreadyUndone)
}
