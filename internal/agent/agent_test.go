package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telebiz/agentcore/internal/chattool"
	"github.com/telebiz/agentcore/internal/conversation"
	"github.com/telebiz/agentcore/internal/dispatch"
	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/execution"
	"github.com/telebiz/agentcore/internal/extratool"
	"github.com/telebiz/agentcore/internal/integrations"
	"github.com/telebiz/agentcore/internal/plan"
	"github.com/telebiz/agentcore/internal/ratelimit"
	"github.com/telebiz/agentcore/internal/store"
	"github.com/telebiz/agentcore/internal/testutil"
)

type harness struct {
	session   *Session
	provider  *testutil.MockProvider
	messenger *testutil.FakeMessenger
	backend   *store.Memory
	convID    string
}

func noSleep(context.Context, time.Duration) error { return nil }

func newHarness(t *testing.T, mode domain.Mode, responses ...[]domain.StreamDelta) *harness {
	t.Helper()
	ctx := context.Background()

	backend := store.NewMemory()
	messenger := testutil.NewFakeMessenger(
		integrations.Chat{ID: "42", Title: "Carol", Type: "private"},
		integrations.Chat{ID: "c1", Title: "Acme Deal", Type: "group"},
	)
	tasks := testutil.NewFakeTasks()
	extras := extratool.NewRegistry(extratool.Deps{
		Reminders: testutil.NewFakeReminders(),
		Tasks:     tasks,
		Messenger: messenger,
		Skills:    backend,
	}, nil)
	core := chattool.NewSet(chattool.Deps{Messenger: messenger, Tasks: tasks, Bundles: extras})
	tools := dispatch.New(core, extras, nil)

	cfg := ratelimit.DefaultConfig()
	cfg.MinDelay, cfg.HeavyDelay = 0, 0
	limiter := ratelimit.New(cfg, ratelimit.WithSleep(noSleep))

	plans := plan.NewEngine(tools)
	convs, err := conversation.New(ctx, backend)
	require.NoError(t, err)
	prov := testutil.NewMockProvider(responses...)

	s, err := New(Config{Mode: mode, UserID: "u1"}, Deps{
		Provider:      prov,
		Conversations: convs,
		Plans:         plans,
		Executor:      execution.New(plans, tools, limiter),
		Tools:         tools,
		Skills:        backend,
		Executions:    backend,
	})
	require.NoError(t, err)

	conv, err := convs.Create(ctx, prov.ID())
	require.NoError(t, err)
	return &harness{session: s, provider: prov, messenger: messenger, backend: backend, convID: conv.ID}
}

// send runs a turn to the end. onConfirm, when set, decides each
// confirmation request.
func (h *harness) send(t *testing.T, text string, onConfirm func(*domain.ConfirmationRequest)) []Event {
	t.Helper()
	ch, err := h.session.SendTo(context.Background(), h.convID, text)
	require.NoError(t, err)
	var events []Event
	for e := range ch {
		events = append(events, e)
		if e.Type == EventConfirmation {
			require.NotNil(t, onConfirm, "unexpected confirmation")
			onConfirm(e.Confirmation)
		}
	}
	require.NotEmpty(t, events)
	require.Equal(t, EventDone, events[len(events)-1].Type)
	return events
}

func (h *harness) messages(t *testing.T) []domain.AgentMessage {
	t.Helper()
	conv, err := h.session.Conversations().Get(context.Background(), h.convID)
	require.NoError(t, err)
	return conv.Messages
}

func ofType(events []Event, typ EventType) []Event {
	var out []Event
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func roles(msgs []domain.AgentMessage) []domain.Role {
	out := make([]domain.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func toolNames(defs []domain.ToolDefinition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Name
	}
	return out
}

// --- Turn Tests ---

func TestSendPlainText(t *testing.T) {
	h := newHarness(t, domain.ModeAgent, testutil.TextResponse("Hello there"))

	events := h.send(t, "hi", nil)

	msgs := h.messages(t)
	assert.Equal(t, []domain.Role{domain.RoleUser, domain.RoleAssistant}, roles(msgs))
	assert.Equal(t, "Hello there", msgs[1].Content)
	assert.Len(t, ofType(events, EventDone), 1)
	assert.NotEmpty(t, ofType(events, EventDelta))
	assert.Empty(t, ofType(events, EventError))

	conv, err := h.session.Conversations().Get(context.Background(), h.convID)
	require.NoError(t, err)
	assert.Equal(t, "hi", conv.Title)
}

func TestReadOnlyToolLoop(t *testing.T) {
	h := newHarness(t, domain.ModeAgent,
		testutil.ToolCallResponse("call_1", "listChats", map[string]any{}),
		testutil.TextResponse("You have 2 chats."),
	)

	events := h.send(t, "how many chats?", nil)

	assert.Empty(t, ofType(events, EventConfirmation))
	assert.Equal(t, 2, h.provider.CallCount())
	assert.Equal(t, []domain.Role{
		domain.RoleUser, domain.RoleAssistant, domain.RoleTool, domain.RoleAssistant,
	}, roles(h.messages(t)))

	second := h.provider.Requests()[1]
	last := second.Messages[len(second.Messages)-1]
	assert.Equal(t, domain.RoleTool, last.Role)
	assert.Equal(t, "call_1", last.ToolCallID)
	require.NotNil(t, last.ToolResult)
	assert.True(t, last.ToolResult.Success)

	// read-only lookups are not undo history
	assert.Nil(t, h.session.LastExecution())
}

func TestDestructivePlanWaitsForConfirmation(t *testing.T) {
	h := newHarness(t, domain.ModeAgent,
		testutil.ToolCallResponse("call_1", "archiveChat", map[string]any{"chatId": "c1"}),
	)

	var asked *domain.ConfirmationRequest
	events := h.send(t, "archive c1", func(req *domain.ConfirmationRequest) {
		asked = req
		assert.False(t, h.messenger.Chats["c1"].Archived)
		require.NoError(t, h.session.Confirm(req.PlanID))
	})

	require.NotNil(t, asked)
	assert.True(t, asked.EstimatedImpact.IsDestructive)
	assert.Equal(t, []string{"c1"}, asked.EstimatedImpact.ChatsAffected)
	assert.True(t, h.messenger.Chats["c1"].Archived)

	// a confirmed plan ends with a summary, not another model call
	assert.Equal(t, 1, h.provider.CallCount())
	msgs := h.messages(t)
	assert.Equal(t, "Completed 1/1 actions. Affected 1 chat(s).", msgs[len(msgs)-1].Content)

	execs := ofType(events, EventExecution)
	require.Len(t, execs, 1)
	assert.Equal(t, domain.ExecutionCompleted, execs[0].Execution.Status)
	assert.True(t, execs[0].Execution.CanUndo)

	saved, err := h.backend.ListExecutions(context.Background(), h.convID, store.Filter{})
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}

func TestCancelPlan(t *testing.T) {
	h := newHarness(t, domain.ModeAgent,
		testutil.ToolCallResponse("call_1", "archiveChat", map[string]any{"chatId": "c1"}),
	)

	h.send(t, "archive c1", func(req *domain.ConfirmationRequest) {
		require.NoError(t, h.session.Cancel(req.PlanID))
	})

	assert.False(t, h.messenger.Chats["c1"].Archived)
	msgs := h.messages(t)
	require.Len(t, msgs, 4)
	require.NotNil(t, msgs[2].ToolResult)
	assert.False(t, msgs[2].ToolResult.Success)
	assert.Contains(t, msgs[2].ToolResult.Error, "Cancelled")
	assert.Equal(t, "Plan cancelled.", msgs[3].Content)
	assert.Nil(t, h.session.LastExecution())
}

func TestConfirmationOutlivesCaller(t *testing.T) {
	h := newHarness(t, domain.ModeAgent,
		testutil.ToolCallResponse("call_1", "archiveChat", map[string]any{"chatId": "c1"}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := h.session.SendTo(ctx, h.convID, "archive c1")
	require.NoError(t, err)

	var planID string
	for e := range ch {
		if e.Type == EventConfirmation {
			planID = e.Confirmation.PlanID
			break
		}
	}
	require.NotEmpty(t, planID)
	cancel()

	pending := h.session.Plans().Current(h.convID)
	require.NotNil(t, pending)
	assert.Equal(t, domain.PlanAwaitingConfirmation, pending.Status)

	require.NoError(t, h.session.Confirm(planID))
	require.Eventually(t, func() bool { return !h.session.Busy() }, 2*time.Second, 5*time.Millisecond)

	assert.True(t, h.messenger.Chats["c1"].Archived)
	last := h.session.LastExecution()
	require.NotNil(t, last)
	assert.Equal(t, domain.ExecutionCompleted, last.Status)
	msgs := h.messages(t)
	assert.Equal(t, "Completed 1/1 actions. Affected 1 chat(s).", msgs[len(msgs)-1].Content)
}

func TestAskModeRejectsWrites(t *testing.T) {
	h := newHarness(t, domain.ModeAsk,
		testutil.ToolCallResponse("call_1", "archiveChat", map[string]any{"chatId": "c1"}),
		testutil.TextResponse("I can't do that in ask mode."),
	)

	events := h.send(t, "archive c1", nil)

	assert.Empty(t, ofType(events, EventConfirmation))
	assert.False(t, h.messenger.Chats["c1"].Archived)
	msgs := h.messages(t)
	require.Len(t, msgs, 4)
	require.NotNil(t, msgs[2].ToolResult)
	assert.Equal(t, domain.ErrorKindPolicy, msgs[2].ToolResult.ErrorKind)
	assert.Contains(t, msgs[2].ToolResult.Error, "read-only")

	req := h.provider.Requests()[0]
	assert.NotContains(t, toolNames(req.Tools), "archiveChat")
	assert.Contains(t, toolNames(req.Tools), "listChats")
	assert.Contains(t, req.System, "Ask Mode")
}

func TestPlanModeRunsLookupsWithoutConfirmation(t *testing.T) {
	h := newHarness(t, domain.ModePlan,
		testutil.ToolCallResponse("call_1", "getChatInfo", map[string]any{"chatId": "42"}),
		testutil.TextResponse("Carol is a private chat."),
	)

	events := h.send(t, "who is 42?", nil)

	assert.Empty(t, ofType(events, EventConfirmation))
	assert.Equal(t, 2, h.provider.CallCount())
	assert.Contains(t, toolNames(h.provider.Requests()[0].Tools), "archiveChat")
}

func TestUseExtraToolLoadsBundle(t *testing.T) {
	h := newHarness(t, domain.ModeAgent,
		testutil.ToolCallResponse("call_1", chattool.UseExtraTool, map[string]any{"extraTool": "reminders"}),
		testutil.TextResponse("Reminder tools ready."),
	)

	h.send(t, "set up reminders", nil)

	assert.Equal(t, []extratool.Name{extratool.Reminders}, h.session.LoadedBundles(h.convID))
	reqs := h.provider.Requests()
	require.Len(t, reqs, 2)
	assert.NotContains(t, toolNames(reqs[0].Tools), "createReminder")
	assert.Contains(t, toolNames(reqs[1].Tools), "createReminder")
	assert.Contains(t, toolNames(reqs[1].Tools), "listReminders")
}

func TestUndoLast(t *testing.T) {
	h := newHarness(t, domain.ModeAgent,
		testutil.ToolCallResponse("call_1", "archiveChat", map[string]any{"chatId": "c1"}),
	)
	h.send(t, "archive c1", func(req *domain.ConfirmationRequest) {
		require.NoError(t, h.session.Confirm(req.PlanID))
	})
	require.True(t, h.messenger.Chats["c1"].Archived)

	msg, results, err := h.session.UndoLast(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "unarchiveChat", results[0].Action.ToolName)
	assert.False(t, h.messenger.Chats["c1"].Archived)
	assert.Equal(t, "Undone: archive c1", msg.Content)

	_, _, err = h.session.UndoLast(context.Background())
	assert.Error(t, err)
}

func TestUndoNothing(t *testing.T) {
	h := newHarness(t, domain.ModeAgent)
	_, _, err := h.session.UndoLast(context.Background())
	assert.ErrorIs(t, err, ErrNothingToUndo)
}

func TestSkillTags(t *testing.T) {
	h := newHarness(t, domain.ModeAgent, testutil.TextResponse("Summary: ..."))
	require.NoError(t, h.backend.SaveSkill(context.Background(), &domain.Skill{
		ID: "s1", Name: "summary", Context: "summaries", Content: "Use three bullets.",
		Type: domain.SkillOnDemand, IsActive: true,
	}))

	h.send(t, "/summary the Acme chat", nil)

	req := h.provider.Requests()[0]
	assert.Contains(t, req.System, "INVOKED SKILLS")
	assert.Contains(t, req.System, "Use three bullets.")
	assert.Equal(t, "the Acme chat", h.messages(t)[0].Content)
}

func TestToolSkillsAutoLoadSkillsBundle(t *testing.T) {
	h := newHarness(t, domain.ModeAgent, testutil.TextResponse("ok"))
	require.NoError(t, h.backend.SaveSkill(context.Background(), &domain.Skill{
		ID: "s1", Name: "pricing", Context: "pricing questions", Content: "Quote list price.",
		Type: domain.SkillTool, IsActive: true,
	}))

	h.send(t, "hello", nil)

	req := h.provider.Requests()[0]
	assert.Contains(t, toolNames(req.Tools), "getSkillData")
	assert.Contains(t, req.System, "AVAILABLE SKILLS")
}

func TestProviderErrorKeepsHistory(t *testing.T) {
	h := newHarness(t, domain.ModeAgent)
	h.provider.FailWith(errors.New("upstream down"))

	events := h.send(t, "hi", nil)

	errs := ofType(events, EventError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error, "upstream down")
	assert.Equal(t, []domain.Role{domain.RoleUser}, roles(h.messages(t)))
}

func TestStreamErrorDelta(t *testing.T) {
	h := newHarness(t, domain.ModeAgent, []domain.StreamDelta{
		{Type: domain.DeltaContent, Content: "Partial"},
		{Type: domain.DeltaError, Error: "connection reset"},
	})

	events := h.send(t, "hi", nil)

	errs := ofType(events, EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "connection reset", errs[0].Error)
	msgs := h.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Partial", msgs[1].Content)
}

func TestMaxIterations(t *testing.T) {
	call := testutil.ToolCallResponse("c", "listChats", map[string]any{})
	h := newHarness(t, domain.ModeAgent, call, call, call)
	h.session.cfg.MaxIterations = 2

	events := h.send(t, "loop", nil)

	assert.Equal(t, 2, h.provider.CallCount())
	errs := ofType(events, EventError)
	require.Len(t, errs, 1)
	assert.True(t, strings.HasPrefix(errs[0].Error, "stopped after 2 iterations"))
}

func TestSendRejectsEmpty(t *testing.T) {
	h := newHarness(t, domain.ModeAgent)
	_, err := h.session.SendTo(context.Background(), h.convID, "   ")
	assert.Error(t, err)
}

func TestSetMode(t *testing.T) {
	h := newHarness(t, domain.ModeAgent)
	require.NoError(t, h.session.SetMode(domain.ModePlan))
	assert.Equal(t, domain.ModePlan, h.session.Mode())
	assert.Error(t, h.session.SetMode("yolo"))
}

func TestSummary(t *testing.T) {
	done := domain.ExecutionStep{PlanStep: domain.PlanStep{Status: domain.StepCompleted}}
	failed := domain.ExecutionStep{PlanStep: domain.PlanStep{Status: domain.StepFailed}}

	tests := []struct {
		name string
		exec *domain.AgentExecution
		want string
	}{
		{"no chats", &domain.AgentExecution{Steps: []domain.ExecutionStep{done}}, "Completed 1/1 actions."},
		{"partial", &domain.AgentExecution{Steps: []domain.ExecutionStep{done, failed}, AffectedChatIDs: []string{"a", "b"}}, "Completed 1/2 actions. Affected 2 chat(s)."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summary(tt.exec))
		})
	}
}
