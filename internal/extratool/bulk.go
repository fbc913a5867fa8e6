package extratool

import (
	"context"
	"fmt"
	"strings"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/integrations"
	"github.com/telebiz/agentcore/internal/tool"
)

const bulkDescription = "Batch operations - process all pending tasks, dismiss multiple, summarize actions"

const bulkPrompt = `BULK OPERATIONS SKILL LOADED. You can now:
- Get all pending chats with processAllPendingTasks
- Dismiss multiple tasks with batchDismissTasks
- Snooze multiple tasks with batchSnoozeTasks
- Get full context for a chat with getWorkflowContext
- Generate a summary with summarizeActions

WORKFLOW PATTERN:
1. Call processAllPendingTasks to see what needs attention
2. For each chat, use getWorkflowContext if you need more details
3. Take appropriate actions (dismiss, send message, update CRM)
4. Use summarizeActions to report what was done`

func bulkTools(d Deps) []entry {
	return []entry{
		{processAllPendingTasks{tasks: d.Tasks, messenger: d.Messenger}, true},
		{batchDismissTasks{d.Tasks}, false},
		{batchSnoozeTasks{d.Tasks}, false},
		{summarizeActions{}, true},
		{getWorkflowContext{tasks: d.Tasks, messenger: d.Messenger}, true},
	}
}

func summarizeNotification(n integrations.Notification) map[string]any {
	out := map[string]any{
		"id":        n.ID,
		"type":      n.Type,
		"title":     n.Title,
		"message":   n.Message,
		"status":    n.Status,
		"createdAt": n.CreatedAt,
		"metadata": map[string]any{
			"chatId":    n.ChatID,
			"messageId": n.MessageID,
			"remindAt":  n.RemindAt,
		},
	}
	if n.SnoozedUntil != nil {
		out["snoozedUntil"] = n.SnoozedUntil
	}
	return out
}

func summarizeRelationship(r *integrations.Relationship) map[string]any {
	if r == nil {
		return nil
	}
	return map[string]any{
		"entityType":    r.EntityType,
		"entityId":      r.EntityID,
		"integrationId": r.IntegrationID,
		"provider":      r.Provider,
	}
}

// --- processAllPendingTasks ---

type processAllPendingTasks struct {
	tasks     integrations.Tasks
	messenger integrations.Messenger
}

func (processAllPendingTasks) Definition() domain.ToolDefinition {
	return tool.Def("processAllPendingTasks",
		"Get every chat with pending tasks, most urgent first, with its tasks and CRM relationship.",
		tool.Object(map[string]any{
			"limit": tool.Number("Maximum chats to return (default: 20)"),
		}))
}

func (t processAllPendingTasks) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.tasks == nil {
		return notConfigured("Tasks")
	}
	limit := int(args.Int("limit", 20))
	if limit <= 0 {
		limit = 20
	}
	ids, err := t.tasks.PendingChatIDs(ctx)
	if err != nil {
		return remoteFailure(err)
	}

	selected := ids
	if len(selected) > limit {
		selected = selected[:limit]
	}
	chats := make([]map[string]any, 0, len(selected))
	for _, chatID := range selected {
		pending, err := t.tasks.PendingForChat(ctx, chatID)
		if err != nil {
			return remoteFailure(err)
		}
		rel, err := t.tasks.Relationship(ctx, chatID)
		if err != nil && !integrations.IsNotFound(err) {
			return remoteFailure(err)
		}

		item := map[string]any{
			"chatId":          chatID,
			"chatTitle":       "Unknown",
			"taskCount":       len(pending),
			"hasRelationship": rel != nil,
		}
		if t.messenger != nil {
			if chat, err := t.messenger.GetChat(ctx, chatID); err == nil && chat != nil {
				item["chatTitle"] = chat.Title
				item["chatType"] = chat.Type
			}
		}
		summaries := make([]map[string]any, 0, len(pending))
		for _, n := range pending {
			summaries = append(summaries, summarizeNotification(n))
		}
		item["tasks"] = summaries
		if rel != nil {
			item["relationship"] = summarizeRelationship(rel)
		}
		chats = append(chats, item)
	}

	return domain.OK(map[string]any{
		"totalPendingChats": len(ids),
		"processed":         len(chats),
		"chats":             chats,
	})
}

// --- batchDismissTasks / batchSnoozeTasks ---

type batchOutcome struct {
	ID      int64  `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func runBatch(ids []int64, fn func(id int64) error) ([]batchOutcome, int) {
	results := make([]batchOutcome, 0, len(ids))
	ok := 0
	for _, id := range ids {
		if err := fn(id); err != nil {
			results = append(results, batchOutcome{ID: id, Error: err.Error()})
			continue
		}
		results = append(results, batchOutcome{ID: id, Success: true})
		ok++
	}
	return results, ok
}

type batchDismissTasks struct{ tasks integrations.Tasks }

func (batchDismissTasks) Definition() domain.ToolDefinition {
	return tool.Def("batchDismissTasks", "Dismiss several pending tasks at once.",
		tool.Object(map[string]any{
			"notificationIds": tool.Array("The task notification IDs to dismiss", tool.Number("Notification ID")),
		}, "notificationIds"))
}

func (batchDismissTasks) Heavy() bool { return true }

func (t batchDismissTasks) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.tasks == nil {
		return notConfigured("Tasks")
	}
	ids := args.Ints("notificationIds")
	results, ok := runBatch(ids, func(id int64) error { return t.tasks.Dismiss(ctx, id) })
	return domain.OK(map[string]any{"dismissed": ok, "total": len(ids), "results": results})
}

type batchSnoozeTasks struct{ tasks integrations.Tasks }

func (batchSnoozeTasks) Definition() domain.ToolDefinition {
	return tool.Def("batchSnoozeTasks", "Snooze several pending tasks at once.",
		tool.Object(map[string]any{
			"notificationIds": tool.Array("The task notification IDs to snooze", tool.Number("Notification ID")),
			"snoozeMinutes":   tool.Number("Minutes to snooze for (default: 60)"),
		}, "notificationIds"))
}

func (batchSnoozeTasks) Heavy() bool { return true }

func (t batchSnoozeTasks) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.tasks == nil {
		return notConfigured("Tasks")
	}
	ids := args.Ints("notificationIds")
	minutes := int(args.Int("snoozeMinutes", 60))
	if minutes <= 0 {
		minutes = 60
	}
	results, ok := runBatch(ids, func(id int64) error { return t.tasks.Snooze(ctx, id, minutes) })
	return domain.OK(map[string]any{"snoozed": ok, "total": len(ids), "snoozeMinutes": minutes, "results": results})
}

// --- summarizeActions ---

type summarizeActions struct{}

func (summarizeActions) Definition() domain.ToolDefinition {
	return tool.Def("summarizeActions", "Summarize the actions taken so far, grouped by type.",
		tool.Object(map[string]any{
			"actions": tool.Array("Actions taken, each with an \"action\" type and free-form details",
				map[string]any{"type": "object"}),
		}, "actions"))
}

func (summarizeActions) Execute(_ context.Context, args tool.Args) domain.ToolResult {
	actions := args.Maps("actions")
	counts := map[string]int{}
	var order []string
	for _, a := range actions {
		kind, _ := a["action"].(string)
		if kind == "" {
			kind = "unknown"
		}
		if _, seen := counts[kind]; !seen {
			order = append(order, kind)
		}
		counts[kind]++
	}

	parts := make([]string, 0, len(order))
	for _, kind := range order {
		parts = append(parts, fmt.Sprintf("%d %s", counts[kind], kind))
	}
	return domain.OK(map[string]any{
		"totalActions": len(actions),
		"byType":       counts,
		"actions":      actions,
		"summary":      fmt.Sprintf("Completed %d actions: %s", len(actions), strings.Join(parts, ", ")),
	})
}

// --- getWorkflowContext ---

type getWorkflowContext struct {
	chatIDArg
	tasks     integrations.Tasks
	messenger integrations.Messenger
}

func (getWorkflowContext) Definition() domain.ToolDefinition {
	return tool.Def("getWorkflowContext", "Get everything about one chat: details, pending tasks, CRM relationship and suggested next steps.",
		tool.Object(map[string]any{
			"chatId": tool.String("The chat ID"),
		}, "chatId"))
}

func (t getWorkflowContext) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.messenger == nil || t.tasks == nil {
		return notConfigured("Messenger")
	}
	chatID := args.String("chatId")
	chat, err := t.messenger.GetChat(ctx, chatID)
	if err != nil || chat == nil {
		if err == nil || integrations.IsNotFound(err) {
			return domain.Failf(domain.ErrorKindNotFound, "Chat not found: %s", chatID)
		}
		return remoteFailure(err)
	}
	pending, err := t.tasks.PendingForChat(ctx, chatID)
	if err != nil {
		return remoteFailure(err)
	}
	rel, err := t.tasks.Relationship(ctx, chatID)
	if err != nil && !integrations.IsNotFound(err) {
		return remoteFailure(err)
	}

	summaries := make([]map[string]any, 0, len(pending))
	for _, n := range pending {
		summaries = append(summaries, summarizeNotification(n))
	}
	data := map[string]any{
		"chat": map[string]any{
			"id":          chat.ID,
			"title":       chat.Title,
			"type":        chat.Type,
			"unreadCount": chat.UnreadCount,
		},
		"tasks":       summaries,
		"suggestions": Suggestions(pending, rel),
	}
	if rel != nil {
		data["relationship"] = summarizeRelationship(rel)
	}
	return domain.OK(data, chatID)
}

// Suggestions proposes next steps for a chat from its pending tasks and
// CRM relationship.
func Suggestions(pending []integrations.Notification, rel *integrations.Relationship) []string {
	out := []string{}
	if len(pending) > 3 {
		out = append(out, "Consider batch dismissing old tasks")
	}
	if rel != nil && rel.EntityType == integrations.EntityDeal {
		out = append(out, "Check if deal stage needs updating")
	}
	if rel == nil {
		out = append(out, "Consider linking this chat to a CRM entity")
	}
	for _, n := range pending {
		if n.Type == "reminder" {
			out = append(out, "Review and respond to reminders")
			break
		}
	}
	return out
}
