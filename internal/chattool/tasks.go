package chattool

import (
	"context"
	"fmt"
	"strings"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/extratool"
	"github.com/telebiz/agentcore/internal/integrations"
	"github.com/telebiz/agentcore/internal/tool"
)

const defaultSnoozeMinutes = 60

func chatTitle(ctx context.Context, m integrations.Messenger, chatID string) (title, chatType string) {
	title = "Unknown"
	if m == nil {
		return title, ""
	}
	if c, err := m.GetChat(ctx, chatID); err == nil && c != nil {
		return c.Title, c.Type
	}
	return title, ""
}

// --- listPendingChats ---

type listPendingChats struct {
	tasks     integrations.Tasks
	messenger integrations.Messenger
}

func (listPendingChats) Definition() domain.ToolDefinition {
	return tool.Def("listPendingChats",
		"Get all chats that have pending tasks/notifications, ordered by priority with task count and linked CRM entity info.",
		tool.Object(map[string]any{
			"limit": tool.Number("Maximum chats to return (default: 50)"),
		}))
}

func (t listPendingChats) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.tasks == nil {
		return notConfigured("Tasks")
	}
	limit := int(args.Int("limit", defaultChatLimit))
	if limit <= 0 {
		limit = defaultChatLimit
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
		title, chatType := chatTitle(ctx, t.messenger, chatID)
		item := map[string]any{
			"chatId":          chatID,
			"chatTitle":       title,
			"chatType":        chatType,
			"taskCount":       len(pending),
			"hasRelationship": rel != nil,
		}
		if len(pending) > 0 {
			oldest := pending[0]
			item["oldestTask"] = map[string]any{
				"id":        oldest.ID,
				"type":      oldest.Type,
				"message":   oldest.Message,
				"createdAt": oldest.CreatedAt,
			}
		}
		if rel != nil {
			item["entityType"] = rel.EntityType
			item["provider"] = rel.Provider
		}
		chats = append(chats, item)
	}
	return domain.OK(map[string]any{
		"totalPendingChats": len(ids),
		"chats":             chats,
	}, selected...)
}

// --- getChatTasks / getChatRelationship ---

type getChatTasks struct {
	tasks     integrations.Tasks
	messenger integrations.Messenger
}

func (getChatTasks) Definition() domain.ToolDefinition {
	return tool.Def("getChatTasks",
		"Get pending notifications/tasks for a specific chat, including type, message and creation time.",
		tool.Object(map[string]any{"chatId": tool.String("The chat ID")}, "chatId"))
}

func (t getChatTasks) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.tasks == nil {
		return notConfigured("Tasks")
	}
	chatID := args.String("chatId")
	var title string
	if t.messenger != nil {
		chat, fail := lookupChat(ctx, t.messenger, chatID)
		if fail != nil {
			return *fail
		}
		title = chat.Title
	}
	pending, err := t.tasks.PendingForChat(ctx, chatID)
	if err != nil {
		return remoteFailure(err)
	}
	tasks := make([]map[string]any, 0, len(pending))
	for _, n := range pending {
		tasks = append(tasks, map[string]any{
			"id":        n.ID,
			"type":      n.Type,
			"title":     n.Title,
			"message":   n.Message,
			"status":    n.Status,
			"createdAt": n.CreatedAt,
		})
	}
	return domain.OK(map[string]any{
		"chatId":    chatID,
		"chatTitle": title,
		"taskCount": len(tasks),
		"tasks":     tasks,
	})
}

type getChatRelationship struct{ tasks integrations.Tasks }

func (getChatRelationship) Definition() domain.ToolDefinition {
	return tool.Def("getChatRelationship",
		"Get the active CRM entity linked to a chat: entity type, ID and provider.",
		tool.Object(map[string]any{"chatId": tool.String("The chat ID")}, "chatId"))
}

func (t getChatRelationship) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.tasks == nil {
		return notConfigured("Tasks")
	}
	chatID := args.String("chatId")
	rel, err := t.tasks.Relationship(ctx, chatID)
	if integrations.IsNotFound(err) || (err == nil && rel == nil) {
		return domain.OK(map[string]any{"chatId": chatID, "hasRelationship": false})
	}
	if err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{
		"chatId":          chatID,
		"hasRelationship": true,
		"entityType":      rel.EntityType,
		"entityId":        rel.EntityID,
		"integrationId":   rel.IntegrationID,
		"provider":        rel.Provider,
	})
}

// --- dismissTask / snoozeTask ---

// notificationID accepts notificationId and the shorter id.
func notificationID(args tool.Args) (int64, error) {
	for _, key := range []string{"notificationId", "id"} {
		if args.Has(key) {
			if n := args.Int(key, -1); n >= 0 {
				return n, nil
			}
			return 0, fmt.Errorf("%s must be a number", key)
		}
	}
	return 0, &tool.MissingError{Field: "notificationId"}
}

// dismissTask is registered under two names; dismissNotification is the
// alias some prompts use.
type dismissTask struct {
	name  string
	tasks integrations.Tasks
}

func (t dismissTask) Definition() domain.ToolDefinition {
	return tool.Def(t.name,
		"Dismiss a notification/task, removing it from pending.",
		tool.Object(map[string]any{
			"notificationId": tool.Number("The notification ID to dismiss"),
		}))
}

func (dismissTask) ValidateArgs(args tool.Args) error {
	_, err := notificationID(args)
	return err
}

func (t dismissTask) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.tasks == nil {
		return notConfigured("Tasks")
	}
	id, _ := notificationID(args)
	if err := t.tasks.Dismiss(ctx, id); err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{"dismissed": true, "notificationId": id})
}

type snoozeTask struct{ tasks integrations.Tasks }

func (snoozeTask) Definition() domain.ToolDefinition {
	return tool.Def("snoozeTask",
		"Snooze a notification/task for a period of time.",
		tool.Object(map[string]any{
			"notificationId": tool.Number("The notification ID to snooze"),
			"snoozeMinutes":  tool.Number("Minutes to snooze for (default: 60). Common values: 15, 60, 240, 1440 (1 day)"),
		}))
}

func (snoozeTask) ValidateArgs(args tool.Args) error {
	_, err := notificationID(args)
	return err
}

func (t snoozeTask) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.tasks == nil {
		return notConfigured("Tasks")
	}
	id, _ := notificationID(args)
	minutes := int(args.Int("snoozeMinutes", defaultSnoozeMinutes))
	if minutes <= 0 {
		minutes = defaultSnoozeMinutes
	}
	if err := t.tasks.Snooze(ctx, id, minutes); err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{"snoozed": true, "notificationId": id, "snoozeMinutes": minutes})
}

// --- useExtraTool ---

type useExtraTool struct{ bundles *extratool.Registry }

func (useExtraTool) Definition() domain.ToolDefinition {
	names := make([]string, len(extratool.Names))
	lines := []string{"Load an extra tool to get additional specialized tools.", "", "Available extra tools:"}
	for i, n := range extratool.Names {
		names[i] = string(n)
		lines = append(lines, fmt.Sprintf("- %q - %s", n, bundleBlurb[n]))
	}
	lines = append(lines, "", "After loading an extra tool, you will have access to its tools.")
	return tool.Def(UseExtraTool, strings.Join(lines, "\n"),
		tool.Object(map[string]any{
			"extraTool": tool.Enum("The extra tool to load", names...),
		}, "extraTool"))
}

var bundleBlurb = map[extratool.Name]string{
	extratool.CRM:       "HubSpot/CRM operations (deals, contacts, stages)",
	extratool.Notion:    "Notion page editing and todos",
	extratool.Reminders: "Reminder management",
	extratool.Bulk:      "Batch operations across multiple chats",
	extratool.Skills:    "Manage user-created skills",
}

func (useExtraTool) ValidateArgs(args tool.Args) error {
	if err := args.Require("extraTool"); err != nil {
		return err
	}
	if name := extratool.Name(args.String("extraTool")); !name.Valid() {
		names := make([]string, len(extratool.Names))
		for i, n := range extratool.Names {
			names[i] = string(n)
		}
		return fmt.Errorf("Unknown extra tool: %s. Available: %s", name, strings.Join(names, ", "))
	}
	return nil
}

// Execute only describes the bundle. Making its tools visible is up to the
// session that sees the successful result.
func (t useExtraTool) Execute(_ context.Context, args tool.Args) domain.ToolResult {
	name := extratool.Name(args.String("extraTool"))
	if t.bundles == nil {
		return notConfigured("Extra tools")
	}
	info, ok := t.bundles.GetBundle(name)
	if !ok {
		return domain.Failf(domain.ErrorKindValidation, "Unknown extra tool: %s", name)
	}
	toolNames := make([]string, len(info.Tools))
	for i, def := range info.Tools {
		toolNames[i] = def.Name
	}
	return domain.OK(map[string]any{
		"extraToolLoaded": string(name),
		"message":         fmt.Sprintf("%s. Tools available: %s", info.Description, strings.Join(toolNames, ", ")),
	})
}

// LoadedBundle returns the bundle a successful useExtraTool result loaded.
func LoadedBundle(result domain.ToolResult) (extratool.Name, bool) {
	if !result.Success {
		return "", false
	}
	data, _ := result.Data.(map[string]any)
	s, _ := data["extraToolLoaded"].(string)
	name := extratool.Name(s)
	return name, name.Valid()
}
