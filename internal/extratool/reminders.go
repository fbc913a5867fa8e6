package extratool

import (
	"context"
	"time"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/integrations"
	"github.com/telebiz/agentcore/internal/tool"
)

const remindersDescription = "Reminder management - create, complete, update, and delete reminders"

const remindersPrompt = `REMINDERS SKILL LOADED. You can now:
- List reminders with listReminders
- Create reminders with createReminder
- Mark reminders done with completeReminder
- Delete reminders with deleteReminder
- Update reminder time or description with updateReminder

Reminders are linked to chats and optionally to specific messages.
Use relative times like "in 1 hour" or "tomorrow at 9am" for remindAt.`

func reminderTools(d Deps) []entry {
	return []entry{
		{listReminders{d.Reminders}, true},
		{createReminder{reminders: d.Reminders, now: d.Now}, false},
		{completeReminder{d.Reminders}, false},
		{deleteReminder{d.Reminders}, false},
		{updateReminder{reminders: d.Reminders, now: d.Now}, false},
	}
}

func summarizeReminder(r integrations.Reminder) map[string]any {
	status := "pending"
	if r.Completed {
		status = "completed"
	}
	out := map[string]any{
		"id":          r.ID,
		"chatId":      r.ChatID,
		"description": r.Description,
		"remindAt":    r.RemindAt.Format(time.RFC3339),
		"status":      status,
	}
	if r.MessageID != "" {
		out["messageId"] = r.MessageID
	}
	return out
}

func reminderIDProp() map[string]any { return tool.Number("The reminder ID (from listReminders)") }

// --- listReminders ---

type listReminders struct{ reminders integrations.Reminders }

func (listReminders) Definition() domain.ToolDefinition {
	return tool.Def("listReminders", "List reminders, optionally only those of one chat.",
		tool.Object(map[string]any{
			"chatId": tool.String("Only list reminders of this chat (optional)"),
		}))
}

func (t listReminders) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.reminders == nil {
		return notConfigured("Reminders")
	}
	list, err := t.reminders.ListReminders(ctx, args.String("chatId"))
	if err != nil {
		return remoteFailure(err)
	}
	out := make([]map[string]any, 0, len(list))
	for _, r := range list {
		out = append(out, summarizeReminder(r))
	}
	return domain.OK(map[string]any{"reminders": out, "count": len(out)})
}

// --- createReminder ---

type createReminder struct {
	chatIDArg
	reminders integrations.Reminders
	now       func() time.Time
}

func (createReminder) Definition() domain.ToolDefinition {
	return tool.Def("createReminder", "Create a reminder for a chat, optionally tied to a message.",
		tool.Object(map[string]any{
			"chatId":      tool.String("The chat the reminder belongs to"),
			"messageId":   tool.String("The message to be reminded about (optional)"),
			"description": tool.String("What to be reminded of"),
			"remindAt":    tool.String(`When to remind: ISO date, "in 2 hours", "tomorrow at 9am", "at 5pm"`),
		}, "chatId", "description", "remindAt"))
}

func (t createReminder) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.reminders == nil {
		return notConfigured("Reminders")
	}
	at, err := ParseRemindAt(args.String("remindAt"), t.now())
	if err != nil {
		return domain.Fail(domain.ErrorKindValidation, err.Error())
	}
	r, err := t.reminders.CreateReminder(ctx, integrations.Reminder{
		ChatID:      args.String("chatId"),
		MessageID:   args.String("messageId"),
		Description: args.String("description"),
		RemindAt:    at,
	})
	if err != nil {
		return remoteFailure(err)
	}
	data := summarizeReminder(*r)
	data["created"] = true
	return domain.OK(data, r.ChatID)
}

// --- completeReminder ---

type completeReminder struct{ reminders integrations.Reminders }

func (completeReminder) Definition() domain.ToolDefinition {
	return tool.Def("completeReminder", "Mark a reminder as done.",
		tool.Object(map[string]any{"reminderId": reminderIDProp()}, "reminderId"))
}

func (t completeReminder) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.reminders == nil {
		return notConfigured("Reminders")
	}
	id, err := numberArg(args, "reminderId")
	if err != nil {
		return domain.Fail(domain.ErrorKindValidation, err.Error())
	}
	r, err := t.reminders.CompleteReminder(ctx, id)
	if err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{"completed": true, "reminderId": id}, r.ChatID)
}

// --- deleteReminder ---

type deleteReminder struct{ reminders integrations.Reminders }

func (deleteReminder) Definition() domain.ToolDefinition {
	return tool.Def("deleteReminder", "Delete a reminder.",
		tool.Object(map[string]any{"reminderId": reminderIDProp()}, "reminderId"))
}

func (t deleteReminder) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.reminders == nil {
		return notConfigured("Reminders")
	}
	id, err := numberArg(args, "reminderId")
	if err != nil {
		return domain.Fail(domain.ErrorKindValidation, err.Error())
	}
	if err := t.reminders.DeleteReminder(ctx, id); err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{"deleted": true, "reminderId": id})
}

// --- updateReminder ---

type updateReminder struct {
	reminders integrations.Reminders
	now       func() time.Time
}

func (updateReminder) Definition() domain.ToolDefinition {
	return tool.Def("updateReminder", "Change the description or time of a reminder.",
		tool.Object(map[string]any{
			"reminderId":  reminderIDProp(),
			"description": tool.String("New description (optional)"),
			"remindAt":    tool.String("New time, same formats as createReminder (optional)"),
		}, "reminderId"))
}

func (t updateReminder) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.reminders == nil {
		return notConfigured("Reminders")
	}
	id, err := numberArg(args, "reminderId")
	if err != nil {
		return domain.Fail(domain.ErrorKindValidation, err.Error())
	}

	var upd integrations.ReminderUpdate
	data := map[string]any{"updated": true, "reminderId": id}
	if d := args.String("description"); d != "" {
		upd.Description = &d
		data["description"] = d
	}
	if raw := args.String("remindAt"); raw != "" {
		at, err := ParseRemindAt(raw, t.now())
		if err != nil {
			return domain.Fail(domain.ErrorKindValidation, err.Error())
		}
		upd.RemindAt = &at
		data["remindAt"] = at.Format(time.RFC3339)
	}

	r, err := t.reminders.UpdateReminder(ctx, id, upd)
	if err != nil {
		return remoteFailure(err)
	}
	return domain.OK(data, r.ChatID)
}
