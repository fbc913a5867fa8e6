package chattool

import (
	"context"
	"time"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/integrations"
	"github.com/telebiz/agentcore/internal/tool"
)

const (
	defaultHistoryLimit = 20
	defaultSearchLimit  = 50
	maxMessageLimit     = 100
)

func clampLimit(args tool.Args, def, ceiling int) int {
	n := int(args.Int("limit", int64(def)))
	if n <= 0 {
		return def
	}
	if n > ceiling {
		return ceiling
	}
	return n
}

func formatMessage(m integrations.Message, withChat bool) map[string]any {
	out := map[string]any{
		"id":            m.ID,
		"date":          m.Date.Unix(),
		"dateFormatted": m.Date.UTC().Format(time.RFC3339),
		"senderId":      m.SenderID,
		"senderName":    m.SenderName,
		"text":          m.Text,
		"hasMedia":      m.MediaType != "",
		"isOutgoing":    m.Outgoing,
	}
	if out["senderName"] == "" {
		out["senderName"] = "Unknown"
	}
	if m.MediaType != "" {
		out["mediaType"] = m.MediaType
		if m.Text == "" {
			out["text"] = "[" + m.MediaType + "]"
		}
	}
	if withChat {
		out["chatId"] = m.ChatID
	}
	return out
}

// --- getRecentMessages ---

type getRecentMessages struct {
	chatIDArg
	messenger integrations.Messenger
}

func (getRecentMessages) Definition() domain.ToolDefinition {
	return tool.Def("getRecentMessages",
		"Get messages from a chat. Returns message text, sender info, and timestamps. Use offset to paginate through older messages.",
		tool.Object(map[string]any{
			"chatId": chatIDProp("get messages from"),
			"limit":  tool.Number("Maximum number of messages to return (default: 20, max: 100)"),
			"offset": tool.Number("Number of messages to skip from most recent (default: 0). offset=0 gets newest, offset=100 gets messages 101-200."),
		}, "chatId"))
}

func (t getRecentMessages) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.messenger == nil {
		return notConfigured("Messenger")
	}
	chatID := args.String("chatId")
	chat, fail := lookupChat(ctx, t.messenger, chatID)
	if fail != nil {
		return *fail
	}
	limit := clampLimit(args, defaultHistoryLimit, maxMessageLimit)
	offset := int(args.Int("offset", 0))
	if offset < 0 {
		offset = 0
	}

	// one extra message tells whether older ones exist
	msgs, err := t.messenger.History(ctx, chatID, limit+1, offset)
	if err != nil {
		return remoteFailure(err)
	}
	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	out := make([]map[string]any, len(msgs))
	for i, m := range msgs {
		out[i] = formatMessage(m, false)
	}
	return domain.OK(map[string]any{
		"chatTitle":    chat.Title,
		"messageCount": len(out),
		"offset":       offset,
		"hasMore":      hasMore,
		"messages":     out,
	})
}

// --- searchMessages ---

type searchMessages struct {
	chatIDArg
	messenger integrations.Messenger
}

func (searchMessages) Definition() domain.ToolDefinition {
	return tool.Def("searchMessages",
		"Search for messages by text. Returns content, sender, date. Can search in a chat or globally.",
		tool.Object(map[string]any{
			"query":  tool.String("The search query text to find in messages"),
			"chatId": tool.String("Optional chat ID to search within. If omitted, searches globally across all chats."),
			"limit":  tool.Number("Maximum number of results to return (default: 50, max: 100)"),
		}, "query"))
}

func (t searchMessages) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.messenger == nil {
		return notConfigured("Messenger")
	}
	query := args.String("query")
	chatID := args.String("chatId")
	if chatID != "" {
		if _, fail := lookupChat(ctx, t.messenger, chatID); fail != nil {
			return *fail
		}
	}
	msgs, err := t.messenger.SearchMessages(ctx, query, chatID, clampLimit(args, defaultSearchLimit, maxMessageLimit))
	if err != nil {
		return remoteFailure(err)
	}
	out := make([]map[string]any, len(msgs))
	for i, m := range msgs {
		out[i] = formatMessage(m, chatID == "")
	}
	data := map[string]any{
		"query":      query,
		"messages":   out,
		"totalCount": len(out),
	}
	if chatID != "" {
		data["chatId"] = chatID
	}
	return domain.OK(data)
}

// --- forwardMessages / deleteMessages ---

type forwardMessages struct{ messenger integrations.Messenger }

func (forwardMessages) Definition() domain.ToolDefinition {
	return tool.Def("forwardMessages",
		"Forward messages from one chat to another.",
		tool.Object(map[string]any{
			"fromChatId":    tool.String("The ID of the chat to forward messages from"),
			"toChatId":      tool.String("The ID of the chat to forward messages to"),
			"messageIds":    tool.Array("Array of message IDs to forward", map[string]any{"type": "number"}),
			"withoutAuthor": tool.Boolean("Forward without showing the original author"),
		}, "fromChatId", "toChatId", "messageIds"))
}

func (forwardMessages) AffectedChats(args tool.Args) []string {
	return []string{args.String("fromChatId"), args.String("toChatId")}
}

func (t forwardMessages) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.messenger == nil {
		return notConfigured("Messenger")
	}
	ids := args.Ints("messageIds")
	if len(ids) == 0 {
		return domain.Fail(domain.ErrorKindValidation, "messageIds must contain at least one message ID")
	}
	from, to := args.String("fromChatId"), args.String("toChatId")
	for _, id := range []string{from, to} {
		if _, fail := lookupChat(ctx, t.messenger, id); fail != nil {
			return *fail
		}
	}
	withoutAuthor, _ := args.Bool("withoutAuthor")
	if err := t.messenger.ForwardMessages(ctx, from, to, ids, withoutAuthor); err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{"forwarded": len(ids), "from": from, "to": to})
}

type deleteMessages struct {
	chatIDArg
	messenger integrations.Messenger
}

func (deleteMessages) Definition() domain.ToolDefinition {
	return tool.Def("deleteMessages",
		"Delete messages from a chat. WARNING: This is a destructive action.",
		tool.Object(map[string]any{
			"chatId":      tool.String("The ID of the chat containing the messages"),
			"messageIds":  tool.Array("Array of message IDs to delete", map[string]any{"type": "number"}),
			"forEveryone": tool.Boolean("Delete for all participants (if allowed)"),
		}, "chatId", "messageIds"))
}

func (t deleteMessages) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.messenger == nil {
		return notConfigured("Messenger")
	}
	ids := args.Ints("messageIds")
	if len(ids) == 0 {
		return domain.Fail(domain.ErrorKindValidation, "messageIds must contain at least one message ID")
	}
	chatID := args.String("chatId")
	if _, fail := lookupChat(ctx, t.messenger, chatID); fail != nil {
		return *fail
	}
	forEveryone, _ := args.Bool("forEveryone")
	if err := t.messenger.DeleteMessages(ctx, chatID, ids, forEveryone); err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{"deleted": len(ids), "chatId": chatID, "forEveryone": forEveryone})
}
