package chattool

import (
	"context"
	"strings"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/integrations"
	"github.com/telebiz/agentcore/internal/tool"
)

const (
	defaultChatLimit = 50
	maxChatLimit     = 200
	previewLength    = 50
)

func summarizeChat(c integrations.Chat) map[string]any {
	return map[string]any{
		"id":          c.ID,
		"title":       c.Title,
		"type":        c.Type,
		"unreadCount": c.UnreadCount,
		"isArchived":  c.Archived,
		"isPinned":    c.Pinned,
		"isMuted":     c.Muted,
	}
}

// lookupChat resolves chatID, mapping a missing chat to "Chat not found".
func lookupChat(ctx context.Context, m integrations.Messenger, chatID string) (*integrations.Chat, *domain.ToolResult) {
	chat, err := m.GetChat(ctx, chatID)
	if err != nil {
		res := remoteFailure(err)
		if integrations.IsNotFound(err) {
			res = chatNotFound(chatID)
		}
		return nil, &res
	}
	if chat == nil {
		res := chatNotFound(chatID)
		return nil, &res
	}
	return chat, nil
}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= previewLength {
		return text
	}
	return string(r[:previewLength]) + "..."
}

// --- listChats ---

type listChats struct{ messenger integrations.Messenger }

func (listChats) Definition() domain.ToolDefinition {
	return tool.Def("listChats",
		"Get a list of chats with optional filters. Returns chat IDs, titles, types and unread counts.",
		tool.Object(map[string]any{
			"chatType":      tool.Enum("Filter by chat type. Default: all", "private", "group", "supergroup", "channel", "all"),
			"hasUnread":     tool.Boolean("true = only unread chats, false = only read chats"),
			"isArchived":    tool.Boolean("true = archived only, false = non-archived only. Omit for both."),
			"titleContains": tool.String("Filter by chat title containing this text (case-insensitive)"),
			"folderId":      tool.Number("Filter to chats in a specific folder ID"),
			"limit":         tool.Number("Max chats to return (default: 50, max: 200)"),
		}))
}

func (t listChats) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.messenger == nil {
		return notConfigured("Messenger")
	}
	limit := int(args.Int("limit", defaultChatLimit))
	if limit <= 0 {
		limit = defaultChatLimit
	}
	if limit > maxChatLimit {
		limit = maxChatLimit
	}

	all, err := t.messenger.ListChats(ctx, 0)
	if err != nil {
		return remoteFailure(err)
	}

	chatType := args.String("chatType")
	title := strings.ToLower(args.String("titleContains"))
	folder := args.Int("folderId", -1)
	unread, filterUnread := args.Bool("hasUnread")
	archived, filterArchived := args.Bool("isArchived")

	chats := make([]map[string]any, 0, limit)
	total := 0
	for _, c := range all {
		if chatType != "" && chatType != "all" && c.Type != chatType {
			continue
		}
		if filterUnread && (c.UnreadCount > 0) != unread {
			continue
		}
		if filterArchived && c.Archived != archived {
			continue
		}
		if title != "" && !strings.Contains(strings.ToLower(c.Title), title) {
			continue
		}
		if folder >= 0 && !inFolder(c, folder) {
			continue
		}
		total++
		if len(chats) < limit {
			chats = append(chats, summarizeChat(c))
		}
	}
	return domain.OK(map[string]any{
		"totalFound": total,
		"returned":   len(chats),
		"chats":      chats,
	})
}

func inFolder(c integrations.Chat, folderID int64) bool {
	for _, id := range c.FolderIDs {
		if id == folderID {
			return true
		}
	}
	return false
}

// --- getChatInfo / getCurrentChat ---

type getChatInfo struct{ messenger integrations.Messenger }

func (getChatInfo) Definition() domain.ToolDefinition {
	return tool.Def("getChatInfo",
		"Get detailed information about a specific chat.",
		tool.Object(map[string]any{"chatId": tool.String("The ID of the chat")}, "chatId"))
}

func (t getChatInfo) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.messenger == nil {
		return notConfigured("Messenger")
	}
	chat, fail := lookupChat(ctx, t.messenger, args.String("chatId"))
	if fail != nil {
		return *fail
	}
	info := summarizeChat(*chat)
	info["folderIds"] = chat.FolderIDs
	return domain.OK(info)
}

type getCurrentChat struct {
	messenger integrations.Messenger
	current   func() string
}

func (getCurrentChat) Definition() domain.ToolDefinition {
	return tool.Def("getCurrentChat",
		"Get the chat the user currently has open.",
		tool.Object(map[string]any{}))
}

func (t getCurrentChat) Execute(ctx context.Context, _ tool.Args) domain.ToolResult {
	id := t.current()
	if id == "" {
		return domain.Fail(domain.ErrorKindBusiness, "No chat is currently open")
	}
	if t.messenger == nil {
		return domain.OK(map[string]any{"id": id})
	}
	chat, fail := lookupChat(ctx, t.messenger, id)
	if fail != nil {
		return *fail
	}
	return domain.OK(summarizeChat(*chat))
}

// openChat moves the user's focus; it touches no chat data.
type openChat struct {
	chatIDArg
	messenger integrations.Messenger
	open      func(chatID string)
}

func (openChat) Definition() domain.ToolDefinition {
	return tool.Def("openChat",
		"Navigate to and open a specific chat in the UI.",
		tool.Object(map[string]any{"chatId": chatIDProp("open")}, "chatId"))
}

func (t openChat) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	chatID := args.String("chatId")
	if t.messenger != nil {
		if _, fail := lookupChat(ctx, t.messenger, chatID); fail != nil {
			return *fail
		}
	}
	t.open(chatID)
	return domain.OK(map[string]any{"opened": chatID})
}

func (openChat) Inverse(_ tool.Args, result domain.ToolResult) (domain.UndoAction, bool) {
	return domain.UndoAction{}, result.Success
}

// --- sendMessage / batchSendMessage ---

type sendMessage struct {
	chatIDArg
	messenger integrations.Messenger
}

func (sendMessage) Definition() domain.ToolDefinition {
	return tool.Def("sendMessage",
		"Send a text message to a chat. To mention users, use @username.",
		tool.Object(map[string]any{
			"chatId": chatIDProp("send the message to"),
			"text":   tool.String("The message text"),
		}, "chatId", "text"))
}

func (t sendMessage) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.messenger == nil {
		return notConfigured("Messenger")
	}
	chatID := args.String("chatId")
	if _, fail := lookupChat(ctx, t.messenger, chatID); fail != nil {
		return *fail
	}
	text, _ := args["text"].(string)
	msgID, err := t.messenger.SendMessage(ctx, chatID, text)
	if err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{
		"sent":      true,
		"chatId":    chatID,
		"messageId": msgID,
		"text":      preview(text),
	})
}

type batchSendMessage struct {
	chatIDsArg
	messenger integrations.Messenger
}

func (batchSendMessage) Definition() domain.ToolDefinition {
	return tool.Def("batchSendMessage",
		"Send the same message to multiple chats.",
		tool.Object(map[string]any{
			"chatIds": tool.Array("Array of chat IDs to send the message to", map[string]any{"type": "string"}),
			"text":    tool.String("The message text to send"),
		}, "chatIds", "text"))
}

func (t batchSendMessage) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.messenger == nil {
		return notConfigured("Messenger")
	}
	text, _ := args["text"].(string)
	return perChat(ctx, args.Strings("chatIds"), func(chatID string) error {
		_, err := t.messenger.SendMessage(ctx, chatID, text)
		return err
	})
}

type chatOutcome struct {
	ChatID  string `json:"chatId"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// perChat applies fn to every chat and reports each outcome. The call only
// fails when every chat failed.
func perChat(ctx context.Context, chatIDs []string, fn func(chatID string) error) domain.ToolResult {
	results := make([]chatOutcome, 0, len(chatIDs))
	var done []string
	for _, id := range chatIDs {
		if err := ctx.Err(); err != nil {
			results = append(results, chatOutcome{ChatID: id, Error: err.Error()})
			continue
		}
		if err := fn(id); err != nil {
			results = append(results, chatOutcome{ChatID: id, Error: err.Error()})
			continue
		}
		results = append(results, chatOutcome{ChatID: id, Success: true})
		done = append(done, id)
	}
	data := map[string]any{
		"total":     len(chatIDs),
		"succeeded": len(done),
		"failed":    len(chatIDs) - len(done),
		"results":   results,
	}
	if len(done) == 0 && len(chatIDs) > 0 {
		return domain.ToolResult{Success: false, Data: data, Error: "No chats were processed", ErrorKind: domain.ErrorKindRemote}
	}
	return domain.OK(data, done...)
}

// --- archive / pin / mute and their inverses ---

type flagSpec struct {
	name, inverse string
	flag          integrations.ChatFlag
	on            bool
	description   string
	already       string
	done          string
}

var flagTools = []flagSpec{
	{"archiveChat", "unarchiveChat", integrations.FlagArchived, true, "Archive a chat. Archived chats are moved out of the main chat list.", "alreadyArchived", "archived"},
	{"unarchiveChat", "archiveChat", integrations.FlagArchived, false, "Unarchive a chat, moving it back to the main chat list.", "alreadyUnarchived", "unarchived"},
	{"pinChat", "unpinChat", integrations.FlagPinned, true, "Pin a chat to the top of the chat list.", "alreadyPinned", "pinned"},
	{"unpinChat", "pinChat", integrations.FlagPinned, false, "Unpin a chat.", "alreadyUnpinned", "unpinned"},
	{"muteChat", "unmuteChat", integrations.FlagMuted, true, "Mute notifications for a chat.", "alreadyMuted", "muted"},
	{"unmuteChat", "muteChat", integrations.FlagMuted, false, "Unmute notifications for a chat.", "alreadyUnmuted", "unmuted"},
}

func flagState(c *integrations.Chat, f integrations.ChatFlag) bool {
	switch f {
	case integrations.FlagArchived:
		return c.Archived
	case integrations.FlagPinned:
		return c.Pinned
	case integrations.FlagMuted:
		return c.Muted
	}
	return false
}

type flagTool struct {
	flagSpec
	chatIDArg
	messenger integrations.Messenger
}

func (t flagTool) Definition() domain.ToolDefinition {
	verb := strings.TrimSuffix(t.name, "Chat")
	return tool.Def(t.name, t.description,
		tool.Object(map[string]any{"chatId": chatIDProp(verb)}, "chatId"))
}

func (t flagTool) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.messenger == nil {
		return notConfigured("Messenger")
	}
	chatID := args.String("chatId")
	chat, fail := lookupChat(ctx, t.messenger, chatID)
	if fail != nil {
		return *fail
	}
	if flagState(chat, t.flag) == t.on {
		return domain.OK(map[string]any{t.already: true, "chatId": chatID})
	}
	if err := t.messenger.SetFlag(ctx, chatID, t.flag, t.on); err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{t.done: true, "chatId": chatID, "chatTitle": chat.Title})
}

func (t flagTool) Inverse(args tool.Args, result domain.ToolResult) (domain.UndoAction, bool) {
	if !result.Success {
		return domain.UndoAction{}, false
	}
	if data, _ := result.Data.(map[string]any); data[t.already] == true {
		return domain.UndoAction{}, true
	}
	return domain.UndoAction{ToolName: t.inverse, Args: map[string]any{"chatId": args.String("chatId")}}, true
}

type batchArchive struct {
	chatIDsArg
	messenger integrations.Messenger
}

func (batchArchive) Definition() domain.ToolDefinition {
	return tool.Def("batchArchive",
		"Archive multiple chats at once.",
		tool.Object(map[string]any{
			"chatIds": tool.Array("Array of chat IDs to archive", map[string]any{"type": "string"}),
		}, "chatIds"))
}

func (t batchArchive) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.messenger == nil {
		return notConfigured("Messenger")
	}
	return perChat(ctx, args.Strings("chatIds"), func(chatID string) error {
		return t.messenger.SetFlag(ctx, chatID, integrations.FlagArchived, true)
	})
}

// --- deleteChat / markChatAsRead ---

type deleteChat struct {
	chatIDArg
	messenger integrations.Messenger
}

func (deleteChat) Definition() domain.ToolDefinition {
	return tool.Def("deleteChat",
		"Delete a chat or leave a group/channel. WARNING: This is a destructive action.",
		tool.Object(map[string]any{"chatId": chatIDProp("delete/leave")}, "chatId"))
}

func (t deleteChat) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.messenger == nil {
		return notConfigured("Messenger")
	}
	chatID := args.String("chatId")
	chat, fail := lookupChat(ctx, t.messenger, chatID)
	if fail != nil {
		return *fail
	}
	if err := t.messenger.DeleteChat(ctx, chatID); err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{"deleted": true, "chatId": chatID, "chatTitle": chat.Title})
}

type markChatAsRead struct {
	chatIDArg
	messenger integrations.Messenger
}

func (markChatAsRead) Definition() domain.ToolDefinition {
	return tool.Def("markChatAsRead",
		"Mark all messages in a chat as read.",
		tool.Object(map[string]any{"chatId": chatIDProp("mark as read")}, "chatId"))
}

func (t markChatAsRead) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.messenger == nil {
		return notConfigured("Messenger")
	}
	chatID := args.String("chatId")
	chat, fail := lookupChat(ctx, t.messenger, chatID)
	if fail != nil {
		return *fail
	}
	if chat.UnreadCount == 0 {
		return domain.OK(map[string]any{"alreadyRead": true, "chatId": chatID})
	}
	if err := t.messenger.MarkRead(ctx, chatID); err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{"markedAsRead": true, "chatId": chatID, "unreadCleared": chat.UnreadCount})
}

// --- addChatToFolder / removeChatFromFolder ---

type folderTool struct {
	chatIDArg
	name      string
	member    bool
	messenger integrations.Messenger
}

func (t folderTool) Definition() domain.ToolDefinition {
	desc, verb := "Add a chat to one or more folders.", "add"
	if !t.member {
		desc, verb = "Remove a chat from one or more folders.", "remove"
	}
	return tool.Def(t.name, desc, tool.Object(map[string]any{
		"chatId":    chatIDProp(verb),
		"folderIds": tool.Array("Array of folder IDs", map[string]any{"type": "number"}),
	}, "chatId", "folderIds"))
}

func (t folderTool) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.messenger == nil {
		return notConfigured("Messenger")
	}
	chatID := args.String("chatId")
	chat, fail := lookupChat(ctx, t.messenger, chatID)
	if fail != nil {
		return *fail
	}
	var changed []int64
	for _, id := range args.Ints("folderIds") {
		if inFolder(*chat, id) == t.member {
			continue
		}
		if err := t.messenger.SetFolder(ctx, chatID, id, t.member); err != nil {
			return remoteFailure(err)
		}
		changed = append(changed, id)
	}
	if len(changed) == 0 {
		key := "alreadyInFolders"
		if !t.member {
			key = "alreadyNotInFolders"
		}
		return domain.OK(map[string]any{key: true, "chatId": chatID})
	}
	return domain.OK(map[string]any{"chatId": chatID, "folderIds": changed, "updated": true})
}

// Inverse reverses only the folders that actually changed.
func (t folderTool) Inverse(args tool.Args, result domain.ToolResult) (domain.UndoAction, bool) {
	if !result.Success {
		return domain.UndoAction{}, false
	}
	data, _ := result.Data.(map[string]any)
	changed, _ := data["folderIds"].([]int64)
	if len(changed) == 0 {
		return domain.UndoAction{}, true
	}
	inverse := "removeChatFromFolder"
	if !t.member {
		inverse = "addChatToFolder"
	}
	ids := make([]any, len(changed))
	for i, id := range changed {
		ids[i] = id
	}
	return domain.UndoAction{ToolName: inverse, Args: map[string]any{
		"chatId":    args.String("chatId"),
		"folderIds": ids,
	}}, true
}
