package chattool

import (
	"context"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/integrations"
	"github.com/telebiz/agentcore/internal/tool"
)

const (
	defaultMemberLimit = 200
	defaultUserLimit   = 50
)

func isGroup(c *integrations.Chat) bool {
	return c.Type == "group" || c.Type == "supergroup"
}

func summarizeUser(u integrations.User) map[string]any {
	return map[string]any{
		"id":          u.ID,
		"firstName":   u.FirstName,
		"lastName":    u.LastName,
		"username":    u.Username,
		"phoneNumber": u.Phone,
		"isPremium":   u.Premium,
		"isVerified":  u.Verified,
	}
}

func memberMatches(m integrations.Member, filter string) bool {
	switch filter {
	case "admins":
		return m.Status == integrations.MemberAdmin || m.Status == integrations.MemberOwner
	case "kicked":
		return m.Status == integrations.MemberKicked
	case "restricted":
		return m.Status == integrations.MemberRestricted
	case "bots":
		return m.IsBot
	}
	return m.Status != integrations.MemberKicked
}

// activeMembers is the set of users currently in the group.
func activeMembers(members []integrations.Member) map[string]bool {
	present := make(map[string]bool, len(members))
	for _, m := range members {
		if m.Status != integrations.MemberKicked {
			present[m.UserID] = true
		}
	}
	return present
}

// --- getChatMembers ---

type getChatMembers struct {
	chatIDArg
	messenger integrations.Messenger
}

func (getChatMembers) Definition() domain.ToolDefinition {
	return tool.Def("getChatMembers",
		"Get the list of members in a group or channel.",
		tool.Object(map[string]any{
			"chatId": chatIDProp("get members for"),
			"filter": tool.Enum("Filter members by type", "all", "admins", "kicked", "restricted", "bots"),
			"limit":  tool.Number("Maximum number of members to return (default: 200)"),
		}, "chatId"))
}

func (t getChatMembers) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.messenger == nil {
		return notConfigured("Messenger")
	}
	chatID := args.String("chatId")
	chat, fail := lookupChat(ctx, t.messenger, chatID)
	if fail != nil {
		return *fail
	}
	if chat.Type == "private" {
		return domain.Failf(domain.ErrorKindBusiness, "Chat %s is not a group or channel", chatID)
	}
	members, err := t.messenger.Members(ctx, chatID)
	if err != nil {
		return remoteFailure(err)
	}
	limit := clampLimit(args, defaultMemberLimit, defaultMemberLimit)
	filter := args.String("filter")

	out := make([]map[string]any, 0, len(members))
	total := 0
	for _, m := range members {
		if !memberMatches(m, filter) {
			continue
		}
		total++
		if len(out) == limit {
			continue
		}
		entry := map[string]any{
			"id":      m.UserID,
			"status":  string(m.Status),
			"isAdmin": m.Status == integrations.MemberAdmin || m.Status == integrations.MemberOwner,
			"isOwner": m.Status == integrations.MemberOwner,
			"isBot":   m.IsBot,
		}
		// names are best effort; the id is what the other tools need
		if u, err := t.messenger.GetUser(ctx, m.UserID); err == nil && u != nil {
			entry["firstName"] = u.FirstName
			entry["lastName"] = u.LastName
			entry["username"] = u.Username
		}
		out = append(out, entry)
	}
	return domain.OK(map[string]any{
		"chatId":     chatID,
		"chatTitle":  chat.Title,
		"totalFound": total,
		"returned":   len(out),
		"members":    out,
	})
}

// --- addChatMembers / removeChatMember ---

type addChatMembers struct {
	chatIDArg
	messenger integrations.Messenger
}

func (addChatMembers) Definition() domain.ToolDefinition {
	return tool.Def("addChatMembers",
		"Add users to a group chat.",
		tool.Object(map[string]any{
			"chatId":  tool.String("The ID of the group to add members to"),
			"userIds": tool.Array("Array of user IDs to add", map[string]any{"type": "string"}),
		}, "chatId", "userIds"))
}

func (t addChatMembers) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.messenger == nil {
		return notConfigured("Messenger")
	}
	chatID := args.String("chatId")
	chat, fail := lookupChat(ctx, t.messenger, chatID)
	if fail != nil {
		return *fail
	}
	if !isGroup(chat) {
		return domain.Failf(domain.ErrorKindBusiness, "Chat %s is not a group", chatID)
	}
	members, err := t.messenger.Members(ctx, chatID)
	if err != nil {
		return remoteFailure(err)
	}
	present := activeMembers(members)
	var added []string
	for _, id := range args.Strings("userIds") {
		if !present[id] {
			added = append(added, id)
			present[id] = true
		}
	}
	if len(added) == 0 {
		return domain.OK(map[string]any{"alreadyMembers": true, "chatId": chatID})
	}
	if err := t.messenger.AddMembers(ctx, chatID, added); err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{"added": len(added), "toChatId": chatID, "userIds": added})
}

// Inverse removes only the users this call added.
func (addChatMembers) Inverse(args tool.Args, result domain.ToolResult) (domain.UndoAction, bool) {
	if !result.Success {
		return domain.UndoAction{}, false
	}
	data, _ := result.Data.(map[string]any)
	added, _ := data["userIds"].([]string)
	if len(added) == 0 {
		return domain.UndoAction{}, true
	}
	return domain.UndoAction{ToolName: "removeChatMember", Args: map[string]any{
		"chatId":  args.String("chatId"),
		"userIds": toAny(added),
	}}, true
}

type removeChatMember struct {
	chatIDArg
	messenger integrations.Messenger
}

func (removeChatMember) Definition() domain.ToolDefinition {
	return tool.Def("removeChatMember",
		"Remove a user from a group chat. WARNING: This is a destructive action.",
		tool.Object(map[string]any{
			"chatId":  tool.String("The ID of the group to remove the member from"),
			"userId":  tool.String("The user ID to remove"),
			"userIds": tool.Array("Several user IDs to remove at once, instead of userId", map[string]any{"type": "string"}),
		}, "chatId"))
}

func removalTargets(args tool.Args) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range append(args.Strings("userId"), args.Strings("userIds")...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func (removeChatMember) ValidateArgs(args tool.Args) error {
	if err := args.Require("chatId"); err != nil {
		return err
	}
	if len(removalTargets(args)) == 0 {
		return &tool.MissingError{Field: "userId"}
	}
	return nil
}

func (t removeChatMember) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.messenger == nil {
		return notConfigured("Messenger")
	}
	chatID := args.String("chatId")
	chat, fail := lookupChat(ctx, t.messenger, chatID)
	if fail != nil {
		return *fail
	}
	if !isGroup(chat) {
		return domain.Failf(domain.ErrorKindBusiness, "Chat %s is not a group", chatID)
	}
	members, err := t.messenger.Members(ctx, chatID)
	if err != nil {
		return remoteFailure(err)
	}
	present := activeMembers(members)
	var removed []string
	for _, id := range removalTargets(args) {
		if !present[id] {
			continue
		}
		if err := t.messenger.RemoveMember(ctx, chatID, id); err != nil {
			return remoteFailure(err)
		}
		removed = append(removed, id)
	}
	if len(removed) == 0 {
		return domain.OK(map[string]any{"alreadyRemoved": true, "fromChatId": chatID})
	}
	return domain.OK(map[string]any{"removed": len(removed), "fromChatId": chatID, "userIds": removed})
}

// Inverse adds back only the users this call removed.
func (removeChatMember) Inverse(args tool.Args, result domain.ToolResult) (domain.UndoAction, bool) {
	if !result.Success {
		return domain.UndoAction{}, false
	}
	data, _ := result.Data.(map[string]any)
	removed, _ := data["userIds"].([]string)
	if len(removed) == 0 {
		return domain.UndoAction{}, true
	}
	return domain.UndoAction{ToolName: "addChatMembers", Args: map[string]any{
		"chatId":  args.String("chatId"),
		"userIds": toAny(removed),
	}}, true
}

// --- createGroup ---

type createGroup struct{ messenger integrations.Messenger }

func (createGroup) Definition() domain.ToolDefinition {
	return tool.Def("createGroup",
		"Create a new group chat with specified members.",
		tool.Object(map[string]any{
			"title":     tool.String("The name/title of the new group"),
			"memberIds": tool.Array("Array of user IDs to add to the group", map[string]any{"type": "string"}),
		}, "title", "memberIds"))
}

func (t createGroup) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.messenger == nil {
		return notConfigured("Messenger")
	}
	title := args.String("title")
	members := args.Strings("memberIds")
	if len(members) == 0 {
		return domain.Fail(domain.ErrorKindValidation, "At least one member is required to create a group")
	}
	chatID, err := t.messenger.CreateGroup(ctx, title, members)
	if err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{
		"created":     true,
		"chatId":      chatID,
		"title":       title,
		"memberCount": len(members),
	}, chatID)
}

// --- searchUsers / getUserInfo ---

type searchUsers struct{ messenger integrations.Messenger }

func (searchUsers) Definition() domain.ToolDefinition {
	return tool.Def("searchUsers",
		"Search for users by name or username.",
		tool.Object(map[string]any{
			"query": tool.String("The search query (name or @username)"),
			"limit": tool.Number("Maximum number of results (default: 50)"),
		}, "query"))
}

func (t searchUsers) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.messenger == nil {
		return notConfigured("Messenger")
	}
	query := args.String("query")
	users, err := t.messenger.SearchUsers(ctx, query, clampLimit(args, defaultUserLimit, maxChatLimit))
	if err != nil {
		return remoteFailure(err)
	}
	out := make([]map[string]any, 0, len(users))
	for _, u := range users {
		// bots and groups come back from the same search
		if u.Bot {
			continue
		}
		entry := summarizeUser(u)
		entry["isContact"] = u.Contact
		out = append(out, entry)
	}
	return domain.OK(map[string]any{
		"query":      query,
		"totalFound": len(out),
		"users":      out,
	})
}

type getUserInfo struct{ messenger integrations.Messenger }

func (getUserInfo) Definition() domain.ToolDefinition {
	return tool.Def("getUserInfo",
		"Get basic information about a user (name, username, phone). For common groups with a user, use getChatInfo with their userId instead.",
		tool.Object(map[string]any{
			"userId": tool.String("The ID of the user to get info for"),
		}, "userId"))
}

func (t getUserInfo) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.messenger == nil {
		return notConfigured("Messenger")
	}
	id := args.String("userId")
	u, err := t.messenger.GetUser(ctx, id)
	if err != nil {
		if integrations.IsNotFound(err) {
			return domain.Failf(domain.ErrorKindNotFound, "User not found: %s", id)
		}
		return remoteFailure(err)
	}
	if u == nil {
		return domain.Failf(domain.ErrorKindNotFound, "User not found: %s", id)
	}
	return domain.OK(summarizeUser(*u))
}
