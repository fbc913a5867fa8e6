package chattool

import (
	"context"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/integrations"
	"github.com/telebiz/agentcore/internal/tool"
)

func findFolder(ctx context.Context, m integrations.Messenger, folderID int64) (*integrations.Folder, *domain.ToolResult) {
	folders, err := m.ListFolders(ctx)
	if err != nil {
		res := remoteFailure(err)
		return nil, &res
	}
	for i := range folders {
		if folders[i].ID == folderID {
			return &folders[i], nil
		}
	}
	res := domain.Failf(domain.ErrorKindNotFound, "Folder not found: %d", folderID)
	return nil, &res
}

func folderArgs(f integrations.Folder) map[string]any {
	args := map[string]any{"title": f.Title}
	if len(f.IncludedChatIDs) > 0 {
		args["includedChatIds"] = toAny(f.IncludedChatIDs)
	}
	if len(f.ExcludedChatIDs) > 0 {
		args["excludedChatIds"] = toAny(f.ExcludedChatIDs)
	}
	for key, on := range map[string]bool{
		"includeContacts":    f.Contacts,
		"includeNonContacts": f.NonContacts,
		"includeGroups":      f.Groups,
		"includeChannels":    f.Channels,
		"includeBots":        f.Bots,
	} {
		if on {
			args[key] = true
		}
	}
	return args
}

func toAny[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// --- listFolders ---

type listFolders struct{ messenger integrations.Messenger }

func (listFolders) Definition() domain.ToolDefinition {
	return tool.Def("listFolders",
		"Get all chat folders with their IDs, names, and included chat counts.",
		tool.Object(map[string]any{}))
}

func (t listFolders) Execute(ctx context.Context, _ tool.Args) domain.ToolResult {
	if t.messenger == nil {
		return notConfigured("Messenger")
	}
	folders, err := t.messenger.ListFolders(ctx)
	if err != nil {
		return remoteFailure(err)
	}
	out := make([]map[string]any, len(folders))
	for i, f := range folders {
		out[i] = map[string]any{
			"id":                f.ID,
			"title":             f.Title,
			"includedChatCount": len(f.IncludedChatIDs),
			"excludedChatCount": len(f.ExcludedChatIDs),
			"hasContacts":       f.Contacts,
			"hasNonContacts":    f.NonContacts,
			"hasGroups":         f.Groups,
			"hasChannels":       f.Channels,
			"hasBots":           f.Bots,
		}
	}
	return domain.OK(map[string]any{"total": len(out), "folders": out})
}

// --- createFolder / deleteFolder ---

type createFolder struct{ messenger integrations.Messenger }

func (createFolder) Definition() domain.ToolDefinition {
	return tool.Def("createFolder",
		"Create a new chat folder. IMPORTANT: You MUST provide either includedChatIds with at least one chat, "+
			"OR at least one chat type filter (includeContacts, includeGroups, includeChannels, etc.). "+
			"Empty folders cannot be created - always gather the chat IDs first before calling this tool.",
		tool.Object(map[string]any{
			"title":              tool.String("The name of the folder"),
			"includedChatIds":    tool.Array("Array of chat IDs to include in the folder. Required if no chat type filters are set.", map[string]any{"type": "string"}),
			"excludedChatIds":    tool.Array("Array of chat IDs to exclude from the folder", map[string]any{"type": "string"}),
			"includeContacts":    tool.Boolean("Include all contacts"),
			"includeNonContacts": tool.Boolean("Include non-contacts"),
			"includeGroups":      tool.Boolean("Include groups"),
			"includeChannels":    tool.Boolean("Include channels"),
			"includeBots":        tool.Boolean("Include bots"),
		}, "title"))
}

func (createFolder) AffectedChats(args tool.Args) []string {
	return args.Strings("includedChatIds")
}

func (t createFolder) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.messenger == nil {
		return notConfigured("Messenger")
	}
	flag := func(key string) bool {
		on, _ := args.Bool(key)
		return on
	}
	folder := integrations.Folder{
		Title:           args.String("title"),
		IncludedChatIDs: args.Strings("includedChatIds"),
		ExcludedChatIDs: args.Strings("excludedChatIds"),
		Contacts:        flag("includeContacts"),
		NonContacts:     flag("includeNonContacts"),
		Groups:          flag("includeGroups"),
		Channels:        flag("includeChannels"),
		Bots:            flag("includeBots"),
	}
	if !folder.HasContent() {
		return domain.Fail(domain.ErrorKindValidation,
			"Folder must include at least one chat or chat type filter (contacts, groups, channels, etc.)")
	}
	id, err := t.messenger.CreateFolder(ctx, folder)
	if err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{"created": folder.Title, "folderId": id})
}

func (createFolder) Inverse(_ tool.Args, result domain.ToolResult) (domain.UndoAction, bool) {
	if !result.Success {
		return domain.UndoAction{}, false
	}
	data, _ := result.Data.(map[string]any)
	id, ok := data["folderId"].(int64)
	if !ok {
		return domain.UndoAction{}, false
	}
	return domain.UndoAction{ToolName: "deleteFolder", Args: map[string]any{"folderId": id}}, true
}

type deleteFolder struct{ messenger integrations.Messenger }

func (deleteFolder) Definition() domain.ToolDefinition {
	return tool.Def("deleteFolder",
		"Delete a chat folder. WARNING: This is a destructive action.",
		tool.Object(map[string]any{
			"folderId": tool.Number("The ID of the folder to delete"),
		}, "folderId"))
}

func (t deleteFolder) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.messenger == nil {
		return notConfigured("Messenger")
	}
	id := args.Int("folderId", -1)
	folder, fail := findFolder(ctx, t.messenger, id)
	if fail != nil {
		return *fail
	}
	if err := t.messenger.DeleteFolder(ctx, id); err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{
		"deleted": id,
		"title":   folder.Title,
		"folder":  *folder,
	}, folder.IncludedChatIDs...)
}

// Inverse recreates the folder from the snapshot taken before deletion.
// The new folder gets a new id.
func (deleteFolder) Inverse(_ tool.Args, result domain.ToolResult) (domain.UndoAction, bool) {
	if !result.Success {
		return domain.UndoAction{}, false
	}
	data, _ := result.Data.(map[string]any)
	folder, ok := data["folder"].(integrations.Folder)
	if !ok || !folder.HasContent() {
		return domain.UndoAction{}, false
	}
	return domain.UndoAction{ToolName: "createFolder", Args: folderArgs(folder)}, true
}

// --- batchAddToFolder ---

type batchAddToFolder struct {
	chatIDsArg
	messenger integrations.Messenger
}

func (batchAddToFolder) Definition() domain.ToolDefinition {
	return tool.Def("batchAddToFolder",
		"Add multiple chats to an existing folder in a single operation. "+
			"Use this to add chats to a folder that already exists. "+
			"For new folders, prefer createFolder with includedChatIds instead of creating empty folder then using this.",
		tool.Object(map[string]any{
			"chatIds":  tool.Array("Array of chat IDs to add to the folder", map[string]any{"type": "string"}),
			"folderId": tool.Number("The ID of the folder to add chats to"),
		}, "chatIds", "folderId"))
}

func (t batchAddToFolder) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.messenger == nil {
		return notConfigured("Messenger")
	}
	folderID := args.Int("folderId", -1)
	folder, fail := findFolder(ctx, t.messenger, folderID)
	if fail != nil {
		return *fail
	}
	chatIDs := args.Strings("chatIds")
	included := make(map[string]bool, len(folder.IncludedChatIDs))
	for _, id := range folder.IncludedChatIDs {
		included[id] = true
	}
	var fresh []string
	for _, id := range chatIDs {
		if !included[id] {
			fresh = append(fresh, id)
			included[id] = true
		}
	}
	if len(fresh) == 0 {
		return domain.OK(map[string]any{
			"added":           0,
			"total":           len(chatIDs),
			"toFolder":        folder.Title,
			"alreadyIncluded": len(chatIDs),
		})
	}

	res := perChat(ctx, fresh, func(chatID string) error {
		return t.messenger.SetFolder(ctx, chatID, folderID, true)
	})
	data, _ := res.Data.(map[string]any)
	data["added"] = data["succeeded"]
	data["total"] = len(chatIDs)
	data["toFolder"] = folder.Title
	data["alreadyIncluded"] = len(chatIDs) - len(fresh)
	return res
}

// Inverse is only defined for a call that changed nothing; removing chats
// again takes one removeChatFromFolder per chat.
func (batchAddToFolder) Inverse(_ tool.Args, result domain.ToolResult) (domain.UndoAction, bool) {
	if !result.Success {
		return domain.UndoAction{}, false
	}
	if data, _ := result.Data.(map[string]any); data["added"] == 0 {
		return domain.UndoAction{}, true
	}
	return domain.UndoAction{}, false
}
