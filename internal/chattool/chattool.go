// Package chattool is the always-on tool set: chat actions over the
// messenger account, the pending task inbox and useExtraTool, which loads
// an extra bundle into the running session.
package chattool

import (
	"sync"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/extratool"
	"github.com/telebiz/agentcore/internal/integrations"
	"github.com/telebiz/agentcore/internal/tool"
)

// SetName is the owner name used for policy patterns and error messages.
const SetName = "core"

// UseExtraTool is the name of the bundle loading tool.
const UseExtraTool = "useExtraTool"

// Deps are the collaborators of the core tools. Messenger and Tasks may be
// nil; the tools that need them then fail with a business error.
type Deps struct {
	Messenger integrations.Messenger
	Tasks     integrations.Tasks
	Bundles   *extratool.Registry

	// CurrentChat returns the chat the user has open, "" for none.
	CurrentChat func() string
	// OpenChat moves the user to a chat. When both are nil the set keeps
	// the open chat itself.
	OpenChat func(chatID string)
}

// focus is the open chat when no UI owns it.
type focus struct {
	mu     sync.Mutex
	chatID string
}

func (f *focus) get() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chatID
}

func (f *focus) set(chatID string) {
	f.mu.Lock()
	f.chatID = chatID
	f.mu.Unlock()
}

// NewSet builds the core tool set.
func NewSet(d Deps) *tool.Set {
	switch {
	case d.CurrentChat == nil && d.OpenChat == nil:
		f := &focus{}
		d.CurrentChat, d.OpenChat = f.get, f.set
	case d.CurrentChat == nil:
		d.CurrentChat = func() string { return "" }
	case d.OpenChat == nil:
		d.OpenChat = func(string) {}
	}
	set := tool.NewSet(SetName)

	// read-only
	set.Register(listChats{messenger: d.Messenger}, true)
	set.Register(getChatInfo{messenger: d.Messenger}, true)
	set.Register(getCurrentChat{messenger: d.Messenger, current: d.CurrentChat}, true)
	set.Register(listPendingChats{tasks: d.Tasks, messenger: d.Messenger}, true)
	set.Register(getChatTasks{tasks: d.Tasks, messenger: d.Messenger}, true)
	set.Register(getChatRelationship{tasks: d.Tasks}, true)
	set.Register(getRecentMessages{messenger: d.Messenger}, true)
	set.Register(searchMessages{messenger: d.Messenger}, true)
	set.Register(listFolders{messenger: d.Messenger}, true)
	set.Register(getChatMembers{messenger: d.Messenger}, true)
	set.Register(searchUsers{messenger: d.Messenger}, true)
	set.Register(getUserInfo{messenger: d.Messenger}, true)
	set.Register(useExtraTool{bundles: d.Bundles}, true)

	// writes
	set.Register(openChat{messenger: d.Messenger, open: d.OpenChat}, false)
	set.Register(sendMessage{messenger: d.Messenger}, false)
	set.Register(batchSendMessage{messenger: d.Messenger}, false)
	set.Register(forwardMessages{messenger: d.Messenger}, false)
	set.Register(deleteMessages{messenger: d.Messenger}, false)
	for _, f := range flagTools {
		set.Register(flagTool{flagSpec: f, messenger: d.Messenger}, false)
	}
	set.Register(batchArchive{messenger: d.Messenger}, false)
	set.Register(deleteChat{messenger: d.Messenger}, false)
	set.Register(markChatAsRead{messenger: d.Messenger}, false)
	set.Register(folderTool{name: "addChatToFolder", member: true, messenger: d.Messenger}, false)
	set.Register(folderTool{name: "removeChatFromFolder", member: false, messenger: d.Messenger}, false)
	set.Register(createFolder{messenger: d.Messenger}, false)
	set.Register(deleteFolder{messenger: d.Messenger}, false)
	set.Register(batchAddToFolder{messenger: d.Messenger}, false)
	set.Register(addChatMembers{messenger: d.Messenger}, false)
	set.Register(removeChatMember{messenger: d.Messenger}, false)
	set.Register(createGroup{messenger: d.Messenger}, false)
	set.Register(dismissTask{name: "dismissTask", tasks: d.Tasks}, false)
	set.Register(dismissTask{name: "dismissNotification", tasks: d.Tasks}, false)
	set.Register(snoozeTask{tasks: d.Tasks}, false)
	return set
}

func notConfigured(what string) domain.ToolResult {
	return domain.Failf(domain.ErrorKindBusiness, "%s is not configured", what)
}

func remoteFailure(err error) domain.ToolResult {
	if integrations.IsNotFound(err) {
		return domain.Fail(domain.ErrorKindNotFound, err.Error())
	}
	return domain.Fail(domain.ErrorKindRemote, err.Error())
}

func chatNotFound(id string) domain.ToolResult {
	return domain.Failf(domain.ErrorKindNotFound, "Chat not found: %s", id)
}

// chatIDArg declares the chatId argument as the affected chat.
type chatIDArg struct{}

func (chatIDArg) AffectedChats(args tool.Args) []string {
	if id := args.String("chatId"); id != "" {
		return []string{id}
	}
	return nil
}

// chatIDsArg declares every entry of chatIds.
type chatIDsArg struct{}

func (chatIDsArg) AffectedChats(args tool.Args) []string {
	return args.Strings("chatIds")
}

func chatIDProp(action string) map[string]any {
	return tool.String("The ID of the chat to " + action)
}
