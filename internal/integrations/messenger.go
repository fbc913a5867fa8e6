package integrations

import (
	"context"
	"time"
)

// Chat is a messenger conversation summary.
type Chat struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Type        string  `json:"type"`
	UnreadCount int     `json:"unreadCount"`
	Archived    bool    `json:"archived"`
	Pinned      bool    `json:"pinned"`
	Muted       bool    `json:"muted"`
	FolderIDs   []int64 `json:"folderIds,omitempty"`
}

// ChatFlag is a toggleable chat attribute.
type ChatFlag string

const (
	FlagArchived ChatFlag = "archived"
	FlagPinned   ChatFlag = "pinned"
	FlagMuted    ChatFlag = "muted"
)

// Message is one chat message. MediaType is empty for plain text.
type Message struct {
	ID         int64     `json:"id"`
	ChatID     string    `json:"chatId"`
	Date       time.Time `json:"date"`
	SenderID   string    `json:"senderId,omitempty"`
	SenderName string    `json:"senderName,omitempty"`
	Text       string    `json:"text"`
	MediaType  string    `json:"mediaType,omitempty"`
	Outgoing   bool      `json:"isOutgoing"`
}

// Folder is a chat folder. IncludedChatIDs lists explicit members; the
// type flags pull in whole categories of chats.
type Folder struct {
	ID              int64    `json:"id"`
	Title           string   `json:"title"`
	IncludedChatIDs []string `json:"includedChatIds,omitempty"`
	ExcludedChatIDs []string `json:"excludedChatIds,omitempty"`
	Contacts        bool     `json:"contacts,omitempty"`
	NonContacts     bool     `json:"nonContacts,omitempty"`
	Groups          bool     `json:"groups,omitempty"`
	Channels        bool     `json:"channels,omitempty"`
	Bots            bool     `json:"bots,omitempty"`
}

// HasContent reports whether the folder would match any chat. Empty
// folders are rejected by the messenger.
func (f Folder) HasContent() bool {
	return len(f.IncludedChatIDs) > 0 || f.Contacts || f.NonContacts || f.Groups || f.Channels || f.Bots
}

// MemberStatus is a member's standing in a group.
type MemberStatus string

const (
	MemberRegular    MemberStatus = "member"
	MemberAdmin      MemberStatus = "admin"
	MemberOwner      MemberStatus = "owner"
	MemberKicked     MemberStatus = "kicked"
	MemberRestricted MemberStatus = "restricted"
)

// Member is a user's membership in a group or channel.
type Member struct {
	UserID string       `json:"userId"`
	Status MemberStatus `json:"status"`
	IsBot  bool         `json:"isBot,omitempty"`
}

// User is a messenger account other than the agent's own.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Username  string `json:"username,omitempty"`
	Phone     string `json:"phoneNumber,omitempty"`
	Premium   bool   `json:"isPremium,omitempty"`
	Verified  bool   `json:"isVerified,omitempty"`
	Contact   bool   `json:"isContact,omitempty"`
	Bot       bool   `json:"isBot,omitempty"`
}

// DisplayName is the full name, falling back to the username.
func (u User) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		name = u.Username
	}
	return name
}

// Messenger is the account the agent acts on behalf of.
type Messenger interface {
	// chats
	ListChats(ctx context.Context, limit int) ([]Chat, error)
	GetChat(ctx context.Context, chatID string) (*Chat, error)
	SetFlag(ctx context.Context, chatID string, flag ChatFlag, on bool) error
	DeleteChat(ctx context.Context, chatID string) error
	MarkRead(ctx context.Context, chatID string) error

	// messages; History returns newest first, skipping offset messages
	SendMessage(ctx context.Context, chatID, text string) (messageID string, err error)
	History(ctx context.Context, chatID string, limit, offset int) ([]Message, error)
	SearchMessages(ctx context.Context, query, chatID string, limit int) ([]Message, error)
	ForwardMessages(ctx context.Context, fromChatID, toChatID string, messageIDs []int64, withoutAuthor bool) error
	DeleteMessages(ctx context.Context, chatID string, messageIDs []int64, forEveryone bool) error

	// folders
	ListFolders(ctx context.Context) ([]Folder, error)
	CreateFolder(ctx context.Context, folder Folder) (folderID int64, err error)
	DeleteFolder(ctx context.Context, folderID int64) error
	SetFolder(ctx context.Context, chatID string, folderID int64, member bool) error

	// members and users
	Members(ctx context.Context, chatID string) ([]Member, error)
	AddMembers(ctx context.Context, chatID string, userIDs []string) error
	RemoveMember(ctx context.Context, chatID, userID string) error
	CreateGroup(ctx context.Context, title string, memberIDs []string) (chatID string, err error)
	SearchUsers(ctx context.Context, query string, limit int) ([]User, error)
	GetUser(ctx context.Context, userID string) (*User, error)
}
