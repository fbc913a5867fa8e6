package testutil

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/telebiz/agentcore/internal/integrations"
)

// Recorder keeps the ordered list of collaborator calls.
type Recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *Recorder) record(name string) {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	r.mu.Unlock()
}

// Calls returns a copy of the recorded call names.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Called reports whether name was recorded at least once.
func (r *Recorder) Called(name string) bool {
	for _, c := range r.Calls() {
		if c == name {
			return true
		}
	}
	return false
}

// --- CRM ---

// FakeCRM is an in-memory CRM. Entities are keyed by type and id.
type FakeCRM struct {
	Recorder
	Integrations []integrations.Integration
	Entities     map[integrations.EntityType]map[string]*integrations.Entity
	Props        map[integrations.EntityType][]integrations.Property
	Links        map[string][]string // chatID -> "type:id"
	Err          error
	nextID       int
}

// NewFakeCRM returns a CRM with one connected integration (id 1).
func NewFakeCRM() *FakeCRM {
	return &FakeCRM{
		Integrations: []integrations.Integration{{ID: 1, Provider: "hubspot", DisplayName: "HubSpot", Status: "connected"}},
		Entities:     map[integrations.EntityType]map[string]*integrations.Entity{},
		Props:        map[integrations.EntityType][]integrations.Property{},
		Links:        map[string][]string{},
	}
}

// AddEntity seeds an entity.
func (f *FakeCRM) AddEntity(e integrations.Entity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Entities[e.Type] == nil {
		f.Entities[e.Type] = map[string]*integrations.Entity{}
	}
	f.Entities[e.Type][e.ID] = &e
}

func (f *FakeCRM) lookup(t integrations.EntityType, id string) (*integrations.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.Entities[t][id]; ok {
		return e, nil
	}
	return nil, integrations.NewNotFoundError(string(t), id)
}

func (f *FakeCRM) ListIntegrations(ctx context.Context) ([]integrations.Integration, error) {
	f.record("ListIntegrations")
	return f.Integrations, f.Err
}

func (f *FakeCRM) GetEntity(ctx context.Context, integrationID int64, t integrations.EntityType, id string) (*integrations.Entity, error) {
	f.record("GetEntity")
	if f.Err != nil {
		return nil, f.Err
	}
	return f.lookup(t, id)
}

func (f *FakeCRM) SearchEntities(ctx context.Context, integrationID int64, t integrations.EntityType, term string, limit int) ([]integrations.Entity, error) {
	f.record("SearchEntities")
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []integrations.Entity
	for _, e := range f.Entities[t] {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeCRM) GetProperties(ctx context.Context, integrationID int64, t integrations.EntityType) ([]integrations.Property, error) {
	f.record("GetProperties")
	return f.Props[t], f.Err
}

func (f *FakeCRM) UpdateEntity(ctx context.Context, integrationID int64, t integrations.EntityType, id string, fields map[string]any) (*integrations.Entity, error) {
	f.record("UpdateEntity")
	if f.Err != nil {
		return nil, f.Err
	}
	e, err := f.lookup(t, id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if e.Fields == nil {
		e.Fields = map[string]any{}
	}
	for k, v := range fields {
		e.Fields[k] = v
	}
	return e, nil
}

func (f *FakeCRM) CreateAndLink(ctx context.Context, integrationID int64, chatID string, t integrations.EntityType, fields map[string]any) (*integrations.Entity, error) {
	f.record("CreateAndLink")
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	f.nextID++
	id := string(t) + "-" + itoa(f.nextID)
	f.mu.Unlock()
	e := integrations.Entity{ID: id, Type: t, Fields: fields}
	f.AddEntity(e)
	f.mu.Lock()
	f.Links[chatID] = append(f.Links[chatID], string(t)+":"+id)
	f.mu.Unlock()
	return &e, nil
}

func (f *FakeCRM) CreateChild(ctx context.Context, integrationID int64, t, parentType integrations.EntityType, parentID string, fields map[string]any) (*integrations.Entity, error) {
	f.record("CreateChild")
	if f.Err != nil {
		return nil, f.Err
	}
	if _, err := f.lookup(parentType, parentID); err != nil {
		return nil, err
	}
	return &integrations.Entity{ID: "note-1", Type: t, Fields: fields}, nil
}

func (f *FakeCRM) LinkEntityToChat(ctx context.Context, integrationID int64, chatID string, t integrations.EntityType, id string) error {
	f.record("LinkEntityToChat")
	if f.Err != nil {
		return f.Err
	}
	if _, err := f.lookup(t, id); err != nil {
		return err
	}
	f.mu.Lock()
	f.Links[chatID] = append(f.Links[chatID], string(t)+":"+id)
	f.mu.Unlock()
	return nil
}

func (f *FakeCRM) Associate(ctx context.Context, integrationID int64, fromType integrations.EntityType, fromID string, toType integrations.EntityType, toID string) error {
	f.record("Associate")
	if f.Err != nil {
		return f.Err
	}
	if _, err := f.lookup(fromType, fromID); err != nil {
		return err
	}
	_, err := f.lookup(toType, toID)
	return err
}

// --- Notion ---

// FakeNotion is an in-memory Notion workspace.
type FakeNotion struct {
	Recorder
	Props  []integrations.Property
	Pages  map[string]*integrations.NotionPage
	Blocks map[string][]integrations.NotionBlock
	Notes  map[string][]string
	Err    error
}

// NewFakeNotion returns an empty workspace.
func NewFakeNotion() *FakeNotion {
	return &FakeNotion{
		Pages:  map[string]*integrations.NotionPage{},
		Blocks: map[string][]integrations.NotionBlock{},
		Notes:  map[string][]string{},
	}
}

func (f *FakeNotion) page(id string) (*integrations.NotionPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.Pages[id]
	if !ok {
		return nil, integrations.NewNotFoundError("page", id)
	}
	return p, nil
}

func (f *FakeNotion) GetProperties(ctx context.Context, integrationID int64, pageID string) ([]integrations.Property, error) {
	f.record("GetProperties")
	return f.Props, f.Err
}

func (f *FakeNotion) GetPage(ctx context.Context, integrationID int64, pageID string) (*integrations.NotionPage, []integrations.NotionBlock, error) {
	f.record("GetPage")
	if f.Err != nil {
		return nil, nil, f.Err
	}
	p, err := f.page(pageID)
	if err != nil {
		return nil, nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return p, append([]integrations.NotionBlock(nil), f.Blocks[pageID]...), nil
}

func (f *FakeNotion) UpdatePageProperty(ctx context.Context, integrationID int64, pageID, property string, value any) error {
	f.record("UpdatePageProperty")
	if f.Err != nil {
		return f.Err
	}
	p, err := f.page(pageID)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.Properties == nil {
		p.Properties = map[string]any{}
	}
	p.Properties[property] = value
	return nil
}

func (f *FakeNotion) UpdateBlock(ctx context.Context, integrationID int64, pageID, blockID, content string) error {
	f.record("UpdateBlock")
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, b := range f.Blocks[pageID] {
		if b.ID == blockID {
			f.Blocks[pageID][i].Text = content
			return nil
		}
	}
	return integrations.NewNotFoundError("block", blockID)
}

func (f *FakeNotion) SetTodoChecked(ctx context.Context, integrationID int64, pageID, blockID string, checked bool) error {
	f.record("SetTodoChecked")
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, b := range f.Blocks[pageID] {
		if b.ID == blockID {
			c := checked
			f.Blocks[pageID][i].Checked = &c
			return nil
		}
	}
	return integrations.NewNotFoundError("block", blockID)
}

func (f *FakeNotion) AppendNote(ctx context.Context, integrationID int64, pageID, content string) error {
	f.record("AppendNote")
	if f.Err != nil {
		return f.Err
	}
	if _, err := f.page(pageID); err != nil {
		return err
	}
	f.mu.Lock()
	f.Notes[pageID] = append(f.Notes[pageID], content)
	f.mu.Unlock()
	return nil
}

func (f *FakeNotion) CreatePage(ctx context.Context, integrationID int64, chatID, title, parentPageID string) (*integrations.NotionPage, error) {
	f.record("CreatePage")
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &integrations.NotionPage{ID: "page-" + itoa(len(f.Pages)+1), Title: title}
	f.Pages[p.ID] = p
	return p, nil
}

// --- Reminders ---

// FakeReminders is an in-memory reminders store.
type FakeReminders struct {
	Recorder
	items  []integrations.Reminder
	nextID int64
	Now    func() time.Time
}

// NewFakeReminders returns an empty store.
func NewFakeReminders() *FakeReminders {
	return &FakeReminders{Now: time.Now}
}

func (f *FakeReminders) find(id int64) (int, error) {
	for i, r := range f.items {
		if r.ID == id {
			return i, nil
		}
	}
	return -1, integrations.NewNotFoundError("reminder", itoa(int(id)))
}

func (f *FakeReminders) ListReminders(ctx context.Context, chatID string) ([]integrations.Reminder, error) {
	f.record("ListReminders")
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []integrations.Reminder
	for _, r := range f.items {
		if chatID == "" || r.ChatID == chatID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *FakeReminders) CreateReminder(ctx context.Context, r integrations.Reminder) (*integrations.Reminder, error) {
	f.record("CreateReminder")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	r.ID = f.nextID
	r.CreatedAt = f.Now()
	f.items = append(f.items, r)
	return &r, nil
}

func (f *FakeReminders) CompleteReminder(ctx context.Context, id int64) (*integrations.Reminder, error) {
	f.record("CompleteReminder")
	f.mu.Lock()
	defer f.mu.Unlock()
	i, err := f.find(id)
	if err != nil {
		return nil, err
	}
	f.items[i].Completed = true
	r := f.items[i]
	return &r, nil
}

func (f *FakeReminders) DeleteReminder(ctx context.Context, id int64) error {
	f.record("DeleteReminder")
	f.mu.Lock()
	defer f.mu.Unlock()
	i, err := f.find(id)
	if err != nil {
		return err
	}
	f.items = append(f.items[:i], f.items[i+1:]...)
	return nil
}

func (f *FakeReminders) UpdateReminder(ctx context.Context, id int64, upd integrations.ReminderUpdate) (*integrations.Reminder, error) {
	f.record("UpdateReminder")
	f.mu.Lock()
	defer f.mu.Unlock()
	i, err := f.find(id)
	if err != nil {
		return nil, err
	}
	if upd.Description != nil {
		f.items[i].Description = *upd.Description
	}
	if upd.RemindAt != nil {
		f.items[i].RemindAt = *upd.RemindAt
	}
	r := f.items[i]
	return &r, nil
}

func (f *FakeReminders) DueReminders(ctx context.Context, now time.Time) ([]integrations.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []integrations.Reminder
	for _, r := range f.items {
		if !r.Completed && !r.Notified && !r.RemindAt.After(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *FakeReminders) MarkNotified(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, err := f.find(id)
	if err != nil {
		return err
	}
	f.items[i].Notified = true
	return nil
}

// --- Tasks ---

// FakeTasks is an in-memory task inbox.
type FakeTasks struct {
	Recorder
	Order     []string
	Pending   map[string][]integrations.Notification
	Rels      map[string]*integrations.Relationship
	Dismissed []int64
	Snoozed   map[int64]int
	FailIDs   map[int64]bool
	nextID    int64
}

// NewFakeTasks returns an empty inbox.
func NewFakeTasks() *FakeTasks {
	return &FakeTasks{
		Pending: map[string][]integrations.Notification{},
		Rels:    map[string]*integrations.Relationship{},
		Snoozed: map[int64]int{},
		FailIDs: map[int64]bool{},
	}
}

// Add seeds a pending task.
func (f *FakeTasks) Add(n integrations.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Pending[n.ChatID]; !ok {
		f.Order = append(f.Order, n.ChatID)
	}
	if n.Status == "" {
		n.Status = "pending"
	}
	f.Pending[n.ChatID] = append(f.Pending[n.ChatID], n)
}

func (f *FakeTasks) PendingChatIDs(ctx context.Context) ([]string, error) {
	f.record("PendingChatIDs")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Order...), nil
}

func (f *FakeTasks) PendingForChat(ctx context.Context, chatID string) ([]integrations.Notification, error) {
	f.record("PendingForChat")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]integrations.Notification(nil), f.Pending[chatID]...), nil
}

func (f *FakeTasks) Relationship(ctx context.Context, chatID string) (*integrations.Relationship, error) {
	f.record("Relationship")
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.Rels[chatID]; ok {
		return r, nil
	}
	return nil, integrations.NewNotFoundError("relationship", chatID)
}

func (f *FakeTasks) Dismiss(ctx context.Context, id int64) error {
	f.record("Dismiss")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailIDs[id] {
		return errors.New("task service unavailable")
	}
	f.Dismissed = append(f.Dismissed, id)
	return nil
}

func (f *FakeTasks) Snooze(ctx context.Context, id int64, minutes int) error {
	f.record("Snooze")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailIDs[id] {
		return errors.New("task service unavailable")
	}
	f.Snoozed[id] = minutes
	return nil
}

func (f *FakeTasks) Notify(ctx context.Context, n integrations.Notification) (*integrations.Notification, error) {
	f.record("Notify")
	f.mu.Lock()
	f.nextID++
	n.ID = f.nextID
	f.mu.Unlock()
	f.Add(n)
	return &n, nil
}

// --- Messenger ---

// SentMessage is one message sent through FakeMessenger.
type SentMessage struct {
	ChatID string
	Text   string
}

// Forward is one forwardMessages call seen by FakeMessenger.
type Forward struct {
	From, To      string
	MessageIDs    []int64
	WithoutAuthor bool
}

// FakeMessenger is an in-memory messenger account. Folder membership lives
// on Chat.FolderIDs; ListFolders derives IncludedChatIDs from it.
type FakeMessenger struct {
	Recorder
	Chats    map[string]*integrations.Chat
	Order    []string
	Sent     []SentMessage
	Forwards []Forward
	Err      error

	// Messages holds each chat's history, oldest first.
	Messages    map[string][]integrations.Message
	Folders     map[int64]*integrations.Folder
	FolderOrder []int64
	ChatMembers map[string][]integrations.Member
	Users       map[string]*integrations.User

	nextFolder int64
	nextGroup  int
}

// NewFakeMessenger seeds the given chats.
func NewFakeMessenger(chats ...integrations.Chat) *FakeMessenger {
	f := &FakeMessenger{
		Chats:       map[string]*integrations.Chat{},
		Messages:    map[string][]integrations.Message{},
		Folders:     map[int64]*integrations.Folder{},
		ChatMembers: map[string][]integrations.Member{},
		Users:       map[string]*integrations.User{},
		nextFolder:  100,
	}
	for _, c := range chats {
		c := c
		f.Chats[c.ID] = &c
		f.Order = append(f.Order, c.ID)
	}
	return f
}

// AddMessages appends msgs to a chat's history.
func (f *FakeMessenger) AddMessages(chatID string, msgs ...integrations.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		m.ChatID = chatID
		f.Messages[chatID] = append(f.Messages[chatID], m)
	}
}

// AddFolder seeds a folder and puts its included chats in it.
func (f *FakeMessenger) AddFolder(folder integrations.Folder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addFolder(folder)
}

func (f *FakeMessenger) addFolder(folder integrations.Folder) {
	for _, id := range folder.IncludedChatIDs {
		if c, ok := f.Chats[id]; ok && !hasID(c.FolderIDs, folder.ID) {
			c.FolderIDs = append(c.FolderIDs, folder.ID)
		}
	}
	folder.IncludedChatIDs = nil
	f.Folders[folder.ID] = &folder
	f.FolderOrder = append(f.FolderOrder, folder.ID)
}

// AddUser seeds a user.
func (f *FakeMessenger) AddUser(u integrations.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Users[u.ID] = &u
}

// SetMembers replaces a group's member list.
func (f *FakeMessenger) SetMembers(chatID string, members ...integrations.Member) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ChatMembers[chatID] = members
}

// MemberIDs returns the user ids of a group's members.
func (f *FakeMessenger) MemberIDs(chatID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.ChatMembers[chatID] {
		out = append(out, m.UserID)
	}
	return out
}

func hasID(ids []int64, id int64) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func (f *FakeMessenger) chat(id string) (*integrations.Chat, error) {
	c, ok := f.Chats[id]
	if !ok {
		return nil, integrations.NewNotFoundError("chat", id)
	}
	return c, nil
}

func (f *FakeMessenger) ListChats(ctx context.Context, limit int) ([]integrations.Chat, error) {
	f.record("ListChats")
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]integrations.Chat, 0, len(f.Order))
	for _, id := range f.Order {
		out = append(out, *f.Chats[id])
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, f.Err
}

func (f *FakeMessenger) GetChat(ctx context.Context, chatID string) (*integrations.Chat, error) {
	f.record("GetChat")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	c, err := f.chat(chatID)
	if err != nil {
		return nil, err
	}
	cp := *c
	return &cp, nil
}

func (f *FakeMessenger) SendMessage(ctx context.Context, chatID, text string) (string, error) {
	f.record("SendMessage")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	if _, err := f.chat(chatID); err != nil {
		return "", err
	}
	f.Sent = append(f.Sent, SentMessage{ChatID: chatID, Text: text})
	return "msg-" + itoa(len(f.Sent)), nil
}

func (f *FakeMessenger) SetFlag(ctx context.Context, chatID string, flag integrations.ChatFlag, on bool) error {
	f.record("SetFlag:" + string(flag))
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	c, err := f.chat(chatID)
	if err != nil {
		return err
	}
	switch flag {
	case integrations.FlagArchived:
		c.Archived = on
	case integrations.FlagPinned:
		c.Pinned = on
	case integrations.FlagMuted:
		c.Muted = on
	}
	return nil
}

func (f *FakeMessenger) DeleteChat(ctx context.Context, chatID string) error {
	f.record("DeleteChat")
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.chat(chatID); err != nil {
		return err
	}
	delete(f.Chats, chatID)
	for i, id := range f.Order {
		if id == chatID {
			f.Order = append(f.Order[:i], f.Order[i+1:]...)
			break
		}
	}
	return nil
}

func (f *FakeMessenger) MarkRead(ctx context.Context, chatID string) error {
	f.record("MarkRead")
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.chat(chatID)
	if err != nil {
		return err
	}
	c.UnreadCount = 0
	return nil
}

func (f *FakeMessenger) History(ctx context.Context, chatID string, limit, offset int) ([]integrations.Message, error) {
	f.record("History")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if _, err := f.chat(chatID); err != nil {
		return nil, err
	}
	all := f.Messages[chatID]
	end := len(all) - offset
	if end <= 0 {
		return nil, nil
	}
	start := end - limit
	if limit <= 0 || start < 0 {
		start = 0
	}
	out := make([]integrations.Message, 0, end-start)
	for i := end - 1; i >= start; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (f *FakeMessenger) SearchMessages(ctx context.Context, query, chatID string, limit int) ([]integrations.Message, error) {
	f.record("SearchMessages")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	chats := f.Order
	if chatID != "" {
		if _, err := f.chat(chatID); err != nil {
			return nil, err
		}
		chats = []string{chatID}
	}
	q := strings.ToLower(query)
	var out []integrations.Message
	for _, id := range chats {
		msgs := f.Messages[id]
		for i := len(msgs) - 1; i >= 0; i-- {
			if strings.Contains(strings.ToLower(msgs[i].Text), q) {
				out = append(out, msgs[i])
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeMessenger) ForwardMessages(ctx context.Context, fromChatID, toChatID string, messageIDs []int64, withoutAuthor bool) error {
	f.record("ForwardMessages")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	for _, id := range []string{fromChatID, toChatID} {
		if _, err := f.chat(id); err != nil {
			return err
		}
	}
	f.Forwards = append(f.Forwards, Forward{From: fromChatID, To: toChatID, MessageIDs: messageIDs, WithoutAuthor: withoutAuthor})
	return nil
}

func (f *FakeMessenger) DeleteMessages(ctx context.Context, chatID string, messageIDs []int64, forEveryone bool) error {
	f.record("DeleteMessages")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if _, err := f.chat(chatID); err != nil {
		return err
	}
	drop := map[int64]bool{}
	for _, id := range messageIDs {
		drop[id] = true
	}
	var kept []integrations.Message
	for _, m := range f.Messages[chatID] {
		if !drop[m.ID] {
			kept = append(kept, m)
		}
	}
	f.Messages[chatID] = kept
	return nil
}

func (f *FakeMessenger) ListFolders(ctx context.Context) ([]integrations.Folder, error) {
	f.record("ListFolders")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]integrations.Folder, 0, len(f.FolderOrder))
	for _, id := range f.FolderOrder {
		folder := *f.Folders[id]
		for _, chatID := range f.Order {
			if hasID(f.Chats[chatID].FolderIDs, id) {
				folder.IncludedChatIDs = append(folder.IncludedChatIDs, chatID)
			}
		}
		out = append(out, folder)
	}
	return out, nil
}

func (f *FakeMessenger) CreateFolder(ctx context.Context, folder integrations.Folder) (int64, error) {
	f.record("CreateFolder")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, f.Err
	}
	if !folder.HasContent() {
		return 0, errors.New("folder is empty")
	}
	f.nextFolder++
	folder.ID = f.nextFolder
	f.addFolder(folder)
	return folder.ID, nil
}

func (f *FakeMessenger) DeleteFolder(ctx context.Context, folderID int64) error {
	f.record("DeleteFolder")
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Folders[folderID]; !ok {
		return integrations.NewNotFoundError("folder", strconv.FormatInt(folderID, 10))
	}
	delete(f.Folders, folderID)
	for i, id := range f.FolderOrder {
		if id == folderID {
			f.FolderOrder = append(f.FolderOrder[:i], f.FolderOrder[i+1:]...)
			break
		}
	}
	for _, c := range f.Chats {
		var kept []int64
		for _, id := range c.FolderIDs {
			if id != folderID {
				kept = append(kept, id)
			}
		}
		c.FolderIDs = kept
	}
	return nil
}

func (f *FakeMessenger) SetFolder(ctx context.Context, chatID string, folderID int64, member bool) error {
	f.record("SetFolder")
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.chat(chatID)
	if err != nil {
		return err
	}
	var out []int64
	for _, id := range c.FolderIDs {
		if id != folderID {
			out = append(out, id)
		}
	}
	if member {
		out = append(out, folderID)
	}
	c.FolderIDs = out
	return nil
}

func (f *FakeMessenger) Members(ctx context.Context, chatID string) ([]integrations.Member, error) {
	f.record("Members")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if _, err := f.chat(chatID); err != nil {
		return nil, err
	}
	return append([]integrations.Member(nil), f.ChatMembers[chatID]...), nil
}

func (f *FakeMessenger) AddMembers(ctx context.Context, chatID string, userIDs []string) error {
	f.record("AddMembers")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if _, err := f.chat(chatID); err != nil {
		return err
	}
	members := f.ChatMembers[chatID]
next:
	for _, id := range userIDs {
		for i := range members {
			if members[i].UserID == id {
				members[i].Status = integrations.MemberRegular
				continue next
			}
		}
		members = append(members, integrations.Member{UserID: id, Status: integrations.MemberRegular})
	}
	f.ChatMembers[chatID] = members
	return nil
}

func (f *FakeMessenger) RemoveMember(ctx context.Context, chatID, userID string) error {
	f.record("RemoveMember")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if _, err := f.chat(chatID); err != nil {
		return err
	}
	members := f.ChatMembers[chatID]
	for i, m := range members {
		if m.UserID == userID {
			f.ChatMembers[chatID] = append(members[:i], members[i+1:]...)
			return nil
		}
	}
	return integrations.NewNotFoundError("member", userID)
}

func (f *FakeMessenger) CreateGroup(ctx context.Context, title string, memberIDs []string) (string, error) {
	f.record("CreateGroup")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	f.nextGroup++
	id := "g" + itoa(f.nextGroup)
	f.Chats[id] = &integrations.Chat{ID: id, Title: title, Type: "group"}
	f.Order = append(f.Order, id)
	members := []integrations.Member{{UserID: "me", Status: integrations.MemberOwner}}
	for _, u := range memberIDs {
		members = append(members, integrations.Member{UserID: u, Status: integrations.MemberRegular})
	}
	f.ChatMembers[id] = members
	return id, nil
}

func (f *FakeMessenger) SearchUsers(ctx context.Context, query string, limit int) ([]integrations.User, error) {
	f.record("SearchUsers")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	q := strings.ToLower(strings.TrimPrefix(query, "@"))
	ids := make([]string, 0, len(f.Users))
	for id := range f.Users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []integrations.User
	for _, id := range ids {
		u := f.Users[id]
		if strings.Contains(strings.ToLower(u.DisplayName()), q) || strings.Contains(strings.ToLower(u.Username), q) {
			out = append(out, *u)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeMessenger) GetUser(ctx context.Context, userID string) (*integrations.User, error) {
	f.record("GetUser")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	u, ok := f.Users[userID]
	if !ok {
		return nil, integrations.NewNotFoundError("user", userID)
	}
	cp := *u
	return &cp, nil
}
