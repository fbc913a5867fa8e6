package integrations

import "context"

// NotionBlock is one content block of a page.
type NotionBlock struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Text    string `json:"text"`
	Checked *bool  `json:"checked,omitempty"`
}

// NotionPage is a page with its properties.
type NotionPage struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	URL        string         `json:"url,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Notion is the contract for the Notion integration.
type Notion interface {
	GetProperties(ctx context.Context, integrationID int64, pageID string) ([]Property, error)
	GetPage(ctx context.Context, integrationID int64, pageID string) (*NotionPage, []NotionBlock, error)
	UpdatePageProperty(ctx context.Context, integrationID int64, pageID, property string, value any) error
	UpdateBlock(ctx context.Context, integrationID int64, pageID, blockID, content string) error
	SetTodoChecked(ctx context.Context, integrationID int64, pageID, blockID string, checked bool) error
	AppendNote(ctx context.Context, integrationID int64, pageID, content string) error
	// CreatePage creates a page, optionally under parentPageID, and links it
	// to chatID.
	CreatePage(ctx context.Context, integrationID int64, chatID, title, parentPageID string) (*NotionPage, error)
}
