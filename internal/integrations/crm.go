package integrations

import (
	"context"
	"strings"
	"time"
)

// EntityType is a CRM record kind.
type EntityType string

const (
	EntityDeal    EntityType = "deal"
	EntityContact EntityType = "contact"
	EntityCompany EntityType = "company"
	EntityNote    EntityType = "note"
)

// ParseEntityType maps model input to an EntityType. "organization" is
// accepted as a synonym of company.
func ParseEntityType(s string) EntityType {
	t := EntityType(strings.ToLower(strings.TrimSpace(s)))
	if t == "organization" {
		return EntityCompany
	}
	return t
}

// Valid reports whether t is a linkable entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityDeal, EntityContact, EntityCompany:
		return true
	}
	return false
}

// Integration is a connected CRM or Notion account.
type Integration struct {
	ID           int64  `json:"id"`
	Provider     string `json:"provider"`
	DisplayName  string `json:"displayName"`
	Status       string `json:"status"`
	AccountEmail string `json:"accountEmail,omitempty"`
}

// Entity is a CRM record summarized for the model.
type Entity struct {
	ID        string         `json:"id"`
	Type      EntityType     `json:"type"`
	Title     string         `json:"title,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt,omitzero"`
}

// PropertyOption is one allowed value of a select property.
type PropertyOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Property describes an entity field and its allowed values.
type Property struct {
	Name         string           `json:"name"`
	StandardName string           `json:"standardName"`
	Label        string           `json:"label"`
	Type         string           `json:"type"`
	DependsOn    string           `json:"dependsOn,omitempty"`
	Options      []PropertyOption `json:"options,omitempty"`
}

// CRM is the contract for CRM providers (HubSpot, Pipedrive, ...).
// LinkEntityToChat must return an error matching ErrNotFound when the
// entity does not exist. No method creates an entity implicitly.
type CRM interface {
	ListIntegrations(ctx context.Context) ([]Integration, error)
	GetEntity(ctx context.Context, integrationID int64, entityType EntityType, entityID string) (*Entity, error)
	SearchEntities(ctx context.Context, integrationID int64, entityType EntityType, term string, limit int) ([]Entity, error)
	GetProperties(ctx context.Context, integrationID int64, entityType EntityType) ([]Property, error)
	UpdateEntity(ctx context.Context, integrationID int64, entityType EntityType, entityID string, fields map[string]any) (*Entity, error)
	// CreateAndLink creates a new entity and links it to chatID.
	CreateAndLink(ctx context.Context, integrationID int64, chatID string, entityType EntityType, fields map[string]any) (*Entity, error)
	// CreateChild creates an entity (notes) attached to a parent entity.
	CreateChild(ctx context.Context, integrationID int64, entityType EntityType, parentType EntityType, parentID string, fields map[string]any) (*Entity, error)
	LinkEntityToChat(ctx context.Context, integrationID int64, chatID string, entityType EntityType, entityID string) error
	Associate(ctx context.Context, integrationID int64, fromType EntityType, fromID string, toType EntityType, toID string) error
}
