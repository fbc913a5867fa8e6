package extratool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/integrations"
	"github.com/telebiz/agentcore/internal/tool"
)

const crmDescription = "HubSpot/CRM operations - manage deals, contacts, companies, stages, notes, and entity linking"

const crmPrompt = `CRM SKILL LOADED.

IMPORTANT RULES:
- If link/associate FAILS, report the error - do NOT create a new entity as workaround
- Only create new entities when explicitly asked to create something new
- Linking and creating are DIFFERENT operations - respect what the user asked for

PROPERTIES:
- Use getEntityProperties to discover properties and their valid options
- Standard names: deal "pipeline", "stage"; contact "lifecyclestage", "email", "phone", "name";
  company "lifecyclestage", "industry", "type", "name"
- Always call getEntityProperties before creating or updating select fields

CREATING (new entity + link to the chat):
- createDeal needs chatId, title, pipelineId, stage
- createContact needs chatId, name
- createCompany needs chatId, name

LINKING EXISTING ENTITIES:
- linkEntityToChat links an EXISTING entity to a chat
- associateEntities links two EXISTING entities
- NEVER use updateEntityField for associations

WORKFLOW:
1. listIntegrations to get integrationId
2. getCurrentChat to get chatId
3. getEntityProperties to discover valid values
4. Create, link, or associate as the user asked`

var (
	linkableTypes = []string{"contact", "deal", "company"}
	lookupTypes   = []string{"contact", "deal", "company", "organization"}
)

func integrationIDProp() map[string]any {
	return tool.Number("The integration ID (from listIntegrations)")
}

func crmTools(d Deps) []entry {
	return []entry{
		{getEntityDetails{d.CRM}, true},
		{updateDealStage{d.CRM}, false},
		{updateEntityField{d.CRM}, false},
		{addNoteToEntity{d.CRM}, false},
		{createEntity{crm: d.CRM, name: "createDeal", entityType: integrations.EntityDeal}, false},
		{createEntity{crm: d.CRM, name: "createContact", entityType: integrations.EntityContact}, false},
		{createEntity{crm: d.CRM, name: "createCompany", entityType: integrations.EntityCompany}, false},
		{LinkEntityToChat{d.CRM}, false},
		{associateEntities{d.CRM}, false},
		{searchEntities{d.CRM}, true},
		{getEntityProperties{d.CRM}, true},
		{listIntegrations{d.CRM}, true},
	}
}

func summarizeEntity(e *integrations.Entity) map[string]any {
	out := map[string]any{"id": e.ID, "type": e.Type}
	if e.Title != "" {
		out["title"] = e.Title
	}
	for k, v := range e.Fields {
		if _, taken := out[k]; !taken {
			out[k] = v
		}
	}
	if !e.UpdatedAt.IsZero() {
		out["updatedAt"] = e.UpdatedAt
	}
	return out
}

// --- getEntityDetails ---

type getEntityDetails struct{ crm integrations.CRM }

func (getEntityDetails) Definition() domain.ToolDefinition {
	return tool.Def("getEntityDetails",
		"Get full details of a CRM entity (contact, deal, organization).\nReturns all entity fields and metadata.",
		tool.Object(map[string]any{
			"integrationId": integrationIDProp(),
			"entityType":    tool.Enum("The type of entity", lookupTypes...),
			"entityId":      tool.String("The entity ID"),
		}, "integrationId", "entityType", "entityId"))
}

func (t getEntityDetails) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.crm == nil {
		return notConfigured("CRM")
	}
	id, err := numberArg(args, "integrationId")
	if err != nil {
		return domain.Fail(domain.ErrorKindValidation, err.Error())
	}
	e, err := t.crm.GetEntity(ctx, id, integrations.ParseEntityType(args.String("entityType")), args.String("entityId"))
	if err != nil {
		return remoteFailure(err)
	}
	return domain.OK(summarizeEntity(e))
}

// --- updateDealStage ---

type updateDealStage struct{ crm integrations.CRM }

func (updateDealStage) Definition() domain.ToolDefinition {
	return tool.Def("updateDealStage",
		"Update the pipeline stage of a deal.\nUse getEntityProperties first to get available stages.",
		tool.Object(map[string]any{
			"integrationId": integrationIDProp(),
			"dealId":        tool.String("The deal ID to update"),
			"stage":         tool.String(`The new stage ID (from getEntityProperties with propertyName="stage")`),
		}, "integrationId", "dealId", "stage"))
}

func (t updateDealStage) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.crm == nil {
		return notConfigured("CRM")
	}
	id, err := numberArg(args, "integrationId")
	if err != nil {
		return domain.Fail(domain.ErrorKindValidation, err.Error())
	}
	dealID, stage := args.String("dealId"), args.String("stage")
	if _, err := t.crm.UpdateEntity(ctx, id, integrations.EntityDeal, dealID, map[string]any{"stage": stage}); err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{"updated": true, "entityId": dealID, "stage": stage})
}

// --- updateEntityField ---

type updateEntityField struct{ crm integrations.CRM }

func (updateEntityField) Definition() domain.ToolDefinition {
	return tool.Def("updateEntityField",
		"Update a field VALUE on a CRM entity (name, email, phone, amount, ...).\nDo NOT use this for associations between entities - use associateEntities.",
		tool.Object(map[string]any{
			"integrationId": integrationIDProp(),
			"entityType":    tool.Enum("The type of entity", linkableTypes...),
			"entityId":      tool.String("The entity ID"),
			"field":         tool.String("The field name to update, e.g. name, email, phone, amount"),
			"value":         tool.String("The new value for the field"),
		}, "integrationId", "entityType", "entityId", "field", "value"))
}

func (t updateEntityField) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.crm == nil {
		return notConfigured("CRM")
	}
	id, err := numberArg(args, "integrationId")
	if err != nil {
		return domain.Fail(domain.ErrorKindValidation, err.Error())
	}
	entityID, field, value := args.String("entityId"), args.String("field"), args.String("value")
	et := integrations.ParseEntityType(args.String("entityType"))
	if _, err := t.crm.UpdateEntity(ctx, id, et, entityID, map[string]any{field: value}); err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{"updated": true, "entityId": entityID, field: value})
}

// --- addNoteToEntity ---

type addNoteToEntity struct{ crm integrations.CRM }

func (addNoteToEntity) Definition() domain.ToolDefinition {
	return tool.Def("addNoteToEntity",
		"Add a note to a CRM entity (contact, deal, or organization).\nUse for conversation summaries, activity logs, or important updates.",
		tool.Object(map[string]any{
			"integrationId": integrationIDProp(),
			"entityType":    tool.Enum("The parent entity type", lookupTypes...),
			"entityId":      tool.String("The parent entity ID"),
			"noteContent":   tool.String("The note content (cannot be empty)"),
		}, "integrationId", "entityType", "entityId", "noteContent"))
}

func (t addNoteToEntity) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.crm == nil {
		return notConfigured("CRM")
	}
	id, err := numberArg(args, "integrationId")
	if err != nil {
		return domain.Fail(domain.ErrorKindValidation, err.Error())
	}
	parentType := integrations.ParseEntityType(args.String("entityType"))
	parentID := args.String("entityId")
	note, err := t.crm.CreateChild(ctx, id, integrations.EntityNote, parentType, parentID,
		map[string]any{"body": args.String("noteContent")})
	if err != nil {
		return remoteFailure(err)
	}
	data := map[string]any{
		"created":          true,
		"entityType":       integrations.EntityNote,
		"parentEntityType": parentType,
		"parentEntityId":   parentID,
	}
	if note != nil {
		data["entityId"] = note.ID
	}
	return domain.OK(data)
}

// --- createDeal / createContact / createCompany ---

// createEntity creates a new entity and links it to a chat. It is the only
// path that creates CRM entities; linking never falls back to it.
type createEntity struct {
	chatIDArg
	crm        integrations.CRM
	name       string
	entityType integrations.EntityType
}

func (t createEntity) Definition() domain.ToolDefinition {
	props := map[string]any{
		"integrationId": integrationIDProp(),
		"chatId":        tool.String("The chat ID to link the new entity to"),
	}
	switch t.entityType {
	case integrations.EntityDeal:
		props["title"] = tool.String("The deal title (cannot be empty)")
		props["pipelineId"] = tool.String(`The pipeline ID from getEntityProperties with propertyName="pipeline"`)
		props["stage"] = tool.String(`The initial stage ID from getEntityProperties with propertyName="stage"`)
		props["amount"] = tool.Number("Deal amount (optional)")
		props["closeDate"] = tool.String("Expected close date (optional)")
		return tool.Def(t.name,
			"Create a new deal in the CRM and link it to a chat.\nPreferred for group chats and business opportunities.",
			tool.Object(props, "integrationId", "chatId", "title", "pipelineId", "stage"))
	case integrations.EntityContact:
		props["name"] = tool.String("Contact full name (cannot be empty)")
		props["email"] = tool.String("Contact email (optional)")
		props["phone"] = tool.String("Contact phone number (optional)")
		return tool.Def(t.name,
			"Create a new contact in the CRM and link it to a chat.\nBest for private chats with individuals.",
			tool.Object(props, "integrationId", "chatId", "name"))
	default:
		props["name"] = tool.String("Company name (cannot be empty)")
		props["website"] = tool.String("Company website URL (optional)")
		props["industry"] = tool.String("Company industry (optional)")
		props["type"] = tool.String("Company type (optional)")
		return tool.Def(t.name,
			"Create a new company in the CRM and link it to a chat.\nBest for group chats representing an organization.",
			tool.Object(props, "integrationId", "chatId", "name"))
	}
}

func (t createEntity) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.crm == nil {
		return notConfigured("CRM")
	}
	id, err := numberArg(args, "integrationId")
	if err != nil {
		return domain.Fail(domain.ErrorKindValidation, err.Error())
	}
	chatID := args.String("chatId")

	fields := map[string]any{}
	switch t.entityType {
	case integrations.EntityDeal:
		optional(args, fields, "title", "pipelineId", "stage", "closeDate")
		if args.Has("amount") {
			fields["amount"] = args["amount"]
		}
	case integrations.EntityContact:
		optional(args, fields, "name", "email", "phone")
	default:
		optional(args, fields, "name", "website", "industry", "type")
	}

	e, err := t.crm.CreateAndLink(ctx, id, chatID, t.entityType, fields)
	if err != nil {
		return remoteFailure(err)
	}
	data := map[string]any{
		"created":    true,
		"entityId":   e.ID,
		"entityType": t.entityType,
		"chatId":     chatID,
	}
	if t.entityType == integrations.EntityDeal {
		data["title"] = fields["title"]
	} else {
		data["name"] = fields["name"]
	}
	return domain.OK(data, chatID)
}

// --- linkEntityToChat ---

// LinkEntityToChat links an existing CRM entity to a chat. A missing
// entity yields *EntityNotFoundError and nothing is created.
type LinkEntityToChat struct{ crm integrations.CRM }

// NewLinkEntityToChat builds the executor over crm.
func NewLinkEntityToChat(crm integrations.CRM) LinkEntityToChat {
	return LinkEntityToChat{crm: crm}
}

func (LinkEntityToChat) Definition() domain.ToolDefinition {
	return tool.Def("linkEntityToChat",
		"Link an EXISTING CRM entity to a chat.\nThe entity must already exist.\nIf this fails, report the error to the user - do NOT create a new entity instead.",
		tool.Object(map[string]any{
			"integrationId": integrationIDProp(),
			"chatId":        tool.String("The chat ID"),
			"entityType":    tool.Enum("The type of entity to link", linkableTypes...),
			"entityId":      tool.String("The entity ID to link"),
		}, "integrationId", "chatId", "entityType", "entityId"))
}

func (LinkEntityToChat) AffectedChats(args tool.Args) []string {
	return chatIDArg{}.AffectedChats(args)
}

// Link performs the link. Collaborator not-found errors are converted to
// *EntityNotFoundError; other errors are returned as is.
func (t LinkEntityToChat) Link(ctx context.Context, integrationID int64, chatID string, et integrations.EntityType, entityID string) error {
	if t.crm == nil {
		return integrations.ErrNotConfigured
	}
	err := t.crm.LinkEntityToChat(ctx, integrationID, chatID, et, entityID)
	if integrations.IsNotFound(err) {
		return &EntityNotFoundError{IntegrationID: integrationID, EntityType: et, EntityID: entityID}
	}
	return err
}

func (t LinkEntityToChat) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.crm == nil {
		return notConfigured("CRM")
	}
	id, err := numberArg(args, "integrationId")
	if err != nil {
		return domain.Fail(domain.ErrorKindValidation, err.Error())
	}
	chatID, entityID := args.String("chatId"), args.String("entityId")
	et := integrations.ParseEntityType(args.String("entityType"))

	if err := t.Link(ctx, id, chatID, et, entityID); err != nil {
		var nf *EntityNotFoundError
		if errors.As(err, &nf) {
			return domain.Fail(domain.ErrorKindNotFound, nf.Error())
		}
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{"linked": true, "chatId": chatID, "entityType": et, "entityId": entityID}, chatID)
}

// --- associateEntities ---

type associateEntities struct{ crm integrations.CRM }

func (associateEntities) Definition() domain.ToolDefinition {
	return tool.Def("associateEntities",
		"Link an EXISTING CRM entity to another EXISTING entity (company to contact, contact to deal, ...).\nThis does NOT create entities. If it fails, report the error.",
		tool.Object(map[string]any{
			"integrationId":        integrationIDProp(),
			"entityType":           tool.Enum("The type of the entity to link", linkableTypes...),
			"entityId":             tool.String("The ID of the entity to link"),
			"associatedEntityType": tool.Enum("The type of the target entity", linkableTypes...),
			"associatedEntityId":   tool.String("The ID of the target entity"),
		}, "integrationId", "entityType", "entityId", "associatedEntityType", "associatedEntityId"))
}

func (t associateEntities) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.crm == nil {
		return notConfigured("CRM")
	}
	id, err := numberArg(args, "integrationId")
	if err != nil {
		return domain.Fail(domain.ErrorKindValidation, err.Error())
	}
	fromType := integrations.ParseEntityType(args.String("entityType"))
	toType := integrations.ParseEntityType(args.String("associatedEntityType"))
	fromID, toID := args.String("entityId"), args.String("associatedEntityId")
	if err := t.crm.Associate(ctx, id, fromType, fromID, toType, toID); err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{
		"associated":           true,
		"entityType":           fromType,
		"entityId":             fromID,
		"associatedEntityType": toType,
		"associatedEntityId":   toID,
	})
}

// --- searchEntities ---

type searchEntities struct{ crm integrations.CRM }

func (searchEntities) Definition() domain.ToolDefinition {
	return tool.Def("searchEntities", "Search for entities in the CRM by name or other criteria.",
		tool.Object(map[string]any{
			"integrationId": integrationIDProp(),
			"entityType":    tool.Enum("The type of entity to search", lookupTypes...),
			"searchTerm":    tool.String("The search query"),
			"limit":         tool.Number("Maximum results to return (default: 10)"),
		}, "integrationId", "entityType", "searchTerm"))
}

func (t searchEntities) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.crm == nil {
		return notConfigured("CRM")
	}
	id, err := numberArg(args, "integrationId")
	if err != nil {
		return domain.Fail(domain.ErrorKindValidation, err.Error())
	}
	et := integrations.ParseEntityType(args.String("entityType"))
	term := args.String("searchTerm")
	limit := int(args.Int("limit", 10))
	if limit <= 0 {
		limit = 10
	}

	found, err := t.crm.SearchEntities(ctx, id, et, term, limit)
	if err != nil {
		return remoteFailure(err)
	}
	if len(found) == 0 {
		return domain.OK(map[string]any{
			"entityType": et,
			"searchTerm": term,
			"count":      0,
			"results":    []any{},
			"message":    fmt.Sprintf("No %ss found matching %q. Create a new one with createDeal, createContact, or createNotionPage.", et, term),
		})
	}
	results := make([]map[string]any, 0, len(found))
	for i := range found {
		results = append(results, summarizeEntity(&found[i]))
	}
	return domain.OK(map[string]any{
		"entityType": et,
		"searchTerm": term,
		"count":      len(results),
		"results":    results,
		"message":    fmt.Sprintf("Found %d %s(s). Use linkEntityToChat to link one.", len(results), et),
	})
}

// --- getEntityProperties ---

type getEntityProperties struct{ crm integrations.CRM }

func (getEntityProperties) Definition() domain.ToolDefinition {
	return tool.Def("getEntityProperties",
		"Get available properties and their options for a CRM entity type.\nUse this to find valid values for creating or updating entities.",
		tool.Object(map[string]any{
			"integrationId": integrationIDProp(),
			"entityType":    tool.Enum("The entity type to get properties for", linkableTypes...),
			"propertyName":  tool.String(`Optional: a property standardName to get options for (e.g. "lifecyclestage", "pipeline", "stage")`),
		}, "integrationId", "entityType"))
}

func (t getEntityProperties) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.crm == nil {
		return notConfigured("CRM")
	}
	id, err := numberArg(args, "integrationId")
	if err != nil {
		return domain.Fail(domain.ErrorKindValidation, err.Error())
	}
	et := integrations.ParseEntityType(args.String("entityType"))
	props, err := t.crm.GetProperties(ctx, id, et)
	if err != nil {
		return remoteFailure(err)
	}

	if name := args.String("propertyName"); name != "" {
		for _, p := range props {
			if p.StandardName == name {
				return domain.OK(map[string]any{"property": p})
			}
		}
		return domain.Failf(domain.ErrorKindNotFound,
			"Property %q not found for %s. Use getEntityProperties without propertyName to see available properties.", name, et)
	}

	summary := make([]map[string]any, 0, len(props))
	for _, p := range props {
		if len(p.Options) == 0 && p.StandardName == "" {
			continue
		}
		item := map[string]any{
			"name":         p.Name,
			"standardName": p.StandardName,
			"label":        p.Label,
			"type":         p.Type,
			"hasOptions":   len(p.Options) > 0,
		}
		if p.DependsOn != "" {
			item["dependsOn"] = p.DependsOn
		}
		if len(p.Options) > 0 {
			item["options"] = p.Options
		}
		summary = append(summary, item)
	}
	return domain.OK(map[string]any{
		"entityType": et,
		"properties": summary,
		"hint":       "Use getEntityProperties with propertyName to get full options for a specific property.",
	})
}

// --- listIntegrations ---

type listIntegrations struct{ crm integrations.CRM }

func (listIntegrations) Definition() domain.ToolDefinition {
	return tool.Def("listIntegrations", "Get all connected CRM integrations (HubSpot, Pipedrive, etc.)",
		tool.Object(map[string]any{}))
}

func (t listIntegrations) Execute(ctx context.Context, _ tool.Args) domain.ToolResult {
	if t.crm == nil {
		return notConfigured("CRM")
	}
	list, err := t.crm.ListIntegrations(ctx)
	if err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{"integrations": list})
}

// IsCreateTool reports whether toolName creates a CRM or Notion entity.
func IsCreateTool(toolName string) bool {
	return strings.HasPrefix(toolName, "create") && toolName != "createReminder" && toolName != "createSkill"
}
