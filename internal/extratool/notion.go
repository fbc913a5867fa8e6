package extratool

import (
	"context"
	"fmt"
	"strings"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/integrations"
	"github.com/telebiz/agentcore/internal/tool"
)

const notionDescription = "Notion page operations - read/update properties, blocks, todos, notes"

const notionPrompt = `NOTION SKILL LOADED. You can now:
- Get the property schema with getNotionProperties (available properties and valid options)
- Get page content with getNotionPageContent (current property values and blocks)
- Update page properties with updateNotionPageProperty
- Update block text with updateNotionBlock
- Toggle to-do items with toggleNotionTodo
- Add notes to a page with addNoteToPage (noteContent required)
- Create pages with createNotionPage (chatId and title required)

WORKFLOW for updating properties:
1. getNotionProperties to see available properties and valid options
2. getNotionPageContent to see current values
3. updateNotionPageProperty with a valid value

Block types: paragraph, heading_1, heading_2, heading_3, to_do, bulleted_list_item, numbered_list_item`

func notionTools(d Deps) []entry {
	return []entry{
		{getNotionProperties{d.Notion}, true},
		{getNotionPageContent{d.Notion}, true},
		{updateNotionPageProperty{d.Notion}, false},
		{updateNotionBlock{d.Notion}, false},
		{toggleNotionTodo{d.Notion}, false},
		{addNoteToPage{d.Notion}, false},
		{createNotionPage{notion: d.Notion}, false},
	}
}

func notionIDProp() map[string]any { return tool.Number("The Notion integration ID") }

// --- getNotionProperties ---

type getNotionProperties struct{ notion integrations.Notion }

func (getNotionProperties) Definition() domain.ToolDefinition {
	return tool.Def("getNotionProperties",
		"Get the property schema of Notion databases: names, types and valid options for select/status fields.",
		tool.Object(map[string]any{
			"integrationId": notionIDProp(),
			"pageId":        tool.String("Optional: page ID to get properties for its database"),
		}, "integrationId"))
}

func (t getNotionProperties) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.notion == nil {
		return notConfigured("Notion")
	}
	id, err := numberArg(args, "integrationId")
	if err != nil {
		return domain.Fail(domain.ErrorKindValidation, err.Error())
	}
	props, err := t.notion.GetProperties(ctx, id, args.String("pageId"))
	if err != nil {
		return remoteFailure(err)
	}
	out := make([]map[string]any, 0, len(props))
	for _, p := range props {
		item := map[string]any{"name": p.Name, "label": p.Label, "type": p.Type}
		if len(p.Options) > 0 {
			labels := make([]string, 0, len(p.Options))
			for _, o := range p.Options {
				labels = append(labels, o.Label)
			}
			item["options"] = labels
		}
		out = append(out, item)
	}
	return domain.OK(map[string]any{"properties": out})
}

// --- getNotionPageContent ---

type getNotionPageContent struct{ notion integrations.Notion }

func (getNotionPageContent) Definition() domain.ToolDefinition {
	return tool.Def("getNotionPageContent", "Get a Notion page: title, property values and content blocks.",
		tool.Object(map[string]any{
			"integrationId": notionIDProp(),
			"pageId":        tool.String("The Notion page ID"),
		}, "integrationId", "pageId"))
}

func (t getNotionPageContent) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.notion == nil {
		return notConfigured("Notion")
	}
	id, err := numberArg(args, "integrationId")
	if err != nil {
		return domain.Fail(domain.ErrorKindValidation, err.Error())
	}
	page, blocks, err := t.notion.GetPage(ctx, id, args.String("pageId"))
	if err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{
		"id":         page.ID,
		"url":        page.URL,
		"title":      page.Title,
		"properties": page.Properties,
		"blocks":     blocks,
	})
}

// --- updateNotionPageProperty ---

type updateNotionPageProperty struct{ notion integrations.Notion }

func (updateNotionPageProperty) Definition() domain.ToolDefinition {
	return tool.Def("updateNotionPageProperty",
		"Update a property of a Notion page (priority, status, ...). Select values must be one of the valid options.",
		tool.Object(map[string]any{
			"integrationId": notionIDProp(),
			"pageId":        tool.String("The Notion page ID"),
			"propertyName":  tool.String(`The property name to update (e.g. "priority", "status", "title")`),
			"value":         tool.String("The new value for the property"),
		}, "integrationId", "pageId", "propertyName", "value"))
}

func (t updateNotionPageProperty) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.notion == nil {
		return notConfigured("Notion")
	}
	id, err := numberArg(args, "integrationId")
	if err != nil {
		return domain.Fail(domain.ErrorKindValidation, err.Error())
	}
	pageID, name, value := args.String("pageId"), args.String("propertyName"), args.String("value")

	props, err := t.notion.GetProperties(ctx, id, pageID)
	if err != nil {
		return remoteFailure(err)
	}
	var prop *integrations.Property
	for i := range props {
		if strings.EqualFold(props[i].Name, name) || strings.EqualFold(props[i].Label, name) {
			prop = &props[i]
			break
		}
	}
	if prop == nil {
		names := make([]string, 0, len(props))
		for _, p := range props {
			names = append(names, p.Name)
		}
		return domain.Failf(domain.ErrorKindNotFound, "Property %q not found. Available: %s", name, strings.Join(names, ", "))
	}

	stored := value
	if len(prop.Options) > 0 {
		matched := false
		for _, o := range prop.Options {
			if strings.EqualFold(o.Label, value) || strings.EqualFold(o.Value, value) {
				stored, matched = o.Value, true
				break
			}
		}
		if !matched {
			labels := make([]string, 0, len(prop.Options))
			for _, o := range prop.Options {
				labels = append(labels, o.Label)
			}
			return domain.Failf(domain.ErrorKindValidation, "Invalid value %q for %s. Valid options: %s", value, prop.Name, strings.Join(labels, ", "))
		}
	}

	if err := t.notion.UpdatePageProperty(ctx, id, pageID, prop.Name, stored); err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{
		"updated":  true,
		"pageId":   pageID,
		"property": prop.Name,
		"value":    value,
		"message":  fmt.Sprintf("Updated %s to %q", prop.Name, value),
	})
}

// --- updateNotionBlock ---

type updateNotionBlock struct{ notion integrations.Notion }

func (updateNotionBlock) Definition() domain.ToolDefinition {
	return tool.Def("updateNotionBlock", "Replace the text of a Notion block.",
		tool.Object(map[string]any{
			"integrationId": notionIDProp(),
			"pageId":        tool.String("The Notion page ID containing the block"),
			"blockId":       tool.String("The block ID to update"),
			"content":       tool.String("The new text content for the block"),
		}, "integrationId", "pageId", "blockId", "content"))
}

func (t updateNotionBlock) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.notion == nil {
		return notConfigured("Notion")
	}
	id, err := numberArg(args, "integrationId")
	if err != nil {
		return domain.Fail(domain.ErrorKindValidation, err.Error())
	}
	pageID, blockID, content := args.String("pageId"), args.String("blockId"), args.String("content")

	_, blocks, err := t.notion.GetPage(ctx, id, pageID)
	if err != nil {
		return remoteFailure(err)
	}
	found := false
	for _, b := range blocks {
		if b.ID == blockID {
			found = true
			break
		}
	}
	if !found {
		return domain.Failf(domain.ErrorKindNotFound, "Block not found: %s", blockID)
	}
	if err := t.notion.UpdateBlock(ctx, id, pageID, blockID, content); err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{"updated": true, "blockId": blockID, "content": content})
}

// --- toggleNotionTodo ---

type toggleNotionTodo struct{ notion integrations.Notion }

func (toggleNotionTodo) Definition() domain.ToolDefinition {
	return tool.Def("toggleNotionTodo", "Toggle the checked state of a Notion to-do block.",
		tool.Object(map[string]any{
			"integrationId": notionIDProp(),
			"pageId":        tool.String("The Notion page ID containing the todo"),
			"blockId":       tool.String("The to-do block ID"),
			"checked":       tool.Boolean("Whether the todo should be checked (true) or unchecked (false)"),
		}, "integrationId", "pageId", "blockId", "checked"))
}

func (t toggleNotionTodo) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.notion == nil {
		return notConfigured("Notion")
	}
	id, err := numberArg(args, "integrationId")
	if err != nil {
		return domain.Fail(domain.ErrorKindValidation, err.Error())
	}
	checked, ok := args.Bool("checked")
	if !ok {
		return domain.Fail(domain.ErrorKindValidation, "checked must be true or false")
	}
	pageID, blockID := args.String("pageId"), args.String("blockId")

	_, blocks, err := t.notion.GetPage(ctx, id, pageID)
	if err != nil {
		return remoteFailure(err)
	}
	var block *integrations.NotionBlock
	for i := range blocks {
		if blocks[i].ID == blockID {
			block = &blocks[i]
			break
		}
	}
	if block == nil {
		return domain.Failf(domain.ErrorKindNotFound, "Block not found: %s", blockID)
	}
	if block.Checked != nil && *block.Checked == checked {
		return domain.OK(map[string]any{"alreadyInState": true, "blockId": blockID, "checked": checked})
	}

	if err := t.notion.SetTodoChecked(ctx, id, pageID, blockID, checked); err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{"updated": true, "blockId": blockID, "checked": checked})
}

// Inverse restores the previous state. A block that was already in the
// requested state needs nothing.
func (toggleNotionTodo) Inverse(args tool.Args, result domain.ToolResult) (domain.UndoAction, bool) {
	if !result.Success {
		return domain.UndoAction{}, false
	}
	if data, _ := result.Data.(map[string]any); data["alreadyInState"] == true {
		return domain.UndoAction{}, true
	}
	checked, ok := args.Bool("checked")
	if !ok {
		return domain.UndoAction{}, false
	}
	undo := args.Clone()
	undo["checked"] = !checked
	return domain.UndoAction{ToolName: "toggleNotionTodo", Args: undo}, true
}

// --- addNoteToPage ---

type addNoteToPage struct{ notion integrations.Notion }

func (addNoteToPage) Definition() domain.ToolDefinition {
	return tool.Def("addNoteToPage", "Add a note to a Notion page.",
		tool.Object(map[string]any{
			"integrationId": notionIDProp(),
			"pageId":        tool.String("The Notion page ID to add the note to"),
			"noteContent":   tool.String("The note content (cannot be empty)"),
		}, "integrationId", "pageId", "noteContent"))
}

func (t addNoteToPage) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.notion == nil {
		return notConfigured("Notion")
	}
	id, err := numberArg(args, "integrationId")
	if err != nil {
		return domain.Fail(domain.ErrorKindValidation, err.Error())
	}
	pageID := args.String("pageId")
	if err := t.notion.AppendNote(ctx, id, pageID, args.String("noteContent")); err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{"created": true, "entityType": "note", "parentEntityType": "page", "parentEntityId": pageID})
}

// --- createNotionPage ---

type createNotionPage struct {
	chatIDArg
	notion integrations.Notion
}

func (createNotionPage) Definition() domain.ToolDefinition {
	return tool.Def("createNotionPage", "Create a new Notion page and link it to a chat.",
		tool.Object(map[string]any{
			"integrationId": notionIDProp(),
			"chatId":        tool.String("Chat ID to link the page to"),
			"title":         tool.String("The page title (cannot be empty)"),
			"parentPageId":  tool.String("Parent page ID to create under (optional)"),
		}, "integrationId", "chatId", "title"))
}

func (t createNotionPage) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.notion == nil {
		return notConfigured("Notion")
	}
	id, err := numberArg(args, "integrationId")
	if err != nil {
		return domain.Fail(domain.ErrorKindValidation, err.Error())
	}
	chatID, title := args.String("chatId"), args.String("title")
	page, err := t.notion.CreatePage(ctx, id, chatID, title, args.String("parentPageId"))
	if err != nil {
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{
		"created":    true,
		"entityId":   page.ID,
		"entityType": "page",
		"chatId":     chatID,
		"title":      title,
	}, chatID)
}
