package extratool

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/telebiz/agentcore/internal/domain"
	skillmatch "github.com/telebiz/agentcore/internal/skills"
	"github.com/telebiz/agentcore/internal/store"
	"github.com/telebiz/agentcore/internal/tool"
)

const skillsDescription = "Access and manage user-created skills"

const skillsPrompt = `SKILLS EXTRA TOOL LOADED. You can access and manage user-created skills:

READ OPERATIONS:
- getSkillData: Get skill content for a specific context
- getAllSkillData: Get all skill data
- listSkills: List all skills with details (ID, name, type, context, status)

WRITE OPERATIONS:
- createSkill: Create a new skill (knowledge/tool/onDemand)
- updateSkill: Update an existing skill's content, type, or status
- deleteSkill: Permanently delete a skill

Skill types:
- knowledge: Always applied to all responses
- tool: Agent retrieves when context is relevant
- onDemand: Only when user types /skill-name`

var skillTypes = []string{string(domain.SkillKnowledge), string(domain.SkillTool), string(domain.SkillOnDemand)}

func skillTools(d Deps) []entry {
	return []entry{
		{getSkillData{d.Skills}, true},
		{getAllSkillData{d.Skills}, true},
		{listSkills{d.Skills}, true},
		{createSkill{skills: d.Skills, now: d.Now, newID: d.NewID}, false},
		{updateSkill{skills: d.Skills, now: d.Now}, false},
		{deleteSkill{d.Skills}, false},
	}
}

func invalidSkillType(t string) error {
	return fmt.Errorf(`Invalid skill type: %s. Must be "knowledge", "tool", or "onDemand".`, t)
}

func skillLookupFailure(id string, err error) domain.ToolResult {
	if store.IsNotFound(err) {
		return domain.Failf(domain.ErrorKindNotFound, "Skill not found: %s", id)
	}
	return domain.Fail(domain.ErrorKindRemote, err.Error())
}

var slugChars = regexp.MustCompile(`[^a-z0-9]+`)

// SkillSlug derives a /name from free text.
func SkillSlug(text string) string {
	slug := strings.Trim(slugChars.ReplaceAllString(strings.ToLower(text), "-"), "-")
	if len(slug) > 30 {
		slug = strings.TrimRight(slug[:30], "-")
	}
	if slug == "" {
		slug = "skill"
	}
	return slug
}

// --- getSkillData ---

type getSkillData struct{ skills store.SkillStore }

func (getSkillData) Definition() domain.ToolDefinition {
	return tool.Def("getSkillData",
		"Get skill data that matches a context.\nUse this when you see a relevant skill context in the system prompt.",
		tool.Object(map[string]any{
			"contextQuery": tool.String(`The context to search for (e.g. "sending messages", "pricing")`),
		}, "contextQuery"))
}

func (t getSkillData) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.skills == nil {
		return notConfigured("Skills")
	}
	all, err := t.skills.ListSkills(ctx)
	if err != nil {
		return remoteFailure(err)
	}
	candidates := skillmatch.Tools(all)
	if len(candidates) == 0 {
		return domain.OK(map[string]any{"message": "No skill data available. Respond naturally."})
	}

	query := args.String("contextQuery")
	matches := skillmatch.Retrieve(query, all)
	if len(matches) == 0 {
		contexts := make([]string, 0, len(candidates))
		for _, s := range candidates {
			contexts = append(contexts, s.Context)
		}
		return domain.OK(map[string]any{
			"message":           fmt.Sprintf("No skill data matching %q. Respond naturally.", query),
			"availableContexts": contexts,
		})
	}

	items := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		items = append(items, map[string]any{
			"context":    m.Skill.Context,
			"content":    m.Skill.Content,
			"matchScore": m.Score,
		})
	}
	return domain.OK(map[string]any{
		"matchingItems": items,
		"count":         len(items),
		"note":          "Results sorted by relevance score (highest first)",
	})
}

// --- getAllSkillData ---

type getAllSkillData struct{ skills store.SkillStore }

func (getAllSkillData) Definition() domain.ToolDefinition {
	return tool.Def("getAllSkillData", "Get all active skill data.", tool.Object(map[string]any{}))
}

func (t getAllSkillData) Execute(ctx context.Context, _ tool.Args) domain.ToolResult {
	if t.skills == nil {
		return notConfigured("Skills")
	}
	all, err := t.skills.ListSkills(ctx)
	if err != nil {
		return remoteFailure(err)
	}
	var items []map[string]any
	for _, s := range all {
		if s.IsActive {
			items = append(items, map[string]any{"context": s.Context, "content": s.Content})
		}
	}
	if len(items) == 0 {
		return domain.OK(map[string]any{"message": "No skill data available.", "items": []any{}})
	}
	return domain.OK(map[string]any{"items": items, "count": len(items)})
}

// --- listSkills ---

type listSkills struct{ skills store.SkillStore }

func (listSkills) Definition() domain.ToolDefinition {
	return tool.Def("listSkills",
		"List skills with their name, type, context and active status.\nUse this before creating or updating.",
		tool.Object(map[string]any{
			"includeInactive": tool.Boolean("Include inactive skills (default: false)"),
		}))
}

func (t listSkills) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.skills == nil {
		return notConfigured("Skills")
	}
	all, err := t.skills.ListSkills(ctx)
	if err != nil {
		return remoteFailure(err)
	}
	includeInactive, _ := args.Bool("includeInactive")

	out := []map[string]any{}
	for _, s := range all {
		if !s.IsActive && !includeInactive {
			continue
		}
		preview := s.Content
		if len(preview) > 100 {
			preview = preview[:100] + "..."
		}
		out = append(out, map[string]any{
			"id":             s.ID,
			"name":           s.Name,
			"skillType":      s.Type,
			"context":        s.Context,
			"contentPreview": preview,
			"isActive":       s.IsActive,
			"createdAt":      s.CreatedAt.Format(time.RFC3339),
			"updatedAt":      s.UpdatedAt.Format(time.RFC3339),
		})
	}
	if len(out) == 0 {
		msg := "No active skills. Use includeInactive: true to see all."
		if includeInactive {
			msg = "No skills exist yet."
		}
		return domain.OK(map[string]any{"message": msg, "skills": out})
	}
	return domain.OK(map[string]any{"skills": out, "count": len(out), "totalCount": len(all)})
}

// --- createSkill ---

type createSkill struct {
	skills store.SkillStore
	now    func() time.Time
	newID  func() string
}

func (createSkill) Definition() domain.ToolDefinition {
	return tool.Def("createSkill",
		"Create a new skill to teach the agent a behavior.\n- knowledge: always applied\n- tool: retrieved when the context matches\n- onDemand: used when the user types /skill-name",
		tool.Object(map[string]any{
			"name":      tool.String("Unique name for /name invocation (lowercase, hyphens). Derived from context when omitted."),
			"skillType": tool.Enum("Type of skill", skillTypes...),
			"context":   tool.String(`When or why to apply this skill (e.g. "When discussing pricing")`),
			"content":   tool.String("The instructions or knowledge the agent should follow"),
		}, "skillType", "context", "content"))
}

func (createSkill) ValidateArgs(args tool.Args) error {
	if t := args.String("skillType"); !domain.SkillType(t).Valid() {
		return invalidSkillType(t)
	}
	if args.String("context") == "" {
		return errors.New("Context is required.")
	}
	if args.String("content") == "" {
		return errors.New("Content is required.")
	}
	return nil
}

func (t createSkill) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.skills == nil {
		return notConfigured("Skills")
	}
	now := t.now()
	s := &domain.Skill{
		ID:        t.newID(),
		Name:      args.String("name"),
		Type:      domain.SkillType(args.String("skillType")),
		Context:   args.String("context"),
		Content:   args.String("content"),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.Name == "" {
		s.Name = SkillSlug(s.Context)
	}
	if err := t.skills.SaveSkill(ctx, s); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Failf(domain.ErrorKindBusiness, "A skill named %q already exists.", s.Name)
		}
		return remoteFailure(err)
	}

	note := "Agent will retrieve this when the context matches."
	switch s.Type {
	case domain.SkillKnowledge:
		note = "This skill will now be applied to all responses."
	case domain.SkillOnDemand:
		note = "User can invoke this skill with /" + s.Name
	}
	return domain.OK(map[string]any{
		"created":   true,
		"skillId":   s.ID,
		"skillType": s.Type,
		"context":   s.Context,
		"name":      s.Name,
		"note":      note,
	})
}

// --- updateSkill ---

type updateSkill struct {
	skills store.SkillStore
	now    func() time.Time
}

func (updateSkill) Definition() domain.ToolDefinition {
	return tool.Def("updateSkill",
		"Update an existing skill. Use listSkills first to find the ID. Only provide the fields to change.",
		tool.Object(map[string]any{
			"skillId":   tool.String("The skill ID to update (from listSkills)"),
			"name":      tool.String("New skill name (optional)"),
			"skillType": tool.Enum("New skill type (optional)", skillTypes...),
			"context":   tool.String("New context (optional)"),
			"content":   tool.String("New content (optional)"),
			"isActive":  tool.Boolean("Enable or disable the skill (optional)"),
		}, "skillId"))
}

func (updateSkill) ValidateArgs(args tool.Args) error {
	if args.String("skillId") == "" {
		return errors.New("skillId is required.")
	}
	if args.Has("skillType") {
		if t := args.String("skillType"); !domain.SkillType(t).Valid() {
			return invalidSkillType(t)
		}
	}
	return nil
}

func (t updateSkill) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.skills == nil {
		return notConfigured("Skills")
	}
	id := args.String("skillId")
	existing, err := t.skills.GetSkill(ctx, id)
	if err != nil {
		return skillLookupFailure(id, err)
	}
	previous := existing.Name

	var changes []string
	if args.Has("name") {
		existing.Name = args.String("name")
		changes = append(changes, "name")
	}
	if args.Has("skillType") {
		existing.Type = domain.SkillType(args.String("skillType"))
		changes = append(changes, "skillType")
	}
	if args.Has("context") {
		existing.Context = args.String("context")
		changes = append(changes, "context")
	}
	if args.Has("content") {
		existing.Content = args.String("content")
		changes = append(changes, "content")
	}
	if active, ok := args.Bool("isActive"); ok {
		existing.IsActive = active
		changes = append(changes, "isActive")
	}
	if len(changes) == 0 {
		return domain.Fail(domain.ErrorKindValidation, "No updates provided.")
	}

	existing.UpdatedAt = t.now()
	if err := t.skills.SaveSkill(ctx, existing); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Failf(domain.ErrorKindBusiness, "A skill named %q already exists.", existing.Name)
		}
		return remoteFailure(err)
	}
	return domain.OK(map[string]any{
		"updated":      true,
		"skillId":      id,
		"previousName": previous,
		"changes":      changes,
	})
}

// --- deleteSkill ---

type deleteSkill struct{ skills store.SkillStore }

func (deleteSkill) Definition() domain.ToolDefinition {
	return tool.Def("deleteSkill",
		"Permanently delete a skill. Use listSkills first to find the ID. This cannot be undone.",
		tool.Object(map[string]any{
			"skillId": tool.String("The skill ID to delete (from listSkills)"),
		}, "skillId"))
}

func (deleteSkill) ValidateArgs(args tool.Args) error {
	if args.String("skillId") == "" {
		return errors.New("skillId is required.")
	}
	return nil
}

func (t deleteSkill) Execute(ctx context.Context, args tool.Args) domain.ToolResult {
	if t.skills == nil {
		return notConfigured("Skills")
	}
	id := args.String("skillId")
	existing, err := t.skills.GetSkill(ctx, id)
	if err != nil {
		return skillLookupFailure(id, err)
	}
	if err := t.skills.DeleteSkill(ctx, id); err != nil {
		return skillLookupFailure(id, err)
	}
	return domain.OK(map[string]any{
		"deleted": true,
		"skillId": id,
		"deletedSkill": map[string]any{
			"name":      existing.Name,
			"skillType": existing.Type,
			"context":   existing.Context,
		},
	})
}
