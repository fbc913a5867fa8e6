// Package extratool holds the optional tool bundles the agent can load on
// demand (crm, notion, reminders, bulk, skills) and routes calls to them.
package extratool

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/integrations"
	"github.com/telebiz/agentcore/internal/store"
	"github.com/telebiz/agentcore/internal/tool"
)

// Name identifies a bundle.
type Name string

const (
	CRM       Name = "crm"
	Notion    Name = "notion"
	Reminders Name = "reminders"
	Bulk      Name = "bulk"
	Skills    Name = "skills"
)

// Names lists every bundle in display order.
var Names = []Name{CRM, Notion, Reminders, Bulk, Skills}

// Valid reports whether n is a known bundle.
func (n Name) Valid() bool {
	for _, known := range Names {
		if n == known {
			return true
		}
	}
	return false
}

// ExtraTool is the static description of a bundle.
type ExtraTool struct {
	Name          Name                    `json:"name"`
	Description   string                  `json:"description"`
	Tools         []domain.ToolDefinition `json:"tools"`
	ReadOnlyTools []string                `json:"readOnlyTools"`
	ContextPrompt string                  `json:"contextPrompt"`
}

// Deps are the collaborators bundles call into. Any of them may be nil;
// tools that need a missing collaborator return a failed result.
type Deps struct {
	CRM       integrations.CRM
	Notion    integrations.Notion
	Reminders integrations.Reminders
	Tasks     integrations.Tasks
	Messenger integrations.Messenger
	Skills    store.SkillStore

	Now   func() time.Time
	NewID func() string
}

func (d *Deps) defaults() {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = func() string { return uuid.NewString() }
	}
}

type bundle struct {
	info ExtraTool
	set  *tool.Set
}

// Registry owns every bundle and the reverse tool-to-bundle index.
type Registry struct {
	bundles map[Name]*bundle
	owners  map[string]Name
	policy  *tool.Policy
}

// NewRegistry builds all bundles over deps. policy may be nil.
func NewRegistry(deps Deps, policy *tool.Policy) *Registry {
	deps.defaults()
	r := &Registry{
		bundles: make(map[Name]*bundle),
		owners:  make(map[string]Name),
		policy:  policy,
	}
	r.add(CRM, crmDescription, crmPrompt, crmTools(deps))
	r.add(Notion, notionDescription, notionPrompt, notionTools(deps))
	r.add(Reminders, remindersDescription, remindersPrompt, reminderTools(deps))
	r.add(Bulk, bulkDescription, bulkPrompt, bulkTools(deps))
	r.add(Skills, skillsDescription, skillsPrompt, skillTools(deps))
	return r
}

// entry pairs an executor with its read-only flag for registration.
type entry struct {
	exec     tool.Executor
	readOnly bool
}

func (r *Registry) add(name Name, description, prompt string, entries []entry) {
	set := tool.NewSet(string(name))
	for _, e := range entries {
		set.Register(e.exec, e.readOnly)
		r.owners[e.exec.Definition().Name] = name
	}
	r.bundles[name] = &bundle{
		info: ExtraTool{Name: name, Description: description, ContextPrompt: prompt},
		set:  set,
	}
}

func (r *Registry) view(b *bundle) ExtraTool {
	info := b.info
	for _, def := range b.set.Definitions() {
		if r.policy.Allowed(string(info.Name), def.Name) {
			info.Tools = append(info.Tools, def)
		}
	}
	for _, name := range b.set.ReadOnlyNames() {
		if r.policy.Allowed(string(info.Name), name) {
			info.ReadOnlyTools = append(info.ReadOnlyTools, name)
		}
	}
	return info
}

// ListBundles returns every bundle in display order. Tools disabled by
// policy are left out.
func (r *Registry) ListBundles() []ExtraTool {
	out := make([]ExtraTool, 0, len(Names))
	for _, n := range Names {
		out = append(out, r.view(r.bundles[n]))
	}
	return out
}

// GetBundle returns one bundle.
func (r *Registry) GetBundle(name Name) (ExtraTool, bool) {
	b, ok := r.bundles[name]
	if !ok {
		return ExtraTool{}, false
	}
	return r.view(b), true
}

// ToolsForMode returns the bundle tools exposed in mode: everything in
// agent mode, only the read-only subset otherwise.
func (r *Registry) ToolsForMode(name Name, mode domain.Mode) []domain.ToolDefinition {
	info, ok := r.GetBundle(name)
	if !ok {
		return nil
	}
	if mode == domain.ModeAgent {
		return info.Tools
	}
	var out []domain.ToolDefinition
	for _, def := range info.Tools {
		if r.bundles[name].set.IsReadOnly(def.Name) {
			out = append(out, def)
		}
	}
	return out
}

// ResolveOwner returns the bundle that defines toolName.
func (r *Registry) ResolveOwner(toolName string) (Name, bool) {
	n, ok := r.owners[toolName]
	return n, ok
}

// ToolNames returns every bundle tool name, sorted.
func (r *Registry) ToolNames() []string {
	out := make([]string, 0, len(r.owners))
	for name := range r.owners {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IsReadOnly reports whether toolName is in its bundle's read-only set.
func (r *Registry) IsReadOnly(toolName string) bool {
	n, ok := r.owners[toolName]
	return ok && r.bundles[n].set.IsReadOnly(toolName)
}

// AffectedChats returns the chats a call declares it will touch.
func (r *Registry) AffectedChats(toolName string, args tool.Args) []string {
	n, ok := r.owners[toolName]
	if !ok {
		return nil
	}
	return r.bundles[n].set.AffectedChats(toolName, args)
}

// Inverse derives the undo action of a completed call.
func (r *Registry) Inverse(toolName string, args tool.Args, result domain.ToolResult) (domain.UndoAction, bool) {
	n, ok := r.owners[toolName]
	if !ok {
		return domain.UndoAction{}, false
	}
	return r.bundles[n].set.Inverse(toolName, args, result)
}

// IsHeavy reports whether toolName declares itself heavy.
func (r *Registry) IsHeavy(toolName string) bool {
	n, ok := r.owners[toolName]
	return ok && r.bundles[n].set.IsHeavy(toolName)
}

// Execute runs toolName from the named bundle. It never returns a Go error;
// unknown bundles, unknown tools, disabled tools and invalid input all come
// back as failed results.
func (r *Registry) Execute(ctx context.Context, name Name, toolName string, args tool.Args) domain.ToolResult {
	b, ok := r.bundles[name]
	if !ok {
		return domain.Failf(domain.ErrorKindValidation, "Unknown extra tool: %s", name)
	}
	if !r.policy.Allowed(string(name), toolName) {
		return domain.Failf(domain.ErrorKindPolicy, "Tool %s/%s is disabled by configuration", name, toolName)
	}
	return b.set.Execute(ctx, toolName, args)
}

// ExecuteTool routes toolName to its owning bundle.
func (r *Registry) ExecuteTool(ctx context.Context, toolName string, args tool.Args) domain.ToolResult {
	n, ok := r.owners[toolName]
	if !ok {
		msg := fmt.Sprintf("Unknown tool: %s", toolName)
		if sugg := tool.Suggest(toolName, r.ToolNames()); len(sugg) > 0 {
			msg += ". Did you mean: " + strings.Join(sugg, ", ") + "?"
		}
		return domain.Fail(domain.ErrorKindValidation, msg)
	}
	return r.Execute(ctx, n, toolName, args)
}
