package agent

import (
	"strings"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/extratool"
	"github.com/telebiz/agentcore/internal/skills"
)

const basePrompt = `You are Telebiz, an AI assistant for Telegram business workflows.

TOOL SELECTION:
- Questions about CRM or integrations: useExtraTool("crm"), then listIntegrations
- "this chat" or "current chat": getCurrentChat, then getChatRelationship
- A chat's CRM entity: getChatRelationship (integrationId, entityType, entityId)
- Pending tasks or focus mode: listPendingChats
- Reading or finding messages: getRecentMessages, searchMessages
- Sending messages and managing chats, folders and members: use the chat tools directly

EXTRA TOOLS (load with useExtraTool before using):
- "crm": deals, contacts, companies, notes and chat links
- "notion": page properties, blocks, todos and new pages
- "reminders": list, create, complete, update and delete reminders
- "bulk": batch operations over pending tasks
- "skills": read and manage user skills

SKILLS:
Knowledge skills always apply. Tool skills are listed by context; call
getSkillData("context") when one matches. Invoked skills were requested
with /name and apply to the current request.
Priority: invoked skills, then knowledge, then tool skills.

DATA MODEL:
Telegram chats can be linked to CRM entities (contacts, deals, Notion
pages). Use the ids from getChatRelationship with the extra tools.
If linkEntityToChat reports that an entity does not exist, ask the user
before creating one.`

var modePrompts = map[domain.Mode]string{
	domain.ModeAsk: `

MODE: READ-ONLY (Ask Mode)
You can query data but cannot modify anything. No sending messages,
updating the CRM or dismissing tasks. Be concise and informative.`,

	domain.ModePlan: `

MODE: PLANNING (Plan Mode)
Gather context with read tools, then propose the write operations as
tool calls. Every write is shown to the user as a plan and runs only
after they confirm it. Explain each step and its expected outcome.`,

	domain.ModeAgent: `

MODE: FULL ACCESS (Agent Mode)
You can read and write on the user's behalf. Destructive actions are
confirmed by the user before they run. Summarize completed actions.`,
}

// PromptBuilder assembles the system prompt of one model call.
type PromptBuilder struct {
	base   string
	custom string
}

// NewPromptBuilder creates a builder. An empty base selects the built-in
// prompt.
func NewPromptBuilder(base string) *PromptBuilder {
	if base == "" {
		base = basePrompt
	}
	return &PromptBuilder{base: base}
}

// SetCustomPrompt sets additional instructions appended after the mode.
func (p *PromptBuilder) SetCustomPrompt(prompt string) {
	p.custom = prompt
}

// Build renders base, mode, custom instructions, the context prompts of the
// loaded bundles and the skill sections, in that order.
func (p *PromptBuilder) Build(mode domain.Mode, bundles []extratool.ExtraTool, all, invoked []domain.Skill) string {
	var b strings.Builder
	b.WriteString(p.base)
	b.WriteString(modePrompts[mode])
	if p.custom != "" {
		b.WriteString("\n\n")
		b.WriteString(p.custom)
	}
	for _, bundle := range bundles {
		if bundle.ContextPrompt == "" {
			continue
		}
		b.WriteString("\n\n")
		b.WriteString(bundle.ContextPrompt)
	}
	return skills.BuildPrompt(b.String(), all, invoked)
}
