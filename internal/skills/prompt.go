package skills

import (
	"fmt"
	"strings"

	"github.com/telebiz/agentcore/internal/domain"
)

// KnowledgeSection renders knowledge skills that always apply.
func KnowledgeSection(knowledge []domain.Skill) string {
	if len(knowledge) == 0 {
		return ""
	}
	parts := make([]string, 0, len(knowledge))
	for _, s := range knowledge {
		parts = append(parts, fmt.Sprintf("### %s\nContext: %s\n\n%s", strings.ToUpper(s.Name), s.Context, s.Content))
	}
	return "\n\n=== KNOWLEDGE (ALWAYS APPLY) ===\n" +
		"The following instructions should always guide your responses:\n\n" +
		strings.Join(parts, "\n\n")
}

// ToolSection lists tool skill contexts the model may fetch with getSkillData.
func ToolSection(tools []domain.Skill) string {
	if len(tools) == 0 {
		return ""
	}
	lines := make([]string, 0, len(tools))
	for _, s := range tools {
		lines = append(lines, fmt.Sprintf("→ \"%s\" (/%s)", s.Context, s.Name))
	}
	return "\n\n=== AVAILABLE SKILLS (RETRIEVE WHEN RELEVANT) ===\n" +
		strings.Join(lines, "\n") +
		"\n\nFor each skill above: if it applies OR says \"always/every/all\", call getSkillData(\"context\") before responding."
}

// OnDemandSection renders skills the user invoked with /name.
func OnDemandSection(invoked []domain.Skill) string {
	if len(invoked) == 0 {
		return ""
	}
	parts := make([]string, 0, len(invoked))
	for _, s := range invoked {
		parts = append(parts, fmt.Sprintf("### /%s (INVOKED BY USER)\nContext: %s\n\n%s", strings.ToUpper(s.Name), s.Context, s.Content))
	}
	return "\n\n=== INVOKED SKILLS (APPLY FOR THIS REQUEST) ===\n" +
		"The user explicitly invoked the following skills. Apply them to this request:\n\n" +
		strings.Join(parts, "\n\n")
}

// BuildPrompt appends every skill section that has content to base.
func BuildPrompt(base string, all []domain.Skill, invoked []domain.Skill) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString(KnowledgeSection(Knowledge(all)))
	b.WriteString(ToolSection(Tools(all)))
	b.WriteString(OnDemandSection(invoked))
	return b.String()
}
