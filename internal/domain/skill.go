package domain

import "time"

// SkillType decides how a skill reaches the prompt.
type SkillType string

const (
	SkillKnowledge SkillType = "knowledge" // always injected
	SkillTool      SkillType = "tool"      // injected when relevant
	SkillOnDemand  SkillType = "onDemand"  // injected on /name
)

// Valid reports whether t is a known skill type.
func (t SkillType) Valid() bool {
	switch t {
	case SkillKnowledge, SkillTool, SkillOnDemand:
		return true
	}
	return false
}

// Skill is a user-authored instruction snippet.
type Skill struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Context   string    `json:"context"`
	Content   string    `json:"content"`
	Type      SkillType `json:"skillType"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
