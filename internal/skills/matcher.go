// Package skills matches user-authored skills against requests and renders
// them into system prompt sections.
package skills

import (
	"regexp"
	"sort"
	"strings"

	"github.com/telebiz/agentcore/internal/domain"
)

// MinScore is the lowest score Retrieve returns.
const MinScore = 30

var nonWord = regexp.MustCompile(`[^\w\s]`)

// Tokenize lowercases text, turns punctuation into spaces and keeps words
// of at least two characters.
func Tokenize(text string) []string {
	clean := nonWord.ReplaceAllString(strings.ToLower(text), " ")
	var out []string
	for _, w := range strings.Fields(clean) {
		if len(w) >= 2 {
			out = append(out, w)
		}
	}
	return out
}

// ScoreMatch scores how well query matches a skill context, 0 to 100.
//
// A case-insensitive substring hit scores 100. Otherwise each query word
// counts as matched when some context word contains it; the matched fraction
// is worth up to 80, plus 10 when the first context word contains the first
// query word.
func ScoreMatch(query, context string) int {
	q := Tokenize(query)
	c := Tokenize(context)
	if len(q) == 0 || len(c) == 0 {
		return 0
	}

	if strings.Contains(strings.ToLower(context), strings.ToLower(query)) {
		return 100
	}

	matched := 0
	for _, qw := range q {
		for _, cw := range c {
			if strings.Contains(cw, qw) {
				matched++
				break
			}
		}
	}

	score := float64(matched) / float64(len(q)) * 80
	if strings.Contains(c[0], q[0]) {
		score += 10
	}
	if score > 100 {
		score = 100
	}
	return int(score)
}

// Match is a skill with its relevance score.
type Match struct {
	Skill domain.Skill `json:"skill"`
	Score int          `json:"matchScore"`
}

// Retrieve scores every active tool skill against query and returns those
// at or above MinScore, best first. Ties keep input order.
func Retrieve(query string, all []domain.Skill) []Match {
	var out []Match
	for _, s := range all {
		if !s.IsActive || s.Type != domain.SkillTool {
			continue
		}
		if score := ScoreMatch(query, s.Context); score >= MinScore {
			out = append(out, Match{Skill: s, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// OfType returns the active skills of type t.
func OfType(all []domain.Skill, t domain.SkillType) []domain.Skill {
	var out []domain.Skill
	for _, s := range all {
		if s.IsActive && s.Type == t {
			out = append(out, s)
		}
	}
	return out
}

// Knowledge returns the active knowledge skills.
func Knowledge(all []domain.Skill) []domain.Skill {
	return OfType(all, domain.SkillKnowledge)
}

// Tools returns the active tool skills.
func Tools(all []domain.Skill) []domain.Skill {
	return OfType(all, domain.SkillTool)
}

// OnDemand finds an active onDemand skill by name, ignoring case.
func OnDemand(all []domain.Skill, name string) (domain.Skill, bool) {
	for _, s := range all {
		if s.IsActive && s.Type == domain.SkillOnDemand && strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return domain.Skill{}, false
}

var skillTag = regexp.MustCompile(`/([a-zA-Z][a-zA-Z0-9_-]*)`)

// ParseSkillTags extracts /name tags from a user message. Names are
// lowercased. cleaned is the message with tags removed and whitespace
// collapsed.
func ParseSkillTags(message string) (names []string, cleaned string) {
	for _, m := range skillTag.FindAllStringSubmatch(message, -1) {
		names = append(names, strings.ToLower(m[1]))
	}
	cleaned = strings.Join(strings.Fields(skillTag.ReplaceAllString(message, "")), " ")
	return names, cleaned
}

// Invoked resolves tags against the onDemand skills. Unknown names are
// returned separately so callers can log them.
func Invoked(all []domain.Skill, names []string) (found []domain.Skill, missing []string) {
	for _, n := range names {
		if s, ok := OnDemand(all, n); ok {
			found = append(found, s)
		} else {
			missing = append(missing, n)
		}
	}
	return found, missing
}
