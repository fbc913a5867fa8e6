package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/extratool"
	"github.com/telebiz/agentcore/internal/text"
)

// Renderer formats CLI listings. With pretty off it emits plain
// key=value lines suitable for scripts.
type Renderer struct {
	pretty bool
}

// New creates a new renderer.
func New(pretty bool) *Renderer {
	return &Renderer{pretty: pretty}
}

func (r *Renderer) title(sb *strings.Builder, text string, width int) {
	if !r.pretty {
		return
	}
	sb.WriteString(color.CyanString(text) + "\n")
	sb.WriteString(strings.Repeat("─", width) + "\n")
}

// Bundles formats the bundle catalogue.
func (r *Renderer) Bundles(bundles []extratool.ExtraTool) string {
	var sb strings.Builder
	r.title(&sb, "Tool bundles", 60)
	for _, b := range bundles {
		if r.pretty {
			fmt.Fprintf(&sb, "  %-10s %s %s\n", b.Name,
				color.HiBlackString("(%d tools)", len(b.Tools)), text.Truncate(b.Description, 60))
		} else {
			fmt.Fprintf(&sb, "name=%s tools=%d\n", b.Name, len(b.Tools))
		}
	}
	return sb.String()
}

// Bundle formats one bundle with its tools. Read-only tools are marked.
func (r *Renderer) Bundle(b extratool.ExtraTool) string {
	readOnly := make(map[string]bool, len(b.ReadOnlyTools))
	for _, n := range b.ReadOnlyTools {
		readOnly[n] = true
	}

	var sb strings.Builder
	r.title(&sb, string(b.Name), 60)
	if r.pretty {
		sb.WriteString(b.Description + "\n\n")
	}
	for _, t := range b.Tools {
		if !r.pretty {
			fmt.Fprintf(&sb, "tool=%s readonly=%v\n", t.Name, readOnly[t.Name])
			continue
		}
		marker := color.YellowString("w")
		if readOnly[t.Name] {
			marker = color.GreenString("r")
		}
		fmt.Fprintf(&sb, "  [%s] %-24s %s\n", marker, t.Name, text.Truncate(t.Description, 50))
	}
	return sb.String()
}

// Conversations formats the conversation list, marking the current one.
func (r *Renderer) Conversations(convs []*domain.AgentConversation, current string) string {
	if len(convs) == 0 {
		return "No conversations yet"
	}
	var sb strings.Builder
	r.title(&sb, "Conversations", 70)
	for _, c := range convs {
		if !r.pretty {
			fmt.Fprintf(&sb, "id=%s messages=%d current=%v title=%q\n", c.ID, len(c.Messages), c.ID == current, c.Title)
			continue
		}
		mark := " "
		if c.ID == current {
			mark = color.GreenString("*")
		}
		fmt.Fprintf(&sb, "%s %s %-30s %s\n", mark, color.HiBlackString(c.ID),
			text.Truncate(c.Title, 30), color.HiBlackString("%d msgs, %s", len(c.Messages), c.UpdatedAt.Format("2006-01-02 15:04")))
	}
	return sb.String()
}

// Skills formats the skill list.
func (r *Renderer) Skills(skills []domain.Skill) string {
	if len(skills) == 0 {
		return "No skills yet. Add one with 'telebiz skills add'."
	}
	var sb strings.Builder
	r.title(&sb, "Skills", 60)
	for _, s := range skills {
		if !r.pretty {
			fmt.Fprintf(&sb, "id=%s name=%s type=%s active=%v\n", s.ID, s.Name, s.Type, s.IsActive)
			continue
		}
		name := "/" + s.Name
		if !s.IsActive {
			name = color.HiBlackString(name)
		}
		fmt.Fprintf(&sb, "  %-24s %-10s %s\n", name, s.Type, text.Truncate(s.Context, 40))
	}
	return sb.String()
}

// Executions formats execution history, newest last.
func (r *Renderer) Executions(execs []*domain.AgentExecution) string {
	if len(execs) == 0 {
		return "No executions yet"
	}
	var sb strings.Builder
	r.title(&sb, "Executions", 60)
	for _, e := range execs {
		if !r.pretty {
			fmt.Fprintf(&sb, "id=%s status=%s steps=%d/%d undone=%v\n", e.ID, e.Status, e.CompletedCount(), len(e.Steps), e.Undone)
			continue
		}
		icon := StatusIcon(string(e.Status))
		switch e.Status {
		case domain.ExecutionCompleted:
			icon = color.GreenString(icon)
		case domain.ExecutionFailed:
			icon = color.RedString(icon)
		default:
			icon = color.YellowString(icon)
		}
		undone := ""
		if e.Undone {
			undone = color.HiBlackString(" (undone)")
		}
		fmt.Fprintf(&sb, "%s %s %s %d/%d%s\n", icon, color.HiBlackString(e.StartedAt.Format("15:04:05")),
			text.Truncate(e.Request, 40), e.CompletedCount(), len(e.Steps), undone)
	}
	return sb.String()
}

// Confirmation formats a plan waiting for approval.
func (r *Renderer) Confirmation(req *domain.ConfirmationRequest) string {
	var sb strings.Builder
	if r.pretty {
		sb.WriteString(color.YellowString("Plan: %s", req.Description) + "\n")
	} else {
		fmt.Fprintf(&sb, "plan=%s description=%q\n", req.PlanID, req.Description)
	}
	for i, s := range req.Steps {
		desc := s.Description
		if desc == "" {
			desc = s.ToolName
		}
		if r.pretty && s.Destructive {
			desc = color.RedString(desc)
		}
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, desc)
	}
	impact := req.EstimatedImpact
	if len(impact.ChatsAffected) > 0 {
		fmt.Fprintf(&sb, "  Affects %d chat(s)", len(impact.ChatsAffected))
		if impact.IsDestructive {
			sb.WriteString(", including destructive actions")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
