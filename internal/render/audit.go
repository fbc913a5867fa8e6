package render

import (
	"github.com/telebiz/agentcore/internal/graph"
	"github.com/telebiz/agentcore/internal/text"
)

// History renders the per-chat execution trail kept in the audit graph.
type History struct {
	*Writer
}

// NewHistory creates a History renderer writing to stdout.
func NewHistory() *History {
	return &History{Writer: Stdout()}
}

// Entries renders the executions that touched one chat, newest first.
func (h *History) Entries(chatID string, entries []graph.Entry) {
	if len(entries) == 0 {
		h.Empty("No recorded executions for chat " + chatID)
		return
	}

	h.Header("HISTORY FOR %s (%d executions)", chatID, len(entries))
	for _, e := range entries {
		line := StatusIcon(e.Status) + " [" + e.StartedAt.Format("2006-01-02 15:04:05") + "] " + text.Truncate(e.Request, 60)
		h.Println("%s", line)
		h.Nested("%d/%d steps, undone %s", e.Completed, e.Total, BoolIcon(e.Undone))
	}
}

// Stats renders the audit query cache counters.
func (h *History) Stats(s graph.CacheStats) {
	h.Header("audit cache")
	h.Item("entries:  %d/%d", s.Size, s.Capacity)
	h.Item("hits:     %d", s.Hits)
	h.Item("misses:   %d", s.Misses)
	h.Item("hit rate: %.0f%%", s.HitRate*100)
}
