package conversation

import "github.com/telebiz/agentcore/internal/domain"

// ValidateHistory returns a copy of msgs that a provider will accept: every
// assistant tool call is followed by its result and every tool message
// answers a call of the assistant message before it. Unanswered calls and
// orphan tool messages are dropped, as is an assistant message left with
// neither content nor calls.
func ValidateHistory(msgs []domain.AgentMessage) []domain.AgentMessage {
	out := make([]domain.AgentMessage, 0, len(msgs))
	for i := 0; i < len(msgs); i++ {
		m := msgs[i]
		switch {
		case m.Role == domain.RoleTool:
			// reached only when no assistant message claims it
			continue
		case m.Role == domain.RoleAssistant && len(m.ToolCalls) > 0:
			j := i + 1
			results := map[string]domain.AgentMessage{}
			var order []string
			for ; j < len(msgs) && msgs[j].Role == domain.RoleTool; j++ {
				id := msgs[j].ToolCallID
				if _, dup := results[id]; !dup {
					order = append(order, id)
				}
				results[id] = msgs[j]
			}

			calls := make([]domain.ToolCall, 0, len(m.ToolCalls))
			issued := map[string]bool{}
			for _, tc := range m.ToolCalls {
				if _, ok := results[tc.ID]; ok {
					calls = append(calls, tc)
					issued[tc.ID] = true
				}
			}
			m.ToolCalls = calls
			if len(calls) == 0 {
				m.ToolCalls = nil
			}
			if len(calls) > 0 || m.Content != "" {
				out = append(out, m)
			}
			for _, id := range order {
				if issued[id] {
					out = append(out, results[id])
				}
			}
			i = j - 1
		default:
			out = append(out, m)
		}
	}
	return out
}
