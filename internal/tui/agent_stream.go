package tui

import (
	"fmt"
	"strings"

	"github.com/telebiz/agentcore/internal/agent"
	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/render"
	"github.com/telebiz/agentcore/internal/text"
)

// streamState tracks what one turn has printed so far.
type streamState struct {
	midLine  bool            // cursor is not at column 0
	streamed bool            // the pending assistant message arrived as deltas
	thinking string          // last progress label shown
	stepped  map[string]bool // tool call ids rendered as execution steps
}

func (c *Console) endLine(st *streamState) {
	if st.midLine {
		c.printf("\n")
		st.midLine = false
	}
}

// handleEvent renders one turn event.
func (c *Console) handleEvent(st *streamState, ev agent.Event) {
	switch ev.Type {
	case agent.EventDelta:
		if ev.Delta == nil || ev.Delta.Type != domain.DeltaContent || ev.Delta.Content == "" {
			return
		}
		c.printf("%s", c.style(textStyle, ev.Delta.Content))
		st.midLine = !strings.HasSuffix(ev.Delta.Content, "\n")
		st.streamed = true

	case agent.EventThinking:
		if ev.Thinking == nil || !ev.Thinking.Thinking || ev.Thinking.Label == "" || ev.Thinking.Label == st.thinking {
			return
		}
		st.thinking = ev.Thinking.Label
		c.endLine(st)
		c.printf("%s\n", c.style(thinkingStyle, "· "+ev.Thinking.Label))

	case agent.EventMessage:
		c.handleMessage(st, ev.Message)

	case agent.EventConfirmation:
		c.endLine(st)
		c.confirm(ev.Confirmation)

	case agent.EventStep:
		c.handleStep(st, ev.Step)

	case agent.EventExecution:
		if e := ev.Execution; e != nil && e.CanUndo {
			c.printf("%s\n", c.style(dimStyle, "  /undo reverts this"))
		}

	case agent.EventError:
		c.endLine(st)
		c.printf("%s\n", c.style(agentErrorStyle, "Error: "+ev.Error))
	}
}

func (c *Console) handleMessage(st *streamState, msg *domain.AgentMessage) {
	if msg == nil {
		return
	}
	switch msg.Role {
	case domain.RoleAssistant:
		if !st.streamed && msg.Content != "" {
			c.endLine(st)
			c.printf("%s\n", c.style(textStyle, text.WordWrap(msg.Content, c.width)))
		}
		st.streamed = false
		c.endLine(st)
	case domain.RoleTool:
		// results of executed steps were already shown
		if msg.ToolResult == nil || msg.ToolResult.Success || st.stepped[msg.ToolCallID] {
			return
		}
		c.endLine(st)
		c.printf("%s\n", c.style(agentErrorStyle, "  ✗ "+msg.ToolResult.Error))
	}
}

func (c *Console) handleStep(st *streamState, step *domain.ExecutionStep) {
	if step == nil {
		return
	}
	if st.stepped == nil {
		st.stepped = make(map[string]bool)
	}
	st.stepped[step.ToolCallID] = true
	c.endLine(st)

	label := step.Description
	if label == "" {
		label = step.ToolName
	}
	switch step.Status {
	case domain.StepRunning:
		c.printf("%s\n", c.style(toolStyle, "▶ "+label))
	case domain.StepCompleted:
		c.printf("%s\n", c.style(okStyle, "  "+render.StatusIcon(string(step.Status))+" done"))
	case domain.StepFailed:
		reason := "failed"
		if step.Result != nil && step.Result.Error != "" {
			reason = step.Result.Error
		}
		c.printf("%s\n", c.style(agentErrorStyle, "  ✗ "+reason))
	case domain.StepSkipped:
		c.printf("%s\n", c.style(dimStyle, "  ○ skipped "+label))
	}
}

// confirm shows a plan and asks until it gets an answer. EOF cancels.
func (c *Console) confirm(req *domain.ConfirmationRequest) {
	if req == nil {
		return
	}
	body := strings.TrimRight(c.render.Confirmation(req), "\n")
	if c.pretty {
		body = planStyle.Render(body)
	}
	c.printf("%s\n", body)

	for {
		c.printf("Run this plan? [y/N] ")
		answer, err := c.readLine()
		if err != nil {
			answer = "n"
			c.printf("\n")
		}
		var decide func(string) error
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			decide = c.session.Confirm
		case "", "n", "no":
			decide = c.session.Cancel
		default:
			continue
		}
		if err := decide(req.PlanID); err != nil {
			c.printf("%s\n", c.style(agentErrorStyle, fmt.Sprintf("Error: %v", err)))
		}
		return
	}
}
