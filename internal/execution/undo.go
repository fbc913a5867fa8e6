package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/tool"
)

var (
	ErrNotUndoable   = errors.New("execution cannot be undone")
	ErrAlreadyUndone = errors.New("execution was already undone")
)

// UndoResult is the outcome of one undo action.
type UndoResult struct {
	StepID string            `json:"stepId"`
	Action domain.UndoAction `json:"action"`
	Result domain.ToolResult `json:"result"`
}

// Undo runs the undo actions of exec in reverse step order, each behind the
// rate limiter, and marks exec undone. A failed action does not stop the
// remaining ones; the returned error then names how many failed.
func (e *Engine) Undo(ctx context.Context, exec *domain.AgentExecution) ([]UndoResult, error) {
	if exec == nil || !exec.CanUndo {
		return nil, ErrNotUndoable
	}
	if exec.Undone {
		return nil, ErrAlreadyUndone
	}

	scope := e.limiter.BeginExecution()
	var results []UndoResult
	failed := 0
	for i := len(exec.Steps) - 1; i >= 0; i-- {
		s := exec.Steps[i]
		if s.UndoAction == nil || s.UndoAction.ToolName == "" {
			continue
		}
		action := *s.UndoAction
		var res domain.ToolResult
		if err := scope.Wait(ctx, action.ToolName, e.tools.IsHeavy(action.ToolName)); err != nil {
			res = domain.Fail(domain.ErrorKindRateLimit, err.Error())
		} else {
			res = e.tools.Execute(context.WithoutCancel(ctx), action.ToolName, tool.Args(action.Args))
		}
		if !res.Success {
			failed++
		}
		results = append(results, UndoResult{StepID: s.ID, Action: action, Result: res})
	}

	exec.Undone = true
	exec.CanUndo = false
	e.log.Info("execution_undone", map[string]any{
		"execution_id": exec.ID,
		"actions":      len(results),
		"failed":       failed,
	})
	if failed > 0 {
		return results, fmt.Errorf("%d of %d undo actions failed", failed, len(results))
	}
	return results, nil
}
