package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/logging"
	"github.com/telebiz/agentcore/internal/metrics"
)

const (
	recordExecutionQuery = `
MERGE (e:Execution {id: $id})
SET e.userId = $userId,
    e.conversationId = $conversationId,
    e.request = $request,
    e.status = $status,
    e.canUndo = $canUndo,
    e.undone = $undone,
    e.completed = $completed,
    e.total = $total,
    e.startedAt = $startedAt,
    e.finishedAt = $finishedAt
MERGE (u:User {id: $userId})
MERGE (u)-[:REQUESTED]->(e)
WITH e
UNWIND $chats AS chatId
MERGE (c:Chat {id: chatId})
MERGE (e)-[:AFFECTED]->(c)`

	recordStepsQuery = `
MATCH (e:Execution {id: $id})
UNWIND $steps AS s
MERGE (st:Step {id: s.id})
SET st.seq = s.seq,
    st.tool = s.tool,
    st.description = s.description,
    st.status = s.status,
    st.success = s.success,
    st.error = s.error
MERGE (e)-[:RAN]->(st)`

	chatHistoryQuery = `
MATCH (e:Execution)-[:AFFECTED]->(:Chat {id: $chatId})
RETURN e.id AS id, e.request AS request, e.status AS status,
       e.undone AS undone, e.completed AS completed, e.total AS total,
       e.startedAt AS startedAt
ORDER BY e.startedAt DESC
LIMIT $limit`
)

// Entry is one execution as seen from a chat's history.
type Entry struct {
	ID        string    `json:"id"`
	Request   string    `json:"request"`
	Status    string    `json:"status"`
	Undone    bool      `json:"undone"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	StartedAt time.Time `json:"startedAt"`
}

// Audit writes executions into the graph. It satisfies the agent's
// execution sink contract.
type Audit struct {
	db  *CachedDriver
	log *logging.Logger
}

// NewAudit wraps d with a short-lived read cache.
func NewAudit(d Driver) *Audit {
	return &Audit{
		db:  NewCachedDriver(d, NewQueryCache(128, 30*time.Second)),
		log: logging.New("graph"),
	}
}

// RecordExecution upserts the execution, its steps and the chats it
// touched. Recording the same execution again (after undo) updates it.
func (a *Audit) RecordExecution(ctx context.Context, e *domain.AgentExecution) error {
	if e == nil || e.ID == "" {
		return errors.New("graph: execution without id")
	}
	chats := e.AffectedChatIDs
	if chats == nil {
		chats = []string{}
	}
	err := a.db.ExecuteWrite(ctx, recordExecutionQuery, map[string]any{
		"id":             e.ID,
		"userId":         e.UserID,
		"conversationId": e.ConversationID,
		"request":        e.Request,
		"status":         string(e.Status),
		"canUndo":        e.CanUndo,
		"undone":         e.Undone,
		"completed":      int64(e.CompletedCount()),
		"total":          int64(len(e.Steps)),
		"startedAt":      e.StartedAt.UnixMilli(),
		"finishedAt":     e.FinishedAt.UnixMilli(),
		"chats":          chats,
	})
	metrics.Global().RecordGraphWrite(err == nil)
	if err != nil {
		return fmt.Errorf("record execution %s: %w", e.ID, err)
	}

	if len(e.Steps) > 0 {
		err := a.db.ExecuteWrite(ctx, recordStepsQuery, map[string]any{
			"id":    e.ID,
			"steps": stepParams(e.Steps),
		})
		metrics.Global().RecordGraphWrite(err == nil)
		if err != nil {
			return fmt.Errorf("record steps of %s: %w", e.ID, err)
		}
	}
	a.log.Debug("execution_recorded", map[string]any{"execution_id": e.ID, "chats": len(chats)})
	return nil
}

func stepParams(steps []domain.ExecutionStep) []map[string]any {
	out := make([]map[string]any, 0, len(steps))
	for i, s := range steps {
		var success bool
		var errMsg string
		if s.Result != nil {
			success = s.Result.Success
			errMsg = s.Result.Error
		}
		out = append(out, map[string]any{
			"id":          s.ID,
			"seq":         int64(i),
			"tool":        s.ToolName,
			"description": s.Description,
			"status":      string(s.Status),
			"success":     success,
			"error":       errMsg,
		})
	}
	return out
}

// ChatHistory lists the executions that affected a chat, newest first.
func (a *Audit) ChatHistory(ctx context.Context, chatID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.db.Execute(ctx, chatHistoryQuery, map[string]any{
		"chatId": chatID,
		"limit":  int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("chat history %s: %w", chatID, err)
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, Entry{
			ID:        GetString(r, "id"),
			Request:   GetString(r, "request"),
			Status:    GetString(r, "status"),
			Undone:    GetBool(r, "undone"),
			Completed: GetInt(r, "completed"),
			Total:     GetInt(r, "total"),
			StartedAt: GetTime(r, "startedAt"),
		})
	}
	return out, nil
}

// Stats exposes the read cache counters.
func (a *Audit) Stats() CacheStats {
	return a.db.Cache().Stats()
}

// Close closes the underlying driver.
func (a *Audit) Close() error {
	return a.db.Close()
}
