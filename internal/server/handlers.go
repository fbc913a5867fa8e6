package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/telebiz/agentcore/internal/agent"
	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/execution"
	"github.com/telebiz/agentcore/internal/extratool"
	"github.com/telebiz/agentcore/internal/plan"
	"github.com/telebiz/agentcore/internal/store"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case store.IsNotFound(err), errors.Is(err, plan.ErrPlanNotFound), errors.Is(err, agent.ErrNothingToUndo):
		return http.StatusNotFound
	case errors.Is(err, agent.ErrBusy),
		errors.Is(err, plan.ErrInvalidTransition),
		errors.Is(err, execution.ErrNotUndoable),
		errors.Is(err, execution.ErrAlreadyUndone):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"busy":   s.session.Busy(),
	})
}

// --- Mode ---

func (s *Server) handleGetMode(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"mode": string(s.session.Mode())})
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode domain.Mode `json:"mode"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.session.SetMode(req.Mode); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"mode": string(req.Mode)})
}

// --- Bundles ---

func (s *Server) handleListBundles(w http.ResponseWriter, r *http.Request) {
	bundles := s.session.Bundles()
	if bundles == nil {
		bundles = []extratool.ExtraTool{}
	}
	respondJSON(w, http.StatusOK, bundles)
}

func (s *Server) handleGetBundle(w http.ResponseWriter, r *http.Request) {
	name := extratool.Name(chi.URLParam(r, "name"))
	for _, b := range s.session.Bundles() {
		if b.Name == name {
			respondJSON(w, http.StatusOK, b)
			return
		}
	}
	respondError(w, http.StatusNotFound, fmt.Sprintf("unknown bundle %q", name))
}

// --- Conversations ---

// conversationSummary is the list view of a conversation.
type conversationSummary struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Provider     domain.ProviderID `json:"provider"`
	MessageCount int               `json:"messageCount"`
	Current      bool              `json:"current"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.session.Conversations().List(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	current := s.session.Conversations().CurrentID()
	out := make([]conversationSummary, 0, len(convs))
	for _, c := range convs {
		out = append(out, conversationSummary{
			ID:           c.ID,
			Title:        c.Title,
			Provider:     c.Provider,
			MessageCount: len(c.Messages),
			Current:      c.ID == current,
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.session.Conversations().Create(r.Context(), s.session.Provider().ID())
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.session.Conversations().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.session.DeleteConversation(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSwitchConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.session.Conversations().Switch(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"current": id})
}

// SendRequest is the body of POST /api/conversations/{id}/messages.
type SendRequest struct {
	Content string      `json:"content"`
	Mode    domain.Mode `json:"mode,omitempty"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.Mode != "" {
		if err := s.session.SetMode(req.Mode); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	events, err := s.session.SendTo(r.Context(), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.stream(w, r, events)
}

// --- Plans ---

func (s *Server) handleConfirmPlan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.session.Confirm(id); err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"planId": id, "status": "confirmed"})
}

func (s *Server) handleCancelPlan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.session.Cancel(id); err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"planId": id, "status": "cancelled"})
}

// --- Executions ---

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	execs := s.session.Executions()
	if execs == nil {
		execs = []*domain.AgentExecution{}
	}
	respondJSON(w, http.StatusOK, execs)
}

// UndoResponse is the body returned by POST /api/executions/last/undo.
type UndoResponse struct {
	Message *domain.AgentMessage   `json:"message,omitempty"`
	Results []execution.UndoResult `json:"results"`
	Error   string                 `json:"error,omitempty"`
}

func (s *Server) handleUndoLast(w http.ResponseWriter, r *http.Request) {
	msg, results, err := s.session.UndoLast(r.Context())
	if msg == nil && err != nil {
		s.fail(w, err)
		return
	}
	resp := UndoResponse{Message: msg, Results: results}
	if resp.Results == nil {
		resp.Results = []execution.UndoResult{}
	}
	if err != nil {
		// some undo actions failed; the rest were applied
		resp.Error = err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}
