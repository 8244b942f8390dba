package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/tbxark/formchat/engine"
	"github.com/tbxark/formchat/session"
	"github.com/tbxark/formchat/types"
)

// CreateSessionRequest is the request to open a session.
type CreateSessionRequest struct {
	Form       types.FormSchema `json:"form"`
	DocumentID string           `json:"document_id,omitempty"`
	Language   string           `json:"language,omitempty"`
}

// AnswerRequest carries the user's answer to the pending question.
type AnswerRequest struct {
	Text string `json:"text"`
}

// SessionView is a session plus the fields still waiting for an answer.
type SessionView struct {
	*session.Session
	Missing []types.FieldInfo `json:"missing"`
}

// TurnResponse is the outcome of a start or answer call.
type TurnResponse struct {
	*engine.Response
	Error string `json:"error,omitempty"`
}

func view(s *session.Session) SessionView {
	return SessionView{Session: s, Missing: s.Schema.Missing()}
}

// CreateSession opens a session for a form.
// POST /v1/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	ctx := c.Request().Context()

	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	var opts []session.CreateOption
	if req.Language != "" {
		opts = append(opts, session.WithLanguage(req.Language))
	}
	s, err := h.engine.CreateSession(ctx, req.Form, req.DocumentID, opts...)
	if err != nil {
		return errorJSON(c, err)
	}
	if err := h.sessions.Save(ctx, s); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, view(s))
}

// ListSessions lists stored sessions, most recently updated first.
// GET /v1/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	list, err := h.sessions.List(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	out := make([]map[string]any, len(list))
	for i, s := range list {
		out[i] = map[string]any{
			"id":         s.ID,
			"title":      s.Title,
			"state":      s.State,
			"complete":   s.Complete,
			"updated_at": s.UpdatedAt,
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"sessions": out})
}

// GetSession returns the latest committed session.
// GET /v1/sessions/:id
func (h *Handler) GetSession(c echo.Context) error {
	conv, err := h.conversation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, view(conv.Session()))
}

// StartSession asks the first question.
// POST /v1/sessions/:id/start
func (h *Handler) StartSession(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	conv, err := h.conversation(ctx, id)
	if err != nil {
		return errorJSON(c, err)
	}
	resp, err := conv.Start(ctx)
	return h.finishTurn(c, id, conv, resp, err)
}

// SubmitAnswer answers the pending question. A second answer while the model is still
// working on the first is rejected with 409.
// POST /v1/sessions/:id/answers
func (h *Handler) SubmitAnswer(c echo.Context) error {
	ctx := c.Request().Context()

	var req AnswerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "text is required"})
	}
	id := c.Param("id")
	conv, err := h.conversation(ctx, id)
	if err != nil {
		return errorJSON(c, err)
	}
	resp, err := conv.TrySubmit(ctx, req.Text)
	return h.finishTurn(c, id, conv, resp, err)
}

// DeleteSession discards a session. A reply still in flight for it is dropped.
// The row is removed under the same lock conversation holds around Load, so no
// request can reopen the session in between.
// DELETE /v1/sessions/:id
func (h *Handler) DeleteSession(c echo.Context) error {
	id := c.Param("id")
	h.mu.Lock()
	defer h.mu.Unlock()
	if conv, ok := h.conversations[id]; ok {
		conv.Close()
		delete(h.conversations, id)
	}
	if err := h.sessions.Delete(c.Request().Context(), id); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// finishTurn saves the turn's session unless the conversation was discarded
// while the turn ran.
func (h *Handler) finishTurn(c echo.Context, id string, conv *engine.Conversation, resp *engine.Response, err error) error {
	if err != nil {
		return errorJSON(c, err)
	}
	h.mu.Lock()
	if h.conversations[id] != conv {
		h.mu.Unlock()
		slog.Debug("turn dropped for discarded session", "session", id)
		return errorJSON(c, engine.ErrConversationClosed)
	}
	err = h.sessions.Save(c.Request().Context(), resp.Session)
	h.mu.Unlock()
	if err != nil {
		return errorJSON(c, err)
	}
	out := TurnResponse{Response: resp}
	if resp.Err != nil {
		out.Error = resp.Err.Error()
	}
	return c.JSON(http.StatusOK, out)
}

// conversation returns the live conversation for id, loading the session on first use.
func (h *Handler) conversation(ctx context.Context, id string) (*engine.Conversation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conv, ok := h.conversations[id]; ok {
		return conv, nil
	}
	s, err := h.sessions.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	conv := h.engine.NewConversation(s)
	h.conversations[id] = conv
	slog.Debug("conversation opened", "session", id, "state", s.State)
	return conv, nil
}
