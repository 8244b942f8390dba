// Package server exposes form-filling sessions over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/tbxark/formchat/document"
	"github.com/tbxark/formchat/engine"
	"github.com/tbxark/formchat/store"
	"github.com/tbxark/formchat/types"
)

// DocumentStore keeps the documents a session can be opened on.
type DocumentStore interface {
	document.Provider
	SaveDocument(ctx context.Context, doc *document.Document) error
	ListDocuments(ctx context.Context) ([]*document.Document, error)
}

// FormGenerator drafts form schemas from a description or a picture of a paper form.
type FormGenerator interface {
	FromRequest(ctx context.Context, text string) (types.FormSchema, error)
	FromImage(ctx context.Context, imageURL string) (types.FormSchema, error)
}

// Handler handles HTTP requests.
type Handler struct {
	engine    *engine.Engine
	sessions  store.SessionStore
	documents DocumentStore
	forms     FormGenerator

	mu            sync.Mutex
	conversations map[string]*engine.Conversation
}

type Option func(*Handler)

func WithDocuments(d DocumentStore) Option {
	return func(h *Handler) {
		h.documents = d
	}
}

func WithFormGenerator(g FormGenerator) Option {
	return func(h *Handler) {
		h.forms = g
	}
}

func NewHandler(eng *engine.Engine, sessions store.SessionStore, opts ...Option) *Handler {
	h := &Handler{
		engine:        eng,
		sessions:      sessions,
		conversations: map[string]*engine.Conversation{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/sessions", h.CreateSession)
	e.GET("/v1/sessions", h.ListSessions)
	e.GET("/v1/sessions/:id", h.GetSession)
	e.POST("/v1/sessions/:id/start", h.StartSession)
	e.POST("/v1/sessions/:id/answers", h.SubmitAnswer)
	e.DELETE("/v1/sessions/:id", h.DeleteSession)

	e.POST("/v1/forms/generate", h.GenerateForm)

	e.GET("/v1/documents", h.ListDocuments)
	e.POST("/v1/documents", h.CreateDocument)

	e.GET("/health", h.Health)
}

// NewServer returns an echo instance with middleware and routes installed.
func NewServer(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	h.RegisterRoutes(e)
	return e
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func errorJSON(c echo.Context, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.Path(), "err", err)
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidSchema), errors.Is(err, engine.ErrNoDocumentProvider):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, document.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidState), errors.Is(err, engine.ErrTurnInProgress):
		return http.StatusConflict
	case errors.Is(err, engine.ErrConversationClosed):
		return http.StatusGone
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
