package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/tbxark/formchat/document"
	"github.com/tbxark/formchat/prompt"
	"github.com/tbxark/formchat/session"
	"github.com/tbxark/formchat/types"
)

// Response is the outcome of one engine call. Conversational failures are reported in
// Err and Metadata["error"] rather than as a Go error, and Session is always usable.
type Response struct {
	Message  string            `json:"message"`
	Session  *session.Session  `json:"session"`
	State    session.State     `json:"state"`
	Delta    json.RawMessage   `json:"delta,omitempty"`
	Err      error             `json:"-"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Engine drives form-filling sessions. It keeps no per-session state: every call takes a
// session and returns the next one.
type Engine struct {
	chatModel   model.BaseChatModel
	documents   document.Provider
	builder     *prompt.Builder
	model       string
	visionModel string
	maxTokens   int
	temperature float32
	language    string
	apology     string
}

func New(chatModel model.BaseChatModel, opts ...Option) *Engine {
	o := engineOptions{
		model:       DefaultModel,
		maxTokens:   DefaultMaxTokens,
		temperature: DefaultTemperature,
		apology:     DefaultApology,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.builder == nil {
		o.builder = prompt.NewBuilder()
	}
	if o.visionModel == "" {
		o.visionModel = o.model
	}
	return &Engine{
		chatModel:   chatModel,
		documents:   o.documents,
		builder:     o.builder,
		model:       o.model,
		visionModel: o.visionModel,
		maxTokens:   o.maxTokens,
		temperature: o.temperature,
		language:    o.language,
		apology:     o.apology,
	}
}

// CreateSession starts a session for form, grounded in the document documentID refers
// to when it is not empty.
func (e *Engine) CreateSession(ctx context.Context, form types.FormSchema, documentID string, opts ...session.CreateOption) (*session.Session, error) {
	var doc *document.Document
	if documentID != "" {
		if e.documents == nil {
			return nil, ErrNoDocumentProvider
		}
		d, err := e.documents.GetDocument(ctx, documentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load document: %w", err)
		}
		doc = d
	}
	base := []session.CreateOption{
		session.WithLanguage(e.language),
		session.WithPromptBuilder(e.builder),
	}
	s, err := session.Create(form, doc, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	slog.Debug("session created", "session", s.ID, "document", s.DocumentID, "transcript", len(s.Transcript))
	return s, nil
}

// Start asks the model for the first question.
func (e *Engine) Start(ctx context.Context, s *session.Session) (*Response, error) {
	if s == nil {
		return nil, ErrNilSession
	}
	if s.State != session.StateAwaitingFirstQuestion {
		return nil, fmt.Errorf("%w: cannot start from %s", ErrInvalidState, s.State)
	}
	ctx = callbacks.EnsureRunInfo(ctx, "FormChat", "Engine")
	ctx = callbacks.OnStart(ctx, map[string]any{"op": "start", "session": s.ID})

	msgs := append(s.ModelMessages(), schema.SystemMessage(e.builder.BuildKickoffInstruction()))
	raw, err := e.invoke(ctx, msgs)
	if cErr := ctx.Err(); cErr != nil {
		callbacks.OnError(ctx, cErr)
		return nil, cErr
	}
	if err != nil {
		return e.fallback(ctx, s, s.State, err), nil
	}

	next, reply, pErr := session.ApplyAssistantTurn(s, raw)
	if pErr != nil {
		// a plain-text first question is expected
		slog.Debug("first question is not structured", "session", s.ID, "err", pErr)
	}
	resp := e.respond(s, next, raw, reply)
	callbacks.OnEnd(ctx, map[string]any{"state": string(resp.State), "complete": next.Complete})
	return resp, nil
}

// SubmitAnswer records the user's answer, asks the model for the updated form and
// folds the reply into the session.
func (e *Engine) SubmitAnswer(ctx context.Context, s *session.Session, text string) (*Response, error) {
	if s == nil {
		return nil, ErrNilSession
	}
	if s.State != session.StateAwaitingUserAnswer {
		return nil, fmt.Errorf("%w: cannot answer from %s", ErrInvalidState, s.State)
	}
	ctx = callbacks.EnsureRunInfo(ctx, "FormChat", "Engine")
	ctx = callbacks.OnStart(ctx, map[string]any{"op": "answer", "session": s.ID, "input": text})

	pending := session.AppendUserTurn(s, text)
	pending.State = session.StateAwaitingModelReply

	raw, err := e.invoke(ctx, pending.ModelMessages())
	if cErr := ctx.Err(); cErr != nil {
		callbacks.OnError(ctx, cErr)
		return nil, cErr
	}
	if err != nil {
		return e.fallback(ctx, pending, session.StateAwaitingUserAnswer, err), nil
	}

	next, reply, pErr := session.ApplyAssistantTurn(pending, raw)
	resp := e.respond(s, next, raw, reply)
	if pErr != nil {
		slog.Warn("model reply rejected", "session", s.ID, "kind", errorKind(pErr), "err", pErr)
		resp.Err = pErr
		resp.Metadata["error"] = pErr.Error()
		callbacks.OnError(ctx, pErr)
		return resp, nil
	}
	slog.Debug("turn applied", "session", s.ID, "state", next.State, "missing", len(next.Schema.Missing()))
	callbacks.OnEnd(ctx, map[string]any{"state": string(resp.State), "complete": next.Complete})
	return resp, nil
}

func (e *Engine) invoke(ctx context.Context, msgs []*schema.Message) (string, error) {
	name := e.model
	if document.HasImages(msgs) {
		name = e.visionModel
	}
	opts := []model.Option{
		model.WithMaxTokens(e.maxTokens),
		model.WithTemperature(e.temperature),
	}
	if name != "" {
		opts = append(opts, model.WithModel(name))
	}
	slog.Debug("invoking model", "model", name, "messages", len(msgs))
	resp, err := e.chatModel.Generate(ctx, msgs, opts...)
	if err := classify(resp, err); err != nil {
		return "", err
	}
	return resp.Content, nil
}

// fallback appends the apology to s and keeps every field value as it was.
func (e *Engine) fallback(ctx context.Context, s *session.Session, state session.State, err error) *Response {
	kind := errorKind(err)
	if errors.Is(err, ErrModelRefused) {
		slog.Warn("model refused request", "session", s.ID, "kind", kind, "err", err)
	} else {
		slog.Error("model call failed", "session", s.ID, "kind", kind, "err", err)
	}
	callbacks.OnError(ctx, err)
	next := session.AppendFallback(s, e.apology)
	next.State = state
	return &Response{
		Message: e.apology,
		Session: next,
		State:   next.State,
		Err:     err,
		Metadata: map[string]string{
			"error":      err.Error(),
			"error_kind": kind,
		},
	}
}

func (e *Engine) respond(prev, next *session.Session, raw string, reply *types.Reply) *Response {
	msg := strings.TrimSpace(raw)
	if reply != nil && reply.Message != "" {
		msg = reply.Message
	}
	return &Response{
		Message:  msg,
		Session:  next,
		State:    next.State,
		Delta:    valuesDelta(prev.Schema, next.Schema),
		Metadata: map[string]string{},
	}
}

// valuesDelta is a JSON merge patch from the old answers to the new ones, nil when
// nothing changed.
func valuesDelta(before, after types.FormSchema) json.RawMessage {
	a, err := sonic.Marshal(before.Values())
	if err != nil {
		return nil
	}
	b, err := sonic.Marshal(after.Values())
	if err != nil {
		return nil
	}
	patch, err := jsonpatch.CreateMergePatch(a, b)
	if err != nil {
		slog.Debug("create merge patch failed", "err", err)
		return nil
	}
	if string(patch) == "{}" {
		return nil
	}
	return patch
}
