package session

import (
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/tbxark/formchat/document"
	"github.com/tbxark/formchat/prompt"
	"github.com/tbxark/formchat/types"
)

type State string

const (
	StateAwaitingFirstQuestion State = "awaiting_first_question"
	StateAwaitingUserAnswer    State = "awaiting_user_answer"
	StateAwaitingModelReply    State = "awaiting_model_reply"
	StateComplete              State = "complete"
)

const DefaultTitle = "New Chat"

// FallbackKey marks assistant messages that were produced locally instead of by the
// model. They stay in the transcript but are never sent back to the model.
const FallbackKey = "formchat_fallback"

// Session is one form-filling conversation. Values are treated as immutable: every
// operation returns a new Session and leaves its input untouched.
type Session struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	DocumentID string            `json:"document_id,omitempty"`
	Language   string            `json:"language,omitempty"`
	Schema     types.FormSchema  `json:"schema"`
	Transcript []*schema.Message `json:"transcript"`
	Complete   bool              `json:"complete"`
	State      State             `json:"state"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

type createOptions struct {
	id       string
	language string
	builder  *prompt.Builder
	now      func() time.Time
}

type CreateOption func(*createOptions)

// WithID fixes the session identifier instead of generating one.
func WithID(id string) CreateOption {
	return func(o *createOptions) {
		o.id = id
	}
}

// WithLanguage sets the conversation language passed to the prompt builder.
func WithLanguage(lang string) CreateOption {
	return func(o *createOptions) {
		o.language = lang
	}
}

// WithPromptBuilder replaces the default prompt builder.
func WithPromptBuilder(b *prompt.Builder) CreateOption {
	return func(o *createOptions) {
		o.builder = b
	}
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) CreateOption {
	return func(o *createOptions) {
		o.now = now
	}
}

// Create starts a session whose transcript holds the system prompt and, when doc has
// images, the document-bearing user message.
func Create(form types.FormSchema, doc *document.Document, opts ...CreateOption) (*Session, error) {
	form, err := types.NewFormSchema(form.Name, form.Fields)
	if err != nil {
		return nil, err
	}
	o := createOptions{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.builder == nil {
		o.builder = prompt.NewBuilder()
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}

	transcript := []*schema.Message{
		schema.SystemMessage(o.builder.BuildSystemPrompt(form, o.language)),
	}
	title := DefaultTitle
	var documentID string
	if doc != nil {
		if doc.Name != "" {
			title = doc.Name
		}
		documentID = doc.ID
		if msg := document.AttachDocument(nil, doc.Name, doc.Images); msg != nil {
			transcript = append(transcript, msg)
		}
	}
	now := o.now()
	return &Session{
		ID:         o.id,
		Title:      title,
		DocumentID: documentID,
		Language:   o.language,
		Schema:     form,
		Transcript: transcript,
		Complete:   false,
		State:      StateAwaitingFirstQuestion,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// AppendUserTurn returns a copy of s with one more user message. It never calls the model.
func AppendUserTurn(s *Session, text string) *Session {
	next := s.clone()
	next.Transcript = append(next.Transcript, schema.UserMessage(text))
	next.UpdatedAt = time.Now()
	return next
}

// ApplyAssistantTurn records the raw reply and folds its parsed values into the form.
// When the reply cannot be parsed the prior values are kept, Complete is false and the
// returned error wraps ErrParse; the session is still returned and remains usable.
func ApplyAssistantTurn(s *Session, rawReply string) (*Session, *types.Reply, error) {
	next := s.clone()
	next.Transcript = append(next.Transcript, schema.AssistantMessage(rawReply, nil))
	next.UpdatedAt = time.Now()

	reply, err := ParseReply(rawReply, s.Schema)
	if err != nil {
		next.Complete = false
		next.State = StateAwaitingUserAnswer
		return next, nil, err
	}
	next.Schema = Merge(s.Schema, reply)
	next.Complete = reply.Complete && next.Schema.Filled()
	if next.Complete {
		next.State = StateComplete
	} else {
		next.State = StateAwaitingUserAnswer
	}
	return next, reply, nil
}

// AppendFallback records a locally generated assistant message that the model never sees.
func AppendFallback(s *Session, text string) *Session {
	next := s.clone()
	msg := schema.AssistantMessage(text, nil)
	msg.Extra = map[string]any{FallbackKey: true}
	next.Transcript = append(next.Transcript, msg)
	next.UpdatedAt = time.Now()
	return next
}

// ModelMessages is the transcript as sent to the model.
func (s *Session) ModelMessages() []*schema.Message {
	out := make([]*schema.Message, 0, len(s.Transcript))
	for _, m := range s.Transcript {
		if m == nil || IsFallback(m) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func IsFallback(m *schema.Message) bool {
	if m == nil || m.Extra == nil {
		return false
	}
	v, ok := m.Extra[FallbackKey].(bool)
	return ok && v
}

// LastAssistantText returns the content of the latest assistant message.
func (s *Session) LastAssistantText() string {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if m := s.Transcript[i]; m != nil && m.Role == schema.Assistant {
			return m.Content
		}
	}
	return ""
}

func (s *Session) clone() *Session {
	if s == nil {
		panic("session: nil session")
	}
	next := *s
	next.Schema = s.Schema.Clone()
	next.Transcript = append(make([]*schema.Message, 0, len(s.Transcript)+1), s.Transcript...)
	return &next
}
