// Package mock provides test doubles for the eino chat model interfaces using function fields.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Interface compliance checks.
var (
	_ model.BaseChatModel        = (*ChatModel)(nil)
	_ model.ToolCallingChatModel = (*ChatModel)(nil)
)

// Call is one recorded Generate invocation.
type Call struct {
	Messages []*schema.Message
	Options  *model.Options
}

// ChatModel is a test double for model.ToolCallingChatModel.
// Set GenerateFn before calling Generate or Stream.
type ChatModel struct {
	GenerateFn func(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)

	mu    sync.Mutex
	calls []Call
	tools []*schema.ToolInfo
}

// Generate records the call and delegates to GenerateFn.
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{
		Messages: append([]*schema.Message(nil), input...),
		Options:  model.GetCommonOptions(nil, opts...),
	})
	m.mu.Unlock()
	return m.GenerateFn(ctx, input, opts...)
}

// Stream wraps the Generate result in a single-chunk stream.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// WithTools records the tools and returns the same double.
func (m *ChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	m.mu.Lock()
	m.tools = tools
	m.mu.Unlock()
	return m, nil
}

// Tools returns the tools bound by the last WithTools call.
func (m *ChatModel) Tools() []*schema.ToolInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*schema.ToolInfo(nil), m.tools...)
}

// Calls returns the recorded invocations.
func (m *ChatModel) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Replies returns a ChatModel that answers with the given texts in order and fails
// once they run out.
func Replies(texts ...string) *ChatModel {
	var (
		mu   sync.Mutex
		next int
	)
	return &ChatModel{
		GenerateFn: func(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
			mu.Lock()
			defer mu.Unlock()
			if next >= len(texts) {
				return nil, fmt.Errorf("mock: no reply scripted for call %d", next+1)
			}
			text := texts[next]
			next++
			return schema.AssistantMessage(text, nil), nil
		},
	}
}
