package structured

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbxark/formchat/mock"
)

type answer struct {
	Value int `json:"value" jsonschema:"required"`
}

func prompt(ctx context.Context, q string) ([]*schema.Message, error) {
	return []*schema.Message{schema.UserMessage(q)}, nil
}

func scripted(msgs ...*schema.Message) *mock.ChatModel {
	var next int
	return &mock.ChatModel{GenerateFn: func(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
		if next >= len(msgs) {
			return nil, errors.New("out of replies")
		}
		msg := msgs[next]
		next++
		return msg, nil
	}}
}

func toolCall(id, args string) *schema.Message {
	return &schema.Message{
		Role:      schema.Assistant,
		ToolCalls: []schema.ToolCall{{ID: id, Function: schema.FunctionCall{Name: "answer", Arguments: args}}},
	}
}

func TestInvokeDecodesToolArguments(t *testing.T) {
	cm := scripted(toolCall("c1", `{"value":42}`))
	chain, err := NewChain[string, answer](cm, prompt, "answer", "the answer")
	require.NoError(t, err)

	out, err := chain.Invoke(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, 42, out.Value)
	require.Len(t, cm.Tools(), 1)
	assert.Equal(t, "answer", cm.Tools()[0].Name)
}

func TestInvokeSingleAttemptByDefault(t *testing.T) {
	cm := scripted(schema.AssistantMessage("forty-two", nil))
	chain, err := NewChain[string, answer](cm, prompt, "answer", "the answer")
	require.NoError(t, err)

	_, err = chain.Invoke(context.Background(), "q")
	assert.ErrorIs(t, err, ErrNoToolCall)
	assert.Len(t, cm.Calls(), 1)
}

func TestInvokeRetriesRejectedOutput(t *testing.T) {
	cm := scripted(
		schema.AssistantMessage("forty-two", nil),
		toolCall("c2", `{"value":"x"}`),
		toolCall("c3", `{"value":-1}`),
		toolCall("c4", `{"value":7}`),
	)
	chain, err := NewChain[string, answer](cm, prompt, "answer", "the answer")
	require.NoError(t, err)
	chain.MaxAttempts = 4
	chain.Validate = func(a *answer) error {
		if a.Value < 0 {
			return errors.New("value must not be negative")
		}
		return nil
	}

	out, err := chain.Invoke(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, 7, out.Value)

	calls := cm.Calls()
	require.Len(t, calls, 4)
	last := calls[3].Messages
	require.Len(t, last, 7)
	assert.Equal(t, schema.User, last[2].Role)
	assert.Equal(t, schema.Tool, last[4].Role)
	assert.Equal(t, "c2", last[4].ToolCallID)
	assert.Equal(t, "c3", last[6].ToolCallID)
	assert.Contains(t, last[6].Content, "value must not be negative")
}

func TestInvokeReturnsLastRejection(t *testing.T) {
	rejected := errors.New("rejected")
	cm := scripted(toolCall("c1", `{"value":1}`), toolCall("c2", `{"value":2}`))
	chain, err := NewChain[string, answer](cm, prompt, "answer", "the answer")
	require.NoError(t, err)
	chain.MaxAttempts = 2
	chain.Validate = func(*answer) error { return rejected }

	_, err = chain.Invoke(context.Background(), "q")
	assert.ErrorIs(t, err, rejected)
}
