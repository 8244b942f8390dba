// Package structured turns a forced tool call into typed output.
package structured

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

// ErrNoToolCall is returned when the model answers without calling the tool.
var ErrNoToolCall = errors.New("no tool call in model response")

type PromptBuilder[TInput any] func(ctx context.Context, input TInput) ([]*schema.Message, error)

// Chain forces the model to call a single tool whose arguments decode into TOutput.
// When Validate rejects the decoded value the error is sent back to the model as the
// tool result and the call is repeated, up to MaxAttempts times in total.
type Chain[TInput, TOutput any] struct {
	PromptBuilder PromptBuilder[TInput]
	ChatModel     model.ToolCallingChatModel
	ToolInfo      *schema.ToolInfo
	Validate      func(*TOutput) error
	MaxAttempts   int
}

// NewChain derives the tool definition from TOutput and binds it to chatModel.
func NewChain[TInput, TOutput any](
	chatModel model.ToolCallingChatModel,
	promptBuilder PromptBuilder[TInput],
	toolName string,
	toolDesc string,
) (*Chain[TInput, TOutput], error) {
	toolInfo, err := utils.GoStruct2ToolInfo[TOutput](toolName, toolDesc)
	if err != nil {
		return nil, fmt.Errorf("convert tool info failed: %w", err)
	}
	bound, err := chatModel.WithTools([]*schema.ToolInfo{toolInfo})
	if err != nil {
		return nil, fmt.Errorf("bind tool failed: %w", err)
	}
	return &Chain[TInput, TOutput]{
		PromptBuilder: promptBuilder,
		ChatModel:     bound,
		ToolInfo:      toolInfo,
		MaxAttempts:   1,
	}, nil
}

func (s *Chain[TInput, TOutput]) Invoke(ctx context.Context, input TInput, opts ...model.Option) (*TOutput, error) {
	messages, err := s.PromptBuilder(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("build prompt failed: %w", err)
	}
	opts = append([]model.Option{
		model.WithToolChoice(schema.ToolChoiceForced, s.ToolInfo.Name),
	}, opts...)

	attempts := max(s.MaxAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		response, err := s.ChatModel.Generate(ctx, messages, opts...)
		if err != nil {
			return nil, fmt.Errorf("call model failed: %w", err)
		}
		result, feedback, err := s.decode(response)
		if err == nil {
			slog.Debug("structured output decoded", "tool", s.ToolInfo.Name, "attempt", attempt)
			return result, nil
		}
		lastErr = err
		slog.Debug("structured output rejected", "tool", s.ToolInfo.Name, "attempt", attempt, "error", err)
		messages = append(messages, response, feedback)
	}
	return nil, lastErr
}

// decode returns the typed result, or the error together with the message that
// reports it back to the model.
func (s *Chain[TInput, TOutput]) decode(response *schema.Message) (*TOutput, *schema.Message, error) {
	if len(response.ToolCalls) == 0 {
		err := fmt.Errorf("%w: %s", ErrNoToolCall, response.Content)
		return nil, schema.UserMessage(fmt.Sprintf("Call the '%s' tool with the result.", s.ToolInfo.Name)), err
	}
	call := response.ToolCalls[0]
	var result TOutput
	if err := sonic.UnmarshalString(call.Function.Arguments, &result); err != nil {
		err = fmt.Errorf("parse ToolCall arguments failed: %w", err)
		return nil, schema.ToolMessage(err.Error(), call.ID), err
	}
	if s.Validate != nil {
		if err := s.Validate(&result); err != nil {
			return nil, schema.ToolMessage("Rejected: "+err.Error()+". Call the tool again with a corrected result.", call.ID), err
		}
	}
	return &result, nil, nil
}
