package engine

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/formchat/session"
)

var _ adk.Agent = (*Agent)(nil)

// Agent exposes a Conversation as an eino adk agent. The first run asks the first
// question; every later run answers with the content of the last input message.
// The engine Response travels in AgentOutput.CustomizedOutput.
type Agent struct {
	name         string
	description  string
	conversation *Conversation
}

func NewAgent(name, description string, conversation *Conversation) *Agent {
	return &Agent{
		name:         name,
		description:  description,
		conversation: conversation,
	}
}

func (a *Agent) Name(ctx context.Context) string {
	return a.name
}

func (a *Agent) Description(ctx context.Context) string {
	return a.description
}

func (a *Agent) Run(ctx context.Context, input *adk.AgentInput, options ...adk.AgentRunOption) *adk.AsyncIterator[*adk.AgentEvent] {
	iter, gen := adk.NewAsyncIteratorPair[*adk.AgentEvent]()
	go func() {
		defer func() {
			e := recover()
			if e != nil {
				gen.Send(&adk.AgentEvent{
					Err: fmt.Errorf("recover from panic: %v", e),
				})
			}
			gen.Close()
		}()
		var (
			resp *Response
			err  error
		)
		if a.conversation.State() == session.StateAwaitingFirstQuestion {
			resp, err = a.conversation.Start(ctx)
		} else {
			if input == nil || len(input.Messages) == 0 {
				gen.Send(&adk.AgentEvent{
					Err: fmt.Errorf("no messages in input"),
				})
				return
			}
			resp, err = a.conversation.Submit(ctx, input.Messages[len(input.Messages)-1].Content)
		}
		if err != nil {
			gen.Send(&adk.AgentEvent{
				Err: fmt.Errorf("conversation turn failed: %w", err),
			})
			return
		}
		gen.Send(&adk.AgentEvent{
			Output: &adk.AgentOutput{
				MessageOutput: &adk.MessageVariant{
					IsStreaming: false,
					Message: &schema.Message{
						Role:    schema.Assistant,
						Content: resp.Message,
					},
					Role: schema.Assistant,
				},
				CustomizedOutput: resp,
			},
		})
	}()
	return iter
}
