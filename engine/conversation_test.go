package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbxark/formchat/engine"
	"github.com/tbxark/formchat/mock"
	"github.com/tbxark/formchat/session"
)

// gatedModel replays replies, blocking each call until release receives a value.
func gatedModel(started chan<- struct{}, release <-chan struct{}, replies ...string) *mock.ChatModel {
	script := mock.Replies(replies...)
	return &mock.ChatModel{GenerateFn: func(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
		started <- struct{}{}
		<-release
		return script.Generate(ctx, input, opts...)
	}}
}

func TestConversationQueuesInSubmissionOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	started := make(chan struct{}, 4)
	release := make(chan struct{}, 4)
	e := engine.New(gatedModel(started, release, firstQuestion, replyName, replyAge))
	conv := e.NewConversation(newSession(t, e))

	release <- struct{}{}
	_, err := conv.Start(ctx)
	<-started
	require.NoError(t, err)

	first := make(chan error, 1)
	go func() {
		_, err := conv.Submit(ctx, "Jane Doe")
		first <- err
	}()
	<-started
	assert.Equal(t, session.StateAwaitingModelReply, conv.State())

	_, err = conv.TrySubmit(ctx, "29")
	assert.True(t, errors.Is(err, engine.ErrTurnInProgress))

	second := make(chan error, 1)
	go func() {
		_, err := conv.Submit(ctx, "29")
		second <- err
	}()

	release <- struct{}{}
	require.NoError(t, <-first)
	<-started
	release <- struct{}{}
	require.NoError(t, <-second)

	s := conv.Session()
	assert.True(t, s.Complete)
	assert.Equal(t, session.StateComplete, conv.State())
	var answers []string
	for _, m := range s.Transcript {
		if m.Role == schema.User {
			answers = append(answers, m.Content)
		}
	}
	assert.Equal(t, []string{"Jane Doe", "29"}, answers)
}

func TestConversationCloseDropsLateReply(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	started := make(chan struct{}, 2)
	release := make(chan struct{}, 2)
	e := engine.New(gatedModel(started, release, firstQuestion, replyName))
	conv := e.NewConversation(newSession(t, e))

	release <- struct{}{}
	_, err := conv.Start(ctx)
	<-started
	require.NoError(t, err)
	before := conv.Session()

	done := make(chan error, 1)
	go func() {
		_, err := conv.Submit(ctx, "Jane Doe")
		done <- err
	}()
	<-started
	conv.Close()
	release <- struct{}{}

	assert.True(t, errors.Is(<-done, engine.ErrConversationClosed))
	assert.Same(t, before, conv.Session())
	_, err = conv.Submit(ctx, "again")
	assert.True(t, errors.Is(err, engine.ErrConversationClosed))
}

func TestConversationSubmitHonorsContext(t *testing.T) {
	t.Parallel()
	started := make(chan struct{}, 2)
	release := make(chan struct{}, 2)
	e := engine.New(gatedModel(started, release, firstQuestion, replyName))
	conv := e.NewConversation(newSession(t, e))

	release <- struct{}{}
	_, err := conv.Start(context.Background())
	<-started
	require.NoError(t, err)

	go func() { _, _ = conv.Submit(context.Background(), "Jane Doe") }()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = conv.Submit(ctx, "queued")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	release <- struct{}{}
}

func TestAgentRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := engine.New(mock.Replies(firstQuestion, replyName))
	agent := engine.NewAgent("IntakeFiller", "fills intake forms", e.NewConversation(newSession(t, e)))
	assert.Equal(t, "IntakeFiller", agent.Name(ctx))

	next := func(input *adk.AgentInput) *adk.AgentEvent {
		iter := agent.Run(ctx, input)
		event, ok := iter.Next()
		require.True(t, ok)
		_, more := iter.Next()
		assert.False(t, more)
		return event
	}

	event := next(&adk.AgentInput{})
	require.NoError(t, event.Err)
	assert.Equal(t, firstQuestion, event.Output.MessageOutput.Message.Content)

	event = next(&adk.AgentInput{Messages: []adk.Message{schema.UserMessage("Jane Doe")}})
	require.NoError(t, event.Err)
	resp, ok := event.Output.CustomizedOutput.(*engine.Response)
	require.True(t, ok)
	assert.Equal(t, "Jane Doe", resp.Session.Schema.Fields[0].Value)

	event = next(&adk.AgentInput{})
	assert.Error(t, event.Err)
}
