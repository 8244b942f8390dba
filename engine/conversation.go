package engine

import (
	"context"
	"sync"

	"github.com/tbxark/formchat/session"
	"golang.org/x/sync/semaphore"
)

// Conversation serializes the turns of a single session. Submit queues behind a pending
// turn in submission order; TrySubmit rejects instead. Once closed, replies that arrive
// for pending turns are dropped.
type Conversation struct {
	engine *Engine
	turns  *semaphore.Weighted

	mu     sync.RWMutex
	sess   *session.Session
	state  session.State
	closed bool
}

func (e *Engine) NewConversation(s *session.Session) *Conversation {
	return &Conversation{
		engine: e,
		turns:  semaphore.NewWeighted(1),
		sess:   s,
		state:  s.State,
	}
}

// Session returns the latest committed session.
func (c *Conversation) Session() *session.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess
}

// State includes StateAwaitingModelReply while a turn is in flight.
func (c *Conversation) State() session.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Close discards the conversation.
func (c *Conversation) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Conversation) Start(ctx context.Context) (*Response, error) {
	if err := c.turns.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.turns.Release(1)
	return c.run(ctx, func(s *session.Session) (*Response, error) {
		return c.engine.Start(ctx, s)
	})
}

// Submit waits for any pending turn, then answers.
func (c *Conversation) Submit(ctx context.Context, text string) (*Response, error) {
	if err := c.turns.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.turns.Release(1)
	return c.submit(ctx, text)
}

// TrySubmit answers only when no other turn is pending.
func (c *Conversation) TrySubmit(ctx context.Context, text string) (*Response, error) {
	if !c.turns.TryAcquire(1) {
		return nil, ErrTurnInProgress
	}
	defer c.turns.Release(1)
	return c.submit(ctx, text)
}

func (c *Conversation) submit(ctx context.Context, text string) (*Response, error) {
	return c.run(ctx, func(s *session.Session) (*Response, error) {
		return c.engine.SubmitAnswer(ctx, s, text)
	})
}

func (c *Conversation) run(ctx context.Context, fn func(*session.Session) (*Response, error)) (*Response, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConversationClosed
	}
	current := c.sess
	if current.State == session.StateAwaitingUserAnswer {
		c.state = session.StateAwaitingModelReply
	}
	c.mu.Unlock()

	resp, err := fn(current)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrConversationClosed
	}
	if err != nil {
		c.state = current.State
		return nil, err
	}
	c.sess = resp.Session
	c.state = resp.State
	return resp, nil
}
