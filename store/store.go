package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/tbxark/formchat/session"
)

var ErrNotFound = errors.New("session not found")

// SessionStore keeps the sessions a caller is working on. It lives outside the engine:
// deleting a session here is how a caller discards a conversation.
type SessionStore interface {
	Save(ctx context.Context, s *session.Session) error
	Load(ctx context.Context, id string) (*session.Session, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*session.Session, error)
}

const sessionNamespace = "formchat:session:"

// CacheStore stores sessions as JSON snapshots in a Cache under a namespace.
// Every Load decodes a fresh copy.
type CacheStore struct {
	core Cache
}

func NewCacheStore(core Cache) *CacheStore {
	return &CacheStore{core: core}
}

// NewMemoryStore returns a CacheStore over a process-local cache.
func NewMemoryStore() *CacheStore {
	return NewCacheStore(NewMemoryCache())
}

func (c *CacheStore) key(id string) string {
	return sessionNamespace + id
}

func (c *CacheStore) Save(ctx context.Context, s *session.Session) error {
	if s == nil || s.ID == "" {
		return errors.New("session without id")
	}
	data, err := sonic.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return c.core.Set(ctx, c.key(s.ID), data)
}

func (c *CacheStore) Load(ctx context.Context, id string) (*session.Session, error) {
	data, ok, err := c.core.Get(ctx, c.key(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return decodeSession(string(data))
}

func (c *CacheStore) Delete(ctx context.Context, id string) error {
	return c.core.Del(ctx, c.key(id))
}

func (c *CacheStore) List(ctx context.Context) ([]*session.Session, error) {
	keys, err := c.core.Keys(ctx, sessionNamespace)
	if err != nil {
		return nil, err
	}
	out := make([]*session.Session, 0, len(keys))
	for _, k := range keys {
		data, ok, err := c.core.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		s, err := decodeSession(string(data))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sortByUpdate(out)
	return out, nil
}

func sortByUpdate(list []*session.Session) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].UpdatedAt.Equal(list[j].UpdatedAt) {
			return list[i].UpdatedAt.After(list[j].UpdatedAt)
		}
		return strings.Compare(list[i].ID, list[j].ID) < 0
	})
}

var _ SessionStore = (*CacheStore)(nil)
