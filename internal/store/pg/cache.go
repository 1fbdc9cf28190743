package pg

import (
	"context"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// leadCacheSize bounds the outbound-lead LRU: every dispatch resolves one
// lead by ID (scheduler.go step k); completion (reconcile.go) drops the
// entry through MarkMessaged rather than reading it again.
const leadCacheSize = 4096

// CachedStore wraps a *Store with an in-process LRU over GetOutboundLead,
// invalidated on MarkMessaged. Safe for concurrent use; the underlying
// lru.Cache is internally locked.
type CachedStore struct {
	*Store
	leads *lru.Cache[uuid.UUID, store.OutboundLead]
}

func NewCachedStore(s *Store) (*CachedStore, error) {
	c, err := lru.New[uuid.UUID, store.OutboundLead](leadCacheSize)
	if err != nil {
		return nil, err
	}
	return &CachedStore{Store: s, leads: c}, nil
}

func (c *CachedStore) GetOutboundLead(ctx context.Context, id uuid.UUID) (*store.OutboundLead, error) {
	if l, ok := c.leads.Get(id); ok {
		cp := l
		return &cp, nil
	}
	l, err := c.Store.GetOutboundLead(ctx, id)
	if err != nil {
		return nil, err
	}
	c.leads.Add(id, *l)
	return l, nil
}

func (c *CachedStore) MarkMessaged(ctx context.Context, id uuid.UUID, at time.Time, message, threadID string) error {
	c.leads.Remove(id)
	return c.Store.MarkMessaged(ctx, id, at, message, threadID)
}
