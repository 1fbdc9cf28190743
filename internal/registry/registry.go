// Package registry tracks which senders currently hold a live agent
// connection and how to reach them. It is process-local: each scheduler
// instance only knows about the agents connected to it (spec.md §4.1,
// SPEC_FULL §4.13 — the teacher's gorilla/websocket gateway owns the
// wire, this package owns the address book on top of it).
package registry

import (
	"sync"

	"github.com/google/uuid"
)

// Pusher delivers a framed payload to one connected sender. It is
// satisfied by the gateway's websocket Client (internal/gateway).
type Pusher interface {
	Push(payload []byte) error
}

// Registry maps sender IDs to their live connection and tracks which
// sender IDs each account currently has online, so the
// Scheduler Tick can answer "how many senders are online for this
// campaign" without a store round trip.
type Registry struct {
	mu        sync.RWMutex
	senders   map[uuid.UUID]Pusher
	byAccount map[uuid.UUID]map[uuid.UUID]bool // accountID -> set of online senderIDs

	// channels holds the non-browser_dm RecipientPushers (Discord,
	// Telegram), keyed by OutboundAccountID rather than sender ID: those
	// channels have no live websocket connection to track, just a
	// standing bot session good for the account's lifetime.
	channels map[uuid.UUID]Pusher
}

func New() *Registry {
	return &Registry{
		senders:   make(map[uuid.UUID]Pusher),
		byAccount: make(map[uuid.UUID]map[uuid.UUID]bool),
		channels:  make(map[uuid.UUID]Pusher),
	}
}

// RegisterChannel binds a supplemental-channel Pusher (e.g. a Discord or
// Telegram RecipientPusher) to the outbound account it delivers for.
func (r *Registry) RegisterChannel(outboundAccountID uuid.UUID, p Pusher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[outboundAccountID] = p
}

// PushToOutboundAccount delivers payload via the channel Pusher bound to
// outboundAccountID, returning false if none is registered.
func (r *Registry) PushToOutboundAccount(outboundAccountID uuid.UUID, payload []byte) (bool, error) {
	r.mu.RLock()
	p, ok := r.channels[outboundAccountID]
	r.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, p.Push(payload)
}

// Register records senderID as online and reachable via p.
func (r *Registry) Register(accountID, senderID uuid.UUID, p Pusher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[senderID] = p
	set, ok := r.byAccount[accountID]
	if !ok {
		set = make(map[uuid.UUID]bool)
		r.byAccount[accountID] = set
	}
	set[senderID] = true
}

// Forget removes senderID, e.g. on socket close or explicit offline.
func (r *Registry) Forget(accountID, senderID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.senders, senderID)
	if set, ok := r.byAccount[accountID]; ok {
		delete(set, senderID)
		if len(set) == 0 {
			delete(r.byAccount, accountID)
		}
	}
}

// IsOnline reports whether senderID currently has a live connection on
// this instance.
func (r *Registry) IsOnline(senderID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.senders[senderID]
	return ok
}

// OnlineCount returns how many of the given sender IDs are currently
// connected on this instance (spec.md §4.2's online_sender_count input).
func (r *Registry) OnlineCount(senderIDs []uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, id := range senderIDs {
		if _, ok := r.senders[id]; ok {
			n++
		}
	}
	return n
}

// PushToSender delivers payload to senderID if it is online, returning
// false if no local connection exists.
func (r *Registry) PushToSender(senderID uuid.UUID, payload []byte) (bool, error) {
	r.mu.RLock()
	p, ok := r.senders[senderID]
	r.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, p.Push(payload)
}

// PushToAccount broadcasts payload to every sender online for accountID,
// used for account-wide notices (e.g. sender-restricted).
func (r *Registry) PushToAccount(accountID uuid.UUID, payload []byte) error {
	r.mu.RLock()
	ids := make([]uuid.UUID, 0, len(r.byAccount[accountID]))
	for id := range r.byAccount[accountID] {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	var firstErr error
	for _, id := range ids {
		if _, err := r.PushToSender(id, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
