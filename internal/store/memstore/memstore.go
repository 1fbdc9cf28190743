// Package memstore is an in-memory store.Store used by the scheduler,
// lease, and reconciliation test suites. It is not a production
// implementation — see internal/store/pg for that — but every mutation
// goes through the same single mutex a real conditional-update-based store
// would serialize on, so it exercises the same concurrency contracts.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.Mutex

	campaigns        map[uuid.UUID]*store.Campaign
	campaignLeads    map[uuid.UUID]*store.CampaignLead
	outboundAccounts map[uuid.UUID]*store.OutboundAccount
	senders          map[uuid.UUID]*store.Sender
	outboundLeads    map[uuid.UUID]*store.OutboundLead
	tasks            map[uuid.UUID]*store.Task
}

func New() *Store {
	return &Store{
		campaigns:        make(map[uuid.UUID]*store.Campaign),
		campaignLeads:    make(map[uuid.UUID]*store.CampaignLead),
		outboundAccounts: make(map[uuid.UUID]*store.OutboundAccount),
		senders:          make(map[uuid.UUID]*store.Sender),
		outboundLeads:    make(map[uuid.UUID]*store.OutboundLead),
		tasks:            make(map[uuid.UUID]*store.Task),
	}
}

// --- seeding helpers (tests only) ---

func (s *Store) PutCampaign(c *store.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.campaigns[c.ID] = &cp
}

func (s *Store) PutCampaignLead(l *store.CampaignLead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.campaignLeads[l.ID] = &cp
}

func (s *Store) PutOutboundAccount(a *store.OutboundAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.outboundAccounts[a.ID] = &cp
}

func (s *Store) PutSender(sn *store.Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sn
	s.senders[sn.ID] = &cp
}

func (s *Store) PutOutboundLead(l *store.OutboundLead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.outboundLeads[l.ID] = &cp
}

func (s *Store) PutTask(t *store.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tasks[t.ID] = &cp
}

// ListCampaignLeadsByCampaign is a test-only helper; production code
// reaches leads through the Lease Manager's atomic operations instead.
func (s *Store) ListCampaignLeadsByCampaign(campaignID uuid.UUID) []store.CampaignLead {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.CampaignLead
	for _, l := range s.campaignLeads {
		if l.CampaignID == campaignID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// --- CampaignStore ---

func (s *Store) GetCampaign(_ context.Context, id uuid.UUID) (*store.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListActiveAutoCampaigns(ctx context.Context) ([]store.Campaign, error) {
	return s.ListActiveCampaignsByMode(ctx, store.CampaignModeAuto)
}

func (s *Store) ListActiveCampaignsByMode(_ context.Context, mode store.CampaignMode) ([]store.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Campaign
	for _, c := range s.campaigns {
		if c.Status == store.CampaignActive && c.Mode == mode {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *Store) CreateCampaign(_ context.Context, c *store.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	cp := *c
	s.campaigns[c.ID] = &cp
	return nil
}

func (s *Store) CommitDispatch(_ context.Context, campaignID uuid.UUID, prevUpdatedAt time.Time, fn func(c *store.Campaign)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return store.ErrNotFound
	}
	if !prevUpdatedAt.IsZero() && !c.UpdatedAt.Equal(prevUpdatedAt) {
		return store.ErrConflict
	}
	fn(c)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) AdjustStats(_ context.Context, campaignID uuid.UUID, d store.CampaignStatsDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return store.ErrNotFound
	}
	c.Stats.Pending += d.Pending
	c.Stats.Queued += d.Queued
	c.Stats.Sent += d.Sent
	c.Stats.Delivered += d.Delivered
	c.Stats.Replied += d.Replied
	c.Stats.Failed += d.Failed
	c.Stats.Skipped += d.Skipped
	return nil
}

func (s *Store) SetStatus(_ context.Context, campaignID uuid.UUID, status store.CampaignStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return store.ErrNotFound
	}
	c.Status = status
	return nil
}

func (s *Store) ClearBurstGroup(_ context.Context, campaignID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return store.ErrNotFound
	}
	c.Burst.SentInGroup = 0
	c.Burst.BreakUntil = nil
	return nil
}

func (s *Store) SetBurstBreak(_ context.Context, campaignID uuid.UUID, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return store.ErrNotFound
	}
	u := until
	c.Burst.BreakUntil = &u
	c.Burst.SentInGroup = 0
	return nil
}

func (s *Store) ClearBurstBreak(_ context.Context, campaignID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return store.ErrNotFound
	}
	c.Burst.BreakUntil = nil
	return nil
}

func (s *Store) CountSentToday(_ context.Context, campaignID uuid.UUID, localDayStart time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.campaignLeads {
		if l.CampaignID != campaignID {
			continue
		}
		if l.Status != store.LeadSent && l.Status != store.LeadQueued {
			continue
		}
		if l.UpdatedAt.Before(localDayStart) {
			continue
		}
		n++
	}
	return n, nil
}

// --- CampaignLeadStore ---

func (s *Store) GetLead(_ context.Context, id uuid.UUID) (*store.CampaignLead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.campaignLeads[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *Store) AcquireOldestPending(_ context.Context, campaignID, senderID uuid.UUID, now time.Time) (*store.CampaignLead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*store.CampaignLead
	for _, l := range s.campaignLeads {
		if l.CampaignID == campaignID && l.Status == store.LeadPending {
			candidates = append(candidates, l)
		}
	}
	if len(candidates) == 0 {
		return nil, store.ErrNoLease
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].ID.String() < candidates[j].ID.String()
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	l := candidates[0]
	l.Status = store.LeadQueued
	sid := senderID
	l.SenderID = &sid
	qt := now
	l.QueuedAt = &qt
	l.UpdatedAt = now
	cp := *l
	return &cp, nil
}

func (s *Store) ReclaimStaleLeases(_ context.Context, campaignID uuid.UUID, deadline time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.campaignLeads {
		if l.CampaignID != campaignID || l.Status != store.LeadQueued {
			continue
		}
		if l.QueuedAt == nil || !l.QueuedAt.Before(deadline) {
			continue
		}
		l.Status = store.LeadPending
		l.SenderID = nil
		l.QueuedAt = nil
		l.TaskID = nil
		l.UpdatedAt = time.Now().UTC()
		n++
	}
	return n, nil
}

func (s *Store) SetTerminal(_ context.Context, leadID uuid.UUID, from, to store.CampaignLeadStatus, fn func(l *store.CampaignLead)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.campaignLeads[leadID]
	if !ok {
		return false, store.ErrNotFound
	}
	if l.Status != from {
		return false, nil
	}
	if fn != nil {
		fn(l)
	}
	l.Status = to
	l.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *Store) AttachTask(_ context.Context, leadID, taskID uuid.UUID, messageUsed string, templateIndex *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.campaignLeads[leadID]
	if !ok {
		return store.ErrNotFound
	}
	tid := taskID
	l.TaskID = &tid
	l.MessageUsed = messageUsed
	l.TemplateIndex = templateIndex
	l.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ResetToPending(_ context.Context, leadID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.campaignLeads[leadID]
	if !ok {
		return store.ErrNotFound
	}
	if l.SenderID != nil {
		l.FailedSenderIDs = append(l.FailedSenderIDs, *l.SenderID)
	}
	l.Status = store.LeadPending
	l.SenderID = nil
	l.QueuedAt = nil
	l.TaskID = nil
	l.LastError = ""
	l.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) PendingOrQueuedCount(_ context.Context, campaignID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.campaignLeads {
		if l.CampaignID == campaignID && (l.Status == store.LeadPending || l.Status == store.LeadQueued) {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountByCampaignAndSenderToday(_ context.Context, campaignID, senderID uuid.UUID, localDayStart time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.campaignLeads {
		if l.CampaignID != campaignID {
			continue
		}
		if l.SenderID == nil || *l.SenderID != senderID {
			continue
		}
		if l.Status != store.LeadSent && l.Status != store.LeadQueued {
			continue
		}
		if l.UpdatedAt.Before(localDayStart) {
			continue
		}
		n++
	}
	return n, nil
}

// --- OutboundAccountStore ---

func (s *Store) GetOutboundAccount(_ context.Context, id uuid.UUID) (*store.OutboundAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.outboundAccounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) ListWarming(_ context.Context) ([]store.OutboundAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.OutboundAccount
	for _, a := range s.outboundAccounts {
		if a.Status == store.OutboundAccountWarming && a.Warmup != nil && a.Warmup.Enabled {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *Store) ListByChannel(_ context.Context, channel store.Channel) ([]store.OutboundAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.OutboundAccount
	for _, a := range s.outboundAccounts {
		if a.Channel == channel {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *Store) CompleteWarmup(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.outboundAccounts[id]
	if !ok {
		return store.ErrNotFound
	}
	a.Status = store.OutboundAccountReady
	if a.Warmup != nil {
		a.Warmup.Enabled = false
	}
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) UpdateStreak(_ context.Context, id uuid.UUID, fn func(a *store.OutboundAccount)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.outboundAccounts[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(a)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) CountSendsTodayAllCampaigns(_ context.Context, outboundAccountID uuid.UUID, localDayStart time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Resolve sender IDs backed by this outbound account.
	senderIDs := map[uuid.UUID]bool{}
	for _, sn := range s.senders {
		if sn.OutboundAccountID == outboundAccountID {
			senderIDs[sn.ID] = true
		}
	}
	n := 0
	for _, l := range s.campaignLeads {
		if l.SenderID == nil || !senderIDs[*l.SenderID] {
			continue
		}
		if l.Status != store.LeadSent && l.Status != store.LeadQueued {
			continue
		}
		if l.UpdatedAt.Before(localDayStart) {
			continue
		}
		n++
	}
	return n, nil
}

// --- SenderStore ---

func (s *Store) GetSender(_ context.Context, id uuid.UUID) (*store.Sender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sn, ok := s.senders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *sn
	return &cp, nil
}

func (s *Store) ListByOutboundAccounts(_ context.Context, ids []uuid.UUID) ([]store.Sender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := map[uuid.UUID]bool{}
	for _, id := range ids {
		set[id] = true
	}
	var out []store.Sender
	for _, sn := range s.senders {
		if set[sn.OutboundAccountID] {
			out = append(out, *sn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *Store) ListStaleOnline(_ context.Context, heartbeatDeadline time.Time) ([]store.Sender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Sender
	for _, sn := range s.senders {
		if sn.Status == store.SenderOnline && sn.LastHeartbeat.Before(heartbeatDeadline) {
			out = append(out, *sn)
		}
	}
	return out, nil
}

func (s *Store) SetOnline(_ context.Context, id uuid.UUID, heartbeat time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sn, ok := s.senders[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	// A reconnect must not clear a restriction that is unexpired at the
	// reconnect's heartbeat time (spec.md §8).
	if sn.RestrictedUntil == nil || !sn.RestrictedUntil.After(heartbeat) {
		sn.Status = store.SenderOnline
	}
	sn.LastHeartbeat = heartbeat
	sn.UpdatedAt = now
	return nil
}

func (s *Store) SetOffline(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sn, ok := s.senders[id]
	if !ok {
		return store.ErrNotFound
	}
	sn.Status = store.SenderOffline
	sn.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) SetRestricted(_ context.Context, id uuid.UUID, until time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sn, ok := s.senders[id]
	if !ok {
		return store.ErrNotFound
	}
	sn.Status = store.SenderRestricted
	u := until
	sn.RestrictedUntil = &u
	sn.RestrictionReason = reason
	sn.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) Heartbeat(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sn, ok := s.senders[id]
	if !ok {
		return store.ErrNotFound
	}
	sn.LastHeartbeat = at
	return nil
}

// --- OutboundLeadStore ---

func (s *Store) GetOutboundLead(_ context.Context, id uuid.UUID) (*store.OutboundLead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.outboundLeads[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *Store) MarkMessaged(_ context.Context, id uuid.UUID, at time.Time, message, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.outboundLeads[id]
	if !ok {
		return store.ErrNotFound
	}
	l.Messaged = true
	t := at
	l.DMDate = &t
	l.LastMessage = message
	l.ThreadID = threadID
	l.UpdatedAt = time.Now().UTC()
	return nil
}

// --- TaskStore ---

func (s *Store) GetTask(_ context.Context, id uuid.UUID) (*store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) CreateTask(_ context.Context, t *store.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *Store) ExistsActiveForSenderAndCampaign(_ context.Context, senderID, campaignID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.SenderID != senderID || t.CampaignID != campaignID {
			continue
		}
		if t.Status == store.TaskPending || t.Status == store.TaskInProgress {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) Pickup(_ context.Context, accountID uuid.UUID, senderID *uuid.UUID, now time.Time) (*store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var candidates []*store.Task
	for _, t := range s.tasks {
		if t.AccountID != accountID || t.Status != store.TaskPending {
			continue
		}
		if senderID != nil && t.SenderID != *senderID {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return nil, store.ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.Before(candidates[j].CreatedAt) })
	t := candidates[0]
	t.Status = store.TaskInProgress
	t.Attempts++
	st := now
	t.StartedAt = &st
	cp := *t
	return &cp, nil
}

func (s *Store) Complete(_ context.Context, id uuid.UUID, at time.Time, result store.TaskResult) (*store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if t.Status == store.TaskCompleted {
		cp := *t
		return &cp, nil // idempotent replay
	}
	t.Status = store.TaskCompleted
	ct := at
	t.CompletedAt = &ct
	r := result
	t.Result = &r
	cp := *t
	return &cp, nil
}

func (s *Store) Fail(_ context.Context, id uuid.UUID, at time.Time, errInfo store.TaskError) (*store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if t.Status == store.TaskFailed {
		cp := *t
		return &cp, nil // idempotent replay
	}
	t.Status = store.TaskFailed
	ft := at
	t.FailedAt = &ft
	e := errInfo
	t.Error = &e
	cp := *t
	return &cp, nil
}

func (s *Store) ReclaimStale(_ context.Context, deadline time.Time) ([]store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Task
	for _, t := range s.tasks {
		if t.Status != store.TaskPending && t.Status != store.TaskInProgress {
			continue
		}
		if !t.CreatedAt.Before(deadline) {
			continue
		}
		t.Status = store.TaskFailed
		now := time.Now().UTC()
		t.FailedAt = &now
		t.Error = &store.TaskError{Message: "timed out", ErrorType: store.ErrUnknown}
		out = append(out, *t)
	}
	return out, nil
}

func (s *Store) ResetStuckForAccount(_ context.Context, accountID uuid.UUID, at time.Time) ([]store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Task
	for _, t := range s.tasks {
		if t.AccountID != accountID {
			continue
		}
		if t.Status != store.TaskPending && t.Status != store.TaskInProgress {
			continue
		}
		t.Status = store.TaskFailed
		ft := at
		t.FailedAt = &ft
		t.Error = &store.TaskError{Message: "reset by operator", ErrorType: store.ErrUnknown}
		out = append(out, *t)
	}
	return out, nil
}
