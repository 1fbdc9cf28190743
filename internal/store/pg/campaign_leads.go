package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

const campaignLeadSelectCols = `id, campaign_id, outbound_lead_id, status, sender_id, queued_at, task_id,
	message_used, template_index, failed_sender_ids, last_error, manual_override, sent_at, created_at, updated_at`

func (s *Store) GetLead(ctx context.Context, id uuid.UUID) (*store.CampaignLead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+campaignLeadSelectCols+` FROM campaign_leads WHERE id = $1`, id)
	return scanCampaignLeadRow(row)
}

// AcquireOldestPending is the Lease Manager's core primitive: a single
// UPDATE ... WHERE status = 'pending' ... RETURNING picks the oldest
// candidate and flips it to queued atomically, so two concurrent callers
// can never acquire the same lead (spec.md §4.4, invariant 1).
func (s *Store) AcquireOldestPending(ctx context.Context, campaignID, senderID uuid.UUID, now time.Time) (*store.CampaignLead, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE campaign_leads SET status = $1, sender_id = $2, queued_at = $3, updated_at = $3
		WHERE id = (
			SELECT id FROM campaign_leads
			WHERE campaign_id = $4 AND status = $5
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+campaignLeadSelectCols,
		store.LeadQueued, senderID, now, campaignID, store.LeadPending,
	)
	lead, err := scanCampaignLeadRow(row)
	if err == store.ErrNotFound {
		return nil, store.ErrNoLease
	}
	return lead, err
}

func (s *Store) ReclaimStaleLeases(ctx context.Context, campaignID uuid.UUID, deadline time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaign_leads SET status = $1, sender_id = NULL, queued_at = NULL, task_id = NULL, updated_at = $2
		WHERE campaign_id = $3 AND status = $4 AND queued_at < $2`,
		store.LeadPending, deadline, campaignID, store.LeadQueued,
	)
	if err != nil {
		return 0, fmt.Errorf("pg: reclaim stale leases: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) SetTerminal(ctx context.Context, leadID uuid.UUID, from, to store.CampaignLeadStatus, fn func(l *store.CampaignLead)) (bool, error) {
	lead, err := s.GetLead(ctx, leadID)
	if err != nil {
		return false, err
	}
	if lead.Status != from {
		return false, nil
	}
	lead.Status = to
	if fn != nil {
		fn(lead)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaign_leads SET status = $1, sender_id = $2, queued_at = $3, task_id = $4, sent_at = $5,
			last_error = $6, updated_at = $7
		WHERE id = $8 AND status = $9`,
		lead.Status, lead.SenderID, lead.QueuedAt, lead.TaskID, lead.SentAt, lead.LastError, now, leadID, from,
	)
	if err != nil {
		return false, fmt.Errorf("pg: set terminal: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) AttachTask(ctx context.Context, leadID, taskID uuid.UUID, messageUsed string, templateIndex *int) error {
	return execMapUpdate(ctx, s.db, "campaign_leads", leadID, map[string]interface{}{
		"task_id": taskID, "message_used": messageUsed, "template_index": templateIndex, "updated_at": time.Now().UTC(),
	})
}

// ResetToPending implements spec.md §4.9: the lead's current sender_id
// (if any) is appended to failed_sender_ids before it's cleared. The set
// is recorded only; sender selection does not consult it.
func (s *Store) ResetToPending(ctx context.Context, leadID uuid.UUID) error {
	lead, err := s.GetLead(ctx, leadID)
	if err != nil {
		return err
	}
	failed := lead.FailedSenderIDs
	if lead.SenderID != nil {
		failed = append(failed, *lead.SenderID)
	}
	ids := make([]string, len(failed))
	for i, id := range failed {
		ids[i] = id.String()
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE campaign_leads SET status = $1, sender_id = NULL, queued_at = NULL, task_id = NULL,
			failed_sender_ids = $2, updated_at = $3
		WHERE id = $4`,
		store.LeadPending, pq.Array(ids), time.Now().UTC(), leadID,
	)
	if err != nil {
		return fmt.Errorf("pg: reset to pending: %w", err)
	}
	return nil
}

func (s *Store) PendingOrQueuedCount(ctx context.Context, campaignID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM campaign_leads WHERE campaign_id = $1 AND status IN ($2, $3)`,
		campaignID, store.LeadPending, store.LeadQueued,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pg: pending or queued count: %w", err)
	}
	return n, nil
}

func (s *Store) CountByCampaignAndSenderToday(ctx context.Context, campaignID, senderID uuid.UUID, localDayStart time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM campaign_leads
		WHERE campaign_id = $1 AND sender_id = $2 AND status IN ($3, $4) AND updated_at >= $5`,
		campaignID, senderID, store.LeadSent, store.LeadQueued, localDayStart,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pg: count by campaign and sender today: %w", err)
	}
	return n, nil
}

func scanCampaignLeadRow(row *sql.Row) (*store.CampaignLead, error) {
	var l store.CampaignLead
	var failed pq.StringArray
	if err := row.Scan(
		&l.ID, &l.CampaignID, &l.OutboundLeadID, &l.Status, &l.SenderID, &l.QueuedAt, &l.TaskID,
		&l.MessageUsed, &l.TemplateIndex, &failed, &l.LastError, &l.ManualOverride, &l.SentAt, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("pg: scan campaign lead: %w", err)
	}
	l.FailedSenderIDs = make([]uuid.UUID, 0, len(failed))
	for _, raw := range failed {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("pg: parse failed_sender_id: %w", err)
		}
		l.FailedSenderIDs = append(l.FailedSenderIDs, id)
	}
	return &l, nil
}
