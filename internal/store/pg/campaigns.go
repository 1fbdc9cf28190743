package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

const campaignSelectCols = `id, account_id, status, mode, channel, message_templates, outbound_account_ids,
	schedule, last_sender_index, last_message_index, last_sent_at, burst_state,
	stat_pending, stat_queued, stat_sent, stat_delivered, stat_replied, stat_failed, stat_skipped,
	created_at, updated_at`

func (s *Store) GetCampaign(ctx context.Context, id uuid.UUID) (*store.Campaign, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+campaignSelectCols+` FROM campaigns WHERE id = $1`, id)
	return scanCampaignRow(row)
}

func (s *Store) ListActiveAutoCampaigns(ctx context.Context) ([]store.Campaign, error) {
	return s.listCampaigns(ctx,
		`SELECT `+campaignSelectCols+` FROM campaigns WHERE status = $1 AND mode = $2 ORDER BY created_at`,
		store.CampaignActive, store.CampaignModeAuto)
}

func (s *Store) ListActiveCampaignsByMode(ctx context.Context, mode store.CampaignMode) ([]store.Campaign, error) {
	return s.listCampaigns(ctx,
		`SELECT `+campaignSelectCols+` FROM campaigns WHERE status = $1 AND mode = $2 ORDER BY created_at`,
		store.CampaignActive, mode)
}

func (s *Store) listCampaigns(ctx context.Context, query string, args ...interface{}) ([]store.Campaign, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pg: list campaigns: %w", err)
	}
	defer rows.Close()

	var out []store.Campaign
	for rows.Next() {
		c, err := scanCampaignRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) CreateCampaign(ctx context.Context, c *store.Campaign) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	schedule, err := json.Marshal(c.Schedule)
	if err != nil {
		return fmt.Errorf("pg: marshal schedule: %w", err)
	}
	burst, err := json.Marshal(c.Burst)
	if err != nil {
		return fmt.Errorf("pg: marshal burst state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, account_id, status, mode, channel, message_templates, outbound_account_ids,
			schedule, last_sender_index, last_message_index, last_sent_at, burst_state,
			stat_pending, stat_queued, stat_sent, stat_delivered, stat_replied, stat_failed, stat_skipped,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		c.ID, c.AccountID, c.Status, c.Mode, c.Channel, pq.Array(c.MessageTemplates), pq.Array(c.OutboundAccountIDs),
		schedule, c.LastSenderIndex, c.LastMessageIndex, c.LastSentAt, burst,
		c.Stats.Pending, c.Stats.Queued, c.Stats.Sent, c.Stats.Delivered, c.Stats.Replied, c.Stats.Failed, c.Stats.Skipped,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("pg: insert campaign: %w", err)
	}
	return nil
}

// CommitDispatch loads the campaign, applies fn, and writes every mutable
// cursor/timestamp/burst field back in one UPDATE guarded on updated_at —
// the compare-and-swap the teacher's store layer substitutes for a
// multi-statement transaction (spec.md §9).
func (s *Store) CommitDispatch(ctx context.Context, campaignID uuid.UUID, prevUpdatedAt time.Time, fn func(c *store.Campaign)) error {
	c, err := s.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	fn(c)
	now := time.Now().UTC()

	burst, err := json.Marshal(c.Burst)
	if err != nil {
		return fmt.Errorf("pg: marshal burst state: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE campaigns SET last_sender_index = $1, last_message_index = $2, last_sent_at = $3,
			burst_state = $4, updated_at = $5
		WHERE id = $6 AND updated_at = $7`,
		c.LastSenderIndex, c.LastMessageIndex, c.LastSentAt, burst, now, campaignID, prevUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("pg: commit dispatch: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrConflict
	}
	return nil
}

func (s *Store) AdjustStats(ctx context.Context, campaignID uuid.UUID, delta store.CampaignStatsDelta) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE campaigns SET
			stat_pending = stat_pending + $1, stat_queued = stat_queued + $2, stat_sent = stat_sent + $3,
			stat_delivered = stat_delivered + $4, stat_replied = stat_replied + $5,
			stat_failed = stat_failed + $6, stat_skipped = stat_skipped + $7, updated_at = now()
		WHERE id = $8`,
		delta.Pending, delta.Queued, delta.Sent, delta.Delivered, delta.Replied, delta.Failed, delta.Skipped, campaignID,
	)
	if err != nil {
		return fmt.Errorf("pg: adjust stats: %w", err)
	}
	return nil
}

func (s *Store) SetStatus(ctx context.Context, campaignID uuid.UUID, status store.CampaignStatus) error {
	return execMapUpdate(ctx, s.db, "campaigns", campaignID, map[string]interface{}{
		"status": status, "updated_at": time.Now().UTC(),
	})
}

func (s *Store) ClearBurstGroup(ctx context.Context, campaignID uuid.UUID) error {
	burst, _ := json.Marshal(store.BurstState{})
	return execMapUpdate(ctx, s.db, "campaigns", campaignID, map[string]interface{}{
		"burst_state": burst, "updated_at": time.Now().UTC(),
	})
}

func (s *Store) SetBurstBreak(ctx context.Context, campaignID uuid.UUID, until time.Time) error {
	c, err := s.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	c.Burst.BreakUntil = &until
	c.Burst.SentInGroup = 0
	burst, err := json.Marshal(c.Burst)
	if err != nil {
		return err
	}
	return execMapUpdate(ctx, s.db, "campaigns", campaignID, map[string]interface{}{
		"burst_state": burst, "updated_at": time.Now().UTC(),
	})
}

func (s *Store) ClearBurstBreak(ctx context.Context, campaignID uuid.UUID) error {
	c, err := s.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	c.Burst.BreakUntil = nil
	burst, err := json.Marshal(c.Burst)
	if err != nil {
		return err
	}
	return execMapUpdate(ctx, s.db, "campaigns", campaignID, map[string]interface{}{
		"burst_state": burst, "updated_at": time.Now().UTC(),
	})
}

func (s *Store) CountSentToday(ctx context.Context, campaignID uuid.UUID, localDayStart time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM campaign_leads
		WHERE campaign_id = $1 AND status IN ($2, $3) AND updated_at >= $4`,
		campaignID, store.LeadSent, store.LeadQueued, localDayStart,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pg: count sent today: %w", err)
	}
	return n, nil
}

func scanCampaignRow(row *sql.Row) (*store.Campaign, error) {
	var c store.Campaign
	var schedule, burst []byte
	var templates, outboundIDs pq.StringArray
	if err := row.Scan(
		&c.ID, &c.AccountID, &c.Status, &c.Mode, &c.Channel, &templates, &outboundIDs,
		&schedule, &c.LastSenderIndex, &c.LastMessageIndex, &c.LastSentAt, &burst,
		&c.Stats.Pending, &c.Stats.Queued, &c.Stats.Sent, &c.Stats.Delivered, &c.Stats.Replied, &c.Stats.Failed, &c.Stats.Skipped,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("pg: scan campaign: %w", err)
	}
	return finishCampaignScan(&c, templates, outboundIDs, schedule, burst)
}

func scanCampaignRows(rows *sql.Rows) (*store.Campaign, error) {
	var c store.Campaign
	var schedule, burst []byte
	var templates, outboundIDs pq.StringArray
	if err := rows.Scan(
		&c.ID, &c.AccountID, &c.Status, &c.Mode, &c.Channel, &templates, &outboundIDs,
		&schedule, &c.LastSenderIndex, &c.LastMessageIndex, &c.LastSentAt, &burst,
		&c.Stats.Pending, &c.Stats.Queued, &c.Stats.Sent, &c.Stats.Delivered, &c.Stats.Replied, &c.Stats.Failed, &c.Stats.Skipped,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("pg: scan campaign: %w", err)
	}
	return finishCampaignScan(&c, templates, outboundIDs, schedule, burst)
}

func finishCampaignScan(c *store.Campaign, templates, outboundIDs pq.StringArray, schedule, burst []byte) (*store.Campaign, error) {
	c.MessageTemplates = []string(templates)
	c.OutboundAccountIDs = make([]uuid.UUID, 0, len(outboundIDs))
	for _, raw := range outboundIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("pg: parse outbound_account_id: %w", err)
		}
		c.OutboundAccountIDs = append(c.OutboundAccountIDs, id)
	}
	if err := json.Unmarshal(schedule, &c.Schedule); err != nil {
		return nil, fmt.Errorf("pg: unmarshal schedule: %w", err)
	}
	if len(burst) > 0 {
		if err := json.Unmarshal(burst, &c.Burst); err != nil {
			return nil, fmt.Errorf("pg: unmarshal burst state: %w", err)
		}
	}
	return c, nil
}
