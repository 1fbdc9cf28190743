package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

const outboundAccountSelectCols = `id, account_id, handle, channel, status, warmup, streak_days, streak_last_send_date,
	rest_until, created_at, updated_at`

func (s *Store) GetOutboundAccount(ctx context.Context, id uuid.UUID) (*store.OutboundAccount, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+outboundAccountSelectCols+` FROM outbound_accounts WHERE id = $1`, id)
	return scanOutboundAccountRow(row)
}

func (s *Store) ListWarming(ctx context.Context) ([]store.OutboundAccount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+outboundAccountSelectCols+` FROM outbound_accounts WHERE status = $1`,
		store.OutboundAccountWarming)
	if err != nil {
		return nil, fmt.Errorf("pg: list warming: %w", err)
	}
	defer rows.Close()

	var out []store.OutboundAccount
	for rows.Next() {
		a, err := scanOutboundAccountRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Store) ListByChannel(ctx context.Context, channel store.Channel) ([]store.OutboundAccount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+outboundAccountSelectCols+` FROM outbound_accounts WHERE channel = $1`,
		channel)
	if err != nil {
		return nil, fmt.Errorf("pg: list by channel: %w", err)
	}
	defer rows.Close()

	var out []store.OutboundAccount
	for rows.Next() {
		a, err := scanOutboundAccountRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Store) CompleteWarmup(ctx context.Context, id uuid.UUID) error {
	return execMapUpdate(ctx, s.db, "outbound_accounts", id, map[string]interface{}{
		"status": store.OutboundAccountReady, "updated_at": time.Now().UTC(),
	})
}

// UpdateStreak loads the account, applies fn's computed fields, and writes
// them back guarded on the account's prior streak_last_send_date so a
// re-delivered completion event cannot double-apply the streak update
// (spec.md §4.5, "Apply is idempotent per calendar day").
func (s *Store) UpdateStreak(ctx context.Context, id uuid.UUID, fn func(a *store.OutboundAccount)) error {
	a, err := s.GetOutboundAccount(ctx, id)
	if err != nil {
		return err
	}
	prevDate := a.StreakLastSendDate
	fn(a)

	res, err := s.db.ExecContext(ctx, `
		UPDATE outbound_accounts SET streak_days = $1, streak_last_send_date = $2, rest_until = $3, updated_at = $4
		WHERE id = $5 AND streak_last_send_date IS NOT DISTINCT FROM $6`,
		a.StreakDays, a.StreakLastSendDate, a.RestUntil, time.Now().UTC(), id, prevDate,
	)
	if err != nil {
		return fmt.Errorf("pg: update streak: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrConflict
	}
	return nil
}

func (s *Store) CountSendsTodayAllCampaigns(ctx context.Context, outboundAccountID uuid.UUID, localDayStart time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM campaign_leads cl
		JOIN senders s ON s.id = cl.sender_id
		WHERE s.outbound_account_id = $1 AND cl.status IN ($2, $3) AND cl.updated_at >= $4`,
		outboundAccountID, store.LeadSent, store.LeadQueued, localDayStart,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pg: count sends today all campaigns: %w", err)
	}
	return n, nil
}

func scanOutboundAccountRow(row *sql.Row) (*store.OutboundAccount, error) {
	var a store.OutboundAccount
	var warmup []byte
	if err := row.Scan(
		&a.ID, &a.AccountID, &a.Handle, &a.Channel, &a.Status, &warmup, &a.StreakDays, &a.StreakLastSendDate,
		&a.RestUntil, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("pg: scan outbound account: %w", err)
	}
	return finishOutboundAccountScan(&a, warmup)
}

func scanOutboundAccountRows(rows *sql.Rows) (*store.OutboundAccount, error) {
	var a store.OutboundAccount
	var warmup []byte
	if err := rows.Scan(
		&a.ID, &a.AccountID, &a.Handle, &a.Channel, &a.Status, &warmup, &a.StreakDays, &a.StreakLastSendDate,
		&a.RestUntil, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("pg: scan outbound account: %w", err)
	}
	return finishOutboundAccountScan(&a, warmup)
}

func finishOutboundAccountScan(a *store.OutboundAccount, warmup []byte) (*store.OutboundAccount, error) {
	if len(warmup) > 0 {
		var plan store.WarmupPlan
		if err := json.Unmarshal(warmup, &plan); err != nil {
			return nil, fmt.Errorf("pg: unmarshal warmup plan: %w", err)
		}
		a.Warmup = &plan
	}
	return a, nil
}
