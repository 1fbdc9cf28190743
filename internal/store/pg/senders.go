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

const senderSelectCols = `id, account_id, outbound_account_id, status, last_heartbeat, daily_limit, test_mode,
	restricted_until, restriction_reason, created_at, updated_at`

func (s *Store) GetSender(ctx context.Context, id uuid.UUID) (*store.Sender, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+senderSelectCols+` FROM senders WHERE id = $1`, id)
	return scanSenderRow(row)
}

func (s *Store) ListByOutboundAccounts(ctx context.Context, outboundAccountIDs []uuid.UUID) ([]store.Sender, error) {
	ids := make([]string, len(outboundAccountIDs))
	for i, id := range outboundAccountIDs {
		ids[i] = id.String()
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+senderSelectCols+` FROM senders WHERE outbound_account_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("pg: list senders by outbound accounts: %w", err)
	}
	defer rows.Close()

	var out []store.Sender
	for rows.Next() {
		sd, err := scanSenderRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sd)
	}
	return out, rows.Err()
}

func (s *Store) ListStaleOnline(ctx context.Context, heartbeatDeadline time.Time) ([]store.Sender, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+senderSelectCols+` FROM senders WHERE status = $1 AND last_heartbeat < $2`,
		store.SenderOnline, heartbeatDeadline)
	if err != nil {
		return nil, fmt.Errorf("pg: list stale online: %w", err)
	}
	defer rows.Close()

	var out []store.Sender
	for rows.Next() {
		sd, err := scanSenderRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sd)
	}
	return out, rows.Err()
}

// SetOnline marks a sender online on reconnect. It must not clear an
// unexpired restriction (spec.md §8): the CASE keeps status as-is
// while restricted_until is still after the reconnect's heartbeat.
func (s *Store) SetOnline(ctx context.Context, id uuid.UUID, heartbeat time.Time) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE senders
		SET status = CASE WHEN restricted_until IS NOT NULL AND restricted_until > $3 THEN status ELSE $2 END,
		    last_heartbeat = $3,
		    updated_at = $1
		WHERE id = $4`,
		now, store.SenderOnline, heartbeat, id)
	if err != nil {
		return fmt.Errorf("pg: set online: %w", err)
	}
	return nil
}

func (s *Store) SetOffline(ctx context.Context, id uuid.UUID) error {
	return execMapUpdate(ctx, s.db, "senders", id, map[string]interface{}{
		"status": store.SenderOffline, "updated_at": time.Now().UTC(),
	})
}

func (s *Store) SetRestricted(ctx context.Context, id uuid.UUID, until time.Time, reason string) error {
	return execMapUpdate(ctx, s.db, "senders", id, map[string]interface{}{
		"status": store.SenderRestricted, "restricted_until": until, "restriction_reason": reason,
		"updated_at": time.Now().UTC(),
	})
}

func (s *Store) Heartbeat(ctx context.Context, id uuid.UUID, at time.Time) error {
	return execMapUpdate(ctx, s.db, "senders", id, map[string]interface{}{
		"last_heartbeat": at, "updated_at": time.Now().UTC(),
	})
}

func scanSenderRow(row *sql.Row) (*store.Sender, error) {
	var sd store.Sender
	if err := row.Scan(
		&sd.ID, &sd.AccountID, &sd.OutboundAccountID, &sd.Status, &sd.LastHeartbeat, &sd.DailyLimit, &sd.TestMode,
		&sd.RestrictedUntil, &sd.RestrictionReason, &sd.CreatedAt, &sd.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("pg: scan sender: %w", err)
	}
	return &sd, nil
}

func scanSenderRows(rows *sql.Rows) (*store.Sender, error) {
	var sd store.Sender
	if err := rows.Scan(
		&sd.ID, &sd.AccountID, &sd.OutboundAccountID, &sd.Status, &sd.LastHeartbeat, &sd.DailyLimit, &sd.TestMode,
		&sd.RestrictedUntil, &sd.RestrictionReason, &sd.CreatedAt, &sd.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("pg: scan sender: %w", err)
	}
	return &sd, nil
}
