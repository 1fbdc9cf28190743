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

const taskSelectCols = `id, account_id, type, target_username, message, sender_id, campaign_id, campaign_lead_id,
	outbound_lead_id, status, attempts, result, error, created_at, started_at, completed_at, failed_at`

func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*store.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskSelectCols+` FROM tasks WHERE id = $1`, id)
	return scanTaskRow(row)
}

func (s *Store) CreateTask(ctx context.Context, t *store.Task) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now().UTC()
	if t.Status == "" {
		t.Status = store.TaskPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, account_id, type, target_username, message, sender_id, campaign_id, campaign_lead_id,
			outbound_lead_id, status, attempts, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		t.ID, t.AccountID, t.Type, t.TargetUsername, t.Message, t.SenderID, t.CampaignID, t.CampaignLeadID,
		t.OutboundLeadID, t.Status, t.Attempts, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("pg: insert task: %w", err)
	}
	return nil
}

func (s *Store) ExistsActiveForSenderAndCampaign(ctx context.Context, senderID, campaignID uuid.UUID) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM tasks
		WHERE sender_id = $1 AND campaign_id = $2 AND status IN ($3, $4)`,
		senderID, campaignID, store.TaskPending, store.TaskInProgress,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("pg: exists active for sender and campaign: %w", err)
	}
	return n > 0, nil
}

// Pickup is the agent-facing counterpart of AcquireOldestPending: a single
// UPDATE ... RETURNING claims the oldest pending task for the account
// (optionally pinned to one sender), so two agents polling concurrently
// never pick up the same task.
func (s *Store) Pickup(ctx context.Context, accountID uuid.UUID, senderID *uuid.UUID, now time.Time) (*store.Task, error) {
	var row *sql.Row
	if senderID != nil {
		row = s.db.QueryRowContext(ctx, `
			UPDATE tasks SET status = $1, attempts = attempts + 1, started_at = $2
			WHERE id = (
				SELECT id FROM tasks WHERE account_id = $3 AND sender_id = $4 AND status = $5
				ORDER BY created_at LIMIT 1 FOR UPDATE SKIP LOCKED
			)
			RETURNING `+taskSelectCols,
			store.TaskInProgress, now, accountID, *senderID, store.TaskPending,
		)
	} else {
		row = s.db.QueryRowContext(ctx, `
			UPDATE tasks SET status = $1, attempts = attempts + 1, started_at = $2
			WHERE id = (
				SELECT id FROM tasks WHERE account_id = $3 AND status = $4
				ORDER BY created_at LIMIT 1 FOR UPDATE SKIP LOCKED
			)
			RETURNING `+taskSelectCols,
			store.TaskInProgress, now, accountID, store.TaskPending,
		)
	}
	t, err := scanTaskRow(row)
	if err == store.ErrNotFound {
		return nil, store.ErrNotFound
	}
	return t, err
}

func (s *Store) Complete(ctx context.Context, id uuid.UUID, at time.Time, result store.TaskResult) (*store.Task, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("pg: marshal task result: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE tasks SET status = $1, result = $2, completed_at = $3
		WHERE id = $4 AND status IN ($5, $6)
		RETURNING `+taskSelectCols,
		store.TaskCompleted, payload, at, id, store.TaskPending, store.TaskInProgress,
	)
	t, err := scanTaskRow(row)
	if err == store.ErrNotFound {
		// Idempotent replay: already terminal, return the current state.
		return s.GetTask(ctx, id)
	}
	return t, err
}

func (s *Store) Fail(ctx context.Context, id uuid.UUID, at time.Time, errInfo store.TaskError) (*store.Task, error) {
	payload, err := json.Marshal(errInfo)
	if err != nil {
		return nil, fmt.Errorf("pg: marshal task error: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE tasks SET status = $1, error = $2, failed_at = $3
		WHERE id = $4 AND status IN ($5, $6)
		RETURNING `+taskSelectCols,
		store.TaskFailed, payload, at, id, store.TaskPending, store.TaskInProgress,
	)
	t, err := scanTaskRow(row)
	if err == store.ErrNotFound {
		return s.GetTask(ctx, id)
	}
	return t, err
}

func (s *Store) ReclaimStale(ctx context.Context, deadline time.Time) ([]store.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE tasks SET status = $1, error = $2, failed_at = $3
		WHERE status IN ($4, $5) AND created_at < $3
		RETURNING `+taskSelectCols,
		store.TaskFailed, mustMarshalTimeoutError(), deadline, store.TaskPending, store.TaskInProgress,
	)
	if err != nil {
		return nil, fmt.Errorf("pg: reclaim stale tasks: %w", err)
	}
	defer rows.Close()
	return scanTaskList(rows)
}

func (s *Store) ResetStuckForAccount(ctx context.Context, accountID uuid.UUID, at time.Time) ([]store.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE tasks SET status = $1, error = $2, failed_at = $3
		WHERE account_id = $4 AND status IN ($5, $6)
		RETURNING `+taskSelectCols,
		store.TaskFailed, mustMarshalResetError(), at, accountID, store.TaskPending, store.TaskInProgress,
	)
	if err != nil {
		return nil, fmt.Errorf("pg: reset stuck for account: %w", err)
	}
	defer rows.Close()
	return scanTaskList(rows)
}

func mustMarshalTimeoutError() []byte {
	b, _ := json.Marshal(store.TaskError{Message: "timed out", ErrorType: store.ErrUnknown})
	return b
}

func mustMarshalResetError() []byte {
	b, _ := json.Marshal(store.TaskError{Message: "reset by operator", ErrorType: store.ErrUnknown})
	return b
}

func scanTaskList(rows *sql.Rows) ([]store.Task, error) {
	var out []store.Task
	for rows.Next() {
		t, err := scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTaskRow(row *sql.Row) (*store.Task, error) {
	var t store.Task
	var result, errInfo []byte
	if err := row.Scan(
		&t.ID, &t.AccountID, &t.Type, &t.TargetUsername, &t.Message, &t.SenderID, &t.CampaignID, &t.CampaignLeadID,
		&t.OutboundLeadID, &t.Status, &t.Attempts, &result, &errInfo, &t.CreatedAt, &t.StartedAt, &t.CompletedAt, &t.FailedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("pg: scan task: %w", err)
	}
	return finishTaskScan(&t, result, errInfo)
}

func scanTaskRows(rows *sql.Rows) (*store.Task, error) {
	var t store.Task
	var result, errInfo []byte
	if err := rows.Scan(
		&t.ID, &t.AccountID, &t.Type, &t.TargetUsername, &t.Message, &t.SenderID, &t.CampaignID, &t.CampaignLeadID,
		&t.OutboundLeadID, &t.Status, &t.Attempts, &result, &errInfo, &t.CreatedAt, &t.StartedAt, &t.CompletedAt, &t.FailedAt,
	); err != nil {
		return nil, fmt.Errorf("pg: scan task: %w", err)
	}
	return finishTaskScan(&t, result, errInfo)
}

func finishTaskScan(t *store.Task, result, errInfo []byte) (*store.Task, error) {
	if len(result) > 0 {
		var r store.TaskResult
		if err := json.Unmarshal(result, &r); err != nil {
			return nil, fmt.Errorf("pg: unmarshal task result: %w", err)
		}
		t.Result = &r
	}
	if len(errInfo) > 0 {
		var e store.TaskError
		if err := json.Unmarshal(errInfo, &e); err != nil {
			return nil, fmt.Errorf("pg: unmarshal task error: %w", err)
		}
		t.Error = &e
	}
	return t, nil
}
