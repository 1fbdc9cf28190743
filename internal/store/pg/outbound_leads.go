package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

const outboundLeadSelectCols = `id, account_id, username, display_name, bio, follower_count, messaged, replied,
	thread_id, dm_date, last_message, created_at, updated_at`

func (s *Store) GetOutboundLead(ctx context.Context, id uuid.UUID) (*store.OutboundLead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+outboundLeadSelectCols+` FROM outbound_leads WHERE id = $1`, id)
	var l store.OutboundLead
	if err := row.Scan(
		&l.ID, &l.AccountID, &l.Username, &l.DisplayName, &l.Bio, &l.FollowerCount, &l.Messaged, &l.Replied,
		&l.ThreadID, &l.DMDate, &l.LastMessage, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("pg: scan outbound lead: %w", err)
	}
	return &l, nil
}

func (s *Store) MarkMessaged(ctx context.Context, id uuid.UUID, at time.Time, message, threadID string) error {
	return execMapUpdate(ctx, s.db, "outbound_leads", id, map[string]interface{}{
		"messaged": true, "dm_date": at, "last_message": message, "thread_id": threadID, "updated_at": at,
	})
}
