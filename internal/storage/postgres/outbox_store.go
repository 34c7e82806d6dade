package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/metaltracker/parser-service/internal/store"
)

// OutboxStore implements store.OutboxStore on Postgres. Rows are
// append-only; the publisher reads them back in insertion order.
type OutboxStore struct {
	pool dbPool
}

// NewOutboxStore constructs an OutboxStore from an existing pool.
func NewOutboxStore(pool dbPool) (*OutboxStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &OutboxStore{pool: pool}, nil
}

// Append stages one serialized album event for the session.
func (s *OutboxStore) Append(ctx context.Context, sessionID uuid.UUID, payload []byte) (store.OutboxRecord, error) {
	query := `
		INSERT INTO album_outbox (id, session_id, payload, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id, session_id, payload, created_at;
	`
	var rec store.OutboxRecord
	err := s.pool.QueryRow(ctx, query, uuid.New(), sessionID, payload).
		Scan(&rec.ID, &rec.SessionID, &rec.Payload, &rec.CreatedAt)
	if err != nil {
		return store.OutboxRecord{}, fmt.Errorf("append outbox record for session %s: %w", sessionID, err)
	}
	return rec, nil
}

// ListBySession returns the session's records in insertion order.
func (s *OutboxStore) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]store.OutboxRecord, error) {
	query := `
		SELECT id, session_id, payload, created_at
		FROM album_outbox
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC;
	`
	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list outbox records for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []store.OutboxRecord
	for rows.Next() {
		var rec store.OutboxRecord
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return out, nil
}

// CountBySession returns how many records the session holds.
func (s *OutboxStore) CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	query := `SELECT count(*) FROM album_outbox WHERE session_id = $1;`
	var count int
	if err := s.pool.QueryRow(ctx, query, sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count outbox records for session %s: %w", sessionID, err)
	}
	return count, nil
}
