package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/metaltracker/parser-service/internal/parser"
	"github.com/metaltracker/parser-service/internal/store"
)

// SessionStore implements store.SessionStore on Postgres. A partial
// unique index on (distributor_code) WHERE status = 'incomplete' backs
// the one-Incomplete-per-distributor invariant.
type SessionStore struct {
	pool dbPool
}

// NewSessionStore constructs a SessionStore from an existing pool.
func NewSessionStore(pool dbPool) (*SessionStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &SessionStore{pool: pool}, nil
}

const sessionColumns = "id, distributor_code, status, last_updated"

// GetOrCreateIncomplete returns the distributor's Incomplete session,
// inserting one when none exists. The conflict target is the partial
// unique index, so concurrent callers converge on the same row.
func (s *SessionStore) GetOrCreateIncomplete(ctx context.Context, code parser.DistributorCode) (store.ParsingSession, error) {
	query := `
		INSERT INTO parsing_sessions (id, distributor_code, status, last_updated)
		VALUES ($1, $2, 'incomplete', now())
		ON CONFLICT (distributor_code) WHERE status = 'incomplete'
		DO UPDATE SET distributor_code = EXCLUDED.distributor_code
		RETURNING ` + sessionColumns + `;
	`
	row := s.pool.QueryRow(ctx, query, uuid.New(), code)
	sess, err := scanSession(row)
	if err != nil {
		return store.ParsingSession{}, fmt.Errorf("get or create incomplete session: %w", err)
	}
	return sess, nil
}

// GetByID fetches a session by id.
func (s *SessionStore) GetByID(ctx context.Context, id uuid.UUID) (store.ParsingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM parsing_sessions WHERE id = $1;`
	sess, err := scanSession(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ParsingSession{}, store.ErrNotFound
		}
		return store.ParsingSession{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return sess, nil
}

// ListByStatus returns all sessions in the given status, oldest first so
// the publisher drains stale sessions before fresh ones.
func (s *SessionStore) ListByStatus(ctx context.Context, status store.SessionStatus) ([]store.ParsingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM parsing_sessions WHERE status = $1 ORDER BY last_updated ASC;`
	rows, err := s.pool.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("list sessions by status %s: %w", status, err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

// List returns sessions matching the filter, newest first.
func (s *SessionStore) List(ctx context.Context, filter store.SessionFilter) ([]store.ParsingSession, error) {
	builder := sq.Select("id", "distributor_code", "status", "last_updated").
		From("parsing_sessions").
		OrderBy("last_updated DESC").
		PlaceholderFormat(sq.Dollar)
	if filter.Distributor != nil {
		builder = builder.Where(sq.Eq{"distributor_code": *filter.Distributor})
	}
	if filter.Status != nil {
		builder = builder.Where(sq.Eq{"status": *filter.Status})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build session list query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

// UpdateStatus transitions a session. The transition table is enforced in
// Go and the UPDATE is guarded on the expected current status, so a
// racing writer loses cleanly instead of corrupting the lifecycle.
func (s *SessionStore) UpdateStatus(ctx context.Context, id uuid.UUID, status store.SessionStatus) error {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := store.CheckTransition(current.Status, status); err != nil {
		return err
	}
	query := `UPDATE parsing_sessions SET status = $1, last_updated = now() WHERE id = $2 AND status = $3;`
	tag, err := s.pool.Exec(ctx, query, status, id, current.Status)
	if err != nil {
		return fmt.Errorf("update session %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s changed concurrently, not updated to %s", id, status)
	}
	return nil
}

func scanSession(row pgx.Row) (store.ParsingSession, error) {
	var sess store.ParsingSession
	err := row.Scan(&sess.ID, &sess.DistributorCode, &sess.Status, &sess.LastUpdated)
	return sess, err
}

func collectSessions(rows pgx.Rows) ([]store.ParsingSession, error) {
	var out []store.ParsingSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}
