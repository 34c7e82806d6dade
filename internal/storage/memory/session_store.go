package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/metaltracker/parser-service/internal/parser"
	"github.com/metaltracker/parser-service/internal/store"
)

// SessionStore provides an in-memory store.SessionStore for tests and
// local runs.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]store.ParsingSession
	now      func() time.Time
}

// NewSessionStore constructs an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[uuid.UUID]store.ParsingSession),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreateIncomplete returns the distributor's Incomplete session or
// creates one. Only one Incomplete session per distributor ever exists.
func (s *SessionStore) GetOrCreateIncomplete(_ context.Context, code parser.DistributorCode) (store.ParsingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.DistributorCode == code && sess.Status == store.SessionIncomplete {
			return sess, nil
		}
	}
	sess := store.ParsingSession{
		ID:              uuid.New(),
		DistributorCode: code,
		Status:          store.SessionIncomplete,
		LastUpdated:     s.now(),
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

// GetByID fetches a session by id.
func (s *SessionStore) GetByID(_ context.Context, id uuid.UUID) (store.ParsingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return store.ParsingSession{}, store.ErrNotFound
	}
	return sess, nil
}

// ListByStatus returns all sessions in the given status, oldest first so
// the publisher drains stale sessions before fresh ones.
func (s *SessionStore) ListByStatus(_ context.Context, status store.SessionStatus) ([]store.ParsingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.ParsingSession
	for _, sess := range s.sessions {
		if sess.Status == status {
			out = append(out, sess)
		}
	}
	sortSessionsOldestFirst(out)
	return out, nil
}

// List returns sessions matching the filter, newest first.
func (s *SessionStore) List(_ context.Context, filter store.SessionFilter) ([]store.ParsingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.ParsingSession
	for _, sess := range s.sessions {
		if filter.Distributor != nil && sess.DistributorCode != *filter.Distributor {
			continue
		}
		if filter.Status != nil && sess.Status != *filter.Status {
			continue
		}
		out = append(out, sess)
	}
	sortSessionsNewestFirst(out)
	return paginateSessions(out, filter.Limit, filter.Offset), nil
}

// UpdateStatus transitions a session, enforcing the transition table.
func (s *SessionStore) UpdateStatus(_ context.Context, id uuid.UUID, status store.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	if err := store.CheckTransition(sess.Status, status); err != nil {
		return err
	}
	sess.Status = status
	sess.LastUpdated = s.now()
	s.sessions[id] = sess
	return nil
}

func sortSessionsNewestFirst(sessions []store.ParsingSession) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].LastUpdated.Equal(sessions[j].LastUpdated) {
			return sessions[i].LastUpdated.After(sessions[j].LastUpdated)
		}
		return sessions[i].ID.String() < sessions[j].ID.String()
	})
}

func sortSessionsOldestFirst(sessions []store.ParsingSession) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].LastUpdated.Equal(sessions[j].LastUpdated) {
			return sessions[i].LastUpdated.Before(sessions[j].LastUpdated)
		}
		return sessions[i].ID.String() < sessions[j].ID.String()
	})
}

func paginateSessions(sessions []store.ParsingSession, limit, offset int) []store.ParsingSession {
	if offset >= len(sessions) {
		return nil
	}
	sessions = sessions[offset:]
	if limit > 0 && limit < len(sessions) {
		sessions = sessions[:limit]
	}
	return sessions
}
