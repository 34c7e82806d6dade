package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/metaltracker/parser-service/internal/store"
)

// OutboxStore provides an in-memory store.OutboxStore. Records keep their
// insertion order per session, which is what the publisher relies on.
type OutboxStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID][]store.OutboxRecord
	now     func() time.Time
}

// NewOutboxStore constructs an empty OutboxStore.
func NewOutboxStore() *OutboxStore {
	return &OutboxStore{
		records: make(map[uuid.UUID][]store.OutboxRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Append stages one serialized album event for the session.
func (s *OutboxStore) Append(_ context.Context, sessionID uuid.UUID, payload []byte) (store.OutboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := store.OutboxRecord{
		ID:        uuid.New(),
		SessionID: sessionID,
		Payload:   append([]byte(nil), payload...),
		CreatedAt: s.now(),
	}
	s.records[sessionID] = append(s.records[sessionID], rec)
	return rec, nil
}

// ListBySession returns the session's records in insertion order.
func (s *OutboxStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]store.OutboxRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.records[sessionID]
	out := make([]store.OutboxRecord, len(recs))
	copy(out, recs)
	return out, nil
}

// CountBySession returns how many records the session holds.
func (s *OutboxStore) CountBySession(_ context.Context, sessionID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[sessionID]), nil
}
