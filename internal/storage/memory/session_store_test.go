package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/metaltracker/parser-service/internal/parser"
	"github.com/metaltracker/parser-service/internal/store"
)

func TestSessionStoreGetOrCreateIncomplete(t *testing.T) {
	t.Parallel()

	s := NewSessionStore()
	ctx := context.Background()

	first, err := s.GetOrCreateIncomplete(ctx, parser.DistributorOsmoseProductions)
	require.NoError(t, err)
	require.Equal(t, store.SessionIncomplete, first.Status)

	// A second call resumes the same session instead of creating one.
	second, err := s.GetOrCreateIncomplete(ctx, parser.DistributorOsmoseProductions)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	// Other distributors get their own sessions.
	other, err := s.GetOrCreateIncomplete(ctx, parser.DistributorDrakkar)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, other.ID)

	// Once the session leaves Incomplete, a new one is created.
	require.NoError(t, s.UpdateStatus(ctx, first.ID, store.SessionParsed))
	fresh, err := s.GetOrCreateIncomplete(ctx, parser.DistributorOsmoseProductions)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, fresh.ID)
}

func TestSessionStoreUpdateStatus(t *testing.T) {
	t.Parallel()

	s := NewSessionStore()
	ctx := context.Background()

	sess, err := s.GetOrCreateIncomplete(ctx, parser.DistributorDrakkar)
	require.NoError(t, err)

	// Skipping straight to Published is illegal.
	err = s.UpdateStatus(ctx, sess.ID, store.SessionPublished)
	require.Error(t, err)

	require.NoError(t, s.UpdateStatus(ctx, sess.ID, store.SessionParsed))
	require.NoError(t, s.UpdateStatus(ctx, sess.ID, store.SessionPublished))

	got, err := s.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, store.SessionPublished, got.Status)

	err = s.UpdateStatus(ctx, uuid.New(), store.SessionParsed)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSessionStoreList(t *testing.T) {
	t.Parallel()

	s := NewSessionStore()
	ctx := context.Background()

	osmose, err := s.GetOrCreateIncomplete(ctx, parser.DistributorOsmoseProductions)
	require.NoError(t, err)
	_, err = s.GetOrCreateIncomplete(ctx, parser.DistributorDrakkar)
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(ctx, osmose.ID, store.SessionParsed))

	parsed, err := s.ListByStatus(ctx, store.SessionParsed)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	require.Equal(t, osmose.ID, parsed[0].ID)

	code := parser.DistributorDrakkar
	filtered, err := s.List(ctx, store.SessionFilter{Distributor: &code})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, parser.DistributorDrakkar, filtered[0].DistributorCode)

	limited, err := s.List(ctx, store.SessionFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestSessionStoreListByStatusOldestFirst(t *testing.T) {
	t.Parallel()

	s := NewSessionStore()
	ctx := context.Background()

	// Pin timestamps so the ordering assertion is deterministic.
	base := time.Unix(1700000000, 0).UTC()
	s.now = func() time.Time { return base }
	old, err := s.GetOrCreateIncomplete(ctx, parser.DistributorOsmoseProductions)
	require.NoError(t, err)
	s.now = func() time.Time { return base.Add(time.Hour) }
	recent, err := s.GetOrCreateIncomplete(ctx, parser.DistributorDrakkar)
	require.NoError(t, err)

	// Stale sessions drain first, matching the database ordering.
	incomplete, err := s.ListByStatus(ctx, store.SessionIncomplete)
	require.NoError(t, err)
	require.Len(t, incomplete, 2)
	require.Equal(t, old.ID, incomplete[0].ID)
	require.Equal(t, recent.ID, incomplete[1].ID)

	// The admin listing stays newest first.
	listed, err := s.List(ctx, store.SessionFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, recent.ID, listed[0].ID)
	require.Equal(t, old.ID, listed[1].ID)
}
