package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/metaltracker/parser-service/internal/store"
)

func TestOutboxStoreAppendOrder(t *testing.T) {
	t.Parallel()

	s := NewOutboxStore()
	ctx := context.Background()
	sessionID := uuid.New()

	for i := 0; i < 5; i++ {
		_, err := s.Append(ctx, sessionID, fmt.Appendf(nil, `{"n":%d}`, i))
		require.NoError(t, err)
	}

	recs, err := s.ListBySession(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, recs, 5)
	for i, rec := range recs {
		require.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i), string(rec.Payload))
		require.Equal(t, sessionID, rec.SessionID)
	}

	count, err := s.CountBySession(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, 5, count)

	// Other sessions are isolated.
	count, err = s.CountBySession(ctx, uuid.New())
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestBlobStoreSaveAndExists(t *testing.T) {
	t.Parallel()

	s := NewBlobStore()
	ctx := context.Background()

	ok, err := s.Exists(ctx, "images/osmose_productions/OSM-1.jpg")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Save(ctx, "images/osmose_productions/OSM-1.jpg", []byte("jpeg bytes")))

	ok, err = s.Exists(ctx, "images/osmose_productions/OSM-1.jpg")
	require.NoError(t, err)
	require.True(t, ok)

	data, found := s.Get("images/osmose_productions/OSM-1.jpg")
	require.True(t, found)
	require.Equal(t, []byte("jpeg bytes"), data)
	require.Equal(t, []string{"images/osmose_productions/OSM-1.jpg"}, s.ObjectNames())
}

func TestBandReferenceStoreLookups(t *testing.T) {
	t.Parallel()

	s := NewBandReferenceStore()
	ctx := context.Background()

	band := s.AddBand(store.BandReference{BandName: "Nokturnal Mortum"})
	entry := s.AddDiscographyEntry(store.BandDiscographyEntry{
		BandReferenceID: band.ID,
		AlbumTitle:      "Goat Horns...",
		AlbumType:       "full_length",
		Year:            intPtr(1997),
	})

	ids, err := s.BandReferenceIDsByName(ctx)
	require.NoError(t, err)
	require.Equal(t, band.ID, ids["Nokturnal Mortum"])

	got, err := s.DiscographyByID(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, "Goat Horns...", got.AlbumTitle)
	require.Equal(t, "goat horns", got.NormalizedAlbumTitle, "normalized title is derived on seed")
	require.Equal(t, 1997, *got.Year)

	_, err = s.DiscographyByID(ctx, uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func intPtr(v int) *int { return &v }
