package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/metaltracker/parser-service/internal/parser"
	"github.com/metaltracker/parser-service/internal/store"
)

func TestCatalogueStoreUpsertPreservesStatus(t *testing.T) {
	t.Parallel()

	s := NewCatalogueStore()
	ctx := context.Background()

	entry := store.CatalogueEntry{
		DistributorCode: parser.DistributorOsmoseProductions,
		BandName:        "Nokturnal Mortum",
		AlbumTitle:      "Goat Horns",
		RawTitle:        "NOKTURNAL MORTUM - Goat Horns",
		DetailURL:       "https://osmose.example/goat-horns",
		Status:          store.CatalogueNew,
	}
	created, err := s.Upsert(ctx, entry)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)

	require.NoError(t, s.UpdateStatus(ctx, created.ID, store.CatalogueRelevant))

	// Re-upserting the same detail URL refreshes fields but never resets
	// the status.
	entry.RawTitle = "NOKTURNAL MORTUM - Goat Horns (digipak)"
	again, err := s.Upsert(ctx, entry)
	require.NoError(t, err)
	require.Equal(t, created.ID, again.ID)
	require.Equal(t, store.CatalogueRelevant, again.Status)
	require.Equal(t, "NOKTURNAL MORTUM - Goat Horns (digipak)", again.RawTitle)
}

func TestCatalogueStoreUpsertPreservesDiscographyLink(t *testing.T) {
	t.Parallel()

	s := NewCatalogueStore()
	ctx := context.Background()

	discographyID := uuid.New()
	entry := store.CatalogueEntry{
		DistributorCode:   parser.DistributorOsmoseProductions,
		BandName:          "Drudkh",
		AlbumTitle:        "Autumn Aurora",
		DetailURL:         "https://osmose.example/autumn-aurora",
		Status:            store.CatalogueAiVerified,
		BandDiscographyID: &discographyID,
	}
	created, err := s.Upsert(ctx, entry)
	require.NoError(t, err)
	require.NotNil(t, created.BandDiscographyID)

	// A later listing crawl knows nothing about discography links; the
	// refresh must not sever the one verification established.
	entry.BandDiscographyID = nil
	again, err := s.Upsert(ctx, entry)
	require.NoError(t, err)
	require.Equal(t, created.ID, again.ID)
	require.NotNil(t, again.BandDiscographyID, "discography link must survive a re-crawl")
	require.Equal(t, discographyID, *again.BandDiscographyID)
}

func TestCatalogueStoreUpsertKeysOnDistributorAndURL(t *testing.T) {
	t.Parallel()

	s := NewCatalogueStore()
	ctx := context.Background()

	base := store.CatalogueEntry{
		BandName:   "Drudkh",
		AlbumTitle: "Autumn Aurora",
		DetailURL:  "https://shop.example/autumn-aurora",
		Status:     store.CatalogueNew,
	}

	base.DistributorCode = parser.DistributorOsmoseProductions
	first, err := s.Upsert(ctx, base)
	require.NoError(t, err)

	// Same URL at another distributor is a different entry.
	base.DistributorCode = parser.DistributorDrakkar
	second, err := s.Upsert(ctx, base)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
}

func TestCatalogueStoreListByStatuses(t *testing.T) {
	t.Parallel()

	s := NewCatalogueStore()
	ctx := context.Background()

	seed := func(url string, status store.CatalogueStatus) store.CatalogueEntry {
		entry, err := s.Upsert(ctx, store.CatalogueEntry{
			DistributorCode: parser.DistributorOsmoseProductions,
			BandName:        "Mgla",
			AlbumTitle:      "Exercises in Futility",
			DetailURL:       url,
			Status:          store.CatalogueNew,
		})
		require.NoError(t, err)
		if status != store.CatalogueNew {
			require.NoError(t, s.UpdateStatus(ctx, entry.ID, status))
		}
		return entry
	}

	relevant := seed("https://osmose.example/a", store.CatalogueRelevant)
	seed("https://osmose.example/b", store.CatalogueNotRelevant)
	verified := seed("https://osmose.example/c", store.CatalogueAiVerified)

	eligible, err := s.ListByStatuses(ctx, parser.DistributorOsmoseProductions,
		[]store.CatalogueStatus{store.CatalogueRelevant, store.CatalogueAiVerified})
	require.NoError(t, err)
	require.Len(t, eligible, 2)
	ids := []uuid.UUID{eligible[0].ID, eligible[1].ID}
	require.Contains(t, ids, relevant.ID)
	require.Contains(t, ids, verified.ID)
}

func TestCatalogueStoreListFilter(t *testing.T) {
	t.Parallel()

	s := NewCatalogueStore()
	ctx := context.Background()

	_, err := s.Upsert(ctx, store.CatalogueEntry{
		DistributorCode: parser.DistributorDrakkar,
		BandName:        "Behexen",
		AlbumTitle:      "By the Blessing of Satan",
		DetailURL:       "https://drakkar.example/behexen",
		Status:          store.CatalogueNew,
	})
	require.NoError(t, err)

	got, err := s.List(ctx, store.CatalogueFilter{BandName: "behexen"})
	require.NoError(t, err)
	require.Len(t, got, 1, "band name filter should be case-insensitive")

	got, err = s.List(ctx, store.CatalogueFilter{BandName: "Marduk"})
	require.NoError(t, err)
	require.Empty(t, got)
}
