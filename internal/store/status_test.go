package store_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/metaltracker/parser-service/internal/store"
)

func TestSessionStatusTransitions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from    store.SessionStatus
		to      store.SessionStatus
		allowed bool
	}{
		{store.SessionIncomplete, store.SessionParsed, true},
		{store.SessionIncomplete, store.SessionFailed, true},
		{store.SessionIncomplete, store.SessionPublished, false},
		{store.SessionIncomplete, store.SessionIncomplete, false},
		{store.SessionParsed, store.SessionPublished, true},
		{store.SessionParsed, store.SessionFailed, true},
		{store.SessionParsed, store.SessionIncomplete, false},
		{store.SessionPublished, store.SessionParsed, false},
		{store.SessionPublished, store.SessionFailed, false},
		{store.SessionFailed, store.SessionIncomplete, false},
		{store.SessionFailed, store.SessionParsed, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(string(tc.from)+"_to_"+string(tc.to), func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.allowed, tc.from.CanTransition(tc.to))
			err := store.CheckTransition(tc.from, tc.to)
			if tc.allowed {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestSessionStatusTerminal(t *testing.T) {
	t.Parallel()

	require.False(t, store.SessionIncomplete.Terminal())
	require.False(t, store.SessionParsed.Terminal())
	require.True(t, store.SessionPublished.Terminal())
	require.True(t, store.SessionFailed.Terminal())
}

func TestSessionStatusValid(t *testing.T) {
	t.Parallel()

	for _, s := range []store.SessionStatus{
		store.SessionIncomplete,
		store.SessionParsed,
		store.SessionPublished,
		store.SessionFailed,
	} {
		require.True(t, s.Valid(), s)
	}
	require.False(t, store.SessionStatus("pending").Valid())
	require.Error(t, store.CheckTransition(store.SessionStatus("pending"), store.SessionParsed))
}

func TestCatalogueStatusValid(t *testing.T) {
	t.Parallel()

	for _, s := range []store.CatalogueStatus{
		store.CatalogueNew,
		store.CatalogueRelevant,
		store.CatalogueNotRelevant,
		store.CataloguePendingReview,
		store.CatalogueAiVerified,
		store.CatalogueProcessed,
	} {
		require.True(t, s.Valid(), s)
	}
	require.False(t, store.CatalogueStatus("archived").Valid())
}
