package state_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/state"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/testutil"
)

func TestStores(t *testing.T) {
	t.Parallel()

	backends := map[string]func(t *testing.T) state.Store{
		"sql":    func(t *testing.T) state.Store { return state.NewSQLStore(testutil.NewTestDB(t)) },
		"memory": func(*testing.T) state.Store { return state.NewMemoryStore() },
	}

	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			store := newStore(t)
			ctx := t.Context()

			_, ok, err := store.GetTime(ctx, "weekly_digest_last_run")
			require.NoError(t, err)
			assert.False(t, ok)

			melbourne := time.FixedZone("AEST", 10*3600)
			first := time.Date(2026, 5, 4, 9, 0, 0, 123, melbourne)
			require.NoError(t, store.SetTime(ctx, "weekly_digest_last_run", first))

			got, ok, err := store.GetTime(ctx, "weekly_digest_last_run")
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, first.Equal(got))
			assert.Equal(t, time.UTC, got.Location())

			second := first.Add(7 * 24 * time.Hour)
			require.NoError(t, store.SetTime(ctx, "weekly_digest_last_run", second))
			got, _, err = store.GetTime(ctx, "weekly_digest_last_run")
			require.NoError(t, err)
			assert.True(t, second.Equal(got), "set overwrites")
		})
	}
}

func TestSQLStore_CorruptValue(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	require.NoError(t, db.Create(&entities.StateEntry{Name: "broken", Value: "yesterday"}).Error)

	_, _, err := state.NewSQLStore(db).GetTime(t.Context(), "broken")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
}
