package guardian_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echolock/echolock/guardian"
)

func TestStoreUpsertGetRoundTrip(t *testing.T) {
	store := guardian.NewStore(t.TempDir())
	rec := guardian.Record{SwitchID: "s1", ShareIndex: 1, ThresholdSeconds: 3600}
	require.NoError(t, store.Upsert(rec))

	got, ok, err := store.Get("s1", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3600), got.ThresholdSeconds)
}

func TestStoreGetMissingReturnsNotFound(t *testing.T) {
	store := guardian.NewStore(t.TempDir())
	_, ok, err := store.Get("nope", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreUpdateAllMutatesEveryRecord(t *testing.T) {
	store := guardian.NewStore(t.TempDir())
	require.NoError(t, store.Upsert(guardian.Record{SwitchID: "s1", ShareIndex: 1}))
	require.NoError(t, store.Upsert(guardian.Record{SwitchID: "s2", ShareIndex: 1}))

	require.NoError(t, store.UpdateAll(func(r *guardian.Record) {
		r.Released = true
	}))

	all, err := store.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, r := range all {
		assert.True(t, r.Released)
	}
}

func TestStorePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	store1 := guardian.NewStore(dir)
	require.NoError(t, store1.Upsert(guardian.Record{SwitchID: "s1", ShareIndex: 1}))

	store2 := guardian.NewStore(dir)
	all, err := store2.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
}
