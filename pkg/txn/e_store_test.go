package txn

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"tiny_kv/pkg/metrics"
)

func TestStoreCommitMakesWritesVisible(t *testing.T) {
	store := NewStore(nil, nil)
	txn := store.CreateTransaction()

	require.NoError(t, store.Put("1", []byte("Hello"), txn))
	require.NoError(t, store.Put("2", []byte("Hello World"), txn))

	// buffered writes are not visible, even to the writer
	_, ok := store.Get("1")
	assert.False(t, ok)

	require.NoError(t, store.Commit(txn))

	value, ok := store.Get("1")
	assert.True(t, ok)
	assert.Equal(t, []byte("Hello"), value.Slice())
	value, ok = store.Get("2")
	assert.True(t, ok)
	assert.Equal(t, []byte("Hello World"), value.Slice())
	assert.Equal(t, Stats{Keys: 2, LastEtag: 2, PrunedTill: 1}, store.Stats())
}

func TestStoreRollbackDiscardsBuffer(t *testing.T) {
	store := NewStore(nil, nil)
	txn := store.CreateTransaction()
	require.NoError(t, store.Put("1", []byte("Hello"), txn))

	require.NoError(t, store.Rollback(txn))

	_, ok := store.Get("1")
	assert.False(t, ok)
	_, claimed := store.Owner("1")
	assert.False(t, claimed)
	assert.ErrorIs(t, store.Commit(txn), ErrTxnDone)
	assert.ErrorIs(t, store.Rollback(txn), ErrTxnDone)
}

func TestStoreConflictLeavesNoTrace(t *testing.T) {
	store := NewStore(nil, nil)
	t1 := store.CreateTransaction()
	t2 := store.CreateTransaction()

	require.NoError(t, store.Put("1", []byte("X"), t1))
	err := store.Put("1", []byte("Y"), t2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, ConflictError{Key: "1", Owner: t1.ID(), Txn: t2.ID()}, *conflict)
	assert.Equal(t, 0, t2.Len())

	assert.ErrorIs(t, store.Delete("1", t2), ErrConflict)
	assert.Equal(t, 0, t2.Len())
}

func TestStoreKeyStaysClaimedUntilPruned(t *testing.T) {
	store := NewStore(nil, nil)
	t1 := store.CreateTransaction()
	t2 := store.CreateTransaction()

	require.NoError(t, store.Put("1", []byte("X"), t1))
	require.NoError(t, store.Commit(t1))

	// t1 committed but t2 still references it, so the claim survives
	owner, ok := store.Owner("1")
	assert.True(t, ok)
	assert.Equal(t, t1.ID(), owner)
	assert.ErrorIs(t, store.Put("1", []byte("Y"), t2), ErrConflict)

	require.NoError(t, store.Rollback(t2))
	_, ok = store.Owner("1")
	assert.False(t, ok)

	t3 := store.CreateTransaction()
	require.NoError(t, store.Put("1", []byte("Z"), t3))
	require.NoError(t, store.Commit(t3))
	value, _ := store.Get("1")
	assert.Equal(t, "Z", value.String())
}

func TestStoreRepeatedWriteInTxnLastWins(t *testing.T) {
	store := NewStore(nil, nil)
	txn := store.CreateTransaction()

	require.NoError(t, store.Put("1", []byte("first"), txn))
	require.NoError(t, store.Delete("1", txn))
	require.NoError(t, store.Put("1", []byte("last"), txn))
	assert.Equal(t, 3, txn.Len())
	require.NoError(t, store.Commit(txn))

	value, ok := store.Get("1")
	assert.True(t, ok)
	assert.Equal(t, "last", value.String())
}

func TestStoreRejectsEmptyKeyAndFinishedTxn(t *testing.T) {
	store := NewStore(nil, nil)
	txn := store.CreateTransaction()

	assert.ErrorIs(t, store.Put("", []byte("x"), txn), ErrEmptyKey)
	assert.ErrorIs(t, store.Delete("", txn), ErrEmptyKey)

	require.NoError(t, store.Commit(txn))
	assert.ErrorIs(t, store.Put("late", []byte("x"), txn), ErrTxnDone)
	_, ok := store.Owner("late")
	assert.False(t, ok)
}

func TestStoreCompletesWhenReplayPanics(t *testing.T) {
	store := NewStore(nil, nil)
	blocker := store.CreateTransaction()
	txn := store.CreateTransaction()
	require.NoError(t, store.Put("1", []byte("x"), txn))

	// corrupt the published snapshot so replay panics
	store.kv.current.Store(&KvSnapshot{})
	assert.Panics(t, func() { _ = store.Commit(txn) })

	count, ok := store.RefCount(txn.ID())
	assert.True(t, ok)
	assert.Equal(t, 0, count)
	count, _ = store.RefCount(blocker.ID())
	assert.Equal(t, 1, count)

	// the commit lock was released
	store.kv.current.Store(newKvSnapshot())
	require.NoError(t, store.Rollback(blocker))
	assert.Equal(t, 0, store.Stats().TableSize)
}

func TestStoreMetricsAndLogs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	m := metrics.New("test")
	store := NewStore(zap.New(core), m)

	t1 := store.CreateTransaction()
	t2 := store.CreateTransaction()
	require.NoError(t, store.Put("a", []byte("1"), t1))
	require.NoError(t, store.Put("b", []byte("2"), t1))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ClaimedKeys))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ActiveTxns))

	assert.ErrorIs(t, store.Put("a", []byte("3"), t2), ErrConflict)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Conflicts))

	require.NoError(t, store.Commit(t1))
	require.NoError(t, store.Rollback(t2))

	assert.Equal(t, float64(0), testutil.ToFloat64(m.ActiveTxns))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ClaimedKeys))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Pruned))

	assert.Equal(t, 2, logs.FilterMessage("txn begin").Len())
	assert.Equal(t, 1, logs.FilterMessage("txn conflict").Len())
	assert.Equal(t, 1, logs.FilterMessage("txn commit").Len())
	assert.Equal(t, 1, logs.FilterMessage("txn rollback").Len())
	prune := logs.FilterMessage("txn prune").All()
	require.Len(t, prune, 1)
	assert.Equal(t, []interface{}{uint64(1), uint64(2)}, prune[0].ContextMap()["txns"])
}
