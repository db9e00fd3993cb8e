package txn

import (
	"sync/atomic"

	"github.com/tidwall/btree"
)

type kvEntry struct {
	key   string
	value Value
	etag  uint64
}

// Change reports the current etag of a committed key.
type Change struct {
	Etag uint64
	Key  string
}

// KvSnapshot is an immutable view of the committed state. Once published it is
// only read, so readers can use it without holding any store lock.
type KvSnapshot struct {
	entries  *btree.BTreeG[kvEntry]
	etags    *btree.BTreeG[Pair[uint64, string]] // etag -> key
	lastEtag uint64
}

func newKvSnapshot() *KvSnapshot {
	return &KvSnapshot{
		entries: btree.NewBTreeG(func(a, b kvEntry) bool {
			return a.key < b.key
		}),
		etags: btree.NewBTreeG(func(a, b Pair[uint64, string]) bool {
			return a.Key < b.Key
		}),
	}
}

func (snapshot *KvSnapshot) Get(key string) (Value, bool) {
	entry, ok := snapshot.entries.Get(kvEntry{key: key})
	if !ok {
		return Value{}, false
	}
	return entry.value, true
}

func (snapshot *KvSnapshot) Len() int {
	return snapshot.entries.Len()
}

// ChangesSince lists keys whose current etag is greater than since, ascending.
func (snapshot *KvSnapshot) ChangesSince(since uint64) []Change {
	var changes []Change
	snapshot.etags.Ascend(Pair[uint64, string]{Key: since}, func(item Pair[uint64, string]) bool {
		if item.Key > since {
			changes = append(changes, Change{Etag: item.Key, Key: item.Val})
		}
		return true
	})
	return changes
}

func (snapshot *KvSnapshot) copy() *KvSnapshot {
	return &KvSnapshot{
		entries:  snapshot.entries.Copy(),
		etags:    snapshot.etags.Copy(),
		lastEtag: snapshot.lastEtag,
	}
}

func (snapshot *KvSnapshot) apply(op Operation) {
	switch op.Kind {
	case PutOp:
		snapshot.lastEtag++
		prev, replaced := snapshot.entries.Set(kvEntry{key: op.Key, value: op.Value, etag: snapshot.lastEtag})
		if replaced {
			snapshot.etags.Delete(Pair[uint64, string]{Key: prev.etag})
		}
		snapshot.etags.Set(Pair[uint64, string]{Key: snapshot.lastEtag, Val: op.Key})
	case DeleteOp:
		if prev, deleted := snapshot.entries.Delete(kvEntry{key: op.Key}); deleted {
			snapshot.etags.Delete(Pair[uint64, string]{Key: prev.etag})
		}
	}
}

// KvTable owns the committed key -> value state. Apply must only be called
// from the serialized commit section.
type KvTable struct {
	current atomic.Pointer[KvSnapshot]
}

func NewKvTable() *KvTable {
	table := &KvTable{}
	table.current.Store(newKvSnapshot())
	return table
}

func (table *KvTable) Snapshot() *KvSnapshot {
	return table.current.Load()
}

func (table *KvTable) Get(key string) (Value, bool) {
	return table.Snapshot().Get(key)
}

// Apply replays ops in order on a copy of the current state and publishes the
// copy, so a batch becomes visible all at once.
func (table *KvTable) Apply(ops []Operation) {
	next := table.Snapshot().copy()
	for _, op := range ops {
		next.apply(op)
	}
	table.current.Store(next)
}
