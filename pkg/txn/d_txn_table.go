package txn

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tidwall/btree"
)

type txnRecord struct {
	txn      *Txn
	refCount int // itself + each later txn that tracked it, still outstanding
	done     bool
}

// TransactionTable maps txn id -> record, ordered by id. Creation and
// completion+pruning are the two atomic sections, both under lock.
type TransactionTable struct {
	lock    sync.Mutex
	nextID  uint64
	records btree.Map[uint64, *txnRecord]
	active  btree.Set[uint64] // created and not yet completed

	// every id <= prunedTill has been removed from records
	prunedTill atomic.Uint64
	owners     *OwnershipTable
}

func NewTransactionTable(owners *OwnershipTable) *TransactionTable {
	return &TransactionTable{owners: owners}
}

// Create allocates the next id, snapshots the active ids as predecessors and
// takes one reference on each of them, then inserts the new txn with a count of one.
func (t *TransactionTable) Create() *Txn {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.nextID++
	txn := &Txn{id: t.nextID, table: t}

	t.active.Scan(func(id uint64) bool {
		record, _ := t.records.Get(id)
		record.refCount++
		txn.preds.Insert(id)
		return true
	})

	t.records.Set(txn.id, &txnRecord{txn: txn, refCount: 1})
	t.active.Insert(txn.id)
	return txn
}

func (t *TransactionTable) complete(txn *Txn) {
	t.lock.Lock()
	defer t.lock.Unlock()

	record, ok := t.records.Get(txn.id)
	if !ok || record.done {
		panic(fmt.Sprintf("txn %d: completed twice or not registered", txn.id))
	}
	record.done = true
	t.active.Delete(txn.id)
	t.release(record)

	txn.preds.Scan(func(id uint64) bool {
		pred, ok := t.records.Get(id)
		if !ok {
			panic(fmt.Sprintf("txn %d: predecessor %d pruned while still referenced", txn.id, id))
		}
		t.release(pred)
		return true
	})
}

func (t *TransactionTable) release(record *txnRecord) {
	if record.refCount == 0 {
		panic(fmt.Sprintf("txn %d: reference count below zero", record.txn.id))
	}
	record.refCount--
}

// Prune removes the leading run of records with a zero reference count,
// stopping at the first one still referenced, and drops their key claims.
func (t *TransactionTable) Prune() []uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	var pruned []uint64
	t.records.Scan(func(id uint64, record *txnRecord) bool {
		if record.refCount > 0 {
			return false
		}
		pruned = append(pruned, id)
		return true
	})
	if len(pruned) == 0 {
		return nil
	}

	for _, id := range pruned {
		t.records.Delete(id)
	}
	t.owners.Release(pruned...)
	t.prunedTill.Store(pruned[len(pruned)-1])
	return pruned
}

func (t *TransactionTable) PrunedTill() uint64 {
	return t.prunedTill.Load()
}

// RefCount reports the current count of id, false once it has been pruned.
func (t *TransactionTable) RefCount(id uint64) (int, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()

	record, ok := t.records.Get(id)
	if !ok {
		return 0, false
	}
	return record.refCount, true
}

func (t *TransactionTable) Len() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.records.Len()
}

func (t *TransactionTable) ActiveLen() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.active.Len()
}
