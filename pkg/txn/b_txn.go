package txn

import (
	"sync"

	"github.com/tidwall/btree"
)

// Txn buffers one unit of work. Its reference count lives in the
// TransactionTable and is only changed through the table.
type Txn struct {
	id    uint64
	preds btree.Set[uint64] // txns active when this one was created
	table *TransactionTable

	lock   sync.Mutex
	ops    []Operation
	sealed bool

	completeOnce sync.Once
}

func (txn *Txn) ID() uint64 {
	return txn.id
}

func (txn *Txn) Predecessors() []uint64 {
	var ids []uint64
	txn.preds.Scan(func(id uint64) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

// AddOperation runs claim and, if it succeeds, appends op to the buffer.
// Both happen under the txn lock so no claim can be made once the txn is sealed.
func (txn *Txn) AddOperation(op Operation, claim func(op Operation) error) error {
	txn.lock.Lock()
	defer txn.lock.Unlock()

	if txn.sealed {
		return ErrTxnDone
	}
	if err := claim(op); err != nil {
		return err
	}
	txn.ops = append(txn.ops, op)
	return nil
}

func (txn *Txn) Len() int {
	txn.lock.Lock()
	defer txn.lock.Unlock()

	return len(txn.ops)
}

// seal stops further writes and hands back the buffer. Only the first caller
// gets ok == true.
func (txn *Txn) seal() (ops []Operation, ok bool) {
	txn.lock.Lock()
	defer txn.lock.Unlock()

	if txn.sealed {
		return nil, false
	}
	txn.sealed = true
	ops, txn.ops = txn.ops, nil
	return ops, true
}

// complete releases this txn's own reference and the one it holds on each
// predecessor. Calls after the first are no-ops.
func (txn *Txn) complete() {
	txn.completeOnce.Do(func() {
		txn.seal()
		txn.table.complete(txn)
	})
}
