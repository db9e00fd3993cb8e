package db

import (
	"go.uber.org/zap"

	"tiny_kv/pkg/metrics"
	"tiny_kv/pkg/txn"
)

type State int

const (
	Active State = iota
	Committed
	RolledBack
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

type batch struct {
	db          *Db
	transaction *txn.Txn
	accessor    *Accessor
	state       State
}

func (db *Db) begin() *batch {
	transaction := db.store.CreateTransaction()
	return &batch{
		db:          db,
		transaction: transaction,
		accessor:    &Accessor{store: db.store, transaction: transaction},
		state:       Active,
	}
}

func (b *batch) commit() error {
	if err := b.db.store.Commit(b.transaction); err != nil {
		return err
	}
	b.transition(Committed)
	return nil
}

func (b *batch) rollback(cause error) {
	_ = b.db.store.Rollback(b.transaction)
	b.transition(RolledBack)
	b.db.logger.Debug("batch rolled back",
		zap.Uint64("txn", b.transaction.ID()),
		zap.Error(cause))
}

// abandon is deferred by Batch. A batch still active here means the unit of
// work or the commit panicked or called runtime.Goexit; roll back either way
// and let a panic continue.
func (b *batch) abandon() {
	r := recover()
	if b.state != Active {
		if r != nil {
			panic(r)
		}
		return
	}

	_ = b.db.store.Rollback(b.transaction)
	b.transition(RolledBack)
	b.db.logger.Debug("batch abandoned",
		zap.Uint64("txn", b.transaction.ID()),
		zap.Any("panic", r))
	if r != nil {
		panic(r)
	}
}

func (b *batch) transition(to State) {
	b.state = to
	if b.db.metrics == nil {
		return
	}
	switch to {
	case Committed:
		b.db.metrics.Batches.WithLabelValues(metrics.OutcomeCommitted).Inc()
	case RolledBack:
		b.db.metrics.Batches.WithLabelValues(metrics.OutcomeRolledBack).Inc()
	}
}
