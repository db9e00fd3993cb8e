package txn

import (
	"sync"

	"go.uber.org/zap"

	"tiny_kv/pkg/metrics"
)

// Store ties the three tables together. The commit lock guards KvTable
// replay and nothing else.
type Store struct {
	commitLock sync.Mutex

	kv      *KvTable
	owners  *OwnershipTable
	txns    *TransactionTable
	logger  *zap.Logger
	metrics *metrics.Metrics
}

type Stats struct {
	ActiveTxns  int
	TableSize   int
	ClaimedKeys int
	Keys        int
	LastEtag    uint64
	PrunedTill  uint64
}

func NewStore(logger *zap.Logger, m *metrics.Metrics) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	owners := NewOwnershipTable()
	return &Store{
		kv:      NewKvTable(),
		owners:  owners,
		txns:    NewTransactionTable(owners),
		logger:  logger,
		metrics: m,
	}
}

func (s *Store) CreateTransaction() *Txn {
	txn := s.txns.Create()
	if s.metrics != nil {
		s.metrics.ActiveTxns.Inc()
	}
	s.logger.Debug("txn begin",
		zap.Uint64("txn", txn.ID()),
		zap.Uint64s("predecessors", txn.Predecessors()))
	return txn
}

// Get reads committed state only; the caller's own buffer is never visible.
func (s *Store) Get(key string) (Value, bool) {
	return s.kv.Get(key)
}

func (s *Store) Put(key string, value []byte, txn *Txn) error {
	return s.write(txn, Operation{Kind: PutOp, Key: key, Value: NewValue(value)})
}

func (s *Store) Delete(key string, txn *Txn) error {
	return s.write(txn, Operation{Kind: DeleteOp, Key: key})
}

func (s *Store) write(txn *Txn, op Operation) error {
	if len(op.Key) == 0 {
		return ErrEmptyKey
	}
	return txn.AddOperation(op, s.claim(txn))
}

func (s *Store) claim(txn *Txn) func(op Operation) error {
	return func(op Operation) error {
		owner, ok := s.owners.Claim(op.Key, txn.ID())
		if ok {
			if s.metrics != nil {
				s.metrics.ClaimedKeys.Set(float64(s.owners.Len()))
			}
			return nil
		}
		if s.metrics != nil {
			s.metrics.Conflicts.Inc()
		}
		s.logger.Debug("txn conflict",
			zap.Uint64("txn", txn.ID()),
			zap.String("key", op.Key),
			zap.Stringer("op", op.Kind),
			zap.Uint64("owner", owner))
		return &ConflictError{Key: op.Key, Owner: owner, Txn: txn.ID()}
	}
}

// Commit replays the buffer under the commit lock. Completion and pruning run
// even if replay panics.
func (s *Store) Commit(txn *Txn) error {
	ops, ok := txn.seal()
	if !ok {
		return ErrTxnDone
	}
	defer s.finish(txn)

	if len(ops) == 0 {
		return nil
	}

	s.commitLock.Lock()
	defer s.commitLock.Unlock()

	// LevelDB.BatchWrite would go here for a durable backend.
	s.kv.Apply(ops)

	if s.metrics != nil {
		s.metrics.CommitOps.Observe(float64(len(ops)))
	}
	s.logger.Debug("txn commit", zap.Uint64("txn", txn.ID()), zap.Int("ops", len(ops)))
	return nil
}

func (s *Store) Rollback(txn *Txn) error {
	ops, ok := txn.seal()
	if !ok {
		return ErrTxnDone
	}
	defer s.finish(txn)

	s.logger.Debug("txn rollback", zap.Uint64("txn", txn.ID()), zap.Int("discarded", len(ops)))
	return nil
}

func (s *Store) finish(txn *Txn) {
	txn.complete()
	if s.metrics != nil {
		s.metrics.ActiveTxns.Dec()
	}
	s.Prune()
}

// Prune drops the oldest contiguous run of unreferenced txns and their key claims.
func (s *Store) Prune() []uint64 {
	pruned := s.txns.Prune()
	if len(pruned) == 0 {
		return nil
	}
	if s.metrics != nil {
		s.metrics.Pruned.Add(float64(len(pruned)))
		s.metrics.ClaimedKeys.Set(float64(s.owners.Len()))
	}
	s.logger.Debug("txn prune", zap.Uint64s("txns", pruned))
	return pruned
}

func (s *Store) Owner(key string) (uint64, bool) {
	return s.owners.Owner(key)
}

func (s *Store) RefCount(id uint64) (int, bool) {
	return s.txns.RefCount(id)
}

func (s *Store) Changes(since uint64) []Change {
	return s.kv.Snapshot().ChangesSince(since)
}

func (s *Store) Stats() Stats {
	snapshot := s.kv.Snapshot()
	return Stats{
		ActiveTxns:  s.txns.ActiveLen(),
		TableSize:   s.txns.Len(),
		ClaimedKeys: s.owners.Len(),
		Keys:        snapshot.Len(),
		LastEtag:    snapshot.lastEtag,
		PrunedTill:  s.txns.PrunedTill(),
	}
}
