package db

import (
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"tiny_kv/pkg/config"
	"tiny_kv/pkg/metrics"
	"tiny_kv/pkg/txn"
)

type Db struct {
	id      string
	closed  atomic.Bool
	store   *txn.Store
	logger  *zap.Logger
	metrics *metrics.Metrics
}

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	conf       *config.Config
}

type Option func(*options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer registers the store's collectors on r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

func WithConfig(conf *config.Config) Option {
	return func(o *options) { o.conf = conf }
}

// Open creates an empty in-memory store.
func Open(opts ...Option) *Db {
	o := options{logger: zap.NewNop(), conf: config.NewDefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.NewString()
	logger := o.logger.With(zap.String("store", id))

	var m *metrics.Metrics
	if o.conf.Metrics.Enabled {
		m = metrics.New(o.conf.Metrics.Namespace)
		if err := m.Register(o.registerer); err != nil {
			logger.Warn("store metrics not registered", zap.Error(err))
		}
	}

	return &Db{
		id:      id,
		store:   txn.NewStore(logger, m),
		logger:  logger,
		metrics: m,
	}
}

func (db *Db) ID() string {
	return db.id
}

// Batch runs fn as one atomic unit of work. The batch commits when fn returns
// nil. Otherwise it rolls back and returns fn's error as is, including a
// *txn.ConflictError from Put or Delete. A panic in fn rolls back and re-panics.
func (db *Db) Batch(fn func(accessor *Accessor) error) error {
	if db.closed.Load() {
		return txn.ErrStoreClosed
	}

	b := db.begin()
	defer b.abandon()

	if err := fn(b.accessor); err != nil {
		b.rollback(err)
		return err
	}
	return b.commit()
}

// Close rejects further batches. Batches already running finish normally.
func (db *Db) Close() {
	if db.closed.CompareAndSwap(false, true) {
		db.logger.Debug("store closed", zap.Any("stats", db.store.Stats()))
	}
}

func (db *Db) Stats() txn.Stats {
	return db.store.Stats()
}

// Changes lists the keys whose latest committed Put has an etag greater than
// since, oldest first.
func (db *Db) Changes(since uint64) []txn.Change {
	return db.store.Changes(since)
}
