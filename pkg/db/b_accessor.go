package db

import "tiny_kv/pkg/txn"

// Accessor binds Get, Put and Delete to the transaction of one batch.
type Accessor struct {
	store       *txn.Store
	transaction *txn.Txn
}

// Get returns the committed value of key. Writes buffered by this batch are not visible.
func (a *Accessor) Get(key string) (txn.Value, bool) {
	return a.store.Get(key)
}

func (a *Accessor) Put(key string, value []byte) error {
	return a.store.Put(key, value, a.transaction)
}

func (a *Accessor) Delete(key string) error {
	return a.store.Delete(key, a.transaction)
}
