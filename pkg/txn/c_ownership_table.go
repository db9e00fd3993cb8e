package txn

import "sync"

// OwnershipTable maps a key to the transaction holding an uncommitted claim
// on it. A key has at most one owner; the claim lives until the owner is pruned.
type OwnershipTable struct {
	lock   sync.Mutex
	owners map[string]uint64   // key -> txn id
	claims map[uint64][]string // txn id -> claimed keys
}

func NewOwnershipTable() *OwnershipTable {
	return &OwnershipTable{
		owners: make(map[string]uint64),
		claims: make(map[uint64][]string),
	}
}

// Claim is a compare-and-set: it succeeds when the key is unclaimed or
// already claimed by id. It never waits. The current owner is returned either way.
func (o *OwnershipTable) Claim(key string, id uint64) (uint64, bool) {
	o.lock.Lock()
	defer o.lock.Unlock()

	if owner, ok := o.owners[key]; ok {
		return owner, owner == id
	}
	o.owners[key] = id
	o.claims[id] = append(o.claims[id], key)
	return id, true
}

func (o *OwnershipTable) Owner(key string) (uint64, bool) {
	o.lock.Lock()
	defer o.lock.Unlock()

	owner, ok := o.owners[key]
	return owner, ok
}

// Release drops every claim held by ids and returns how many keys were freed.
func (o *OwnershipTable) Release(ids ...uint64) int {
	o.lock.Lock()
	defer o.lock.Unlock()

	released := 0
	for _, id := range ids {
		for _, key := range o.claims[id] {
			if o.owners[key] == id {
				delete(o.owners, key)
				released++
			}
		}
		delete(o.claims, id)
	}
	return released
}

func (o *OwnershipTable) Len() int {
	o.lock.Lock()
	defer o.lock.Unlock()

	return len(o.owners)
}
