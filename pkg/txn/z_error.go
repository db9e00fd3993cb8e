package txn

import (
	"fmt"

	"github.com/pkg/errors"
)

var ErrConflict = errors.New("txn has conflict, key is claimed by another txn")
var ErrEmptyKey = errors.New("key is empty")
var ErrTxnDone = errors.New("txn is already committed or rolled back")
var ErrStoreClosed = errors.New("store is closed, can not perform the operation")

// ConflictError is returned by Put and Delete when the key is claimed by
// another transaction. It matches ErrConflict under errors.Is.
type ConflictError struct {
	Key   string
	Owner uint64
	Txn   uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("txn %d: key %q is claimed by txn %d: %v", e.Txn, e.Key, e.Owner, ErrConflict)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}
