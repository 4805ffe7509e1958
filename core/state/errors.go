package state

import (
	stderrors "errors"
	"fmt"

	"stratum/storage/pathdb"
)

var (
	// ErrIncompatibleProtocolVersion is returned by Prepare when the store's
	// recorded version tag does not match the version this implementation
	// expects. The block must be rejected.
	ErrIncompatibleProtocolVersion = stderrors.New("context: incompatible protocol version")

	// ErrGasLimitTooHigh and ErrStorageLimitTooHigh reject limits above the
	// protocol ceiling. They are permanent: the operation is never retried.
	ErrGasLimitTooHigh     = stderrors.New("context: gas limit above protocol ceiling")
	ErrStorageLimitTooHigh = stderrors.New("context: storage limit above protocol ceiling")

	// ErrGasExhausted and ErrStorageExhausted abort the current operation
	// when cumulative consumption would exceed the remaining budget.
	ErrGasExhausted     = stderrors.New("context: gas exhausted")
	ErrStorageExhausted = stderrors.New("context: storage quota exhausted")

	// ErrUndefinedOperationNonce is returned when the origination nonce is
	// read or derived before seeding, or after it has been cleared.
	ErrUndefinedOperationNonce = stderrors.New("context: undefined operation nonce")

	// ErrTooManyInternalOperations caps the internal-operation nonce space
	// for a single logical operation.
	ErrTooManyInternalOperations = stderrors.New("context: too many internal operations")

	ErrFeesOverflow    = stderrors.New("context: block fees overflow")
	ErrRewardsOverflow = stderrors.New("context: block rewards overflow")
)

// StoreOp identifies which store operation observed a missing key.
type StoreOp string

const (
	OpGet  StoreOp = "get"
	OpSet  StoreOp = "set"
	OpDel  StoreOp = "delete"
	OpCopy StoreOp = "copy"
)

// MissingKeyError reports a get/set/delete/copy against an absent key.
type MissingKeyError struct {
	Key pathdb.Path
	Op  StoreOp
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("context: missing key %s (%s)", e.Key, e.Op)
}

// ExistingKeyError reports an init against a key that already holds a value.
type ExistingKeyError struct {
	Key pathdb.Path
}

func (e *ExistingKeyError) Error() string {
	return fmt.Sprintf("context: existing key %s", e.Key)
}

// CorruptedDataError reports stored bytes that failed structural decoding.
// It should not occur in a correctly-operated store.
type CorruptedDataError struct {
	Key pathdb.Path
	Err error
}

func (e *CorruptedDataError) Error() string {
	return fmt.Sprintf("context: corrupted data at %s: %v", e.Key, e.Err)
}

func (e *CorruptedDataError) Unwrap() error { return e.Err }
