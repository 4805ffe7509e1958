package state

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"stratum/observability/metrics"
)

// SetGasLimit installs limit as the remaining gas budget for a fresh
// operation. It fails with ErrGasLimitTooHigh when the limit exceeds the
// protocol's per-operation ceiling; that failure is permanent, the operation
// is rejected outright.
func (c *Context) SetGasLimit(limit *big.Int) (*Context, error) {
	if limit == nil || limit.Sign() < 0 {
		return nil, fmt.Errorf("context: gas limit must be non-negative")
	}
	if limit.Cmp(c.constants.HardGasLimitPerOperation) > 0 {
		return nil, ErrGasLimitTooHigh
	}
	next := c.clone()
	next.gasUnlimited = false
	next.gasRemaining = new(big.Int).Set(limit)
	return next, nil
}

// SetGasUnlimited disables gas metering. Reserved for privileged protocol
// bookkeeping, never for user-submitted operations.
func (c *Context) SetGasUnlimited() *Context {
	next := c.clone()
	next.gasUnlimited = true
	next.gasRemaining = nil
	return next
}

// GasLevel returns the remaining gas budget of the current operation, or nil
// when metering is disabled.
func (c *Context) GasLevel() *big.Int {
	if c.gasUnlimited {
		return nil
	}
	return new(big.Int).Set(c.gasRemaining)
}

// BlockGasLevel returns the cumulative gas consumed by metered operations
// across the whole block.
func (c *Context) BlockGasLevel() *big.Int {
	return new(big.Int).Set(c.blockGasConsumed)
}

// ConsumeGas deducts cost from the remaining budget. A cost the budget cannot
// cover fails with ErrGasExhausted and leaves the receiver's level untouched;
// the caller must discard the whole operation. Unmetered contexts consume
// nothing, including block gas.
func (c *Context) ConsumeGas(cost *big.Int) (*Context, error) {
	if cost == nil || cost.Sign() < 0 {
		return nil, fmt.Errorf("context: gas cost must be non-negative")
	}
	if c.gasUnlimited {
		return c, nil
	}
	if c.gasRemaining.Cmp(cost) < 0 {
		return nil, ErrGasExhausted
	}
	blockConsumed := new(big.Int).Add(c.blockGasConsumed, cost)
	if blockConsumed.Cmp(c.constants.HardGasLimitPerBlock) > 0 {
		return nil, ErrGasExhausted
	}
	next := c.clone()
	next.gasRemaining = new(big.Int).Sub(c.gasRemaining, cost)
	next.blockGasConsumed = blockConsumed
	metrics.State().ObserveGas(cost)
	return next, nil
}

// consumeStoreGas charges the cost-model price of one mutating store call
// touching size value bytes.
func (c *Context) consumeStoreGas(size int) (*Context, error) {
	cost := new(big.Int).SetUint64(c.constants.GasPerStoreWrite)
	perByte := new(big.Int).SetUint64(c.constants.GasPerStoreByte)
	cost.Add(cost, perByte.Mul(perByte, big.NewInt(int64(size))))
	return c.ConsumeGas(cost)
}

// SetStorageLimit installs limit as the remaining storage-byte budget for a
// fresh operation, failing permanently with ErrStorageLimitTooHigh above the
// protocol ceiling.
func (c *Context) SetStorageLimit(limit uint64) (*Context, error) {
	if limit > c.constants.HardStorageLimitPerOp {
		return nil, ErrStorageLimitTooHigh
	}
	next := c.clone()
	next.storageUnlimited = false
	next.storageRemaining = limit
	return next, nil
}

// SetStorageUnlimited disables storage-byte metering.
func (c *Context) SetStorageUnlimited() *Context {
	next := c.clone()
	next.storageUnlimited = true
	next.storageRemaining = 0
	return next
}

// StorageLevel returns the remaining storage-byte budget. The boolean is
// false when metering is disabled.
func (c *Context) StorageLevel() (uint64, bool) {
	if c.storageUnlimited {
		return 0, false
	}
	return c.storageRemaining, true
}

// RecordBytesStored deducts delta newly stored bytes from the storage budget,
// failing with ErrStorageExhausted when a finite budget cannot cover them.
func (c *Context) RecordBytesStored(delta uint64) (*Context, error) {
	if c.storageUnlimited {
		return c, nil
	}
	if delta > c.storageRemaining {
		return nil, ErrStorageExhausted
	}
	next := c.clone()
	next.storageRemaining = c.storageRemaining - delta
	metrics.State().ObserveStoredBytes(delta)
	return next, nil
}

// AddFees accumulates amount into the block's fee total. Overflow of the
// underlying bounded amount fails with ErrFeesOverflow.
func (c *Context) AddFees(amount *uint256.Int) (*Context, error) {
	if amount == nil {
		return c, nil
	}
	sum, overflow := new(uint256.Int).AddOverflow(c.fees, amount)
	if overflow {
		return nil, ErrFeesOverflow
	}
	next := c.clone()
	next.fees = sum
	return next, nil
}

// AddRewards accumulates amount into the block's reward total.
func (c *Context) AddRewards(amount *uint256.Int) (*Context, error) {
	if amount == nil {
		return c, nil
	}
	sum, overflow := new(uint256.Int).AddOverflow(c.rewards, amount)
	if overflow {
		return nil, ErrRewardsOverflow
	}
	next := c.clone()
	next.rewards = sum
	return next, nil
}

// Fees returns the fees accumulated for the current block.
func (c *Context) Fees() *uint256.Int { return new(uint256.Int).Set(c.fees) }

// Rewards returns the rewards accumulated for the current block.
func (c *Context) Rewards() *uint256.Int { return new(uint256.Int).Set(c.rewards) }
