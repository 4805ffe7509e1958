package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"stratum/storage/pathdb"
)

// Constants holds the protocol-tunable values carried by every context. They
// are persisted in the store at first-block preparation and reloaded by every
// subsequent Prepare, so all nodes meter identically.
type Constants struct {
	// Hard ceilings for per-operation resource limits. SetGasLimit and
	// SetStorageLimit reject anything above these.
	HardGasLimitPerOperation *big.Int
	HardGasLimitPerBlock     *big.Int
	HardStorageLimitPerOp    uint64

	// Cost model applied to mutating store calls.
	GasPerStoreWrite uint64
	GasPerStoreByte  uint64

	// Endorsement slots available per block.
	EndorsersPerBlock uint32
}

// DefaultConstants returns the built-in parameter set used when genesis
// parameters do not override it.
func DefaultConstants() Constants {
	return Constants{
		HardGasLimitPerOperation: big.NewInt(1_040_000),
		HardGasLimitPerBlock:     big.NewInt(5_200_000),
		HardStorageLimitPerOp:    60_000,
		GasPerStoreWrite:         100,
		GasPerStoreByte:          1,
		EndorsersPerBlock:        32,
	}
}

func (c Constants) validate() error {
	if c.HardGasLimitPerOperation == nil || c.HardGasLimitPerOperation.Sign() <= 0 {
		return fmt.Errorf("constants: hard gas limit per operation must be positive")
	}
	if c.HardGasLimitPerBlock == nil || c.HardGasLimitPerBlock.Sign() <= 0 {
		return fmt.Errorf("constants: hard gas limit per block must be positive")
	}
	if c.HardGasLimitPerBlock.Cmp(c.HardGasLimitPerOperation) < 0 {
		return fmt.Errorf("constants: block gas limit below operation gas limit")
	}
	if c.EndorsersPerBlock == 0 {
		return fmt.Errorf("constants: endorsers per block must be positive")
	}
	return nil
}

// clone deep-copies the big integers so patched constants never alias the
// originals.
func (c Constants) clone() Constants {
	out := c
	if c.HardGasLimitPerOperation != nil {
		out.HardGasLimitPerOperation = new(big.Int).Set(c.HardGasLimitPerOperation)
	}
	if c.HardGasLimitPerBlock != nil {
		out.HardGasLimitPerBlock = new(big.Int).Set(c.HardGasLimitPerBlock)
	}
	return out
}

func encodeConstants(c Constants) ([]byte, error) {
	encoded, err := rlp.EncodeToBytes(&c)
	if err != nil {
		return nil, fmt.Errorf("encode constants: %w", err)
	}
	return encoded, nil
}

func decodeConstants(key pathdb.Path, data []byte) (Constants, error) {
	var c Constants
	if err := rlp.DecodeBytes(data, &c); err != nil {
		return Constants{}, &CorruptedDataError{Key: key, Err: err}
	}
	return c, nil
}
