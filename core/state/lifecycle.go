package state

import (
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"stratum/storage"
	"stratum/storage/pathdb"
)

// Prepare constructs a context for processing a block on top of an existing
// store snapshot. The store must carry the version tag this implementation
// understands; any other tag fails with ErrIncompatibleProtocolVersion and
// the block must be rejected.
//
// The returned handle starts with unmetered gas and storage budgets; the
// per-operation limits are installed by SetGasLimit/SetStorageLimit when each
// operation begins.
func Prepare(db storage.Database, root common.Hash, level uint64, timestamp time.Time, fitness [][]byte) (*Context, error) {
	tree, err := pathdb.Load(db, root)
	if err != nil {
		return nil, fmt.Errorf("prepare context: %w", err)
	}
	tag, ok := tree.Get(versionKey)
	if !ok {
		return nil, fmt.Errorf("%w: store carries no version tag", ErrIncompatibleProtocolVersion)
	}
	if string(tag) != versionTag {
		return nil, fmt.Errorf("%w: store tagged %q, expected %q", ErrIncompatibleProtocolVersion, tag, versionTag)
	}

	encoded, ok := tree.Get(constantsKey)
	if !ok {
		return nil, &CorruptedDataError{Key: constantsKey, Err: fmt.Errorf("constants missing from versioned store")}
	}
	constants, err := decodeConstants(constantsKey, encoded)
	if err != nil {
		return nil, err
	}

	rawFirst, ok := tree.Get(firstLevelKey)
	if !ok {
		return nil, &CorruptedDataError{Key: firstLevelKey, Err: fmt.Errorf("first level missing from versioned store")}
	}
	var firstLevel uint64
	if err := rlp.DecodeBytes(rawFirst, &firstLevel); err != nil {
		return nil, &CorruptedDataError{Key: firstLevelKey, Err: err}
	}

	return newContext(db, tree, level, firstLevel, timestamp, fitness, constants), nil
}

// PrepareFirstBlock is the entry point for the very first block processed
// under this protocol version, at genesis or at a migration boundary. It
// consumes the genesis parameter blob seeded into the store, installs the
// version tag, constants and first level, and additionally returns the
// resolved parameter set.
func PrepareFirstBlock(db storage.Database, root common.Hash, level uint64, timestamp time.Time, fitness [][]byte) (*GenesisParams, *Context, error) {
	tree, err := pathdb.Load(db, root)
	if err != nil {
		return nil, nil, fmt.Errorf("prepare first block: %w", err)
	}
	if tag, ok := tree.Get(versionKey); ok && string(tag) != genesisTag {
		return nil, nil, fmt.Errorf("%w: store already tagged %q", ErrIncompatibleProtocolVersion, tag)
	}

	params := &GenesisParams{}
	constants := DefaultConstants()
	if raw, ok := tree.Get(genesisParamsKey); ok {
		params, constants, err = parseGenesisParams(raw)
		if err != nil {
			return nil, nil, err
		}
		tree = tree.DeleteRec(genesisParamsKey)
	}

	encoded, err := encodeConstants(constants)
	if err != nil {
		return nil, nil, err
	}
	rawFirst, err := rlp.EncodeToBytes(level)
	if err != nil {
		return nil, nil, fmt.Errorf("encode first level: %w", err)
	}
	tree = tree.Set(versionKey, []byte(versionTag))
	tree = tree.Set(constantsKey, encoded)
	tree = tree.Set(firstLevelKey, rawFirst)

	slog.Info("prepared first block",
		slog.Uint64("level", level),
		slog.String("chain", params.ChainName),
		slog.Time("timestamp", timestamp))

	return params, newContext(db, tree, level, level, timestamp, fitness, constants), nil
}

func newContext(db storage.Database, tree *pathdb.Tree, level, firstLevel uint64, timestamp time.Time, fitness [][]byte, constants Constants) *Context {
	ctx := &Context{
		db:               db,
		tree:             tree,
		level:            level,
		firstLevel:       firstLevel,
		timestamp:        timestamp,
		constants:        constants,
		fees:             uint256.NewInt(0),
		rewards:          uint256.NewInt(0),
		gasUnlimited:     true,
		blockGasConsumed: new(big.Int),
		storageUnlimited: true,
	}
	ctx.fitness = make([][]byte, len(fitness))
	for i, f := range fitness {
		ctx.fitness[i] = append([]byte(nil), f...)
	}
	return ctx
}

// Activate records that the chain migrates to a different protocol version as
// of this block. This is purely a metadata write; the actual state migration
// belongs to the successor protocol.
func (c *Context) Activate(protocol common.Hash) *Context {
	next := c.clone()
	next.tree = c.tree.Set(nextProtocolKey, protocol.Bytes())
	slog.Info("activated successor protocol",
		slog.Uint64("level", c.level),
		slog.String("protocol", protocol.Hex()))
	return next
}

// NextProtocol returns the protocol hash recorded by Activate. The boolean is
// false while no activation is pending.
func (c *Context) NextProtocol() (common.Hash, bool) {
	raw, ok := c.tree.Get(nextProtocolKey)
	if !ok {
		return common.Hash{}, false
	}
	return common.BytesToHash(raw), true
}

// testChainStatus is the RLP form of the pending test-chain fork record.
type testChainStatus struct {
	Protocol   common.Hash
	Expiration uint64
}

// ForkTestChain derives an ephemeral alternate-chain context for sandbox
// protocol evaluation. The fork shares the store snapshot but none of the
// main chain's accounting state: budgets, fees, nonces and endorsement slots
// all start fresh.
func (c *Context) ForkTestChain(protocol common.Hash, expiration time.Time) (*Context, error) {
	status := testChainStatus{
		Protocol:   protocol,
		Expiration: uint64(expiration.Unix()),
	}
	encoded, err := rlp.EncodeToBytes(&status)
	if err != nil {
		return nil, fmt.Errorf("encode test chain status: %w", err)
	}
	fork := newContext(c.db, c.tree.Set(testChainKey, encoded), c.level, c.firstLevel, c.timestamp, c.fitness, c.constants)
	slog.Info("forked test chain",
		slog.Uint64("level", c.level),
		slog.String("protocol", protocol.Hex()),
		slog.Time("expiration", expiration))
	return fork, nil
}

// TestChainStatus reports the pending test-chain fork, if any.
func (c *Context) TestChainStatus() (common.Hash, time.Time, bool) {
	raw, ok := c.tree.Get(testChainKey)
	if !ok {
		return common.Hash{}, time.Time{}, false
	}
	var status testChainStatus
	if err := rlp.DecodeBytes(raw, &status); err != nil {
		return common.Hash{}, time.Time{}, false
	}
	return status.Protocol, time.Unix(int64(status.Expiration), 0).UTC(), true
}
