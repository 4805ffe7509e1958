package state

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stratum/storage"
	"stratum/storage/pathdb"
)

// Reserved locations in the store owned by the context layer itself. Higher
// level modules operate under their own prefixes through restricted views.
var (
	versionKey       = pathdb.Path{"protocol", "version"}
	nextProtocolKey  = pathdb.Path{"protocol", "next"}
	constantsKey     = pathdb.Path{"protocol", "constants"}
	firstLevelKey    = pathdb.Path{"protocol", "first_level"}
	genesisParamsKey = pathdb.Path{"genesis", "parameters"}
	testChainKey     = pathdb.Path{"test_chain", "status"}
)

// versionTag is the store version this context implementation understands.
// Prepare refuses stores tagged with anything else.
const versionTag = "stratum.v1"

// genesisTag marks a store that has not yet been initialised by any protocol
// version. Only PrepareFirstBlock accepts it.
const genesisTag = "genesis"

// Context is one consistent view of chain state at a specific point in a
// block's processing, together with the in-flight accounting metadata of the
// current operation.
//
// A Context is immutable by convention: every mutating method returns a new
// handle and never changes the receiver. Reference fields (the tree, maps,
// big integers) are shared between handles and treated copy-on-write, so a
// failed call's result can be discarded without affecting the handle it was
// derived from. A single lineage must be threaded sequentially; concurrent
// lineages need independent handles.
type Context struct {
	db   storage.Database
	tree *pathdb.Tree

	// Restricted views rebase every key under this prefix. Empty for the
	// root context.
	prefix pathdb.Path

	level      uint64
	firstLevel uint64
	timestamp  time.Time
	fitness    [][]byte
	constants  Constants

	fees    *uint256.Int
	rewards *uint256.Int

	gasUnlimited     bool
	gasRemaining     *big.Int
	blockGasConsumed *big.Int

	storageUnlimited bool
	storageRemaining uint64

	origination    *OriginationNonce
	internalNonces map[uint64]struct{}
	nextInternal   uint64

	endorsements map[uint32]struct{}
}

// clone returns a shallow copy. Callers mutating a reference field must
// replace it with a fresh copy, never write through the shared one.
func (c *Context) clone() *Context {
	cp := *c
	return &cp
}

// Level returns the level of the block being processed.
func (c *Context) Level() uint64 { return c.level }

// FirstLevel returns the first level processed under this protocol version.
func (c *Context) FirstLevel() uint64 { return c.firstLevel }

// Timestamp returns the timestamp of the block being processed.
func (c *Context) Timestamp() time.Time { return c.timestamp }

// Fitness returns the chain-weight metadata of the block being processed.
func (c *Context) Fitness() [][]byte {
	out := make([][]byte, len(c.fitness))
	for i, f := range c.fitness {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// SetFitness replaces the fitness carried by the handle.
func (c *Context) SetFitness(fitness [][]byte) *Context {
	next := c.clone()
	next.fitness = make([][]byte, len(fitness))
	for i, f := range fitness {
		next.fitness[i] = append([]byte(nil), f...)
	}
	return next
}

// Constants returns the protocol constants in force for this context.
func (c *Context) Constants() Constants { return c.constants.clone() }

// PatchConstants applies a pure transformation to the constants and persists
// the result for the remainder of the context's lineage.
func (c *Context) PatchConstants(patch func(Constants) Constants) (*Context, error) {
	patched := patch(c.constants.clone())
	if err := patched.validate(); err != nil {
		return nil, err
	}
	encoded, err := encodeConstants(patched)
	if err != nil {
		return nil, err
	}
	next := c.clone()
	next.constants = patched
	next.tree = c.tree.Set(constantsKey, encoded)
	return next, nil
}

// RecordEndorsement marks an endorsement slot as used for the current block.
// Recording an already-used slot is a no-op; callers reject duplicates via
// EndorsementAlreadyRecorded before applying the endorsement.
func (c *Context) RecordEndorsement(slot uint32) (*Context, error) {
	if slot >= c.constants.EndorsersPerBlock {
		return nil, fmt.Errorf("context: endorsement slot %d out of range [0, %d)", slot, c.constants.EndorsersPerBlock)
	}
	if _, ok := c.endorsements[slot]; ok {
		return c, nil
	}
	next := c.clone()
	next.endorsements = make(map[uint32]struct{}, len(c.endorsements)+1)
	for s := range c.endorsements {
		next.endorsements[s] = struct{}{}
	}
	next.endorsements[slot] = struct{}{}
	return next, nil
}

// EndorsementAlreadyRecorded reports whether the slot has contributed to the
// current block.
func (c *Context) EndorsementAlreadyRecorded(slot uint32) bool {
	_, ok := c.endorsements[slot]
	return ok
}

// Commit persists the context's store snapshot to the backing database and
// returns its root hash. The handle itself is unchanged and remains usable.
func (c *Context) Commit() (common.Hash, error) {
	root, err := c.tree.Commit(c.db)
	if err != nil {
		return common.Hash{}, fmt.Errorf("commit context: %w", err)
	}
	return root, nil
}
