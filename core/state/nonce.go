package state

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"lukechampine.com/blake3"
)

// entityHRP is the bech32 human-readable part of originated entity IDs.
const entityHRP = "srt"

// maxInternalNonce bounds the internal-operation nonce space of one logical
// operation.
const maxInternalNonce = 65535

// OriginationNonce mints globally-unique identifiers for stateful entities
// created within one chain of operations. It is seeded from the hash of the
// enclosing operation and strictly increases on each derivation.
type OriginationNonce struct {
	operation common.Hash
	index     uint32
}

// Operation returns the seeding operation hash.
func (n OriginationNonce) Operation() common.Hash { return n.operation }

// Index returns the derivation counter within the operation.
func (n OriginationNonce) Index() uint32 { return n.index }

// EntityID is the identifier of an originated stateful entity.
type EntityID [20]byte

// EntityID derives the identifier minted by this nonce value. Distinct
// (operation, index) pairs yield distinct identifiers.
func (n OriginationNonce) EntityID() EntityID {
	var buf [36]byte
	copy(buf[:32], n.operation[:])
	binary.BigEndian.PutUint32(buf[32:], n.index)
	sum := blake3.Sum256(buf[:])
	var id EntityID
	copy(id[:], sum[:20])
	return id
}

// String renders the entity ID in its textual bech32 form.
func (id EntityID) String() string {
	converted, err := bech32.ConvertBits(id[:], 8, 5, true)
	if err != nil {
		panic(fmt.Sprintf("convert entity id bits: %v", err))
	}
	encoded, err := bech32.Encode(entityHRP, converted)
	if err != nil {
		panic(fmt.Sprintf("encode entity id: %v", err))
	}
	return encoded
}

// ParseEntityID decodes the textual bech32 form of an entity ID.
func ParseEntityID(s string) (EntityID, error) {
	var id EntityID
	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return id, fmt.Errorf("decode entity id: %w", err)
	}
	if hrp != entityHRP {
		return id, fmt.Errorf("decode entity id: unsupported hrp %q", hrp)
	}
	decoded, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return id, fmt.Errorf("decode entity id: %w", err)
	}
	if len(decoded) != len(id) {
		return id, fmt.Errorf("decode entity id: invalid length %d", len(decoded))
	}
	copy(id[:], decoded)
	return id, nil
}

// InitOriginationNonce seeds the per-operation nonce from the hash of the
// enclosing operation. Operation boundaries call UnsetOriginationNonce, so
// re-seeding replaces any stale seed deterministically.
func (c *Context) InitOriginationNonce(operation common.Hash) *Context {
	next := c.clone()
	next.origination = &OriginationNonce{operation: operation}
	return next
}

// OriginationNonce returns the current nonce value, failing with
// ErrUndefinedOperationNonce before seeding or after clearing.
func (c *Context) OriginationNonce() (OriginationNonce, error) {
	if c.origination == nil {
		return OriginationNonce{}, ErrUndefinedOperationNonce
	}
	return *c.origination, nil
}

// IncrementOriginationNonce returns the current nonce value and advances the
// counter so the next derivation yields a distinct value.
func (c *Context) IncrementOriginationNonce() (*Context, OriginationNonce, error) {
	if c.origination == nil {
		return nil, OriginationNonce{}, ErrUndefinedOperationNonce
	}
	current := *c.origination
	next := c.clone()
	next.origination = &OriginationNonce{
		operation: current.operation,
		index:     current.index + 1,
	}
	return next, current, nil
}

// UnsetOriginationNonce clears the seed. Further derivation fails until the
// context is re-seeded, preventing cross-operation nonce leakage.
func (c *Context) UnsetOriginationNonce() *Context {
	next := c.clone()
	next.origination = nil
	return next
}

// ResetInternalNonce clears the taken internal-operation nonces for a fresh
// operation.
func (c *Context) ResetInternalNonce() *Context {
	next := c.clone()
	next.internalNonces = nil
	next.nextInternal = 0
	return next
}

// FreshInternalNonce returns the next internal-operation nonce that has never
// been issued or recorded within this lineage. The nonce space of one
// operation is bounded; exceeding it fails permanently.
func (c *Context) FreshInternalNonce() (*Context, uint64, error) {
	candidate := c.nextInternal
	for {
		if candidate > maxInternalNonce {
			return nil, 0, ErrTooManyInternalOperations
		}
		if _, taken := c.internalNonces[candidate]; !taken {
			break
		}
		candidate++
	}
	next := c.clone()
	next.nextInternal = candidate + 1
	return next, candidate, nil
}

// RecordInternalNonce marks nonce as permanently consumed for this lineage.
// Recording the same value twice leaves the set unchanged.
func (c *Context) RecordInternalNonce(nonce uint64) *Context {
	if _, taken := c.internalNonces[nonce]; taken {
		return c
	}
	next := c.clone()
	next.internalNonces = make(map[uint64]struct{}, len(c.internalNonces)+1)
	for n := range c.internalNonces {
		next.internalNonces[n] = struct{}{}
	}
	next.internalNonces[nonce] = struct{}{}
	return next
}

// InternalNonceAlreadyRecorded is the replay-detection primitive: any
// internal operation carrying a recorded nonce must be rejected by the caller
// as a duplicate.
func (c *Context) InternalNonceAlreadyRecorded(nonce uint64) bool {
	_, taken := c.internalNonces[nonce]
	return taken
}
