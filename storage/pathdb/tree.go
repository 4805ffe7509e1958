package pathdb

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"stratum/storage"
)

// Path is an ordered sequence of string segments identifying a location in
// the hierarchical store. Equal sequences denote the same location; empty
// segments are significant and never collapsed.
type Path []string

// String renders the path for logs and error messages.
func (p Path) String() string {
	return "/" + strings.Join(p, "/")
}

// Append returns a new path extending p with more segments. The receiver is
// never mutated, matching the copy-on-write discipline of the tree itself.
func (p Path) Append(segments ...string) Path {
	out := make(Path, 0, len(p)+len(segments))
	out = append(out, p...)
	out = append(out, segments...)
	return out
}

// Equal reports segment-wise equality.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether p starts with prefix.
func (p Path) HasPrefix(prefix Path) bool {
	if len(p) < len(prefix) {
		return false
	}
	return p[:len(prefix)].Equal(prefix)
}

// Tree is an immutable hierarchical key-value store with structural sharing.
// Every mutating method returns a new Tree; the receiver is never changed, so
// independent lineages derived from the same snapshot cannot interfere and a
// failed operation's result can simply be discarded.
//
// The zero-value-by-convention empty tree is obtained from NewTree(nil).
type Tree struct {
	root *node
}

// NewTree creates an empty in-memory tree.
func NewTree() *Tree {
	return &Tree{}
}

// Entry describes one immediate child of a directory during enumeration.
type Entry struct {
	Name  string
	Dir   bool // has at least one descendant
	Value bool // holds a value of its own
}

// Has reports whether a value is stored at path.
func (t *Tree) Has(path Path) bool {
	n := t.root.lookup(path)
	return n != nil && n.hasValue
}

// HasDir reports whether path denotes a non-empty directory, i.e. a node with
// at least one descendant, independent of whether it also holds a value.
func (t *Tree) HasDir(path Path) bool {
	return t.root.lookup(path).childCount() > 0
}

// Get returns the value stored at path. The boolean is false when absent.
func (t *Tree) Get(path Path) ([]byte, bool) {
	n := t.root.lookup(path)
	if n == nil || !n.hasValue {
		return nil, false
	}
	return append([]byte(nil), n.value...), true
}

// Set stores value at path, allocating or overwriting, and returns the
// updated tree.
func (t *Tree) Set(path Path, value []byte) *Tree {
	return &Tree{root: t.root.insert(path, value)}
}

// Delete removes the value at path. The boolean reports whether a value was
// present; when it is false the returned tree is the receiver unchanged.
func (t *Tree) Delete(path Path) (*Tree, bool) {
	root, removed := t.root.removeValue(path)
	if !removed {
		return t, false
	}
	return &Tree{root: root}, true
}

// DeleteRec removes the value at path and every descendant. It is a no-op
// when nothing exists there.
func (t *Tree) DeleteRec(path Path) *Tree {
	root, removed := t.root.removeSubtree(path)
	if !removed {
		return t
	}
	return &Tree{root: root}
}

// Copy duplicates the subtree rooted at from to to, overwriting any prior
// content at the destination. The boolean is false when the source is absent.
// Structural sharing makes the duplication O(depth), not O(subtree).
func (t *Tree) Copy(from, to Path) (*Tree, bool) {
	src := t.root.lookup(from)
	if src == nil {
		return t, false
	}
	return &Tree{root: t.root.attach(to, src)}, true
}

// Children enumerates the immediate children of path in lexicographic
// segment order.
func (t *Tree) Children(path Path) []Entry {
	n := t.root.lookup(path)
	names := n.sortedChildNames()
	if len(names) == 0 {
		return nil
	}
	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		child := n.children[name]
		entries = append(entries, Entry{
			Name:  name,
			Dir:   child.childCount() > 0,
			Value: child.hasValue,
		})
	}
	return entries
}

// Keys lists every key holding a value under path, depth-first in
// lexicographic segment order. The returned paths are absolute.
func (t *Tree) Keys(path Path) []Path {
	var out []Path
	t.walkKeys(t.root.lookup(path), path, &out)
	return out
}

func (t *Tree) walkKeys(n *node, prefix Path, out *[]Path) {
	if n == nil {
		return
	}
	if n.hasValue {
		*out = append(*out, prefix.Append())
	}
	for _, name := range n.sortedChildNames() {
		t.walkKeys(n.children[name], prefix.Append(name), out)
	}
}

// encNode is the RLP wire form of a tree node. Children reference their
// content hash so identical subtrees deduplicate in the backing database.
type encNode struct {
	HasValue bool
	Value    []byte
	Children []encChild
}

type encChild struct {
	Name string
	Hash common.Hash
}

// EmptyRoot is the commitment of the empty tree.
var EmptyRoot = func() common.Hash {
	encoded, err := rlp.EncodeToBytes(&encNode{})
	if err != nil {
		panic(err)
	}
	return ethcrypto.Keccak256Hash(encoded)
}()

// Commit persists the tree to db as content-addressed RLP nodes and returns
// the root hash. Committing never mutates the tree; the same tree can be
// committed to several databases.
func (t *Tree) Commit(db storage.Database) (common.Hash, error) {
	return commitNode(db, t.root)
}

func commitNode(db storage.Database, n *node) (common.Hash, error) {
	enc := encNode{}
	if n != nil {
		enc.HasValue = n.hasValue
		enc.Value = n.value
		for _, name := range n.sortedChildNames() {
			childHash, err := commitNode(db, n.children[name])
			if err != nil {
				return common.Hash{}, err
			}
			enc.Children = append(enc.Children, encChild{Name: name, Hash: childHash})
		}
	}
	encoded, err := rlp.EncodeToBytes(&enc)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode node: %w", err)
	}
	hash := ethcrypto.Keccak256Hash(encoded)
	ok, err := db.Has(hash.Bytes())
	if err != nil {
		return common.Hash{}, fmt.Errorf("check node %x: %w", hash, err)
	}
	if !ok {
		if err := db.Put(hash.Bytes(), encoded); err != nil {
			return common.Hash{}, fmt.Errorf("store node %x: %w", hash, err)
		}
	}
	return hash, nil
}

// Load reconstructs a tree from the content-addressed nodes rooted at root.
// A zero root or the EmptyRoot hash yields the empty tree.
func Load(db storage.Database, root common.Hash) (*Tree, error) {
	if root == (common.Hash{}) || root == EmptyRoot {
		return NewTree(), nil
	}
	n, err := loadNode(db, root, nil)
	if err != nil {
		return nil, err
	}
	return &Tree{root: n}, nil
}

func loadNode(db storage.Database, hash common.Hash, at Path) (*node, error) {
	encoded, err := db.Get(hash.Bytes())
	if err != nil {
		return nil, fmt.Errorf("load node %x at %s: %w", hash, at, err)
	}
	var enc encNode
	if err := rlp.DecodeBytes(encoded, &enc); err != nil {
		return nil, fmt.Errorf("decode node %x at %s: %w", hash, at, err)
	}
	n := &node{hasValue: enc.HasValue, value: enc.Value}
	for _, child := range enc.Children {
		loaded, err := loadNode(db, child.Hash, at.Append(child.Name))
		if err != nil {
			return nil, err
		}
		n.setChild(child.Name, loaded)
	}
	return n.pruned(), nil
}
