package state

import (
	"stratum/observability/metrics"
	"stratum/storage/pathdb"
)

// DirEntry tags one immediate child during Fold: a leaf key or a
// sub-directory. Keys are expressed in the context's own coordinate space, so
// restricted views see them relative to their prefix.
type DirEntry struct {
	Key pathdb.Path
	Dir bool
}

// abs rebases a key into the root coordinate space. For the root context this
// is the identity.
func (c *Context) abs(key pathdb.Path) pathdb.Path {
	if len(c.prefix) == 0 {
		return key
	}
	return c.prefix.Append(key...)
}

// Mem reports whether a value is stored at key. No side effects.
func (c *Context) Mem(key pathdb.Path) bool {
	return c.tree.Has(c.abs(key))
}

// DirMem reports whether key denotes a non-empty directory rather than a
// leaf value.
func (c *Context) DirMem(key pathdb.Path) bool {
	return c.tree.HasDir(c.abs(key))
}

// Get returns the value stored at key, failing with MissingKeyError when
// absent.
func (c *Context) Get(key pathdb.Path) ([]byte, error) {
	value, ok := c.tree.Get(c.abs(key))
	if !ok {
		return nil, &MissingKeyError{Key: key, Op: OpGet}
	}
	return value, nil
}

// GetOption returns the value stored at key, or false when absent. It never
// fails.
func (c *Context) GetOption(key pathdb.Path) ([]byte, bool) {
	return c.tree.Get(c.abs(key))
}

// Init allocates value at key, failing with ExistingKeyError when a value is
// already stored there. Like every mutating call it first charges the store
// cost model against the gas and storage budgets; on any failure the receiver
// is untouched and no mutation is applied.
func (c *Context) Init(key pathdb.Path, value []byte) (*Context, error) {
	target := c.abs(key)
	if c.tree.Has(target) {
		return nil, &ExistingKeyError{Key: key}
	}
	next, err := c.chargeWrite(len(value), uint64(len(value)))
	if err != nil {
		return nil, err
	}
	next = next.withTree(next.tree.Set(target, value))
	metrics.State().ObserveStoreOp("init")
	return next, nil
}

// Set overwrites the value at key, failing with MissingKeyError when no value
// previously existed.
func (c *Context) Set(key pathdb.Path, value []byte) (*Context, error) {
	target := c.abs(key)
	prev, ok := c.tree.Get(target)
	if !ok {
		return nil, &MissingKeyError{Key: key, Op: OpSet}
	}
	var grown uint64
	if len(value) > len(prev) {
		grown = uint64(len(value) - len(prev))
	}
	next, err := c.chargeWrite(len(value), grown)
	if err != nil {
		return nil, err
	}
	next = next.withTree(next.tree.Set(target, value))
	metrics.State().ObserveStoreOp("set")
	return next, nil
}

// InitSet allocates or overwrites the value at key. It never fails on
// existence.
func (c *Context) InitSet(key pathdb.Path, value []byte) (*Context, error) {
	target := c.abs(key)
	grown := uint64(len(value))
	if prev, ok := c.tree.Get(target); ok {
		grown = 0
		if len(value) > len(prev) {
			grown = uint64(len(value) - len(prev))
		}
	}
	next, err := c.chargeWrite(len(value), grown)
	if err != nil {
		return nil, err
	}
	next = next.withTree(next.tree.Set(target, value))
	metrics.State().ObserveStoreOp("init_set")
	return next, nil
}

// SetOption stores value at key when non-nil, behaving as InitSet, and
// removes the key when value is nil, behaving as Remove. An empty non-nil
// slice is a real value.
func (c *Context) SetOption(key pathdb.Path, value []byte) (*Context, error) {
	if value == nil {
		return c.Remove(key)
	}
	return c.InitSet(key, value)
}

// Delete removes the value at key, failing with MissingKeyError when absent.
func (c *Context) Delete(key pathdb.Path) (*Context, error) {
	target := c.abs(key)
	if !c.tree.Has(target) {
		return nil, &MissingKeyError{Key: key, Op: OpDel}
	}
	next, err := c.chargeWrite(0, 0)
	if err != nil {
		return nil, err
	}
	tree, _ := next.tree.Delete(target)
	next = next.withTree(tree)
	metrics.State().ObserveStoreOp("delete")
	return next, nil
}

// Remove removes the value at key if present. Removal is idempotent: an
// absent key returns the handle unchanged, with no error and no charge.
func (c *Context) Remove(key pathdb.Path) (*Context, error) {
	if !c.tree.Has(c.abs(key)) {
		return c, nil
	}
	next, err := c.chargeWrite(0, 0)
	if err != nil {
		return nil, err
	}
	tree, _ := next.tree.Delete(c.abs(key))
	next = next.withTree(tree)
	metrics.State().ObserveStoreOp("remove")
	return next, nil
}

// RemoveRec recursively removes key and every descendant, returning the
// handle unchanged when nothing exists there.
func (c *Context) RemoveRec(key pathdb.Path) (*Context, error) {
	target := c.abs(key)
	if !c.tree.Has(target) && !c.tree.HasDir(target) {
		return c, nil
	}
	next, err := c.chargeWrite(0, 0)
	if err != nil {
		return nil, err
	}
	next = next.withTree(next.tree.DeleteRec(target))
	metrics.State().ObserveStoreOp("remove_rec")
	return next, nil
}

// Copy duplicates the subtree rooted at from to to, overwriting any prior
// content at the destination. It fails with MissingKeyError when the source
// is absent.
func (c *Context) Copy(from, to pathdb.Path) (*Context, error) {
	src := c.abs(from)
	if !c.tree.Has(src) && !c.tree.HasDir(src) {
		return nil, &MissingKeyError{Key: from, Op: OpCopy}
	}
	next, err := c.chargeWrite(0, 0)
	if err != nil {
		return nil, err
	}
	tree, _ := next.tree.Copy(src, next.abs(to))
	next = next.withTree(tree)
	metrics.State().ObserveStoreOp("copy")
	return next, nil
}

// Fold enumerates the immediate children of key, each tagged as a leaf or a
// sub-directory, in lexicographic segment order. Enumeration stops at the
// first error returned by fn.
func (c *Context) Fold(key pathdb.Path, fn func(DirEntry) error) error {
	for _, entry := range c.tree.Children(c.abs(key)) {
		child := key.Append(entry.Name)
		if err := fn(DirEntry{Key: child, Dir: entry.Dir}); err != nil {
			return err
		}
	}
	return nil
}

// Keys lists every leaf key under key, depth-first in lexicographic segment
// order, expressed in the context's coordinate space.
func (c *Context) Keys(key pathdb.Path) []pathdb.Path {
	absolute := c.tree.Keys(c.abs(key))
	if len(c.prefix) == 0 {
		return absolute
	}
	out := make([]pathdb.Path, len(absolute))
	for i, p := range absolute {
		out[i] = p[len(c.prefix):]
	}
	return out
}

// FoldKeys folds fn over every leaf key under key, stopping at the first
// error.
func (c *Context) FoldKeys(key pathdb.Path, fn func(pathdb.Path) error) error {
	for _, leaf := range c.Keys(key) {
		if err := fn(leaf); err != nil {
			return err
		}
	}
	return nil
}

// chargeWrite applies the store cost model for a mutating call touching size
// value bytes, of which grown are newly allocated.
func (c *Context) chargeWrite(size int, grown uint64) (*Context, error) {
	next, err := c.consumeStoreGas(size)
	if err != nil {
		return nil, err
	}
	if grown > 0 {
		next, err = next.RecordBytesStored(grown)
		if err != nil {
			return nil, err
		}
	}
	return next, nil
}

func (c *Context) withTree(tree *pathdb.Tree) *Context {
	next := c.clone()
	next.tree = tree
	return next
}
