package pathdb

import "sort"

// node is one vertex of the persistent path tree. Nodes are immutable once
// attached to a Tree: every mutation rebuilds the spine from the touched node
// up to the root and shares everything else.
type node struct {
	hasValue bool
	value    []byte
	children map[string]*node
}

func (n *node) childCount() int {
	if n == nil {
		return 0
	}
	return len(n.children)
}

func (n *node) lookup(path Path) *node {
	cur := n
	for _, seg := range path {
		if cur == nil {
			return nil
		}
		cur = cur.children[seg]
	}
	return cur
}

// sortedChildNames returns the child segment names in lexicographic order.
// Enumeration everywhere in the tree follows this order so that traversals
// are deterministic for a given snapshot.
func (n *node) sortedChildNames() []string {
	if n == nil || len(n.children) == 0 {
		return nil
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// insert returns a new tree with value stored at path, sharing all untouched
// branches with the receiver. A nil receiver denotes the empty tree.
func (n *node) insert(path Path, value []byte) *node {
	clone := n.shallowClone()
	if len(path) == 0 {
		clone.hasValue = true
		clone.value = append([]byte(nil), value...)
		return clone
	}
	child := clone.children[path[0]]
	clone.setChild(path[0], child.insert(path[1:], value))
	return clone
}

// removeValue clears the value stored at path, pruning branches left without
// values or children. The boolean reports whether a value was present.
func (n *node) removeValue(path Path) (*node, bool) {
	if n == nil {
		return nil, false
	}
	if len(path) == 0 {
		if !n.hasValue {
			return n, false
		}
		if len(n.children) == 0 {
			return nil, true
		}
		clone := n.shallowClone()
		clone.hasValue = false
		clone.value = nil
		return clone, true
	}
	child, ok := n.children[path[0]]
	if !ok {
		return n, false
	}
	newChild, removed := child.removeValue(path[1:])
	if !removed {
		return n, false
	}
	clone := n.shallowClone()
	clone.setChild(path[0], newChild)
	return clone.pruned(), true
}

// removeSubtree drops the node at path together with all descendants.
// The boolean reports whether anything existed there.
func (n *node) removeSubtree(path Path) (*node, bool) {
	if n == nil {
		return nil, false
	}
	if len(path) == 0 {
		return nil, true
	}
	child, ok := n.children[path[0]]
	if !ok {
		return n, false
	}
	newChild, removed := child.removeSubtree(path[1:])
	if !removed {
		return n, false
	}
	clone := n.shallowClone()
	clone.setChild(path[0], newChild)
	return clone.pruned(), true
}

// attach replaces the subtree at path with sub. Immutability makes sharing
// sub between two locations safe, which is what subtree copy relies on.
func (n *node) attach(path Path, sub *node) *node {
	if len(path) == 0 {
		return sub
	}
	clone := n.shallowClone()
	child := clone.children[path[0]]
	clone.setChild(path[0], child.attach(path[1:], sub))
	return clone.pruned()
}

func (n *node) shallowClone() *node {
	clone := &node{}
	if n != nil {
		clone.hasValue = n.hasValue
		clone.value = n.value
		if len(n.children) > 0 {
			clone.children = make(map[string]*node, len(n.children))
			for name, child := range n.children {
				clone.children[name] = child
			}
		}
	}
	return clone
}

func (n *node) setChild(name string, child *node) {
	if child == nil {
		delete(n.children, name)
		return
	}
	if n.children == nil {
		n.children = make(map[string]*node, 1)
	}
	n.children[name] = child
}

// pruned collapses a node that no longer holds a value or children to nil so
// empty directories never linger after deletions.
func (n *node) pruned() *node {
	if n == nil || (!n.hasValue && len(n.children) == 0) {
		return nil
	}
	return n
}
