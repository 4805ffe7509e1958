package state

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"stratum/storage/pathdb"
)

// ResolverFunc lists the decoded textual identifiers of one encoding that
// match a prefix, reading whatever state it needs through the supplied
// handle. Implementations must treat the handle read-only.
type ResolverFunc func(ctx context.Context, state *Context, prefix string) ([]string, error)

// resolverRegistry is the one piece of process-wide mutable state in this
// package. Registration is effectively append-only and keyed by encoding
// identity; duplicate registration for the same encoding deterministically
// replaces the previous resolver (last writer wins).
var resolverRegistry = struct {
	mu sync.RWMutex
	m  map[string]ResolverFunc
}{m: make(map[string]ResolverFunc)}

// RegisterResolver installs the resolver for an encoding identity. Intended
// to be called once per encoding from package init; registering the same
// encoding again replaces the earlier resolver rather than corrupting it.
func RegisterResolver(encoding string, fn ResolverFunc) {
	if fn == nil {
		return
	}
	resolverRegistry.mu.Lock()
	resolverRegistry.m[encoding] = fn
	resolverRegistry.mu.Unlock()
}

// Resolve runs the resolver registered for encoding against prefix.
func Resolve(ctx context.Context, state *Context, encoding, prefix string) ([]string, error) {
	resolverRegistry.mu.RLock()
	fn, ok := resolverRegistry.m[encoding]
	resolverRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("resolve: no resolver registered for encoding %q", encoding)
	}
	return fn(ctx, state, prefix)
}

// RegisteredEncodings returns the encodings with a resolver installed, in
// sorted order.
func RegisteredEncodings() []string {
	resolverRegistry.mu.RLock()
	out := make([]string, 0, len(resolverRegistry.m))
	for encoding := range resolverRegistry.m {
		out = append(out, encoding)
	}
	resolverRegistry.mu.RUnlock()
	sort.Strings(out)
	return out
}

// EntityIDResolver builds a resolver completing originated entity IDs from
// the leaf keys stored under root, where the final path segment is the
// textual form of the ID.
func EntityIDResolver(root pathdb.Path) ResolverFunc {
	return func(ctx context.Context, state *Context, prefix string) ([]string, error) {
		var matches []string
		err := state.FoldKeys(root, func(key pathdb.Path) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(key) == 0 {
				return nil
			}
			candidate := key[len(key)-1]
			if !strings.HasPrefix(candidate, prefix) {
				return nil
			}
			if _, err := ParseEntityID(candidate); err != nil {
				return nil
			}
			matches = append(matches, candidate)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return matches, nil
	}
}
