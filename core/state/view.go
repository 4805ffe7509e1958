package state

import "stratum/storage/pathdb"

// WithPrefix derives a restricted view scoped under prefix. The view exposes
// the full operation set with every key transparently re-based, so a higher
// level module can operate as if it owned the whole store while never
// observing or touching a key outside its prefix.
//
// The view is not a second accounting domain: gas and storage consumption,
// nonces, fees and endorsements all flow through the same lineage as the root
// handle, so budgets are never duplicated or reset by projection. Deriving a
// view from a view nests the prefixes.
func (c *Context) WithPrefix(prefix pathdb.Path) *Context {
	next := c.clone()
	next.prefix = c.prefix.Append(prefix...)
	return next
}

// Project returns the root handle a restricted view was derived from. The
// store snapshot and accounting state are exactly those of the view, only the
// coordinate system widens back to the root.
func (c *Context) Project() *Context {
	if len(c.prefix) == 0 {
		return c
	}
	next := c.clone()
	next.prefix = nil
	return next
}

// AbsoluteKey resolves a key relative to the view's prefix into a full root
// path. For the root context this is the identity.
func (c *Context) AbsoluteKey(key pathdb.Path) pathdb.Path {
	return c.abs(key)
}

// Prefix returns the view's key prefix, empty for the root context.
func (c *Context) Prefix() pathdb.Path {
	return append(pathdb.Path(nil), c.prefix...)
}
