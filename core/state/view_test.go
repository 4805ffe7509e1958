package state

import (
	"bytes"
	"math/big"
	"testing"

	"stratum/storage/pathdb"
)

func TestViewPrefixIsolation(t *testing.T) {
	root := newTestContext(t)

	view := root.WithPrefix(pathdb.Path{"a"})
	view, err := view.Init(pathdb.Path{"x"}, []byte("v"))
	if err != nil {
		t.Fatalf("init through view: %v", err)
	}

	projected := view.Project()
	got, err := projected.Get(pathdb.Path{"a", "x"})
	if err != nil {
		t.Fatalf("get through root: %v", err)
	}
	if !bytes.Equal(got, []byte("v")) {
		t.Fatalf("unexpected value through root: %q", got)
	}

	// The view never observes keys outside its prefix.
	sibling, err := projected.Init(pathdb.Path{"b", "y"}, []byte("outside"))
	if err != nil {
		t.Fatalf("init sibling: %v", err)
	}
	scoped := sibling.WithPrefix(pathdb.Path{"a"})
	if scoped.Mem(pathdb.Path{"b", "y"}) {
		t.Fatalf("view observed a key outside its prefix")
	}
	if len(scoped.Keys(nil)) != 1 {
		t.Fatalf("view should enumerate only its own keys, got %v", scoped.Keys(nil))
	}
}

func TestViewKeysAreRelative(t *testing.T) {
	root := newTestContext(t)

	root, err := root.Init(pathdb.Path{"mod", "k1"}, []byte("1"))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	root, err = root.Init(pathdb.Path{"mod", "sub", "k2"}, []byte("2"))
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	view := root.WithPrefix(pathdb.Path{"mod"})
	keys := view.Keys(nil)
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
	if !keys[0].Equal(pathdb.Path{"k1"}) || !keys[1].Equal(pathdb.Path{"sub", "k2"}) {
		t.Fatalf("keys must be relative to the prefix, got %v", keys)
	}

	abs := view.AbsoluteKey(pathdb.Path{"sub", "k2"})
	if !abs.Equal(pathdb.Path{"mod", "sub", "k2"}) {
		t.Fatalf("unexpected absolute key: %v", abs)
	}
}

func TestViewSharesAccounting(t *testing.T) {
	root := newTestContext(t)

	root, err := root.SetGasLimit(big.NewInt(1000))
	if err != nil {
		t.Fatalf("set gas limit: %v", err)
	}

	view := root.WithPrefix(pathdb.Path{"mod"})
	view, err = view.Init(pathdb.Path{"k"}, []byte("123"))
	if err != nil {
		t.Fatalf("init through view: %v", err)
	}

	// 100 per write + 3 bytes under the default cost model, charged against
	// the same budget the root installed.
	if view.GasLevel().Cmp(big.NewInt(897)) != 0 {
		t.Fatalf("unexpected gas level through view: %s", view.GasLevel())
	}
	if view.Project().GasLevel().Cmp(big.NewInt(897)) != 0 {
		t.Fatalf("projection must carry the view's accounting")
	}
}

func TestNestedViews(t *testing.T) {
	root := newTestContext(t)

	inner := root.WithPrefix(pathdb.Path{"a"}).WithPrefix(pathdb.Path{"b"})
	inner, err := inner.Init(pathdb.Path{"k"}, []byte("v"))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !inner.Project().Mem(pathdb.Path{"a", "b", "k"}) {
		t.Fatalf("nested prefixes must compose")
	}
	if !inner.Prefix().Equal(pathdb.Path{"a", "b"}) {
		t.Fatalf("unexpected nested prefix: %v", inner.Prefix())
	}
}
