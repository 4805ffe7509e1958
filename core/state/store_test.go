package state

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stratum/storage"
	"stratum/storage/pathdb"
)

func testKey(segments ...string) pathdb.Path {
	return pathdb.Path(segments)
}

func newTestContext(t *testing.T) *Context {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)

	_, ctx, err := PrepareFirstBlock(db, common.Hash{}, 1, time.Unix(1_700_000_000, 0).UTC(), [][]byte{{0x01}})
	if err != nil {
		t.Fatalf("prepare first block: %v", err)
	}
	return ctx
}

func TestInitGetRoundtrip(t *testing.T) {
	ctx := newTestContext(t)
	key := pathdb.Path{"ledger", "alice"}

	ctx2, err := ctx.Init(key, []byte("100"))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	got, err := ctx2.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, []byte("100")) {
		t.Fatalf("unexpected value: %q", got)
	}
	if !ctx2.Mem(key) {
		t.Fatalf("mem should report the key")
	}

	// The parent handle never observes the write.
	if ctx.Mem(key) {
		t.Fatalf("parent handle observed child mutation")
	}
}

func TestMissingKeyStrictness(t *testing.T) {
	ctx := newTestContext(t)
	key := pathdb.Path{"never", "written"}

	var missing *MissingKeyError

	if _, err := ctx.Get(key); !errors.As(err, &missing) || missing.Op != OpGet {
		t.Fatalf("get: expected MissingKeyError(get), got %v", err)
	}
	if _, err := ctx.Set(key, []byte("v")); !errors.As(err, &missing) || missing.Op != OpSet {
		t.Fatalf("set: expected MissingKeyError(set), got %v", err)
	}
	if _, err := ctx.Delete(key); !errors.As(err, &missing) || missing.Op != OpDel {
		t.Fatalf("delete: expected MissingKeyError(delete), got %v", err)
	}
	if _, err := ctx.Copy(key, pathdb.Path{"dst"}); !errors.As(err, &missing) || missing.Op != OpCopy {
		t.Fatalf("copy: expected MissingKeyError(copy), got %v", err)
	}

	if _, ok := ctx.GetOption(key); ok {
		t.Fatalf("get option should report absence")
	}
}

func TestExistingKeyStrictness(t *testing.T) {
	ctx := newTestContext(t)
	key := pathdb.Path{"cfg"}

	ctx, err := ctx.Init(key, []byte("a"))
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	var existing *ExistingKeyError
	if _, err := ctx.Init(key, []byte("b")); !errors.As(err, &existing) {
		t.Fatalf("expected ExistingKeyError, got %v", err)
	}

	// InitSet overwrites instead.
	ctx, err = ctx.InitSet(key, []byte("b"))
	if err != nil {
		t.Fatalf("init_set: %v", err)
	}
	got, err := ctx.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "b" {
		t.Fatalf("unexpected value after init_set: %q", got)
	}
}

func TestSetRequiresPriorValue(t *testing.T) {
	ctx := newTestContext(t)
	key := pathdb.Path{"counter"}

	ctx, err := ctx.Init(key, []byte("1"))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	ctx, err = ctx.Set(key, []byte("2"))
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := ctx.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "2" {
		t.Fatalf("unexpected value: %q", got)
	}
}

func TestRemoveIdempotent(t *testing.T) {
	ctx := newTestContext(t)
	key := pathdb.Path{"tmp"}

	ctx, err := ctx.Init(key, []byte("v"))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	ctx, err = ctx.Remove(key)
	if err != nil {
		t.Fatalf("first remove: %v", err)
	}
	again, err := ctx.Remove(key)
	if err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if again != ctx {
		t.Fatalf("second remove should return the handle unchanged")
	}
}

func TestRemoveRec(t *testing.T) {
	ctx := newTestContext(t)

	ctx, err := ctx.Init(pathdb.Path{"a", "b"}, []byte("1"))
	if err != nil {
		t.Fatalf("init a/b: %v", err)
	}
	ctx, err = ctx.Init(pathdb.Path{"a", "c"}, []byte("2"))
	if err != nil {
		t.Fatalf("init a/c: %v", err)
	}

	ctx, err = ctx.RemoveRec(pathdb.Path{"a"})
	if err != nil {
		t.Fatalf("remove_rec: %v", err)
	}
	if keys := ctx.Keys(pathdb.Path{"a"}); len(keys) != 0 {
		t.Fatalf("expected no keys under a, got %v", keys)
	}
	if ctx.DirMem(pathdb.Path{"a"}) {
		t.Fatalf("a should no longer be a directory")
	}
}

func TestSetOption(t *testing.T) {
	ctx := newTestContext(t)
	key := pathdb.Path{"opt"}

	ctx, err := ctx.SetOption(key, []byte("v"))
	if err != nil {
		t.Fatalf("set option some: %v", err)
	}
	if !ctx.Mem(key) {
		t.Fatalf("value should be present")
	}

	// An empty non-nil slice is a real value.
	ctx, err = ctx.SetOption(key, []byte{})
	if err != nil {
		t.Fatalf("set option empty: %v", err)
	}
	if !ctx.Mem(key) {
		t.Fatalf("empty value should still be present")
	}

	ctx, err = ctx.SetOption(key, nil)
	if err != nil {
		t.Fatalf("set option none: %v", err)
	}
	if ctx.Mem(key) {
		t.Fatalf("nil option should remove the key")
	}
}

func TestCopySubtree(t *testing.T) {
	ctx := newTestContext(t)

	ctx, err := ctx.Init(pathdb.Path{"src", "x"}, []byte("1"))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	ctx, err = ctx.Copy(pathdb.Path{"src"}, pathdb.Path{"dst"})
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	got, err := ctx.Get(pathdb.Path{"dst", "x"})
	if err != nil {
		t.Fatalf("get copy: %v", err)
	}
	if string(got) != "1" {
		t.Fatalf("unexpected copied value: %q", got)
	}
}

func TestFoldTagsChildren(t *testing.T) {
	ctx := newTestContext(t)

	ctx, err := ctx.Init(pathdb.Path{"dir", "leaf"}, []byte("1"))
	if err != nil {
		t.Fatalf("init leaf: %v", err)
	}
	ctx, err = ctx.Init(pathdb.Path{"dir", "sub", "inner"}, []byte("2"))
	if err != nil {
		t.Fatalf("init inner: %v", err)
	}

	var entries []DirEntry
	if err := ctx.Fold(pathdb.Path{"dir"}, func(e DirEntry) error {
		entries = append(entries, e)
		return nil
	}); err != nil {
		t.Fatalf("fold: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !entries[0].Key.Equal(pathdb.Path{"dir", "leaf"}) || entries[0].Dir {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if !entries[1].Key.Equal(pathdb.Path{"dir", "sub"}) || !entries[1].Dir {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
}

func TestFoldKeysStopsOnError(t *testing.T) {
	ctx := newTestContext(t)

	for _, name := range []string{"a", "b", "c"} {
		var err error
		ctx, err = ctx.Init(pathdb.Path{"dir", name}, []byte(name))
		if err != nil {
			t.Fatalf("init %s: %v", name, err)
		}
	}

	sentinel := errors.New("stop")
	var seen int
	err := ctx.FoldKeys(pathdb.Path{"dir"}, func(pathdb.Path) error {
		seen++
		if seen == 2 {
			return sentinel
		}
		return nil
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if seen != 2 {
		t.Fatalf("expected traversal to stop after 2 keys, saw %d", seen)
	}
}
