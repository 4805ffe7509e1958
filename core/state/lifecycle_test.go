package state

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"stratum/storage"
	"stratum/storage/pathdb"
)

func TestPrepareRejectsUntaggedStore(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	_, err := Prepare(db, common.Hash{}, 5, time.Now().UTC(), nil)
	if !errors.Is(err, ErrIncompatibleProtocolVersion) {
		t.Fatalf("expected ErrIncompatibleProtocolVersion, got %v", err)
	}
}

func TestPrepareRejectsForeignVersionTag(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	tree := pathdb.NewTree().Set(versionKey, []byte("someother.v9"))
	root, err := tree.Commit(db)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	_, err = Prepare(db, root, 5, time.Now().UTC(), nil)
	if !errors.Is(err, ErrIncompatibleProtocolVersion) {
		t.Fatalf("expected ErrIncompatibleProtocolVersion, got %v", err)
	}
}

func TestFirstBlockThenPrepare(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	ts := time.Unix(1_700_000_000, 0).UTC()
	params, ctx, err := PrepareFirstBlock(db, common.Hash{}, 7, ts, [][]byte{{0x02}})
	if err != nil {
		t.Fatalf("prepare first block: %v", err)
	}
	if params == nil {
		t.Fatalf("first block must return the parameter set")
	}
	if ctx.Level() != 7 || ctx.FirstLevel() != 7 {
		t.Fatalf("unexpected levels: level=%d first=%d", ctx.Level(), ctx.FirstLevel())
	}
	if !ctx.Timestamp().Equal(ts) {
		t.Fatalf("unexpected timestamp: %s", ctx.Timestamp())
	}

	root, err := ctx.Commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	ctx2, err := Prepare(db, root, 8, ts.Add(time.Minute), [][]byte{{0x03}})
	if err != nil {
		t.Fatalf("prepare second block: %v", err)
	}
	if ctx2.FirstLevel() != 7 {
		t.Fatalf("first level must persist, got %d", ctx2.FirstLevel())
	}

	// A second first-block preparation on the initialised store must fail.
	if _, _, err := PrepareFirstBlock(db, root, 9, ts, nil); !errors.Is(err, ErrIncompatibleProtocolVersion) {
		t.Fatalf("expected ErrIncompatibleProtocolVersion, got %v", err)
	}
}

func TestFirstBlockConsumesGenesisParameters(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	blob := []byte(`{
		"chainName": "stratum-test",
		"constants": {
			"hardGasLimitPerOperation": "500000",
			"hardGasLimitPerBlock": "2500000",
			"endorsersPerBlock": 16
		}
	}`)
	tree := pathdb.NewTree().Set(genesisParamsKey, blob)
	root, err := tree.Commit(db)
	if err != nil {
		t.Fatalf("commit seed: %v", err)
	}

	params, ctx, err := PrepareFirstBlock(db, root, 1, time.Now().UTC(), nil)
	if err != nil {
		t.Fatalf("prepare first block: %v", err)
	}
	if params.ChainName != "stratum-test" {
		t.Fatalf("unexpected chain name: %q", params.ChainName)
	}
	constants := ctx.Constants()
	if constants.HardGasLimitPerOperation.Cmp(big.NewInt(500_000)) != 0 {
		t.Fatalf("gas ceiling override not applied: %s", constants.HardGasLimitPerOperation)
	}
	if constants.EndorsersPerBlock != 16 {
		t.Fatalf("endorser override not applied: %d", constants.EndorsersPerBlock)
	}

	// The parameter blob is consumed, not persisted.
	if ctx.Mem(genesisParamsKey) {
		t.Fatalf("genesis parameters must be deleted after consumption")
	}
}

func TestFirstBlockRejectsMalformedParameters(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	tree := pathdb.NewTree().Set(genesisParamsKey, []byte(`{"unknownField": true}`))
	root, err := tree.Commit(db)
	if err != nil {
		t.Fatalf("commit seed: %v", err)
	}

	if _, _, err := PrepareFirstBlock(db, root, 1, time.Now().UTC(), nil); err == nil {
		t.Fatalf("malformed genesis parameters must fail first-block preparation")
	}
}

func TestActivateRecordsSuccessor(t *testing.T) {
	ctx := newTestContext(t)

	if _, ok := ctx.NextProtocol(); ok {
		t.Fatalf("no activation should be pending initially")
	}
	successor := common.BytesToHash(ethcrypto.Keccak256([]byte("protocol-v2")))
	ctx2 := ctx.Activate(successor)

	got, ok := ctx2.NextProtocol()
	if !ok || got != successor {
		t.Fatalf("unexpected pending activation: %s ok=%v", got.Hex(), ok)
	}
	if _, ok := ctx.NextProtocol(); ok {
		t.Fatalf("activation leaked into the parent handle")
	}
}

func TestForkTestChainResetsAccounting(t *testing.T) {
	ctx := newTestContext(t)

	var err error
	ctx, err = ctx.SetGasLimit(big.NewInt(100))
	if err != nil {
		t.Fatalf("set gas limit: %v", err)
	}
	ctx = ctx.RecordInternalNonce(1)
	ctx, err = ctx.RecordEndorsement(2)
	if err != nil {
		t.Fatalf("record endorsement: %v", err)
	}

	protocol := common.BytesToHash(ethcrypto.Keccak256([]byte("sandbox")))
	expiration := time.Unix(1_800_000_000, 0).UTC()
	fork, err := ctx.ForkTestChain(protocol, expiration)
	if err != nil {
		t.Fatalf("fork test chain: %v", err)
	}

	if fork.GasLevel() != nil {
		t.Fatalf("fork must start unmetered")
	}
	if fork.InternalNonceAlreadyRecorded(1) {
		t.Fatalf("fork must not inherit internal nonces")
	}
	if fork.EndorsementAlreadyRecorded(2) {
		t.Fatalf("fork must not inherit endorsement slots")
	}

	gotProto, gotExp, ok := fork.TestChainStatus()
	if !ok || gotProto != protocol || !gotExp.Equal(expiration) {
		t.Fatalf("unexpected test chain status: %s %s ok=%v", gotProto.Hex(), gotExp, ok)
	}
}

func TestEndorsementDeduplication(t *testing.T) {
	ctx := newTestContext(t)

	ctx, err := ctx.RecordEndorsement(5)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !ctx.EndorsementAlreadyRecorded(5) {
		t.Fatalf("slot 5 should be recorded")
	}
	if ctx.EndorsementAlreadyRecorded(6) {
		t.Fatalf("slot 6 should not be recorded")
	}
	if _, err := ctx.RecordEndorsement(ctx.Constants().EndorsersPerBlock); err == nil {
		t.Fatalf("out-of-range slot must be rejected")
	}
}

func TestPatchConstantsPersists(t *testing.T) {
	ctx := newTestContext(t)

	ctx, err := ctx.PatchConstants(func(c Constants) Constants {
		c.EndorsersPerBlock = 64
		return c
	})
	if err != nil {
		t.Fatalf("patch constants: %v", err)
	}
	if ctx.Constants().EndorsersPerBlock != 64 {
		t.Fatalf("patch not applied in-memory")
	}

	root, err := ctx.Commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	reloaded, err := Prepare(ctx.db, root, ctx.Level()+1, ctx.Timestamp(), nil)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if reloaded.Constants().EndorsersPerBlock != 64 {
		t.Fatalf("patched constants must persist across prepare")
	}

	// An invalid patch is rejected outright.
	if _, err := ctx.PatchConstants(func(c Constants) Constants {
		c.EndorsersPerBlock = 0
		return c
	}); err == nil {
		t.Fatalf("invalid constants must be rejected")
	}
}
