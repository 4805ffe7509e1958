package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stratum/config"
	"stratum/core/state"
	"stratum/observability/logging"
	"stratum/storage"
	"stratum/storage/pathdb"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	rootHex := flag.String("root", "", "Hex-encoded root hash of the committed snapshot to open")
	keyPath := flag.String("path", "", "Slash-separated key path to inspect")
	showValue := flag.Bool("value", false, "Print the value stored at -path instead of listing keys")
	check := flag.Bool("check", false, "Verify the snapshot is preparable under this protocol version")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("STRATUM_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("stratum-inspect", env, logging.Options{
		File:  cfg.LogFile,
		Level: cfg.LogLevel,
	})

	if strings.TrimSpace(*rootHex) == "" {
		fmt.Fprintln(os.Stderr, "A -root hash is required")
		os.Exit(1)
	}
	rootBytes, err := hex.DecodeString(strings.TrimPrefix(*rootHex, "0x"))
	if err != nil || len(rootBytes) != common.HashLength {
		fmt.Fprintf(os.Stderr, "Invalid -root hash %q\n", *rootHex)
		os.Exit(1)
	}
	root := common.BytesToHash(rootBytes)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if *check {
		if err := runCheck(cfg, db, root); err != nil {
			logger.Error("Snapshot check failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	tree, err := pathdb.Load(db, root)
	if err != nil {
		logger.Error("Failed to load snapshot", slog.Any("error", err))
		os.Exit(1)
	}

	key := parsePath(*keyPath)
	if *showValue {
		value, ok := tree.Get(key)
		if !ok {
			fmt.Fprintf(os.Stderr, "No value stored at %s\n", key)
			os.Exit(1)
		}
		fmt.Printf("%s\t%x\n", key, value)
		return
	}
	for _, leaf := range tree.Keys(key) {
		fmt.Println(leaf)
	}
}

// runCheck prepares a context against the snapshot, proving the version tag
// and constants are intact, and prints the effective constants after any
// operator override.
func runCheck(cfg *config.Config, db storage.Database, root common.Hash) error {
	ctx, err := state.Prepare(db, root, 0, time.Now().UTC(), nil)
	if err != nil {
		return err
	}
	override, err := config.LoadConstantsOverride(cfg.ConstantsFile)
	if err != nil {
		return err
	}
	if override != nil {
		ctx, err = ctx.PatchConstants(func(c state.Constants) state.Constants {
			return applyOverride(c, override)
		})
		if err != nil {
			return fmt.Errorf("apply constants override: %w", err)
		}
	}
	constants := ctx.Constants()
	fmt.Printf("network:            %s\n", cfg.NetworkName)
	fmt.Printf("first level:        %d\n", ctx.FirstLevel())
	fmt.Printf("gas/op ceiling:     %s\n", constants.HardGasLimitPerOperation)
	fmt.Printf("gas/block ceiling:  %s\n", constants.HardGasLimitPerBlock)
	fmt.Printf("storage/op ceiling: %d\n", constants.HardStorageLimitPerOp)
	fmt.Printf("endorsement slots:  %d\n", constants.EndorsersPerBlock)
	if next, ok := ctx.NextProtocol(); ok {
		fmt.Printf("pending activation: %s\n", next.Hex())
	}
	return nil
}

func applyOverride(c state.Constants, o *config.ConstantsOverride) state.Constants {
	if o.HardGasLimitPerOperation != "" {
		if v, ok := new(big.Int).SetString(o.HardGasLimitPerOperation, 10); ok {
			c.HardGasLimitPerOperation = v
		}
	}
	if o.HardGasLimitPerBlock != "" {
		if v, ok := new(big.Int).SetString(o.HardGasLimitPerBlock, 10); ok {
			c.HardGasLimitPerBlock = v
		}
	}
	if o.HardStorageLimitPerOp != nil {
		c.HardStorageLimitPerOp = *o.HardStorageLimitPerOp
	}
	if o.GasPerStoreWrite != nil {
		c.GasPerStoreWrite = *o.GasPerStoreWrite
	}
	if o.GasPerStoreByte != nil {
		c.GasPerStoreByte = *o.GasPerStoreByte
	}
	if o.EndorsersPerBlock != nil {
		c.EndorsersPerBlock = *o.EndorsersPerBlock
	}
	return c
}

func parsePath(raw string) pathdb.Path {
	trimmed := strings.Trim(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return nil
	}
	return pathdb.Path(strings.Split(trimmed, "/"))
}
