package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk TOML configuration consumed by the tooling binaries.
type Config struct {
	DataDir       string `toml:"DataDir"`
	NetworkName   string `toml:"NetworkName"`
	GenesisFile   string `toml:"GenesisFile"`
	LogLevel      string `toml:"LogLevel"`
	LogFile       string `toml:"LogFile"`
	ConstantsFile string `toml:"ConstantsFile"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "stratum-local"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./data"
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		DataDir:     "./data",
		NetworkName: "stratum-local",
		LogLevel:    "info",
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create config dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create config %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, fmt.Errorf("write default config: %w", err)
	}
	return cfg, nil
}

// ConstantsOverride mirrors the patchable protocol constants for operator
// overrides. It travels as YAML, separate from the node's TOML config, so the
// same file can feed several tools.
type ConstantsOverride struct {
	HardGasLimitPerOperation string  `yaml:"hardGasLimitPerOperation,omitempty"`
	HardGasLimitPerBlock     string  `yaml:"hardGasLimitPerBlock,omitempty"`
	HardStorageLimitPerOp    *uint64 `yaml:"hardStorageLimitPerOp,omitempty"`
	GasPerStoreWrite         *uint64 `yaml:"gasPerStoreWrite,omitempty"`
	GasPerStoreByte          *uint64 `yaml:"gasPerStoreByte,omitempty"`
	EndorsersPerBlock        *uint32 `yaml:"endorsersPerBlock,omitempty"`
}

// LoadConstantsOverride reads a YAML constants-override file. A missing path
// returns nil with no error so callers can treat the override as optional.
func LoadConstantsOverride(path string) (*ConstantsOverride, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read constants override %s: %w", path, err)
	}
	override := &ConstantsOverride{}
	if err := yaml.Unmarshal(raw, override); err != nil {
		return nil, fmt.Errorf("decode constants override %s: %w", path, err)
	}
	return override, nil
}
