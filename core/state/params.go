package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
)

// GenesisParams is the protocol's initial parameter set, consumed exactly
// once by PrepareFirstBlock from the JSON blob the chain shell seeds into the
// store. Ordinary blocks never re-derive it.
type GenesisParams struct {
	ChainName string          `json:"chainName,omitempty"`
	Constants *ConstantsSpec  `json:"constants,omitempty"`
	Extra     json.RawMessage `json:"extra,omitempty"`
}

// ConstantsSpec overrides individual protocol constants at genesis. Large
// numeric values travel as decimal strings, matching the genesis conventions
// used elsewhere in the project.
type ConstantsSpec struct {
	HardGasLimitPerOperation string  `json:"hardGasLimitPerOperation,omitempty"`
	HardGasLimitPerBlock     string  `json:"hardGasLimitPerBlock,omitempty"`
	HardStorageLimitPerOp    *uint64 `json:"hardStorageLimitPerOp,omitempty"`
	GasPerStoreWrite         *uint64 `json:"gasPerStoreWrite,omitempty"`
	GasPerStoreByte          *uint64 `json:"gasPerStoreByte,omitempty"`
	EndorsersPerBlock        *uint32 `json:"endorsersPerBlock,omitempty"`
}

// parseGenesisParams decodes the stored genesis parameter blob and resolves
// the effective constants. Unknown fields are rejected so a typo in a genesis
// file fails loudly instead of silently running with defaults.
func parseGenesisParams(data []byte) (*GenesisParams, Constants, error) {
	params := &GenesisParams{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(params); err != nil {
		return nil, Constants{}, fmt.Errorf("parse genesis parameters: %w", err)
	}
	constants, err := params.resolveConstants()
	if err != nil {
		return nil, Constants{}, err
	}
	return params, constants, nil
}

func (p *GenesisParams) resolveConstants() (Constants, error) {
	constants := DefaultConstants()
	spec := p.Constants
	if spec == nil {
		return constants, nil
	}
	if spec.HardGasLimitPerOperation != "" {
		v, ok := new(big.Int).SetString(spec.HardGasLimitPerOperation, 10)
		if !ok {
			return Constants{}, fmt.Errorf("parse genesis parameters: invalid hardGasLimitPerOperation %q", spec.HardGasLimitPerOperation)
		}
		constants.HardGasLimitPerOperation = v
	}
	if spec.HardGasLimitPerBlock != "" {
		v, ok := new(big.Int).SetString(spec.HardGasLimitPerBlock, 10)
		if !ok {
			return Constants{}, fmt.Errorf("parse genesis parameters: invalid hardGasLimitPerBlock %q", spec.HardGasLimitPerBlock)
		}
		constants.HardGasLimitPerBlock = v
	}
	if spec.HardStorageLimitPerOp != nil {
		constants.HardStorageLimitPerOp = *spec.HardStorageLimitPerOp
	}
	if spec.GasPerStoreWrite != nil {
		constants.GasPerStoreWrite = *spec.GasPerStoreWrite
	}
	if spec.GasPerStoreByte != nil {
		constants.GasPerStoreByte = *spec.GasPerStoreByte
	}
	if spec.EndorsersPerBlock != nil {
		constants.EndorsersPerBlock = *spec.EndorsersPerBlock
	}
	if err := constants.validate(); err != nil {
		return Constants{}, fmt.Errorf("parse genesis parameters: %w", err)
	}
	return constants, nil
}
