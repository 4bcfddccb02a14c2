package domain

import (
	"encoding/json"
	"math/big"
	"strings"
	"time"
)

// UnknownContractName is shown for contracts without a saved verification.
const UnknownContractName = "Unknown"

// ContractRecord is derived from an observed creation transaction.
// Only the verification fields change after discovery.
type ContractRecord struct {
	Address       string
	Name          string
	Deployer      string
	DeploymentTx  string
	BlockNumber   uint64
	Timestamp     uint64
	Verified      bool
	Bytecode      []byte
	CodeHash      string
	SizeBytes     int
	GasUsed       uint64
	GasPrice      *big.Int
	GasLimit      uint64
	Fee           *big.Int
	GasEfficiency float64
	Nonce         uint64
	Input         []byte
	LogCount      int
	Balance       *big.Int
	TxCount       uint64
	// CompilerGuess and OptimizationGuess come from bytecode pattern matching
	// and are display hints only.
	CompilerGuess     string
	OptimizationGuess string
	Verification      *Verification
}

// Verification is user supplied metadata saved locally for a contract address.
type Verification struct {
	Name       string          `json:"name"`
	ABI        json.RawMessage `json:"abi"`
	Source     string          `json:"source"`
	Compiler   string          `json:"compiler"`
	Optimized  bool            `json:"optimization"`
	VerifiedAt time.Time       `json:"verified_at"`
}

// ApplyVerification overlays saved metadata onto a scanned record. Scan derived
// fields are left untouched.
func (c ContractRecord) ApplyVerification(v Verification) ContractRecord {
	c.Verified = true
	if v.Name != "" {
		c.Name = v.Name
	}
	if v.Compiler != "" {
		c.CompilerGuess = v.Compiler
	}
	c.OptimizationGuess = "Not optimized"
	if v.Optimized {
		c.OptimizationGuess = "Optimized"
	}
	meta := v
	c.Verification = &meta
	return c
}

// Deployment is a contract deployed from the playground.
type Deployment struct {
	Name       string          `json:"name"`
	Address    string          `json:"address"`
	TxHash     string          `json:"tx_hash"`
	ABI        json.RawMessage `json:"abi"`
	DeployedAt time.Time       `json:"deployed_at"`
}

// NormalizeAddress lower-cases an address for use as a storage key.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// CompiledContract is one contract from a compiler run.
type CompiledContract struct {
	Name     string          `json:"name"`
	ABI      json.RawMessage `json:"abi"`
	Bytecode []byte          `json:"bytecode"`
}
