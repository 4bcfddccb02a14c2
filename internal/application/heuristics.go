package application

import (
	"bytes"
)

// Bytecode sniffing for display only. Both guesses are unreliable and must
// not drive any behavior.

var (
	solidity08Preamble = []byte{0x60, 0x80, 0x60, 0x40, 0x52}
	solidity07Preamble = []byte{0x60, 0x60, 0x60, 0x40, 0x52}
)

// GuessCompiler names a compiler family from a well known memory setup
// preamble, or "Unknown".
func GuessCompiler(code []byte) string {
	switch {
	case bytes.Contains(code, solidity08Preamble):
		return "Solidity 0.8.x"
	case bytes.Contains(code, solidity07Preamble):
		return "Solidity 0.7.x"
	default:
		return "Unknown"
	}
}

// GuessOptimization buckets runtime code size.
func GuessOptimization(code []byte) string {
	switch size := len(code); {
	case size < 1000:
		return "High"
	case size < 5000:
		return "Medium"
	default:
		return "Low"
	}
}
