package domain

import "math/big"

// ConnectionConfig is the endpoint and optional signing key a session was opened with.
type ConnectionConfig struct {
	Endpoint   string
	SigningKey string
}

// NetworkInfo describes the connected chain at the time of the last poll.
type NetworkInfo struct {
	ChainID     uint64
	Name        string
	GasPrice    *big.Int
	LatestBlock uint64
}

// NetworkName maps well known chain ids to a display name.
func NetworkName(chainID uint64) string {
	switch chainID {
	case 1:
		return "mainnet"
	case 1337:
		return "localhost"
	case 31337:
		return "anvil"
	case 11155111:
		return "sepolia"
	case 17000:
		return "holesky"
	default:
		return "unknown"
	}
}
