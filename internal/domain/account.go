package domain

import "math/big"

// Account is a node-managed address. Balance and Nonce are point-in-time values.
type Account struct {
	Index   int
	Address string
	Balance *big.Int
	Nonce   uint64
	// DevKey is the well known development key for this account, if the derived
	// address matched.
	DevKey string
}
