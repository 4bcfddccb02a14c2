package application

import (
	"time"

	"devdash/internal/domain"
)

type SessionState string

const (
	StateDisconnected SessionState = "disconnected"
	StateConnecting   SessionState = "connecting"
	StateConnected    SessionState = "connected"
	StateRefreshing   SessionState = "refreshing"
)

// Snapshot is one immutable view of the node. Accounts, Blocks and
// Transactions always come from the same poll cycle. Callers must not modify
// the slices.
type Snapshot struct {
	SessionID     string
	Cycle         uint64
	State         SessionState
	Endpoint      string
	SignerAddress string
	SignerWarning string
	Network       domain.NetworkInfo
	Accounts      []domain.Account
	Blocks        []domain.Block
	Transactions  []domain.Transaction
	ConnectError  string
	RefreshError  string
	UpdatedAt     time.Time
}

func (s Snapshot) Connected() bool {
	return s.State == StateConnected || s.State == StateRefreshing
}

func (s Snapshot) HasSigner() bool {
	return s.SignerAddress != ""
}

// pollResult is the output of one poll cycle before it is published.
type pollResult struct {
	network      domain.NetworkInfo
	accounts     []domain.Account
	blocks       []domain.Block
	transactions []domain.Transaction
}
