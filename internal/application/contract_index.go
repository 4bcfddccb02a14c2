package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"devdash/internal/domain"
)

// ContractIndex keeps the result of the latest scan for the connected session.
// It rescans after every new poll cycle.
type ContractIndex struct {
	session       *Session
	scanner       *Scanner
	verifications VerificationStore
	sink          EventSink

	mu        sync.RWMutex
	sessionID string
	cycle     uint64
	contracts []domain.ContractRecord
	known     map[string]struct{}
	scannedAt time.Time
	lastErr   string

	// scanSeq counts started scans; installed is the seq of the result in
	// contracts. A result older than installed is dropped.
	scanSeq   uint64
	installed uint64
	// patches holds verifications saved through Verify that a running scan
	// may have read before they were stored.
	patches map[string]verificationPatch
}

type verificationPatch struct {
	v   domain.Verification
	seq uint64
}

func NewContractIndex(session *Session, scanner *Scanner, verifications VerificationStore, sink EventSink) (*ContractIndex, error) {
	if session == nil || scanner == nil {
		return nil, errors.New("contract index dependencies must not be nil")
	}
	return &ContractIndex{
		session:       session,
		scanner:       scanner,
		verifications: verifications,
		sink:          sink,
		known:         make(map[string]struct{}),
		patches:       make(map[string]verificationPatch),
	}, nil
}

// Run follows session snapshots until ctx is done or the session closes.
func (c *ContractIndex) Run(ctx context.Context) error {
	snapshots, cancel := c.session.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			c.handle(ctx, snap)
		}
	}
}

func (c *ContractIndex) handle(ctx context.Context, snap Snapshot) {
	if !snap.Connected() {
		c.reset()
		return
	}
	c.mu.RLock()
	seen := snap.SessionID == c.sessionID && snap.Cycle == c.cycle
	c.mu.RUnlock()
	if seen {
		return
	}
	if _, err := c.rescan(ctx, snap.SessionID, snap.Cycle, snap.Network.ChainID); err != nil && !errors.Is(err, ErrSessionChanged) {
		slog.Warn("contract scan failed", "session", snap.SessionID, "error", err)
	}
}

// Rescan scans now, outside the snapshot cycle.
func (c *ContractIndex) Rescan(ctx context.Context) ([]domain.ContractRecord, error) {
	snap := c.session.Snapshot()
	if !snap.Connected() {
		return nil, domain.ErrNotConnected
	}
	return c.rescan(ctx, snap.SessionID, snap.Cycle, snap.Network.ChainID)
}

func (c *ContractIndex) rescan(ctx context.Context, sessionID string, cycle uint64, chainID uint64) ([]domain.ContractRecord, error) {
	client, err := c.session.Client()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.scanSeq++
	seq := c.scanSeq
	c.mu.Unlock()

	contracts, err := c.scanner.Scan(ctx, client)
	if err != nil {
		c.mu.Lock()
		c.lastErr = err.Error()
		c.mu.Unlock()
		return nil, err
	}
	if c.session.Snapshot().SessionID != sessionID {
		return nil, ErrSessionChanged
	}

	c.mu.Lock()
	if c.sessionID == sessionID && seq < c.installed {
		current := make([]domain.ContractRecord, len(c.contracts))
		copy(current, c.contracts)
		c.mu.Unlock()
		return current, nil
	}
	if c.sessionID != sessionID {
		c.known = make(map[string]struct{})
	}
	for i, contract := range contracts {
		if p, ok := c.patches[contract.Address]; ok && p.seq >= seq {
			contracts[i] = contract.ApplyVerification(p.v)
		}
	}
	for address, p := range c.patches {
		if p.seq < seq {
			delete(c.patches, address)
		}
	}
	var fresh []domain.ContractRecord
	for _, contract := range contracts {
		if _, ok := c.known[contract.Address]; ok {
			continue
		}
		c.known[contract.Address] = struct{}{}
		fresh = append(fresh, contract)
	}
	c.sessionID = sessionID
	c.cycle = cycle
	c.installed = seq
	c.contracts = contracts
	c.scannedAt = time.Now()
	c.lastErr = ""
	out := make([]domain.ContractRecord, len(contracts))
	copy(out, contracts)
	c.mu.Unlock()

	if len(fresh) > 0 && c.sink != nil {
		if err := c.sink.PublishContracts(ctx, chainID, fresh); err != nil {
			slog.Warn("publish contracts", "count", len(fresh), "error", err)
		}
	}
	return out, nil
}

func (c *ContractIndex) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = ""
	c.cycle = 0
	c.contracts = nil
	c.known = make(map[string]struct{})
	c.patches = make(map[string]verificationPatch)
	c.installed = 0
	c.lastErr = ""
}

// Contracts returns the latest scan result, newest deployment first.
func (c *ContractIndex) Contracts() []domain.ContractRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.ContractRecord, len(c.contracts))
	copy(out, c.contracts)
	return out
}

func (c *ContractIndex) Contract(address string) (domain.ContractRecord, bool) {
	key := domain.NormalizeAddress(address)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, contract := range c.contracts {
		if contract.Address == key {
			return contract, true
		}
	}
	return domain.ContractRecord{}, false
}

// Status reports when the last scan finished and its error, if any.
func (c *ContractIndex) Status() (time.Time, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scannedAt, c.lastErr
}

// Verify saves a verification and patches it onto the cached contracts
// without waiting for the next scan.
func (c *ContractIndex) Verify(ctx context.Context, req VerifyRequest) (domain.Verification, error) {
	v, err := VerifyContract(ctx, c.verifications, req, time.Now())
	if err != nil {
		return domain.Verification{}, err
	}
	key := domain.NormalizeAddress(req.Address)
	c.mu.Lock()
	c.patches[key] = verificationPatch{v: v, seq: c.scanSeq}
	patched := make([]domain.ContractRecord, len(c.contracts))
	for i, contract := range c.contracts {
		if contract.Address == key {
			contract = contract.ApplyVerification(v)
		}
		patched[i] = contract
	}
	c.contracts = patched
	c.mu.Unlock()
	slog.Info("contract verified", "address", key, "name", v.Name)
	return v, nil
}
