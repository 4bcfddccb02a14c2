package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"devdash/internal/domain"

	"github.com/google/uuid"
)

// ErrSessionChanged is returned when a disconnect or reconnect happened while
// a request was in flight. Its result has been discarded.
var ErrSessionChanged = errors.New("session changed while request was in flight")

type SessionConfig struct {
	PollInterval time.Duration
	BlockWindow  int
	TxCap        int
}

// sessionRun is one connected session. Identity is the pointer itself; id is
// for logs and snapshots.
type sessionRun struct {
	id       string
	client   NodeClient
	cancel   context.CancelFunc
	done     chan struct{}
	inFlight atomic.Bool
}

// Session is the node state store. All readers see whole snapshots published
// by a single poll cycle.
type Session struct {
	dial     DialFunc
	settings SettingsStore
	sealer   KeySealer
	observer SessionObserver
	cfg      SessionConfig

	mu         sync.Mutex
	state      SessionState
	endpoint   string
	signingKey string
	pendingID  string
	run        *sessionRun
	current    Snapshot
	cycle      uint64
	subs       map[int]chan Snapshot
	nextSub    int
}

func NewSession(dial DialFunc, settings SettingsStore, sealer KeySealer, observer SessionObserver, cfg SessionConfig) (*Session, error) {
	if dial == nil {
		return nil, errors.New("session dial func must not be nil")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BlockWindow <= 0 {
		cfg.BlockWindow = 20
	}
	if cfg.TxCap <= 0 {
		cfg.TxCap = 25
	}
	s := &Session{
		dial:     dial,
		settings: settings,
		sealer:   sealer,
		observer: observer,
		cfg:      cfg,
		state:    StateDisconnected,
		subs:     make(map[int]chan Snapshot),
	}
	s.current = s.defaultSnapshotLocked()
	return s, nil
}

// Connect dials endpoint, attaches the optional signing key and runs the
// first poll before the session is published as connected. A malformed key
// leaves the session read-only with SignerWarning set.
func (s *Session) Connect(ctx context.Context, endpoint, signingKey string) (Snapshot, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return Snapshot{}, &domain.ConnectionError{Endpoint: endpoint, Err: errors.New("endpoint is required")}
	}

	s.mu.Lock()
	if s.state == StateConnecting {
		s.mu.Unlock()
		return Snapshot{}, domain.ErrConnectInProgress
	}
	previous := s.detachLocked()
	pendingID := uuid.NewString()
	s.pendingID = pendingID
	s.endpoint = endpoint
	s.signingKey = strings.TrimSpace(signingKey)
	s.setStateLocked(StateConnecting)
	s.current = s.defaultSnapshotLocked()
	s.publishLocked()
	key := s.signingKey
	s.mu.Unlock()

	if previous != nil {
		previous.client.Close()
	}

	client, _, err := s.dial(ctx, endpoint)
	if err != nil {
		var connErr *domain.ConnectionError
		if !errors.As(err, &connErr) {
			err = &domain.ConnectionError{Endpoint: endpoint, Err: err}
		}
		s.failConnect(pendingID, err)
		return Snapshot{}, err
	}

	var warning, signer string
	if key != "" {
		if err := client.AttachSigner(key); err != nil {
			warning = err.Error()
			slog.Warn("connected read-only", "endpoint", endpoint, "error", err)
		} else {
			signer, _ = client.SignerAddress()
		}
	}

	start := time.Now()
	result, err := poll(ctx, client, s.cfg)
	if err != nil {
		client.Close()
		err = &domain.ConnectionError{Endpoint: endpoint, Err: err}
		s.failConnect(pendingID, err)
		return Snapshot{}, err
	}

	s.mu.Lock()
	if s.pendingID != pendingID {
		s.mu.Unlock()
		client.Close()
		return Snapshot{}, ErrSessionChanged
	}
	runCtx, cancel := context.WithCancel(context.Background())
	run := &sessionRun{id: pendingID, client: client, cancel: cancel, done: make(chan struct{})}
	s.pendingID = ""
	s.run = run
	s.setStateLocked(StateConnected)
	if s.observer != nil {
		s.observer.OnRefresh(time.Since(start), nil)
	}
	s.current = s.snapshotFromLocked(run, result)
	s.current.SignerAddress = signer
	s.current.SignerWarning = warning
	s.publishLocked()
	snap := s.current
	s.mu.Unlock()

	go s.autoRefresh(runCtx, run)
	slog.Info("connected", "endpoint", endpoint, "chain_id", snap.Network.ChainID, "session", run.id)
	s.rememberConnection(ctx, endpoint, key)
	return snap, nil
}

func (s *Session) failConnect(pendingID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingID != pendingID {
		return
	}
	s.pendingID = ""
	s.setStateLocked(StateDisconnected)
	s.current = s.defaultSnapshotLocked()
	s.current.ConnectError = err.Error()
	s.publishLocked()
	slog.Warn("connect failed", "error", err)
}

// Disconnect stops auto-refresh and resets the snapshot. The endpoint and
// signing key are kept so a reconnect can be prefilled. Responses still in
// flight for the old session are discarded.
func (s *Session) Disconnect() Snapshot {
	s.mu.Lock()
	run := s.detachLocked()
	s.pendingID = ""
	s.setStateLocked(StateDisconnected)
	s.current = s.defaultSnapshotLocked()
	s.publishLocked()
	snap := s.current
	s.mu.Unlock()

	if run != nil {
		run.client.Close()
		slog.Info("disconnected", "session", run.id)
	}
	return snap
}

// Close disconnects and waits for the auto-refresh goroutine to exit.
func (s *Session) Close() {
	s.mu.Lock()
	run := s.run
	s.mu.Unlock()
	s.Disconnect()
	if run != nil {
		<-run.done
	}
	s.mu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()
}

// Refresh re-polls the node. It fails with domain.ErrNotConnected when there
// is no session and domain.ErrRefreshInFlight when another refresh is running.
// On a poll failure the last good snapshot stays visible with RefreshError set.
func (s *Session) Refresh(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	run := s.run
	snap := s.current
	s.mu.Unlock()
	if run == nil {
		return snap, domain.ErrNotConnected
	}
	return s.refresh(ctx, run)
}

func (s *Session) refresh(ctx context.Context, run *sessionRun) (Snapshot, error) {
	if !run.inFlight.CompareAndSwap(false, true) {
		return Snapshot{}, domain.ErrRefreshInFlight
	}
	defer run.inFlight.Store(false)

	s.mu.Lock()
	if s.run != run {
		snap := s.current
		s.mu.Unlock()
		return snap, ErrSessionChanged
	}
	s.setStateLocked(StateRefreshing)
	s.current.State = StateRefreshing
	s.publishLocked()
	s.mu.Unlock()

	start := time.Now()
	result, err := poll(ctx, run.client, s.cfg)
	duration := time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != run {
		slog.Debug("discard stale refresh", "session", run.id)
		return s.current, ErrSessionChanged
	}
	s.setStateLocked(StateConnected)
	if s.observer != nil {
		s.observer.OnRefresh(duration, err)
	}
	if err != nil {
		slog.Warn("refresh failed, keeping last snapshot", "session", run.id, "error", err)
		next := s.current
		next.State = StateConnected
		next.RefreshError = err.Error()
		s.current = next
		s.publishLocked()
		return next, err
	}
	next := s.snapshotFromLocked(run, result)
	next.SignerAddress = s.current.SignerAddress
	next.SignerWarning = s.current.SignerWarning
	s.current = next
	s.publishLocked()
	return next, nil
}

func (s *Session) autoRefresh(ctx context.Context, run *sessionRun) {
	defer close(run.done)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := s.refresh(ctx, run)
			if errors.Is(err, domain.ErrRefreshInFlight) {
				slog.Debug("skip tick, refresh in flight", "session", run.id)
			}
		}
	}
}

// refreshAfterAction refreshes after a state-changing action. Failures are
// already recorded on the snapshot.
func (s *Session) refreshAfterAction(ctx context.Context) {
	if _, err := s.Refresh(ctx); err != nil && !errors.Is(err, domain.ErrRefreshInFlight) {
		slog.Debug("refresh after action", "error", err)
	}
}

// Snapshot returns the latest published snapshot.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Remembered returns the endpoint and key of the last connect call.
func (s *Session) Remembered() domain.ConnectionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.ConnectionConfig{Endpoint: s.endpoint, SigningKey: s.signingKey}
}

// Client returns the connected node client.
func (s *Session) Client() (NodeClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return nil, domain.ErrNotConnected
	}
	return s.run.client, nil
}

// SendValueTransfer sends wei to address from the attached signer and
// refreshes the snapshot. Without a signer nothing is sent to the node.
func (s *Session) SendValueTransfer(ctx context.Context, to string, wei *big.Int) (string, error) {
	client, err := s.Client()
	if err != nil {
		return "", err
	}
	if _, ok := client.SignerAddress(); !ok {
		return "", domain.ErrNoSigner
	}
	hash, err := client.SendValueTransfer(ctx, to, wei)
	if err != nil {
		return "", err
	}
	slog.Info("transfer sent", "to", to, "wei", wei.String(), "tx", hash)
	s.refreshAfterAction(ctx)
	return hash, nil
}

// Subscribe returns a channel that always holds the most recent snapshot.
// Slow readers skip intermediate snapshots. The cancel func closes the channel.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.current
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if existing, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(existing)
			}
		})
	}
	return ch, cancel
}

// RestoreConnection loads the remembered endpoint and, when a sealer is
// configured, the signing key.
func (s *Session) RestoreConnection(ctx context.Context) (domain.ConnectionConfig, bool, error) {
	if s.settings == nil {
		return domain.ConnectionConfig{}, false, nil
	}
	settings, ok, err := s.settings.LoadConnection(ctx)
	if err != nil || !ok {
		return domain.ConnectionConfig{}, ok, err
	}
	cfg := domain.ConnectionConfig{Endpoint: settings.Endpoint}
	if len(settings.SealedKey) > 0 && s.sealer != nil {
		key, err := s.sealer.Open(settings.SealedKey)
		if err != nil {
			return cfg, true, fmt.Errorf("open signing key: %w", err)
		}
		cfg.SigningKey = string(key)
	}
	s.mu.Lock()
	if s.endpoint == "" {
		s.endpoint = cfg.Endpoint
		s.signingKey = cfg.SigningKey
		s.current.Endpoint = cfg.Endpoint
	}
	s.mu.Unlock()
	return cfg, true, nil
}

func (s *Session) rememberConnection(ctx context.Context, endpoint, key string) {
	if s.settings == nil {
		return
	}
	settings := ConnectionSettings{Endpoint: endpoint}
	if key != "" && s.sealer != nil {
		sealed, err := s.sealer.Seal([]byte(key))
		if err != nil {
			slog.Warn("seal signing key", "error", err)
		} else {
			settings.SealedKey = sealed
		}
	}
	if err := s.settings.SaveConnection(ctx, settings); err != nil {
		slog.Warn("save connection settings", "error", err)
	}
}

// detachLocked forgets the current run and stops its ticker.
func (s *Session) detachLocked() *sessionRun {
	run := s.run
	if run == nil {
		return nil
	}
	run.cancel()
	s.run = nil
	return run
}

func (s *Session) setStateLocked(state SessionState) {
	if s.state == state {
		return
	}
	s.state = state
	if s.observer != nil {
		s.observer.OnStateChange(state)
	}
}

func (s *Session) defaultSnapshotLocked() Snapshot {
	return Snapshot{
		State:     s.state,
		Endpoint:  s.endpoint,
		Network:   domain.NetworkInfo{GasPrice: new(big.Int)},
		UpdatedAt: time.Now(),
	}
}

func (s *Session) snapshotFromLocked(run *sessionRun, result pollResult) Snapshot {
	s.cycle++
	return Snapshot{
		SessionID:    run.id,
		Cycle:        s.cycle,
		State:        StateConnected,
		Endpoint:     s.endpoint,
		Network:      result.network,
		Accounts:     result.accounts,
		Blocks:       result.blocks,
		Transactions: result.transactions,
		UpdatedAt:    time.Now(),
	}
}

func (s *Session) publishLocked() {
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s.current:
		default:
		}
	}
}
