package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"devdash/internal/application"
	"devdash/internal/domain"
	"devdash/internal/units"
)

const maxBodyBytes = 4 << 20

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

type Dependencies struct {
	Session    *application.Session
	Contracts  *application.ContractIndex
	Playground *application.Playground
	Tools      *application.NodeTools
	Metrics    *Metrics
	Build      BuildInfo
	// ActionTimeout bounds deploys and state changing contract calls.
	ActionTimeout time.Duration
}

// Server is the loopback JSON API consumed by the UI shell.
type Server struct {
	session       *application.Session
	contracts     *application.ContractIndex
	playground    *application.Playground
	tools         *application.NodeTools
	metrics       *Metrics
	build         BuildInfo
	actionTimeout time.Duration
}

func NewServer(deps Dependencies) (*Server, error) {
	if deps.Session == nil || deps.Contracts == nil || deps.Tools == nil {
		return nil, errors.New("http server dependencies must not be nil")
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	if deps.ActionTimeout <= 0 {
		deps.ActionTimeout = time.Minute
	}
	return &Server{
		session:       deps.Session,
		contracts:     deps.Contracts,
		playground:    deps.Playground,
		tools:         deps.Tools,
		metrics:       deps.Metrics,
		build:         deps.Build,
		actionTimeout: deps.ActionTimeout,
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("POST /connect", s.handleConnect)
	mux.HandleFunc("POST /disconnect", s.handleDisconnect)
	mux.HandleFunc("POST /refresh", s.handleRefresh)
	mux.HandleFunc("GET /accounts", s.handleAccounts)
	mux.HandleFunc("GET /blocks", s.handleBlocks)
	mux.HandleFunc("GET /transactions", s.handleTransactions)
	mux.HandleFunc("POST /transfer", s.handleTransfer)

	mux.HandleFunc("GET /contracts", s.handleContracts)
	mux.HandleFunc("GET /contracts/{address}", s.handleContract)
	mux.HandleFunc("POST /contracts/rescan", s.handleRescan)
	mux.HandleFunc("POST /contracts/verify", s.handleVerify)

	mux.HandleFunc("POST /playground/compile", s.handleCompile)
	mux.HandleFunc("POST /playground/deploy", s.handleDeploy)
	mux.HandleFunc("GET /playground/deployments", s.handleDeployments)
	mux.HandleFunc("POST /playground/call", s.handleCall)

	mux.HandleFunc("POST /tools/convert", s.handleConvert)
	mux.HandleFunc("POST /tools/hash", s.handleHash)
	mux.HandleFunc("POST /tools/checksum", s.handleChecksum)
	mux.HandleFunc("POST /tools/decode", s.handleDecode)

	mux.HandleFunc("POST /node/mine", s.handleMine)
	mux.HandleFunc("POST /node/increase-time", s.handleIncreaseTime)
	mux.HandleFunc("POST /node/next-timestamp", s.handleNextTimestamp)
	mux.HandleFunc("POST /node/automine", s.handleAutomine)
	mux.HandleFunc("POST /node/snapshot", s.handleNodeSnapshot)
	mux.HandleFunc("POST /node/revert", s.handleRevert)
	mux.HandleFunc("POST /node/impersonate", s.handleImpersonate)
	mux.HandleFunc("POST /node/send-raw", s.handleSendRaw)
	return s.metrics.instrument(mux)
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "session": string(s.session.State())})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.build)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	scannedAt, scanErr := s.contracts.Status()
	response := map[string]any{
		"snapshot":       newSnapshotView(s.session.Snapshot()),
		"contract_count": len(s.contracts.Contracts()),
		"scan_error":     scanErr,
	}
	if !scannedAt.IsZero() {
		response["scanned_at"] = scannedAt
	}
	respondJSON(w, http.StatusOK, response)
}

// handleEvents streams every published snapshot as a server-sent event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	snapshots, cancel := s.session.Subscribe()
	defer cancel()
	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			payload, err := json.Marshal(newSnapshotView(snap))
			if err != nil {
				slog.Error("encode snapshot event", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\nid: %s-%d\ndata: %s\n\n", snap.SessionID, snap.Cycle, payload); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

type connectRequest struct {
	Endpoint   string `json:"endpoint"`
	PrivateKey string `json:"private_key"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Endpoint) == "" {
		req.Endpoint = s.session.Remembered().Endpoint
	}
	snap, err := s.session.Connect(r.Context(), req.Endpoint, req.PrivateKey)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSnapshotView(snap))
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, newSnapshotView(s.session.Disconnect()))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Refresh(r.Context())
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSnapshotView(snap))
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, accountViews(s.session.Snapshot().Accounts))
}

func (s *Server) handleBlocks(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, blockViews(s.session.Snapshot().Blocks))
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, transactionViews(s.session.Snapshot().Transactions))
}

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
	Unit   string `json:"unit"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Unit == "" {
		req.Unit = string(units.Ether)
	}
	decimals, err := units.Decimals(units.Unit(req.Unit))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	wei, err := units.ParseUnits(req.Amount, decimals)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := s.session.SendValueTransfer(r.Context(), req.To, wei)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"tx_hash": hash})
}

func (s *Server) handleContracts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, contractViews(s.contracts.Contracts()))
}

func (s *Server) handleContract(w http.ResponseWriter, r *http.Request) {
	record, ok := s.contracts.Contract(r.PathValue("address"))
	if !ok {
		respondError(w, http.StatusNotFound, "contract not found")
		return
	}
	respondJSON(w, http.StatusOK, newContractView(record))
}

func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	contracts, err := s.contracts.Rescan(r.Context())
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, contractViews(contracts))
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req application.VerifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	v, err := s.contracts.Verify(r.Context(), req)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

type compileRequest struct {
	Source string `json:"source"`
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	if !s.requirePlayground(w) {
		return
	}
	var req compileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.playground.Compile(r.Context(), req.Source)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newCompileView(result))
}

type deployRequest struct {
	Contract compiledContractView `json:"contract"`
	Args     []string             `json:"args"`
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	if !s.requirePlayground(w) {
		return
	}
	var req deployRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.actionTimeout)
	defer cancel()
	deployment, err := s.playground.Deploy(ctx, domain.CompiledContract{
		Name:     req.Contract.Name,
		ABI:      req.Contract.ABI,
		Bytecode: req.Contract.Bytecode,
	}, req.Args)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, deployment)
}

func (s *Server) handleDeployments(w http.ResponseWriter, r *http.Request) {
	if !s.requirePlayground(w) {
		return
	}
	deployments, err := s.playground.Deployments(r.Context())
	if err != nil {
		respondFailure(w, err)
		return
	}
	if deployments == nil {
		deployments = []domain.Deployment{}
	}
	respondJSON(w, http.StatusOK, deployments)
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if !s.requirePlayground(w) {
		return
	}
	var req application.CallRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.actionTimeout)
	defer cancel()
	result, err := s.playground.Call(ctx, req)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) requirePlayground(w http.ResponseWriter) bool {
	if s.playground == nil {
		respondError(w, http.StatusServiceUnavailable, "playground is not configured")
		return false
	}
	return true
}

type convertRequest struct {
	Value string `json:"value"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// handleConvert converts between wei, gwei and ether, or between hex and
// decimal when from and to name those encodings.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var (
		value string
		err   error
	)
	from, to := strings.ToLower(req.From), strings.ToLower(req.To)
	switch {
	case from == "hex" && to == "decimal":
		value, err = units.HexToDecimal(req.Value)
	case from == "decimal" && to == "hex":
		value, err = units.DecimalToHex(req.Value)
	default:
		value, err = units.Convert(req.Value, units.Unit(from), units.Unit(to))
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"value": value})
}

type hashRequest struct {
	Input string `json:"input"`
}

func (s *Server) handleHash(w http.ResponseWriter, r *http.Request) {
	var req hashRequest
	if !decodeBody(w, r, &req) {
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"keccak256": units.Keccak256Hex(req.Input),
		"selector":  units.FunctionSelector(req.Input),
	})
}

type checksumRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleChecksum(w http.ResponseWriter, r *http.Request) {
	var req checksumRequest
	if !decodeBody(w, r, &req) {
		return
	}
	address, err := units.ChecksumAddress(req.Address)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"address": address})
}

type decodeRequest struct {
	ABI  json.RawMessage `json:"abi"`
	Data string          `json:"data"`
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	var req decodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	abiJSON := []byte(req.ABI)
	// The UI may send the abi as a JSON string holding the array.
	var wrapped string
	if err := json.Unmarshal(req.ABI, &wrapped); err == nil {
		abiJSON = []byte(wrapped)
	}
	decoded, err := application.DecodeHexCalldata(abiJSON, req.Data)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, decoded)
}

type mineRequest struct {
	Blocks uint64 `json:"blocks"`
}

func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	var req mineRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Blocks == 0 {
		req.Blocks = 1
	}
	if err := s.tools.Mine(r.Context(), req.Blocks); err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"mined": req.Blocks})
}

type timeRequest struct {
	Seconds   uint64 `json:"seconds"`
	Timestamp uint64 `json:"timestamp"`
}

func (s *Server) handleIncreaseTime(w http.ResponseWriter, r *http.Request) {
	var req timeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.tools.IncreaseTime(r.Context(), req.Seconds); err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"increased_by": req.Seconds})
}

func (s *Server) handleNextTimestamp(w http.ResponseWriter, r *http.Request) {
	var req timeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Timestamp == 0 {
		respondError(w, http.StatusBadRequest, "timestamp is required")
		return
	}
	if err := s.tools.SetNextBlockTimestamp(r.Context(), req.Timestamp); err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"timestamp": req.Timestamp})
}

type automineRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleAutomine(w http.ResponseWriter, r *http.Request) {
	var req automineRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.tools.SetAutomine(r.Context(), req.Enabled); err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"automine": req.Enabled})
}

func (s *Server) handleNodeSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := s.tools.Snapshot(r.Context())
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id})
}

type revertRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleRevert(w http.ResponseWriter, r *http.Request) {
	var req revertRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}
	reverted, err := s.tools.Revert(r.Context(), req.ID)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"reverted": reverted})
}

type impersonateRequest struct {
	Address string `json:"address"`
	Stop    bool   `json:"stop"`
}

func (s *Server) handleImpersonate(w http.ResponseWriter, r *http.Request) {
	var req impersonateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var err error
	if req.Stop {
		err = s.tools.StopImpersonating(r.Context(), req.Address)
	} else {
		err = s.tools.Impersonate(r.Context(), req.Address)
	}
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"address": req.Address, "impersonating": !req.Stop})
}

type sendRawRequest struct {
	Raw string `json:"raw"`
}

func (s *Server) handleSendRaw(w http.ResponseWriter, r *http.Request) {
	var req sendRawRequest
	if !decodeBody(w, r, &req) {
		return
	}
	hash, err := s.tools.SendRawTransaction(r.Context(), req.Raw)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"tx_hash": hash})
}

// decodeBody reads a JSON request body into dst. An empty body leaves dst at
// its zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		connErr    *domain.ConnectionError
		signErr    *domain.SigningError
		fetchErr   *domain.FetchError
		compileErr *domain.CompileError
		inputErr   *domain.VerificationInputError
	)
	switch {
	case errors.Is(err, domain.ErrNotConnected),
		errors.Is(err, domain.ErrConnectInProgress),
		errors.Is(err, domain.ErrRefreshInFlight),
		errors.Is(err, application.ErrSessionChanged):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoSigner):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &compileErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &signErr), errors.As(err, &inputErr):
		return http.StatusBadRequest
	case errors.As(err, &connErr), errors.As(err, &fetchErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Warn("request failed", "status", status, "error", err)
	}
	respondError(w, status, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
