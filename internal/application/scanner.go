package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"devdash/internal/domain"

	"github.com/ethereum/go-ethereum/crypto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

type ScannerConfig struct {
	// Window is the number of blocks ending at the latest one that are scanned.
	Window    uint64
	BatchSize int
}

// Scanner finds contracts by looking for creation transactions in a bounded
// window of recent blocks.
type Scanner struct {
	verifications VerificationStore
	observer      ScanObserver
	cfg           ScannerConfig
}

func NewScanner(verifications VerificationStore, observer ScanObserver, cfg ScannerConfig) *Scanner {
	if cfg.Window == 0 {
		cfg.Window = 250
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Scanner{verifications: verifications, observer: observer, cfg: cfg}
}

// Scan walks the window newest first. Each address appears once, at its
// first (newest) occurrence, with saved verification merged in. Lookup
// failures for single blocks or transactions are logged and skipped.
func (s *Scanner) Scan(ctx context.Context, chain ChainReader) ([]domain.ContractRecord, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "scanner.scan")
	defer span.End()
	start := time.Now()

	latest, err := chain.LatestBlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest block: %w", err)
	}
	from := uint64(0)
	if latest+1 > s.cfg.Window {
		from = latest + 1 - s.cfg.Window
	}

	var found []domain.ContractRecord
	batch := uint64(s.cfg.BatchSize)
	for hi := latest; ; {
		lo := from
		if hi >= from+batch {
			lo = hi - batch + 1
		}
		records, err := s.scanBatch(ctx, chain, hi, lo)
		if err != nil {
			return nil, err
		}
		found = append(found, records...)
		if lo == from {
			break
		}
		hi = lo - 1
	}

	contracts := dedupContracts(found)
	for i := range contracts {
		contracts[i] = s.mergeVerification(ctx, contracts[i])
	}

	span.SetAttributes(
		attribute.Int64("scan.from", int64(from)),
		attribute.Int64("scan.to", int64(latest)),
		attribute.Int("scan.contracts", len(contracts)),
	)
	if s.observer != nil {
		s.observer.OnScan(time.Since(start), int(latest-from+1), len(contracts))
	}
	return contracts, nil
}

// scanBatch fetches blocks hi down to lo concurrently and returns their
// contracts in block order, newest first.
func (s *Scanner) scanBatch(ctx context.Context, chain ChainReader, hi, lo uint64) ([]domain.ContractRecord, error) {
	perBlock := make([][]domain.ContractRecord, hi-lo+1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchSize)
	for number := hi; ; number-- {
		slot := hi - number
		g.Go(func() error {
			perBlock[slot] = s.scanBlock(gctx, chain, number)
			return nil
		})
		if number == lo {
			break
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var records []domain.ContractRecord
	for _, blockRecords := range perBlock {
		records = append(records, blockRecords...)
	}
	return records, nil
}

func (s *Scanner) scanBlock(ctx context.Context, chain ChainReader, number uint64) []domain.ContractRecord {
	block, err := chain.BlockByNumber(ctx, number)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("scan: skip block", "error", &domain.FetchError{Kind: "block", Key: fmt.Sprint(number), Err: err})
		}
		return nil
	}
	var records []domain.ContractRecord
	for _, hash := range block.TxHashes {
		record, ok, err := s.inspectTransaction(ctx, chain, block, hash)
		if err != nil {
			slog.Warn("scan: skip transaction", "error", err)
			continue
		}
		if ok {
			records = append(records, record)
		}
	}
	return records
}

// inspectTransaction reports a contract only for a creation transaction whose
// receipt names an address that now holds code.
func (s *Scanner) inspectTransaction(ctx context.Context, chain ChainReader, block domain.Block, hash string) (domain.ContractRecord, bool, error) {
	tx, err := chain.TransactionByHash(ctx, hash)
	if err != nil {
		return domain.ContractRecord{}, false, &domain.FetchError{Kind: "transaction", Key: hash, Err: err}
	}
	if !tx.IsCreation() {
		return domain.ContractRecord{}, false, nil
	}
	receipt, err := chain.Receipt(ctx, hash)
	if err != nil {
		return domain.ContractRecord{}, false, &domain.FetchError{Kind: "receipt", Key: hash, Err: err}
	}
	if receipt.ContractAddress == "" {
		return domain.ContractRecord{}, false, nil
	}
	code, err := chain.Code(ctx, receipt.ContractAddress)
	if err != nil {
		return domain.ContractRecord{}, false, &domain.FetchError{Kind: "code", Key: receipt.ContractAddress, Err: err}
	}
	if len(code) == 0 {
		return domain.ContractRecord{}, false, nil
	}

	address := domain.NormalizeAddress(receipt.ContractAddress)
	gasPrice := tx.GasPrice
	if gasPrice == nil || gasPrice.Sign() == 0 {
		gasPrice = receipt.EffectiveGasPrice
	}
	if gasPrice == nil {
		gasPrice = new(big.Int)
	}
	record := domain.ContractRecord{
		Address:           address,
		Name:              domain.UnknownContractName,
		Deployer:          tx.From,
		DeploymentTx:      tx.Hash,
		BlockNumber:       block.Number,
		Timestamp:         block.Timestamp,
		Bytecode:          code,
		CodeHash:          crypto.Keccak256Hash(code).Hex(),
		SizeBytes:         len(code),
		GasUsed:           receipt.GasUsed,
		GasPrice:          gasPrice,
		GasLimit:          tx.Gas,
		Fee:               new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), gasPrice),
		GasEfficiency:     gasEfficiency(receipt.GasUsed, tx.Gas),
		Nonce:             tx.Nonce,
		Input:             tx.Input,
		LogCount:          receipt.LogCount,
		Balance:           new(big.Int),
		CompilerGuess:     GuessCompiler(code),
		OptimizationGuess: GuessOptimization(code),
	}
	if balance, err := chain.Balance(ctx, address); err == nil {
		record.Balance = balance
	} else {
		slog.Warn("scan: contract balance", "address", address, "error", err)
	}
	if count, err := chain.Nonce(ctx, address); err == nil {
		record.TxCount = count
	} else {
		slog.Warn("scan: contract nonce", "address", address, "error", err)
	}
	return record, true, nil
}

func (s *Scanner) mergeVerification(ctx context.Context, record domain.ContractRecord) domain.ContractRecord {
	if s.verifications == nil {
		return record
	}
	v, ok, err := s.verifications.GetVerification(ctx, record.Address)
	if err != nil {
		slog.Warn("scan: load verification", "address", record.Address, "error", err)
		return record
	}
	if !ok {
		return record
	}
	return record.ApplyVerification(v)
}

// dedupContracts keeps the first record seen for each address.
func dedupContracts(records []domain.ContractRecord) []domain.ContractRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]domain.ContractRecord, 0, len(records))
	for _, record := range records {
		key := domain.NormalizeAddress(record.Address)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, record)
	}
	return out
}

func gasEfficiency(used, limit uint64) float64 {
	if limit == 0 {
		return 0
	}
	return float64(used) / float64(limit) * 100
}
