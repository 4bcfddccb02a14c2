package application

import (
	"context"
	"fmt"
	"log/slog"

	"devdash/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "devdash/application"

// poll runs one full cycle. Only the network query and the account list are
// fatal; single accounts, blocks and transactions are logged and dropped.
func poll(ctx context.Context, client ChainReader, cfg SessionConfig) (pollResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "session.poll")
	defer span.End()

	network, err := client.NetworkInfo(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return pollResult{}, fmt.Errorf("network info: %w", err)
	}
	accounts, err := loadAccounts(ctx, client)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return pollResult{}, fmt.Errorf("accounts: %w", err)
	}
	blocks := client.BlocksBelow(ctx, network.LatestBlock, cfg.BlockWindow)
	transactions := hydrateTransactions(ctx, client, blocks, cfg.TxCap)

	span.SetAttributes(
		attribute.Int64("chain.latest_block", int64(network.LatestBlock)),
		attribute.Int("poll.accounts", len(accounts)),
		attribute.Int("poll.blocks", len(blocks)),
		attribute.Int("poll.transactions", len(transactions)),
	)
	return pollResult{
		network:      network,
		accounts:     accounts,
		blocks:       blocks,
		transactions: transactions,
	}, nil
}

// loadAccounts keeps node order. An account whose balance or nonce lookup
// fails is dropped from this cycle.
func loadAccounts(ctx context.Context, client ChainReader) ([]domain.Account, error) {
	addresses, err := client.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	accounts := make([]domain.Account, 0, len(addresses))
	for i, address := range addresses {
		balance, err := client.Balance(ctx, address)
		if err != nil {
			slog.Warn("drop account", "error", &domain.FetchError{Kind: "balance", Key: address, Err: err})
			continue
		}
		nonce, err := client.Nonce(ctx, address)
		if err != nil {
			slog.Warn("drop account", "error", &domain.FetchError{Kind: "nonce", Key: address, Err: err})
			continue
		}
		accounts = append(accounts, domain.Account{
			Index:   i,
			Address: domain.NormalizeAddress(address),
			Balance: balance,
			Nonce:   nonce,
			DevKey:  DevKeyFor(i, address),
		})
	}
	return accounts, nil
}

// hydrateTransactions walks blocks newest first and stops at limit entries.
func hydrateTransactions(ctx context.Context, client ChainReader, blocks []domain.Block, limit int) []domain.Transaction {
	transactions := make([]domain.Transaction, 0, limit)
	for _, block := range blocks {
		for _, hash := range block.TxHashes {
			if len(transactions) >= limit {
				return transactions
			}
			tx, err := hydrateTransaction(ctx, client, hash, block.Timestamp)
			if err != nil {
				slog.Warn("skip transaction", "error", err)
				continue
			}
			transactions = append(transactions, tx)
		}
	}
	return transactions
}

func hydrateTransaction(ctx context.Context, client ChainReader, hash string, timestamp uint64) (domain.Transaction, error) {
	tx, err := client.TransactionByHash(ctx, hash)
	if err != nil {
		return domain.Transaction{}, &domain.FetchError{Kind: "transaction", Key: hash, Err: err}
	}
	receipt, err := client.Receipt(ctx, hash)
	if err != nil {
		return domain.Transaction{}, &domain.FetchError{Kind: "receipt", Key: hash, Err: err}
	}
	tx.GasUsed = receipt.GasUsed
	tx.Status = receipt.TxStatus()
	tx.ContractAddress = receipt.ContractAddress
	tx.Timestamp = timestamp
	if tx.BlockNumber == 0 {
		tx.BlockNumber = receipt.BlockNumber
	}
	return tx, nil
}
