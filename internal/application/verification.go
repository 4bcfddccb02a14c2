package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"devdash/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

type VerifyRequest struct {
	Address   string          `json:"address"`
	Name      string          `json:"name"`
	ABI       json.RawMessage `json:"abi"`
	Source    string          `json:"source"`
	Compiler  string          `json:"compiler"`
	Optimized bool            `json:"optimization"`
}

// VerifyContract validates req and saves it. Nothing is written when the
// address or ABI is malformed. An empty ABI is stored as [].
func VerifyContract(ctx context.Context, store VerificationStore, req VerifyRequest, now time.Time) (domain.Verification, error) {
	if store == nil {
		return domain.Verification{}, errors.New("verification store is not configured")
	}
	address := domain.NormalizeAddress(req.Address)
	if address == "" {
		return domain.Verification{}, &domain.VerificationInputError{Field: "address", Err: errors.New("address is required")}
	}
	if !common.IsHexAddress(address) {
		return domain.Verification{}, &domain.VerificationInputError{Field: "address", Err: fmt.Errorf("%q is not an address", req.Address)}
	}
	abiJSON, err := normalizeABI(req.ABI)
	if err != nil {
		return domain.Verification{}, &domain.VerificationInputError{Field: "abi", Err: err}
	}
	v := domain.Verification{
		Name:       strings.TrimSpace(req.Name),
		ABI:        abiJSON,
		Source:     req.Source,
		Compiler:   strings.TrimSpace(req.Compiler),
		Optimized:  req.Optimized,
		VerifiedAt: now.UTC(),
	}
	if err := store.PutVerification(ctx, address, v); err != nil {
		return domain.Verification{}, fmt.Errorf("save verification: %w", err)
	}
	return v, nil
}

// normalizeABI accepts either a JSON array or a JSON string holding one, as
// pasted into a form field.
func normalizeABI(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return json.RawMessage("[]"), nil
	}
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil, err
		}
		trimmed = bytes.TrimSpace([]byte(text))
		if len(trimmed) == 0 {
			return json.RawMessage("[]"), nil
		}
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, fmt.Errorf("abi must be a JSON array: %w", err)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return nil, err
	}
	return json.RawMessage(compact.Bytes()), nil
}
