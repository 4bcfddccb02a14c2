package ethrpc

import (
	"crypto/ecdsa"
	"errors"
	"strings"

	"devdash/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds a parsed private key and the address it controls.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner parses a hex private key, with or without 0x prefix.
func NewSigner(hexKey string) (*Signer, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if trimmed == "" {
		return nil, &domain.SigningError{Err: errors.New("empty key")}
	}
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, &domain.SigningError{Err: err}
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func (s *Signer) Address() string {
	return strings.ToLower(s.address.Hex())
}

// AttachSigner parses hexKey and uses it for every signed operation.
func (c *Client) AttachSigner(hexKey string) error {
	signer, err := NewSigner(hexKey)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.signer = signer
	c.mu.Unlock()
	return nil
}

// SignerAddress reports the signing address, if a signer is attached.
func (c *Client) SignerAddress() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.signer == nil {
		return "", false
	}
	return c.signer.Address(), true
}

func (c *Client) currentSigner() (*Signer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.signer == nil {
		return nil, domain.ErrNoSigner
	}
	return c.signer, nil
}
