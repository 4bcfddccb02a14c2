package secrets

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	boxVersion = 1
	saltSize   = 16
)

var ErrOpen = errors.New("secrets: wrong passphrase or corrupted data")

type scryptParams struct {
	N, R, P int
}

var defaultParams = scryptParams{N: 1 << 15, R: 8, P: 1}

// Box seals small secrets with a key derived from a passphrase. Each sealed
// value is version || salt || nonce || ciphertext and carries its own salt.
type Box struct {
	passphrase []byte
	params     scryptParams
}

func NewBox(passphrase string) (*Box, error) {
	if passphrase == "" {
		return nil, errors.New("secrets: passphrase is required")
	}
	return &Box{passphrase: []byte(passphrase), params: defaultParams}, nil
}

func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("secrets: generate salt: %w", err)
	}
	aead, err := b.aead(salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("secrets: generate nonce: %w", err)
	}

	header := make([]byte, 0, 1+saltSize+len(nonce))
	header = append(header, boxVersion)
	header = append(header, salt...)
	header = append(header, nonce...)
	return aead.Seal(header, nonce, plaintext, header[:1+saltSize]), nil
}

func (b *Box) Open(sealed []byte) ([]byte, error) {
	headerSize := 1 + saltSize + chacha20poly1305.NonceSizeX
	if len(sealed) < headerSize+chacha20poly1305.Overhead {
		return nil, ErrOpen
	}
	if sealed[0] != boxVersion {
		return nil, fmt.Errorf("secrets: unsupported box version %d", sealed[0])
	}
	salt := sealed[1 : 1+saltSize]
	nonce := sealed[1+saltSize : headerSize]

	aead, err := b.aead(salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, sealed[headerSize:], sealed[:1+saltSize])
	if err != nil {
		return nil, ErrOpen
	}
	return plaintext, nil
}

func (b *Box) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(b.passphrase, salt, b.params.N, b.params.R, b.params.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("secrets: derive key: %w", err)
	}
	return chacha20poly1305.NewX(key)
}
