package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNoSigner          = errors.New("no signer available: provide a private key")
	ErrNotFound          = errors.New("not found")
	ErrNotConnected      = errors.New("not connected")
	ErrConnectInProgress = errors.New("connect already in progress")
	ErrRefreshInFlight   = errors.New("refresh already in flight")
)

// ConnectionError means the endpoint is unreachable or failed the liveness check.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SigningError means the supplied private key could not be parsed.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("invalid private key: %v", e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// FetchError is a failed lookup of a single block, transaction or account.
type FetchError struct {
	Kind string
	Key  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %s: %v", e.Kind, e.Key, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// CompileError carries the first error reported by the compiler.
type CompileError struct {
	Message string
}

func (e *CompileError) Error() string {
	return e.Message
}

// VerificationInputError rejects malformed verification input before it is stored.
type VerificationInputError struct {
	Field string
	Err   error
}

func (e *VerificationInputError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *VerificationInputError) Unwrap() error { return e.Err }
