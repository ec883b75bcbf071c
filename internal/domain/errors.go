// internal/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups with no match.
var ErrNotFound = errors.New("not found")

// UnsupportedChainError is returned when a chain is outside a declared support list.
type UnsupportedChainError struct {
	Chain    Chain
	Protocol Protocol
}

func (e *UnsupportedChainError) Error() string {
	if e.Protocol != "" {
		return fmt.Sprintf("chain %q is not supported by %s", e.Chain, e.Protocol)
	}
	return fmt.Sprintf("unsupported chain: %q", e.Chain)
}

// UnsupportedAssetError is returned for assets outside the whitelist.
type UnsupportedAssetError struct {
	Asset Asset
}

func (e *UnsupportedAssetError) Error() string {
	return fmt.Sprintf("unsupported asset: %q", e.Asset)
}

// MalformedDataError marks a bad row in a bulk import. Rows carrying it are skipped.
type MalformedDataError struct {
	Field string
	Value string
	Err   error
}

func (e *MalformedDataError) Error() string {
	return fmt.Sprintf("malformed %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *MalformedDataError) Unwrap() error {
	return e.Err
}

// MalformedAmountError is returned for non-numeric or negative move amounts.
type MalformedAmountError struct {
	Amount string
}

func (e *MalformedAmountError) Error() string {
	return fmt.Sprintf("malformed amount: %q", e.Amount)
}

// QuoteServiceError wraps a failure of the external swap/bridge quote service.
type QuoteServiceError struct {
	FromChain Chain
	ToChain   Chain
	Err       error
}

func (e *QuoteServiceError) Error() string {
	return fmt.Sprintf("quote service %s->%s: %v", e.FromChain, e.ToChain, e.Err)
}

func (e *QuoteServiceError) Unwrap() error {
	return e.Err
}

// GasPriceServiceError wraps a gas oracle failure. It is recovered with the static table.
type GasPriceServiceError struct {
	Chain Chain
	Err   error
}

func (e *GasPriceServiceError) Error() string {
	return fmt.Sprintf("gas price service for %s: %v", e.Chain, e.Err)
}

func (e *GasPriceServiceError) Unwrap() error {
	return e.Err
}

// DataSourceTimeoutError is surfaced once a data source exhausts its retries.
type DataSourceTimeoutError struct {
	Protocol Protocol
	Chain    Chain
	Attempts int
	Err      error
}

func (e *DataSourceTimeoutError) Error() string {
	return fmt.Sprintf("%s/%s data source failed after %d attempts: %v", e.Protocol, e.Chain, e.Attempts, e.Err)
}

func (e *DataSourceTimeoutError) Unwrap() error {
	return e.Err
}
