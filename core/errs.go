package core

import (
	"errors"
	"fmt"
)

var (
	ErrBaseAssetEmpty  = errors.New("empty base asset")
	ErrQuoteAssetEmpty = errors.New("empty quote asset")
	ErrNegativeValue   = errors.New("negative value")
)

// ErrorKind classifies failures so callers can choose a recovery policy
// without string matching
type ErrorKind string

const (
	ErrKindTransientNetwork    ErrorKind = "transient_network"
	ErrKindRateLimit           ErrorKind = "rate_limit"
	ErrKindAuthFailure         ErrorKind = "auth_failure"
	ErrKindOrderRejected       ErrorKind = "order_rejected"
	ErrKindInsufficientBalance ErrorKind = "insufficient_balance"
	ErrKindMarketClosed        ErrorKind = "market_closed"
	ErrKindStaleData           ErrorKind = "stale_data"
	ErrKindPluginUnavailable   ErrorKind = "plugin_unavailable"
	ErrKindInvariantViolation  ErrorKind = "invariant_violation"
	ErrKindFatal               ErrorKind = "fatal"
)

// Retryable reports whether a failure of this kind may clear on its own
func (k ErrorKind) Retryable() bool {
	return k == ErrKindTransientNetwork || k == ErrKindRateLimit
}

// Halting reports whether a failure of this kind must stop trading until
// an operator intervenes
func (k ErrorKind) Halting() bool {
	return k == ErrKindAuthFailure || k == ErrKindInvariantViolation || k == ErrKindFatal
}

// TradingError is a classified error with the operation that produced it
type TradingError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *TradingError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *TradingError) Unwrap() error { return e.Err }

// NewError wraps err with a kind and operation name
func NewError(kind ErrorKind, op string, err error) *TradingError {
	return &TradingError{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string
func Errorf(kind ErrorKind, op, format string, args ...any) *TradingError {
	return &TradingError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the error kind from err, unwrapping as needed.
// Unclassified errors report ErrKindTransientNetwork, the safest retryable
// default for gateway failures.
func KindOf(err error) ErrorKind {
	var terr *TradingError
	if errors.As(err, &terr) {
		return terr.Kind
	}
	return ErrKindTransientNetwork
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
