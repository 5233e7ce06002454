// Package errs names the error taxonomy shared by the replication and
// liquidation paths: decode failures, index-consistency races, RPC
// failures, store failures, and fatal startup conditions.
package errs

import "errors"

var (
	// ErrDecode marks an account payload that matched no known length/layout.
	ErrDecode = errors.New("decode error")
	// ErrMissingIndex marks a reverse lookup that returned nothing — a benign race.
	ErrMissingIndex = errors.New("missing index")
	// ErrStaleReference marks a reverse-index hit whose target index missed.
	ErrStaleReference = errors.New("stale reference")
	// ErrUnknown is the folded surface for every underlying RPC failure variant.
	ErrUnknown = errors.New("unknown rpc error")
	// ErrStore marks a local persistence failure; callers keep running.
	ErrStore = errors.New("store error")
	// ErrFatalStartup marks an unrecoverable startup condition.
	ErrFatalStartup = errors.New("fatal startup error")
)

// DecodeError wraps ErrDecode with the offending payload length.
type DecodeError struct {
	Length int
}

func (e *DecodeError) Error() string {
	return "decode error: unrecognized payload length"
}

func (e *DecodeError) Unwrap() error { return ErrDecode }

// RpcError folds every concrete RPC failure reason into ErrUnknown while
// retaining the original detail for logging.
type RpcError struct {
	Detail string
}

func (e *RpcError) Error() string { return "rpc error: " + e.Detail }

func (e *RpcError) Unwrap() error { return ErrUnknown }

// StoreError wraps ErrStore with the failing operation's key.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return "store error: " + e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error { return ErrStore }
