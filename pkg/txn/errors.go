package txn

import "errors"

// Sentinel errors surfaced by the transaction manager and data sites,
// wrapped with fmt.Errorf("...: %w", ...) at call sites in the style of
// pkg/cell/errors.go.
var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrWrongState          = errors.New("transaction is not in the required state")
	ErrNotRealizable       = errors.New("transaction is not realizable")
	ErrDataSiteError       = errors.New("data site error")
	ErrTooManyRetries      = errors.New("exceeded transaction retry budget")
)
