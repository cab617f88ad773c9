package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNoCredentials is returned when an adapter is built without an API key.
var ErrNoCredentials = errors.New("credentials are not configured")

// UpstreamFetchError reports that an exchange could not deliver its primary balances.
type UpstreamFetchError struct {
	Exchange string
	Op       string
	Err      error
}

// NewUpstreamFetchError wraps err with exchange identity.
func NewUpstreamFetchError(exchange, op string, err error) *UpstreamFetchError {
	return &UpstreamFetchError{Exchange: exchange, Op: op, Err: err}
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Exchange, e.Op, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error {
	return e.Err
}

// PriceOracleError reports a failed market data fetch. It never leaves the oracle.
type PriceOracleError struct {
	Source string
	Err    error
}

func (e *PriceOracleError) Error() string {
	return fmt.Sprintf("price oracle %s: %v", e.Source, e.Err)
}

func (e *PriceOracleError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a snapshot store failure. It is logged, not returned to callers of the store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("snapshot store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
