// Package exchange holds one adapter per supported exchange. Every adapter turns the
// exchange's account model into a domain.ExchangeSnapshot.
package exchange

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cexbalance/internal/clients"
	"github.com/vadiminshakov/cexbalance/internal/domain"
)

// Adapter fetches the normalized balances of one exchange.
type Adapter interface {
	Name() string
	// Fetch fails only when the primary balance call fails. Secondary call
	// failures are recorded in the snapshot and logged.
	Fetch(ctx context.Context) (*domain.ExchangeSnapshot, error)
}

// Settings configure one adapter.
type Settings struct {
	Name            string
	BaseURL         string
	Credentials     domain.Credentials
	SubaccountLabel string
	Timeout         time.Duration
	RequestsPerSec  float64
	Logger          *zap.Logger
}

func (s Settings) baseURL(def string) string {
	if s.BaseURL != "" {
		return strings.TrimRight(s.BaseURL, "/")
	}
	return def
}

func (s Settings) restClient() *clients.RESTClient {
	return clients.NewRESTClient(s.Name, s.Timeout, s.RequestsPerSec)
}

func (s Settings) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger.With(zap.String("exchange", s.Name))
}

// guard runs a secondary call. A failure is recorded on the snapshot and never aborts the adapter.
func guard(snapshot *domain.ExchangeSnapshot, logger *zap.Logger, op string, fn func() error) {
	if err := fn(); err != nil {
		snapshot.Omit(op, err)
		logger.Warn("secondary call failed, data omitted", zap.String("op", op), zap.Error(err))
	}
}

// number decodes exchange amounts sent either as JSON strings or numbers.
// Empty strings and null decode to zero.
type number struct {
	decimal.Decimal
}

func (n *number) UnmarshalJSON(b []byte) error {
	d, err := parseAmount(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	n.Decimal = d
	return nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse amount %q", s)
	}
	return d, nil
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
