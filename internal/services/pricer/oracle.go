package pricer

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cexbalance/internal/domain"
)

// FallbackPrices is used whenever market data cannot be fetched.
func FallbackPrices() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"BTC":  decimal.NewFromInt(100000),
		"ETH":  decimal.NewFromInt(3500),
		"USDT": decimal.NewFromInt(1),
		"USDC": decimal.NewFromInt(1),
		"BNB":  decimal.NewFromInt(700),
	}
}

// Oracle builds price tables from quote-denominated tickers.
type Oracle struct {
	source  TickerSource
	quote   string
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

func NewOracle(source TickerSource, quote string, timeout time.Duration, logger *zap.Logger) *Oracle {
	return &Oracle{
		source:  source,
		quote:   strings.ToUpper(quote),
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// FetchPrices returns the market table, or the fallback table when anything goes wrong.
// Partial market data is never mixed with the fallback.
func (o *Oracle) FetchPrices(ctx context.Context) domain.PriceTable {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	prices, err := o.marketPrices(ctx)
	if err != nil {
		o.logger.Warn("price fetch failed, using fallback prices",
			zap.Error(&domain.PriceOracleError{Source: "binance", Err: err}))
		return domain.NewPriceTable(FallbackPrices(), domain.PriceSourceFallback, o.now())
	}

	table := domain.NewPriceTable(prices, domain.PriceSourceMarket, o.now())
	o.logger.Info("prices loaded", zap.Int("count", table.Len()))

	return table
}

func (o *Oracle) marketPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	tickers, err := o.source.Tickers(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list tickers")
	}

	prices := make(map[string]decimal.Decimal)
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, o.quote) || len(t.Symbol) == len(o.quote) {
			continue
		}
		price, err := decimal.NewFromString(t.Price)
		if err != nil {
			return nil, errors.Wrapf(err, "parse price %q for %s", t.Price, t.Symbol)
		}
		prices[strings.TrimSuffix(t.Symbol, o.quote)] = price
	}

	return prices, nil
}
