package pricer

import (
	"context"

	"github.com/adshao/go-binance/v2"

	"github.com/vadiminshakov/cexbalance/internal/domain"
)

// Pricer yields the price table for one aggregation cycle. It never fails.
type Pricer interface {
	FetchPrices(ctx context.Context) domain.PriceTable
}

// Ticker is one symbol price as reported by the market data source.
type Ticker struct {
	Symbol string
	Price  string
}

// TickerSource lists every ticker of a spot market.
type TickerSource interface {
	Tickers(ctx context.Context) ([]Ticker, error)
}

// BinanceTickerSource reads the public Binance spot ticker list.
type BinanceTickerSource struct {
	client *binance.Client
}

func NewBinanceTickerSource(client *binance.Client) *BinanceTickerSource {
	return &BinanceTickerSource{client: client}
}

func (s *BinanceTickerSource) Tickers(ctx context.Context) ([]Ticker, error) {
	prices, err := s.client.NewListPricesService().Do(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Ticker, 0, len(prices))
	for _, p := range prices {
		out = append(out, Ticker{Symbol: p.Symbol, Price: p.Price})
	}
	return out, nil
}
