package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSource tells where a price table came from.
type PriceSource string

const (
	PriceSourceMarket   PriceSource = "market"
	PriceSourceFallback PriceSource = "fallback"
	PriceSourceCache    PriceSource = "cache"
)

// StableCoins are always priced at exactly one dollar.
var StableCoins = []string{"USDT", "USDC", "BUSD", "DAI", "TUSD", "FDUSD", "USD1", "USDE"}

// PriceTable maps base symbols to USD unit prices for one aggregation cycle.
type PriceTable struct {
	Prices    map[string]decimal.Decimal `json:"prices"`
	Source    PriceSource                `json:"source"`
	FetchedAt time.Time                  `json:"fetched_at"`
}

// NewPriceTable creates a table from raw prices and pins stablecoins.
func NewPriceTable(prices map[string]decimal.Decimal, source PriceSource, fetchedAt time.Time) PriceTable {
	table := PriceTable{
		Prices:    make(map[string]decimal.Decimal, len(prices)+len(StableCoins)),
		Source:    source,
		FetchedAt: fetchedAt,
	}
	for symbol, price := range prices {
		table.Prices[symbol] = price
	}
	table.PinStableCoins()
	return table
}

// PinStableCoins overwrites every stablecoin price with 1.
func (t PriceTable) PinStableCoins() {
	for _, symbol := range StableCoins {
		t.Prices[symbol] = decimal.NewFromInt(1)
	}
}

// Price returns the unit price of a base symbol, zero when unknown.
func (t PriceTable) Price(symbol string) decimal.Decimal {
	price, ok := t.Prices[symbol]
	if !ok {
		return decimal.Zero
	}
	return price
}

// Len returns the number of priced symbols.
func (t PriceTable) Len() int {
	return len(t.Prices)
}
