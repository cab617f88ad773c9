// Package valuation converts normalized exchange balances into USD totals.
package valuation

import (
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/cexbalance/internal/domain"
)

// usdPlaces is the precision every USD figure is rounded to when computed.
const usdPlaces = 2

// Engine values exchange snapshots against a price table.
type Engine struct {
	prices domain.PriceTable
}

// NewEngine creates an engine bound to one cycle's prices.
func NewEngine(prices domain.PriceTable) *Engine {
	return &Engine{prices: prices}
}

// Resolve returns the USD value of amount units of key.
// A figure in direct is already USD and wins over the price table.
func (e *Engine) Resolve(key domain.AssetKey, amount decimal.Decimal, direct domain.USDMap) decimal.Decimal {
	if direct != nil {
		if usd, ok := direct[key]; ok {
			return usd
		}
	}
	return amount.Mul(e.prices.Price(key.Base()))
}

// Value prices results with the given table, augmenting the snapshots in place.
func Value(results map[string]*domain.ExchangeSnapshot, prices domain.PriceTable) {
	NewEngine(prices).Value(results)
}

// Value fills the USD fields of every snapshot in place.
func (e *Engine) Value(results map[string]*domain.ExchangeSnapshot) {
	for _, snapshot := range results {
		e.valueSnapshot(snapshot)
	}
}

func (e *Engine) valueSnapshot(s *domain.ExchangeSnapshot) {
	// the master tier is priced from the table even when the exchange reports USD for it
	masterUSD, masterBreakdown := e.valueTier(s.Master, nil)
	s.MasterUSD = masterUSD.Round(usdPlaces)
	s.MasterBreakdown = masterBreakdown

	s.SubaccountsUSD = make(map[string]domain.TierValuation, len(s.Subaccounts))
	subTotal := decimal.Zero
	for sub, bal := range s.Subaccounts {
		subUSD, breakdown := e.valueTier(bal, s.DirectUSDPerSubaccount[sub])
		s.SubaccountsUSD[sub] = domain.TierValuation{
			USD:       subUSD.Round(usdPlaces),
			Breakdown: breakdown,
		}
		subTotal = subTotal.Add(subUSD)
	}
	s.SubaccountsTotalUSD = subTotal.Round(usdPlaces)
	s.ExchangeTotalUSD = masterUSD.Add(subTotal).Round(usdPlaces)
}

// valueTier returns the unrounded tier sum and the non-zero breakdown.
func (e *Engine) valueTier(bal domain.BalanceMap, direct domain.USDMap) (decimal.Decimal, map[domain.AssetKey]domain.BreakdownEntry) {
	sum := decimal.Zero
	breakdown := make(map[domain.AssetKey]domain.BreakdownEntry)
	for key, amount := range bal {
		usd := e.Resolve(key, amount, direct)
		sum = sum.Add(usd)
		if !usd.IsZero() {
			breakdown[key] = domain.BreakdownEntry{Amount: amount, USD: usd.Round(usdPlaces)}
		}
	}
	return sum, breakdown
}

// GrandTotal sums the already rounded exchange totals and rounds once more.
func GrandTotal(results map[string]*domain.ExchangeSnapshot) decimal.Decimal {
	total := decimal.Zero
	for _, snapshot := range results {
		total = total.Add(snapshot.ExchangeTotalUSD)
	}
	return total.Round(usdPlaces)
}
