package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// BalanceMap holds signed amounts per asset key.
type BalanceMap map[AssetKey]decimal.Decimal

// Add accumulates amount under key.
func (m BalanceMap) Add(key AssetKey, amount decimal.Decimal) {
	m[key] = m[key].Add(amount)
}

// USDMap holds exchange-supplied USD figures per asset key.
type USDMap map[AssetKey]decimal.Decimal

// BreakdownEntry is a single valued position.
type BreakdownEntry struct {
	Amount decimal.Decimal `json:"amount"`
	USD    decimal.Decimal `json:"usd"`
}

// TierValuation is the valued state of one subaccount.
type TierValuation struct {
	USD       decimal.Decimal             `json:"usd"`
	Breakdown map[AssetKey]BreakdownEntry `json:"breakdown"`
}

// OmittedCall describes a secondary exchange call whose data was left out of the snapshot.
type OmittedCall struct {
	Op    string `json:"op"`
	Cause string `json:"cause"`
}

// ExchangeSnapshot is the normalized balance state of one exchange.
// Total always equals Master plus every Subaccounts entry, summed per key.
type ExchangeSnapshot struct {
	Master      BalanceMap            `json:"master"`
	Subaccounts map[string]BalanceMap `json:"subaccounts"`
	Total       BalanceMap            `json:"total"`

	UnrealizedPnl          BalanceMap        `json:"upnl,omitempty"`
	DirectUSD              USDMap            `json:"usd_values,omitempty"`
	DirectUSDPerSubaccount map[string]USDMap `json:"subaccounts_usd_direct,omitempty"`

	MasterUSD           decimal.Decimal             `json:"master_usd"`
	MasterBreakdown     map[AssetKey]BreakdownEntry `json:"master_breakdown"`
	SubaccountsUSD      map[string]TierValuation    `json:"subaccounts_usd"`
	SubaccountsTotalUSD decimal.Decimal             `json:"subaccounts_total_usd"`
	ExchangeTotalUSD    decimal.Decimal             `json:"exchange_total_usd"`

	Omitted []OmittedCall `json:"omitted,omitempty"`
}

// NewExchangeSnapshot creates an empty snapshot.
func NewExchangeSnapshot() *ExchangeSnapshot {
	return &ExchangeSnapshot{
		Master:      make(BalanceMap),
		Subaccounts: make(map[string]BalanceMap),
		Total:       make(BalanceMap),
	}
}

// AddMaster records amount on the master tier and in Total.
func (s *ExchangeSnapshot) AddMaster(key AssetKey, amount decimal.Decimal) {
	s.Master.Add(key, amount)
	s.Total.Add(key, amount)
}

// AddSubaccount records amount for the subaccount and in Total.
func (s *ExchangeSnapshot) AddSubaccount(sub string, key AssetKey, amount decimal.Decimal) {
	bal, ok := s.Subaccounts[sub]
	if !ok {
		bal = make(BalanceMap)
		s.Subaccounts[sub] = bal
	}
	bal.Add(key, amount)
	s.Total.Add(key, amount)
}

// MergeSubaccount records a whole subaccount map. Empty maps are skipped.
func (s *ExchangeSnapshot) MergeSubaccount(sub string, bal BalanceMap) {
	for key, amount := range bal {
		s.AddSubaccount(sub, key, amount)
	}
}

// AddUnrealizedPnl accumulates unrealized PnL under key.
func (s *ExchangeSnapshot) AddUnrealizedPnl(key AssetKey, amount decimal.Decimal) {
	if s.UnrealizedPnl == nil {
		s.UnrealizedPnl = make(BalanceMap)
	}
	s.UnrealizedPnl.Add(key, amount)
}

// AddDirectUSD accumulates an exchange-supplied master-tier USD figure.
func (s *ExchangeSnapshot) AddDirectUSD(key AssetKey, usd decimal.Decimal) {
	if s.DirectUSD == nil {
		s.DirectUSD = make(USDMap)
	}
	s.DirectUSD[key] = s.DirectUSD[key].Add(usd)
}

// SetSubaccountDirectUSD stores exchange-supplied USD figures for a subaccount.
func (s *ExchangeSnapshot) SetSubaccountDirectUSD(sub string, usd USDMap) {
	if s.DirectUSDPerSubaccount == nil {
		s.DirectUSDPerSubaccount = make(map[string]USDMap)
	}
	s.DirectUSDPerSubaccount[sub] = usd
}

// Omit records a secondary call failure.
func (s *ExchangeSnapshot) Omit(op string, err error) {
	s.Omitted = append(s.Omitted, OmittedCall{Op: op, Cause: err.Error()})
}

// Validate checks the Total invariant.
func (s *ExchangeSnapshot) Validate() error {
	expected := make(BalanceMap, len(s.Total))
	for key, amount := range s.Master {
		expected.Add(key, amount)
	}
	for _, bal := range s.Subaccounts {
		for key, amount := range bal {
			expected.Add(key, amount)
		}
	}

	if len(expected) != len(s.Total) {
		return fmt.Errorf("total has %d keys, expected %d", len(s.Total), len(expected))
	}
	for key, amount := range expected {
		got, ok := s.Total[key]
		if !ok || !got.Equal(amount) {
			return fmt.Errorf("total for %s is %s, expected %s", key, got.String(), amount.String())
		}
	}
	return nil
}
