package valuation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/cexbalance/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testPrices() domain.PriceTable {
	return domain.NewPriceTable(map[string]decimal.Decimal{
		"BTC": d("100000"),
		"ETH": d("3500"),
	}, domain.PriceSourceMarket, time.Now())
}

func TestEngine_Resolve(t *testing.T) {
	engine := NewEngine(testPrices())

	tests := []struct {
		name     string
		key      domain.AssetKey
		amount   decimal.Decimal
		direct   domain.USDMap
		expected decimal.Decimal
	}{
		{
			name:     "plain symbol",
			key:      "BTC",
			amount:   d("0.5"),
			expected: d("50000"),
		},
		{
			name:     "negative futures position",
			key:      "ETH_FUTURES",
			amount:   d("-50"),
			expected: d("-175000"),
		},
		{
			name:     "coin futures strips the longest suffix",
			key:      "BTC_COIN_FUTURES",
			amount:   d("1"),
			expected: d("100000"),
		},
		{
			name:     "unknown symbol is worth nothing",
			key:      "NOPE",
			amount:   d("1000"),
			expected: decimal.Zero,
		},
		{
			name:     "direct usd wins over the table",
			key:      "BTC",
			amount:   d("1"),
			direct:   domain.USDMap{"BTC": d("12.34")},
			expected: d("12.34"),
		},
		{
			name:     "direct usd for a symbol missing from the table",
			key:      "SOL",
			amount:   d("10"),
			direct:   domain.USDMap{"SOL": d("200.55")},
			expected: d("200.55"),
		},
		{
			name:     "direct map without the key falls back to the table",
			key:      "ETH",
			amount:   d("2"),
			direct:   domain.USDMap{"SOL": d("1")},
			expected: d("7000"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Resolve(tt.key, tt.amount, tt.direct)
			assert.True(t, tt.expected.Equal(got), "expected %s, got %s", tt.expected, got)
		})
	}
}

func TestValue_MasterTier(t *testing.T) {
	snapshot := domain.NewExchangeSnapshot()
	snapshot.AddMaster("BTC", d("0.5"))
	snapshot.AddMaster("USDT", d("1000"))
	snapshot.AddMaster("DUST", d("5"))
	results := map[string]*domain.ExchangeSnapshot{"binance": snapshot}

	Value(results, testPrices())

	assert.True(t, d("51000").Equal(snapshot.MasterUSD), "got %s", snapshot.MasterUSD)
	assert.True(t, d("51000").Equal(snapshot.ExchangeTotalUSD))
	assert.True(t, snapshot.SubaccountsTotalUSD.IsZero())
	require.Len(t, snapshot.MasterBreakdown, 2, "zero-usd entries are left out")
	assert.True(t, d("50000").Equal(snapshot.MasterBreakdown["BTC"].USD))
	assert.True(t, d("0.5").Equal(snapshot.MasterBreakdown["BTC"].Amount))
	assert.NotContains(t, snapshot.MasterBreakdown, domain.AssetKey("DUST"))
}

func TestValue_MasterIgnoresDirectUSD(t *testing.T) {
	snapshot := domain.NewExchangeSnapshot()
	snapshot.AddMaster("BTC", d("1"))
	snapshot.AddDirectUSD("BTC", d("1"))
	results := map[string]*domain.ExchangeSnapshot{"okx": snapshot}

	Value(results, testPrices())

	assert.True(t, d("100000").Equal(snapshot.MasterUSD), "got %s", snapshot.MasterUSD)
}

func TestValue_SubaccountDirectUSD(t *testing.T) {
	snapshot := domain.NewExchangeSnapshot()
	snapshot.AddSubaccount("desk", "SOL", d("10"))
	snapshot.AddSubaccount("desk", "BTC", d("1"))
	snapshot.SetSubaccountDirectUSD("desk", domain.USDMap{
		"SOL": d("200.55"),
		"BTC": d("99000"),
	})
	snapshot.AddSubaccount("other", "ETH", d("1"))
	results := map[string]*domain.ExchangeSnapshot{"okx": snapshot}

	Value(results, testPrices())

	desk := snapshot.SubaccountsUSD["desk"]
	assert.True(t, d("99200.55").Equal(desk.USD), "got %s", desk.USD)
	assert.True(t, d("200.55").Equal(desk.Breakdown["SOL"].USD))
	assert.True(t, d("99000").Equal(desk.Breakdown["BTC"].USD))
	assert.True(t, d("3500").Equal(snapshot.SubaccountsUSD["other"].USD))
	assert.True(t, d("102700.55").Equal(snapshot.SubaccountsTotalUSD))
	assert.True(t, d("102700.55").Equal(snapshot.ExchangeTotalUSD))
}

func TestValue_Rounding(t *testing.T) {
	prices := domain.NewPriceTable(map[string]decimal.Decimal{"XYZ": d("0.3333")}, domain.PriceSourceMarket, time.Now())

	a := domain.NewExchangeSnapshot()
	a.AddMaster("XYZ", d("1"))
	b := domain.NewExchangeSnapshot()
	b.AddMaster("XYZ", d("1"))
	results := map[string]*domain.ExchangeSnapshot{"a": a, "b": b}

	Value(results, prices)

	assert.Equal(t, "0.33", a.MasterUSD.StringFixed(2))
	assert.Equal(t, "0.33", a.MasterBreakdown["XYZ"].USD.StringFixed(2))
	// 0.33 + 0.33, not round(0.6666)
	assert.Equal(t, "0.66", GrandTotal(results).StringFixed(2))
}

func TestValue_Idempotent(t *testing.T) {
	build := func() map[string]*domain.ExchangeSnapshot {
		s := domain.NewExchangeSnapshot()
		s.AddMaster("BTC", d("0.123456"))
		s.AddMaster("ETH_EARN", d("3.3"))
		s.AddSubaccount("sub1", "ETH_FUTURES", d("-1.5"))
		s.SetSubaccountDirectUSD("sub1", domain.USDMap{"USDT": d("10")})
		return map[string]*domain.ExchangeSnapshot{"x": s}
	}

	results := build()
	Value(results, testPrices())
	first, err := json.Marshal(results)
	require.NoError(t, err)

	Value(results, testPrices())
	second, err := json.Marshal(results)
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
}

func TestGrandTotal(t *testing.T) {
	a := domain.NewExchangeSnapshot()
	a.ExchangeTotalUSD = d("10.01")
	b := domain.NewExchangeSnapshot()
	b.ExchangeTotalUSD = d("-5.005")

	assert.Equal(t, "5.01", GrandTotal(map[string]*domain.ExchangeSnapshot{"a": a, "b": b}).StringFixed(2))
	assert.True(t, GrandTotal(nil).IsZero())
}
