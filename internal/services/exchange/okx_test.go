package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/cexbalance/internal/clients"
	"github.com/vadiminshakov/cexbalance/internal/domain"
	"github.com/vadiminshakov/cexbalance/internal/services/valuation"
)

func okxServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts := r.Header.Get("OK-ACCESS-TIMESTAMP")
		assert.Equal(t, "2024-01-15T16:30:00.000Z", ts)
		assert.Equal(t, "key", r.Header.Get("OK-ACCESS-KEY"))
		assert.Equal(t, "pass", r.Header.Get("OK-ACCESS-PASSPHRASE"))
		assert.Equal(t, clients.HMACSHA256Base64("secret", ts+"GET"+r.URL.RequestURI()), r.Header.Get("OK-ACCESS-SIGN"))

		body, ok := routes[r.URL.RequestURI()]
		if !ok {
			writeJSON(w, `{"code":"50001","msg":"service temporarily unavailable"}`)
			return
		}
		writeJSON(w, body)
	}))
}

func newTestOKX(t *testing.T, baseURL string) *OKX {
	t.Helper()
	adapter, err := NewOKX(context.Background(), testSettings("okx", baseURL))
	require.NoError(t, err)
	okx := adapter.(*OKX)
	okx.now = func() time.Time { return fixedNow }
	return okx
}

func TestOKX_Fetch(t *testing.T) {
	srv := okxServer(t, map[string]string{
		"/api/v5/account/balance": `{"code":"0","data":[{"details":[
			{"ccy":"BTC","cashBal":"0.5","eqUsd":"49000.1"},
			{"ccy":"USDT","cashBal":"100","eqUsd":""},
			{"ccy":"OLD","cashBal":"0","eqUsd":"0"}
		]}]}`,
		"/api/v5/users/subaccount/list": `{"code":"0","data":[{"subAcct":"desk"},{"subAcct":"empty"},{"subAcct":"down"}]}`,
		"/api/v5/account/subaccount/balances?subAcct=desk": `{"code":"0","data":[{"details":[
			{"ccy":"SOL","cashBal":"10","eqUsd":"200.55"},
			{"ccy":"BTC","cashBal":"1","eqUsd":"99000"}
		]}]}`,
		"/api/v5/account/subaccount/balances?subAcct=empty": `{"code":"0","data":[{"details":[]}]}`,
	})
	defer srv.Close()

	snapshot, err := newTestOKX(t, srv.URL).Fetch(context.Background())
	require.NoError(t, err)
	require.NoError(t, snapshot.Validate())

	assertAmount(t, "0.5", snapshot.Master, "BTC")
	assertAmount(t, "100", snapshot.Master, "USDT")
	assert.NotContains(t, snapshot.Master, domain.AssetKey("OLD"))

	require.Len(t, snapshot.Subaccounts, 1)
	assertAmount(t, "10", snapshot.Subaccounts["desk"], "SOL")
	assert.True(t, d("200.55").Equal(snapshot.DirectUSDPerSubaccount["desk"]["SOL"]))
	assert.True(t, d("148000.1").Equal(snapshot.DirectUSD["BTC"]))

	require.Len(t, snapshot.Omitted, 1)
	assert.Equal(t, "sub-account balance down", snapshot.Omitted[0].Op)
	assert.Contains(t, snapshot.Omitted[0].Cause, "50001")
}

func TestOKX_DirectUSDPrecedence(t *testing.T) {
	srv := okxServer(t, map[string]string{
		"/api/v5/account/balance":                           `{"code":"0","data":[{"details":[{"ccy":"BTC","cashBal":"1","eqUsd":"1"}]}]}`,
		"/api/v5/users/subaccount/list":                     `{"code":"0","data":[{"subAcct":"desk"}]}`,
		"/api/v5/account/subaccount/balances?subAcct=desk": `{"code":"0","data":[{"details":[{"ccy":"SOL","cashBal":"10","eqUsd":"200.55"}]}]}`,
	})
	defer srv.Close()

	snapshot, err := newTestOKX(t, srv.URL).Fetch(context.Background())
	require.NoError(t, err)

	prices := domain.NewPriceTable(map[string]decimal.Decimal{"BTC": d("100000"), "SOL": d("150")}, domain.PriceSourceMarket, fixedNow)
	valuation.Value(map[string]*domain.ExchangeSnapshot{"okx": snapshot}, prices)

	// master ignores the exchange figure, sub-accounts use it
	assert.Equal(t, "100000.00", snapshot.MasterUSD.StringFixed(2))
	assert.Equal(t, "200.55", snapshot.SubaccountsUSD["desk"].USD.StringFixed(2))
	assert.Equal(t, "100200.55", snapshot.ExchangeTotalUSD.StringFixed(2))
}

func TestOKX_PrimaryErrorCode(t *testing.T) {
	srv := okxServer(t, map[string]string{})
	defer srv.Close()

	_, err := newTestOKX(t, srv.URL).Fetch(context.Background())

	var upstream *domain.UpstreamFetchError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "okx", upstream.Exchange)
}

func TestKuCoin_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts := r.Header.Get("KC-API-TIMESTAMP")
		assert.Equal(t, "1705336200000", ts)
		assert.Equal(t, clients.HMACSHA256Base64("secret", ts+"GET"+r.URL.RequestURI()), r.Header.Get("KC-API-SIGN"))
		assert.Equal(t, clients.HMACSHA256Base64("secret", "pass"), r.Header.Get("KC-API-PASSPHRASE"))
		assert.Equal(t, "2", r.Header.Get("KC-API-KEY-VERSION"))

		switch r.URL.Path {
		case "/api/v1/accounts":
			writeJSON(w, `{"code":"200000","data":[
				{"currency":"USDT","type":"main","balance":"10"},
				{"currency":"USDT","type":"trade","balance":"5.5"},
				{"currency":"KCS","type":"trade","balance":"0"}
			]}`)
		case "/api/v2/sub/user":
			writeJSON(w, `{"code":"200000","data":[{"userId":"u1","subName":"bot"},{"userId":"u2","subName":""}]}`)
		case "/api/v1/sub-accounts/u1":
			writeJSON(w, `{"code":"200000","data":{
				"mainAccounts":[{"currency":"BTC","balance":"0.1"}],
				"tradeAccounts":[{"currency":"BTC","balance":"0.2"}],
				"marginAccounts":[{"currency":"ETH","balance":"1"}]
			}}`)
		default:
			writeJSON(w, `{"code":"400100","msg":"no such sub user"}`)
		}
	}))
	defer srv.Close()

	adapter, err := NewKuCoin(context.Background(), testSettings("kucoin", srv.URL))
	require.NoError(t, err)
	adapter.(*KuCoin).now = func() time.Time { return fixedNow }

	snapshot, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.NoError(t, snapshot.Validate())

	assertAmount(t, "15.5", snapshot.Master, "USDT")
	assert.NotContains(t, snapshot.Master, domain.AssetKey("KCS"))
	assertAmount(t, "0.3", snapshot.Subaccounts["bot"], "BTC")
	assertAmount(t, "1", snapshot.Subaccounts["bot"], "ETH")
	assert.NotContains(t, snapshot.Subaccounts, "u2")
	require.Len(t, snapshot.Omitted, 1)
	assert.Equal(t, "sub-user balance u2", snapshot.Omitted[0].Op)
}
