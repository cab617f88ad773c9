package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/cexbalance/internal/clients"
	"github.com/vadiminshakov/cexbalance/internal/domain"
)

func TestHTX_Fetch(t *testing.T) {
	var host string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := r.URL.Query()
		assert.Equal(t, "key", params.Get("AccessKeyId"))
		assert.Equal(t, "2024-01-15T16:30:00", params.Get("Timestamp"))

		signature := params.Get("Signature")
		params.Del("Signature")
		payload := strings.Join([]string{"GET", host, r.URL.Path, params.Encode()}, "\n")
		assert.Equal(t, clients.HMACSHA256Base64("secret", payload), signature)

		switch r.URL.Path {
		case "/v1/account/accounts":
			writeJSON(w, `{"status":"ok","data":[
				{"id":1,"type":"spot","state":"working"},
				{"id":2,"type":"margin","state":"working"},
				{"id":3,"type":"super-margin","state":"working"},
				{"id":4,"type":"investment","state":"working"},
				{"id":5,"type":"otc","state":"working"}
			]}`)
		case "/v1/account/accounts/1/balance":
			writeJSON(w, `{"status":"ok","data":{"id":1,"type":"spot","list":[
				{"currency":"usdt","type":"trade","balance":"100"},
				{"currency":"usdt","type":"frozen","balance":"25.5"},
				{"currency":"btc","type":"trade","balance":"0"}
			]}}`)
		case "/v1/account/accounts/2/balance":
			writeJSON(w, `{"status":"ok","data":{"list":[{"currency":"eth","type":"trade","balance":"1.5"}]}}`)
		case "/v1/account/accounts/3/balance":
			writeJSON(w, `{"status":"ok","data":{"list":[{"currency":"btc","type":"trade","balance":"0.2"}]}}`)
		case "/v1/account/accounts/4/balance":
			writeJSON(w, `{"status":"ok","data":{"list":[{"currency":"usdt","type":"trade","balance":"40"}]}}`)
		default:
			writeJSON(w, `{"status":"error","err-code":"base-system-error","err-msg":"try again"}`)
		}
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host = u.Host

	adapter, err := NewHTX(context.Background(), testSettings("htx", srv.URL))
	require.NoError(t, err)
	adapter.(*HTX).now = func() time.Time { return fixedNow }

	snapshot, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.NoError(t, snapshot.Validate())

	assertAmount(t, "125.5", snapshot.Master, "USDT")
	assert.NotContains(t, snapshot.Master, domain.AssetKey("BTC"))
	assertAmount(t, "1.5", snapshot.Master, "ETH_MARGIN")
	assertAmount(t, "0.2", snapshot.Master, "BTC_SUPER_MARGIN")

	// unknown account types keep their balance under a derived key
	assertAmount(t, "40", snapshot.Master, "USDT_INVESTMENT")
	assertAmount(t, "40", snapshot.Total, "USDT_INVESTMENT")

	// failing balances are omitted
	require.Len(t, snapshot.Omitted, 1)
	assert.Equal(t, "account 5 balance", snapshot.Omitted[0].Op)
	assert.Contains(t, snapshot.Omitted[0].Cause, "base-system-error")

	// the super margin key must resolve to the BTC price, not MARGIN
	base, q := domain.AssetKey("BTC_SUPER_MARGIN").Split()
	assert.Equal(t, "BTC", base)
	assert.Equal(t, domain.QualifierSuperMargin, q)
}

func TestHTX_AccountListFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"status":"error","err-code":"api-signature-not-valid","err-msg":"Signature not valid"}`)
	}))
	defer srv.Close()

	adapter, err := NewHTX(context.Background(), testSettings("htx", srv.URL))
	require.NoError(t, err)

	_, err = adapter.Fetch(context.Background())
	var upstream *domain.UpstreamFetchError
	require.ErrorAs(t, err, &upstream)
	assert.Contains(t, err.Error(), "api-signature-not-valid")
}
