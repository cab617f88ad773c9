package clients

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACSHA256Hex(t *testing.T) {
	// reference vector from the Binance API documentation
	secret := "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"
	payload := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"

	assert.Equal(t, "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71", HMACSHA256Hex(secret, payload))
}

func TestHMACSHA256Base64(t *testing.T) {
	sig := HMACSHA256Base64("secret", "2020-12-08T09:08:57.715ZGET/api/v5/account/balance")

	raw, err := base64.StdEncoding.DecodeString(sig)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
	assert.Equal(t, sig, HMACSHA256Base64("secret", "2020-12-08T09:08:57.715ZGET/api/v5/account/balance"))
	assert.NotEqual(t, sig, HMACSHA256Base64("other", "2020-12-08T09:08:57.715ZGET/api/v5/account/balance"))
}

func TestKrakenSign(t *testing.T) {
	// reference vector from the Kraken REST authentication guide
	secret := "kQH5HW/8p1uGOVjbgWA7FunAmGO8lsSUXNsu3eow76sz84Q18fWxnyRzBHCd3pd5nE9qa99HAZtuZuj6F1huXg=="
	sig, err := KrakenSign(secret, "/0/private/AddOrder", "1616492376594", "nonce=1616492376594&ordertype=limit&pair=XBTUSD&price=37500&type=buy&volume=1.25")
	require.NoError(t, err)

	assert.Equal(t, "4/dpxb3iT4tp/ZCVEwSnEsLxx0bqyhLpdfOpc6fn7OR8+UClSV5n9E6aSS8MPtnRfp32bAb0nmbRn6H8ndwLUQ==", sig)

	_, err = KrakenSign("%%%not base64", "/0/private/Balance", "1", "nonce=1")
	assert.Error(t, err)
}

func TestRESTClient_Do(t *testing.T) {
	var gotHeader, gotMethod, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Test")
		gotMethod = r.Method
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":"42"}`))
	}))
	defer srv.Close()

	c := NewRESTClient("test", time.Second, 0)
	var out struct {
		Value string `json:"value"`
	}
	err := c.Do(context.Background(), Request{
		Method:  http.MethodPost,
		URL:     srv.URL + "/path?a=1",
		Headers: map[string]string{"X-Test": "yes"},
		Body:    []byte("nonce=1"),
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, "42", out.Value)
	assert.Equal(t, "yes", gotHeader)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "nonce=1", gotBody)
}

func TestRESTClient_DoErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"msg":"invalid key"}`))
	}))
	defer srv.Close()

	c := NewRESTClient("test", time.Second, 5)
	err := c.Do(context.Background(), Request{URL: srv.URL}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "invalid key")
}

func TestDeriveHyperliquidAccount(t *testing.T) {
	// well known hardhat test account #0
	_, addr, err := DeriveHyperliquidAccount("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", addr)

	_, _, err = DeriveHyperliquidAccount("not-a-key")
	assert.Error(t, err)
}
