package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/cexbalance/internal/clients"
	"github.com/vadiminshakov/cexbalance/internal/domain"
)

const (
	okxBaseURL         = "https://www.okx.com"
	okxTimestampLayout = "2006-01-02T15:04:05.000Z"
)

type okxBalanceDetail struct {
	Ccy     string `json:"ccy"`
	CashBal number `json:"cashBal"`
	EqUsd   number `json:"eqUsd"`
}

// OKX reads the trading account of the master and every sub-account. OKX reports
// an USD equivalent per currency which is kept next to the amounts.
type OKX struct {
	rest    *clients.RESTClient
	baseURL string
	creds   domain.Credentials
	logger  *zap.Logger
	now     func() time.Time
}

func NewOKX(_ context.Context, s Settings) (Adapter, error) {
	return &OKX{
		rest:    s.restClient(),
		baseURL: s.baseURL(okxBaseURL),
		creds:   s.Credentials,
		logger:  s.logger(),
		now:     time.Now,
	}, nil
}

func (o *OKX) Name() string { return "okx" }

func (o *OKX) Fetch(ctx context.Context) (*domain.ExchangeSnapshot, error) {
	var data []struct {
		Details []okxBalanceDetail `json:"details"`
	}
	if err := o.signed(ctx, "/api/v5/account/balance", &data); err != nil {
		return nil, domain.NewUpstreamFetchError(o.Name(), "account balance", err)
	}

	snapshot := domain.NewExchangeSnapshot()
	if len(data) > 0 {
		for _, d := range data[0].Details {
			if !d.CashBal.IsPositive() {
				continue
			}
			snapshot.AddMaster(domain.AssetKey(d.Ccy), d.CashBal.Decimal)
			if d.EqUsd.IsPositive() {
				snapshot.AddDirectUSD(domain.AssetKey(d.Ccy), d.EqUsd.Decimal)
			}
		}
	}

	guard(snapshot, o.logger, "sub-account list", func() error { return o.subaccounts(ctx, snapshot) })

	return snapshot, nil
}

func (o *OKX) subaccounts(ctx context.Context, snapshot *domain.ExchangeSnapshot) error {
	var subs []struct {
		SubAcct string `json:"subAcct"`
	}
	if err := o.signed(ctx, "/api/v5/users/subaccount/list", &subs); err != nil {
		return err
	}

	for _, sub := range subs {
		name := sub.SubAcct
		guard(snapshot, o.logger, "sub-account balance "+name, func() error { return o.subaccount(ctx, name, snapshot) })
	}
	return nil
}

func (o *OKX) subaccount(ctx context.Context, name string, snapshot *domain.ExchangeSnapshot) error {
	var data []struct {
		Details []okxBalanceDetail `json:"details"`
	}
	path := "/api/v5/account/subaccount/balances?" + url.Values{"subAcct": {name}}.Encode()
	if err := o.signed(ctx, path, &data); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	bal := make(domain.BalanceMap)
	usd := make(domain.USDMap)
	for _, d := range data[0].Details {
		if !d.CashBal.IsPositive() {
			continue
		}
		key := domain.AssetKey(d.Ccy)
		bal.Add(key, d.CashBal.Decimal)
		if d.EqUsd.IsPositive() {
			usd[key] = usd[key].Add(d.EqUsd.Decimal)
			snapshot.AddDirectUSD(key, d.EqUsd.Decimal)
		}
		o.logger.Debug("sub-account balance",
			zap.String("sub", name),
			zap.String("ccy", d.Ccy),
			zap.String("amount", d.CashBal.String()),
			zap.String("usd", d.EqUsd.StringFixed(2)))
	}

	if len(bal) > 0 {
		snapshot.MergeSubaccount(name, bal)
		snapshot.SetSubaccountDirectUSD(name, usd)
	}
	return nil
}

// signed performs a GET signed with base64 HMAC-SHA256 over timestamp + method + request path.
func (o *OKX) signed(ctx context.Context, path string, data any) error {
	ts := o.now().UTC().Format(okxTimestampLayout)
	signature := clients.HMACSHA256Base64(o.creds.APISecret, ts+http.MethodGet+path)

	env := struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data any    `json:"data"`
	}{Data: data}

	err := o.rest.Do(ctx, clients.Request{
		Method: http.MethodGet,
		URL:    o.baseURL + path,
		Headers: map[string]string{
			"OK-ACCESS-KEY":        o.creds.APIKey,
			"OK-ACCESS-SIGN":       signature,
			"OK-ACCESS-TIMESTAMP":  ts,
			"OK-ACCESS-PASSPHRASE": o.creds.Passphrase,
		},
	}, &env)
	if err != nil {
		return err
	}
	if env.Code != "0" {
		return fmt.Errorf("code %s: %s", env.Code, env.Msg)
	}
	return nil
}
