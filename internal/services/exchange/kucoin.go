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
	kucoinBaseURL    = "https://api.kucoin.com"
	kucoinSuccess    = "200000"
	kucoinKeyVersion = "2"
)

type kucoinAccount struct {
	Currency string `json:"currency"`
	Balance  number `json:"balance"`
}

// KuCoin sums every account type per currency for the master and each sub-user.
type KuCoin struct {
	rest    *clients.RESTClient
	baseURL string
	creds   domain.Credentials
	logger  *zap.Logger
	now     func() time.Time
}

func NewKuCoin(_ context.Context, s Settings) (Adapter, error) {
	return &KuCoin{
		rest:    s.restClient(),
		baseURL: s.baseURL(kucoinBaseURL),
		creds:   s.Credentials,
		logger:  s.logger(),
		now:     time.Now,
	}, nil
}

func (k *KuCoin) Name() string { return "kucoin" }

func (k *KuCoin) Fetch(ctx context.Context) (*domain.ExchangeSnapshot, error) {
	var accounts []kucoinAccount
	if err := k.signed(ctx, "/api/v1/accounts", &accounts); err != nil {
		return nil, domain.NewUpstreamFetchError(k.Name(), "accounts", err)
	}

	snapshot := domain.NewExchangeSnapshot()
	for _, acc := range accounts {
		if acc.Balance.IsPositive() {
			snapshot.AddMaster(domain.AssetKey(acc.Currency), acc.Balance.Decimal)
		}
	}

	guard(snapshot, k.logger, "sub-user list", func() error { return k.subaccounts(ctx, snapshot) })

	return snapshot, nil
}

func (k *KuCoin) subaccounts(ctx context.Context, snapshot *domain.ExchangeSnapshot) error {
	var users []struct {
		UserID  string `json:"userId"`
		SubName string `json:"subName"`
	}
	if err := k.signed(ctx, "/api/v2/sub/user", &users); err != nil {
		return err
	}

	for _, user := range users {
		uid := user.UserID
		name := user.SubName
		if name == "" {
			name = uid
		}

		guard(snapshot, k.logger, "sub-user balance "+name, func() error {
			var detail struct {
				MainAccounts   []kucoinAccount `json:"mainAccounts"`
				TradeAccounts  []kucoinAccount `json:"tradeAccounts"`
				MarginAccounts []kucoinAccount `json:"marginAccounts"`
			}
			if err := k.signed(ctx, "/api/v1/sub-accounts/"+url.PathEscape(uid), &detail); err != nil {
				return err
			}

			bal := make(domain.BalanceMap)
			for _, group := range [][]kucoinAccount{detail.MainAccounts, detail.TradeAccounts, detail.MarginAccounts} {
				for _, acc := range group {
					if acc.Balance.IsPositive() {
						bal.Add(domain.AssetKey(acc.Currency), acc.Balance.Decimal)
					}
				}
			}
			snapshot.MergeSubaccount(name, bal)
			return nil
		})
	}
	return nil
}

// signed performs a GET with a key version 2 signature: the passphrase is signed with the secret too.
func (k *KuCoin) signed(ctx context.Context, path string, data any) error {
	ts := millis(k.now())

	env := struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data any    `json:"data"`
	}{Data: data}

	err := k.rest.Do(ctx, clients.Request{
		Method: http.MethodGet,
		URL:    k.baseURL + path,
		Headers: map[string]string{
			"KC-API-KEY":         k.creds.APIKey,
			"KC-API-SIGN":        clients.HMACSHA256Base64(k.creds.APISecret, ts+http.MethodGet+path),
			"KC-API-TIMESTAMP":   ts,
			"KC-API-PASSPHRASE":  clients.HMACSHA256Base64(k.creds.APISecret, k.creds.Passphrase),
			"KC-API-KEY-VERSION": kucoinKeyVersion,
		},
	}, &env)
	if err != nil {
		return err
	}
	if env.Code != kucoinSuccess {
		return fmt.Errorf("code %s: %s", env.Code, env.Msg)
	}
	return nil
}
