package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cexbalance/internal/clients"
	"github.com/vadiminshakov/cexbalance/internal/domain"
)

const (
	bybitBaseURL    = "https://api.bybit.com"
	bybitRecvWindow = "5000"
	// bybitMemberCoins are the coins asked for when a sub-member is read with the master key.
	bybitMemberCoins = "BTC,ETH,USDT,USDC,USDE,XRP,SOL,DOGE,ADA,AVAX"
	defaultSubLabel  = "subaccount"
)

type walletCoin struct {
	Coin          string
	Equity        decimal.Decimal
	WalletBalance decimal.Decimal
	UnrealisedPnl decimal.Decimal
}

// unifiedWallet reads the UNIFIED wallet of whichever account the key belongs to.
type unifiedWallet interface {
	UnifiedCoins(ctx context.Context) ([]walletCoin, error)
}

type bybitSDKWallet struct {
	client *bybit.Client
}

// UnifiedCoins returns when ctx is done even though the SDK call itself takes no context.
func (w *bybitSDKWallet) UnifiedCoins(ctx context.Context) ([]walletCoin, error) {
	type reply struct {
		res *bybit.V5GetWalletBalanceResponse
		err error
	}
	done := make(chan reply, 1)
	go func() {
		res, err := w.client.V5().Account().GetWalletBalance(bybit.AccountTypeV5("UNIFIED"), nil)
		done <- reply{res: res, err: err}
	}()

	var res *bybit.V5GetWalletBalanceResponse
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "failed to get account balance")
	case r := <-done:
		if r.err != nil {
			return nil, errors.Wrap(r.err, "failed to get account balance")
		}
		res = r.res
	}
	if len(res.Result.List) == 0 {
		return nil, nil
	}

	out := make([]walletCoin, 0, len(res.Result.List[0].Coin))
	for _, coin := range res.Result.List[0].Coin {
		var err error
		wc := walletCoin{Coin: string(coin.Coin)}
		if wc.Equity, err = parseAmount(coin.Equity); err != nil {
			return nil, err
		}
		if wc.WalletBalance, err = parseAmount(coin.WalletBalance); err != nil {
			return nil, err
		}
		if wc.UnrealisedPnl, err = parseAmount(coin.UnrealisedPnl); err != nil {
			return nil, err
		}
		out = append(out, wc)
	}
	return out, nil
}

// Bybit reads the unified and funding wallets of the master account. Sub-account
// equity comes from a dedicated sub-account key when one is configured, otherwise
// wallet balances of every sub-member are read with the master key.
type Bybit struct {
	master   unifiedWallet
	sub      unifiedWallet
	rest     *clients.RESTClient
	baseURL  string
	creds    domain.Credentials
	subLabel string
	logger   *zap.Logger
	now      func() time.Time
}

func NewBybit(_ context.Context, s Settings) (Adapter, error) {
	master := &bybitSDKWallet{client: clients.NewBybitClient(s.Credentials.APIKey, s.Credentials.APISecret, s.BaseURL, s.Timeout)}

	var sub unifiedWallet
	if s.Credentials.HasSubKey() {
		sub = &bybitSDKWallet{client: clients.NewBybitClient(s.Credentials.SubAPIKey, s.Credentials.SubAPISecret, s.BaseURL, s.Timeout)}
	}

	return newBybit(s, master, sub), nil
}

func newBybit(s Settings, master, sub unifiedWallet) *Bybit {
	label := s.SubaccountLabel
	if label == "" {
		label = defaultSubLabel
	}

	return &Bybit{
		master:   master,
		sub:      sub,
		rest:     s.restClient(),
		baseURL:  s.baseURL(bybitBaseURL),
		creds:    s.Credentials,
		subLabel: label,
		logger:   s.logger(),
		now:      time.Now,
	}
}

func (b *Bybit) Name() string { return "bybit" }

func (b *Bybit) Fetch(ctx context.Context) (*domain.ExchangeSnapshot, error) {
	snapshot := domain.NewExchangeSnapshot()

	coins, err := b.master.UnifiedCoins(ctx)
	if err != nil {
		return nil, domain.NewUpstreamFetchError(b.Name(), "unified wallet", err)
	}
	for _, c := range coins {
		equity := c.Equity
		if equity.IsZero() {
			equity = c.WalletBalance
		}
		if !equity.IsZero() {
			snapshot.AddMaster(domain.AssetKey(c.Coin), equity)
		}
	}

	guard(snapshot, b.logger, "funding wallet", func() error { return b.fund(ctx, snapshot) })

	if b.sub != nil {
		guard(snapshot, b.logger, "sub-account wallet", func() error { return b.subWallet(ctx, snapshot) })
	} else {
		guard(snapshot, b.logger, "sub-member list", func() error { return b.subMembers(ctx, snapshot) })
	}

	return snapshot, nil
}

type bybitCoinBalances struct {
	Balance []struct {
		Coin          string `json:"coin"`
		WalletBalance number `json:"walletBalance"`
	} `json:"balance"`
}

func (b *Bybit) fund(ctx context.Context, snapshot *domain.ExchangeSnapshot) error {
	var result bybitCoinBalances
	if err := b.signed(ctx, "/v5/asset/transfer/query-account-coins-balance", url.Values{"accountType": {"FUND"}}, &result); err != nil {
		return err
	}

	for _, c := range result.Balance {
		if c.WalletBalance.IsPositive() {
			snapshot.AddMaster(domain.NewAssetKey(c.Coin, domain.QualifierFund), c.WalletBalance.Decimal)
		}
	}
	return nil
}

func (b *Bybit) subWallet(ctx context.Context, snapshot *domain.ExchangeSnapshot) error {
	coins, err := b.sub.UnifiedCoins(ctx)
	if err != nil {
		return err
	}

	bal := make(domain.BalanceMap)
	for _, c := range coins {
		if c.Equity.IsZero() {
			continue
		}
		bal.Add(domain.AssetKey(c.Coin), c.Equity)
		if !c.UnrealisedPnl.IsZero() {
			snapshot.AddUnrealizedPnl(domain.AssetKey(c.Coin), c.UnrealisedPnl)
		}
	}
	snapshot.MergeSubaccount(b.subLabel, bal)
	return nil
}

func (b *Bybit) subMembers(ctx context.Context, snapshot *domain.ExchangeSnapshot) error {
	var result struct {
		SubMembers []struct {
			UID      string `json:"uid"`
			Username string `json:"username"`
		} `json:"subMembers"`
	}
	if err := b.signed(ctx, "/v5/user/query-sub-members", nil, &result); err != nil {
		return err
	}

	for _, member := range result.SubMembers {
		name := member.Username
		if name == "" {
			name = member.UID
		}
		uid := member.UID

		guard(snapshot, b.logger, "sub-member wallet "+name, func() error {
			var wallet bybitCoinBalances
			params := url.Values{"accountType": {"UNIFIED"}, "memberId": {uid}, "coin": {bybitMemberCoins}}
			if err := b.signed(ctx, "/v5/asset/transfer/query-account-coins-balance", params, &wallet); err != nil {
				return err
			}

			bal := make(domain.BalanceMap)
			for _, c := range wallet.Balance {
				if c.WalletBalance.IsPositive() {
					bal.Add(domain.AssetKey(c.Coin), c.WalletBalance.Decimal)
				}
			}
			snapshot.MergeSubaccount(name, bal)
			return nil
		})
	}
	return nil
}

func (b *Bybit) signed(ctx context.Context, path string, params url.Values, result any) error {
	return bapiGet(ctx, b.rest, b.baseURL+path, params, b.creds.APIKey, b.creds.APISecret, b.now(), result)
}

// bapiEnvelope is the response wrapper shared by Bybit style APIs.
type bapiEnvelope struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  any    `json:"result"`
}

// bapiGet performs a GET signed with the X-BAPI scheme: hex HMAC-SHA256 over
// timestamp + key + recv window + query.
func bapiGet(ctx context.Context, rest *clients.RESTClient, endpoint string, params url.Values, key, secret string, now time.Time, result any) error {
	query := params.Encode()
	ts := millis(now)
	signature := clients.HMACSHA256Hex(secret, ts+key+bybitRecvWindow+query)

	target := endpoint
	if query != "" {
		target += "?" + query
	}

	env := bapiEnvelope{Result: result}
	err := rest.Do(ctx, clients.Request{
		Method: http.MethodGet,
		URL:    target,
		Headers: map[string]string{
			"X-BAPI-API-KEY":     key,
			"X-BAPI-TIMESTAMP":   ts,
			"X-BAPI-RECV-WINDOW": bybitRecvWindow,
			"X-BAPI-SIGN":        signature,
		},
	}, &env)
	if err != nil {
		return err
	}
	if env.RetCode != 0 {
		return fmt.Errorf("retCode %d: %s", env.RetCode, env.RetMsg)
	}
	return nil
}
