package exchange

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cexbalance/internal/clients"
	"github.com/vadiminshakov/cexbalance/internal/domain"
)

const binanceBaseURL = "https://api.binance.com"

type binanceAsset struct {
	Asset  string
	Amount decimal.Decimal
}

type binanceFuturesAsset struct {
	Asset            string
	MarginBalance    string
	UnrealizedProfit string
}

// binanceAccounts is the part of the Binance API covered by the SDK.
type binanceAccounts interface {
	SpotBalances(ctx context.Context) ([]binanceAsset, error)
	FuturesAssets(ctx context.Context) ([]binanceFuturesAsset, error)
}

type binanceSDK struct {
	spot    *binance.Client
	futures *futures.Client
}

func (b *binanceSDK) SpotBalances(ctx context.Context) ([]binanceAsset, error) {
	account, err := b.spot.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get binance account balance")
	}

	out := make([]binanceAsset, 0, len(account.Balances))
	for _, balance := range account.Balances {
		free, err := parseAmount(balance.Free)
		if err != nil {
			return nil, err
		}
		locked, err := parseAmount(balance.Locked)
		if err != nil {
			return nil, err
		}
		out = append(out, binanceAsset{Asset: balance.Asset, Amount: free.Add(locked)})
	}
	return out, nil
}

func (b *binanceSDK) FuturesAssets(ctx context.Context) ([]binanceFuturesAsset, error) {
	account, err := b.futures.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get binance futures account")
	}

	out := make([]binanceFuturesAsset, 0, len(account.Assets))
	for _, asset := range account.Assets {
		out = append(out, binanceFuturesAsset{
			Asset:            asset.Asset,
			MarginBalance:    asset.MarginBalance,
			UnrealizedProfit: asset.UnrealizedProfit,
		})
	}
	return out, nil
}

// Binance reads the spot, earn and USDⓈ-M futures wallets of the master account
// plus spot, futures and cross margin wallets of every sub-account.
type Binance struct {
	accounts binanceAccounts
	rest     *clients.RESTClient
	baseURL  string
	creds    domain.Credentials
	logger   *zap.Logger
	now      func() time.Time
}

func NewBinance(_ context.Context, s Settings) (Adapter, error) {
	spot := clients.NewBinanceClient(s.Credentials.APIKey, s.Credentials.APISecret, s.BaseURL)
	fut := clients.NewBinanceFuturesClient(s.Credentials.APIKey, s.Credentials.APISecret)

	return newBinance(s, &binanceSDK{spot: spot, futures: fut}), nil
}

func newBinance(s Settings, accounts binanceAccounts) *Binance {
	return &Binance{
		accounts: accounts,
		rest:     s.restClient(),
		baseURL:  s.baseURL(binanceBaseURL),
		creds:    s.Credentials,
		logger:   s.logger(),
		now:      time.Now,
	}
}

func (b *Binance) Name() string { return "binance" }

func (b *Binance) Fetch(ctx context.Context) (*domain.ExchangeSnapshot, error) {
	snapshot := domain.NewExchangeSnapshot()

	balances, err := b.accounts.SpotBalances(ctx)
	if err != nil {
		return nil, domain.NewUpstreamFetchError(b.Name(), "spot account", err)
	}
	for _, bal := range balances {
		if bal.Amount.IsPositive() {
			snapshot.AddMaster(domain.AssetKey(bal.Asset), bal.Amount)
		}
	}

	guard(snapshot, b.logger, "simple earn flexible", func() error { return b.earnFlexible(ctx, snapshot) })
	guard(snapshot, b.logger, "simple earn locked", func() error { return b.earnLocked(ctx, snapshot) })
	guard(snapshot, b.logger, "futures account", func() error { return b.masterFutures(ctx, snapshot) })
	guard(snapshot, b.logger, "sub-account list", func() error { return b.subaccounts(ctx, snapshot) })

	return snapshot, nil
}

func (b *Binance) earnFlexible(ctx context.Context, snapshot *domain.ExchangeSnapshot) error {
	var resp struct {
		Rows []struct {
			Asset       string `json:"asset"`
			TotalAmount number `json:"totalAmount"`
		} `json:"rows"`
	}
	if err := b.signed(ctx, "/sapi/v1/simple-earn/flexible/position", url.Values{"size": {"100"}}, &resp); err != nil {
		return err
	}

	for _, r := range resp.Rows {
		if r.TotalAmount.IsPositive() {
			snapshot.AddMaster(domain.NewAssetKey(r.Asset, domain.QualifierEarn), r.TotalAmount.Decimal)
		}
	}
	return nil
}

func (b *Binance) earnLocked(ctx context.Context, snapshot *domain.ExchangeSnapshot) error {
	var resp struct {
		Rows []struct {
			Asset  string `json:"asset"`
			Amount number `json:"amount"`
		} `json:"rows"`
	}
	if err := b.signed(ctx, "/sapi/v1/simple-earn/locked/position", url.Values{"size": {"100"}}, &resp); err != nil {
		return err
	}

	for _, r := range resp.Rows {
		if r.Amount.IsPositive() {
			snapshot.AddMaster(domain.NewAssetKey(r.Asset, domain.QualifierEarnLocked), r.Amount.Decimal)
		}
	}
	return nil
}

func (b *Binance) masterFutures(ctx context.Context, snapshot *domain.ExchangeSnapshot) error {
	assets, err := b.accounts.FuturesAssets(ctx)
	if err != nil {
		return err
	}

	for _, asset := range assets {
		margin, err := parseAmount(asset.MarginBalance)
		if err != nil {
			return err
		}
		if margin.IsZero() {
			continue
		}
		key := domain.NewAssetKey(asset.Asset, domain.QualifierFutures)
		snapshot.AddMaster(key, margin)

		upnl, err := parseAmount(asset.UnrealizedProfit)
		if err != nil {
			return err
		}
		if !upnl.IsZero() {
			snapshot.AddUnrealizedPnl(key, upnl)
		}
	}
	return nil
}

func (b *Binance) subaccounts(ctx context.Context, snapshot *domain.ExchangeSnapshot) error {
	var resp struct {
		SubAccounts []struct {
			Email string `json:"email"`
		} `json:"subAccounts"`
	}
	if err := b.signed(ctx, "/sapi/v1/sub-account/list", nil, &resp); err != nil {
		return err
	}
	b.logger.Debug("sub-accounts found", zap.Int("count", len(resp.SubAccounts)))

	for _, sub := range resp.SubAccounts {
		email := sub.Email
		bal := make(domain.BalanceMap)

		guard(snapshot, b.logger, "sub-account spot "+email, func() error { return b.subSpot(ctx, email, bal) })
		guard(snapshot, b.logger, "sub-account usd-m futures "+email, func() error { return b.subUSDFutures(ctx, email, bal, snapshot) })
		guard(snapshot, b.logger, "sub-account coin-m futures "+email, func() error { return b.subCoinFutures(ctx, email, bal) })
		guard(snapshot, b.logger, "sub-account margin "+email, func() error { return b.subMargin(ctx, email, bal) })

		snapshot.MergeSubaccount(email, bal)
	}
	return nil
}

func (b *Binance) subSpot(ctx context.Context, email string, bal domain.BalanceMap) error {
	var resp struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   number `json:"free"`
			Locked number `json:"locked"`
		} `json:"balances"`
	}
	if err := b.signed(ctx, "/sapi/v4/sub-account/assets", url.Values{"email": {email}}, &resp); err != nil {
		return err
	}

	for _, a := range resp.Balances {
		total := a.Free.Add(a.Locked.Decimal)
		if total.IsPositive() {
			bal.Add(domain.AssetKey(a.Asset), total)
		}
	}
	return nil
}

type binanceSubFuturesAsset struct {
	Asset            string `json:"asset"`
	MarginBalance    number `json:"marginBalance"`
	UnrealizedProfit number `json:"unrealizedProfit"`
}

func (b *Binance) subUSDFutures(ctx context.Context, email string, bal domain.BalanceMap, snapshot *domain.ExchangeSnapshot) error {
	var resp struct {
		FutureAccountResp struct {
			Assets []binanceSubFuturesAsset `json:"assets"`
		} `json:"futureAccountResp"`
	}
	params := url.Values{"email": {email}, "futuresType": {"1"}}
	if err := b.signed(ctx, "/sapi/v2/sub-account/futures/account", params, &resp); err != nil {
		return err
	}

	for _, a := range resp.FutureAccountResp.Assets {
		if a.MarginBalance.IsZero() {
			continue
		}
		key := domain.NewAssetKey(a.Asset, domain.QualifierFutures)
		bal.Add(key, a.MarginBalance.Decimal)
		if !a.UnrealizedProfit.IsZero() {
			snapshot.AddUnrealizedPnl(key, a.UnrealizedProfit.Decimal)
		}
	}
	return nil
}

func (b *Binance) subCoinFutures(ctx context.Context, email string, bal domain.BalanceMap) error {
	var resp struct {
		DeliveryAccountResp struct {
			Assets []binanceSubFuturesAsset `json:"assets"`
		} `json:"deliveryAccountResp"`
	}
	params := url.Values{"email": {email}, "futuresType": {"2"}}
	if err := b.signed(ctx, "/sapi/v2/sub-account/futures/account", params, &resp); err != nil {
		return err
	}

	for _, a := range resp.DeliveryAccountResp.Assets {
		if !a.MarginBalance.IsZero() {
			bal.Add(domain.NewAssetKey(a.Asset, domain.QualifierCoinFutures), a.MarginBalance.Decimal)
		}
	}
	return nil
}

func (b *Binance) subMargin(ctx context.Context, email string, bal domain.BalanceMap) error {
	var resp struct {
		MarginUserAssetVoList []struct {
			Asset    string `json:"asset"`
			NetAsset number `json:"netAsset"`
		} `json:"marginUserAssetVoList"`
	}
	if err := b.signed(ctx, "/sapi/v1/sub-account/margin/account", url.Values{"email": {email}}, &resp); err != nil {
		return err
	}

	for _, a := range resp.MarginUserAssetVoList {
		if !a.NetAsset.IsZero() {
			bal.Add(domain.NewAssetKey(a.Asset, domain.QualifierMargin), a.NetAsset.Decimal)
		}
	}
	return nil
}

// signed performs a SAPI GET signed with HMAC-SHA256 over the query string.
func (b *Binance) signed(ctx context.Context, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", millis(b.now()))
	query := params.Encode()
	signature := clients.HMACSHA256Hex(b.creds.APISecret, query)

	return b.rest.Do(ctx, clients.Request{
		Method:  http.MethodGet,
		URL:     b.baseURL + path + "?" + query + "&signature=" + signature,
		Headers: map[string]string{"X-MBX-APIKEY": b.creds.APIKey},
	}, out)
}
