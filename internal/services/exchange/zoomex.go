package exchange

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/cexbalance/internal/clients"
	"github.com/vadiminshakov/cexbalance/internal/domain"
)

const zoomexBaseURL = "https://openapi.zoomex.com"

// Zoomex reads the unified wallet through the Bybit compatible API.
type Zoomex struct {
	rest    *clients.RESTClient
	baseURL string
	creds   domain.Credentials
	logger  *zap.Logger
	now     func() time.Time
}

func NewZoomex(_ context.Context, s Settings) (Adapter, error) {
	return &Zoomex{
		rest:    s.restClient(),
		baseURL: s.baseURL(zoomexBaseURL),
		creds:   s.Credentials,
		logger:  s.logger(),
		now:     time.Now,
	}, nil
}

func (z *Zoomex) Name() string { return "zoomex" }

func (z *Zoomex) Fetch(ctx context.Context) (*domain.ExchangeSnapshot, error) {
	var result struct {
		List []struct {
			TotalEquity        string `json:"totalEquity"`
			TotalWalletBalance string `json:"totalWalletBalance"`
			TotalPerpUPL       string `json:"totalPerpUPL"`
			Coin               []struct {
				Coin          string `json:"coin"`
				Equity        number `json:"equity"`
				WalletBalance number `json:"walletBalance"`
				UnrealisedPnl number `json:"unrealisedPnl"`
			} `json:"coin"`
		} `json:"list"`
	}

	params := url.Values{"accountType": {"UNIFIED"}}
	err := bapiGet(ctx, z.rest, z.baseURL+"/cloud/trade/v3/account/wallet-balance", params, z.creds.APIKey, z.creds.APISecret, z.now(), &result)
	if err != nil {
		return nil, domain.NewUpstreamFetchError(z.Name(), "unified wallet", err)
	}

	snapshot := domain.NewExchangeSnapshot()
	if len(result.List) == 0 {
		return snapshot, nil
	}

	acc := result.List[0]
	z.logger.Debug("account totals",
		zap.String("total_equity", acc.TotalEquity),
		zap.String("total_wallet_balance", acc.TotalWalletBalance),
		zap.String("total_perp_upl", acc.TotalPerpUPL))

	for _, c := range acc.Coin {
		// equity already includes unrealized pnl
		value := c.Equity.Decimal
		if value.IsZero() {
			value = c.WalletBalance.Decimal
		}
		if value.IsZero() {
			continue
		}
		snapshot.AddMaster(domain.AssetKey(c.Coin), value)
		if !c.UnrealisedPnl.IsZero() {
			snapshot.AddUnrealizedPnl(domain.AssetKey(c.Coin), c.UnrealisedPnl.Decimal)
		}
	}

	return snapshot, nil
}
