package exchange

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cexbalance/internal/clients"
	"github.com/vadiminshakov/cexbalance/internal/domain"
)

const (
	hyperliquidBaseURL = "https://api.hyperliquid.xyz"
	// perp collateral is USDC, so the account value is kept under the futures-tagged USDC key
	hyperliquidPerpKey = domain.AssetKey("USDC_FUTURES")
)

type hyperliquidSpotBalance struct {
	Coin  string
	Total decimal.Decimal
}

type hyperliquidPerpSummary struct {
	AccountValue  decimal.Decimal
	UnrealizedPnl decimal.Decimal
}

type hyperliquidAccount interface {
	SpotBalances(ctx context.Context) ([]hyperliquidSpotBalance, error)
	PerpSummary(ctx context.Context) (hyperliquidPerpSummary, error)
}

type hyperliquidSDK struct {
	client *clients.HyperliquidClient
}

func (h *hyperliquidSDK) SpotBalances(ctx context.Context) ([]hyperliquidSpotBalance, error) {
	st, err := h.client.Exchange().Info().SpotUserState(ctx, h.client.AccountAddress())
	if err != nil {
		return nil, errors.Wrap(err, "get spot user state")
	}

	out := make([]hyperliquidSpotBalance, 0, len(st.Balances))
	for _, b := range st.Balances {
		total, err := parseAmount(b.Total)
		if err != nil {
			return nil, err
		}
		out = append(out, hyperliquidSpotBalance{Coin: b.Coin, Total: total})
	}
	return out, nil
}

func (h *hyperliquidSDK) PerpSummary(ctx context.Context) (hyperliquidPerpSummary, error) {
	st, err := h.client.Exchange().Info().UserState(ctx, h.client.AccountAddress())
	if err != nil {
		return hyperliquidPerpSummary{}, errors.Wrap(err, "get user state")
	}

	var summary hyperliquidPerpSummary
	if summary.AccountValue, err = parseAmount(st.MarginSummary.AccountValue); err != nil {
		return hyperliquidPerpSummary{}, err
	}
	for _, ap := range st.AssetPositions {
		upnl, err := parseAmount(ap.Position.UnrealizedPnl)
		if err != nil {
			return hyperliquidPerpSummary{}, err
		}
		summary.UnrealizedPnl = summary.UnrealizedPnl.Add(upnl)
	}
	return summary, nil
}

// Hyperliquid reads spot balances and the perp account value of one wallet.
type Hyperliquid struct {
	account hyperliquidAccount
	logger  *zap.Logger
}

func NewHyperliquid(ctx context.Context, s Settings) (Adapter, error) {
	client, err := clients.NewHyperliquidClient(ctx, s.Credentials.APISecret, s.Credentials.APIKey, s.baseURL(hyperliquidBaseURL))
	if err != nil {
		return nil, err
	}

	return &Hyperliquid{account: &hyperliquidSDK{client: client}, logger: s.logger()}, nil
}

func (h *Hyperliquid) Name() string { return "hyperliquid" }

func (h *Hyperliquid) Fetch(ctx context.Context) (*domain.ExchangeSnapshot, error) {
	balances, err := h.account.SpotBalances(ctx)
	if err != nil {
		return nil, domain.NewUpstreamFetchError(h.Name(), "spot user state", err)
	}

	snapshot := domain.NewExchangeSnapshot()
	for _, b := range balances {
		if b.Total.IsPositive() {
			snapshot.AddMaster(domain.AssetKey(b.Coin), b.Total)
		}
	}

	guard(snapshot, h.logger, "perp user state", func() error {
		summary, err := h.account.PerpSummary(ctx)
		if err != nil {
			return err
		}
		if !summary.AccountValue.IsZero() {
			snapshot.AddMaster(hyperliquidPerpKey, summary.AccountValue)
		}
		if !summary.UnrealizedPnl.IsZero() {
			snapshot.AddUnrealizedPnl(hyperliquidPerpKey, summary.UnrealizedPnl)
		}
		return nil
	})

	return snapshot, nil
}
