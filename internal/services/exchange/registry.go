package exchange

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vadiminshakov/cexbalance/internal/domain"
)

// Factory builds an adapter from its settings.
type Factory func(ctx context.Context, s Settings) (Adapter, error)

type registration struct {
	factory    Factory
	configured func(domain.Credentials) bool
}

var registry = map[string]registration{
	"binance":     {factory: NewBinance, configured: domain.Credentials.Configured},
	"bybit":       {factory: NewBybit, configured: domain.Credentials.Configured},
	"okx":         {factory: NewOKX, configured: domain.Credentials.Configured},
	"kucoin":      {factory: NewKuCoin, configured: domain.Credentials.Configured},
	"kraken":      {factory: NewKraken, configured: domain.Credentials.Configured},
	"zoomex":      {factory: NewZoomex, configured: domain.Credentials.Configured},
	"htx":         {factory: NewHTX, configured: domain.Credentials.Configured},
	"hyperliquid": {factory: NewHyperliquid, configured: hasWalletKey},
}

func hasWalletKey(c domain.Credentials) bool {
	return c.APISecret != ""
}

// Supported reports whether name has a registered adapter.
func Supported(name string) bool {
	_, ok := registry[name]
	return ok
}

// Build creates an adapter for every entry whose credentials are present. Entries
// without credentials are skipped. An adapter that cannot be constructed is replaced
// by one that reports the construction error on every fetch, so the failure shows
// up next to the other exchanges instead of stopping the process.
func Build(ctx context.Context, settings []Settings, logger *zap.Logger) ([]Adapter, error) {
	adapters := make([]Adapter, 0, len(settings))
	for _, s := range settings {
		reg, ok := registry[s.Name]
		if !ok {
			return nil, fmt.Errorf("unsupported exchange: %s", s.Name)
		}
		if !reg.configured(s.Credentials) {
			logger.Info("exchange skipped, no credentials", zap.String("exchange", s.Name))
			continue
		}

		adapter, err := reg.factory(ctx, s)
		if err != nil {
			logger.Error("failed to create exchange adapter", zap.String("exchange", s.Name), zap.Error(err))
			adapter = brokenAdapter{name: s.Name, err: err}
		}
		adapters = append(adapters, adapter)
	}

	return adapters, nil
}

type brokenAdapter struct {
	name string
	err  error
}

func (b brokenAdapter) Name() string { return b.name }

func (b brokenAdapter) Fetch(_ context.Context) (*domain.ExchangeSnapshot, error) {
	return nil, domain.NewUpstreamFetchError(b.name, "init", b.err)
}
