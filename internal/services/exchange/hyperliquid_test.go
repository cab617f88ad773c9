package exchange

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cexbalance/internal/domain"
)

type fakeHyperliquidAccount struct {
	spot    []hyperliquidSpotBalance
	spotErr error
	perp    hyperliquidPerpSummary
	perpErr error
}

func (f *fakeHyperliquidAccount) SpotBalances(_ context.Context) ([]hyperliquidSpotBalance, error) {
	return f.spot, f.spotErr
}

func (f *fakeHyperliquidAccount) PerpSummary(_ context.Context) (hyperliquidPerpSummary, error) {
	return f.perp, f.perpErr
}

func TestHyperliquid_Fetch(t *testing.T) {
	adapter := &Hyperliquid{
		account: &fakeHyperliquidAccount{
			spot: []hyperliquidSpotBalance{
				{Coin: "USDC", Total: d("1200")},
				{Coin: "HYPE", Total: d("30.5")},
				{Coin: "PURR", Total: d("0")},
			},
			perp: hyperliquidPerpSummary{AccountValue: d("5000"), UnrealizedPnl: d("-75.25")},
		},
		logger: zap.NewNop(),
	}

	snapshot, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.NoError(t, snapshot.Validate())

	assertAmount(t, "1200", snapshot.Master, "USDC")
	assertAmount(t, "30.5", snapshot.Master, "HYPE")
	assert.NotContains(t, snapshot.Master, domain.AssetKey("PURR"))
	assertAmount(t, "5000", snapshot.Master, "USDC_FUTURES")
	assertAmount(t, "-75.25", snapshot.UnrealizedPnl, "USDC_FUTURES")
}

func TestHyperliquid_PerpFailureIsOmitted(t *testing.T) {
	adapter := &Hyperliquid{
		account: &fakeHyperliquidAccount{
			spot:    []hyperliquidSpotBalance{{Coin: "USDC", Total: d("1")}},
			perpErr: errors.New("timeout"),
		},
		logger: zap.NewNop(),
	}

	snapshot, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot.Omitted, 1)
	assert.Equal(t, "perp user state", snapshot.Omitted[0].Op)
	assert.NotContains(t, snapshot.Master, domain.AssetKey("USDC_FUTURES"))
}

func TestHyperliquid_SpotFailure(t *testing.T) {
	adapter := &Hyperliquid{
		account: &fakeHyperliquidAccount{spotErr: errors.New("bad address")},
		logger:  zap.NewNop(),
	}

	_, err := adapter.Fetch(context.Background())
	var upstream *domain.UpstreamFetchError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "hyperliquid", upstream.Exchange)
}
