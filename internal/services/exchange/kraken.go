package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/cexbalance/internal/clients"
	"github.com/vadiminshakov/cexbalance/internal/domain"
)

const (
	krakenBaseURL     = "https://api.kraken.com"
	krakenBalancePath = "/0/private/Balance"
)

var krakenAliases = map[string]string{
	"XBT": "BTC",
	"XDG": "DOGE",
}

// staking and earn balances are reported as separate assets with a suffix
var krakenEarnSuffixes = []string{".F", ".S", ".M", ".B", ".P"}

// Kraken reads the master balance. Kraken has no sub-account API.
type Kraken struct {
	rest    *clients.RESTClient
	baseURL string
	creds   domain.Credentials
	logger  *zap.Logger
	now     func() time.Time
}

func NewKraken(_ context.Context, s Settings) (Adapter, error) {
	return &Kraken{
		rest:    s.restClient(),
		baseURL: s.baseURL(krakenBaseURL),
		creds:   s.Credentials,
		logger:  s.logger(),
		now:     time.Now,
	}, nil
}

func (k *Kraken) Name() string { return "kraken" }

func (k *Kraken) Fetch(ctx context.Context) (*domain.ExchangeSnapshot, error) {
	nonce := millis(k.now())
	postData := "nonce=" + nonce

	signature, err := clients.KrakenSign(k.creds.APISecret, krakenBalancePath, nonce, postData)
	if err != nil {
		return nil, domain.NewUpstreamFetchError(k.Name(), "balance", err)
	}

	var resp struct {
		Error  []string          `json:"error"`
		Result map[string]number `json:"result"`
	}
	err = k.rest.Do(ctx, clients.Request{
		Method: http.MethodPost,
		URL:    k.baseURL + krakenBalancePath,
		Headers: map[string]string{
			"API-Key":      k.creds.APIKey,
			"API-Sign":     signature,
			"Content-Type": "application/x-www-form-urlencoded",
		},
		Body: []byte(postData),
	}, &resp)
	if err != nil {
		return nil, domain.NewUpstreamFetchError(k.Name(), "balance", err)
	}
	if len(resp.Error) > 0 {
		return nil, domain.NewUpstreamFetchError(k.Name(), "balance", fmt.Errorf("%s", strings.Join(resp.Error, "; ")))
	}

	snapshot := domain.NewExchangeSnapshot()
	for asset, amount := range resp.Result {
		if amount.IsPositive() {
			snapshot.AddMaster(krakenAssetKey(asset), amount.Decimal)
		}
	}

	return snapshot, nil
}

// krakenAssetKey maps Kraken asset codes to common symbols: XXBT becomes BTC,
// ZUSD becomes USD and ETH.F becomes ETH_EARN.
func krakenAssetKey(asset string) domain.AssetKey {
	qualifier := domain.QualifierNone
	for _, suffix := range krakenEarnSuffixes {
		if strings.HasSuffix(asset, suffix) {
			asset = strings.TrimSuffix(asset, suffix)
			qualifier = domain.QualifierEarn
			break
		}
	}
	// staked assets are sometimes reported with a numeric suffix, e.g. DOT28.S
	if qualifier == domain.QualifierEarn {
		asset = strings.TrimRight(asset, "0123456789")
	}

	if len(asset) == 4 && (asset[0] == 'X' || asset[0] == 'Z') {
		asset = asset[1:]
	}
	if alias, ok := krakenAliases[asset]; ok {
		asset = alias
	}

	return domain.NewAssetKey(asset, qualifier)
}
