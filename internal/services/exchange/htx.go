package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cexbalance/internal/clients"
	"github.com/vadiminshakov/cexbalance/internal/domain"
)

const (
	htxBaseURL         = "https://api.huobi.pro"
	htxTimestampLayout = "2006-01-02T15:04:05"
	htxSpotAccount     = "spot"
)

// HTX reads every account of the user. Spot balances keep the bare symbol,
// margin, super-margin, otc and point balances are tagged with the account type;
// any other account type is tagged with its own upper-cased name.
type HTX struct {
	rest    *clients.RESTClient
	baseURL string
	host    string
	creds   domain.Credentials
	logger  *zap.Logger
	now     func() time.Time
}

func NewHTX(_ context.Context, s Settings) (Adapter, error) {
	base := s.baseURL(htxBaseURL)
	u, err := url.Parse(base)
	if err != nil {
		return nil, errors.Wrapf(err, "parse htx base url %q", base)
	}

	return &HTX{
		rest:    s.restClient(),
		baseURL: base,
		host:    u.Host,
		creds:   s.Credentials,
		logger:  s.logger(),
		now:     time.Now,
	}, nil
}

func (h *HTX) Name() string { return "htx" }

func (h *HTX) Fetch(ctx context.Context) (*domain.ExchangeSnapshot, error) {
	var accounts []struct {
		ID   int64  `json:"id"`
		Type string `json:"type"`
	}
	if err := h.signed(ctx, "/v1/account/accounts", &accounts); err != nil {
		return nil, domain.NewUpstreamFetchError(h.Name(), "account list", err)
	}

	snapshot := domain.NewExchangeSnapshot()
	for _, acc := range accounts {
		qualifier := domain.QualifierNone
		if acc.Type != htxSpotAccount {
			q, ok := domain.ParseQualifier(acc.Type)
			if !ok {
				// kept under CCY_TYPE so the amount still reaches the exchange total
				q = domain.Qualifier(strings.ToUpper(strings.ReplaceAll(acc.Type, "-", "_")))
				h.logger.Warn("account of unknown type has no price mapping",
					zap.Int64("account_id", acc.ID), zap.String("type", acc.Type))
			}
			qualifier = q
		}

		id := acc.ID
		op := fmt.Sprintf("account %d balance", id)
		guard(snapshot, h.logger, op, func() error { return h.balance(ctx, id, qualifier, snapshot) })
	}

	return snapshot, nil
}

func (h *HTX) balance(ctx context.Context, id int64, qualifier domain.Qualifier, snapshot *domain.ExchangeSnapshot) error {
	var data struct {
		List []struct {
			Currency string `json:"currency"`
			Type     string `json:"type"`
			Balance  number `json:"balance"`
		} `json:"list"`
	}
	if err := h.signed(ctx, "/v1/account/accounts/"+strconv.FormatInt(id, 10)+"/balance", &data); err != nil {
		return err
	}

	// trade and frozen entries of the same currency are summed
	for _, item := range data.List {
		if item.Balance.IsPositive() {
			snapshot.AddMaster(domain.NewAssetKey(strings.ToUpper(item.Currency), qualifier), item.Balance.Decimal)
		}
	}
	return nil
}

// signed performs a GET with signature version 2: base64 HMAC-SHA256 over
// "GET\nhost\npath\nsorted query".
func (h *HTX) signed(ctx context.Context, path string, data any) error {
	params := url.Values{
		"AccessKeyId":      {h.creds.APIKey},
		"SignatureMethod":  {"HmacSHA256"},
		"SignatureVersion": {"2"},
		"Timestamp":        {h.now().UTC().Format(htxTimestampLayout)},
	}
	payload := strings.Join([]string{http.MethodGet, h.host, path, params.Encode()}, "\n")
	params.Set("Signature", clients.HMACSHA256Base64(h.creds.APISecret, payload))

	env := struct {
		Status  string `json:"status"`
		ErrCode string `json:"err-code"`
		ErrMsg  string `json:"err-msg"`
		Data    any    `json:"data"`
	}{Data: data}

	err := h.rest.Do(ctx, clients.Request{
		Method: http.MethodGet,
		URL:    h.baseURL + path + "?" + params.Encode(),
	}, &env)
	if err != nil {
		return err
	}
	if env.Status != "ok" {
		return fmt.Errorf("status %s: %s %s", env.Status, env.ErrCode, env.ErrMsg)
	}
	return nil
}
