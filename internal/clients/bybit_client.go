package clients

import (
	"net/http"
	"time"

	"github.com/hirokisan/bybit/v2"
)

const defaultTimeout = 30 * time.Second

// NewBybitClient builds an authenticated SDK client whose requests give up after timeout.
func NewBybitClient(apiKey, apiSecret, baseURL string, timeout time.Duration) *bybit.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := bybit.NewClient().
		WithHTTPClient(&http.Client{Timeout: timeout}).
		WithAuth(apiKey, apiSecret)
	if baseURL != "" {
		client = client.WithBaseURL(baseURL)
	}

	return client
}
