package clients

import (
	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
)

// NewBinanceClient creates a spot client. Empty keys give a public-data client.
func NewBinanceClient(apiKey, apiSecret, baseURL string) *binance.Client {
	client := binance.NewClient(apiKey, apiSecret)
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return client
}

// NewBinanceFuturesClient creates a USDⓈ-M futures client.
func NewBinanceFuturesClient(apiKey, apiSecret string) *futures.Client {
	return binance.NewFuturesClient(apiKey, apiSecret)
}
