package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// USD values and amounts travel as JSON numbers; quoted input still decodes.
	decimal.MarshalJSONWithoutQuotes = true
}

// AggregationResult is the outcome of one aggregation cycle.
type AggregationResult struct {
	ID            string                       `json:"-"`
	Timestamp     time.Time                    `json:"timestamp"`
	GrandTotalUSD decimal.Decimal              `json:"grand_total_usd"`
	Balances      map[string]*ExchangeSnapshot `json:"balances"`
	Errors        map[string]string            `json:"errors"`
	Prices        PriceTable                   `json:"-"`
}

// ErrorsOrNil returns nil when no exchange failed, so the JSON body carries null.
func (r *AggregationResult) ErrorsOrNil() map[string]string {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors
}
