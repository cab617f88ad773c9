package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used as the snapshot key.
const DateLayout = "2006-01-02"

// TimestampLayout is the UTC timestamp format of persisted records.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// DailySnapshotRecord is the persisted form of one day's aggregation.
// Decimal and map fields are stored as text.
type DailySnapshotRecord struct {
	Date          string `json:"date" gorm:"primaryKey;size:10"`
	Timestamp     string `json:"timestamp" gorm:"size:40"`
	GrandTotalUSD string `json:"grand_total_usd" gorm:"size:40"`
	Balances      string `json:"balances" gorm:"type:text"`
}

// TableName pins the table name for gorm.
func (DailySnapshotRecord) TableName() string {
	return "cex_balance_snapshots"
}

// HistoryEntry is a decoded snapshot record.
type HistoryEntry struct {
	Date          string                       `json:"date"`
	Timestamp     string                       `json:"timestamp"`
	GrandTotalUSD decimal.Decimal              `json:"grand_total_usd"`
	Balances      map[string]*ExchangeSnapshot `json:"balances"`
}

// BucketDate returns the calendar date of t in loc.
func BucketDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}
