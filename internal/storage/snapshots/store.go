// Package snapshots persists one aggregation result per calendar day and serves the history.
package snapshots

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cexbalance/internal/domain"
	"github.com/vadiminshakov/cexbalance/internal/metrics"
)

// Backend stores daily records keyed by date.
type Backend interface {
	// Upsert inserts the record or replaces the one with the same date.
	Upsert(ctx context.Context, record domain.DailySnapshotRecord) error
	// Recent returns at most limit records in the backend's native order. A non-positive limit returns all.
	Recent(ctx context.Context, limit int) ([]domain.DailySnapshotRecord, error)
	Close() error
}

// Store wraps a Backend. Its errors are logged and never reach the caller.
type Store struct {
	backend Backend
	loc     *time.Location
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewStore creates a Store bucketing dates in loc. A nil backend disables persistence.
func NewStore(backend Backend, loc *time.Location, logger *zap.Logger, m *metrics.Metrics) *Store {
	if loc == nil {
		loc = time.FixedZone("UTC+8", 8*60*60)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{
		backend: backend,
		loc:     loc,
		now:     time.Now,
		logger:  logger,
		metrics: m,
	}
}

// Save writes result as the record of the current day, replacing an earlier one.
func (s *Store) Save(ctx context.Context, result *domain.AggregationResult) {
	if s.backend == nil || result == nil {
		return
	}

	record, err := s.record(result)
	if err == nil {
		err = s.backend.Upsert(ctx, record)
	}
	s.metrics.RecordSnapshotSave(err)

	if err != nil {
		s.logger.Error("failed to save daily snapshot",
			zap.Error(&domain.PersistenceError{Op: "save", Err: err}))
		return
	}

	s.logger.Info("daily snapshot saved",
		zap.String("date", record.Date),
		zap.String("grand_total_usd", record.GrandTotalUSD))
}

func (s *Store) record(result *domain.AggregationResult) (domain.DailySnapshotRecord, error) {
	balances, err := json.Marshal(result.Balances)
	if err != nil {
		return domain.DailySnapshotRecord{}, errors.Wrap(err, "encode balances")
	}

	return domain.DailySnapshotRecord{
		Date:          domain.BucketDate(s.now(), s.loc),
		Timestamp:     result.Timestamp.UTC().Format(domain.TimestampLayout),
		GrandTotalUSD: result.GrandTotalUSD.StringFixed(2),
		Balances:      string(balances),
	}, nil
}

// List returns up to limit entries, newest date first. The limit is applied by the
// backend before sorting. Any failure yields an empty history.
func (s *Store) List(ctx context.Context, limit int) []domain.HistoryEntry {
	entries := make([]domain.HistoryEntry, 0)
	if s.backend == nil {
		return entries
	}

	records, err := s.backend.Recent(ctx, limit)
	if err != nil {
		s.logger.Error("failed to read snapshot history",
			zap.Error(&domain.PersistenceError{Op: "list", Err: err}))
		return entries
	}

	for _, record := range records {
		entry, err := decodeRecord(record)
		if err != nil {
			s.logger.Error("failed to read snapshot history",
				zap.String("date", record.Date),
				zap.Error(&domain.PersistenceError{Op: "decode", Err: err}))
			return make([]domain.HistoryEntry, 0)
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Date > entries[j].Date
	})

	return entries
}

func decodeRecord(record domain.DailySnapshotRecord) (domain.HistoryEntry, error) {
	total, err := decimal.NewFromString(record.GrandTotalUSD)
	if err != nil {
		return domain.HistoryEntry{}, errors.Wrapf(err, "grand total of %s", record.Date)
	}

	var balances map[string]*domain.ExchangeSnapshot
	if err := json.Unmarshal([]byte(record.Balances), &balances); err != nil {
		return domain.HistoryEntry{}, errors.Wrapf(err, "balances of %s", record.Date)
	}

	return domain.HistoryEntry{
		Date:          record.Date,
		Timestamp:     record.Timestamp,
		GrandTotalUSD: total,
		Balances:      balances,
	}, nil
}

// Close releases the backend.
func (s *Store) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}
