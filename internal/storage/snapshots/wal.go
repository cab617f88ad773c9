package snapshots

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/cexbalance/internal/domain"
)

const (
	defaultWALDir      = "./wal/snapshots"
	walSegmentLimit    = 1000
	walMaxSegments     = 100
	walSnapshotKeyPref = "daily_snapshot_"
)

// WALBackend appends every record to a write-ahead log. The latest entry of a date wins on read.
type WALBackend struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALBackend opens the log under dir.
func NewWALBackend(dir string) (*WALBackend, error) {
	if dir == "" {
		dir = defaultWALDir
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "snapshot_",
		SegmentThreshold: walSegmentLimit,
		MaxSegments:      walMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init snapshot WAL")
	}

	return &WALBackend{wal: wal}, nil
}

func (w *WALBackend) Upsert(_ context.Context, record domain.DailySnapshotRecord) error {
	if record.Date == "" {
		return errors.New("snapshot date is required")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot record")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	return w.wal.Write(w.wal.CurrentIndex()+1, walSnapshotKeyPref+record.Date, payload)
}

// Recent folds the log into one record per date, keeping dates in the order they first appear.
func (w *WALBackend) Recent(_ context.Context, limit int) ([]domain.DailySnapshotRecord, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.wal.CurrentIndex() == 0 {
		return nil, nil
	}

	var dates []string
	latest := make(map[string]domain.DailySnapshotRecord)
	for m := range w.wal.Iterator() {
		if !strings.HasPrefix(m.Key, walSnapshotKeyPref) {
			continue
		}
		var record domain.DailySnapshotRecord
		if err := json.Unmarshal(m.Value, &record); err != nil {
			return nil, errors.Wrapf(err, "decode WAL entry %s", m.Key)
		}
		if _, seen := latest[record.Date]; !seen {
			dates = append(dates, record.Date)
		}
		latest[record.Date] = record
	}

	if limit > 0 && len(dates) > limit {
		dates = dates[:limit]
	}

	records := make([]domain.DailySnapshotRecord, 0, len(dates))
	for _, date := range dates {
		records = append(records, latest[date])
	}
	return records, nil
}

func (w *WALBackend) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.wal.Close()
}
