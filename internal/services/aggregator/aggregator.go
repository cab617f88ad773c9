// Package aggregator runs every configured exchange adapter concurrently and assembles
// one valued AggregationResult per cycle.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/cexbalance/internal/domain"
	"github.com/vadiminshakov/cexbalance/internal/metrics"
	"github.com/vadiminshakov/cexbalance/internal/services/exchange"
	"github.com/vadiminshakov/cexbalance/internal/services/pricer"
	"github.com/vadiminshakov/cexbalance/internal/services/valuation"
)

const defaultExchangeTimeout = 30 * time.Second

// Aggregator fans out to all adapters and values the collected balances.
type Aggregator struct {
	adapters []exchange.Adapter
	pricer   pricer.Pricer
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New creates an Aggregator. A non-positive timeout falls back to 30s per exchange.
func New(adapters []exchange.Adapter, p pricer.Pricer, timeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *Aggregator {
	if timeout <= 0 {
		timeout = defaultExchangeTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		adapters: adapters,
		pricer:   p,
		timeout:  timeout,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Collect fetches every exchange concurrently. An adapter that fails, times out or panics
// is reported in the error map and never affects the others.
func (a *Aggregator) Collect(ctx context.Context) (map[string]*domain.ExchangeSnapshot, map[string]string) {
	var (
		mu      sync.Mutex
		results = make(map[string]*domain.ExchangeSnapshot, len(a.adapters))
		errs    = make(map[string]string)
	)

	g := new(errgroup.Group)
	for _, adapter := range a.adapters {
		g.Go(func() error {
			name := adapter.Name()
			started := a.now()

			snapshot, err := a.fetch(ctx, adapter)
			a.metrics.RecordFetch(name, a.now().Sub(started), err)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				errs[name] = err.Error()
				a.logger.Error("exchange fetch failed", zap.String("exchange", name), zap.Error(err))
				return nil
			}
			results[name] = snapshot
			a.metrics.RecordOmitted(name, len(snapshot.Omitted))
			return nil
		})
	}
	_ = g.Wait()

	return results, errs
}

type fetchOutcome struct {
	snapshot *domain.ExchangeSnapshot
	err      error
}

// fetch returns once the adapter finishes or the per-exchange timeout expires,
// whichever comes first. A late adapter result is discarded.
func (a *Aggregator) fetch(ctx context.Context, adapter exchange.Adapter) (*domain.ExchangeSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	name := adapter.Name()
	done := make(chan fetchOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetchOutcome{err: domain.NewUpstreamFetchError(name, "fetch", fmt.Errorf("panic: %v", r))}
			}
		}()
		snapshot, err := adapter.Fetch(ctx)
		done <- fetchOutcome{snapshot: snapshot, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, domain.NewUpstreamFetchError(name, "fetch", ctx.Err())
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		if out.snapshot == nil {
			return nil, domain.NewUpstreamFetchError(name, "fetch", fmt.Errorf("adapter returned no snapshot"))
		}
		return out.snapshot, nil
	}
}

// Run performs one full cycle: prices and balances are fetched concurrently, then every
// snapshot is valued and the grand total computed.
func (a *Aggregator) Run(ctx context.Context) *domain.AggregationResult {
	var (
		prices  domain.PriceTable
		results map[string]*domain.ExchangeSnapshot
		errs    map[string]string
	)

	g := new(errgroup.Group)
	g.Go(func() error {
		prices = a.pricer.FetchPrices(ctx)
		return nil
	})
	g.Go(func() error {
		results, errs = a.Collect(ctx)
		return nil
	})
	_ = g.Wait()

	valuation.Value(results, prices)

	result := &domain.AggregationResult{
		ID:            uuid.New().String(),
		Timestamp:     a.now().UTC(),
		GrandTotalUSD: valuation.GrandTotal(results),
		Balances:      results,
		Errors:        errs,
		Prices:        prices,
	}

	a.report(result)

	return result
}

func (a *Aggregator) report(result *domain.AggregationResult) {
	names := make([]string, 0, len(result.Balances))
	for name := range result.Balances {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		snapshot := result.Balances[name]
		a.metrics.RecordExchangeTotal(name, snapshot.ExchangeTotalUSD)
		a.logger.Info("✓ exchange collected",
			zap.String("exchange", name),
			zap.Int("assets", len(snapshot.Total)),
			zap.Int("subaccounts", len(snapshot.Subaccounts)),
			zap.String("usd", snapshot.ExchangeTotalUSD.StringFixed(2)),
		)
	}

	a.metrics.RecordCycle(result.Timestamp, result.GrandTotalUSD, string(result.Prices.Source))
	a.logger.Info("aggregation finished",
		zap.String("cycle_id", result.ID),
		zap.String("grand_total_usd", result.GrandTotalUSD.StringFixed(2)),
		zap.String("price_source", string(result.Prices.Source)),
		zap.Int("exchanges", len(result.Balances)),
		zap.Int("failed", len(result.Errors)),
	)
}
