package app

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cexbalance/internal/domain"
)

type fakeAggregator struct {
	result *domain.AggregationResult
	runs   atomic.Int32
}

func (f *fakeAggregator) Run(context.Context) *domain.AggregationResult {
	f.runs.Add(1)
	return f.result
}

type fakeStore struct {
	mu      sync.Mutex
	saved   []*domain.AggregationResult
	limit   int
	history []domain.HistoryEntry
}

func (f *fakeStore) Save(_ context.Context, result *domain.AggregationResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, result)
}

func (f *fakeStore) List(_ context.Context, limit int) []domain.HistoryEntry {
	f.limit = limit
	return f.history
}

func (f *fakeStore) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func sampleResult(errs map[string]string) *domain.AggregationResult {
	snapshot := domain.NewExchangeSnapshot()
	snapshot.AddMaster("BTC", decimal.RequireFromString("0.5"))
	snapshot.ExchangeTotalUSD = decimal.RequireFromString("51000")

	return &domain.AggregationResult{
		ID:            "cycle",
		Timestamp:     time.Date(2024, 1, 15, 16, 30, 0, 0, time.UTC),
		GrandTotalUSD: decimal.RequireFromString("51000"),
		Balances:      map[string]*domain.ExchangeSnapshot{"okx": snapshot},
		Errors:        errs,
	}
}

func decode(t *testing.T, resp Response) map[string]json.RawMessage {
	t.Helper()
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(resp.Body, &body))
	return body
}

func TestHandler_Balances(t *testing.T) {
	store := &fakeStore{}
	h := NewHandler(&fakeAggregator{result: sampleResult(map[string]string{})}, store, 0, zap.NewNop())

	resp := h.Invoke(context.Background(), Invocation{Path: "/"})

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
	assert.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])

	body := decode(t, resp)
	assert.JSONEq(t, `"2024-01-15T16:30:00.000Z"`, string(body["timestamp"]))
	assert.JSONEq(t, `51000`, string(body["grand_total_usd"]))
	assert.Equal(t, "null", string(body["errors"]))
	assert.Contains(t, string(body["balances"]), `"okx"`)
	assert.Zero(t, store.savedCount())
}

func TestHandler_BalancesWithErrors(t *testing.T) {
	h := NewHandler(&fakeAggregator{result: sampleResult(map[string]string{"htx": "htx: accounts: timeout"})}, nil, 0, nil)

	resp := h.Invoke(context.Background(), Invocation{Path: "/api/balances"})

	assert.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t, `{"htx":"htx: accounts: timeout"}`, string(decode(t, resp)["errors"]))
}

func TestHandler_SavesSnapshot(t *testing.T) {
	tests := []struct {
		name  string
		inv   Invocation
		saved int
	}{
		{name: "scheduler", inv: Invocation{Source: SourceScheduler}, saved: 1},
		{name: "explicit flag", inv: Invocation{Path: "/balances", SaveSnapshot: true}, saved: 1},
		{name: "plain request", inv: Invocation{Path: "/balances", Source: "http"}, saved: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			h := NewHandler(&fakeAggregator{result: sampleResult(nil)}, store, 0, nil)

			resp := h.Invoke(context.Background(), tt.inv)
			assert.Equal(t, 200, resp.StatusCode)
			assert.Equal(t, tt.saved, store.savedCount())
		})
	}
}

func TestHandler_History(t *testing.T) {
	store := &fakeStore{history: []domain.HistoryEntry{
		{Date: "2024-01-16", Timestamp: "2024-01-15T16:30:00.000Z", GrandTotalUSD: decimal.RequireFromString("10")},
	}}
	agg := &fakeAggregator{result: sampleResult(nil)}
	h := NewHandler(agg, store, 0, nil)

	resp := h.Invoke(context.Background(), Invocation{Path: "/api/snapshots"})

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 90, store.limit)
	assert.Zero(t, agg.runs.Load())

	var body struct {
		Snapshots []domain.HistoryEntry `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(resp.Body, &body))
	require.Len(t, body.Snapshots, 1)
	assert.Equal(t, "2024-01-16", body.Snapshots[0].Date)

	h.Invoke(context.Background(), Invocation{Path: "/snapshots", Limit: 7})
	assert.Equal(t, 7, store.limit)
}

func TestHandler_HistoryWithoutStore(t *testing.T) {
	h := NewHandler(&fakeAggregator{}, nil, 0, nil)

	resp := h.Invoke(context.Background(), Invocation{Path: "/snapshots"})
	assert.JSONEq(t, `{"snapshots":[]}`, string(resp.Body))
}

func TestHandler_PublishesToFeed(t *testing.T) {
	result := sampleResult(nil)
	h := NewHandler(&fakeAggregator{result: result}, nil, 0, nil)

	updates, cancel := h.Feed().Subscribe()
	defer cancel()

	h.Invoke(context.Background(), Invocation{Path: "/"})

	select {
	case got := <-updates:
		assert.Same(t, result, got)
	case <-time.After(time.Second):
		t.Fatal("no result published")
	}
	assert.Same(t, result, h.Feed().Latest())
}

func TestFeed_SlowSubscriberGetsLatest(t *testing.T) {
	feed := NewFeed()
	updates, cancel := feed.Subscribe()
	defer cancel()

	first, second := sampleResult(nil), sampleResult(nil)
	feed.Publish(first)
	feed.Publish(second)

	assert.Same(t, second, <-updates)

	cancel()
	feed.Publish(first)
	select {
	case <-updates:
		t.Fatal("cancelled subscriber received a result")
	default:
	}
}

func TestFeed_SubscribeReplaysLatest(t *testing.T) {
	feed := NewFeed()
	result := sampleResult(nil)
	feed.Publish(result)

	updates, cancel := feed.Subscribe()
	defer cancel()
	assert.Same(t, result, <-updates)
}

type countingInvoker struct {
	calls chan Invocation
}

func (c *countingInvoker) Invoke(_ context.Context, inv Invocation) Response {
	c.calls <- inv
	return Response{StatusCode: 200}
}

func TestScheduler_Run(t *testing.T) {
	invoker := &countingInvoker{calls: make(chan Invocation, 10)}
	s := NewScheduler(invoker, 20*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for range 2 {
		select {
		case inv := <-invoker.calls:
			assert.Equal(t, SourceScheduler, inv.Source)
		case <-time.After(2 * time.Second):
			t.Fatal("scheduler did not fire")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
