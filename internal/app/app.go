// Package app routes invocations to the aggregation cycle or the snapshot history.
package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cexbalance/internal/domain"
)

// SourceScheduler marks invocations issued by the scheduler. They always persist a snapshot.
const SourceScheduler = "scheduler"

const (
	historyPath         = "/snapshots"
	defaultHistoryLimit = 90
)

type Aggregator interface {
	Run(ctx context.Context) *domain.AggregationResult
}

type SnapshotStore interface {
	Save(ctx context.Context, result *domain.AggregationResult)
	List(ctx context.Context, limit int) []domain.HistoryEntry
}

// Invocation describes one request to the system.
type Invocation struct {
	Path         string
	Source       string
	SaveSnapshot bool
	// Limit caps the history length. Zero means the configured default.
	Limit int
}

// Response is always produced, whatever failed during the cycle.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Handler answers invocations.
type Handler struct {
	aggregator   Aggregator
	store        SnapshotStore
	feed         *Feed
	historyLimit int
	logger       *zap.Logger
}

// NewHandler creates a Handler. store may be nil when persistence is disabled.
func NewHandler(aggregator Aggregator, store SnapshotStore, historyLimit int, logger *zap.Logger) *Handler {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Handler{
		aggregator:   aggregator,
		store:        store,
		feed:         NewFeed(),
		historyLimit: historyLimit,
		logger:       logger,
	}
}

// Feed publishes every aggregation result produced by the handler.
func (h *Handler) Feed() *Feed {
	return h.feed
}

type balancesBody struct {
	Timestamp     string                              `json:"timestamp"`
	GrandTotalUSD decimal.Decimal                     `json:"grand_total_usd"`
	Balances      map[string]*domain.ExchangeSnapshot `json:"balances"`
	Errors        map[string]string                   `json:"errors"`
}

type historyBody struct {
	Snapshots []domain.HistoryEntry `json:"snapshots"`
}

// Invoke runs the route selected by inv.
func (h *Handler) Invoke(ctx context.Context, inv Invocation) Response {
	if strings.Contains(inv.Path, historyPath) {
		return h.history(ctx, inv)
	}
	return h.balances(ctx, inv)
}

func (h *Handler) history(ctx context.Context, inv Invocation) Response {
	limit := inv.Limit
	if limit <= 0 {
		limit = h.historyLimit
	}

	entries := make([]domain.HistoryEntry, 0)
	if h.store != nil {
		entries = h.store.List(ctx, limit)
	}

	return h.respond(historyBody{Snapshots: entries})
}

func (h *Handler) balances(ctx context.Context, inv Invocation) Response {
	result := h.aggregator.Run(ctx)
	h.feed.Publish(result)

	if (inv.Source == SourceScheduler || inv.SaveSnapshot) && h.store != nil {
		h.store.Save(ctx, result)
	}

	return h.respond(NewBalancesBody(result))
}

// NewBalancesBody shapes a result for the wire. Errors is null when every exchange succeeded.
func NewBalancesBody(result *domain.AggregationResult) any {
	balances := result.Balances
	if balances == nil {
		balances = make(map[string]*domain.ExchangeSnapshot)
	}

	return balancesBody{
		Timestamp:     result.Timestamp.UTC().Format(domain.TimestampLayout),
		GrandTotalUSD: result.GrandTotalUSD,
		Balances:      balances,
		Errors:        result.ErrorsOrNil(),
	}
}

func (h *Handler) respond(body any) Response {
	headers := map[string]string{
		"Content-Type":                "application/json",
		"Access-Control-Allow-Origin": "*",
	}

	payload, err := json.Marshal(body)
	if err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
		return Response{
			StatusCode: http.StatusInternalServerError,
			Headers:    headers,
			Body:       []byte(`{"error":"failed to encode response"}`),
		}
	}

	return Response{StatusCode: http.StatusOK, Headers: headers, Body: payload}
}
