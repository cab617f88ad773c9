package web

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cexbalance/internal/app"
	"github.com/vadiminshakov/cexbalance/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingInvoker struct {
	mu   sync.Mutex
	last app.Invocation
}

func (r *recordingInvoker) Invoke(_ context.Context, inv app.Invocation) app.Response {
	r.mu.Lock()
	r.last = inv
	r.mu.Unlock()

	return app.Response{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"Content-Type":                "application/json",
			"Access-Control-Allow-Origin": "*",
		},
		Body: []byte(`{"ok":true}`),
	}
}

func (r *recordingInvoker) lastInvocation() app.Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func serve(s *Server, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestServer_Balances(t *testing.T) {
	invoker := &recordingInvoker{}
	s := NewServer(":0", invoker, nil, zap.NewNop())

	rec := serve(s, http.MethodGet, "/balances?save_snapshot=true")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	inv := invoker.lastInvocation()
	assert.Equal(t, "/balances", inv.Path)
	assert.Equal(t, "http", inv.Source)
	assert.True(t, inv.SaveSnapshot)

	serve(s, http.MethodGet, "/")
	assert.False(t, invoker.lastInvocation().SaveSnapshot)
}

func TestServer_Snapshots(t *testing.T) {
	invoker := &recordingInvoker{}
	s := NewServer(":0", invoker, nil, zap.NewNop())

	rec := serve(s, http.MethodGet, "/snapshots?limit=30")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/snapshots", invoker.lastInvocation().Path)
	assert.Equal(t, 30, invoker.lastInvocation().Limit)

	for _, raw := range []string{"abc", "0", "-3"} {
		rec = serve(s, http.MethodGet, "/snapshots?limit="+raw)
		assert.Equal(t, http.StatusOK, rec.Code, raw)
		assert.Zero(t, invoker.lastInvocation().Limit, raw)
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	s := NewServer(":0", &recordingInvoker{}, nil, zap.NewNop())

	rec := serve(s, http.MethodOptions, "/balances")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "GET")
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s := NewServer(":0", &recordingInvoker{}, nil, zap.NewNop())

	rec := serve(s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_StreamUnavailableWithoutFeed(t *testing.T) {
	s := NewServer(":0", &recordingInvoker{}, nil, zap.NewNop())

	rec := serve(s, http.MethodGet, "/balances/stream")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_BalanceStream(t *testing.T) {
	feed := app.NewFeed()
	feed.Publish(&domain.AggregationResult{
		Timestamp:     time.Date(2024, 1, 15, 16, 30, 0, 0, time.UTC),
		GrandTotalUSD: decimal.RequireFromString("200.55"),
	})

	s := NewServer(":0", &recordingInvoker{}, feed, zap.NewNop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/balances/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	event, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: balance\n", event)

	data, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(data, "data: "))
	assert.Contains(t, data, `"grand_total_usd":200.55`)
	assert.Contains(t, data, `"errors":null`)
}
