// Package web exposes the balance aggregation over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cexbalance/internal/app"
)

const (
	sourceHTTP        = "http"
	heartbeatInterval = 30 * time.Second
)

// Server serves the JSON routes, the live balance stream and the metrics endpoint.
type Server struct {
	addr      string
	invoker   app.Invoker
	feed      *app.Feed
	logger    *zap.Logger
	heartbeat time.Duration
	engine    *gin.Engine
}

// NewServer creates a server. feed may be nil, which disables the stream route.
func NewServer(addr string, invoker app.Invoker, feed *app.Feed, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		addr:      addr,
		invoker:   invoker,
		feed:      feed,
		logger:    logger,
		heartbeat: heartbeatInterval,
	}
	s.engine = s.routes()

	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog(), cors())

	r.GET("/", s.handleBalances)
	r.GET("/balances", s.handleBalances)
	r.GET("/balances/stream", s.handleBalanceStream)
	r.GET("/snapshots", s.handleSnapshots)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	for _, path := range []string{"/", "/balances", "/snapshots"} {
		r.OPTIONS(path, func(c *gin.Context) {})
	}

	return r
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", zap.String("addr", s.addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleBalances(c *gin.Context) {
	save, _ := strconv.ParseBool(c.Query("save_snapshot"))

	resp := s.invoker.Invoke(c.Request.Context(), app.Invocation{
		Path:         c.Request.URL.Path,
		Source:       sourceHTTP,
		SaveSnapshot: save,
	})
	write(c, resp)
}

func (s *Server) handleSnapshots(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		// an unusable limit falls back to the configured default
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		} else {
			s.logger.Debug("ignoring invalid snapshot limit", zap.String("limit", raw))
		}
	}

	resp := s.invoker.Invoke(c.Request.Context(), app.Invocation{
		Path:   c.Request.URL.Path,
		Source: sourceHTTP,
		Limit:  limit,
	})
	write(c, resp)
}

// handleBalanceStream pushes every new aggregation result as a server-sent event.
func (s *Server) handleBalanceStream(c *gin.Context) {
	if s.feed == nil {
		c.String(http.StatusServiceUnavailable, "balance stream not available")
		return
	}

	updates, cancel := s.feed.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// send a comment heartbeat so proxies keep the connection
	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			return true
		case result := <-updates:
			payload, err := json.Marshal(app.NewBalancesBody(result))
			if err != nil {
				s.logger.Error("balance stream encode", zap.Error(err))
				return true
			}
			fmt.Fprintf(w, "event: balance\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			return true
		}
	})
}

func write(c *gin.Context, resp app.Response) {
	for k, v := range resp.Headers {
		c.Header(k, v)
	}
	c.Data(resp.StatusCode, resp.Headers["Content-Type"], resp.Body)
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(started)))
	}
}
