// Command cexbalance aggregates balances across centralized exchanges, values them in USD
// and keeps one snapshot per day.
//
// Usage:
//
//	cexbalance --config config.yaml          serve HTTP and run the snapshot scheduler
//	cexbalance --config config.yaml --once   print one aggregation as JSON and exit
//	cexbalance --setup                       run the configuration wizard
//
// Credentials are read from the environment (or the --env file), for example
// BINANCE_API_KEY, BINANCE_API_SECRET, OKX_PASSPHRASE, HYPERLIQUID_PRIVATE_KEY.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/cexbalance/config"
	"github.com/vadiminshakov/cexbalance/internal/app"
	"github.com/vadiminshakov/cexbalance/internal/clients"
	"github.com/vadiminshakov/cexbalance/internal/metrics"
	"github.com/vadiminshakov/cexbalance/internal/services/aggregator"
	"github.com/vadiminshakov/cexbalance/internal/services/exchange"
	"github.com/vadiminshakov/cexbalance/internal/services/pricer"
	"github.com/vadiminshakov/cexbalance/internal/setup"
	"github.com/vadiminshakov/cexbalance/internal/storage/snapshots"
	"github.com/vadiminshakov/cexbalance/internal/web"
)

const defaultGeneratedConfig = "config.gen.yaml"

func main() {
	conf, flags, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	if flags.Setup {
		conf, err = runSetup(flags)
		if err != nil {
			log.Fatal(err)
		}
	}

	logger, err := newLogger(conf.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("cexbalance stopped", zap.Error(err))
	}
}

func runSetup(flags config.Flags) (config.Config, error) {
	path := flags.ConfigPath
	if path == "" {
		path = defaultGeneratedConfig
	}
	if err := setup.RunTUI(path, flags.EnvFile); err != nil {
		return config.Config{}, err
	}
	if err := godotenv.Overload(flags.EnvFile); err != nil {
		return config.Config{}, errors.Wrapf(err, "load %s", flags.EnvFile)
	}

	conf, err := config.FromFile(path)
	if err != nil {
		return config.Config{}, err
	}
	if flags.Addr != "" {
		conf.Addr = flags.Addr
	}
	conf.Once = flags.Once
	conf.Credentials = config.CredentialsFromEnv(os.Getenv)

	return conf, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "incorrect 'log_level' param in yaml config: %s", level)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func run(ctx context.Context, conf config.Config, logger *zap.Logger) error {
	m := metrics.New(prometheus.DefaultRegisterer)

	prices, closePrices := newPricer(ctx, conf, logger)
	defer closePrices()

	adapters, err := exchange.Build(ctx, adapterSettings(conf, logger), logger)
	if err != nil {
		return err
	}
	if len(adapters) == 0 {
		logger.Warn("no exchange has credentials configured, balances will be empty")
	}

	backend, err := snapshots.Open(ctx, conf.Store, conf.LogLevel, logger)
	if err != nil {
		// history is optional, aggregation keeps working without it
		logger.Error("snapshot store disabled", zap.Error(err))
		backend = nil
	}
	store := snapshots.NewStore(backend, conf.Store.Location(), logger, m)
	defer store.Close()

	agg := aggregator.New(adapters, prices, conf.ExchangeTimeout, logger, m)
	handler := app.NewHandler(agg, store, conf.Store.HistoryLimit, logger)

	if conf.Once {
		resp := handler.Invoke(ctx, app.Invocation{Path: "/"})
		_, err := os.Stdout.Write(append(resp.Body, '\n'))
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return web.NewServer(conf.Addr, handler, handler.Feed(), logger).Start(ctx)
	})
	if conf.Schedule.Enabled {
		g.Go(func() error {
			return app.NewScheduler(handler, conf.Schedule.Interval, logger).Run(ctx)
		})
	}

	return g.Wait()
}

func newPricer(ctx context.Context, conf config.Config, logger *zap.Logger) (pricer.Pricer, func()) {
	binanceConf := conf.Credentials["binance"]
	baseURL := ""
	for _, ec := range conf.Exchanges {
		if ec.Name == "binance" {
			baseURL = ec.BaseURL
		}
	}

	client := clients.NewBinanceClient(binanceConf.APIKey, binanceConf.APISecret, baseURL)
	oracle := pricer.NewOracle(pricer.NewBinanceTickerSource(client), conf.Quote, conf.PriceTimeout, logger)

	switch conf.PriceCache.Backend {
	case "memory":
		return pricer.NewCachedOracle(oracle, pricer.NewMemoryCache(), conf.PriceCache.TTL, logger), func() {}
	case "redis":
		cache, err := pricer.NewRedisCache(ctx, conf.PriceCache.RedisAddr, conf.PriceCache.RedisPassword, conf.PriceCache.RedisDB)
		if err != nil {
			logger.Warn("price cache disabled, redis is not reachable", zap.Error(err))
			return oracle, func() {}
		}
		return pricer.NewCachedOracle(oracle, cache, conf.PriceCache.TTL, logger), func() { _ = cache.Close() }
	default:
		return oracle, func() {}
	}
}

func adapterSettings(conf config.Config, logger *zap.Logger) []exchange.Settings {
	settings := make([]exchange.Settings, 0, len(conf.Exchanges))
	for _, ec := range conf.Exchanges {
		if !ec.Enabled {
			continue
		}
		settings = append(settings, exchange.Settings{
			Name:            ec.Name,
			BaseURL:         ec.BaseURL,
			Credentials:     conf.Credentials[ec.Name],
			SubaccountLabel: ec.SubaccountLabel,
			Timeout:         conf.ExchangeTimeout,
			RequestsPerSec:  conf.RequestsPerSec,
			Logger:          logger,
		})
	}
	return settings
}
