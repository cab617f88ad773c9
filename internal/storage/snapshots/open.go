package snapshots

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cexbalance/config"
	"github.com/vadiminshakov/cexbalance/pkg/retrier"
)

// Open builds the backend selected by cfg. The "none" backend yields a nil Backend.
// Database connections are retried since the server may still be starting.
func Open(ctx context.Context, cfg config.StoreConfig, logLevel string, logger *zap.Logger) (Backend, error) {
	r := retrier.New(
		retrier.WithInitialInterval(time.Second),
		retrier.WithMaxAttempts(5),
		retrier.OnRetry(func(attempt int, err error) {
			logger.Warn("snapshot store is not available, retrying",
				zap.String("backend", cfg.Backend), zap.Int("attempt", attempt), zap.Error(err))
		}),
	)

	switch cfg.Backend {
	case "none":
		return nil, nil
	case "wal":
		backend, err := NewWALBackend(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case "sqlite", "mysql", "postgres":
		backend, err := retrier.DoWithData(ctx, r, func(context.Context) (*GormBackend, error) {
			return NewGormBackend(GormConfig{
				Driver:          cfg.Backend,
				DSN:             cfg.DSN,
				MaxOpenConns:    cfg.MaxOpenConns,
				ConnMaxLifetime: cfg.ConnMaxLifetime,
				LogLevel:        logLevel,
			})
		})
		if err != nil {
			return nil, errors.Wrapf(err, "open %s snapshot store", cfg.Backend)
		}
		return backend, nil
	default:
		return nil, errors.Errorf("unknown snapshot store backend %q", cfg.Backend)
	}
}
