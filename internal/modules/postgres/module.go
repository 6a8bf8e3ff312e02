package postgres

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_engine/internal/modules/config"
	"signal_engine/pkg/db"
)

// Module отдаёт *db.PgTxManager. Для других драйверов хранилища — nil.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*db.PgTxManager, error) {
				if cfg.Storage.Driver != "postgres" {
					return nil, nil
				}
				ctx := context.Background()
				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN: cfg.Storage.DSN,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				err = poolMaster.Ping(ctx)
				if err != nil {
					poolMaster.Close()
					return nil, err
				}

				m := db.NewPgTxManager(poolMaster)
				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						log.Info("closing postgres pool")
						m.Close()
						return nil
					},
				})
				return m, nil
			},
		),
	)
}
