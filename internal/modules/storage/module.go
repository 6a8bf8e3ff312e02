package storage

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_engine/internal/modules/config"
	pipeline "signal_engine/internal/modules/pipeline/service"
	"signal_engine/internal/modules/storage/service"
	"signal_engine/pkg/db"
)

// NewStore выбирает хранилище по storage.driver.
func NewStore(lc fx.Lifecycle, cfg *config.Config, pg *db.PgTxManager, log *zap.Logger) (service.Store, error) {
	var (
		store service.Store
		err   error
	)
	switch cfg.Storage.Driver {
	case "postgres":
		store, err = service.NewPostgres(context.Background(), pg)
	case "sqlite":
		store, err = service.OpenSQLite(cfg.Storage.Path)
	case "yaml":
		store, err = service.OpenYAML(cfg.Storage.Path, cfg.Pipeline.HistoryLimit)
	default:
		err = fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	if err != nil {
		return nil, err
	}
	log.Info("storage ready", zap.String("driver", cfg.Storage.Driver))

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(
			NewStore,
			service.NewSignalSink,
			func(s *service.SignalSink) pipeline.CandleRecorder { return s },
			fx.Annotate(
				func(s *service.SignalSink) pipeline.Sink { return s },
				fx.ResultTags(`group:"sinks"`),
			),
		),
	)
}
