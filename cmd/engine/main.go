package main

import (
	"context"
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"signal_engine/internal/modules/bootstrap"
	"signal_engine/internal/modules/broadcast"
	"signal_engine/internal/modules/broker_stream"
	"signal_engine/internal/modules/candles"
	"signal_engine/internal/modules/config"
	"signal_engine/internal/modules/health"
	"signal_engine/internal/modules/notify"
	"signal_engine/internal/modules/pipeline"
	"signal_engine/internal/modules/postgres"
	"signal_engine/internal/modules/storage"
	"signal_engine/internal/modules/strategy"
	"signal_engine/pkg/logger"
	"signal_engine/pkg/tracing"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(cfg.Service.Name, cfg.Log.Level)
}

func initTracing(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) error {
	if !cfg.Tracing.Enabled {
		return nil
	}
	tracing.SetServiceName(cfg.Service.Name)
	_, closer, err := tracing.InitTracer(tracing.Config{Host: cfg.Tracing.Host, Port: cfg.Tracing.Port})
	if err != nil {
		return err
	}
	log.Info("tracing enabled", zap.String("agent", cfg.Tracing.Host), zap.Int("port", cfg.Tracing.Port))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return closer.Close()
		},
	})
	return nil
}

func main() {
	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
			newLogger,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		config.Module(),
		fx.Invoke(initTracing),
		postgres.Module(),
		storage.Module(),
		health.Module(),
		candles.Module(),
		strategy.Module(),
		broadcast.Module(),
		notify.Module(),
		// порядок OnStart: каталог, прогрев, потом брокеры
		pipeline.Module(),
		bootstrap.Module(),
		broker_stream.Module(),
	)
	if err := app.Err(); err != nil {
		log.Fatal(err)
	}
	app.Run()
}
