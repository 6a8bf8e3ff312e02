package bootstrap

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_engine/internal/indicator"
	bootstrap "signal_engine/internal/modules/bootstrap/service"
	candles "signal_engine/internal/modules/candles/service"
	"signal_engine/internal/modules/config"
	health "signal_engine/internal/modules/health/service"
	pipeline "signal_engine/internal/modules/pipeline/service"
	storage "signal_engine/internal/modules/storage/service"
)

func NewWatchlist(c *pipeline.Catalog) *bootstrap.Watchlist {
	return bootstrap.NewWatchlist(c)
}

func NewWarmuper(cfg *config.Config, store storage.Store, agg *candles.Aggregator, tracker *indicator.Tracker, log *zap.Logger) *bootstrap.Warmuper {
	return bootstrap.NewWarmuper(store, agg, tracker, cfg.Pipeline.HistoryLimit, cfg.Pipeline.WarmupConcurrency, log.Named("warmup"))
}

// Прогрев идёт до старта брокеров: первая живая свеча уже видит историю.
func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(
			NewWatchlist,
			NewWarmuper,
		),
		fx.Invoke(func(lc fx.Lifecycle, wl *bootstrap.Watchlist, wu *bootstrap.Warmuper, state *health.State, log *zap.Logger) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					started := time.Now()
					keys := wl.Keys()
					res, err := wu.Warmup(ctx, keys)
					if err != nil {
						log.Warn("warmup finished with error", zap.Error(err))
					}
					log.Info("warmup done",
						zap.Int("keys", res.Keys),
						zap.Int64("candles", res.Candles),
						zap.Int64("ready", res.Ready),
						zap.Duration("took", time.Since(started)))
					state.SetReady(true)
					return nil
				},
			})
		}),
	)
}
