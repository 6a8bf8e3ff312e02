package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_engine/internal/indicator"
	"signal_engine/internal/models"
	candles "signal_engine/internal/modules/candles/service"
	"signal_engine/internal/modules/config"
	health "signal_engine/internal/modules/health/service"
	"signal_engine/internal/modules/pipeline/service"
	storage "signal_engine/internal/modules/storage/service"
	strategy "signal_engine/internal/modules/strategy/service"
)

func NewTracker(cfg *config.Config) (*indicator.Tracker, error) {
	return indicator.NewTracker(cfg.Pipeline.FastEMA, cfg.Pipeline.SlowEMA)
}

func NewCatalog(store storage.Store, engine *strategy.Engine, log *zap.Logger) *service.Catalog {
	return service.NewCatalog(store, engine, log.Named("catalog"))
}

func NewHub(
	cfg *config.Config,
	agg *candles.Aggregator,
	tracker *indicator.Tracker,
	engine *strategy.Engine,
	catalog *service.Catalog,
	log *zap.Logger,
) *service.Hub {
	return service.NewHub(agg, tracker, engine, catalog, cfg.Pipeline.SignalBuffer, log.Named("hub"))
}

type routerParams struct {
	fx.In

	Sinks    []service.Sink `group:"sinks"`
	Recorder service.CandleRecorder
	Log      *zap.Logger
}

func NewRouter(p routerParams) *service.Router {
	return service.NewRouter(p.Sinks, p.Recorder, p.Log.Named("router"))
}

func Module() fx.Option {
	return fx.Module("pipeline",
		fx.Provide(
			NewTracker,
			NewCatalog,
			NewHub,
			NewRouter,
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			cfg *config.Config,
			catalog *service.Catalog,
			hub *service.Hub,
			router *service.Router,
			ticks <-chan models.Tick,
			state *health.State,
			log *zap.Logger,
		) {
			runCtx, cancel := context.WithCancel(context.Background())
			var wg sync.WaitGroup

			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if err := catalog.Reload(ctx); err != nil {
						cancel()
						return err
					}

					wg.Go(func() { router.Run(runCtx, hub.Signals(), hub.Candles()) })
					wg.Go(func() {
						log.Info("hub loop started")
						var flush, reload <-chan time.Time
						if cfg.Pipeline.FlushInterval > 0 {
							t := time.NewTicker(cfg.Pipeline.FlushInterval)
							defer t.Stop()
							flush = t.C
						}
						if cfg.Pipeline.ReloadInterval > 0 {
							t := time.NewTicker(cfg.Pipeline.ReloadInterval)
							defer t.Stop()
							reload = t.C
						}
						for {
							select {
							case <-runCtx.Done():
								log.Info("hub loop stopped")
								return
							case t := <-ticks:
								state.TouchTick(t.Timestamp)
								hub.OnTick(runCtx, t)
							case now := <-flush:
								hub.Flush(runCtx, now)
							case <-reload:
								if err := catalog.Reload(runCtx); err != nil {
									log.Warn("catalog reload failed, keeping previous", zap.Error(err))
								}
							}
						}
					})
					return nil
				},
				OnStop: func(ctx context.Context) error {
					cancel()
					done := make(chan struct{})
					go func() {
						wg.Wait()
						close(done)
					}()
					select {
					case <-done:
						return nil
					case <-ctx.Done():
						return ctx.Err()
					}
				},
			})
		}),
	)
}
