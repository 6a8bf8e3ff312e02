package broker_stream

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_engine/internal/models"
	"signal_engine/internal/modules/broker_stream/service"
	"signal_engine/internal/modules/config"
	health "signal_engine/internal/modules/health/service"
	storage "signal_engine/internal/modules/storage/service"
)

func NewManager(cfg *config.Config, log *zap.Logger) *service.Manager {
	return service.NewManager(service.NewDialer(), cfg.Pipeline.TickBuffer, log.Named("broker"))
}

func NewTicks(m *service.Manager) <-chan models.Tick {
	return m.Ticks()
}

func workerConfig(b config.BrokerConfig) service.WorkerConfig {
	return service.WorkerConfig{
		BaseDelay:      b.BaseDelay,
		MaxAttempts:    b.MaxAttempts,
		HealthInterval: b.HealthInterval,
		PingInterval:   b.PingInterval,
		DialTimeout:    b.DialTimeout,
	}
}

// credentials: сначала хранилище, потом конфиг.
func credentials(ctx context.Context, store storage.Store, cfg *config.Config, log *zap.Logger) map[models.BrokerName]models.BrokerCredentials {
	out := map[models.BrokerName]models.BrokerCredentials{}
	for _, b := range cfg.Brokers {
		out[models.BrokerName(b.Name)] = models.BrokerCredentials{
			Broker:      models.BrokerName(b.Name),
			APIKey:      b.APIKey,
			AccessToken: b.AccessToken,
			ClientCode:  b.ClientCode,
			FeedToken:   b.FeedToken,
		}
	}
	stored, err := store.Credentials(ctx)
	if err != nil {
		log.Warn("load broker credentials, using config", zap.Error(err))
		return out
	}
	for _, c := range stored {
		if c.AccessToken == "" {
			continue
		}
		out[c.Broker] = c
	}
	return out
}

func subscriptionKeys(instruments []models.Instrument) map[models.BrokerName][]string {
	out := map[models.BrokerName][]string{}
	for _, in := range instruments {
		if !in.Enabled || in.SubscriptionKey == "" {
			continue
		}
		out[in.Broker] = append(out[in.Broker], in.SubscriptionKey)
	}
	return out
}

func syncSubscriptions(ctx context.Context, m *service.Manager, store storage.Store, brokers []models.BrokerName, log *zap.Logger) {
	instruments, err := store.EnabledInstruments(ctx)
	if err != nil {
		log.Warn("load instruments", zap.Error(err))
		return
	}
	keys := subscriptionKeys(instruments)
	for _, b := range brokers {
		if err := m.Sync(ctx, b, keys[b]); err != nil {
			log.Warn("sync subscriptions", zap.String("broker", string(b)), zap.Error(err))
		}
	}
}

func Module() fx.Option {
	return fx.Module("broker_stream",
		fx.Provide(
			NewManager,
			NewTicks,
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			cfg *config.Config,
			m *service.Manager,
			store storage.Store,
			state *health.State,
			log *zap.Logger,
		) {
			runCtx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})

			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					creds := credentials(ctx, store, cfg, log)

					var started []models.BrokerName
					for _, b := range cfg.Brokers {
						if !b.Enabled {
							continue
						}
						name := models.BrokerName(b.Name)
						adapter, err := service.NewAdapter(name, b.URL)
						if err != nil {
							cancel()
							return err
						}
						c := creds[name]
						c.Broker = name
						if err := m.Connect(ctx, adapter, c, workerConfig(b)); err != nil {
							cancel()
							return err
						}
						started = append(started, name)
						log.Info("broker started", zap.String("broker", b.Name))
					}
					syncSubscriptions(ctx, m, store, started, log)

					go func() {
						defer close(done)
						var reload <-chan time.Time
						if cfg.Pipeline.ReloadInterval > 0 {
							t := time.NewTicker(cfg.Pipeline.ReloadInterval)
							defer t.Stop()
							reload = t.C
						}
						for {
							select {
							case <-runCtx.Done():
								return
							case ev := <-m.Events():
								state.ApplyEvent(ev)
								if ev.Terminal() {
									log.Error("broker gave up", zap.String("broker", string(ev.Broker)),
										zap.String("event", string(ev.Kind)), zap.Error(ev.Err))
								}
							case <-reload:
								syncSubscriptions(runCtx, m, store, started, log)
							}
						}
					}()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					err := m.Close(ctx)
					cancel()
					<-done
					return err
				},
			})
		}),
	)
}
