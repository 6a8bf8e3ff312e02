package notify

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_engine/internal/modules/config"
	"signal_engine/internal/modules/notify/service"
	pipeline "signal_engine/internal/modules/pipeline/service"
)

// NewDispatcher собирает каналы: stdout всегда, Telegram при заданном токене.
func NewDispatcher(cfg *config.Config, log *zap.Logger) (*service.Dispatcher, error) {
	log = log.Named("notify")
	channels := []service.Channel{service.NewStdout(log)}
	if cfg.Telegram.Token != "" {
		tg, err := service.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return nil, err
		}
		channels = append(channels, tg)
	}
	d := service.NewDispatcher(channels...)
	log.Info("notification channels", zap.Strings("channels", d.Channels()))
	return d, nil
}

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			NewDispatcher,
			fx.Annotate(
				func(d *service.Dispatcher) pipeline.Sink { return d },
				fx.ResultTags(`group:"sinks"`),
			),
		),
	)
}
