package broadcast

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_engine/internal/modules/broadcast/service"
	"signal_engine/internal/modules/config"
	pipeline "signal_engine/internal/modules/pipeline/service"
)

// NewPublisher: Kafka, если заданы брокеры, иначе запись в лог.
func NewPublisher(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (pipeline.Sink, error) {
	log = log.Named("broadcast")
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka brokers not configured, broadcasting to log")
		return service.NewLog(log), nil
	}
	k, err := service.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.ClientID, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			k.Close()
			return nil
		},
	})
	return k, nil
}

func Module() fx.Option {
	return fx.Module("broadcast",
		fx.Provide(
			fx.Annotate(
				NewPublisher,
				fx.ResultTags(`group:"sinks"`),
			),
		),
	)
}
