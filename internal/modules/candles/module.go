package candles

import (
	"go.uber.org/fx"

	"signal_engine/internal/modules/candles/service"
	"signal_engine/internal/modules/config"
)

func Module() fx.Option {
	return fx.Module("candles",
		fx.Provide(
			func(cfg *config.Config) *service.Aggregator {
				return service.NewAggregator(cfg.Pipeline.HistoryLimit)
			},
		),
	)
}
