package strategy

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_engine/internal/modules/config"
	"signal_engine/internal/modules/strategy/service"
)

func NewEngine(cfg *config.Config, log *zap.Logger) (*service.Engine, error) {
	return service.NewEngine(log.Named("strategy"), cfg.Pipeline.FormulaCacheSize)
}

func Module() fx.Option {
	return fx.Module("strategy",
		fx.Provide(
			NewEngine,
		),
	)
}
