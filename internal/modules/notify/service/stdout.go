package service

import (
	"context"

	"go.uber.org/zap"

	"signal_engine/internal/models"
)

type Stdout struct {
	log *zap.Logger
}

func NewStdout(log *zap.Logger) *Stdout {
	return &Stdout{log: log}
}

func (s *Stdout) Name() string { return "stdout" }

func (s *Stdout) Notify(_ context.Context, env models.SignalEnvelope) error {
	sig := env.Signal
	s.log.Info("signal",
		zap.String("id", sig.ID),
		zap.String("type", string(sig.Type)),
		zap.String("symbol", env.Instrument.Symbol),
		zap.String("strategy", sig.StrategyName),
		zap.String("timeframe", string(sig.Timeframe)),
		zap.String("price", price(sig.Price)),
	)
	return nil
}
