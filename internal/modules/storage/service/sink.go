package service

import (
	"context"
	"fmt"

	"signal_engine/internal/models"
)

// SignalSink сохраняет сигнал и увеличивает счётчик стратегии.
type SignalSink struct {
	store Store
}

func NewSignalSink(store Store) *SignalSink {
	return &SignalSink{store: store}
}

func (s *SignalSink) Name() string { return "storage" }

func (s *SignalSink) Handle(ctx context.Context, env models.SignalEnvelope) error {
	if err := s.store.SaveSignal(ctx, env.Signal); err != nil {
		return err
	}
	if err := s.store.IncrementSignalCount(ctx, env.Signal.StrategyID); err != nil {
		return fmt.Errorf("signal %s saved, counter not updated: %w", env.Signal.ID, err)
	}
	return nil
}

// RecordCandle — закрытые свечи для прогрева после рестарта.
func (s *SignalSink) RecordCandle(ctx context.Context, c models.Candle) error {
	return s.store.SaveCandle(ctx, c)
}
