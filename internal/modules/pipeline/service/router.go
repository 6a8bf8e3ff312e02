package service

import (
	"context"

	"go.uber.org/zap"

	"signal_engine/internal/metrics"
	"signal_engine/internal/models"
)

// Sink: получатель готовых сигналов (хранилище, рассылка, уведомления).
type Sink interface {
	Name() string
	Handle(ctx context.Context, env models.SignalEnvelope) error
}

type CandleRecorder interface {
	RecordCandle(ctx context.Context, c models.Candle) error
}

// Router раздаёт сигнал всем Sink. Отказ одного не мешает остальным и
// ничего не откатывает.
type Router struct {
	sinks    []Sink
	recorder CandleRecorder
	log      *zap.Logger
}

func NewRouter(sinks []Sink, recorder CandleRecorder, log *zap.Logger) *Router {
	return &Router{sinks: sinks, recorder: recorder, log: log}
}

func (r *Router) Dispatch(ctx context.Context, env models.SignalEnvelope) {
	for _, s := range r.sinks {
		if err := s.Handle(ctx, env); err != nil {
			metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
			r.log.Error("sink failed",
				zap.String("sink", s.Name()),
				zap.String("signal", env.Signal.ID),
				zap.Error(err))
		}
	}
}

// Run крутится до отмены ctx, после чего дописывает то, что уже в буфере.
func (r *Router) Run(ctx context.Context, signals <-chan models.SignalEnvelope, candles <-chan models.Candle) {
	for {
		select {
		case <-ctx.Done():
			r.drain(context.WithoutCancel(ctx), signals)
			return
		case env := <-signals:
			r.Dispatch(ctx, env)
		case c := <-candles:
			if r.recorder == nil {
				continue
			}
			if err := r.recorder.RecordCandle(ctx, c); err != nil {
				r.log.Warn("record candle", zap.String("key", c.Key().String()), zap.Error(err))
			}
		}
	}
}

func (r *Router) drain(ctx context.Context, signals <-chan models.SignalEnvelope) {
	for {
		select {
		case env := <-signals:
			r.Dispatch(ctx, env)
		default:
			return
		}
	}
}
