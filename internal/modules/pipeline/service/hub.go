package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"signal_engine/internal/indicator"
	"signal_engine/internal/metrics"
	"signal_engine/internal/models"
	candles "signal_engine/internal/modules/candles/service"
	strategy "signal_engine/internal/modules/strategy/service"
	"signal_engine/pkg/tracing"
)

// Hub ведёт тик через свечи и EMA к стратегиям. Готовые сигналы уходят в
// канал Signals, закрытые свечи в канал Candles; оба не блокируют.
type Hub struct {
	agg     *candles.Aggregator
	tracker *indicator.Tracker
	engine  *strategy.Engine
	catalog *Catalog
	log     *zap.Logger
	now     func() time.Time

	signals chan models.SignalEnvelope
	candles chan models.Candle
}

func NewHub(
	agg *candles.Aggregator,
	tracker *indicator.Tracker,
	engine *strategy.Engine,
	catalog *Catalog,
	buffer int,
	log *zap.Logger,
) *Hub {
	if buffer <= 0 {
		buffer = 4096
	}
	return &Hub{
		agg:     agg,
		tracker: tracker,
		engine:  engine,
		catalog: catalog,
		log:     log,
		now:     time.Now,
		signals: make(chan models.SignalEnvelope, buffer),
		candles: make(chan models.Candle, buffer),
	}
}

func (h *Hub) Signals() <-chan models.SignalEnvelope { return h.signals }

func (h *Hub) Candles() <-chan models.Candle { return h.candles }

// OnTick раскладывает тик по всем таймфреймам каталога. Тики инструментов
// вне каталога игнорируются.
func (h *Hub) OnTick(ctx context.Context, t models.Tick) []models.Signal {
	in, ok := h.catalog.Instrument(t.InstrumentKey)
	if !ok {
		return nil
	}
	var out []models.Signal
	for _, tf := range h.catalog.Timeframes() {
		closed, ok := h.agg.Add(models.CandleKey{InstrumentKey: t.InstrumentKey, Timeframe: tf}, t)
		if !ok {
			continue
		}
		out = append(out, h.OnCandleClose(ctx, in, closed)...)
	}
	return out
}

// Flush закрывает свечи по таймеру, если тиков давно не было.
func (h *Hub) Flush(ctx context.Context, now time.Time) []models.Signal {
	var out []models.Signal
	for _, c := range h.agg.Flush(now) {
		in, ok := h.catalog.Instrument(c.InstrumentKey)
		if !ok {
			continue
		}
		out = append(out, h.OnCandleClose(ctx, in, c)...)
	}
	return out
}

// OnCandleClose: EMA по истории ключа, затем стратегии таймфрейма.
// Повтор той же свечи даёт то же решение.
func (h *Hub) OnCandleClose(ctx context.Context, in models.Instrument, c models.Candle) []models.Signal {
	span, ctx := tracing.StartSpan(ctx, "pipeline.candle_close", map[string]interface{}{
		"instrument": c.InstrumentKey,
		"timeframe":  string(c.Timeframe),
	})
	defer span.Finish()

	metrics.CandlesClosed.WithLabelValues(string(c.Timeframe)).Inc()
	h.record(c)

	key := c.Key()
	vals := h.tracker.Update(key.String(), c.PeriodStart, c.Close, h.agg.Closes(key))
	if !vals.Ready {
		return nil
	}

	matches := h.engine.Evaluate(ctx, strategy.CandleContext{Candle: c, EMA50: vals.Fast, EMA200: vals.Slow}, h.catalog.Strategies())
	if len(matches) == 0 {
		return nil
	}
	span.SetTag("matches", len(matches))

	out := make([]models.Signal, 0, len(matches))
	for _, m := range matches {
		sig := models.Signal{
			ID:            uuid.NewString(),
			StrategyID:    m.Strategy.ID,
			StrategyName:  m.Strategy.Name,
			InstrumentID:  in.ID,
			InstrumentKey: c.InstrumentKey,
			Timeframe:     c.Timeframe,
			Type:          m.Type,
			Price:         c.Close,
			EMA50:         vals.Fast,
			EMA200:        vals.Slow,
			CandleStart:   c.PeriodStart,
			CreatedAt:     h.now().UTC(),
		}
		metrics.SignalsTotal.WithLabelValues(m.Strategy.Name, string(m.Type)).Inc()
		h.log.Info("signal",
			zap.String("strategy", m.Strategy.Name),
			zap.String("instrument", in.Symbol),
			zap.String("timeframe", string(c.Timeframe)),
			zap.String("type", string(m.Type)),
			zap.Float64("price", c.Close))

		select {
		case h.signals <- models.SignalEnvelope{Signal: sig, Instrument: in, Strategy: m.Strategy}:
		default:
			metrics.SignalsDropped.Inc()
			h.log.Warn("signal channel full, dropping", zap.String("id", sig.ID))
		}
		out = append(out, sig)
	}
	return out
}

func (h *Hub) record(c models.Candle) {
	select {
	case h.candles <- c:
	default:
		h.log.Debug("candle channel full, not persisted", zap.String("key", c.Key().String()))
	}
}
