package service

import (
	"time"

	"signal_engine/internal/models"
)

// SignalMessage: формат сигнала в топике.
type SignalMessage struct {
	ID            string    `json:"id"`
	StrategyID    int64     `json:"strategy_id"`
	Strategy      string    `json:"strategy"`
	InstrumentID  int64     `json:"instrument_id"`
	InstrumentKey string    `json:"instrument_key"`
	Symbol        string    `json:"symbol"`
	Exchange      string    `json:"exchange"`
	Broker        string    `json:"broker"`
	Timeframe     string    `json:"timeframe"`
	Type          string    `json:"type"`
	Price         float64   `json:"price"`
	EMA50         float64   `json:"ema50"`
	EMA200        float64   `json:"ema200"`
	CandleStart   time.Time `json:"candle_start"`
	CreatedAt     time.Time `json:"created_at"`
}

func NewSignalMessage(env models.SignalEnvelope) SignalMessage {
	s := env.Signal
	return SignalMessage{
		ID:            s.ID,
		StrategyID:    s.StrategyID,
		Strategy:      s.StrategyName,
		InstrumentID:  s.InstrumentID,
		InstrumentKey: s.InstrumentKey,
		Symbol:        env.Instrument.Symbol,
		Exchange:      env.Instrument.Exchange,
		Broker:        string(env.Instrument.Broker),
		Timeframe:     string(s.Timeframe),
		Type:          string(s.Type),
		Price:         s.Price,
		EMA50:         s.EMA50,
		EMA200:        s.EMA200,
		CandleStart:   s.CandleStart,
		CreatedAt:     s.CreatedAt,
	}
}
