package models

import "time"

// Signal создаётся один раз на (стратегия, закрытие свечи) и дальше не меняется.
type Signal struct {
	ID            string
	StrategyID    int64
	StrategyName  string
	InstrumentID  int64
	InstrumentKey string
	Timeframe     Timeframe
	Type          SignalType
	Price         float64
	EMA50         float64
	EMA200        float64
	CandleStart   time.Time
	CreatedAt     time.Time
}

// SignalEnvelope — сигнал вместе с метаданными инструмента и стратегии,
// в таком виде он уходит в рассылку и уведомления.
type SignalEnvelope struct {
	Signal     Signal
	Instrument Instrument
	Strategy   Strategy
}
