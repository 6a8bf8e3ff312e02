package models

import "time"

type Candle struct {
	InstrumentKey string
	Timeframe     Timeframe
	Open          float64
	High          float64
	Low           float64
	Close         float64
	Volume        float64
	PeriodStart   time.Time
}

func (c Candle) PeriodEnd() time.Time {
	return c.PeriodStart.Add(c.Timeframe.Duration())
}

func (c Candle) Key() CandleKey {
	return CandleKey{InstrumentKey: c.InstrumentKey, Timeframe: c.Timeframe}
}

// CandleKey — (инструмент, таймфрейм), по нему партиционируется всё состояние свечей и EMA.
type CandleKey struct {
	InstrumentKey string
	Timeframe     Timeframe
}

func (k CandleKey) String() string {
	return k.InstrumentKey + "::" + string(k.Timeframe)
}
