package service

import (
	"signal_engine/internal/models"
)

type catalog interface {
	Instruments() []models.Instrument
	Timeframes() []models.Timeframe
}

// Watchlist: ключи (инструмент, таймфрейм), которые нужно прогреть.
type Watchlist struct {
	catalog catalog
}

func NewWatchlist(c catalog) *Watchlist {
	return &Watchlist{catalog: c}
}

func (w *Watchlist) Keys() []models.CandleKey {
	tfs := w.catalog.Timeframes()
	instruments := w.catalog.Instruments()
	out := make([]models.CandleKey, 0, len(tfs)*len(instruments))
	for _, in := range instruments {
		for _, tf := range tfs {
			out = append(out, models.CandleKey{InstrumentKey: in.SubscriptionKey, Timeframe: tf})
		}
	}
	return out
}
