package service

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"signal_engine/internal/helper"
	"signal_engine/internal/models"
)

const (
	DefaultHistoryLimit = 500
	shardCount          = 32
)

type series struct {
	open    *models.Candle
	volBase float64 // накопленный объём на первом тике свечи
	history []models.Candle
}

type shard struct {
	mu     sync.Mutex
	series map[models.CandleKey]*series
}

// Aggregator собирает тики в свечи по ключу (инструмент, таймфрейм).
// Ключи разнесены по шардам; внутри шарда обновление high/low и
// перекат периода идут под одним мьютексом.
type Aggregator struct {
	limit  int
	shards [shardCount]shard
}

func NewAggregator(limit int) *Aggregator {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	a := &Aggregator{limit: limit}
	for i := range a.shards {
		a.shards[i].series = make(map[models.CandleKey]*series)
	}
	return a
}

func (a *Aggregator) shardFor(key models.CandleKey) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.InstrumentKey))
	_, _ = h.Write([]byte(key.Timeframe))
	return &a.shards[h.Sum32()%shardCount]
}

// Add учитывает тик. Возвращает закрытую свечу, если тик открыл новый период.
// Тик из периода раньше открытой свечи отбрасывается.
func (a *Aggregator) Add(key models.CandleKey, t models.Tick) (models.Candle, bool) {
	d := key.Timeframe.Duration()
	if d <= 0 || t.Price <= 0 {
		return models.Candle{}, false
	}
	start := helper.PeriodStart(t.Timestamp, d)

	sh := a.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.series[key]
	if !ok {
		s = &series{}
		sh.series[key] = s
	}
	if s.open == nil {
		// после Flush или Seed период мог быть уже закрыт
		if n := len(s.history); n > 0 && !start.After(s.history[n-1].PeriodStart) {
			return models.Candle{}, false
		}
		s.openCandle(key, start, t)
		return models.Candle{}, false
	}

	switch {
	case start.Equal(s.open.PeriodStart):
		c := s.open
		if t.Price > c.High {
			c.High = t.Price
		}
		if t.Price < c.Low {
			c.Low = t.Price
		}
		c.Close = t.Price
		c.Volume = volumeDelta(s.volBase, t.Volume)
		return models.Candle{}, false
	case start.Before(s.open.PeriodStart):
		return models.Candle{}, false
	}

	closed := *s.open
	s.push(closed, a.limit)
	s.openCandle(key, start, t)
	return closed, true
}

func (s *series) openCandle(key models.CandleKey, start time.Time, t models.Tick) {
	s.open = &models.Candle{
		InstrumentKey: key.InstrumentKey,
		Timeframe:     key.Timeframe,
		Open:          t.Price,
		High:          t.Price,
		Low:           t.Price,
		Close:         t.Price,
		PeriodStart:   start,
	}
	s.volBase = t.Volume
}

func (s *series) push(c models.Candle, limit int) {
	s.history = append(s.history, c)
	if len(s.history) > limit {
		// сдвигаем, чтобы не держать старый массив
		n := copy(s.history, s.history[len(s.history)-limit:])
		s.history = s.history[:n]
	}
}

// объём в фидах накопительный за день
func volumeDelta(base, cur float64) float64 {
	if cur < base {
		return 0
	}
	return cur - base
}

// Seed кладёт историю из хранилища. Свечи не новее открытой игнорируются.
func (a *Aggregator) Seed(key models.CandleKey, candles []models.Candle) {
	sorted := append([]models.Candle(nil), candles...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PeriodStart.Before(sorted[j].PeriodStart) })

	sh := a.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.series[key]
	if !ok {
		s = &series{}
		sh.series[key] = s
	}
	s.history = s.history[:0]
	for _, c := range sorted {
		if s.open != nil && !c.PeriodStart.Before(s.open.PeriodStart) {
			break
		}
		c.InstrumentKey = key.InstrumentKey
		c.Timeframe = key.Timeframe
		s.push(c, a.limit)
	}
}

func (a *Aggregator) History(key models.CandleKey) []models.Candle {
	sh := a.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.series[key]
	if !ok {
		return nil
	}
	return append([]models.Candle(nil), s.history...)
}

func (a *Aggregator) Closes(key models.CandleKey) []float64 {
	sh := a.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.series[key]
	if !ok {
		return nil
	}
	out := make([]float64, len(s.history))
	for i, c := range s.history {
		out[i] = c.Close
	}
	return out
}

func (a *Aggregator) Open(key models.CandleKey) (models.Candle, bool) {
	sh := a.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.series[key]
	if !ok || s.open == nil {
		return models.Candle{}, false
	}
	return *s.open, true
}

// Flush закрывает свечи, чей период истёк к now, а нового тика так и не было.
func (a *Aggregator) Flush(now time.Time) []models.Candle {
	var out []models.Candle
	for i := range a.shards {
		sh := &a.shards[i]
		sh.mu.Lock()
		for _, s := range sh.series {
			if s.open == nil || now.Before(s.open.PeriodEnd()) {
				continue
			}
			out = append(out, *s.open)
			s.push(*s.open, a.limit)
			s.open = nil
		}
		sh.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PeriodStart.Equal(out[j].PeriodStart) {
			return out[i].PeriodStart.Before(out[j].PeriodStart)
		}
		return out[i].Key().String() < out[j].Key().String()
	})
	return out
}
