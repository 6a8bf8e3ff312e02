package indicator

import (
	"sync"
	"time"
)

const (
	DefaultFastPeriod = 50
	DefaultSlowPeriod = 200
)

// Values — EMA на момент закрытия свечи. Ready только когда определены обе.
type Values struct {
	Fast  float64
	Slow  float64
	Ready bool
}

type series struct {
	fast *EMAState
	slow *EMAState
	last time.Time
	vals Values
}

// Tracker держит пару EMA на каждый ключ (инструмент, таймфрейм).
// Повторное закрытие того же периода возвращает уже посчитанные значения.
type Tracker struct {
	mu         sync.Mutex
	fastPeriod int
	slowPeriod int
	byKey      map[string]*series
}

func NewTracker(fastPeriod, slowPeriod int) (*Tracker, error) {
	if fastPeriod <= 0 || slowPeriod <= 0 {
		return nil, ErrInvalidPeriod
	}
	return &Tracker{
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		byKey:      make(map[string]*series),
	}, nil
}

// Seed — холодный старт: пакетный расчёт по истории, last — начало последней свечи.
func (t *Tracker) Seed(key string, closes []float64, last time.Time) Values {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seedLocked(key, closes, last)
}

func (t *Tracker) seedLocked(key string, closes []float64, last time.Time) Values {
	fast, _ := NewEMAState(t.fastPeriod)
	slow, _ := NewEMAState(t.slowPeriod)
	fast.Seed(closes)
	slow.Seed(closes)
	s := &series{fast: fast, slow: slow, last: last}
	s.vals = snapshot(fast, slow)
	t.byKey[key] = s
	return s.vals
}

// Update учитывает закрытую свечу. history — закрытия по ключу, последняя
// равна close; нужна, если состояния ещё нет или период пришёл не по порядку.
func (t *Tracker) Update(key string, periodStart time.Time, close float64, history []float64) Values {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.byKey[key]
	switch {
	case !ok:
		if len(history) == 0 {
			history = []float64{close}
		}
		return t.seedLocked(key, history, periodStart)
	case periodStart.Equal(s.last):
		return s.vals
	case periodStart.Before(s.last):
		if len(history) == 0 {
			return s.vals
		}
		return t.seedLocked(key, history, periodStart)
	}

	s.fast.Update(close)
	s.slow.Update(close)
	s.last = periodStart
	s.vals = snapshot(s.fast, s.slow)
	return s.vals
}

func (t *Tracker) Get(key string) (Values, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byKey[key]
	if !ok {
		return Values{}, false
	}
	return s.vals, true
}

func snapshot(fast, slow *EMAState) Values {
	f, fok := fast.Value()
	s, sok := slow.Value()
	return Values{Fast: f, Slow: s, Ready: fok && sok}
}
