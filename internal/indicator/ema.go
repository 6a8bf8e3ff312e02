package indicator

import (
	"errors"
	"math"
)

var ErrInvalidPeriod = errors.New("indicator: period must be positive")

// EMA считает всю серию. Первые period-1 значений не определены (NaN),
// значение с индексом period-1 — простое среднее первых period закрытий.
func EMA(closes []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(closes) < period {
		return out, nil
	}

	var sum float64
	for _, c := range closes[:period] {
		sum += c
	}
	prev := sum / float64(period)
	out[period-1] = prev
	for i := period; i < len(closes); i++ {
		prev = NextEMA(closes[i], prev, period)
		out[i] = prev
	}
	return out, nil
}

// NextEMA — один шаг без пересчёта истории.
func NextEMA(close, prev float64, period int) float64 {
	k := 2.0 / (float64(period) + 1)
	return (close-prev)*k + prev
}

// Last возвращает последнее значение серии, ok=false если оно не определено.
func Last(series []float64) (float64, bool) {
	if len(series) == 0 {
		return 0, false
	}
	v := series[len(series)-1]
	return v, !math.IsNaN(v)
}

// EMAState — инкрементальная EMA с затравкой через SMA.
type EMAState struct {
	period int
	value  float64
	count  int
	sum    float64
}

func NewEMAState(period int) (*EMAState, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	return &EMAState{period: period}, nil
}

func (e *EMAState) Update(close float64) (float64, bool) {
	e.count++
	switch {
	case e.count < e.period:
		e.sum += close
	case e.count == e.period:
		e.sum += close
		e.value = e.sum / float64(e.period)
	default:
		e.value = NextEMA(close, e.value, e.period)
	}
	return e.Value()
}

// Seed сбрасывает состояние и прогоняет историю пакетным EMA.
func (e *EMAState) Seed(closes []float64) {
	e.count = len(closes)
	e.sum = 0
	e.value = 0
	if len(closes) < e.period {
		for _, c := range closes {
			e.sum += c
		}
		return
	}
	series, _ := EMA(closes, e.period)
	e.value = series[len(series)-1]
}

func (e *EMAState) Value() (float64, bool) {
	if !e.Ready() {
		return 0, false
	}
	return e.value, true
}

func (e *EMAState) Ready() bool { return e.count >= e.period }
func (e *EMAState) Period() int { return e.period }
func (e *EMAState) Count() int  { return e.count }
