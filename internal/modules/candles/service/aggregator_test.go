package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_engine/internal/models"
)

var (
	key5m = models.CandleKey{InstrumentKey: "738561", Timeframe: models.TF5m}
	t0    = time.Date(2024, 5, 6, 9, 15, 0, 0, time.UTC)
)

func tick(at time.Duration, price float64) models.Tick {
	return models.Tick{InstrumentKey: key5m.InstrumentKey, Price: price, Timestamp: t0.Add(at)}
}

func TestTwoBoundariesYieldTwoCandles(t *testing.T) {
	a := NewAggregator(10)
	ticks := []models.Tick{
		tick(10*time.Second, 100),
		tick(1*time.Minute, 103),
		tick(2*time.Minute, 98),
		tick(4*time.Minute+59*time.Second, 101),
		// граница 1
		tick(5*time.Minute, 110),
		tick(6*time.Minute, 108),
		tick(9*time.Minute, 115),
		// граница 2
		tick(10*time.Minute+time.Second, 120),
	}

	var closed []models.Candle
	for _, tk := range ticks {
		if c, ok := a.Add(key5m, tk); ok {
			closed = append(closed, c)
		}
	}
	require.Len(t, closed, 2)

	first := closed[0]
	assert.Equal(t, t0, first.PeriodStart)
	assert.Equal(t, 100.0, first.Open)
	assert.Equal(t, 103.0, first.High)
	assert.Equal(t, 98.0, first.Low)
	assert.Equal(t, 101.0, first.Close)

	second := closed[1]
	assert.Equal(t, t0.Add(5*time.Minute), second.PeriodStart)
	assert.Equal(t, 110.0, second.Open)
	assert.Equal(t, 115.0, second.High)
	assert.Equal(t, 108.0, second.Low)
	assert.Equal(t, 115.0, second.Close)

	open, ok := a.Open(key5m)
	require.True(t, ok)
	assert.Equal(t, 120.0, open.Open)
	assert.Len(t, a.History(key5m), 2)
}

func TestLateTickDropped(t *testing.T) {
	a := NewAggregator(10)
	a.Add(key5m, tick(5*time.Minute, 100))
	_, ok := a.Add(key5m, tick(time.Minute, 50))
	assert.False(t, ok)

	open, _ := a.Open(key5m)
	assert.Equal(t, 100.0, open.Low)
}

func TestHistoryBounded(t *testing.T) {
	a := NewAggregator(3)
	for i := 0; i < 6; i++ {
		a.Add(key5m, tick(time.Duration(i)*5*time.Minute, float64(100+i)))
	}
	h := a.History(key5m)
	require.Len(t, h, 3)
	assert.Equal(t, 102.0, h[0].Close)
	assert.Equal(t, 104.0, h[2].Close)
	assert.Equal(t, []float64{102, 103, 104}, a.Closes(key5m))
}

func TestVolumeIsDeltaOfCumulative(t *testing.T) {
	a := NewAggregator(10)
	tk := tick(0, 100)
	tk.Volume = 1000
	a.Add(key5m, tk)
	tk = tick(time.Minute, 101)
	tk.Volume = 1250
	a.Add(key5m, tk)
	c, ok := a.Add(key5m, tick(5*time.Minute, 102))
	require.True(t, ok)
	assert.Equal(t, 250.0, c.Volume)
}

func TestSeedAndFlush(t *testing.T) {
	a := NewAggregator(10)
	seed := []models.Candle{
		{PeriodStart: t0.Add(-5 * time.Minute), Close: 2},
		{PeriodStart: t0.Add(-10 * time.Minute), Close: 1},
	}
	a.Seed(key5m, seed)
	assert.Equal(t, []float64{1, 2}, a.Closes(key5m))

	// тик из уже засеянного периода не открывает свечу
	_, ok := a.Add(key5m, tick(-3*time.Minute, 5))
	assert.False(t, ok)
	_, ok = a.Open(key5m)
	assert.False(t, ok)

	a.Add(key5m, tick(time.Minute, 3))
	assert.Empty(t, a.Flush(t0.Add(4*time.Minute)))

	flushed := a.Flush(t0.Add(5 * time.Minute))
	require.Len(t, flushed, 1)
	assert.Equal(t, 3.0, flushed[0].Close)
	assert.Equal(t, []float64{1, 2, 3}, a.Closes(key5m))

	// опоздавший тик того же периода после Flush не переоткрывает его
	_, ok = a.Add(key5m, tick(4*time.Minute, 9))
	assert.False(t, ok)
	_, ok = a.Open(key5m)
	assert.False(t, ok)
}

func TestConcurrentWritersOneKey(t *testing.T) {
	a := NewAggregator(100)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				a.Add(key5m, tick(time.Duration(i%60)*time.Second, float64(100+w)))
			}
		}(w)
	}
	wg.Wait()

	open, ok := a.Open(key5m)
	require.True(t, ok)
	assert.Equal(t, 107.0, open.High)
	assert.Equal(t, 100.0, open.Low)
	assert.Empty(t, a.History(key5m))
}
