package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closesFixture(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 10*math.Sin(float64(i)/7) + float64(i)*0.3
	}
	return out
}

func TestEMAInvalidPeriod(t *testing.T) {
	_, err := EMA([]float64{1, 2, 3}, 0)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
	_, err = NewEMAState(-1)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
	_, err = NewTracker(50, 0)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestEMASeedIsSimpleMean(t *testing.T) {
	closes := []float64{2, 4, 6, 8, 10}
	out, err := EMA(closes, 3)
	require.NoError(t, err)

	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 4.0, out[2], 1e-12)
	assert.InDelta(t, 6.0, out[3], 1e-12) // (8-4)*0.5+4
	assert.InDelta(t, 8.0, out[4], 1e-12)
}

func TestEMAShorterThanPeriod(t *testing.T) {
	out, err := EMA([]float64{1, 2}, 5)
	require.NoError(t, err)
	require.Len(t, out, 2)
	_, ok := Last(out)
	assert.False(t, ok)
}

func TestBatchAndIncrementalAgree(t *testing.T) {
	closes := closesFixture(600)
	for _, period := range []int{1, 9, 50, 200} {
		batch, err := EMA(closes, period)
		require.NoError(t, err)

		st, err := NewEMAState(period)
		require.NoError(t, err)
		for i, c := range closes {
			v, ok := st.Update(c)
			if i < period-1 {
				assert.False(t, ok)
				continue
			}
			require.True(t, ok)
			assert.InDelta(t, batch[i], v, 1e-4, "period %d index %d", period, i)
		}
	}
}

func TestSeedThenStepMatchesBatch(t *testing.T) {
	closes := closesFixture(300)
	st, _ := NewEMAState(50)
	st.Seed(closes[:250])
	for _, c := range closes[250:] {
		st.Update(c)
	}
	batch, _ := EMA(closes, 50)
	v, ok := st.Value()
	require.True(t, ok)
	assert.InDelta(t, batch[len(batch)-1], v, 1e-9)

	short, _ := NewEMAState(50)
	short.Seed(closes[:10])
	assert.False(t, short.Ready())
	for _, c := range closes[10:50] {
		short.Update(c)
	}
	v, ok = short.Value()
	require.True(t, ok)
	assert.InDelta(t, batch[49], v, 1e-9)
}

func TestTrackerReadyOnlyWithBothPeriods(t *testing.T) {
	tr, err := NewTracker(DefaultFastPeriod, DefaultSlowPeriod)
	require.NoError(t, err)

	closes := closesFixture(199)
	vals := tr.Update("k", time.Unix(199*60, 0), closes[198], closes)
	assert.False(t, vals.Ready)
	assert.NotZero(t, vals.Fast)

	closes = closesFixture(200)
	vals = tr.Update("k", time.Unix(200*60, 0), closes[199], closes)
	assert.True(t, vals.Ready)

	fast, _ := EMA(closes, 50)
	slow, _ := EMA(closes, 200)
	assert.InDelta(t, fast[199], vals.Fast, 1e-4)
	assert.InDelta(t, slow[199], vals.Slow, 1e-4)
}

func TestTrackerReplayIsIdempotent(t *testing.T) {
	tr, _ := NewTracker(3, 5)
	closes := []float64{1, 2, 3, 4, 5, 6}
	start := time.Unix(0, 0)

	tr.Seed("k", closes[:5], start.Add(4*time.Minute))
	first := tr.Update("k", start.Add(5*time.Minute), closes[5], closes)
	again := tr.Update("k", start.Add(5*time.Minute), closes[5], closes)
	assert.Equal(t, first, again)
	require.True(t, first.Ready)

	fast, _ := EMA(closes, 3)
	assert.InDelta(t, fast[5], first.Fast, 1e-12)
}
