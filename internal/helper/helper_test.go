package helper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormTF(t *testing.T) {
	assert.Equal(t, "5m", NormTF("Candle5M"))
	assert.Equal(t, "1h", NormTF("60m"))
	assert.Equal(t, "15m", NormTF(" 15 "))
	assert.Equal(t, "1d", NormTF("day"))
}

func TestPeriodStart(t *testing.T) {
	ts := time.Date(2024, 3, 4, 9, 17, 42, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC), PeriodStart(ts, 5*time.Minute))
	assert.Equal(t, time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC), PeriodStart(ts, time.Hour))

	exact := time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC)
	assert.Equal(t, exact, PeriodStart(exact, 5*time.Minute))
}

func TestSplitKey(t *testing.T) {
	p, r, ok := SplitKey("1|2885")
	assert.True(t, ok)
	assert.Equal(t, "1", p)
	assert.Equal(t, "2885", r)

	_, _, ok = SplitKey("2885")
	assert.False(t, ok)
}
