package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_engine/internal/models"
)

const seedFile = `
strategies:
  - name: bullish 5m
    timeframe: Candle5M
    enabled: true
    kind: builtin
    builtin: bullish_above_50
  - name: breakdown
    timeframe: 15m
    enabled: true
    kind: formula
    formula: "price < ema200 and open >= ema200"
    side: sell
  - name: disabled
    timeframe: 1h
    enabled: false
    kind: builtin
    builtin: golden_trend
instruments:
  - symbol: RELIANCE
    exchange: NSE
    broker: zerodha
    key: "738561"
    enabled: true
  - symbol: SBIN
    broker: angelone
    key: "1|3045"
    enabled: true
credentials:
  - broker: zerodha
    api_key: kite-key
    access_token: kite-token
`

func TestYAMLStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedFile), 0o600))

	s, err := OpenYAML(path, 2)
	require.NoError(t, err)

	st, err := s.EnabledStrategies(ctx)
	require.NoError(t, err)
	require.Len(t, st, 2)
	assert.Equal(t, models.TF5m, st[0].Timeframe)
	assert.Equal(t, int64(1), st[0].ID)
	assert.Equal(t, models.SignalSell, st[1].Side)

	ins, err := s.EnabledInstruments(ctx)
	require.NoError(t, err)
	require.Len(t, ins, 2)
	assert.Equal(t, "1|3045", ins[1].SubscriptionKey)

	creds, err := s.Credentials(ctx)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, models.BrokerZerodha, creds[0].Broker)

	require.NoError(t, s.IncrementSignalCount(ctx, 1))
	assert.Error(t, s.IncrementSignalCount(ctx, 99))

	key := models.CandleKey{InstrumentKey: "738561", Timeframe: models.TF5m}
	base := time.Date(2024, 5, 6, 9, 15, 0, 0, time.UTC)
	for _, i := range []int{2, 0, 1} {
		require.NoError(t, s.SaveCandle(ctx, models.Candle{
			InstrumentKey: key.InstrumentKey, Timeframe: key.Timeframe,
			PeriodStart: base.Add(time.Duration(i) * 5 * time.Minute), Close: float64(i),
		}))
	}
	got, err := s.RecentCandles(ctx, key, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].Close)
	assert.Equal(t, 2.0, got[1].Close)
}

func TestYAMLStoreRejectsBadSeed(t *testing.T) {
	_, err := parseYAML([]byte("strategies:\n  - name: x\n    timeframe: 7m\n    kind: builtin\n"), 10)
	assert.Error(t, err)

	_, err = parseYAML([]byte("instruments:\n  - symbol: x\n"), 10)
	assert.Error(t, err)
}
