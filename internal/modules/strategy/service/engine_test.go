package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"signal_engine/internal/models"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(zap.NewNop(), 16)
	require.NoError(t, err)
	return e
}

func candleCtx(price, open, high, low, ema50, ema200 float64) CandleContext {
	return CandleContext{
		Candle: models.Candle{
			InstrumentKey: "738561", Timeframe: models.TF5m,
			Open: open, High: high, Low: low, Close: price,
			PeriodStart: time.Date(2024, 5, 6, 9, 15, 0, 0, time.UTC),
		},
		EMA50:  ema50,
		EMA200: ema200,
	}
}

func TestBuiltins(t *testing.T) {
	cases := []struct {
		name string
		in   Inputs
		want bool
	}{
		{"bullish_above_50", Inputs{Price: 105, EMA50: 100, EMA200: 95}, true},
		{"bullish_above_50", Inputs{Price: 99, EMA50: 100, EMA200: 95}, false},
		{"bearish_below_50", Inputs{Price: 90, EMA50: 95, EMA200: 100}, true},
		{"bearish_below_50", Inputs{Price: 90, EMA50: 101, EMA200: 100}, false},
		{"golden_trend", Inputs{Price: 110, EMA50: 98, EMA200: 100}, true},
		{"golden_trend", Inputs{Price: 110, EMA50: 105, EMA200: 100}, false},
		{"ema50_pullback", Inputs{Price: 101, Low: 99.5, EMA50: 100, EMA200: 90}, true},
		{"ema50_pullback", Inputs{Price: 100.005, Low: 100.001, EMA50: 100, EMA200: 90}, true},
		{"ema50_pullback", Inputs{Price: 101, Low: 100.5, EMA50: 100, EMA200: 90}, false},
		{"ema200_touch", Inputs{Price: 91, Open: 90.5, Low: 89, EMA50: 100, EMA200: 90}, true},
		{"ema200_touch", Inputs{Price: 91, Open: 92, Low: 89, EMA50: 100, EMA200: 90}, false},
		{"breakdown_below_200", Inputs{Price: 98, Open: 101, EMA50: 99, EMA200: 100}, true},
		{"breakdown_below_200", Inputs{Price: 99.995, Open: 101, EMA50: 99, EMA200: 100}, false},
		{"breakdown_below_200", Inputs{Price: 98, Open: 99, EMA50: 99, EMA200: 100}, false},
	}
	for _, c := range cases {
		b, ok := LookupBuiltin(c.name)
		require.True(t, ok, c.name)
		assert.Equal(t, c.want, b.Match(c.in), "%s %+v", c.name, c.in)
	}
	assert.Len(t, BuiltinNames(), 6)
}

func TestEvaluateFiltersAndIsolatesErrors(t *testing.T) {
	e := newTestEngine(t)
	strategies := []models.Strategy{
		{ID: 1, Name: "broken", Enabled: true, Timeframe: models.TF5m, Kind: models.StrategyFormula, Formula: "price / 0 > 1"},
		{ID: 2, Name: "trend", Enabled: true, Timeframe: models.TF5m, Kind: models.StrategyBuiltin, Builtin: "bullish_above_50"},
		{ID: 3, Name: "other tf", Enabled: true, Timeframe: models.TF15m, Kind: models.StrategyBuiltin, Builtin: "bullish_above_50"},
		{ID: 4, Name: "disabled", Enabled: false, Timeframe: models.TF5m, Kind: models.StrategyBuiltin, Builtin: "bullish_above_50"},
		{ID: 5, Name: "short", Enabled: true, Timeframe: models.TF5m, Kind: models.StrategyFormula,
			Formula: "close > EMA_50 and ema50 > ema200", Side: models.SignalSell},
		{ID: 6, Name: "unknown builtin", Enabled: true, Timeframe: models.TF5m, Kind: models.StrategyBuiltin, Builtin: "nope"},
	}

	got := e.Evaluate(context.Background(), candleCtx(105, 101, 106, 100, 100, 95), strategies)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].Strategy.ID)
	assert.Equal(t, models.SignalBuy, got[0].Type)
	assert.Equal(t, int64(5), got[1].Strategy.ID)
	assert.Equal(t, models.SignalSell, got[1].Type)
}

func TestValidate(t *testing.T) {
	e := newTestEngine(t)
	assert.NoError(t, e.Validate(models.Strategy{Name: "a", Kind: models.StrategyBuiltin, Builtin: "golden_trend", Timeframe: models.TF1h}))
	assert.Error(t, e.Validate(models.Strategy{Name: "b", Kind: models.StrategyBuiltin, Builtin: "nope", Timeframe: models.TF1h}))
	assert.Error(t, e.Validate(models.Strategy{Name: "c", Kind: models.StrategyFormula, Formula: "eval(1)", Timeframe: models.TF1h}))
	assert.Error(t, e.Validate(models.Strategy{Name: "d", Kind: models.StrategyFormula, Formula: "price > 1", Timeframe: "7m"}))
	assert.NoError(t, e.ValidateFormula("abs(price - ema200) < ema200 * 0.01"))
}
