package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"signal_engine/internal/indicator"
	"signal_engine/internal/models"
	candles "signal_engine/internal/modules/candles/service"
	strategy "signal_engine/internal/modules/strategy/service"
)

var t0 = time.Date(2024, 5, 6, 9, 15, 0, 0, time.UTC)

type fakeSource struct {
	strategies  []models.Strategy
	instruments []models.Instrument
	err         error
}

func (f *fakeSource) EnabledStrategies(context.Context) ([]models.Strategy, error) {
	return f.strategies, f.err
}

func (f *fakeSource) EnabledInstruments(context.Context) ([]models.Instrument, error) {
	return f.instruments, f.err
}

var infy = models.Instrument{ID: 7, Symbol: "INFY", Exchange: "NSE", Broker: models.BrokerZerodha, SubscriptionKey: "408065", Enabled: true}

func builtin(id int64, name, rule string) models.Strategy {
	return models.Strategy{ID: id, Name: name, Timeframe: models.TF1m, Enabled: true, Kind: models.StrategyBuiltin, Builtin: rule}
}

func formulaStrategy(id int64, name, src string) models.Strategy {
	return models.Strategy{ID: id, Name: name, Timeframe: models.TF1m, Enabled: true, Kind: models.StrategyFormula, Formula: src}
}

type fixture struct {
	hub     *Hub
	agg     *candles.Aggregator
	catalog *Catalog
	key     models.CandleKey
}

func newFixture(t *testing.T, strategies ...models.Strategy) *fixture {
	t.Helper()
	log := zap.NewNop()
	engine, err := strategy.NewEngine(log, 16)
	require.NoError(t, err)
	tracker, err := indicator.NewTracker(indicator.DefaultFastPeriod, indicator.DefaultSlowPeriod)
	require.NoError(t, err)

	catalog := NewCatalog(&fakeSource{strategies: strategies, instruments: []models.Instrument{infy}}, engine, log)
	require.NoError(t, catalog.Reload(context.Background()))

	agg := candles.NewAggregator(candles.DefaultHistoryLimit)
	return &fixture{
		hub:     NewHub(agg, tracker, engine, catalog, 16, log),
		agg:     agg,
		catalog: catalog,
		key:     models.CandleKey{InstrumentKey: infy.SubscriptionKey, Timeframe: models.TF1m},
	}
}

// seed кладёт n закрытых минутных свечей с close = 100 + 0.5*i.
func (f *fixture) seed(n int) []float64 {
	closes := make([]float64, n)
	hist := make([]models.Candle, n)
	for i := 0; i < n; i++ {
		c := 100 + 0.5*float64(i)
		closes[i] = c
		hist[i] = models.Candle{Open: c, High: c, Low: c, Close: c, PeriodStart: t0.Add(time.Duration(i) * time.Minute)}
	}
	f.agg.Seed(f.key, hist)
	return closes
}

func tick(price float64, ts time.Time) models.Tick {
	return models.Tick{Broker: models.BrokerZerodha, InstrumentKey: infy.SubscriptionKey, Price: price, Timestamp: ts}
}

func TestHubEmitsSignalOnCandleClose(t *testing.T) {
	f := newFixture(t,
		builtin(1, "bull", "bullish_above_50"),
		builtin(2, "bear", "bearish_below_50"),
		formulaStrategy(3, "broken", "price / (ema50 - ema50) > 1"),
		formulaStrategy(4, "rejected", "eval(price)"),
	)
	closes := f.seed(249)
	ctx := context.Background()

	last := 100 + 0.5*249
	assert.Empty(t, f.hub.OnTick(ctx, tick(last, t0.Add(249*time.Minute+10*time.Second))))
	sigs := f.hub.OnTick(ctx, tick(last+1, t0.Add(250*time.Minute)))

	require.Len(t, sigs, 1)
	sig := sigs[0]
	assert.Equal(t, int64(1), sig.StrategyID)
	assert.Equal(t, models.SignalBuy, sig.Type)
	assert.Equal(t, infy.ID, sig.InstrumentID)
	assert.Equal(t, models.TF1m, sig.Timeframe)
	assert.Equal(t, last, sig.Price)
	assert.Equal(t, t0.Add(249*time.Minute), sig.CandleStart)
	assert.NotEmpty(t, sig.ID)

	all := append(closes, last)
	fast, _ := indicator.EMA(all, 50)
	slow, _ := indicator.EMA(all, 200)
	wantFast, _ := indicator.Last(fast)
	wantSlow, _ := indicator.Last(slow)
	assert.InDelta(t, wantFast, sig.EMA50, 1e-4)
	assert.InDelta(t, wantSlow, sig.EMA200, 1e-4)

	select {
	case env := <-f.hub.Signals():
		assert.Equal(t, sig.ID, env.Signal.ID)
		assert.Equal(t, "INFY", env.Instrument.Symbol)
		assert.Equal(t, "bull", env.Strategy.Name)
	default:
		t.Fatal("signal not queued")
	}
	select {
	case c := <-f.hub.Candles():
		assert.Equal(t, last, c.Close)
	default:
		t.Fatal("candle not queued")
	}

	// отклонённая формула не попала в каталог
	assert.Len(t, f.catalog.Strategies(), 3)
}

func TestHubNoSignalWithoutSlowEMA(t *testing.T) {
	f := newFixture(t, builtin(1, "bull", "bullish_above_50"))
	f.seed(150)
	ctx := context.Background()

	f.hub.OnTick(ctx, tick(200, t0.Add(150*time.Minute)))
	assert.Empty(t, f.hub.OnTick(ctx, tick(201, t0.Add(151*time.Minute))))
	assert.Len(t, f.hub.Candles(), 1)
	assert.Empty(t, f.hub.Signals())
}

func TestHubReplayedCandleSameDecision(t *testing.T) {
	f := newFixture(t, builtin(1, "bull", "bullish_above_50"), formulaStrategy(2, "above200", "close > EMA_200"))
	f.seed(300)
	ctx := context.Background()

	f.hub.OnTick(ctx, tick(260, t0.Add(300*time.Minute)))
	first := f.hub.OnTick(ctx, tick(261, t0.Add(301*time.Minute)))
	require.Len(t, first, 2)

	closed := f.agg.History(f.key)
	c := closed[len(closed)-1]
	again := f.hub.OnCandleClose(ctx, infy, c)
	require.Len(t, again, 2)
	for i := range first {
		assert.Equal(t, first[i].StrategyID, again[i].StrategyID)
		assert.Equal(t, first[i].Type, again[i].Type)
		assert.Equal(t, first[i].EMA50, again[i].EMA50)
		assert.Equal(t, first[i].EMA200, again[i].EMA200)
	}
}

func TestHubIgnoresUnknownInstrument(t *testing.T) {
	f := newFixture(t, builtin(1, "bull", "bullish_above_50"))
	tk := tick(100, t0)
	tk.InstrumentKey = "999"
	assert.Nil(t, f.hub.OnTick(context.Background(), tk))
	_, ok := f.agg.Open(models.CandleKey{InstrumentKey: "999", Timeframe: models.TF1m})
	assert.False(t, ok)
}

func TestHubFlushClosesIdleCandle(t *testing.T) {
	f := newFixture(t, builtin(1, "bull", "bullish_above_50"))
	f.seed(249)
	ctx := context.Background()

	f.hub.OnTick(ctx, tick(224.5, t0.Add(249*time.Minute)))
	assert.Empty(t, f.hub.Flush(ctx, t0.Add(249*time.Minute+30*time.Second)))
	sigs := f.hub.Flush(ctx, t0.Add(250*time.Minute))
	require.Len(t, sigs, 1)
	assert.Equal(t, int64(1), sigs[0].StrategyID)
}

func TestCatalogReloadError(t *testing.T) {
	engine, err := strategy.NewEngine(zap.NewNop(), 4)
	require.NoError(t, err)
	c := NewCatalog(&fakeSource{err: errors.New("db down")}, engine, zap.NewNop())
	assert.Error(t, c.Reload(context.Background()))
	assert.Empty(t, c.Strategies())
}

func TestCatalogTimeframesSorted(t *testing.T) {
	s1 := builtin(1, "a", "bullish_above_50")
	s1.Timeframe = models.TF1h
	s2 := builtin(2, "b", "bullish_above_50")
	s2.Timeframe = models.TF5m
	s3 := builtin(3, "c", "bearish_below_50")
	s3.Timeframe = models.TF5m
	f := newFixture(t, s1, s2, s3)
	assert.Equal(t, []models.Timeframe{models.TF5m, models.TF1h}, f.catalog.Timeframes())
}

type recordingSink struct {
	name string
	err  error
	mu   sync.Mutex
	got  []string
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Handle(_ context.Context, env models.SignalEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, env.Signal.ID)
	return s.err
}

func (s *recordingSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}

type recordingRecorder struct {
	mu  sync.Mutex
	got []models.Candle
}

func (r *recordingRecorder) RecordCandle(_ context.Context, c models.Candle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, c)
	return nil
}

func (r *recordingRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func TestRouterIsolatesSinkFailures(t *testing.T) {
	failing := &recordingSink{name: "kafka", err: errors.New("broker unavailable")}
	ok := &recordingSink{name: "telegram"}
	rec := &recordingRecorder{}
	r := NewRouter([]Sink{failing, ok}, rec, zap.NewNop())

	signals := make(chan models.SignalEnvelope, 4)
	closed := make(chan models.Candle, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, signals, closed)
		close(done)
	}()

	signals <- models.SignalEnvelope{Signal: models.Signal{ID: "s1"}}
	signals <- models.SignalEnvelope{Signal: models.Signal{ID: "s2"}}
	closed <- models.Candle{InstrumentKey: "408065", Timeframe: models.TF1m}

	require.Eventually(t, func() bool { return len(ok.ids()) == 2 && rec.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"s1", "s2"}, failing.ids())

	cancel()
	<-done
}
