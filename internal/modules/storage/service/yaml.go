package service

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"signal_engine/internal/models"
)

type yamlSeed struct {
	Strategies  []yamlStrategy   `yaml:"strategies"`
	Instruments []yamlInstrument `yaml:"instruments"`
	Credentials []yamlCreds      `yaml:"credentials"`
}

type yamlStrategy struct {
	ID        int64  `yaml:"id"`
	Name      string `yaml:"name"`
	Timeframe string `yaml:"timeframe"`
	Enabled   bool   `yaml:"enabled"`
	Kind      string `yaml:"kind"`
	Builtin   string `yaml:"builtin"`
	Formula   string `yaml:"formula"`
	Side      string `yaml:"side"`
}

type yamlInstrument struct {
	ID       int64  `yaml:"id"`
	Symbol   string `yaml:"symbol"`
	Exchange string `yaml:"exchange"`
	Broker   string `yaml:"broker"`
	Key      string `yaml:"key"`
	Enabled  bool   `yaml:"enabled"`
}

type yamlCreds struct {
	Broker      string `yaml:"broker"`
	APIKey      string `yaml:"api_key"`
	AccessToken string `yaml:"access_token"`
	ClientCode  string `yaml:"client_code"`
	FeedToken   string `yaml:"feed_token"`
}

// YAMLStore читает стратегии, инструменты и креды из файла. Сигналы и свечи
// живут только в памяти процесса.
type YAMLStore struct {
	mu          sync.RWMutex
	strategies  []models.Strategy
	instruments []models.Instrument
	creds       []models.BrokerCredentials

	historyLimit int
	signals      []models.Signal
	candles      map[models.CandleKey][]models.Candle
}

const yamlSignalsKept = 1000

func OpenYAML(path string, historyLimit int) (*YAMLStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read seed file")
	}
	return parseYAML(raw, historyLimit)
}

func parseYAML(raw []byte, historyLimit int) (*YAMLStore, error) {
	var seed yamlSeed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, errors.Wrap(err, "decode seed file")
	}

	s := &YAMLStore{
		historyLimit: historyLimit,
		candles:      make(map[models.CandleKey][]models.Candle),
	}
	for i, ys := range seed.Strategies {
		id := ys.ID
		if id == 0 {
			id = int64(i + 1)
		}
		st, err := strategyRow{
			ID:        id,
			Name:      ys.Name,
			Timeframe: ys.Timeframe,
			Enabled:   ys.Enabled,
			Kind:      ys.Kind,
			Builtin:   ys.Builtin,
			Formula:   ys.Formula,
		}.toModel()
		if err != nil {
			return nil, errors.Wrapf(err, "seed strategy %q", ys.Name)
		}
		st.Side = models.SignalType(strings.ToUpper(ys.Side))
		s.strategies = append(s.strategies, st)
	}
	for i, yi := range seed.Instruments {
		id := yi.ID
		if id == 0 {
			id = int64(i + 1)
		}
		if yi.Key == "" || yi.Broker == "" {
			return nil, errors.Errorf("seed instrument %q: broker and key are required", yi.Symbol)
		}
		s.instruments = append(s.instruments, models.Instrument{
			ID:              id,
			Symbol:          yi.Symbol,
			Exchange:        yi.Exchange,
			Broker:          models.BrokerName(yi.Broker),
			SubscriptionKey: yi.Key,
			Enabled:         yi.Enabled,
		})
	}
	for _, yc := range seed.Credentials {
		s.creds = append(s.creds, models.BrokerCredentials{
			Broker:      models.BrokerName(yc.Broker),
			APIKey:      yc.APIKey,
			AccessToken: yc.AccessToken,
			ClientCode:  yc.ClientCode,
			FeedToken:   yc.FeedToken,
		})
	}
	return s, nil
}

func (s *YAMLStore) EnabledStrategies(context.Context) ([]models.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Strategy
	for _, st := range s.strategies {
		if st.Enabled {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *YAMLStore) EnabledInstruments(context.Context) ([]models.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Instrument
	for _, in := range s.instruments {
		if in.Enabled {
			out = append(out, in)
		}
	}
	return out, nil
}

func (s *YAMLStore) Credentials(context.Context) ([]models.BrokerCredentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.BrokerCredentials(nil), s.creds...), nil
}

func (s *YAMLStore) SaveSignal(_ context.Context, sig models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, sig)
	if len(s.signals) > yamlSignalsKept {
		s.signals = s.signals[len(s.signals)-yamlSignalsKept:]
	}
	return nil
}

func (s *YAMLStore) IncrementSignalCount(_ context.Context, strategyID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.strategies {
		if s.strategies[i].ID == strategyID {
			s.strategies[i].SignalCount++
			return nil
		}
	}
	return errors.Errorf("strategy %d not found", strategyID)
}

func (s *YAMLStore) SaveCandle(_ context.Context, c models.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := c.Key()
	hist := s.candles[key]
	i := sort.Search(len(hist), func(i int) bool { return !hist[i].PeriodStart.Before(c.PeriodStart) })
	switch {
	case i < len(hist) && hist[i].PeriodStart.Equal(c.PeriodStart):
		hist[i] = c
	default:
		hist = append(hist, models.Candle{})
		copy(hist[i+1:], hist[i:])
		hist[i] = c
	}
	if s.historyLimit > 0 && len(hist) > s.historyLimit {
		hist = hist[len(hist)-s.historyLimit:]
	}
	s.candles[key] = hist
	return nil
}

func (s *YAMLStore) RecentCandles(_ context.Context, key models.CandleKey, limit int) ([]models.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hist := s.candles[key]
	if limit > 0 && len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	return append([]models.Candle(nil), hist...), nil
}

func (s *YAMLStore) Signals() []models.Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Signal(nil), s.signals...)
}

func (s *YAMLStore) Close() error { return nil }

// All — весь сид, включая выключенные записи; нужен импорту в базу.
func (s *YAMLStore) All() ([]models.Strategy, []models.Instrument, []models.BrokerCredentials) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Strategy(nil), s.strategies...),
		append([]models.Instrument(nil), s.instruments...),
		append([]models.BrokerCredentials(nil), s.creds...)
}
