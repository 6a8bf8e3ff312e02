package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"signal_engine/internal/models"
)

// Source: откуда каталог берёт стратегии и инструменты.
type Source interface {
	EnabledStrategies(ctx context.Context) ([]models.Strategy, error)
	EnabledInstruments(ctx context.Context) ([]models.Instrument, error)
}

type Validator interface {
	Validate(s models.Strategy) error
}

// Catalog: снимок включённых стратегий и инструментов. Обновляется
// целиком через Reload; читатели получают копии.
type Catalog struct {
	src       Source
	validator Validator
	log       *zap.Logger

	mu          sync.RWMutex
	strategies  []models.Strategy
	instruments map[string]models.Instrument
	timeframes  []models.Timeframe
}

func NewCatalog(src Source, validator Validator, log *zap.Logger) *Catalog {
	return &Catalog{
		src:         src,
		validator:   validator,
		log:         log,
		instruments: map[string]models.Instrument{},
	}
}

// Reload перечитывает хранилище. Стратегии, не прошедшие проверку,
// пропускаются; ошибка только если хранилище недоступно.
func (c *Catalog) Reload(ctx context.Context) error {
	strategies, err := c.src.EnabledStrategies(ctx)
	if err != nil {
		return fmt.Errorf("catalog.Reload strategies: %w", err)
	}
	instruments, err := c.src.EnabledInstruments(ctx)
	if err != nil {
		return fmt.Errorf("catalog.Reload instruments: %w", err)
	}

	valid := make([]models.Strategy, 0, len(strategies))
	seen := map[models.Timeframe]bool{}
	var tfs []models.Timeframe
	for _, s := range strategies {
		if !s.Enabled {
			continue
		}
		if err := c.validator.Validate(s); err != nil {
			c.log.Warn("strategy skipped", zap.Int64("id", s.ID), zap.String("name", s.Name), zap.Error(err))
			continue
		}
		valid = append(valid, s)
		if !seen[s.Timeframe] {
			seen[s.Timeframe] = true
			tfs = append(tfs, s.Timeframe)
		}
	}
	sort.Slice(tfs, func(i, j int) bool { return tfs[i].Duration() < tfs[j].Duration() })

	byKey := make(map[string]models.Instrument, len(instruments))
	for _, in := range instruments {
		if in.Enabled && in.SubscriptionKey != "" {
			byKey[in.SubscriptionKey] = in
		}
	}

	c.mu.Lock()
	c.strategies = valid
	c.instruments = byKey
	c.timeframes = tfs
	c.mu.Unlock()

	c.log.Info("catalog reloaded",
		zap.Int("strategies", len(valid)),
		zap.Int("instruments", len(byKey)),
		zap.Int("timeframes", len(tfs)))
	return nil
}

func (c *Catalog) Strategies() []models.Strategy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Strategy(nil), c.strategies...)
}

func (c *Catalog) Timeframes() []models.Timeframe {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Timeframe(nil), c.timeframes...)
}

func (c *Catalog) Instrument(key string) (models.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	in, ok := c.instruments[key]
	return in, ok
}

func (c *Catalog) Instruments() []models.Instrument {
	c.mu.RLock()
	out := make([]models.Instrument, 0, len(c.instruments))
	for _, in := range c.instruments {
		out = append(out, in)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SubscriptionKey < out[j].SubscriptionKey })
	return out
}
