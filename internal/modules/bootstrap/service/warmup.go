package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"signal_engine/internal/indicator"
	"signal_engine/internal/models"
	candles "signal_engine/internal/modules/candles/service"
)

type CandleSource interface {
	RecentCandles(ctx context.Context, key models.CandleKey, limit int) ([]models.Candle, error)
}

// Warmuper поднимает историю свечей из хранилища после рестарта, чтобы
// EMA200 была определена с первой же живой свечи.
type Warmuper struct {
	src     CandleSource
	agg     *candles.Aggregator
	tracker *indicator.Tracker
	limit   int
	log     *zap.Logger

	// ограничитель параллелизма, чтобы не положить хранилище
	sem chan struct{}
}

func NewWarmuper(src CandleSource, agg *candles.Aggregator, tracker *indicator.Tracker, limit, concurrency int, log *zap.Logger) *Warmuper {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Warmuper{
		src:     src,
		agg:     agg,
		tracker: tracker,
		limit:   limit,
		log:     log,
		sem:     make(chan struct{}, concurrency),
	}
}

type Result struct {
	Keys    int
	Candles int64
	Ready   int64 // ключей с определёнными обеими EMA
}

// Warmup сеет агрегатор и трекер. Ошибка по одному ключу не мешает
// остальным; возвращается первая.
func (w *Warmuper) Warmup(ctx context.Context, keys []models.CandleKey) (Result, error) {
	res := Result{Keys: len(keys)}
	if len(keys) == 0 {
		return res, nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		cnt      atomic.Int64
		ready    atomic.Int64
	)

	for _, key := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case w.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-w.sem }()

			hist, err := w.src.RecentCandles(ctx, key, w.limit)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("warmup %s: %w", key, err)
				}
				mu.Unlock()
				return
			}
			if len(hist) == 0 {
				return
			}
			w.agg.Seed(key, hist)
			closes := w.agg.Closes(key)
			seeded := w.agg.History(key)
			if len(seeded) == 0 {
				return
			}
			vals := w.tracker.Seed(key.String(), closes, seeded[len(seeded)-1].PeriodStart)
			w.log.Debug("seeded", zap.String("key", key.String()), zap.Int("candles", len(seeded)), zap.Bool("ready", vals.Ready))
			cnt.Add(int64(len(seeded)))
			if vals.Ready {
				ready.Add(1)
			}
		}()
	}
	wg.Wait()

	res.Candles = cnt.Load()
	res.Ready = ready.Load()
	if firstErr == nil && ctx.Err() != nil {
		firstErr = ctx.Err()
	}
	return res, firstErr
}
