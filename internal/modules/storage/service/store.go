package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"signal_engine/internal/models"
)

// Store — внешнее хранилище: откуда движок берёт стратегии, инструменты
// и креды, и куда складывает сигналы и закрытые свечи.
type Store interface {
	EnabledStrategies(ctx context.Context) ([]models.Strategy, error)
	EnabledInstruments(ctx context.Context) ([]models.Instrument, error)
	Credentials(ctx context.Context) ([]models.BrokerCredentials, error)
	SaveSignal(ctx context.Context, s models.Signal) error
	IncrementSignalCount(ctx context.Context, strategyID int64) error
	SaveCandle(ctx context.Context, c models.Candle) error
	// RecentCandles — последние limit свечей по ключу, от старых к новым.
	RecentCandles(ctx context.Context, key models.CandleKey, limit int) ([]models.Candle, error)
	Close() error
}

// strategyParams хранится в колонке params (jsonb/text).
type strategyParams struct {
	Side string `json:"side,omitempty"`
}

type strategyRow struct {
	ID          int64
	Name        string
	Timeframe   string
	Enabled     bool
	Kind        string
	Builtin     string
	Formula     string
	Params      []byte
	SignalCount int64
}

func (r strategyRow) toModel() (models.Strategy, error) {
	tf, err := models.ParseTimeframe(r.Timeframe)
	if err != nil {
		return models.Strategy{}, err
	}
	s := models.Strategy{
		ID:          r.ID,
		Name:        r.Name,
		Timeframe:   tf,
		Enabled:     r.Enabled,
		Kind:        models.StrategyKind(strings.ToLower(r.Kind)),
		Builtin:     r.Builtin,
		Formula:     r.Formula,
		SignalCount: r.SignalCount,
	}
	if len(r.Params) > 0 {
		var p strategyParams
		if err := sonic.Unmarshal(r.Params, &p); err != nil {
			return models.Strategy{}, fmt.Errorf("strategy %d params: %w", r.ID, err)
		}
		s.Side = models.SignalType(strings.ToUpper(p.Side))
	}
	switch s.Kind {
	case models.StrategyBuiltin, models.StrategyFormula:
	default:
		return models.Strategy{}, fmt.Errorf("strategy %d: unknown kind %q", r.ID, r.Kind)
	}
	return s, nil
}

func encodeParams(s models.Strategy) ([]byte, error) {
	return sonic.Marshal(strategyParams{Side: string(s.Side)})
}

// reverse переворачивает выборку "ORDER BY period_start DESC LIMIT n".
func reverse(cs []models.Candle) {
	for i, j := 0, len(cs)-1; i < j; i, j = i+1, j-1 {
		cs[i], cs[j] = cs[j], cs[i]
	}
}
