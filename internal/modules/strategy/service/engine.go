package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"signal_engine/internal/formula"
	"signal_engine/internal/metrics"
	"signal_engine/internal/models"
)

// CandleContext — то, против чего оцениваются стратегии на закрытии свечи.
type CandleContext struct {
	Candle models.Candle
	EMA50  float64
	EMA200 float64
}

func (c CandleContext) inputs() Inputs {
	return Inputs{
		Price:  c.Candle.Close,
		Open:   c.Candle.Open,
		High:   c.Candle.High,
		Low:    c.Candle.Low,
		Volume: c.Candle.Volume,
		EMA50:  c.EMA50,
		EMA200: c.EMA200,
	}
}

func (c CandleContext) vars() formula.Vars {
	return formula.Vars{
		formula.VarPrice:  c.Candle.Close,
		formula.VarOpen:   c.Candle.Open,
		formula.VarHigh:   c.Candle.High,
		formula.VarLow:    c.Candle.Low,
		formula.VarVolume: c.Candle.Volume,
		formula.VarEMA50:  c.EMA50,
		formula.VarEMA200: c.EMA200,
	}
}

type Match struct {
	Strategy models.Strategy
	Type     models.SignalType
}

type Engine struct {
	log      *zap.Logger
	compiler *formula.Compiler
}

func NewEngine(log *zap.Logger, cacheSize int) (*Engine, error) {
	c, err := formula.NewCompiler(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("strategy.NewEngine: %w", err)
	}
	return &Engine{log: log, compiler: c}, nil
}

// Validate — проверка стратегии при сохранении или загрузке.
func (e *Engine) Validate(s models.Strategy) error {
	switch s.Kind {
	case models.StrategyBuiltin:
		if _, ok := LookupBuiltin(s.Builtin); !ok {
			return fmt.Errorf("strategy %q: unknown builtin %q", s.Name, s.Builtin)
		}
	case models.StrategyFormula:
		if _, err := e.compiler.Compile(s.Formula); err != nil {
			return fmt.Errorf("strategy %q: %w", s.Name, err)
		}
	default:
		return fmt.Errorf("strategy %q: unknown kind %q", s.Name, s.Kind)
	}
	if s.Timeframe.Duration() == 0 {
		return fmt.Errorf("strategy %q: unsupported timeframe %q", s.Name, s.Timeframe)
	}
	return nil
}

// ValidateFormula — для слоя CRUD: отсекает формулу до сохранения.
func (e *Engine) ValidateFormula(src string) error {
	_, err := e.compiler.Compile(src)
	return err
}

// Evaluate оценивает включённые стратегии нужного таймфрейма. Ошибка одной
// стратегии логируется и не мешает остальным.
func (e *Engine) Evaluate(ctx context.Context, c CandleContext, strategies []models.Strategy) []Match {
	var out []Match
	for _, s := range strategies {
		if ctx.Err() != nil {
			return out
		}
		if !s.Enabled || s.Timeframe != c.Candle.Timeframe {
			continue
		}
		side, ok, err := e.evalOne(s, c)
		if err != nil {
			metrics.StrategyErrors.WithLabelValues(s.Name).Inc()
			e.log.Warn("strategy evaluation failed",
				zap.Int64("strategy_id", s.ID),
				zap.String("strategy", s.Name),
				zap.String("instrument", c.Candle.InstrumentKey),
				zap.Error(err),
			)
			continue
		}
		if ok {
			out = append(out, Match{Strategy: s, Type: side})
		}
	}
	return out
}

func (e *Engine) evalOne(s models.Strategy, c CandleContext) (models.SignalType, bool, error) {
	switch s.Kind {
	case models.StrategyBuiltin:
		b, ok := LookupBuiltin(s.Builtin)
		if !ok {
			return "", false, fmt.Errorf("unknown builtin %q", s.Builtin)
		}
		side := b.Side
		if s.Side != models.SignalNone {
			side = s.Side
		}
		return side, b.Match(c.inputs()), nil
	case models.StrategyFormula:
		p, err := e.compiler.Compile(s.Formula)
		if err != nil {
			return "", false, err
		}
		hit, err := p.Match(c.vars())
		if err != nil {
			return "", false, err
		}
		side := s.Side
		if side == models.SignalNone {
			side = models.SignalBuy
		}
		return side, hit, nil
	default:
		return "", false, fmt.Errorf("unknown kind %q", s.Kind)
	}
}
