package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"signal_engine/internal/models"
)

func price(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func arrow(t models.SignalType) string {
	if t == models.SignalSell {
		return "🔻"
	}
	return "🟢"
}

// formatSignal: текст уведомления (Markdown).
func formatSignal(env models.SignalEnvelope) string {
	s := env.Signal
	symbol := env.Instrument.Symbol
	if symbol == "" {
		symbol = s.InstrumentKey
	}
	return fmt.Sprintf(
		"%s *%s %s*\n\n"+
			"Стратегия: `%s`\n"+
			"Таймфрейм: `%s`\n"+
			"Цена: `%s`\n"+
			"EMA50: `%s`\n"+
			"EMA200: `%s`\n"+
			"Свеча: `%s`\n",
		arrow(s.Type), s.Type, symbol,
		s.StrategyName,
		s.Timeframe,
		price(s.Price),
		price(s.EMA50),
		price(s.EMA200),
		s.CandleStart.UTC().Format("2006-01-02 15:04"),
	)
}
