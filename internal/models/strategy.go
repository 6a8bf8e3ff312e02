package models

type StrategyKind string

const (
	StrategyBuiltin StrategyKind = "builtin"
	StrategyFormula StrategyKind = "formula"
)

// Strategy — условие входа. Во время одного прохода оценки не меняется,
// SignalCount увеличивает оркестратор.
type Strategy struct {
	ID        int64
	Name      string
	Timeframe Timeframe
	Enabled   bool

	Kind    StrategyKind
	Builtin string // имя встроенного предиката
	Formula string // текст пользовательской формулы
	Side    SignalType

	SignalCount int64
}

// SignalType как у раннера: "BUY"/"SELL".
type SignalType string

const (
	SignalNone SignalType = ""
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
)
