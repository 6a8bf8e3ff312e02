package service

import (
	"math"
	"sort"

	"signal_engine/internal/models"
)

// touchTolerance — абсолютный допуск "касания" EMA в единицах цены.
// Для инструментов в тысячах он фактически означает точное равенство.
const touchTolerance = 0.01

// Inputs — данные закрытой свечи и EMA на её закрытии.
type Inputs struct {
	Price  float64
	Open   float64
	High   float64
	Low    float64
	Volume float64
	EMA50  float64
	EMA200 float64
}

type Predicate func(in Inputs) bool

type Builtin struct {
	Name  string
	Side  models.SignalType
	Match Predicate
}

// touchedFromAbove: лоу свечи дошёл до EMA, а закрылись на ней или выше.
func touchedFromAbove(in Inputs, ema float64) bool {
	return (in.Low <= ema && in.Price >= ema) || math.Abs(in.Price-ema) < touchTolerance
}

var builtins = map[string]Builtin{
	"bullish_above_50": {
		Side: models.SignalBuy,
		Match: func(in Inputs) bool {
			return in.Price > in.EMA50 && in.EMA50 > in.EMA200
		},
	},
	"bearish_below_50": {
		Side: models.SignalSell,
		Match: func(in Inputs) bool {
			return in.Price < in.EMA50 && in.EMA50 < in.EMA200
		},
	},
	// цена над обеими EMA, но EMA50 ещё под EMA200: ранний разворот вверх
	"golden_trend": {
		Side: models.SignalBuy,
		Match: func(in Inputs) bool {
			return in.Price > in.EMA200 && in.Price > in.EMA50 && in.EMA50 <= in.EMA200
		},
	},
	"ema50_pullback": {
		Side: models.SignalBuy,
		Match: func(in Inputs) bool {
			return in.EMA50 > in.EMA200 && touchedFromAbove(in, in.EMA50)
		},
	},
	"ema200_touch": {
		Side: models.SignalBuy,
		Match: func(in Inputs) bool {
			return in.EMA50 > in.EMA200 && touchedFromAbove(in, in.EMA200) && in.Price >= in.Open
		},
	},
	// открылись над EMA200, закрылись под ней дальше допуска касания
	"breakdown_below_200": {
		Side: models.SignalSell,
		Match: func(in Inputs) bool {
			return in.Open >= in.EMA200 && in.Price < in.EMA200 && math.Abs(in.Price-in.EMA200) >= touchTolerance
		},
	},
}

func init() {
	for name, b := range builtins {
		b.Name = name
		builtins[name] = b
	}
}

func LookupBuiltin(name string) (Builtin, bool) {
	b, ok := builtins[name]
	return b, ok
}

func BuiltinNames() []string {
	out := make([]string, 0, len(builtins))
	for name := range builtins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
