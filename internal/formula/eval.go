package formula

import (
	"fmt"
	"math"
)

// Vars — значения переменных на момент оценки. Отсутствующий ключ = не определена.
type Vars map[string]float64

type function struct {
	minArgs int
	maxArgs int // -1 без ограничения
	call    func(args []float64) float64
}

var functions = map[string]function{
	"abs":   {1, 1, func(a []float64) float64 { return math.Abs(a[0]) }},
	"sqrt":  {1, 1, func(a []float64) float64 { return math.Sqrt(a[0]) }},
	"floor": {1, 1, func(a []float64) float64 { return math.Floor(a[0]) }},
	"ceil":  {1, 1, func(a []float64) float64 { return math.Ceil(a[0]) }},
	"pow":   {2, 2, func(a []float64) float64 { return math.Pow(a[0], a[1]) }},
	"round": {1, 2, roundN},
	"min": {1, -1, func(a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Min(m, v)
		}
		return m
	}},
	"max": {1, -1, func(a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Max(m, v)
		}
		return m
	}},
}

// round(x) или round(x, digits)
func roundN(a []float64) float64 {
	if len(a) == 1 {
		return math.Round(a[0])
	}
	p := math.Pow(10, math.Trunc(a[1]))
	return math.Round(a[0]*p) / p
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Eval вычисляет узел. Логические значения — 1/0, истинно всё, что != 0.
func Eval(n Node, vars Vars) (float64, error) {
	switch n := n.(type) {
	case *NumberNode:
		return n.Value, nil
	case *VarNode:
		v, ok := vars[n.Name]
		if !ok || math.IsNaN(v) {
			return 0, fmt.Errorf("%w: %s", ErrUndefinedVariable, n.Name)
		}
		return v, nil
	case *UnaryNode:
		x, err := Eval(n.X, vars)
		if err != nil {
			return 0, err
		}
		if n.Op == "!" {
			return b2f(x == 0), nil
		}
		return -x, nil
	case *BinaryNode:
		return evalBinary(n, vars)
	case *CallNode:
		fn, ok := functions[n.Fn]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownFunction, n.Fn)
		}
		if len(n.Args) < fn.minArgs || (fn.maxArgs >= 0 && len(n.Args) > fn.maxArgs) {
			return 0, fmt.Errorf("%w: %s got %d", ErrArity, n.Fn, len(n.Args))
		}
		args := make([]float64, len(n.Args))
		for i, a := range n.Args {
			v, err := Eval(a, vars)
			if err != nil {
				return 0, err
			}
			args[i] = v
		}
		return finite(fn.call(args), n.Fn)
	default:
		return 0, fmt.Errorf("%w: unsupported node %T", ErrSyntax, n)
	}
}

func evalBinary(n *BinaryNode, vars Vars) (float64, error) {
	l, err := Eval(n.L, vars)
	if err != nil {
		return 0, err
	}
	// короткое замыкание
	switch n.Op {
	case "&&":
		if l == 0 {
			return 0, nil
		}
		r, err := Eval(n.R, vars)
		if err != nil {
			return 0, err
		}
		return b2f(r != 0), nil
	case "||":
		if l != 0 {
			return 1, nil
		}
		r, err := Eval(n.R, vars)
		if err != nil {
			return 0, err
		}
		return b2f(r != 0), nil
	}

	r, err := Eval(n.R, vars)
	if err != nil {
		return 0, err
	}
	switch n.Op {
	case "+":
		return finite(l+r, n.Op)
	case "-":
		return finite(l-r, n.Op)
	case "*":
		return finite(l*r, n.Op)
	case "/":
		if r == 0 {
			return 0, ErrDivisionByZero
		}
		return finite(l/r, n.Op)
	case "%":
		if r == 0 {
			return 0, ErrDivisionByZero
		}
		return finite(math.Mod(l, r), n.Op)
	case "<":
		return b2f(l < r), nil
	case "<=":
		return b2f(l <= r), nil
	case ">":
		return b2f(l > r), nil
	case ">=":
		return b2f(l >= r), nil
	case "==":
		return b2f(l == r), nil
	case "!=":
		return b2f(l != r), nil
	default:
		return 0, fmt.Errorf("%w: unknown operator %q", ErrSyntax, n.Op)
	}
}

func finite(v float64, op string) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s", ErrNonFinite, op)
	}
	return v, nil
}
