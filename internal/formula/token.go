// Package formula — безопасный язык пользовательских условий:
// токенайзер, парсер с приоритетами операторов и вычислитель AST.
// Словарь закрыт: ничего кроме перечисленных переменных и функций не исполняется.
package formula

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrSyntax            = errors.New("formula: syntax error")
	ErrUnknownIdentifier = errors.New("formula: unknown identifier")
	ErrUnknownFunction   = errors.New("formula: unknown function")
	ErrArity             = errors.New("formula: wrong number of arguments")
	ErrUndefinedVariable = errors.New("formula: variable has no value")
	ErrDivisionByZero    = errors.New("formula: division by zero")
	ErrNonFinite         = errors.New("formula: result is not a finite number")
	ErrForbidden         = errors.New("formula: forbidden construct")
	ErrTooLong           = errors.New("formula: expression too long")
)

type TokenKind int

const (
	TokEOF TokenKind = iota
	TokNumber
	TokVar
	TokFunc
	TokOp
	TokLParen
	TokRParen
	TokComma
)

type Token struct {
	Kind TokenKind
	Text string
	Num  float64
	Pos  int
}

// Переменные контекста оценки.
const (
	VarPrice  = "price"
	VarOpen   = "open"
	VarHigh   = "high"
	VarLow    = "low"
	VarEMA50  = "ema50"
	VarEMA200 = "ema200"
	VarVolume = "volume"
)

var variables = map[string]string{
	VarPrice:  VarPrice,
	VarOpen:   VarOpen,
	VarHigh:   VarHigh,
	VarLow:    VarLow,
	VarEMA50:  VarEMA50,
	VarEMA200: VarEMA200,
	VarVolume: VarVolume,

	"close":   VarPrice,
	"ltp":     VarPrice,
	"last":    VarPrice,
	"ema_50":  VarEMA50,
	"ema_200": VarEMA200,
	"vol":     VarVolume,
}

var wordOps = map[string]string{
	"and": "&&",
	"or":  "||",
	"not": "!",
}

var twoCharOps = []string{"&&", "||", "==", "!=", "<=", ">="}

const singleCharOps = "+-*/%<>!"

// Tokenize разбирает текст, имена приводятся к нижнему регистру и каноническим алиасам.
func Tokenize(src string) ([]Token, error) {
	var out []Token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			start := i
			for i < len(src) && (isDigit(src[i]) || src[i] == '.') {
				i++
			}
			v, err := strconv.ParseFloat(src[start:i], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad number %q at %d", ErrSyntax, src[start:i], start)
			}
			out = append(out, Token{Kind: TokNumber, Text: src[start:i], Num: v, Pos: start})
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			tok, err := identToken(strings.ToLower(src[start:i]), start, nextIsParen(src[i:]))
			if err != nil {
				return nil, err
			}
			out = append(out, tok)
		case c == '(':
			out = append(out, Token{Kind: TokLParen, Text: "(", Pos: i})
			i++
		case c == ')':
			out = append(out, Token{Kind: TokRParen, Text: ")", Pos: i})
			i++
		case c == ',':
			out = append(out, Token{Kind: TokComma, Text: ",", Pos: i})
			i++
		default:
			op, ok := matchOp(src[i:])
			if !ok {
				return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, c, i)
			}
			out = append(out, Token{Kind: TokOp, Text: op, Pos: i})
			i += len(op)
		}
	}
	out = append(out, Token{Kind: TokEOF, Pos: len(src)})
	return out, nil
}

func nextIsParen(rest string) bool {
	rest = strings.TrimLeft(rest, " \t\r\n")
	return rest != "" && rest[0] == '('
}

func identToken(name string, pos int, call bool) (Token, error) {
	if op, ok := wordOps[name]; ok {
		return Token{Kind: TokOp, Text: op, Pos: pos}, nil
	}
	if _, ok := functions[name]; ok {
		return Token{Kind: TokFunc, Text: name, Pos: pos}, nil
	}
	if canon, ok := variables[name]; ok {
		return Token{Kind: TokVar, Text: canon, Pos: pos}, nil
	}
	if call {
		return Token{}, fmt.Errorf("%w: %q at %d", ErrUnknownFunction, name, pos)
	}
	return Token{}, fmt.Errorf("%w: %q at %d", ErrUnknownIdentifier, name, pos)
}

func matchOp(s string) (string, bool) {
	for _, op := range twoCharOps {
		if strings.HasPrefix(s, op) {
			return op, true
		}
	}
	if strings.IndexByte(singleCharOps, s[0]) >= 0 {
		return s[:1], true
	}
	return "", false
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentPart(c byte) bool  { return isIdentStart(c) || isDigit(c) }
