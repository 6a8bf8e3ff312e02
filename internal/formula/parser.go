package formula

import "fmt"

// приоритеты бинарных операторов, больше — сильнее связывает
var precedence = map[string]int{
	"||": 1,
	"&&": 2,
	"==": 3, "!=": 3,
	"<": 4, "<=": 4, ">": 4, ">=": 4,
	"+": 5, "-": 5,
	"*": 6, "/": 6, "%": 6,
}

type parser struct {
	toks []Token
	pos  int
}

// Parse строит AST. Бинарные операторы левоассоциативны.
func Parse(src string) (Node, error) {
	toks, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	if p.peek().Kind == TokEOF {
		return nil, fmt.Errorf("%w: empty expression", ErrSyntax)
	}
	n, err := p.expr(1)
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.Kind != TokEOF {
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, t.Text, t.Pos)
	}
	return n, nil
}

func (p *parser) peek() Token { return p.toks[p.pos] }

func (p *parser) next() Token {
	t := p.toks[p.pos]
	if t.Kind != TokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expr(minPrec int) (Node, error) {
	lhs, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.Kind != TokOp {
			return lhs, nil
		}
		prec, ok := precedence[t.Text]
		if !ok || prec < minPrec {
			return lhs, nil
		}
		p.next()
		rhs, err := p.expr(prec + 1)
		if err != nil {
			return nil, err
		}
		lhs = &BinaryNode{Op: t.Text, L: lhs, R: rhs}
	}
}

func (p *parser) unary() (Node, error) {
	t := p.peek()
	if t.Kind == TokOp && (t.Text == "!" || t.Text == "-" || t.Text == "+") {
		p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		if t.Text == "+" {
			return x, nil
		}
		return &UnaryNode{Op: t.Text, X: x}, nil
	}
	return p.primary()
}

func (p *parser) primary() (Node, error) {
	t := p.next()
	switch t.Kind {
	case TokNumber:
		return &NumberNode{Value: t.Num}, nil
	case TokVar:
		return &VarNode{Name: t.Text}, nil
	case TokFunc:
		return p.call(t)
	case TokLParen:
		n, err := p.expr(1)
		if err != nil {
			return nil, err
		}
		if c := p.next(); c.Kind != TokRParen {
			return nil, fmt.Errorf("%w: expected ')' at %d", ErrSyntax, c.Pos)
		}
		return n, nil
	case TokEOF:
		return nil, fmt.Errorf("%w: unexpected end of expression", ErrSyntax)
	default:
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, t.Text, t.Pos)
	}
}

func (p *parser) call(fn Token) (Node, error) {
	if t := p.next(); t.Kind != TokLParen {
		return nil, fmt.Errorf("%w: expected '(' after %s at %d", ErrSyntax, fn.Text, t.Pos)
	}
	var args []Node
	if p.peek().Kind == TokRParen {
		p.next()
	} else {
		for {
			a, err := p.expr(1)
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			t := p.next()
			if t.Kind == TokRParen {
				break
			}
			if t.Kind != TokComma {
				return nil, fmt.Errorf("%w: expected ',' or ')' at %d", ErrSyntax, t.Pos)
			}
		}
	}
	sig := functions[fn.Text]
	if len(args) < sig.minArgs || (sig.maxArgs >= 0 && len(args) > sig.maxArgs) {
		return nil, fmt.Errorf("%w: %s got %d", ErrArity, fn.Text, len(args))
	}
	return &CallNode{Fn: fn.Text, Args: args}, nil
}
