package formula

import (
	"strings"

	lru "github.com/hashicorp/golang-lru"
)

const DefaultCacheSize = 256

// Program — проверенная и разобранная формула, безопасна для конкурентного чтения.
type Program struct {
	Source string
	Root   Node
}

func Compile(src string) (*Program, error) {
	if err := Validate(src); err != nil {
		return nil, err
	}
	root, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return &Program{Source: src, Root: root}, nil
}

func (p *Program) Eval(vars Vars) (float64, error) {
	return Eval(p.Root, vars)
}

func (p *Program) Match(vars Vars) (bool, error) {
	v, err := p.Eval(vars)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// Compiler кэширует разобранные формулы по тексту.
type Compiler struct {
	cache *lru.Cache
}

func NewCompiler(size int) (*Compiler, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Compiler{cache: c}, nil
}

func (c *Compiler) Compile(src string) (*Program, error) {
	key := strings.TrimSpace(src)
	if v, ok := c.cache.Get(key); ok {
		return v.(*Program), nil
	}
	p, err := Compile(key)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, p)
	return p, nil
}

func (c *Compiler) Len() int { return c.cache.Len() }
