package formula

import (
	"fmt"
	"strconv"
	"strings"
)

type Node interface {
	String() string
}

type NumberNode struct{ Value float64 }

type VarNode struct{ Name string }

type UnaryNode struct {
	Op string
	X  Node
}

type BinaryNode struct {
	Op   string
	L, R Node
}

type CallNode struct {
	Fn   string
	Args []Node
}

func (n *NumberNode) String() string { return strconv.FormatFloat(n.Value, 'g', -1, 64) }
func (n *VarNode) String() string    { return n.Name }
func (n *UnaryNode) String() string  { return "(" + n.Op + n.X.String() + ")" }
func (n *BinaryNode) String() string {
	return fmt.Sprintf("(%s %s %s)", n.L.String(), n.Op, n.R.String())
}
func (n *CallNode) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	return n.Fn + "(" + strings.Join(args, ", ") + ")"
}
