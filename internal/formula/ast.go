// Package formula implements parsing and evaluation of monitor formulas.
//
// A formula is an arithmetic expression over numeric literals and
// ${kind:id} references, e.g. "(${funding:lighter-BTC} - ${monitor:base}) * 100".
// Parsing produces an AST; evaluation binds references through a Resolver.
// No host-language evaluation is involved anywhere.
package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// RefKind identifies the namespace a reference resolves against.
type RefKind string

const (
	KindMonitor RefKind = "monitor"
	KindWebhook RefKind = "webhook"
	KindFunding RefKind = "funding"
	KindSpot    RefKind = "spot"
)

// Ref is a single ${kind:id} dependency.
type Ref struct {
	Kind RefKind
	ID   string
}

// String renders the reference in formula syntax.
func (r Ref) String() string {
	return fmt.Sprintf("${%s:%s}", r.Kind, r.ID)
}

// Node is an AST node. The evaluator is a pure switch over these four shapes.
type Node interface {
	emit(sb *strings.Builder)
}

// Literal is a numeric constant.
type Literal struct {
	Value float64
}

// Var is a reference placeholder bound at evaluation time.
type Var struct {
	Ref Ref
}

// Binary is an infix arithmetic operation: + - * / %.
type Binary struct {
	Op    string
	Left  Node
	Right Node
}

// Call is a whitelisted function application: abs, max, min.
type Call struct {
	Name string
	Args []Node
}

func (n *Literal) emit(sb *strings.Builder) {
	sb.WriteString(strconv.FormatFloat(n.Value, 'f', -1, 64))
}

func (n *Var) emit(sb *strings.Builder) {
	sb.WriteString(n.Ref.String())
}

func (n *Binary) emit(sb *strings.Builder) {
	sb.WriteString("(")
	n.Left.emit(sb)
	sb.WriteString(" " + n.Op + " ")
	n.Right.emit(sb)
	sb.WriteString(")")
}

func (n *Call) emit(sb *strings.Builder) {
	sb.WriteString(n.Name)
	sb.WriteString("(")
	for i, arg := range n.Args {
		if i > 0 {
			sb.WriteString(", ")
		}
		arg.emit(sb)
	}
	sb.WriteString(")")
}

// Emit renders a node back into formula syntax. Parse(Emit(n)) yields an
// equivalent AST with the same dependency set.
func Emit(n Node) string {
	var sb strings.Builder
	n.emit(&sb)
	return sb.String()
}
