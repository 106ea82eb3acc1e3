package formula

import (
	"context"
	"fmt"
	"math"
)

// Resolver supplies values for references during evaluation. A nil value
// with a nil error means the reference has no data yet; the whole
// evaluation then yields nil rather than failing.
type Resolver interface {
	Resolve(ctx context.Context, ref Ref) (*float64, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, ref Ref) (*float64, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, ref Ref) (*float64, error) {
	return f(ctx, ref)
}

// Evaluate walks the AST binding references through the resolver.
// The result is nil when any dependency is unresolved or the arithmetic
// is undefined (division by zero, NaN, Inf). Errors are reserved for
// resolver failures, not missing data.
func Evaluate(ctx context.Context, node Node, resolver Resolver) (*float64, error) {
	switch n := node.(type) {
	case *Literal:
		v := n.Value
		return &v, nil

	case *Var:
		return resolver.Resolve(ctx, n.Ref)

	case *Binary:
		left, err := Evaluate(ctx, n.Left, resolver)
		if err != nil {
			return nil, err
		}
		if left == nil {
			return nil, nil
		}
		right, err := Evaluate(ctx, n.Right, resolver)
		if err != nil {
			return nil, err
		}
		if right == nil {
			return nil, nil
		}
		return applyBinary(n.Op, *left, *right), nil

	case *Call:
		args := make([]float64, 0, len(n.Args))
		for _, argNode := range n.Args {
			arg, err := Evaluate(ctx, argNode, resolver)
			if err != nil {
				return nil, err
			}
			if arg == nil {
				return nil, nil
			}
			args = append(args, *arg)
		}
		return applyCall(n.Name, args), nil
	}

	return nil, fmt.Errorf("unknown node type %T", node)
}

func applyBinary(op string, a, b float64) *float64 {
	var v float64
	switch op {
	case "+":
		v = a + b
	case "-":
		v = a - b
	case "*":
		v = a * b
	case "/":
		if b == 0 {
			return nil
		}
		v = a / b
	case "%":
		if b == 0 {
			return nil
		}
		v = math.Mod(a, b)
	default:
		return nil
	}
	return finite(v)
}

func applyCall(name string, args []float64) *float64 {
	var v float64
	switch name {
	case "abs":
		v = math.Abs(args[0])
	case "max":
		v = math.Max(args[0], args[1])
	case "min":
		v = math.Min(args[0], args[1])
	default:
		return nil
	}
	return finite(v)
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
