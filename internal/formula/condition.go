package formula

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Epsilon is the tolerance used for float equality in conditions and for
// the monitor value-change check.
const Epsilon = 1e-10

// Condition is a comparison between two formula expressions.
type Condition struct {
	Left  Node
	Op    string
	Right Node
	Refs  []Ref
}

var comparisonOps = []string{">=", "<=", "==", "!=", ">", "<"}

// ParseCondition splits a condition on its top-level comparison operator
// and parses both sides as formulas.
func ParseCondition(input string) (*Condition, error) {
	opIdx, op := findComparison(input)
	if opIdx < 0 {
		return nil, fmt.Errorf("condition %q has no comparison operator", input)
	}

	leftStr := strings.TrimSpace(input[:opIdx])
	rightStr := strings.TrimSpace(input[opIdx+len(op):])

	left, leftRefs, err := Parse(leftStr)
	if err != nil {
		return nil, fmt.Errorf("invalid left side: %w", err)
	}
	right, rightRefs, err := Parse(rightStr)
	if err != nil {
		return nil, fmt.Errorf("invalid right side: %w", err)
	}

	refs := leftRefs
	seen := make(map[Ref]bool, len(refs))
	for _, r := range refs {
		seen[r] = true
	}
	for _, r := range rightRefs {
		if !seen[r] {
			seen[r] = true
			refs = append(refs, r)
		}
	}

	return &Condition{Left: left, Op: op, Right: right, Refs: refs}, nil
}

// findComparison locates the first comparison operator outside parentheses
// and reference bodies. Two-character operators are matched first so ">="
// is not read as ">".
func findComparison(input string) (int, string) {
	depth := 0
	for i := 0; i < len(input); i++ {
		switch {
		case input[i] == '(':
			depth++
		case input[i] == ')':
			depth--
		case input[i] == '$' && i+1 < len(input) && input[i+1] == '{':
			end := strings.IndexByte(input[i:], '}')
			if end < 0 {
				return -1, ""
			}
			i += end
		case depth == 0:
			for _, op := range comparisonOps {
				if strings.HasPrefix(input[i:], op) {
					return i, op
				}
			}
		}
	}
	return -1, ""
}

// EvaluateCondition evaluates both sides and compares. A nil result means
// at least one dependency was unresolved; callers skip silently.
func EvaluateCondition(ctx context.Context, cond *Condition, resolver Resolver) (*bool, error) {
	left, err := Evaluate(ctx, cond.Left, resolver)
	if err != nil {
		return nil, err
	}
	if left == nil {
		return nil, nil
	}
	right, err := Evaluate(ctx, cond.Right, resolver)
	if err != nil {
		return nil, err
	}
	if right == nil {
		return nil, nil
	}

	result, err := Compare(*left, cond.Op, *right)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Compare applies one comparison operator. Equality operators use Epsilon.
func Compare(left float64, op string, right float64) (bool, error) {
	switch op {
	case ">":
		return left > right, nil
	case ">=":
		return left >= right, nil
	case "<":
		return left < right, nil
	case "<=":
		return left <= right, nil
	case "==":
		return math.Abs(left-right) < Epsilon, nil
	case "!=":
		return math.Abs(left-right) >= Epsilon, nil
	}
	return false, fmt.Errorf("unknown comparison operator %q", op)
}
