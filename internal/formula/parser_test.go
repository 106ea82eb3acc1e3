package formula

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapResolver resolves references from a fixed map; missing keys yield nil.
type mapResolver map[Ref]float64

func (m mapResolver) Resolve(_ context.Context, ref Ref) (*float64, error) {
	if v, ok := m[ref]; ok {
		return &v, nil
	}
	return nil, nil
}

func evalString(t *testing.T, input string, vars mapResolver) *float64 {
	t.Helper()
	node, _, err := Parse(input)
	require.NoError(t, err)
	result, err := Evaluate(context.Background(), node, vars)
	require.NoError(t, err)
	return result
}

func TestParse_Literals(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"12", 12},
		{"3.14", 3.14},
		{"-0.5", -0.5},
		{"0", 0},
	}

	for _, tt := range tests {
		result := evalString(t, tt.input, nil)
		require.NotNil(t, result, tt.input)
		assert.InDelta(t, tt.expected, *result, 1e-12, tt.input)
	}
}

func TestParse_Arithmetic(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 / 4", 2.5},
		{"10 % 3", 1},
		{"2 - -3", 5},
		{"abs(-4.5)", 4.5},
		{"max(1, 2)", 2},
		{"min(1, 2)", 1},
		{"max(abs(-3), 2) + 1", 4},
	}

	for _, tt := range tests {
		result := evalString(t, tt.input, nil)
		require.NotNil(t, result, tt.input)
		assert.InDelta(t, tt.expected, *result, 1e-12, tt.input)
	}
}

func TestParse_References(t *testing.T) {
	node, refs, err := Parse("${monitor:a} + ${webhook:pricing} * ${monitor:a}")
	require.NoError(t, err)
	require.NotNil(t, node)

	// Dependency set is deduplicated, first-occurrence order.
	require.Len(t, refs, 2)
	assert.Equal(t, Ref{Kind: KindMonitor, ID: "a"}, refs[0])
	assert.Equal(t, Ref{Kind: KindWebhook, ID: "pricing"}, refs[1])
}

func TestParse_Errors(t *testing.T) {
	inputs := []string{
		"",
		"1 +",
		"${bogus:x}",
		"${monitor:}",
		"${monitor-x}",
		"foo(1)",
		"abs(1, 2)",
		"max(1)",
		"(1 + 2",
		"1 2",
		"__import__",
	}

	for _, input := range inputs {
		_, _, err := Parse(input)
		assert.Error(t, err, "input %q should not parse", input)
	}
}

func TestEvaluate_UnresolvedDependencyYieldsNil(t *testing.T) {
	vars := mapResolver{{Kind: KindWebhook, ID: "a"}: 10}

	// "b" has no data: whole expression is nil, never zero.
	result := evalString(t, "${webhook:a} + ${webhook:b}", vars)
	assert.Nil(t, result)
}

func TestEvaluate_DivisionByZeroYieldsNil(t *testing.T) {
	assert.Nil(t, evalString(t, "1 / 0", nil))
	assert.Nil(t, evalString(t, "1 % 0", nil))
}

func TestEvaluate_ConstantZero(t *testing.T) {
	result := evalString(t, "0", nil)
	require.NotNil(t, result)
	assert.Equal(t, 0.0, *result)
}

func TestEmit_RoundTrip(t *testing.T) {
	inputs := []string{
		"1 + 2 * 3",
		"${monitor:m1} - ${funding:lighter-BTC}",
		"max(${spot:binance-ETH}, 100) / 8",
		"abs(${webhook:pricing_page}) % 7",
	}

	for _, input := range inputs {
		node, refs, err := Parse(input)
		require.NoError(t, err)

		emitted := Emit(node)
		node2, refs2, err := Parse(emitted)
		require.NoError(t, err, "emitted %q should re-parse", emitted)
		assert.Equal(t, refs, refs2, "dependencies survive emit/parse for %q", input)

		// Both forms evaluate identically.
		vars := mapResolver{
			{Kind: KindMonitor, ID: "m1"}:           3,
			{Kind: KindFunding, ID: "lighter-BTC"}:  1.5,
			{Kind: KindSpot, ID: "binance-ETH"}:     2400,
			{Kind: KindWebhook, ID: "pricing_page"}: -12,
		}
		v1, err := Evaluate(context.Background(), node, vars)
		require.NoError(t, err)
		v2, err := Evaluate(context.Background(), node2, vars)
		require.NoError(t, err)
		require.NotNil(t, v1)
		require.NotNil(t, v2)
		assert.InDelta(t, *v1, *v2, 1e-12)
	}
}

func TestIsConstantAndIsAlias(t *testing.T) {
	assert.True(t, IsConstant("42"))
	assert.True(t, IsConstant("-1.5"))
	assert.False(t, IsConstant("1 + 1"))
	assert.False(t, IsConstant("${monitor:a}"))

	ref, ok := IsAlias("${monitor:a}")
	assert.True(t, ok)
	assert.Equal(t, Ref{Kind: KindMonitor, ID: "a"}, ref)

	_, ok = IsAlias("${monitor:a} + 1")
	assert.False(t, ok)
}
