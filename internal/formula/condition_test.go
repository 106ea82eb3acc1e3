package formula

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalCondition(t *testing.T, input string, vars mapResolver) *bool {
	t.Helper()
	cond, err := ParseCondition(input)
	require.NoError(t, err)
	result, err := EvaluateCondition(context.Background(), cond, vars)
	require.NoError(t, err)
	return result
}

func TestParseCondition_Operators(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"1 > 0", true},
		{"1 >= 1", true},
		{"1 < 0", false},
		{"2 <= 1", false},
		{"0.1 + 0.2 == 0.3", false}, // differs by more than 1e-10
		{"1 == 1.00000000000001", true},
		{"1 != 2", true},
		{"(3 - 1) * 2 > 3", true},
	}

	for _, tt := range tests {
		result := evalCondition(t, tt.input, nil)
		require.NotNil(t, result, tt.input)
		assert.Equal(t, tt.expected, *result, tt.input)
	}
}

func TestParseCondition_WithReferences(t *testing.T) {
	vars := mapResolver{{Kind: KindMonitor, ID: "m1"}: 150}

	result := evalCondition(t, "${monitor:m1} > 100", vars)
	require.NotNil(t, result)
	assert.True(t, *result)

	cond, err := ParseCondition("${monitor:m1} > ${monitor:m2} * 2")
	require.NoError(t, err)
	assert.Equal(t, []Ref{
		{Kind: KindMonitor, ID: "m1"},
		{Kind: KindMonitor, ID: "m2"},
	}, cond.Refs)
}

func TestEvaluateCondition_UnresolvedSkips(t *testing.T) {
	// m2 has no data: condition is nil, not false.
	vars := mapResolver{{Kind: KindMonitor, ID: "m1"}: 150}
	result := evalCondition(t, "${monitor:m1} > ${monitor:m2}", vars)
	assert.Nil(t, result)
}

func TestParseCondition_Errors(t *testing.T) {
	inputs := []string{
		"1 + 1",          // no comparison
		"> 1",            // missing left side
		"1 >",            // missing right side
		"${monitor:a}",   // bare reference
		"1 > 2 > 3 >",    // trailing garbage on right side
	}

	for _, input := range inputs {
		_, err := ParseCondition(input)
		assert.Error(t, err, "input %q should not parse", input)
	}
}

func TestFindComparison_TwoCharOperatorsFirst(t *testing.T) {
	idx, op := findComparison("1 >= 2")
	assert.Equal(t, 2, idx)
	assert.Equal(t, ">=", op)

	idx, op = findComparison("(1 > 2)")
	assert.Equal(t, -1, idx, "operators inside parens are not split points")
	assert.Equal(t, "", op)
}
