package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabula/grid"
)

func mustParse(t *testing.T, expression string) *Formula {
	t.Helper()
	f, err := Parse(expression)
	require.NoError(t, err, "parse %q", expression)
	return f
}

func constLookup(values map[grid.Position]float64) Lookup {
	return func(pos grid.Position) (float64, error) {
		return values[pos], nil
	}
}

func noLookup(pos grid.Position) (float64, error) {
	return 0, nil
}

func TestEvaluateArithmetic(t *testing.T) {
	tests := []struct {
		expression string
		expected   float64
	}{
		{"1", 1},
		{"1+2*3", 7},
		{"(1+2)*3", 9},
		{"2.5*(2+3.5/7)", 6.25},
		{"-3+5", 2},
		{"10/4", 2.5},
		{"1-2-3", -4},
		{"1e2+1", 101},
	}

	for _, tt := range tests {
		f := mustParse(t, tt.expression)
		got, err := f.Evaluate(noLookup)
		require.NoError(t, err, tt.expression)
		assert.Equal(t, tt.expected, got, tt.expression)
	}
}

func TestEvaluateWithReferences(t *testing.T) {
	f := mustParse(t, "A1+B2*2")
	got, err := f.Evaluate(constLookup(map[grid.Position]float64{
		{Row: 0, Col: 0}: 10,
		{Row: 1, Col: 1}: 4,
	}))
	require.NoError(t, err)
	assert.Equal(t, 18.0, got)
}

func TestDivisionByZero(t *testing.T) {
	f := mustParse(t, "1/0")
	_, err := f.Evaluate(noLookup)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, Div0, fe.Kind)

	// A zero divisor coming from a referenced cell behaves the same.
	f = mustParse(t, "1/A1")
	_, err = f.Evaluate(noLookup)
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, Div0, fe.Kind)
}

func TestArithmeticOverflow(t *testing.T) {
	f := mustParse(t, "1e308*10")
	_, err := f.Evaluate(noLookup)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, Arithmetic, fe.Kind)
}

func TestOutOfBoundsReferenceEvaluatesToRefError(t *testing.T) {
	f := mustParse(t, "A16385+1")
	_, err := f.Evaluate(noLookup)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, Ref, fe.Kind)
}

func TestLookupErrorPropagates(t *testing.T) {
	f := mustParse(t, "A1+1")
	_, err := f.Evaluate(func(grid.Position) (float64, error) {
		return 0, &Error{Kind: Value}
	})
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, Value, fe.Kind)
}

func TestExpression(t *testing.T) {
	tests := []struct {
		expression string
		expected   string
	}{
		{"1 + 2 * 3", "1+2*3"},
		{"( 1 + 2 ) * 3", "(1+2)*3"},
		{"A1 / ( B2 - 1 )", "A1/(B2-1)"},
	}
	for _, tt := range tests {
		f := mustParse(t, tt.expression)
		assert.Equal(t, tt.expected, f.Expression(), tt.expression)
	}
}

func TestReferencedCells(t *testing.T) {
	f := mustParse(t, "B2+A1+B2+A16385")

	// Deduplicated, row-major order, out-of-bounds refs omitted.
	assert.Equal(t, []grid.Position{
		{Row: 0, Col: 0},
		{Row: 1, Col: 1},
	}, f.ReferencedCells())
}

func TestReferencedCellsEmpty(t *testing.T) {
	f := mustParse(t, "1+2")
	assert.Empty(t, f.ReferencedCells())
}

func TestParseSyntaxError(t *testing.T) {
	for _, expression := range []string{"", "1+", "(1", "a1", "1 2"} {
		_, err := Parse(expression)
		var syntaxErr *SyntaxError
		require.ErrorAs(t, err, &syntaxErr, "expression %q", expression)
		assert.Equal(t, expression, syntaxErr.Expression)
	}
}

func TestErrorTokens(t *testing.T) {
	assert.Equal(t, "#REF!", (&Error{Kind: Ref}).Error())
	assert.Equal(t, "#VALUE!", (&Error{Kind: Value}).Error())
	assert.Equal(t, "#DIV/0!", (&Error{Kind: Div0}).Error())
	assert.Equal(t, "#ARITHM!", (&Error{Kind: Arithmetic}).Error())
}
