// Package formula parses and evaluates cell formulas: decimal numbers,
// cell references, unary and binary + - * /, and parentheses. The
// package knows nothing about cell storage; evaluation reads other
// cells through a caller-supplied lookup function.
package formula

import (
	"math"
	"sort"

	"tabula/ast"
	"tabula/grid"
	"tabula/lexer"
	"tabula/parser"
)

// Lookup resolves a referenced position to its numeric value during
// evaluation. It returns *Error to signal an evaluation failure at the
// referenced cell; that error propagates unchanged to the caller of
// Evaluate.
type Lookup func(grid.Position) (float64, error)

type Formula struct {
	expr ast.Expression
}

// Parse builds a Formula from an expression string (without the leading
// '='). It returns *SyntaxError if the expression does not parse.
func Parse(expression string) (*Formula, error) {
	p := parser.New(lexer.New(expression))
	expr := p.ParseFormula()
	if errs := p.ErrorsDetailed(); len(errs) > 0 || expr == nil {
		return nil, &SyntaxError{
			Expression: expression,
			Detail:     parser.FormatParseErrors(errs, expression),
		}
	}
	return &Formula{expr: expr}, nil
}

// Evaluate computes the formula's value. Referenced cells are read
// through lookup. The returned error, when non-nil, is always *Error.
func (f *Formula) Evaluate(lookup Lookup) (float64, error) {
	return eval(f.expr, lookup)
}

// Expression returns the canonical text of the formula: no whitespace,
// minimal parentheses.
func (f *Formula) Expression() string {
	return ast.Print(f.expr)
}

// ReferencedCells returns the valid positions the formula mentions,
// deduplicated and in row-major order. References outside the grid
// bounds are omitted; they surface as reference errors at evaluation.
func (f *Formula) ReferencedCells() []grid.Position {
	seen := make(map[grid.Position]struct{})
	var cells []grid.Position
	collectRefs(f.expr, func(pos grid.Position) {
		if !pos.IsValid() {
			return
		}
		if _, ok := seen[pos]; ok {
			return
		}
		seen[pos] = struct{}{}
		cells = append(cells, pos)
	})
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Row != cells[j].Row {
			return cells[i].Row < cells[j].Row
		}
		return cells[i].Col < cells[j].Col
	})
	return cells
}

func collectRefs(expr ast.Expression, visit func(grid.Position)) {
	switch e := expr.(type) {
	case *ast.CellRef:
		visit(e.Pos)
	case *ast.PrefixExpression:
		collectRefs(e.Right, visit)
	case *ast.InfixExpression:
		collectRefs(e.Left, visit)
		collectRefs(e.Right, visit)
	}
}

func eval(expr ast.Expression, lookup Lookup) (float64, error) {
	switch e := expr.(type) {
	case *ast.NumberLiteral:
		return e.Value, nil

	case *ast.CellRef:
		if !e.Pos.IsValid() {
			return 0, &Error{Kind: Ref}
		}
		return lookup(e.Pos)

	case *ast.PrefixExpression:
		right, err := eval(e.Right, lookup)
		if err != nil {
			return 0, err
		}
		if e.Operator == "-" {
			return -right, nil
		}
		return right, nil

	case *ast.InfixExpression:
		left, err := eval(e.Left, lookup)
		if err != nil {
			return 0, err
		}
		right, err := eval(e.Right, lookup)
		if err != nil {
			return 0, err
		}

		var result float64
		switch e.Operator {
		case "+":
			result = left + right
		case "-":
			result = left - right
		case "*":
			result = left * right
		case "/":
			result = left / right
		}

		if !isFinite(result) {
			if e.Operator == "/" && right == 0 {
				return 0, &Error{Kind: Div0}
			}
			return 0, &Error{Kind: Arithmetic}
		}
		return result, nil
	}

	return 0, &Error{Kind: Arithmetic}
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
