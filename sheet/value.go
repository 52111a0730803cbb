package sheet

import (
	"tabula/ast"
	"tabula/formula"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	ValueNumber ValueKind = iota + 1
	ValueText
	ValueError
)

// Value is a computed cell value: a number, a text, or an evaluation
// error. Evaluation errors are ordinary values here; they are cached and
// invalidated exactly like numeric results.
type Value struct {
	Kind   ValueKind
	Number float64
	Text   string
	Err    *formula.Error
}

func NumberValue(v float64) Value {
	return Value{Kind: ValueNumber, Number: v}
}

func TextValue(s string) Value {
	return Value{Kind: ValueText, Text: s}
}

func ErrorValue(err *formula.Error) Value {
	return Value{Kind: ValueError, Err: err}
}

// String renders the value the way PrintValues emits it: numbers in
// shortest round-trippable form, texts raw, errors as their token.
func (v Value) String() string {
	switch v.Kind {
	case ValueNumber:
		return ast.FormatNumber(v.Number)
	case ValueText:
		return v.Text
	case ValueError:
		return v.Err.Error()
	}
	return ""
}
