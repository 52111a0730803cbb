package sheet

import (
	"errors"

	"tabula/formula"
	"tabula/grid"
)

// Cell is one grid entry. Its content is one of three variants (empty,
// text, formula); the neighbor sets hold positions rather than cell
// pointers and are resolved through the owning sheet, so edges stay
// valid across storage growth.
type Cell struct {
	sheet   *Sheet
	pos     grid.Position
	content content

	refsOut map[grid.Position]struct{} // cells this cell's formula reads
	refsIn  map[grid.Position]struct{} // cells whose formulas read this cell
}

func newCell(s *Sheet, pos grid.Position) *Cell {
	return &Cell{
		sheet:   s,
		pos:     pos,
		content: emptyContent{},
		refsOut: make(map[grid.Position]struct{}),
		refsIn:  make(map[grid.Position]struct{}),
	}
}

// Pos returns the cell's own address.
func (c *Cell) Pos() grid.Position {
	return c.pos
}

// Value computes the cell's display value. Formula results are memoized
// until an upstream cell changes.
func (c *Cell) Value() Value {
	return c.content.value(c.sheet)
}

// Text returns the cell's raw text form: the stored text (escape sign
// included) for text cells, "=" plus the canonical expression for
// formula cells, "" for empty cells.
func (c *Cell) Text() string {
	return c.content.text()
}

// ReferencedCells returns the valid positions the cell's formula reads.
func (c *Cell) ReferencedCells() []grid.Position {
	return c.content.referenced()
}

// IsReferenced reports whether any other cell's formula reads this one.
func (c *Cell) IsReferenced() bool {
	return len(c.refsIn) > 0
}

// set parses text into a proposed content, rejects it if it would close
// a dependency cycle, and otherwise commits it: edges are rewired, the
// content installed, and every dependent's cached value dropped. On
// error the cell is untouched.
func (c *Cell) set(text string) error {
	proposed, err := c.contentFromText(text)
	if err != nil {
		return err
	}

	// All edge endpoints must exist before the cycle walk.
	for _, q := range proposed.referenced() {
		c.sheet.materialize(q)
	}

	if c.hasCircularDependency(proposed) {
		return &CircularDependencyError{Pos: c.pos}
	}

	c.rewireEdges(proposed)
	c.content = proposed
	c.invalidateTransitive()
	return nil
}

// clear resets the cell to empty, dropping its outbound edges and the
// caches of everything that reads it. Inbound edges stay: dependents
// keep referencing this cell and now read it as empty.
func (c *Cell) clear() {
	c.rewireEdges(emptyContent{})
	c.content = emptyContent{}
	c.invalidateTransitive()
}

func (c *Cell) contentFromText(text string) (content, error) {
	if text == "" {
		return emptyContent{}, nil
	}
	if text[0] == FormulaSign && len(text) >= 2 {
		f, err := formula.Parse(text[1:])
		if err != nil {
			return nil, err
		}
		return &formulaContent{f: f}, nil
	}
	return textContent{raw: text}, nil
}

// hasCircularDependency walks upward from this cell through refsIn. The
// cells visited are exactly those whose evaluation transitively depends
// on this one; if the proposal directly references any of them (or this
// cell itself), committing it would close a cycle.
func (c *Cell) hasCircularDependency(proposed content) bool {
	refs := make(map[*Cell]struct{})
	for _, q := range proposed.referenced() {
		refs[c.sheet.at(q)] = struct{}{}
	}
	if len(refs) == 0 {
		return false
	}

	visited := map[*Cell]struct{}{c: {}}
	worklist := []*Cell{c}
	for len(worklist) > 0 {
		ongoing := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		if _, ok := refs[ongoing]; ok {
			return true
		}

		for q := range ongoing.refsIn {
			dependent := c.sheet.at(q)
			if _, seen := visited[dependent]; !seen {
				visited[dependent] = struct{}{}
				worklist = append(worklist, dependent)
			}
		}
	}
	return false
}

// rewireEdges replaces this cell's outbound edges with those of the
// proposed content, mirroring every change on the far end.
func (c *Cell) rewireEdges(proposed content) {
	for q := range c.refsOut {
		delete(c.sheet.at(q).refsIn, c.pos)
	}
	c.refsOut = make(map[grid.Position]struct{})

	for _, q := range proposed.referenced() {
		if q == c.pos {
			continue
		}
		referenced := c.sheet.at(q)
		c.refsOut[q] = struct{}{}
		referenced.refsIn[c.pos] = struct{}{}
	}
}

// invalidateTransitive drops the cached value of this cell and of every
// cell that transitively reads it. Explicit worklist; the graph is
// acyclic so the walk terminates.
func (c *Cell) invalidateTransitive() {
	visited := map[*Cell]struct{}{c: {}}
	worklist := []*Cell{c}
	for len(worklist) > 0 {
		ongoing := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		ongoing.content.invalidate()

		for q := range ongoing.refsIn {
			dependent := c.sheet.at(q)
			if _, seen := visited[dependent]; !seen {
				visited[dependent] = struct{}{}
				worklist = append(worklist, dependent)
			}
		}
	}
}

// content is the closed set of cell content variants.
type content interface {
	value(s *Sheet) Value
	text() string
	referenced() []grid.Position
	invalidate()
}

type emptyContent struct{}

func (emptyContent) value(*Sheet) Value { return TextValue("") }

func (emptyContent) text() string { return "" }

func (emptyContent) referenced() []grid.Position { return nil }

func (emptyContent) invalidate() {}

type textContent struct {
	raw string // non-empty; empty text is represented as emptyContent
}

func (t textContent) value(*Sheet) Value {
	if t.raw[0] == EscapeSign {
		return TextValue(t.raw[1:])
	}
	return TextValue(t.raw)
}

func (t textContent) text() string { return t.raw }

func (t textContent) referenced() []grid.Position { return nil }

func (t textContent) invalidate() {}

type formulaContent struct {
	f     *formula.Formula
	cache *Value
}

func (fc *formulaContent) value(s *Sheet) Value {
	if fc.cache != nil {
		return *fc.cache
	}

	result, err := fc.f.Evaluate(s.lookup)
	var v Value
	if err != nil {
		var fe *formula.Error
		if !errors.As(err, &fe) {
			// Anything but an evaluation error is a programmer error.
			panic(err)
		}
		v = ErrorValue(fe)
	} else {
		v = NumberValue(result)
	}
	fc.cache = &v
	return v
}

func (fc *formulaContent) text() string {
	return string(FormulaSign) + fc.f.Expression()
}

func (fc *formulaContent) referenced() []grid.Position {
	return fc.f.ReferencedCells()
}

func (fc *formulaContent) invalidate() {
	fc.cache = nil
}
