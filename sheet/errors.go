package sheet

import (
	"fmt"

	"tabula/grid"
)

// InvalidPositionError reports an operation on a position outside the
// grid bounds.
type InvalidPositionError struct {
	Pos grid.Position
}

func (e *InvalidPositionError) Error() string {
	return fmt.Sprintf("invalid position %s", e.Pos)
}

// CircularDependencyError reports a rejected edit: committing the
// proposed content at Pos would close a cycle in the dependency graph.
type CircularDependencyError struct {
	Pos grid.Position
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency through %s", e.Pos)
}
