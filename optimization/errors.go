package optimization

import "github.com/pkg/errors"

var (
	// errEvaluationInFlight guards the engine's single in-flight evaluation.
	errEvaluationInFlight = errors.New("evaluation already in flight on this engine instance")
	// errNoSolution is returned when the search produced no usable vector.
	errNoSolution = errors.New("optimizer returned no solution vector")
)

// newShapeError reports a fatal parameter-shape precondition violation.
func newShapeError(block string, gotRows, gotCols, wantRows, wantCols int) error {
	return errors.Errorf("precondition violation: %s block is %dx%d, want %dx%d",
		block, gotRows, gotCols, wantRows, wantCols)
}
