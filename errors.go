package prepfan

// errors.go defines the error taxonomy.

import "github.com/pkg/errors"

// Error sentinels. Each area of the package wraps its failures around one of these so callers
// can test the broad category with errors.Is and still see the offending column/fold in the text.
var (
	// ErrFrame - malformed Frame (ragged columns, unknown column, bad type)
	ErrFrame = errors.New("frame error")
	// ErrSplit - a fold assignment violates disjointness or coverage
	ErrSplit = errors.New("invalid split")
	// ErrTreatment - treatment fit/apply failure
	ErrTreatment = errors.New("treatment error")
	// ErrScore - significance scoring failure
	ErrScore = errors.New("score error")
	// ErrEmptyVariableList - after filtering, no treatment survives
	ErrEmptyVariableList = errors.New("empty variable list")
	// ErrSchemaMismatch - transform input lacks a required origin column
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrDegenerateOutcome - outcome is constant or the positive value is absent
	ErrDegenerateOutcome = errors.New("degenerate outcome")
	// ErrParam - an invalid parameter combination
	ErrParam = errors.New("invalid parameter")
	// ErrPlanVersion - serialized plan has an unknown version or treatment kind
	ErrPlanVersion = errors.New("unsupported treatment plan version")
)

// Wrapper wraps err with contextual text
func Wrapper(err error, text string) error {
	return errors.Wrap(err, text)
}
