package prepfan

// outcome.go describes the dependent variable and extracts modeling targets from it.

import (
	"fmt"
	"strconv"
)

// OutcomeKind is the flavor of the dependent variable
type OutcomeKind int

const (
	// OutcomeNone - unsupervised; only outcome-free treatments are fit
	OutcomeNone OutcomeKind = 0 + iota
	// OutcomeNumeric - real-valued regression target
	OutcomeNumeric
	// OutcomeBinomial - a distinguished positive value defines a 0/1 target
	OutcomeBinomial
	// OutcomeMultinomial - distinct non-missing values define the class set
	OutcomeMultinomial
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNone:
		return "none"
	case OutcomeNumeric:
		return "numeric"
	case OutcomeBinomial:
		return "binomial"
	case OutcomeMultinomial:
		return "multinomial"
	}

	return "unknown"
}

// Outcome describes the dependent variable of a fit
type Outcome struct {
	Kind     OutcomeKind `json:"kind"`
	Name     string      `json:"name"`
	PosValue string      `json:"posValue,omitempty"` // binomial positive class
}

// target holds the per-row modeling target with its availability mask
type target struct {
	y    []float64
	use  []bool // outcome present at this row
	mean float64
	n    int
}

// cellValue renders the outcome cell at row as a comparable string
func cellValue(c *Column, row int) string {
	if c.Role == ColCategorical {
		return c.Lvl[row]
	}

	return strconv.FormatFloat(c.X[row], 'g', -1, 64)
}

// newTarget extracts the modeling target for oc from frame.  For multinomial outcomes, class
// selects the level treated as positive.  Degenerate outcomes (constant, or positive value
// absent) fail with ErrDegenerateOutcome.
func newTarget(frame *Frame, oc *Outcome, class string) (*target, error) {
	if oc.Kind == OutcomeNone {
		return nil, nil
	}

	col := frame.Get(oc.Name)
	if col == nil {
		return nil, Wrapper(ErrFrame, fmt.Sprintf("outcome column %s not in frame", oc.Name))
	}

	n := col.Len()
	t := &target{y: make([]float64, n), use: make([]bool, n)}

	for row := 0; row < n; row++ {
		if col.IsMissing(row) {
			continue
		}

		t.use[row] = true

		switch oc.Kind {
		case OutcomeNumeric:
			t.y[row] = col.X[row]
		case OutcomeBinomial:
			if cellValue(col, row) == oc.PosValue {
				t.y[row] = 1
			}
		case OutcomeMultinomial:
			if cellValue(col, row) == class {
				t.y[row] = 1
			}
		}
	}

	sum, cnt := 0.0, 0
	constant := true
	var first float64
	for row := 0; row < n; row++ {
		if !t.use[row] {
			continue
		}

		if cnt == 0 {
			first = t.y[row]
		} else if t.y[row] != first {
			constant = false
		}

		sum += t.y[row]
		cnt++
	}

	if cnt == 0 {
		return nil, Wrapper(ErrDegenerateOutcome, fmt.Sprintf("outcome %s has no non-missing values", oc.Name))
	}

	if constant {
		switch oc.Kind {
		case OutcomeBinomial, OutcomeMultinomial:
			if first == 0 {
				return nil, Wrapper(ErrDegenerateOutcome, fmt.Sprintf("positive value %s absent from outcome %s", oc.PosValue, oc.Name))
			}

			return nil, Wrapper(ErrDegenerateOutcome, fmt.Sprintf("outcome %s has a single class", oc.Name))
		default:
			return nil, Wrapper(ErrDegenerateOutcome, fmt.Sprintf("outcome %s is constant", oc.Name))
		}
	}

	t.mean = sum / float64(cnt)
	t.n = cnt

	return t, nil
}

// classes returns the sorted distinct non-missing levels of a multinomial outcome
func classes(frame *Frame, oc *Outcome) ([]string, error) {
	col := frame.Get(oc.Name)
	if col == nil {
		return nil, Wrapper(ErrFrame, fmt.Sprintf("outcome column %s not in frame", oc.Name))
	}

	counts := make(map[string]int)
	for row := 0; row < col.Len(); row++ {
		if col.IsMissing(row) {
			continue
		}

		counts[cellValue(col, row)]++
	}

	if len(counts) < 2 {
		return nil, Wrapper(ErrDegenerateOutcome, fmt.Sprintf("outcome %s has %d classes", oc.Name, len(counts)))
	}

	return SortedLevels(counts), nil
}
