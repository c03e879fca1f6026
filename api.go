package prepfan

// api.go has the outcome-typed entry points.

import (
	"context"
	"fmt"
)

// fit runs the full design procedure for oc and assembles the plan and cross-frame.
func fit(ctx context.Context, frame *Frame, variables []string, oc *Outcome, opts []Opts) (*TreatmentPlan, *Frame, error) {
	if frame == nil || frame.Rows() == 0 {
		return nil, nil, Wrapper(ErrFrame, "fit: empty frame")
	}

	p, e := resolveParameters(oc.Kind, opts)
	if e != nil {
		return nil, nil, e
	}

	if variables == nil {
		for _, nm := range frame.Names() {
			if nm != oc.Name {
				variables = append(variables, nm)
			}
		}
	}

	if len(variables) == 0 {
		return nil, nil, Wrapper(ErrEmptyVariableList, "fit: no candidate variables")
	}

	var classList []string

	if oc.Kind == OutcomeMultinomial {
		if classList, e = classes(frame, oc); e != nil {
			return nil, nil, e
		}
	}

	res, e := crossFit(ctx, frame, variables, oc, classList, p)
	if e != nil {
		return nil, nil, e
	}

	plan := &TreatmentPlan{
		outcome:  oc,
		scores:   res.scores,
		fitRows:  frame.Rows(),
		fitHash:  frame.Hash(),
		warnings: res.warnings,
	}

	cross := NewFrame()

	for _, d := range res.cols {
		plan.treatments = append(plan.treatments, d.tr)

		if cross, e = cross.AppendNum(d.tr.Name, d.vals); e != nil {
			return nil, nil, Wrapper(e, "fit: cross frame assembly")
		}
	}

	// the outcome column rides along unchanged
	if oc.Kind != OutcomeNone {
		ocCol := frame.Get(oc.Name)

		switch ocCol.Role {
		case ColNumeric:
			cross, e = cross.AppendNum(ocCol.Name, ocCol.X)
		case ColCategorical:
			cross, e = cross.AppendCat(ocCol.Name, ocCol.Lvl, ocCol.Miss)
		}

		if e != nil {
			return nil, nil, Wrapper(e, "fit: outcome column collides with a derived name")
		}
	}

	return plan, cross, nil
}

// FitNumeric designs a treatment plan for a real-valued outcome.  It returns the deployable
// plan and the cross-validated training frame whose outcome-derived columns were produced
// out-of-fold.
func FitNumeric(ctx context.Context, frame *Frame, variables []string, outcome string, opts ...Opts) (*TreatmentPlan, *Frame, error) {
	oc := &Outcome{Kind: OutcomeNumeric, Name: outcome}

	if col := frame.Get(outcome); col == nil || col.Role != ColNumeric {
		return nil, nil, Wrapper(ErrFrame, fmt.Sprintf("FitNumeric: outcome %s missing or not numeric", outcome))
	}

	return fit(ctx, frame, variables, oc, opts)
}

// FitBinomial designs a treatment plan for a two-class outcome; rows where the outcome column
// equals posValue form the positive class.
func FitBinomial(ctx context.Context, frame *Frame, variables []string, outcome, posValue string, opts ...Opts) (*TreatmentPlan, *Frame, error) {
	oc := &Outcome{Kind: OutcomeBinomial, Name: outcome, PosValue: posValue}

	return fit(ctx, frame, variables, oc, opts)
}

// FitMultinomial designs a treatment plan for a K-class outcome: a shared outcome-free
// treatment set plus per-class impact treatments, with the score frame fanned out per class.
func FitMultinomial(ctx context.Context, frame *Frame, variables []string, outcome string, opts ...Opts) (*TreatmentPlan, *Frame, error) {
	oc := &Outcome{Kind: OutcomeMultinomial, Name: outcome}

	return fit(ctx, frame, variables, oc, opts)
}

// FitUnsupervised designs an outcome-free plan: clean, is_bad, prevalence and indicator
// treatments only, fit on the full data.
func FitUnsupervised(ctx context.Context, frame *Frame, variables []string, opts ...Opts) (*TreatmentPlan, *Frame, error) {
	oc := &Outcome{Kind: OutcomeNone}

	return fit(ctx, frame, variables, oc, opts)
}

// FitTransform is the shorthand for fit when only the unbiased training matrix is wanted; the
// plan is returned alongside for later deployment.
func FitTransform(ctx context.Context, frame *Frame, variables []string, oc *Outcome, opts ...Opts) (*Frame, *TreatmentPlan, error) {
	plan, cross, e := fit(ctx, frame, variables, oc, opts)

	return cross, plan, e
}
