package prepfan

// crossfit.go orchestrates the out-of-fold fitting that keeps the cross-frame free of
// nested-model bias.

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// numericStrataBuckets is the bucket count for stratifying numeric outcomes
const numericStrataBuckets = 10

// derived pairs a deployment treatment with its cross-frame column.
type derived struct {
	tr        *Treatment
	originIdx int
	levelKey  string    // within-kind ordering: indicator level / impact class
	vals      []float64 // cross-frame values, full row count
}

// crossResult is everything the driver hands back to the facade.
type crossResult struct {
	cols     []*derived
	scores   ScoreRows
	warnings []string
	usable   []int
	nRows    int
}

// plannedKinds returns the treatment kinds to build for col given the outcome kind,
// before the code restriction is applied.
func plannedKinds(col *Column, ocKind OutcomeKind, usable []int) []TreatmentKind {
	missing := false
	for _, r := range usable {
		if col.IsMissing(r) {
			missing = true

			break
		}
	}

	switch col.Role {
	case ColNumeric:
		kinds := []TreatmentKind{KindClean}
		if missing {
			kinds = append(kinds, KindIsBad)
		}

		return kinds
	case ColCategorical:
		kinds := make([]TreatmentKind, 0, 4)

		if missing {
			kinds = append(kinds, KindIsBad)
		}

		kinds = append(kinds, KindPrevalence)

		// a single observed level emits no indicators and no impact
		multiLevel := len(col.ByCounts(IndexSlicer(usable))) > 1

		if multiLevel {
			switch ocKind {
			case OutcomeNumeric:
				kinds = append(kinds, KindImpact, KindIndicator, KindDeviation)
			case OutcomeBinomial, OutcomeMultinomial:
				kinds = append(kinds, KindImpact, KindIndicator)
			case OutcomeNone:
				kinds = append(kinds, KindIndicator)
			}
		}

		return kinds
	}

	return nil
}

// allMissing reports whether a numeric column has no finite value on the usable rows
func allMissing(col *Column, usable []int) bool {
	if col.Role != ColNumeric {
		return false
	}

	for _, r := range usable {
		if !col.IsMissing(r) {
			return false
		}
	}

	return true
}

// fitDeployment fits the deployment treatment(s) for one (column, kind, class) unit on rows.
func fitDeployment(col *Column, kind TreatmentKind, rows []int, t *target, p *Parameters, class string) []*Treatment {
	switch kind {
	case KindClean:
		return []*Treatment{fitClean(col, rows, t, p)}
	case KindIsBad:
		return []*Treatment{fitIsBad(col, rows)}
	case KindIndicator:
		return fitIndicators(col, rows, t, p)
	case KindPrevalence:
		return []*Treatment{fitPrevalence(col, rows, t, p, false)}
	case KindImpact:
		return []*Treatment{fitImpact(col, rows, t, p, class)}
	case KindDeviation:
		return []*Treatment{fitDeviation(col, rows, t, p)}
	}

	return nil
}

// refitFold refits the parameters of dep on the fold's training rows, preserving the
// deployment schema (name, level, class).
func refitFold(dep *Treatment, col *Column, rows []int, t *target, p *Parameters) *Treatment {
	switch dep.Kind {
	case KindClean:
		tr := fitClean(col, rows, t, p)
		tr.Name = dep.Name

		return tr
	case KindIsBad:
		tr := fitIsBad(col, rows)
		tr.Name = dep.Name

		return tr
	case KindIndicator:
		tr := &Treatment{Kind: KindIndicator, Origin: dep.Origin, Name: dep.Name, Level: dep.Level, Lo: math.NaN(), Hi: math.NaN()}
		tr.finishFit(col, rows, nil, false)

		return tr
	case KindPrevalence:
		tr := fitPrevalence(col, rows, t, p, true)
		tr.Name = dep.Name

		return tr
	case KindImpact:
		tr := fitImpact(col, rows, t, p, dep.OutcomeLevel)
		tr.Name = dep.Name

		return tr
	case KindDeviation:
		tr := fitDeviation(col, rows, t, p)
		tr.Name = dep.Name

		return tr
	}

	return dep
}

// crossFit runs the fit-and-emit procedure: deployment fits for the plan, out-of-fold fits for
// the cross-frame, then significance scoring.  classList is non-empty only for multinomial
// outcomes.  ctx cancellation is honored at each (column, fold) boundary.
func crossFit(ctx context.Context, frame *Frame, vars []string, oc *Outcome, classList []string, p *Parameters) (*crossResult, error) {
	nRows := frame.Rows()

	// targets: one for numeric/binomial, one per class for multinomial
	targets := make(map[string]*target)

	switch oc.Kind {
	case OutcomeNone:
	case OutcomeMultinomial:
		for _, cls := range classList {
			t, e := newTarget(frame, oc, cls)
			if e != nil {
				return nil, e
			}

			targets[cls] = t
		}
	default:
		t, e := newTarget(frame, oc, "")
		if e != nil {
			return nil, e
		}

		targets[""] = t
	}

	// usable rows: outcome present (all rows when unsupervised)
	usable := make([]int, 0, nRows)
	var useMask []bool

	for _, t := range targets {
		useMask = t.use

		break
	}

	for row := 0; row < nRows; row++ {
		if useMask == nil || useMask[row] {
			usable = append(usable, row)
		}
	}

	res := &crossResult{nRows: nRows, usable: usable}

	// split plan, only needed when an outcome drives needs-split treatments
	var plan SplitPlan

	if oc.Kind != OutcomeNone {
		var e error
		if plan, e = makeSplit(usable, targets, oc, p); e != nil {
			return nil, e
		}
	}

	// plan and fit per origin column, in parallel; each writes a disjoint slot of perCol
	perCol := make([][]*derived, len(vars))

	grp, gctx := errgroup.WithContext(ctx)

	for vind, vn := range vars {
		vind, vn := vind, vn

		if vn == oc.Name {
			continue
		}

		col := frame.Get(vn)
		if col == nil {
			return nil, Wrapper(ErrFrame, fmt.Sprintf("variable %s not in frame", vn))
		}

		if allMissing(col, usable) {
			res.warnings = append(res.warnings, fmt.Sprintf("column %s is entirely missing; treatments suppressed", vn))

			continue
		}

		grp.Go(func() error {
			out, e := fitColumn(gctx, col, vind, oc, classList, targets, usable, plan, p)
			if e != nil {
				return e
			}

			perCol[vind] = out

			return nil
		})
	}

	if e := grp.Wait(); e != nil {
		return nil, e
	}

	for _, w := range res.warnings {
		logrus.Warn(w)
	}

	for _, out := range perCol {
		res.cols = append(res.cols, out...)
	}

	if len(res.cols) == 0 {
		return nil, Wrapper(ErrEmptyVariableList, "no treatments survive the variable list and code restriction")
	}

	// deterministic ordering regardless of worker completion order
	sort.SliceStable(res.cols, func(i, j int) bool {
		a, b := res.cols[i], res.cols[j]
		if a.originIdx != b.originIdx {
			return a.originIdx < b.originIdx
		}

		if a.tr.Kind != b.tr.Kind {
			return a.tr.Kind < b.tr.Kind
		}

		return a.levelKey < b.levelKey
	})

	// resolve name collisions after sanitization
	names := make([]string, len(res.cols))
	for ind, d := range res.cols {
		names[ind] = d.tr.Name
	}

	for ind, nm := range uniqueNames(names) {
		res.cols[ind].tr.Name = nm
	}

	res.scores = scoreAll(res.cols, targets, oc, classList, usable, p)

	return res, nil
}

// makeSplit builds the fold plan over the usable rows, stratified by outcome class
// (binomial/multinomial) or outcome quantile bucket (numeric).
func makeSplit(usable []int, targets map[string]*target, oc *Outcome, p *Parameters) (SplitPlan, error) {
	rng := rand.New(rand.NewSource(p.Seed))

	fn := p.SplitFn
	if fn == nil {
		fn = KFoldSplit
	}

	var strata []int

	switch oc.Kind {
	case OutcomeNumeric:
		t := targets[""]
		strata = numericStrata(t.y, usable, numericStrataBuckets)
	case OutcomeBinomial:
		t := targets[""]
		strata = make([]int, len(usable))
		for ind, r := range usable {
			strata[ind] = int(t.y[r])
		}
	case OutcomeMultinomial:
		strata = make([]int, len(usable))
		for cind, cls := range sortedKeys(targets) {
			t := targets[cls]
			for ind, r := range usable {
				if t.y[r] == 1 {
					strata[ind] = cind
				}
			}
		}
	}

	plan, e := fn(usable, strata, p.NCross, rng)
	if e != nil {
		return nil, e
	}

	return plan, ValidateSplit(plan, usable)
}

// sortedKeys returns the map keys in lexical order
func sortedKeys(m map[string]*target) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// fitColumn fits every treatment for one origin column: the deployment fit retained by the
// plan and, for needs-split kinds, the per-fold fits emitted into the cross-frame.
func fitColumn(ctx context.Context, col *Column, originIdx int, oc *Outcome, classList []string,
	targets map[string]*target, usable []int, plan SplitPlan, p *Parameters) ([]*derived, error) {
	out := make([]*derived, 0, 4)

	sharedTarget := targets[""]

	for _, kind := range plannedKinds(col, oc.Kind, usable) {
		if !p.allows(kind) {
			continue
		}

		// impact fans out per class for multinomial outcomes
		classes := []string{""}
		if kind == KindImpact && oc.Kind == OutcomeMultinomial {
			classes = classList
		}

		for _, cls := range classes {
			if e := ctx.Err(); e != nil {
				return nil, e
			}

			// fits that never look at the outcome simply ignore the target
			t := sharedTarget
			if cls != "" {
				t = targets[cls]
			}

			deps := fitDeployment(col, kind, usable, t, p, cls)

			for _, dep := range deps {
				d := &derived{tr: dep, originIdx: originIdx, vals: make([]float64, 0)}

				switch dep.Kind {
				case KindIndicator:
					d.levelKey = dep.Level
				case KindImpact:
					d.levelKey = dep.OutcomeLevel
				}

				vals, e := emit(ctx, dep, col, t, usable, plan, p)
				if e != nil {
					return nil, e
				}

				d.vals = vals
				out = append(out, d)
			}
		}
	}

	return out, nil
}

// emit produces the cross-frame column for dep: out-of-fold values for needs-split treatments
// (or any treatment under ForceSplit), in-sample values otherwise.  Rows outside the usable set
// get the deployment fit's training mean.
func emit(ctx context.Context, dep *Treatment, col *Column, t *target, usable []int, plan SplitPlan, p *Parameters) ([]float64, error) {
	n := col.Len()
	vals := make([]float64, n)

	for row := 0; row < n; row++ {
		vals[row] = dep.Mean
	}

	split := (dep.Kind.NeedsSplit() || p.ForceSplit) && plan != nil

	switch split {
	case true:
		for _, fold := range plan {
			if e := ctx.Err(); e != nil {
				return nil, e
			}

			foldTr := refitFold(dep, col, fold.Train, t, p)

			for _, r := range fold.App {
				vals[r] = foldTr.Value(col, r)
			}
		}
	case false:
		for _, r := range usable {
			vals[r] = dep.Value(col, r)
		}
	}

	return vals, nil
}

// scoreAll builds the score frame: one row per derived column, fanned out per outcome class for
// multinomial fits.  Constant columns are flagged and never recommended.
func scoreAll(cols []*derived, targets map[string]*target, oc *Outcome, classList []string, usable []int, p *Parameters) ScoreRows {
	sigThresh := 1.0 / float64(len(cols))

	classes := []string{""}
	if oc.Kind == OutcomeMultinomial {
		classes = classList
	}

	rows := make(ScoreRows, 0, len(cols)*len(classes))

	for _, cls := range classes {
		for _, d := range cols {
			varMoves := columnMoves(d.vals, usable)

			row := &ScoreRow{
				VarName:           d.tr.Name,
				VarMoves:          varMoves,
				RSq:               0,
				Sig:               1,
				NeedsSplit:        d.tr.Kind.NeedsSplit() || p.ForceSplit,
				ExtraModelDegrees: d.tr.Kind.ExtraDegrees(),
				Origin:            d.tr.Origin,
				Kind:              d.tr.Kind,
				OutcomeLevel:      cls,
			}

			if oc.Kind != OutcomeNone && varMoves {
				t := targets[cls]
				binomial := oc.Kind != OutcomeNumeric
				row.RSq, row.Sig, _ = scoreColumn(d.vals, t, binomial, d.tr.Kind.ExtraDegrees())
			}

			switch oc.Kind {
			case OutcomeNone:
				row.Recommended = varMoves
			default:
				row.Recommended = varMoves && row.Sig < sigThresh
			}

			rows = append(rows, row)
		}
	}

	return rows
}

// columnMoves returns true if the column varies on the usable rows
func columnMoves(vals []float64, usable []int) bool {
	x := make([]float64, len(usable))
	for ind, r := range usable {
		x[ind] = vals[r]
	}

	if len(x) < 2 {
		return false
	}

	return stat.Variance(x, nil) > 0
}
