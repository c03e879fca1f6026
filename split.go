package prepfan

// split.go plans the partition of training rows into application folds.

import (
	"fmt"
	"math/rand"
	"sort"
)

// Fold pairs the rows a fold-treatment is fit on (Train) with the rows it emits (App).
// Train is always the complement of App within the rows handed to the planner.
type Fold struct {
	Train []int
	App   []int
}

// SplitPlan is an ordered list of folds whose App sets partition the planned rows
type SplitPlan []Fold

// SplitFunction produces a SplitPlan of k folds over rows.  strata, when non-nil, assigns each
// row (parallel to rows) a stratum id whose proportions each fold should preserve.
type SplitFunction func(rows, strata []int, k int, rng *rand.Rand) (SplitPlan, error)

// KFoldSplit is the default planner: random shuffle, then consecutive slices become the
// application sets.  With strata it deals each stratum round-robin so fold proportions hold.
func KFoldSplit(rows, strata []int, k int, rng *rand.Rand) (SplitPlan, error) {
	if k < 2 {
		return nil, Wrapper(ErrSplit, fmt.Sprintf("fold count must be at least 2, got %d", k))
	}

	if k > len(rows) {
		k = len(rows)
	}

	if k < 2 {
		return nil, Wrapper(ErrSplit, fmt.Sprintf("cannot split %d rows", len(rows)))
	}

	apps := make([][]int, k)

	switch strata {
	case nil:
		perm := rng.Perm(len(rows))
		for ind, p := range perm {
			f := ind * k / len(rows)
			apps[f] = append(apps[f], rows[p])
		}
	default:
		if len(strata) != len(rows) {
			return nil, Wrapper(ErrSplit, fmt.Sprintf("strata length %d != rows length %d", len(strata), len(rows)))
		}

		// group rows by stratum, keep stratum order stable
		groups := make(map[int][]int)
		ids := make([]int, 0)
		for ind, r := range rows {
			s := strata[ind]
			if _, ok := groups[s]; !ok {
				ids = append(ids, s)
			}
			groups[s] = append(groups[s], r)
		}
		sort.Ints(ids)

		for _, s := range ids {
			grp := groups[s]
			perm := rng.Perm(len(grp))
			start := rng.Intn(k)
			for ind, p := range perm {
				apps[(start+ind)%k] = append(apps[(start+ind)%k], grp[p])
			}
		}
	}

	plan := make(SplitPlan, k)
	for f := 0; f < k; f++ {
		sort.Ints(apps[f])
		plan[f] = Fold{App: apps[f], Train: complement(rows, apps[f])}
	}

	return plan, ValidateSplit(plan, rows)
}

// PrecomputedSplit wraps a caller-supplied plan as a SplitFunction; the plan is validated for
// disjointness and coverage against the rows being planned.
func PrecomputedSplit(plan SplitPlan) SplitFunction {
	return func(rows, _ []int, _ int, _ *rand.Rand) (SplitPlan, error) {
		if e := ValidateSplit(plan, rows); e != nil {
			return nil, e
		}

		return plan, nil
	}
}

// ValidateSplit checks that the App sets are disjoint and cover rows, and every Train set is the
// complement of its App set.  Violations fail with ErrSplit.
func ValidateSplit(plan SplitPlan, rows []int) error {
	inRows := make(map[int]bool, len(rows))
	for _, r := range rows {
		inRows[r] = true
	}

	seen := make(map[int]int, len(rows))

	for f, fold := range plan {
		for _, r := range fold.App {
			if !inRows[r] {
				return Wrapper(ErrSplit, fmt.Sprintf("fold %d: application row %d not among planned rows", f, r))
			}

			if prev, ok := seen[r]; ok {
				return Wrapper(ErrSplit, fmt.Sprintf("row %d appears in application sets of folds %d and %d", r, prev, f))
			}

			seen[r] = f
		}

		inApp := make(map[int]bool, len(fold.App))
		for _, r := range fold.App {
			inApp[r] = true
		}

		if len(fold.Train)+len(fold.App) != len(rows) {
			return Wrapper(ErrSplit, fmt.Sprintf("fold %d: train is not the complement of app", f))
		}

		inTrain := make(map[int]bool, len(fold.Train))
		for _, r := range fold.Train {
			if !inRows[r] || inApp[r] || inTrain[r] {
				return Wrapper(ErrSplit, fmt.Sprintf("fold %d: train row %d invalid", f, r))
			}

			inTrain[r] = true
		}
	}

	if len(seen) != len(rows) {
		return Wrapper(ErrSplit, fmt.Sprintf("application sets cover %d of %d rows", len(seen), len(rows)))
	}

	return nil
}

// complement returns the rows of universe not in drop, ascending
func complement(universe, drop []int) []int {
	inDrop := make(map[int]bool, len(drop))
	for _, r := range drop {
		inDrop[r] = true
	}

	out := make([]int, 0, len(universe)-len(drop))
	for _, r := range universe {
		if !inDrop[r] {
			out = append(out, r)
		}
	}

	sort.Ints(out)

	return out
}

// numericStrata buckets y (restricted to rows) into nBuckets quantile groups for stratified
// splitting of numeric outcomes.
func numericStrata(y []float64, rows []int, nBuckets int) []int {
	vals := make([]float64, len(rows))
	for ind, r := range rows {
		vals[ind] = y[r]
	}

	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	cuts := make([]float64, 0, nBuckets-1)
	for b := 1; b < nBuckets; b++ {
		cuts = append(cuts, sorted[len(sorted)*b/nBuckets])
	}

	strata := make([]int, len(rows))
	for ind, v := range vals {
		strata[ind] = sort.SearchFloat64s(cuts, v)
	}

	return strata
}
