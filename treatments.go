package prepfan

// treatments.go implements the per-column treatments: fit-time parameter estimation and
// apply-time value mapping for the six treatment kinds.

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// overflowClamp bounds every emitted value; arithmetic past it is clamped, never surfaced.
// Impact fits log each level they clamp; apply-time clamping in Value is silent.
const overflowClamp = 1e12

// RareLevel is the pooled bucket rare levels merge into
const RareLevel = "_rare_"

// TreatmentKind enumerates the treatment taxonomy.  Declaration order is the column-ordering
// priority within an origin variable.
type TreatmentKind int

const (
	// KindClean - numeric pass-through with missingness substitution
	KindClean TreatmentKind = 0 + iota
	// KindIsBad - missing/NaN/infinite flag
	KindIsBad
	// KindPrevalence - level training prevalence
	KindPrevalence
	// KindImpact - one-variable model of the outcome conditional on level
	KindImpact
	// KindIndicator - one-hot flag for a single level
	KindIndicator
	// KindDeviation - per-level outcome standard deviation
	KindDeviation
)

func (k TreatmentKind) String() string {
	switch k {
	case KindClean:
		return "clean"
	case KindIsBad:
		return "is_bad"
	case KindPrevalence:
		return "prevalence"
	case KindImpact:
		return "impact"
	case KindIndicator:
		return "indicator"
	case KindDeviation:
		return "deviation"
	}

	return "unknown"
}

// treatmentKindOf inverts String for plan loading
func treatmentKindOf(s string) (TreatmentKind, bool) {
	for _, k := range []TreatmentKind{KindClean, KindIsBad, KindPrevalence, KindImpact, KindIndicator, KindDeviation} {
		if k.String() == s {
			return k, true
		}
	}

	return 0, false
}

// NeedsSplit returns true for the treatments whose cross-frame values are estimated out-of-fold
// on the training data: prevalence, impact and deviation.
func (k TreatmentKind) NeedsSplit() bool {
	switch k {
	case KindPrevalence, KindImpact, KindDeviation:
		return true
	}

	return false
}

// ExtraDegrees is the extra-model-degrees-of-freedom charge the significance scorer applies
func (k TreatmentKind) ExtraDegrees() int {
	if k == KindImpact {
		return 5
	}

	return 0
}

// Treatment is a fitted, frozen per-column transform emitting one derived numeric column.
// The fields used depend on Kind; unused fields are zero, except Lo and Hi, which are NaN.
type Treatment struct {
	Kind         TreatmentKind
	Origin       string
	Name         string  // derived column name
	Level        string  // indicator level (raw, unsanitized)
	OutcomeLevel string  // multinomial class this treatment belongs to, "" otherwise
	Mean         float64 // fit-time mean of the emitted column; the finite fallback

	Center   float64            // clean: substitution value for bad cells
	Lo, Hi   float64            // clean: collar bounds (NaN when no collar)
	Map      map[string]float64 // prevalence/impact/deviation: level table
	Novel    float64            // value for a level unseen at fit
	ScaleM   float64            // outcome-units rescale slope (1 when off)
	ScaleB   float64            // outcome-units rescale center (0 when off)
	FitCount int                // rows the treatment was fit on
}

// clampValue bounds v to the overflow clamp, substituting the fit mean for non-finite values
func (tr *Treatment) clampValue(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return tr.Mean
	}

	if v > overflowClamp {
		return overflowClamp
	}

	if v < -overflowClamp {
		return -overflowClamp
	}

	return v
}

// Value returns the emitted value of the treatment for the cell of col at row.
func (tr *Treatment) Value(col *Column, row int) float64 {
	var v float64

	switch tr.Kind {
	case KindClean:
		v = tr.Center
		if !col.IsMissing(row) {
			v = col.X[row]
		}

		if !math.IsNaN(tr.Lo) && v < tr.Lo {
			v = tr.Lo
		}

		if !math.IsNaN(tr.Hi) && v > tr.Hi {
			v = tr.Hi
		}
	case KindIsBad:
		if col.IsMissing(row) {
			return 1
		}

		return 0
	case KindIndicator:
		if col.Level(row) == tr.Level {
			return 1
		}

		return 0
	case KindPrevalence, KindImpact, KindDeviation:
		val, ok := tr.Map[col.Level(row)]
		if !ok {
			val = tr.Novel
		}

		v = val
	}

	v = tr.ScaleM * (v - tr.ScaleB)

	return tr.clampValue(v)
}

// logit with clamping so empty or pure levels stay finite
func logit(p float64) float64 {
	const eps = 1e-12

	if p < eps {
		p = eps
	}

	if p > 1-eps {
		p = 1 - eps
	}

	return math.Log(p / (1 - p))
}

// scaleParams fits the outcome-units rescale: slope of the centered outcome on the emitted
// values.  A flat column keeps the identity transform.
func scaleParams(vals, y []float64, yMean float64) (m, b float64) {
	if len(vals) < 2 {
		return 1, 0
	}

	vMean := stat.Mean(vals, nil)
	num, den := 0.0, 0.0

	for ind, v := range vals {
		num += (v - vMean) * (y[ind] - yMean)
		den += (v - vMean) * (v - vMean)
	}

	if den <= 0 {
		return 1, 0
	}

	return num / den, vMean
}

// finishFit computes the training mean of the emitted column and, when wanted, the
// outcome-units rescale.  Called at the end of every fit with the treatment's training rows.
func (tr *Treatment) finishFit(col *Column, rows []int, t *target, scale bool) {
	tr.ScaleM, tr.ScaleB = 1, 0
	tr.FitCount = len(rows)

	vals := make([]float64, len(rows))
	for ind, r := range rows {
		vals[ind] = tr.Value(col, r)
	}

	if scale && t != nil && tr.Kind != KindIsBad && tr.Kind != KindIndicator {
		ys := make([]float64, len(rows))
		for ind, r := range rows {
			ys[ind] = t.y[r]
		}

		tr.ScaleM, tr.ScaleB = scaleParams(vals, ys, t.mean)

		for ind := range vals {
			vals[ind] = tr.ScaleM * (vals[ind] - tr.ScaleB)
		}
	}

	if len(vals) > 0 {
		tr.Mean = stat.Mean(vals, nil)
	}

	if math.IsNaN(tr.Mean) || math.IsInf(tr.Mean, 0) {
		logrus.Warnf("treatment %s: non-finite training mean clamped to 0", tr.Name)
		tr.Mean = 0
	}
}

// fitClean fits the numeric pass-through: records the imputation value and, under the collar,
// the tail-clipping quantiles.
func fitClean(col *Column, rows []int, t *target, p *Parameters) *Treatment {
	tr := &Treatment{
		Kind:   KindClean,
		Origin: col.Name,
		Name:   col.Name + "_clean",
		Lo:     math.NaN(),
		Hi:     math.NaN(),
	}

	finite := col.Finite(IndexSlicer(rows))
	tr.Center = p.Imputation(finite)

	if p.DoCollar && p.CollarProb > 0 && len(finite) > 0 {
		sorted := make([]float64, len(finite))
		copy(sorted, finite)
		sort.Float64s(sorted)
		tr.Lo = stat.Quantile(p.CollarProb, stat.Empirical, sorted, nil)
		tr.Hi = stat.Quantile(1-p.CollarProb, stat.Empirical, sorted, nil)
	}

	tr.finishFit(col, rows, t, p.Scale)

	return tr
}

// fitIsBad fits the missingness flag
func fitIsBad(col *Column, rows []int) *Treatment {
	tr := &Treatment{
		Kind:   KindIsBad,
		Origin: col.Name,
		Name:   col.Name + "_isbad",
		Lo:     math.NaN(),
		Hi:     math.NaN(),
	}

	tr.finishFit(col, rows, nil, false)

	return tr
}

// fitIndicators fits one-hot flags for every level whose training prevalence clears
// MinFraction, capped at floor(1/MinFraction) indicators, most prevalent first.  With RareSig
// set and an outcome present, levels whose one-level significance exceeds it are suppressed.
func fitIndicators(col *Column, rows []int, t *target, p *Parameters) []*Treatment {
	counts := col.ByCounts(IndexSlicer(rows))
	if len(counts) < 2 {
		return nil
	}

	n := float64(len(rows))
	maxInd := int(math.Floor(1 / p.MinFraction))

	qualified := make([]string, 0, len(counts))
	for _, lvl := range SortedLevels(counts) {
		if float64(counts[lvl])/n >= p.MinFraction {
			qualified = append(qualified, lvl)
		}
	}

	if len(qualified) > maxInd {
		// keep the most prevalent, ties by lexical order
		sort.SliceStable(qualified, func(i, j int) bool {
			if counts[qualified[i]] != counts[qualified[j]] {
				return counts[qualified[i]] > counts[qualified[j]]
			}

			return qualified[i] < qualified[j]
		})
		qualified = qualified[:maxInd]
		sort.Strings(qualified)
	}

	out := make([]*Treatment, 0, len(qualified))

	for _, lvl := range qualified {
		if !math.IsNaN(p.RareSig) && t != nil {
			if sig := levelSig(col, rows, lvl, t); sig > p.RareSig {
				continue
			}
		}

		tr := &Treatment{
			Kind:   KindIndicator,
			Origin: col.Name,
			Name:   col.Name + "_lev_" + sanitizeName(lvl),
			Level:  lvl,
			Lo:     math.NaN(),
			Hi:     math.NaN(),
		}
		tr.finishFit(col, rows, nil, false)
		out = append(out, tr)
	}

	return out
}

// levelSig is the two-sided significance of the level's 0/1 flag against the outcome
func levelSig(col *Column, rows []int, lvl string, t *target) float64 {
	x := make([]float64, 0, len(rows))
	y := make([]float64, 0, len(rows))

	for _, r := range rows {
		v := 0.0
		if col.Level(r) == lvl {
			v = 1
		}

		x = append(x, v)
		y = append(y, t.y[r])
	}

	_, sig, _ := linearScore(x, y, 0)

	return sig
}

// fitPrevalence fits the level -> training prevalence table.  foldFit distinguishes the
// fold-treatment novel default 1/(n+1) from the deployment default set by NovelPrevalence.
func fitPrevalence(col *Column, rows []int, t *target, p *Parameters, foldFit bool) *Treatment {
	counts := col.ByCounts(IndexSlicer(rows))
	n := float64(len(rows))

	tr := &Treatment{
		Kind:   KindPrevalence,
		Origin: col.Name,
		Name:   col.Name + "_prev",
		Map:    make(map[string]float64, len(counts)),
		Lo:     math.NaN(),
		Hi:     math.NaN(),
	}

	for lvl, cnt := range counts {
		tr.Map[lvl] = float64(cnt) / n
	}

	switch {
	case foldFit:
		tr.Novel = 1 / (n + 1)
	case p.NovelPrevalence:
		tr.Novel = 0.5 / (n + 1)
	default:
		tr.Novel = 0
	}

	tr.finishFit(col, rows, t, p.Scale)

	return tr
}

// pooledCounts applies rare-level pooling: levels with count <= RareCount contribute to the
// RareLevel bucket.  Returns per-level effective bucket and the bucket tallies.
func pooledCounts(counts map[string]int, rareCount int) (bucketOf map[string]string, bucket map[string]int) {
	bucketOf = make(map[string]string, len(counts))
	bucket = make(map[string]int)

	for lvl, cnt := range counts {
		b := lvl
		if cnt <= rareCount {
			b = RareLevel
		}

		bucketOf[lvl] = b
		bucket[b] += cnt
	}

	return bucketOf, bucket
}

// fitImpact fits the one-variable conditional model of the outcome on level.
//
// Numeric outcomes use the smoothed centered mean: b = sum(y - yBar)/(n + smFactor).
// Binomial outcomes under cat scaling work in link space: logit of the smoothed level rate
// minus the logit of the smoothed grand rate.  Novel levels map to 0, the grand-mean point
// in either space.
func fitImpact(col *Column, rows []int, t *target, p *Parameters, class string) *Treatment {
	counts := col.ByCounts(IndexSlicer(rows))
	bucketOf, bucket := pooledCounts(counts, p.RareCount)

	sum := make(map[string]float64, len(bucket))
	var grand, nPos float64

	for _, r := range rows {
		b := bucketOf[col.Level(r)]
		sum[b] += t.y[r]
		grand += t.y[r]
	}
	nPos = grand

	n := float64(len(rows))
	yBar := grand / n

	name := col.Name + "_impact"
	if class != "" {
		name = sanitizeName(class) + "_" + col.Name + "_impact"
	}

	tr := &Treatment{
		Kind:         KindImpact,
		Origin:       col.Name,
		Name:         name,
		OutcomeLevel: class,
		Map:          make(map[string]float64, len(counts)),
		Novel:        0,
		Lo:           math.NaN(),
		Hi:           math.NaN(),
	}

	values := make(map[string]float64, len(bucket))

	for b, cnt := range bucket {
		switch p.CatScaling {
		case true:
			// link space with additive smoothing
			pLvl := (sum[b] + p.SmFactor) / (float64(cnt) + 2*p.SmFactor)
			pBar := (nPos + p.SmFactor) / (n + 2*p.SmFactor)
			values[b] = logit(pLvl) - logit(pBar)
		case false:
			values[b] = (sum[b] - float64(cnt)*yBar) / (float64(cnt) + p.SmFactor)
		}

		if math.Abs(values[b]) > overflowClamp {
			logrus.Warnf("impact treatment %s: overflow on level %s clamped", name, b)
			values[b] = math.Copysign(overflowClamp, values[b])
		}
	}

	for lvl := range counts {
		tr.Map[lvl] = values[bucketOf[lvl]]
	}

	tr.finishFit(col, rows, t, p.Scale)

	return tr
}

// fitDeviation fits the per-level outcome standard deviation; novel levels map to the pooled
// standard deviation across all levels.
func fitDeviation(col *Column, rows []int, t *target, p *Parameters) *Treatment {
	counts := col.ByCounts(IndexSlicer(rows))
	bucketOf, bucket := pooledCounts(counts, p.RareCount)

	sum := make(map[string]float64, len(bucket))
	sumSq := make(map[string]float64, len(bucket))

	for _, r := range rows {
		b := bucketOf[col.Level(r)]
		sum[b] += t.y[r]
		sumSq[b] += t.y[r] * t.y[r]
	}

	tr := &Treatment{
		Kind:   KindDeviation,
		Origin: col.Name,
		Name:   col.Name + "_dev",
		Map:    make(map[string]float64, len(counts)),
		Lo:     math.NaN(),
		Hi:     math.NaN(),
	}

	var pooledSS, pooledN float64

	sd := make(map[string]float64, len(bucket))
	for b, cnt := range bucket {
		nb := float64(cnt)
		ss := sumSq[b] - sum[b]*sum[b]/nb

		if ss < 0 {
			ss = 0
		}

		pooledSS += ss
		if nb > 1 {
			pooledN += nb - 1
			sd[b] = math.Sqrt((ss + p.SmFactor) / (nb - 1 + p.SmFactor))
		}
	}

	pooled := 0.0
	if pooledN > 0 {
		pooled = math.Sqrt(pooledSS / pooledN)
	}

	for b, cnt := range bucket {
		if cnt <= 1 {
			sd[b] = pooled
		}
	}

	for lvl := range counts {
		tr.Map[lvl] = sd[bucketOf[lvl]]
	}

	tr.Novel = pooled

	tr.finishFit(col, rows, t, p.Scale)

	return tr
}

// String summarizes the treatment
func (tr *Treatment) String() string {
	str := fmt.Sprintf("%s (%s of %s)", tr.Name, tr.Kind, tr.Origin)

	switch tr.Kind {
	case KindClean:
		str = fmt.Sprintf("%s, substitute %.4g", str, tr.Center)
	case KindIndicator:
		str = fmt.Sprintf("%s, level %q", str, tr.Level)
	case KindPrevalence, KindImpact, KindDeviation:
		str = fmt.Sprintf("%s, %d levels", str, len(tr.Map))
	}

	if tr.OutcomeLevel != "" {
		str = fmt.Sprintf("%s, outcome level %q", str, tr.OutcomeLevel)
	}

	return str
}
