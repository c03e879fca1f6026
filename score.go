package prepfan

// score.go scores each derived column against the outcome with a one-variable model.

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ScoreRow is the per-derived-variable record of the score frame.
type ScoreRow struct {
	VarName           string        `json:"varName"`
	VarMoves          bool          `json:"varMoves"`
	RSq               float64       `json:"rsq"`
	Sig               float64       `json:"sig"`
	NeedsSplit        bool          `json:"needsSplit"`
	ExtraModelDegrees int           `json:"extraModelDegrees"`
	Origin            string        `json:"origin"`
	Kind              TreatmentKind `json:"kind"`
	Recommended       bool          `json:"recommended"`
	OutcomeLevel      string        `json:"outcomeLevel,omitempty"`
}

// ScoreRows is the score frame
type ScoreRows []*ScoreRow

// Get returns the score row of varName (first match), nil if absent
func (sr ScoreRows) Get(varName string) *ScoreRow {
	for _, r := range sr {
		if r.VarName == varName {
			return r
		}
	}

	return nil
}

// Recommended returns the names of the recommended variables, deduplicated, in score order
func (sr ScoreRows) Recommended() []string {
	seen := make(map[string]bool)
	out := make([]string, 0)

	for _, r := range sr {
		if r.Recommended && !seen[r.VarName] {
			seen[r.VarName] = true
			out = append(out, r.VarName)
		}
	}

	return out
}

func (sr ScoreRows) String() string {
	str := fmt.Sprintf("%-32s %-10s %-6s %10s %12s  %s\n", "variable", "kind", "moves", "rsq", "sig", "recommended")

	for _, r := range sr {
		nm := r.VarName
		if r.OutcomeLevel != "" {
			nm = fmt.Sprintf("%s [%s]", nm, r.OutcomeLevel)
		}

		str = fmt.Sprintf("%s%-32s %-10s %-6v %10.4f %12.4g  %v\n", str, nm, r.Kind, r.VarMoves, r.RSq, r.Sig, r.Recommended)
	}

	return str
}

// tSig is the two-sided p-value of tStat under Student's t with df residual degrees of freedom.
// extraDF reduces the residual degrees, charging cross-validated treatments for their
// estimation complexity.
func tSig(tStat float64, n, extraDF int) float64 {
	df := float64(n - 2 - extraDF)
	if df < 1 {
		df = 1
	}

	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}

	sig := 2 * tDist.Survival(math.Abs(tStat))
	if sig > 1 {
		sig = 1
	}

	return sig
}

// linearScore fits y ~ x by least squares and returns the coefficient of determination and the
// two-sided slope significance.
func linearScore(x, y []float64, extraDF int) (rsq, sig float64, varMoves bool) {
	n := len(x)
	if n < 3 || len(y) != n {
		return 0, 1, false
	}

	xBar, yBar := stat.Mean(x, nil), stat.Mean(y, nil)

	var sxx, syy, sxy float64
	for ind := 0; ind < n; ind++ {
		dx, dy := x[ind]-xBar, y[ind]-yBar
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}

	if sxx <= 0 {
		return 0, 1, false
	}

	if syy <= 0 {
		return 0, 1, true
	}

	rsq = sxy * sxy / (sxx * syy)
	if rsq > 1 {
		rsq = 1
	}

	df := float64(n - 2 - extraDF)
	if df < 1 {
		df = 1
	}

	if rsq >= 1 {
		return 1, 0, true
	}

	tStat := math.Sqrt(rsq*df/(1-rsq)) * math.Copysign(1, sxy)

	return rsq, tSig(tStat, n, extraDF), true
}

// logisticScore fits the one-variable logistic regression of the 0/1 outcome y on x by IRLS and
// returns the pseudo R-squared (1 - deviance/null deviance) and the Wald significance of the
// slope.
func logisticScore(x, y []float64, extraDF int) (rsq, sig float64, varMoves bool) {
	const (
		maxIter = 25
		tol     = 1e-10
	)

	n := len(x)
	if n < 3 || len(y) != n {
		return 0, 1, false
	}

	if v := stat.Variance(x, nil); v <= 0 {
		return 0, 1, false
	}

	// null model
	pBar := stat.Mean(y, nil)
	if pBar <= 0 || pBar >= 1 {
		return 0, 1, true
	}

	nullDev := 0.0
	for _, yi := range y {
		nullDev -= 2 * (yi*math.Log(pBar) + (1-yi)*math.Log(1-pBar))
	}

	b0, b1 := logit(pBar), 0.0

	var xtwx *mat.Dense

	for iter := 0; iter < maxIter; iter++ {
		var g0, g1 float64
		var w00, w01, w11 float64

		for ind := 0; ind < n; ind++ {
			eta := b0 + b1*x[ind]
			if eta > 30 {
				eta = 30
			}
			if eta < -30 {
				eta = -30
			}

			mu := 1 / (1 + math.Exp(-eta))
			w := mu * (1 - mu)
			res := y[ind] - mu

			g0 += res
			g1 += res * x[ind]
			w00 += w
			w01 += w * x[ind]
			w11 += w * x[ind] * x[ind]
		}

		xtwx = mat.NewDense(2, 2, []float64{w00, w01, w01, w11})
		grad := mat.NewDense(2, 1, []float64{g0, g1})

		var step mat.Dense
		if e := step.Solve(xtwx, grad); e != nil {
			break
		}

		d0, d1 := step.At(0, 0), step.At(1, 0)
		b0 += d0
		b1 += d1

		if math.Abs(d0)+math.Abs(d1) < tol {
			break
		}
	}

	dev := 0.0
	for ind := 0; ind < n; ind++ {
		eta := b0 + b1*x[ind]
		if eta > 30 {
			eta = 30
		}
		if eta < -30 {
			eta = -30
		}

		mu := 1 / (1 + math.Exp(-eta))

		const eps = 1e-12
		if mu < eps {
			mu = eps
		}
		if mu > 1-eps {
			mu = 1 - eps
		}

		dev -= 2 * (y[ind]*math.Log(mu) + (1-y[ind])*math.Log(1-mu))
	}

	rsq = 1 - dev/nullDev
	if rsq < 0 {
		rsq = 0
	}
	if rsq > 1 {
		rsq = 1
	}

	// Wald statistic from the final information matrix
	var inv mat.Dense
	if e := inv.Inverse(xtwx); e != nil {
		return rsq, 1, true
	}

	se := math.Sqrt(inv.At(1, 1))
	if se <= 0 || math.IsNaN(se) {
		return rsq, 1, true
	}

	return rsq, tSig(b1/se, n, extraDF), true
}

// scoreColumn scores the derived values vals against target t, restricted to t's usable rows.
func scoreColumn(vals []float64, t *target, binomial bool, extraDF int) (rsq, sig float64, varMoves bool) {
	x := make([]float64, 0, len(vals))
	y := make([]float64, 0, len(vals))

	for row, v := range vals {
		if !t.use[row] {
			continue
		}

		x = append(x, v)
		y = append(y, t.y[row])
	}

	if binomial {
		return logisticScore(x, y, extraDF)
	}

	return linearScore(x, y, extraDF)
}
