package prepfan

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// sineFrame generates the strong-categorical scenario: yReal = sin(x) + noise, xc is yReal
// rounded to the half with a share of missing cells, x2 is pure noise.
func sineFrame(t *testing.T, n int, seed int64) (f *Frame, yReal []float64) {
	t.Helper()

	rng := rand.New(rand.NewSource(seed))

	x := make([]float64, n)
	x2 := make([]float64, n)
	yReal = make([]float64, n)
	xcLvl := make([]string, n)
	xcMiss := make([]bool, n)
	ycLvl := make([]string, n)

	for ind := 0; ind < n; ind++ {
		x[ind] = rng.Float64() * 15
		x2[ind] = rng.NormFloat64()
		yReal[ind] = math.Sin(x[ind]) + 0.1*rng.NormFloat64()

		xcLvl[ind] = strconv.FormatFloat(math.Round(yReal[ind]*2)/2, 'g', -1, 64)
		xcMiss[ind] = rng.Float64() < 0.2

		ycLvl[ind] = "false"
		if yReal[ind] > 0.5 {
			ycLvl[ind] = "true"
		}
	}

	var e error

	f = NewFrame()
	f, e = f.AppendNum("x", x)
	assert.Nil(t, e)
	f, e = f.AppendNum("x2", x2)
	assert.Nil(t, e)
	f, e = f.AppendCat("xc", xcLvl, xcMiss)
	assert.Nil(t, e)
	f, e = f.AppendCat("yc", ycLvl, nil)
	assert.Nil(t, e)
	f, e = f.AppendNum("yreal", yReal)
	assert.Nil(t, e)

	return f, yReal
}

func TestFitBinomial_StrongCategorical(t *testing.T) {
	f, _ := sineFrame(t, 500, 101)

	plan, cross, e := FitBinomial(context.Background(), f, []string{"x", "x2", "xc"}, "yc", "true", WithSeed(29))
	assert.Nil(t, e)

	scores := plan.ScoreFrame()

	impact := scores.Get("xc_impact")
	assert.NotNil(t, impact)
	assert.True(t, impact.VarMoves)
	assert.True(t, impact.RSq > 0.4, impact.RSq)
	assert.True(t, impact.Sig < 1e-6, impact.Sig)
	assert.True(t, impact.Recommended)
	assert.Equal(t, 5, impact.ExtraModelDegrees)
	assert.True(t, impact.NeedsSplit)

	// the pure-noise numeric shows no signal
	noise := scores.Get("x2_clean")
	assert.NotNil(t, noise)
	assert.True(t, noise.RSq < 0.1, noise.RSq)
	assert.True(t, noise.Sig > 1e-4, noise.Sig)

	// the rounded-sine categorical spans at least 5 prevalent levels
	nInd := 0
	for _, nm := range plan.FeatureNames() {
		if strings.HasPrefix(nm, "xc_lev_") {
			nInd++
		}
	}
	assert.True(t, nInd >= 5, nInd)

	// cross-frame invariants: full length, all cells finite
	assert.Equal(t, f.Rows(), cross.Rows())

	for _, nm := range plan.FeatureNames() {
		col := cross.Get(nm)
		assert.NotNil(t, col, nm)
		for row := 0; row < cross.Rows(); row++ {
			assert.False(t, math.IsNaN(col.X[row]) || math.IsInf(col.X[row], 0), nm)
		}
	}

	// one score row per derived column
	assert.Equal(t, len(plan.FeatureNames()), len(scores))
}

func TestFitNumeric_SineOutcome(t *testing.T) {
	f, _ := sineFrame(t, 500, 7)

	plan, _, e := FitNumeric(context.Background(), f, []string{"x", "x2", "xc"}, "yreal", WithSeed(3))
	assert.Nil(t, e)

	impact := plan.ScoreFrame().Get("xc_impact")
	assert.NotNil(t, impact)
	assert.True(t, impact.RSq > 0.5, impact.RSq)
	assert.True(t, impact.Recommended)

	// numeric outcome also earns a deviation coding
	assert.NotNil(t, plan.ScoreFrame().Get("xc_dev"))
}

func TestFitMultinomial_ThreeClasses(t *testing.T) {
	n := 300
	rng := rand.New(rand.NewSource(23))

	g := make([]string, n)
	x := make([]float64, n)
	yLvl := make([]string, n)

	for ind := 0; ind < n; ind++ {
		v := rng.NormFloat64()
		x[ind] = v
		g[ind] = string(rune('p' + ind%4))

		switch {
		case v > 0.5:
			yLvl[ind] = "large"
		case v < -0.5:
			yLvl[ind] = "small"
		default:
			yLvl[ind] = "liminal"
		}
	}

	var e error

	f := NewFrame()
	f, e = f.AppendCat("g", g, nil)
	assert.Nil(t, e)
	f, e = f.AppendNum("x", x)
	assert.Nil(t, e)
	f, e = f.AppendCat("y3", yLvl, nil)
	assert.Nil(t, e)

	plan, cross, e := FitMultinomial(context.Background(), f, []string{"g", "x"}, "y3")
	assert.Nil(t, e)

	names := plan.FeatureNames()

	// exactly one impact column per (class, origin) pair
	impacts := make([]string, 0)
	for _, nm := range names {
		if strings.HasSuffix(nm, "_impact") {
			impacts = append(impacts, nm)
		}
	}
	assert.ElementsMatch(t, []string{"large_g_impact", "liminal_g_impact", "small_g_impact"}, impacts)

	// score frame fans out once per class
	scores := plan.ScoreFrame()
	assert.Equal(t, 3*len(names), len(scores))

	for _, row := range scores {
		assert.Contains(t, []string{"large", "liminal", "small"}, row.OutcomeLevel)
	}

	// outcome-free treatments appear exactly once per outcome level
	prevRows := 0
	for _, row := range scores {
		if row.VarName == "g_prev" {
			prevRows++
		}
	}
	assert.Equal(t, 3, prevRows)

	// impact rows: 3 classes x 3 impact variables
	impactRows := 0
	for _, row := range scores {
		if row.Kind == KindImpact {
			impactRows++
		}
	}
	assert.Equal(t, 9, impactRows)

	assert.Equal(t, len(names)+1, cross.Cols())

	// deployed transform reproduces the schema
	out, e := plan.Transform(f)
	assert.Nil(t, e)
	assert.Equal(t, names, out.Names())
}

func TestFitUnsupervised(t *testing.T) {
	n := 50
	lvls := make([]string, n)
	x := make([]float64, n)

	for ind := 0; ind < n; ind++ {
		lvls[ind] = string(rune('a' + ind%2))
		x[ind] = float64(ind)
		if ind%9 == 0 {
			x[ind] = math.NaN()
		}
	}

	var e error

	f := NewFrame()
	f, e = f.AppendCat("c", lvls, nil)
	assert.Nil(t, e)
	f, e = f.AppendNum("x", x)
	assert.Nil(t, e)

	plan, cross, e := FitUnsupervised(context.Background(), f, nil)
	assert.Nil(t, e)

	// outcome-dependent kinds are absent
	for _, nm := range plan.FeatureNames() {
		assert.False(t, strings.Contains(nm, "_impact"), nm)
		assert.False(t, strings.Contains(nm, "_dev"), nm)
	}

	assert.Equal(t, []string{"c_prev", "c_lev_a", "c_lev_b", "x_clean", "x_isbad"}, plan.FeatureNames())

	// no outcome column rides along
	assert.Equal(t, len(plan.FeatureNames()), cross.Cols())

	for _, row := range plan.ScoreFrame() {
		assert.Equal(t, row.VarMoves, row.Recommended)
	}
}

func TestNovelLevel(t *testing.T) {
	n := 60
	lvls := make([]string, n)
	y := make([]float64, n)

	for ind := 0; ind < n; ind++ {
		lvls[ind] = string(rune('a' + ind%3))
		y[ind] = float64(ind%3) + 0.1*float64(ind%7)
	}

	var e error

	f := NewFrame()
	f, e = f.AppendCat("c", lvls, nil)
	assert.Nil(t, e)
	f, e = f.AppendNum("y", y)
	assert.Nil(t, e)

	plan, _, e := FitNumeric(context.Background(), f, []string{"c"}, "y")
	assert.Nil(t, e)

	test, e := NewFrame().AppendCat("c", []string{"d"}, nil)
	assert.Nil(t, e)

	out, e := plan.Transform(test)
	assert.Nil(t, e)

	// novel level: impact at the grand-mean point, prevalence at the novel default,
	// every indicator dark
	assert.Equal(t, 0.0, out.Get("c_impact").X[0])
	assert.InEpsilon(t, 0.5/61.0, out.Get("c_prev").X[0], 1e-10)
	assert.Equal(t, 0.0, out.Get("c_lev_a").X[0])
	assert.Equal(t, 0.0, out.Get("c_lev_b").X[0])
	assert.Equal(t, 0.0, out.Get("c_lev_c").X[0])
}

func TestCatScalingRejectedForNumeric(t *testing.T) {
	f := honestyFrame(t)

	_, _, e := FitNumeric(context.Background(), f, []string{"c"}, "y", WithCatScaling(true))
	assert.NotNil(t, e)
	assert.True(t, errors.Is(e, ErrParam))
}

func TestDegenerateOutcomes(t *testing.T) {
	n := 20
	lvls := make([]string, n)
	flatY := make([]float64, n)
	ycLvl := make([]string, n)

	for ind := 0; ind < n; ind++ {
		lvls[ind] = string(rune('a' + ind%2))
		flatY[ind] = 1
		ycLvl[ind] = "no"
	}

	var e error

	f := NewFrame()
	f, e = f.AppendCat("c", lvls, nil)
	assert.Nil(t, e)
	f, e = f.AppendNum("y", flatY)
	assert.Nil(t, e)
	f, e = f.AppendCat("yc", ycLvl, nil)
	assert.Nil(t, e)

	// constant numeric outcome
	_, _, e = FitNumeric(context.Background(), f, []string{"c"}, "y")
	assert.NotNil(t, e)
	assert.True(t, errors.Is(e, ErrDegenerateOutcome))

	// positive value absent
	_, _, e = FitBinomial(context.Background(), f, []string{"c"}, "yc", "yes")
	assert.NotNil(t, e)
	assert.True(t, errors.Is(e, ErrDegenerateOutcome))
}

func TestFitTransform(t *testing.T) {
	f := honestyFrame(t)

	cross, plan, e := FitTransform(context.Background(), f, []string{"c"}, &Outcome{Kind: OutcomeNumeric, Name: "y"})
	assert.Nil(t, e)
	assert.NotNil(t, plan)
	assert.Equal(t, f.Rows(), cross.Rows())
	assert.Equal(t, append(plan.FeatureNames(), "y"), cross.Names())
}
