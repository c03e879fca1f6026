package prepfan

// params.go holds the knobs that shape a treatment fit and the With* option funcs that set them.

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// Imputer computes the substitution value for a numeric column from its finite training values.
type Imputer func(x []float64) float64

// MeanImputer substitutes the training mean
func MeanImputer(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}

	return stat.Mean(x, nil)
}

// MedianImputer substitutes the training median
func MedianImputer(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}

	med, e := stats.Median(x)
	if e != nil {
		return MeanImputer(x)
	}

	return med
}

// Parameters are the resolved settings for one fit.  Zero values are not meaningful; build with
// defaultParameters and the With* options.
type Parameters struct {
	MinFraction     float64         // threshold prevalence for indicator emission
	SmFactor        float64         // smoothing in impact/deviation means
	RareCount       int             // level counts <= this pooled into the rare bucket
	RareSig         float64         // indicator levels with significance above this suppressed; NaN disables
	CollarProb      float64         // tail-clipping probability when DoCollar
	DoCollar        bool            // winsorize numerics at fit-time quantiles
	CodeRestriction []TreatmentKind // treatment kinds permitted; nil = all
	NCross          int             // fold count
	SplitFn         SplitFunction   // override split planner; nil = default
	Scale           bool            // rescale numeric derived columns to outcome units
	CatScaling      bool            // impact in link space (binomial only)
	Imputation      Imputer         // numeric missingness substitution
	ForceSplit      bool            // cross-validated significance even for outcome-free treatments
	NovelPrevalence bool            // novel-level prevalence 0.5/(n+1) rather than 0
	Seed            int64           // root of every random sub-stream

	catScalingSet bool // user touched CatScaling
}

// Opts sets an option on Parameters
type Opts func(p *Parameters)

// WithMinFraction sets the minimum training prevalence for an indicator level
func WithMinFraction(frac float64) Opts {
	return func(p *Parameters) { p.MinFraction = frac }
}

// WithSmFactor sets the smoothing factor for impact and deviation coding
func WithSmFactor(sm float64) Opts {
	return func(p *Parameters) { p.SmFactor = sm }
}

// WithRareCount pools levels with training count <= cnt into the rare bucket
func WithRareCount(cnt int) Opts {
	return func(p *Parameters) { p.RareCount = cnt }
}

// WithRareSig suppresses indicator levels whose one-level significance exceeds sig
func WithRareSig(sig float64) Opts {
	return func(p *Parameters) { p.RareSig = sig }
}

// WithCollar winsorizes numeric columns at the prob and 1-prob fit-time quantiles
func WithCollar(prob float64) Opts {
	return func(p *Parameters) { p.DoCollar, p.CollarProb = true, prob }
}

// WithCodeRestriction limits the treatment kinds that may be fit
func WithCodeRestriction(kinds ...TreatmentKind) Opts {
	return func(p *Parameters) { p.CodeRestriction = kinds }
}

// WithNCross sets the number of cross-validation folds
func WithNCross(k int) Opts {
	return func(p *Parameters) { p.NCross = k }
}

// WithSplitFunction overrides the split planner
func WithSplitFunction(fn SplitFunction) Opts {
	return func(p *Parameters) { p.SplitFn = fn }
}

// WithScale rescales numeric derived columns to outcome units
func WithScale(scale bool) Opts {
	return func(p *Parameters) { p.Scale = scale }
}

// WithCatScaling sets whether binomial impact coding works in link (logit) space
func WithCatScaling(on bool) Opts {
	return func(p *Parameters) { p.CatScaling, p.catScalingSet = on, true }
}

// WithImputation sets the numeric missingness substitution rule
func WithImputation(imp Imputer) Opts {
	return func(p *Parameters) { p.Imputation = imp }
}

// WithForceSplit forces out-of-fold significance estimation for every treatment
func WithForceSplit(force bool) Opts {
	return func(p *Parameters) { p.ForceSplit = force }
}

// WithNovelPrevalence selects the novel-level prevalence default: 0.5/(n+1) if on, else 0
func WithNovelPrevalence(on bool) Opts {
	return func(p *Parameters) { p.NovelPrevalence = on }
}

// WithSeed fixes the seed all random sub-streams derive from
func WithSeed(seed int64) Opts {
	return func(p *Parameters) { p.Seed = seed }
}

// defaultParameters builds the defaults for an outcome kind
func defaultParameters(kind OutcomeKind) *Parameters {
	return &Parameters{
		MinFraction:     0.02,
		SmFactor:        0,
		RareCount:       0,
		RareSig:         math.NaN(),
		CollarProb:      0,
		DoCollar:        false,
		NCross:          3,
		CatScaling:      kind == OutcomeBinomial,
		Imputation:      MeanImputer,
		NovelPrevalence: true,
		Seed:            42,
	}
}

// resolveParameters applies opts to the defaults for kind and validates the result
func resolveParameters(kind OutcomeKind, opts []Opts) (*Parameters, error) {
	p := defaultParameters(kind)

	for _, opt := range opts {
		opt(p)
	}

	if p.catScalingSet && p.CatScaling && kind != OutcomeBinomial {
		return nil, Wrapper(ErrParam, "cat scaling requires a binomial outcome")
	}

	if kind != OutcomeBinomial {
		p.CatScaling = false
	}

	if p.NCross < 2 {
		return nil, Wrapper(ErrParam, fmt.Sprintf("fold count must be at least 2, got %d", p.NCross))
	}

	if p.MinFraction <= 0 || p.MinFraction > 1 {
		return nil, Wrapper(ErrParam, fmt.Sprintf("min fraction must be in (0,1], got %v", p.MinFraction))
	}

	if p.DoCollar && (p.CollarProb < 0 || p.CollarProb >= 0.5) {
		return nil, Wrapper(ErrParam, fmt.Sprintf("collar probability must be in [0,0.5), got %v", p.CollarProb))
	}

	if p.Imputation == nil {
		p.Imputation = MeanImputer
	}

	return p, nil
}

// allows returns true if kind survives the code restriction
func (p *Parameters) allows(kind TreatmentKind) bool {
	if p.CodeRestriction == nil {
		return true
	}

	for _, k := range p.CodeRestriction {
		if k == kind {
			return true
		}
	}

	return false
}
