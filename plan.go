package prepfan

// plan.go implements the deployable treatment plan: apply-time transform, the score frame, and
// the serialized snapshot.

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/sirupsen/logrus"
)

// planVersion is the serialization version this package reads and writes
const planVersion = 1

// SameFrameTransformWarning is logged when Transform is handed the frame the plan was fit on.
// Deployment-treatment outputs on the training rows are biased for downstream modeling; the
// correct pattern is FitTransform.
const SameFrameTransformWarning = "transform called on the training frame; use the cross-frame from fit for unbiased training columns"

// TreatmentPlan is the immutable fitted artifact.  It holds the deployment treatments in
// cross-frame column order, the score frame, and enough fingerprint to recognize its own
// training data.
type TreatmentPlan struct {
	outcome    *Outcome
	treatments []*Treatment
	scores     ScoreRows
	fitRows    int
	fitHash    uint64
	warnings   []string
}

// Outcome returns the outcome descriptor the plan was fit with
func (tp *TreatmentPlan) Outcome() *Outcome {
	return tp.outcome
}

// ScoreFrame returns the per-derived-variable score rows
func (tp *TreatmentPlan) ScoreFrame() ScoreRows {
	return tp.scores
}

// FeatureNames returns the ordered derived column names
func (tp *TreatmentPlan) FeatureNames() []string {
	names := make([]string, len(tp.treatments))
	for ind, tr := range tp.treatments {
		names[ind] = tr.Name
	}

	return names
}

// Treatments returns the deployment treatments in cross-frame order
func (tp *TreatmentPlan) Treatments() []*Treatment {
	return tp.treatments
}

// FitRowCount returns the number of rows of the training frame
func (tp *TreatmentPlan) FitRowCount() int {
	return tp.fitRows
}

// Warnings returns the warnings recorded during fit
func (tp *TreatmentPlan) Warnings() []string {
	return tp.warnings
}

// roleFor is the column role a treatment requires of its origin; -1 accepts either
func roleFor(kind TreatmentKind) ColRole {
	switch kind {
	case KindClean:
		return ColNumeric
	case KindIsBad:
		return ColRole(-1)
	}

	return ColCategorical
}

// Transform applies the stored deployment treatments to frame, returning a new frame with the
// cross-frame's derived schema (minus the outcome column).  A required origin column missing
// from frame fails with ErrSchemaMismatch; extra columns are ignored.
func (tp *TreatmentPlan) Transform(frame *Frame) (*Frame, error) {
	if frame.Rows() == tp.fitRows && frame.Hash() == tp.fitHash {
		logrus.Warn(SameFrameTransformWarning)
	}

	n := frame.Rows()
	out := NewFrame()

	for _, tr := range tp.treatments {
		col := frame.Get(tr.Origin)
		if col == nil {
			return nil, Wrapper(ErrSchemaMismatch, fmt.Sprintf("transform: origin column %s absent", tr.Origin))
		}

		if want := roleFor(tr.Kind); want >= 0 && col.Role != want {
			return nil, Wrapper(ErrSchemaMismatch, fmt.Sprintf("transform: origin column %s is %v, want %v", tr.Origin, col.Role, want))
		}

		vals := make([]float64, n)
		for row := 0; row < n; row++ {
			vals[row] = tr.Value(col, row)
		}

		var e error
		if out, e = out.AppendNum(tr.Name, vals); e != nil {
			return nil, Wrapper(e, "Transform")
		}
	}

	return out, nil
}

// Describe summarizes the treatments fitted for one origin column
func (tp *TreatmentPlan) Describe(origin string) string {
	str := fmt.Sprintf("Origin %s\n", origin)

	for _, tr := range tp.treatments {
		if tr.Origin == origin {
			str = fmt.Sprintf("%s\t%s\n", str, tr)
		}
	}

	return str
}

// treatJSON is the json-friendly form of a Treatment.  Non-finite collar bounds are omitted.
type treatJSON struct {
	Kind         string             `json:"kind"`
	Origin       string             `json:"origin"`
	Name         string             `json:"name"`
	Level        string             `json:"level,omitempty"`
	OutcomeLevel string             `json:"outcomeLevel,omitempty"`
	Mean         float64            `json:"mean"`
	Center       float64            `json:"center"`
	Lo           *float64           `json:"lo,omitempty"`
	Hi           *float64           `json:"hi,omitempty"`
	Map          map[string]float64 `json:"map,omitempty"`
	Novel        float64            `json:"novel"`
	ScaleM       float64            `json:"scaleM"`
	ScaleB       float64            `json:"scaleB"`
	FitCount     int                `json:"fitCount"`
}

// planJSON is the serialized plan layout
type planJSON struct {
	Version    int         `json:"version"`
	Outcome    *Outcome    `json:"outcome"`
	FitRows    int         `json:"fitRows"`
	FitHash    uint64      `json:"fitHash"`
	Treatments []treatJSON `json:"treatments"`
	Scores     ScoreRows   `json:"scores"`
	Warnings   []string    `json:"warnings,omitempty"`
}

// Save writes the plan as a json snapshot to fileName
func (tp *TreatmentPlan) Save(fileName string) (err error) {
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}

	defer func() { _ = f.Close() }()

	out := planJSON{
		Version:  planVersion,
		Outcome:  tp.outcome,
		FitRows:  tp.fitRows,
		FitHash:  tp.fitHash,
		Scores:   tp.scores,
		Warnings: tp.warnings,
	}

	for _, tr := range tp.treatments {
		tj := treatJSON{
			Kind:         tr.Kind.String(),
			Origin:       tr.Origin,
			Name:         tr.Name,
			Level:        tr.Level,
			OutcomeLevel: tr.OutcomeLevel,
			Mean:         tr.Mean,
			Center:       tr.Center,
			Map:          tr.Map,
			Novel:        tr.Novel,
			ScaleM:       tr.ScaleM,
			ScaleB:       tr.ScaleB,
			FitCount:     tr.FitCount,
		}

		if !math.IsNaN(tr.Lo) {
			lo := tr.Lo
			tj.Lo = &lo
		}

		if !math.IsNaN(tr.Hi) {
			hi := tr.Hi
			tj.Hi = &hi
		}

		out.Treatments = append(out.Treatments, tj)
	}

	jp, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}

	_, err = f.Write(jp)

	return err
}

// LoadPlan reads a plan saved by Save.  Unknown versions or treatment kinds reject the plan
// with ErrPlanVersion.
func LoadPlan(fileName string) (*TreatmentPlan, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}

	defer func() { _ = f.Close() }()

	js, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	var data planJSON
	if e := json.Unmarshal(js, &data); e != nil {
		return nil, e
	}

	if data.Version != planVersion {
		return nil, Wrapper(ErrPlanVersion, fmt.Sprintf("plan version %d, this package reads %d", data.Version, planVersion))
	}

	tp := &TreatmentPlan{
		outcome:  data.Outcome,
		scores:   data.Scores,
		fitRows:  data.FitRows,
		fitHash:  data.FitHash,
		warnings: data.Warnings,
	}

	for _, tj := range data.Treatments {
		kind, ok := treatmentKindOf(tj.Kind)
		if !ok {
			return nil, Wrapper(ErrPlanVersion, fmt.Sprintf("unknown treatment kind %q", tj.Kind))
		}

		tr := &Treatment{
			Kind:         kind,
			Origin:       tj.Origin,
			Name:         tj.Name,
			Level:        tj.Level,
			OutcomeLevel: tj.OutcomeLevel,
			Mean:         tj.Mean,
			Center:       tj.Center,
			Lo:           math.NaN(),
			Hi:           math.NaN(),
			Map:          tj.Map,
			Novel:        tj.Novel,
			ScaleM:       tj.ScaleM,
			ScaleB:       tj.ScaleB,
			FitCount:     tj.FitCount,
		}

		if tj.Lo != nil {
			tr.Lo = *tj.Lo
		}

		if tj.Hi != nil {
			tr.Hi = *tj.Hi
		}

		tp.treatments = append(tp.treatments, tr)
	}

	return tp, nil
}
