package offsetfit

import (
	"encoding/json"
	"errors"
	"math"

	"github.com/chrissnell/thermoffset/internal/types"
)

// Comparison holds both model variants fit to the same statistics
type Comparison struct {
	Quadratic Result             `json:"quadratic" msgpack:"quadratic"`
	Ambient   *Result            `json:"ambient,omitempty" msgpack:"ambient,omitempty"`
	Best      types.ModelVariant `json:"best" msgpack:"best"`
}

// BestResult returns the result of the preferred variant
func (c Comparison) BestResult() Result {
	if c.Best == types.VariantAmbient && c.Ambient != nil {
		return *c.Ambient
	}
	return c.Quadratic
}

// Compare fits both variants and picks the one with the lower AIC. When the
// ambient variant cannot be fit from the data the quadratic fit is chosen.
func Compare(stats []types.StepStatistics, referenceTemp float64) (Comparison, error) {
	quad, err := FitVariant(stats, referenceTemp, types.VariantQuadratic)
	if err != nil {
		return Comparison{}, err
	}

	cmp := Comparison{Quadratic: quad, Best: types.VariantQuadratic}

	amb, err := FitVariant(stats, referenceTemp, types.VariantAmbient)
	switch {
	case errors.Is(err, types.ErrInsufficientData), errors.Is(err, types.ErrFit):
		return cmp, nil
	case err != nil:
		return Comparison{}, err
	}

	cmp.Ambient = &amb
	if amb.AIC < quad.AIC {
		cmp.Best = types.VariantAmbient
	}
	return cmp, nil
}

// ParameterChange describes how one coefficient moved between two fits
type ParameterChange struct {
	Name      string  `msgpack:"name"`
	Old       float64 `msgpack:"old"`
	New       float64 `msgpack:"new"`
	Diff      float64 `msgpack:"diff"`
	PctChange float64 `msgpack:"pct_change"`
}

// MarshalJSON reports an undefined percentage change as null
func (p ParameterChange) MarshalJSON() ([]byte, error) {
	var pct *float64
	if !math.IsInf(p.PctChange, 0) && !math.IsNaN(p.PctChange) {
		pct = &p.PctChange
	}
	return json.Marshal(struct {
		Name      string   `json:"name"`
		Old       float64  `json:"old"`
		New       float64  `json:"new"`
		Diff      float64  `json:"diff"`
		PctChange *float64 `json:"pct_change"`
	}{p.Name, p.Old, p.New, p.Diff, pct})
}

// CompareCoefficients lists the change of each coefficient from old to
// updated. The percentage change is +Inf when the old value is zero.
func CompareCoefficients(old, updated types.ModelCoefficients) []ParameterChange {
	pairs := []struct {
		name     string
		old, new float64
	}{
		{"a", old.A, updated.A},
		{"b", old.B, updated.B},
		{"c", old.C, updated.C},
		{"d", old.D, updated.D},
	}

	changes := make([]ParameterChange, 0, len(pairs))
	for _, p := range pairs {
		diff := p.new - p.old
		pct := math.Inf(1)
		if p.old != 0 {
			pct = diff / p.old * 100
		}
		changes = append(changes, ParameterChange{
			Name:      p.name,
			Old:       p.old,
			New:       p.new,
			Diff:      diff,
			PctChange: pct,
		})
	}
	return changes
}
