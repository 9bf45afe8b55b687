package offsetfit

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat"

	"github.com/chrissnell/thermoffset/internal/types"
)

// InterpolationKind names the interpolation scheme of an InterpolationModel
type InterpolationKind string

const (
	InterpCubic  InterpolationKind = "cubic"
	InterpLinear InterpolationKind = "linear"

	// minCubicPoints is the fewest distinct targets that get a cubic spline
	minCubicPoints = 4
)

// InterpolationModel is a non-parametric offset model over target
// temperature. Outside [TempMin, TempMax] the offset is held at the value of
// the nearest end point.
type InterpolationModel struct {
	Kind          InterpolationKind `json:"kind" msgpack:"kind"`
	TargetTemps   []float64         `json:"target_temps" msgpack:"target_temps"`
	LiquidOffsets []float64         `json:"liquid_offsets" msgpack:"liquid_offsets"`
	TempMin       float64           `json:"temp_min" msgpack:"temp_min"`
	TempMax       float64           `json:"temp_max" msgpack:"temp_max"`
	RSquared      float64           `json:"r_squared" msgpack:"r_squared"`
	RMSE          float64           `json:"rmse" msgpack:"rmse"`

	predictor interp.FittablePredictor
}

// NewInterpolationModel builds an interpolation model from step statistics.
// Steps sharing a target temperature are averaged into one knot.
func NewInterpolationModel(stats []types.StepStatistics) (*InterpolationModel, error) {
	byTarget := make(map[float64][]float64)
	for i, s := range stats {
		if !finite(s.TargetTemp, s.LiquidOffset) {
			return nil, fmt.Errorf("%w: step %d has non-finite statistics", types.ErrData, i)
		}
		byTarget[s.TargetTemp] = append(byTarget[s.TargetTemp], s.LiquidOffset)
	}
	if len(byTarget) < 2 {
		return nil, fmt.Errorf("%w: interpolation needs at least 2 distinct target temperatures, have %d",
			types.ErrInsufficientData, len(byTarget))
	}

	xs := make([]float64, 0, len(byTarget))
	for t := range byTarget {
		xs = append(xs, t)
	}
	sort.Float64s(xs)

	ys := make([]float64, len(xs))
	for i, t := range xs {
		ys[i] = stat.Mean(byTarget[t], nil)
	}

	m := &InterpolationModel{
		Kind:          InterpLinear,
		TargetTemps:   xs,
		LiquidOffsets: ys,
		TempMin:       xs[0],
		TempMax:       xs[len(xs)-1],
	}
	if len(xs) >= minCubicPoints {
		m.Kind = InterpCubic
	}
	if err := m.fit(); err != nil {
		return nil, err
	}

	observed := make([]float64, 0, len(stats))
	predicted := make([]float64, 0, len(stats))
	for _, s := range stats {
		observed = append(observed, s.LiquidOffset)
		predicted = append(predicted, m.Offset(s.TargetTemp))
	}
	m.RSquared = calculateRSquared(observed, predicted)
	m.RMSE = calculateRMSE(observed, predicted)

	return m, nil
}

func (m *InterpolationModel) fit() error {
	var p interp.FittablePredictor
	switch m.Kind {
	case InterpCubic:
		p = &interp.NaturalCubic{}
	case InterpLinear:
		p = &interp.PiecewiseLinear{}
	default:
		return fmt.Errorf("%w: unknown interpolation kind %q", types.ErrConfig, m.Kind)
	}
	if err := p.Fit(m.TargetTemps, m.LiquidOffsets); err != nil {
		return fmt.Errorf("%w: fitting %s interpolation: %v", types.ErrFit, m.Kind, err)
	}
	m.predictor = p
	return nil
}

// Offset returns the interpolated liquid offset at a target temperature
func (m *InterpolationModel) Offset(target float64) float64 {
	if m.predictor == nil {
		if err := m.fit(); err != nil {
			return 0
		}
	}
	switch {
	case target <= m.TempMin:
		return m.LiquidOffsets[0]
	case target >= m.TempMax:
		return m.LiquidOffsets[len(m.LiquidOffsets)-1]
	}
	return m.predictor.Predict(target)
}
