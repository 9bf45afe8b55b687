// Package offsetfit fits the liquid temperature offset model to step
// statistics gathered from one or more experiments.
//
// Two variants share one least-squares path:
//
//	quadratic: offset = A*t² + B*t + D
//	ambient:   offset = A*t² + B*t + C*(ambient - ref) + D
//
// The design matrix is solved with a QR decomposition, and the result carries
// the goodness-of-fit metrics needed to compare variants.
package offsetfit

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/chrissnell/thermoffset/internal/types"
)

// DefaultReferenceTemp is the ambient reference temperature in °C
const DefaultReferenceTemp = 20.0

// StdErrors holds the standard error of each coefficient
type StdErrors struct {
	A float64 `json:"a" msgpack:"a"`
	B float64 `json:"b" msgpack:"b"`
	C float64 `json:"c" msgpack:"c"`
	D float64 `json:"d" msgpack:"d"`
}

// Result is a fitted offset model and its quality metrics
type Result struct {
	Coefficients         types.ModelCoefficients `json:"coefficients" msgpack:"coefficients"`
	StdErrors            *StdErrors              `json:"std_errors,omitempty" msgpack:"std_errors,omitempty"`
	RSquared             float64                 `json:"r_squared" msgpack:"r_squared"`
	AdjustedRSquared     float64                 `json:"adjusted_r_squared" msgpack:"adjusted_r_squared"`
	RootMeanSquaredError float64                 `json:"rmse" msgpack:"rmse"`
	MeanAbsoluteError    float64                 `json:"mae" msgpack:"mae"`
	AIC                  float64                 `json:"aic" msgpack:"aic"`
	BIC                  float64                 `json:"bic" msgpack:"bic"`
	SampleCount          int                     `json:"sample_count" msgpack:"sample_count"`
	TargetRange          [2]float64              `json:"target_range" msgpack:"target_range"`
	AmbientRange         [2]float64              `json:"ambient_range" msgpack:"ambient_range"`
}

// ParamCount returns the number of free parameters of a model variant
func ParamCount(variant types.ModelVariant) int {
	if variant == types.VariantAmbient {
		return 4
	}
	return 3
}

// Fit fits the offset model to the liquid offsets in stats. With useAmbient
// the ambient-augmented variant is fit against each step's mean ambient
// temperature relative to referenceTemp.
func Fit(stats []types.StepStatistics, referenceTemp float64, useAmbient bool) (Result, error) {
	variant := types.VariantQuadratic
	if useAmbient {
		variant = types.VariantAmbient
	}
	return FitVariant(stats, referenceTemp, variant)
}

// FitVariant fits the given model variant
func FitVariant(stats []types.StepStatistics, referenceTemp float64, variant types.ModelVariant) (Result, error) {
	if variant != types.VariantQuadratic && variant != types.VariantAmbient {
		return Result{}, fmt.Errorf("%w: unknown model variant %q", types.ErrConfig, variant)
	}
	if math.IsNaN(referenceTemp) || math.IsInf(referenceTemp, 0) {
		return Result{}, fmt.Errorf("%w: reference temperature %v", types.ErrConfig, referenceTemp)
	}

	n := len(stats)
	p := ParamCount(variant)
	useAmbient := variant == types.VariantAmbient

	targets := make([]float64, n)
	ambients := make([]float64, n)
	offsets := make([]float64, n)
	for i, s := range stats {
		if !finite(s.TargetTemp, s.LiquidOffset) || (useAmbient && !finite(s.AmbientMean)) {
			return Result{}, fmt.Errorf("%w: step %d has non-finite statistics", types.ErrData, i)
		}
		targets[i] = s.TargetTemp
		ambients[i] = s.AmbientMean
		offsets[i] = s.LiquidOffset
	}

	if distinct := distinctPoints(targets, ambients, useAmbient); distinct <= p {
		return Result{}, fmt.Errorf("%w: %s model has %d parameters but only %d distinct data points",
			types.ErrInsufficientData, variant, p, distinct)
	}

	if useAmbient && floats.Min(ambients) == floats.Max(ambients) {
		return Result{}, fmt.Errorf("%w: ambient temperature is constant at %.2f°C, its coefficient cannot be fit",
			types.ErrInsufficientData, ambients[0])
	}

	X := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		row := []float64{targets[i] * targets[i], targets[i]}
		if useAmbient {
			row = append(row, ambients[i]-referenceTemp)
		}
		row = append(row, 1)
		X.SetRow(i, row)
	}
	y := mat.NewVecDense(n, offsets)

	var qr mat.QR
	qr.Factorize(X)

	beta := mat.NewVecDense(p, nil)
	if err := qr.SolveVecTo(beta, false, y); err != nil {
		return Result{}, fmt.Errorf("%w: solving %s least squares: %v", types.ErrFit, variant, err)
	}

	params := beta.RawVector().Data
	for _, v := range params {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Result{}, fmt.Errorf("%w: %s least squares produced non-finite coefficients", types.ErrFit, variant)
		}
	}

	coeffs := types.ModelCoefficients{
		A:             params[0],
		B:             params[1],
		D:             params[p-1],
		ReferenceTemp: referenceTemp,
		Variant:       variant,
	}
	if useAmbient {
		coeffs.C = params[2]
	}

	predicted := make([]float64, n)
	for i := range predicted {
		predicted[i] = coeffs.Offset(targets[i], ambients[i])
	}

	result := Result{
		Coefficients: coeffs,
		SampleCount:  n,
	}

	ssRes := sumSquaredResiduals(offsets, predicted)
	result.RSquared = calculateRSquared(offsets, predicted)
	result.AdjustedRSquared = calculateAdjustedRSquared(result.RSquared, float64(n), float64(p))
	result.MeanAbsoluteError = calculateMAE(offsets, predicted)
	result.RootMeanSquaredError = calculateRMSE(offsets, predicted)
	result.AIC = calculateAIC(float64(n), result.RootMeanSquaredError, float64(p))
	result.BIC = calculateBIC(float64(n), result.RootMeanSquaredError, float64(p))
	result.StdErrors = stdErrors(X, ssRes, n, p, useAmbient)

	result.TargetRange = [2]float64{floats.Min(targets), floats.Max(targets)}
	result.AmbientRange = [2]float64{floats.Min(ambients), floats.Max(ambients)}

	return result, nil
}

// stdErrors derives coefficient standard errors from s²·(XᵀX)⁻¹. It returns
// nil when the normal matrix cannot be inverted.
func stdErrors(X *mat.Dense, ssRes float64, n, p int, useAmbient bool) *StdErrors {
	if n <= p {
		return nil
	}

	var xtx, inv mat.Dense
	xtx.Mul(X.T(), X)
	if err := inv.Inverse(&xtx); err != nil {
		return nil
	}

	s2 := ssRes / float64(n-p)
	diag := make([]float64, p)
	for i := range diag {
		diag[i] = math.Sqrt(math.Max(s2*inv.At(i, i), 0))
	}

	se := &StdErrors{A: diag[0], B: diag[1], D: diag[p-1]}
	if useAmbient {
		se.C = diag[2]
	}
	return se
}

// distinctPoints counts distinct design points: distinct targets, or distinct
// (target, ambient) pairs when the ambient term is used
func distinctPoints(targets, ambients []float64, useAmbient bool) int {
	seen := make(map[[2]float64]struct{}, len(targets))
	for i := range targets {
		key := [2]float64{targets[i], 0}
		if useAmbient {
			key[1] = ambients[i]
		}
		seen[key] = struct{}{}
	}
	return len(seen)
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Fitter wraps Fit with logging of the fitted parameters
type Fitter struct {
	logger        *zap.SugaredLogger
	referenceTemp float64
}

// NewFitter creates a fitter for the given ambient reference temperature
func NewFitter(logger *zap.SugaredLogger, referenceTemp float64) *Fitter {
	return &Fitter{
		logger:        logger,
		referenceTemp: referenceTemp,
	}
}

// Fit fits the requested variant and logs the outcome
func (f *Fitter) Fit(stats []types.StepStatistics, useAmbient bool) (Result, error) {
	res, err := Fit(stats, f.referenceTemp, useAmbient)
	if err != nil {
		f.logger.Errorf("error fitting correction parameters from %d steps: %v", len(stats), err)
		return res, err
	}

	c := res.Coefficients
	se := res.StdErrors
	if se == nil {
		nan := math.NaN()
		se = &StdErrors{A: nan, B: nan, C: nan, D: nan}
	}
	if c.UsesAmbient() {
		f.logger.Infof("fitted parameters with ambient temperature correction (reference %.1f°C):", c.ReferenceTemp)
	} else {
		f.logger.Info("fitted parameters without ambient temperature correction:")
	}
	f.logger.Infof("  a = %.6f ± %.6f", c.A, se.A)
	f.logger.Infof("  b = %.6f ± %.6f", c.B, se.B)
	if c.UsesAmbient() {
		f.logger.Infof("  c = %.6f ± %.6f", c.C, se.C)
	}
	f.logger.Infof("  d = %.6f ± %.6f", c.D, se.D)
	f.logger.Infof("  R² = %.4f, RMSE = %.4f°C over %d steps", res.RSquared, res.RootMeanSquaredError, res.SampleCount)

	return res, nil
}
