// Package correction inverts the liquid offset model: given a desired liquid
// temperature and the ambient temperature it computes the holder set point
// that produces it.
//
// The forward model is liquid = target + offset(target, ambient). Solving it
// for target gives
//
//	a*x² + (b+1)*x + (d + c*(ambient - ref) - desired) = 0
package correction

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/chrissnell/thermoffset/internal/types"
)

// ErrNotMonotonic is returned when the forward model folds back on itself
// within an operating range, so a desired liquid temperature has more than
// one valid set point.
var ErrNotMonotonic = errors.New("forward model is not monotonic")

// Forward returns the liquid temperature the model predicts for a set point
func Forward(coeffs types.ModelCoefficients, referenceTemp, target, ambient float64) float64 {
	c := coeffs
	c.ReferenceTemp = referenceTemp
	return target + c.Offset(target, ambient)
}

// CorrectTarget computes the set point that yields desired under ambient.
// A model without a quadratic term (A == 0) is solved as a linear equation
// and still reported as BranchExact.
func CorrectTarget(desired, ambient float64, coeffs types.ModelCoefficients, referenceTemp float64) types.CorrectionResult {
	return solve(desired, ambient, coeffs, referenceTemp, nil)
}

type bounds struct {
	lo, hi float64
}

func (b *bounds) contains(x float64) bool {
	return x >= b.lo && x <= b.hi
}

func solve(desired, ambient float64, coeffs types.ModelCoefficients, referenceTemp float64, within *bounds) types.CorrectionResult {
	a := coeffs.A
	B := coeffs.B + 1
	C := coeffs.D + coeffs.C*(ambient-referenceTemp) - desired

	failsafe := types.CorrectionResult{Target: desired, Branch: types.BranchFailsafe}

	if a == 0 {
		if B == 0 {
			return failsafe
		}
		x := -C / B
		if !isFinite(x) {
			return failsafe
		}
		return types.CorrectionResult{Target: x, Branch: types.BranchExact}
	}

	disc := B*B - 4*a*C
	if disc < 0 || math.IsNaN(disc) {
		if B == 0 {
			return failsafe
		}
		x := -C / B
		if !isFinite(x) {
			return failsafe
		}
		return types.CorrectionResult{Target: x, Branch: types.BranchLinearFallback}
	}

	roots := make([]float64, 0, 2)
	for _, r := range quadraticRoots(a, B, C, disc) {
		if isFinite(r) {
			roots = append(roots, r)
		}
	}

	if within != nil {
		inside := roots[:0:0]
		for _, r := range roots {
			if within.contains(r) {
				inside = append(inside, r)
			}
		}
		if len(inside) > 0 {
			roots = inside
		}
	}

	if len(roots) == 0 {
		return failsafe
	}

	best := roots[0]
	for _, r := range roots[1:] {
		if math.Abs(r-desired) < math.Abs(best-desired) {
			best = r
		}
	}
	return types.CorrectionResult{Target: best, Branch: types.BranchExact}
}

// quadraticRoots returns the (-B+√Δ)/2a root followed by the (-B-√Δ)/2a root,
// computed without cancellation between B and √Δ
func quadraticRoots(a, B, C, disc float64) [2]float64 {
	sq := math.Sqrt(disc)
	if B == 0 {
		return [2]float64{sq / (2 * a), -sq / (2 * a)}
	}

	q := -0.5 * (B + math.Copysign(sq, B))
	if B > 0 {
		// q/a is the -√Δ root
		return [2]float64{C / q, q / a}
	}
	return [2]float64{q / a, C / q}
}

// CheckMonotonic verifies that the forward model is strictly monotonic over
// the set point range [lo, hi] at the given ambient temperature. Its
// derivative 2a*t + b + 1 is linear in t, so checking both ends suffices.
func CheckMonotonic(coeffs types.ModelCoefficients, referenceTemp, ambient, lo, hi float64) error {
	if !isFinite(lo) || !isFinite(hi) || lo > hi {
		return fmt.Errorf("%w: invalid operating range [%v, %v]", types.ErrConfig, lo, hi)
	}
	if !isFinite(referenceTemp) || !isFinite(ambient) {
		return fmt.Errorf("%w: non-finite reference or ambient temperature", types.ErrConfig)
	}

	slope := func(t float64) float64 { return 2*coeffs.A*t + coeffs.B + 1 }
	sLo, sHi := slope(lo), slope(hi)

	if sLo == 0 || sHi == 0 || (sLo > 0) != (sHi > 0) {
		turn := math.NaN()
		if coeffs.A != 0 {
			turn = -(coeffs.B + 1) / (2 * coeffs.A)
		}
		return fmt.Errorf("%w over [%.2f, %.2f]°C: slope %.4f at %.2f°C, %.4f at %.2f°C, turning point %.2f°C",
			ErrNotMonotonic, lo, hi, sLo, lo, sHi, hi, turn)
	}
	return nil
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Corrector applies a fixed set of coefficients to correction requests and
// reports reduced-confidence results through its logger
type Corrector struct {
	coeffs        types.ModelCoefficients
	referenceTemp float64
	bounds        *bounds
	logger        *zap.SugaredLogger
}

// NewCorrector creates a corrector for coeffs. The reference temperature is
// taken from the coefficients.
func NewCorrector(logger *zap.SugaredLogger, coeffs types.ModelCoefficients) *Corrector {
	return &Corrector{
		coeffs:        coeffs,
		referenceTemp: coeffs.ReferenceTemp,
		logger:        logger,
	}
}

// WithBounds restricts root selection to set points in [lo, hi]. Roots
// outside the range are only used when no root lies inside it.
func (c *Corrector) WithBounds(lo, hi float64) (*Corrector, error) {
	if !isFinite(lo) || !isFinite(hi) || lo > hi {
		return nil, fmt.Errorf("%w: invalid set point bounds [%v, %v]", types.ErrConfig, lo, hi)
	}
	nc := *c
	nc.bounds = &bounds{lo: lo, hi: hi}
	return &nc, nil
}

// Coefficients returns the coefficients the corrector applies
func (c *Corrector) Coefficients() types.ModelCoefficients {
	return c.coeffs
}

// Correct computes the set point for desired under ambient
func (c *Corrector) Correct(desired, ambient float64) types.CorrectionResult {
	res := solve(desired, ambient, c.coeffs, c.referenceTemp, c.bounds)

	if res.Branch.Degraded() {
		c.logger.Warnw("reduced-confidence correction",
			"branch", res.Branch,
			"desired", desired,
			"ambient", ambient,
			"target", res.Target,
		)
	} else {
		c.logger.Debugf("corrected target %.2f°C -> %.2f°C (ambient %.1f°C)", desired, res.Target, ambient)
	}
	if c.bounds != nil && !c.bounds.contains(res.Target) {
		c.logger.Warnf("corrected target %.2f°C lies outside the operating range [%.1f, %.1f]°C",
			res.Target, c.bounds.lo, c.bounds.hi)
	}

	return res
}
