package correction

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/thermoffset/internal/log"
	"github.com/chrissnell/thermoffset/internal/types"
)

var defaultCoeffs = types.ModelCoefficients{
	A:             0.0039,
	B:             0.5645,
	C:             0,
	D:             4.8536,
	ReferenceTemp: 20,
	Variant:       types.VariantQuadratic,
}

func TestCorrectTargetExample(t *testing.T) {
	res := CorrectTarget(25, 20, defaultCoeffs, 20)
	require.Equal(t, types.BranchExact, res.Branch)

	// 0.0039x² + 1.5645x - 20.1464 = 0
	a, b, c := 0.0039, 1.5645, 4.8536-25
	sq := math.Sqrt(b*b - 4*a*c)
	r1, r2 := (-b+sq)/(2*a), (-b-sq)/(2*a)

	closest := r1
	if math.Abs(r2-25) < math.Abs(r1-25) {
		closest = r2
	}
	assert.InDelta(t, closest, res.Target, 1e-9)
	assert.InDelta(t, 12.49, res.Target, 0.01)
	assert.InDelta(t, 25, Forward(defaultCoeffs, 20, res.Target, 20), 1e-9)
}

func TestCorrectTargetIsLeftInverse(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	checked := 0

	for i := 0; i < 500; i++ {
		coeffs := types.ModelCoefficients{
			A: (rng.Float64() - 0.5) * 0.02,
			B: (rng.Float64() - 0.5) * 1.5,
			C: (rng.Float64() - 0.5) * 0.6,
			D: (rng.Float64() - 0.5) * 20,
		}
		ref := 15 + rng.Float64()*10
		ambient := 10 + rng.Float64()*20
		desired := rng.Float64() * 60

		B := coeffs.B + 1
		C := coeffs.D + coeffs.C*(ambient-ref) - desired
		if B*B-4*coeffs.A*C < 0 {
			continue
		}

		res := CorrectTarget(desired, ambient, coeffs, ref)
		require.Equal(t, types.BranchExact, res.Branch)
		got := Forward(coeffs, ref, res.Target, ambient)
		assert.InDelta(t, desired, got, 1e-6*math.Max(1, math.Abs(res.Target)), "case %d: %+v", i, coeffs)
		checked++
	}
	assert.Greater(t, checked, 100)
}

func TestCorrectTargetBranches(t *testing.T) {
	tests := []struct {
		name       string
		coeffs     types.ModelCoefficients
		desired    float64
		ambient    float64
		wantBranch types.Branch
		wantTarget float64
	}{
		{
			name:       "no real root uses the linear solution",
			coeffs:     types.ModelCoefficients{A: 1, B: 0, D: 10},
			desired:    0,
			wantBranch: types.BranchLinearFallback,
			wantTarget: -10,
		},
		{
			name:       "no real root and no linear term",
			coeffs:     types.ModelCoefficients{A: 1, B: -1, D: 10},
			desired:    7,
			wantBranch: types.BranchFailsafe,
			wantTarget: 7,
		},
		{
			name:       "linear model",
			coeffs:     types.ModelCoefficients{A: 0, B: 0.5, D: 2},
			desired:    20,
			wantBranch: types.BranchExact,
			wantTarget: 12,
		},
		{
			name:       "degenerate model",
			coeffs:     types.ModelCoefficients{A: 0, B: -1, D: 2},
			desired:    20,
			wantBranch: types.BranchFailsafe,
			wantTarget: 20,
		},
		{
			name:       "ambient term shifts the set point",
			coeffs:     types.ModelCoefficients{A: 0, B: 0, C: 0.5, D: -1},
			desired:    30,
			ambient:    24,
			wantBranch: types.BranchExact,
			wantTarget: 29,
		},
		{
			name:       "proximity picks the nearer root",
			coeffs:     types.ModelCoefficients{A: -0.01, B: 0},
			desired:    16,
			wantBranch: types.BranchExact,
			wantTarget: 20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := CorrectTarget(tt.desired, tt.ambient, tt.coeffs, 20)
			assert.Equal(t, tt.wantBranch, res.Branch)
			assert.InDelta(t, tt.wantTarget, res.Target, 1e-9)
			assert.Equal(t, tt.wantBranch != types.BranchExact, res.Branch.Degraded())
		})
	}
}

func TestCorrectTargetTieTakesPositiveRoot(t *testing.T) {
	// x² - 10x + 24 = 0 has roots 4 and 6, equidistant from 5
	coeffs := types.ModelCoefficients{A: 1, B: -11, D: 29}
	res := CorrectTarget(5, 20, coeffs, 20)
	assert.Equal(t, types.BranchExact, res.Branch)
	assert.InDelta(t, 6, res.Target, 1e-12)
}

func TestCorrectorBounds(t *testing.T) {
	coeffs := types.ModelCoefficients{A: -0.01, ReferenceTemp: 20}
	c := NewCorrector(log.Nop(), coeffs)

	assert.InDelta(t, 20, c.Correct(16, 20).Target, 1e-9)

	bounded, err := c.WithBounds(50, 100)
	require.NoError(t, err)
	res := bounded.Correct(16, 20)
	assert.Equal(t, types.BranchExact, res.Branch)
	assert.InDelta(t, 80, res.Target, 1e-9)

	// no root inside the bounds: proximity decides
	narrow, err := c.WithBounds(30, 40)
	require.NoError(t, err)
	assert.InDelta(t, 20, narrow.Correct(16, 20).Target, 1e-9)

	_, err = c.WithBounds(10, 0)
	assert.True(t, errors.Is(err, types.ErrConfig))
	assert.Equal(t, coeffs, c.Coefficients())
}

func TestCorrectorLogsDegradedBranch(t *testing.T) {
	c := NewCorrector(log.Nop(), types.ModelCoefficients{A: 1, B: -1, D: 10, ReferenceTemp: 20})
	res := c.Correct(7, 20)
	assert.Equal(t, types.BranchFailsafe, res.Branch)
}

func TestCheckMonotonic(t *testing.T) {
	folding := types.ModelCoefficients{A: -0.01}

	tests := []struct {
		name    string
		coeffs  types.ModelCoefficients
		lo, hi  float64
		wantErr error
	}{
		{"default coefficients", defaultCoeffs, 0, 100, nil},
		{"below the turning point", folding, 0, 40, nil},
		{"across the turning point", folding, 0, 100, ErrNotMonotonic},
		{"ends at the turning point", folding, 10, 50, ErrNotMonotonic},
		{"inverted range", defaultCoeffs, 50, 10, types.ErrConfig},
		{"infinite range", defaultCoeffs, 0, math.Inf(1), types.ErrConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckMonotonic(tt.coeffs, 20, 20, tt.lo, tt.hi)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestForward(t *testing.T) {
	coeffs := types.ModelCoefficients{A: 0.01, B: -0.2, C: 0.5, D: 1, ReferenceTemp: 99}
	// reference argument overrides the one stored in the coefficients
	got := Forward(coeffs, 20, 10, 22)
	assert.InDelta(t, 10+1-2+1+1, got, 1e-12)
}
