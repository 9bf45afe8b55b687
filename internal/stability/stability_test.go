package stability

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/thermoffset/internal/log"
	"github.com/chrissnell/thermoffset/internal/types"
)

var epoch = time.Date(2025, 1, 14, 10, 30, 0, 0, time.UTC)

func sliceFrom(liquid func(i int) float64, n int, target float64) types.StepSlice {
	readings := make([]types.Reading, n)
	for i := range readings {
		readings[i] = types.Reading{
			Timestamp:   epoch.Add(time.Duration(i) * 10 * time.Second),
			HolderTemp:  target + 0.2,
			LiquidTemp:  liquid(i),
			TargetTemp:  target,
			AmbientTemp: 21.5,
		}
	}
	return types.StepSlice{Readings: readings}
}

func TestAnalyzeConstantLiquid(t *testing.T) {
	const liquidTemp = 23.7
	st, err := Analyze(sliceFrom(func(int) float64 { return liquidTemp }, 50, 25))
	require.NoError(t, err)

	assert.InDelta(t, 25.0, st.TargetTemp, 1e-12)
	assert.InDelta(t, liquidTemp-25.0, st.LiquidOffset, 1e-9)
	assert.InDelta(t, 0, st.LiquidStd, 1e-9)
	assert.InDelta(t, 0.2, st.HolderOffset, 1e-9)
	assert.InDelta(t, 21.5, st.AmbientMean, 1e-9)
	assert.Equal(t, time.Duration(0), st.TimeToStability)
	assert.True(t, st.StabilityDetected)
	assert.Equal(t, 50, st.SampleCount)
}

func TestAnalyzeExponentialApproach(t *testing.T) {
	// liquid relaxes from 15 towards 24 with a 10-sample time constant
	approach := func(i int) float64 { return 24 - 9*math.Exp(-float64(i)/10) }
	st, err := Analyze(sliceFrom(approach, 100, 25))
	require.NoError(t, err)

	// the stable region covers samples 80..99
	assert.InDelta(t, 24, st.LiquidMean, 0.01)
	assert.Less(t, st.LiquidStd, 0.01)

	// first sample within 0.5°C of the mean: 9*exp(-i/10) < ~0.5 → i = 29
	firstStable := -1
	for i := 0; i < 80; i++ {
		if math.Abs(approach(i)-st.LiquidMean) < StabilityThreshold {
			firstStable = i
			break
		}
	}
	require.NotEqual(t, -1, firstStable)
	assert.Equal(t, time.Duration(firstStable)*10*time.Second, st.TimeToStability)
	assert.True(t, st.StabilityDetected)
}

func TestAnalyzeFallsBackToHalfDuration(t *testing.T) {
	// liquid stays far from its final value until the stable region starts
	step := func(i int) float64 {
		if i < 40 {
			return 10
		}
		return 24
	}
	st, err := Analyze(sliceFrom(step, 50, 25))
	require.NoError(t, err)

	assert.False(t, st.StabilityDetected)
	assert.Equal(t, 49*10*time.Second/2, st.TimeToStability)
}

func TestAnalyzeMinimalSlice(t *testing.T) {
	st, err := Analyze(sliceFrom(func(i int) float64 { return 20 + float64(i) }, 5, 20))
	require.NoError(t, err)

	// round(0.8*5) = 4 leaves a single stable sample
	assert.Equal(t, 4, StableStart(5))
	assert.InDelta(t, 24, st.LiquidMean, 1e-12)
	assert.Equal(t, 0.0, st.LiquidStd)
}

func TestAnalyzeRejectsShortSlices(t *testing.T) {
	for _, n := range []int{0, 1, 4} {
		_, err := Analyze(sliceFrom(func(int) float64 { return 20 }, n, 20))
		assert.True(t, errors.Is(err, types.ErrData), "n=%d", n)
	}
}

func TestStableStart(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{5, 4},
		{10, 8},
		{13, 10},
		{100, 80},
		{103, 82},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StableStart(tt.n), "n=%d", tt.n)
	}
}

func TestAnalyzerLogs(t *testing.T) {
	a := NewAnalyzer(log.Nop())
	st, err := a.Analyze(sliceFrom(func(int) float64 { return 30 }, 20, 30))
	require.NoError(t, err)
	assert.InDelta(t, 0, st.LiquidOffset, 1e-9)
}
