package segment

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

// staircase builds len(targets) steps of stepLen readings each, one per second
func staircase(targets []float64, stepLen int) []types.Reading {
	readings := make([]types.Reading, 0, len(targets)*stepLen)
	for _, target := range targets {
		for j := 0; j < stepLen; j++ {
			readings = append(readings, types.Reading{
				Timestamp:   epoch.Add(time.Duration(len(readings)) * time.Second),
				HolderTemp:  target,
				LiquidTemp:  target - 1,
				TargetTemp:  target,
				AmbientTemp: 21,
			})
		}
	}
	return readings
}

func TestSegmentZeroIncrementReturnsWholeSequence(t *testing.T) {
	readings := staircase([]float64{20, 25, 30}, 4)

	slices, err := Segment(readings, types.ExperimentSettings{StartTemp: 20, StopTemp: 30, Increment: 0})
	require.NoError(t, err)
	require.Len(t, slices, 1)
	assert.Equal(t, readings, slices[0].Readings)
}

func TestSegmentStaircase(t *testing.T) {
	tests := []struct {
		name     string
		targets  []float64
		stepLen  int
		settings types.ExperimentSettings
	}{
		{
			name:     "ascending",
			targets:  []float64{20, 25, 30},
			stepLen:  10,
			settings: types.ExperimentSettings{StartTemp: 20, StopTemp: 30, Increment: 5},
		},
		{
			name:     "descending with negative increment",
			targets:  []float64{40, 35, 30, 25},
			stepLen:  37,
			settings: types.ExperimentSettings{StartTemp: 40, StopTemp: 25, Increment: -5},
		},
		{
			name:     "fractional increment",
			targets:  []float64{20, 20.5, 21, 21.5},
			stepLen:  12,
			settings: types.ExperimentSettings{StartTemp: 20, StopTemp: 21.5, Increment: 0.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slices, err := Segment(staircase(tt.targets, tt.stepLen), tt.settings)
			require.NoError(t, err)
			require.Len(t, slices, len(tt.targets))
			for i, s := range slices {
				assert.Equal(t, i, s.Index)
				assert.Equal(t, tt.stepLen, s.Len())
				assert.Equal(t, tt.targets[i], s.Readings[0].TargetTemp)
			}
		})
	}
}

func TestSegmentEndToEndBoundaries(t *testing.T) {
	readings := staircase([]float64{20, 25, 30}, 100)
	settings := types.ExperimentSettings{StartTemp: 20, StopTemp: 30, Increment: 5, StabilizationMinutes: 15}

	expected, err := ExpectedSteps(settings)
	require.NoError(t, err)
	assert.Equal(t, 3, expected)

	res, err := Split(readings, settings)
	require.NoError(t, err)
	assert.Equal(t, ModeChangepoint, res.Mode)
	assert.Equal(t, []int{100, 200}, res.ChangePoints)
	require.Len(t, res.Slices, 3)

	for i, s := range res.Slices {
		assert.Equal(t, readings[i*100:(i+1)*100], s.Readings)
	}
}

func TestSegmentFallsBackToEqualSplit(t *testing.T) {
	// target channel never moves, so no change points are found
	readings := staircase([]float64{20}, 103)
	settings := types.ExperimentSettings{StartTemp: 20, StopTemp: 30, Increment: 5}

	res, err := Split(readings, settings)
	require.NoError(t, err)
	assert.Equal(t, ModeEqualSplit, res.Mode)
	require.Len(t, res.Slices, 3)
	assert.Equal(t, 34, res.Slices[0].Len())
	assert.Equal(t, 34, res.Slices[1].Len())
	assert.Equal(t, 35, res.Slices[2].Len(), "last chunk absorbs the remainder")
}

func TestSegmentDropsShortSlices(t *testing.T) {
	readings := append(staircase([]float64{20}, 5), staircase([]float64{25, 30}, 20)...)
	for i := range readings {
		readings[i].Timestamp = epoch.Add(time.Duration(i) * time.Second)
	}
	settings := types.ExperimentSettings{StartTemp: 20, StopTemp: 30, Increment: 5}

	res, err := Split(readings, settings)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dropped)
	require.Len(t, res.Slices, 2)
	assert.Equal(t, 25.0, res.Slices[0].Readings[0].TargetTemp)
	assert.Equal(t, 0, res.Slices[0].Index)
}

func TestSegmentAllSlicesFilteredIsEmpty(t *testing.T) {
	readings := staircase([]float64{20, 25, 30}, 3)
	slices, err := Segment(readings, types.ExperimentSettings{StartTemp: 20, StopTemp: 30, Increment: 5})
	require.NoError(t, err)
	assert.Empty(t, slices)
}

func TestSegmentErrors(t *testing.T) {
	_, err := Segment(nil, types.DefaultExperimentSettings())
	assert.True(t, errors.Is(err, types.ErrData))

	_, err = ExpectedSteps(types.ExperimentSettings{StartTemp: 0, StopTemp: math.Inf(1), Increment: 1})
	assert.True(t, errors.Is(err, types.ErrConfig))
}

func TestSegmentRejectsRunawayStepCount(t *testing.T) {
	readings := staircase([]float64{20}, 300)

	_, err := Split(readings, types.ExperimentSettings{StartTemp: 5, StopTemp: 50, Increment: 1e-9})
	assert.True(t, errors.Is(err, types.ErrConfig))

	_, err = ExpectedSteps(types.ExperimentSettings{StartTemp: 0, StopTemp: 1e300, Increment: 1})
	assert.True(t, errors.Is(err, types.ErrConfig))
}

func TestSegmentEqualSplitNeverExceedsReadings(t *testing.T) {
	// 5001 expected steps over 300 flat readings
	readings := staircase([]float64{20}, 300)

	res, err := Split(readings, types.ExperimentSettings{StartTemp: 0, StopTemp: 50, Increment: 0.01})
	require.NoError(t, err)
	assert.Equal(t, ModeEqualSplit, res.Mode)
	assert.Equal(t, 5001, res.ExpectedSteps)
	assert.Empty(t, res.Slices)
	assert.Equal(t, 300, res.Dropped)
}

func TestExpectedStepsTolerance(t *testing.T) {
	n, err := ExpectedSteps(types.ExperimentSettings{StartTemp: 0, StopTemp: 0.3, Increment: 0.1})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestSegmenterLogs(t *testing.T) {
	s := NewSegmenter(log.Nop())
	res, err := s.Segment(staircase([]float64{20, 25}, 15), types.ExperimentSettings{StartTemp: 20, StopTemp: 25, Increment: 5})
	require.NoError(t, err)
	assert.Len(t, res.Slices, 2)
}
