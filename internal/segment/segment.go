// Package segment splits a thermal-control recording into one slice per
// commanded set point.
package segment

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/chrissnell/thermoffset/internal/types"
)

const (
	// ChangeThreshold is the minimum jump in the target channel, in °C, that
	// counts as a set-point change
	ChangeThreshold = 0.1

	// MinSliceLen is the shortest slice kept; anything shorter is noise
	MinSliceLen = 10

	// floorTolerance absorbs floating point error in |stop-start|/increment
	floorTolerance = 1e-9

	// maxSteps bounds the step count derived from the settings
	maxSteps = 1 << 20
)

// Mode describes how a recording was segmented
type Mode string

const (
	ModeSingle      Mode = "single"
	ModeChangepoint Mode = "changepoint"
	ModeEqualSplit  Mode = "equal-split"
)

// Result is the outcome of segmenting one recording
type Result struct {
	Slices        []types.StepSlice
	Mode          Mode
	ExpectedSteps int
	ChangePoints  []int
	Dropped       int
}

// Segment partitions readings into step slices using the experiment settings.
// The returned slices are in temporal order. An empty result means every slice
// was filtered out and the caller should treat the recording as a single
// measurement.
func Segment(readings []types.Reading, settings types.ExperimentSettings) ([]types.StepSlice, error) {
	res, err := Split(readings, settings)
	if err != nil {
		return nil, err
	}
	return res.Slices, nil
}

// Split is Segment with the detection details attached
func Split(readings []types.Reading, settings types.ExperimentSettings) (Result, error) {
	n := len(readings)
	if n == 0 {
		return Result{}, fmt.Errorf("%w: no readings to segment", types.ErrData)
	}

	if settings.Increment == 0 {
		return Result{
			Slices:        []types.StepSlice{{Index: 0, Readings: readings}},
			Mode:          ModeSingle,
			ExpectedSteps: 1,
		}, nil
	}

	expected, err := ExpectedSteps(settings)
	if err != nil {
		return Result{}, err
	}

	changePoints := ChangePoints(readings)

	var bounds []int
	mode := ModeChangepoint
	if len(changePoints) >= expected-1 {
		bounds = make([]int, 0, len(changePoints)+2)
		bounds = append(bounds, 0)
		bounds = append(bounds, changePoints...)
		bounds = append(bounds, n)
	} else {
		mode = ModeEqualSplit
		bounds = equalBounds(n, min(expected, n))
	}

	res := Result{
		Mode:          mode,
		ExpectedSteps: expected,
		ChangePoints:  changePoints,
	}

	for i := 0; i < len(bounds)-1; i++ {
		start, end := bounds[i], bounds[i+1]
		if end <= start {
			continue
		}
		if end-start < MinSliceLen {
			res.Dropped++
			continue
		}
		res.Slices = append(res.Slices, types.StepSlice{
			Index:    len(res.Slices),
			Readings: readings[start:end],
		})
	}

	return res, nil
}

// ExpectedSteps returns the number of set points implied by the settings.
// Settings that imply more than maxSteps set points are a config error.
func ExpectedSteps(settings types.ExperimentSettings) (int, error) {
	if settings.Increment == 0 {
		return 1, nil
	}

	ratio := math.Abs((settings.StopTemp - settings.StartTemp) / settings.Increment)
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return 0, fmt.Errorf("%w: cannot derive step count from start=%v stop=%v increment=%v",
			types.ErrConfig, settings.StartTemp, settings.StopTemp, settings.Increment)
	}

	if ratio >= maxSteps {
		return 0, fmt.Errorf("%w: start=%v stop=%v increment=%v implies too many steps",
			types.ErrConfig, settings.StartTemp, settings.StopTemp, settings.Increment)
	}

	return int(math.Floor(ratio+floorTolerance)) + 1, nil
}

// ChangePoints returns the indices where the target channel jumps by more
// than ChangeThreshold relative to the previous sample
func ChangePoints(readings []types.Reading) []int {
	var points []int
	for i := 1; i < len(readings); i++ {
		if math.Abs(readings[i].TargetTemp-readings[i-1].TargetTemp) > ChangeThreshold {
			points = append(points, i)
		}
	}
	return points
}

// equalBounds cuts n samples into parts contiguous chunks; the last chunk
// absorbs the remainder. parts must not exceed n.
func equalBounds(n, parts int) []int {
	size := n / parts
	bounds := make([]int, 0, parts+1)
	for i := 0; i < parts; i++ {
		bounds = append(bounds, i*size)
	}
	return append(bounds, n)
}

// Segmenter wraps Split with logging of the detection outcome
type Segmenter struct {
	logger *zap.SugaredLogger
}

// NewSegmenter creates a segmenter that reports through logger
func NewSegmenter(logger *zap.SugaredLogger) *Segmenter {
	return &Segmenter{logger: logger}
}

// Segment splits readings and logs how the split was made
func (s *Segmenter) Segment(readings []types.Reading, settings types.ExperimentSettings) (Result, error) {
	res, err := Split(readings, settings)
	if err != nil {
		return res, err
	}

	switch res.Mode {
	case ModeChangepoint:
		s.logger.Infof("detected %d temperature changes in the data", len(res.ChangePoints))
	case ModeEqualSplit:
		s.logger.Infof("could not detect enough temperature changes (%d of %d), splitting data into %d equal parts",
			len(res.ChangePoints), res.ExpectedSteps-1, res.ExpectedSteps)
	case ModeSingle:
		s.logger.Debugf("increment is 0, treating %d readings as a single measurement", len(readings))
	}

	if res.Dropped > 0 {
		s.logger.Warnf("dropped %d slices shorter than %d samples", res.Dropped, MinSliceLen)
	}

	for _, slice := range res.Slices {
		s.logger.Debugf("step %d: average target temp = %.2f°C, %d data points",
			slice.Index+1, meanTarget(slice), slice.Len())
	}

	return res, nil
}

func meanTarget(slice types.StepSlice) float64 {
	if slice.Len() == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, r := range slice.Readings {
		sum += r.TargetTemp
	}
	return sum / float64(slice.Len())
}
