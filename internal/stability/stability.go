// Package stability computes steady-state statistics for one step of a
// thermal-control recording.
package stability

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/chrissnell/thermoffset/internal/types"
)

const (
	// StableFraction is the leading share of a step excluded from the stable region
	StableFraction = 0.8

	// StabilityThreshold is how close, in °C, the liquid must be to its
	// steady-state mean to count as stable
	StabilityThreshold = 0.5

	// MinSamples is the shortest slice that still yields a stable region
	MinSamples = 5
)

// StableStart returns the index at which the stable region of an n-sample
// slice begins
func StableStart(n int) int {
	return int(math.Round(StableFraction * float64(n)))
}

// Analyze computes the steady-state statistics of one step slice
func Analyze(slice types.StepSlice) (types.StepStatistics, error) {
	n := slice.Len()
	if n == 0 {
		return types.StepStatistics{}, fmt.Errorf("%w: step %d is empty", types.ErrData, slice.Index)
	}
	if n < MinSamples {
		return types.StepStatistics{}, fmt.Errorf("%w: step %d has %d samples, need at least %d",
			types.ErrData, slice.Index, n, MinSamples)
	}

	start := StableStart(n)
	if start >= n {
		return types.StepStatistics{}, fmt.Errorf("%w: step %d has an empty stable region", types.ErrData, slice.Index)
	}

	targets := make([]float64, n)
	for i, r := range slice.Readings {
		targets[i] = r.TargetTemp
	}

	stable := slice.Readings[start:]
	holder := make([]float64, len(stable))
	liquid := make([]float64, len(stable))
	ambient := make([]float64, len(stable))
	for i, r := range stable {
		holder[i] = r.HolderTemp
		liquid[i] = r.LiquidTemp
		ambient[i] = r.AmbientTemp
	}

	st := types.StepStatistics{
		TargetTemp:  stat.Mean(targets, nil),
		SampleCount: n,
	}
	st.HolderMean, st.HolderStd = meanStd(holder)
	st.LiquidMean, st.LiquidStd = meanStd(liquid)
	st.AmbientMean, st.AmbientStd = meanStd(ambient)

	st.HolderOffset = st.HolderMean - st.TargetTemp
	st.LiquidOffset = st.LiquidMean - st.TargetTemp

	st.TimeToStability, st.StabilityDetected = timeToStability(slice, start, st.LiquidMean)

	return st, nil
}

// timeToStability returns the elapsed time of the first sample ahead of the
// stable region whose liquid reading is within StabilityThreshold of
// liquidMean. When none qualifies it falls back to half the slice duration.
func timeToStability(slice types.StepSlice, stableStart int, liquidMean float64) (time.Duration, bool) {
	t0 := slice.Readings[0].Timestamp
	for i := 0; i < stableStart; i++ {
		if math.Abs(slice.Readings[i].LiquidTemp-liquidMean) < StabilityThreshold {
			return slice.Readings[i].Timestamp.Sub(t0), true
		}
	}
	return slice.Duration() / 2, false
}

// meanStd returns the mean and sample standard deviation of x. The deviation
// of a single sample is reported as 0.
func meanStd(x []float64) (float64, float64) {
	if len(x) < 2 {
		return stat.Mean(x, nil), 0
	}
	return stat.MeanStdDev(x, nil)
}

// Analyzer wraps Analyze with a per-step log summary
type Analyzer struct {
	logger *zap.SugaredLogger
}

// NewAnalyzer creates an analyzer that reports through logger
func NewAnalyzer(logger *zap.SugaredLogger) *Analyzer {
	return &Analyzer{logger: logger}
}

// Analyze computes the statistics of slice and logs them
func (a *Analyzer) Analyze(slice types.StepSlice) (types.StepStatistics, error) {
	st, err := Analyze(slice)
	if err != nil {
		return st, err
	}

	a.logger.Infow("step statistics",
		"step", slice.Index+1,
		"target", fmt.Sprintf("%.2f°C", st.TargetTemp),
		"holder", fmt.Sprintf("%.2f ± %.3f°C (offset %.2f°C)", st.HolderMean, st.HolderStd, st.HolderOffset),
		"liquid", fmt.Sprintf("%.2f ± %.3f°C (offset %.2f°C)", st.LiquidMean, st.LiquidStd, st.LiquidOffset),
		"ambient", fmt.Sprintf("%.2f ± %.3f°C", st.AmbientMean, st.AmbientStd),
		"time_to_stability", st.TimeToStability,
	)
	if !st.StabilityDetected {
		a.logger.Debugf("step %d: liquid never settled ahead of the stable region, using half the step duration", slice.Index+1)
	}

	return st, nil
}
