package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/thermoffset/internal/experiment"
	"github.com/chrissnell/thermoffset/internal/ingest"
	"github.com/chrissnell/thermoffset/internal/log"
	"github.com/chrissnell/thermoffset/internal/offsetfit"
	"github.com/chrissnell/thermoffset/internal/segment"
	"github.com/chrissnell/thermoffset/internal/types"
)

func trueOffset(t float64) float64 { return 0.01*t*t - 0.1*t + 1 }

// writeRecording writes a staircase recording with stepLen one-second
// samples per target and returns its path
func writeRecording(t *testing.T, dir, name string, targets []float64, stepLen int) string {
	t.Helper()

	var b strings.Builder
	b.WriteString("Time,Holder Temperature,Liquid Temperature,Target Temperature,Room Temperature\n")
	i := 0
	for _, target := range targets {
		for j := 0; j < stepLen; j++ {
			fmt.Fprintf(&b, "%d,%.4f,%.6f,%.2f,21.0\n", i, target+0.1, target+trueOffset(target), target)
			i++
		}
	}

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestAnalyzeExperimentSingleMeasurementFallback(t *testing.T) {
	p := NewPipeline(log.Nop(), ingest.Options{}, 1)

	readings := make([]types.Reading, 8)
	for i := range readings {
		readings[i] = types.Reading{
			Timestamp:  time.Unix(int64(i), 0),
			HolderTemp: 25, LiquidTemp: 24, TargetTemp: 25, AmbientTemp: 21,
		}
	}
	md := experiment.Metadata{Name: "short", Settings: types.ExperimentSettings{StartTemp: 20, StopTemp: 30, Increment: 5}}

	res, err := p.AnalyzeExperiment(md, readings)
	require.NoError(t, err)
	assert.Equal(t, segment.ModeSingle, res.Mode)
	require.Len(t, res.Steps, 1)
	assert.InDelta(t, -1, res.Steps[0].LiquidOffset, 1e-9)
}

func TestAnalyzeExperimentRunawayIncrementUsesDefaults(t *testing.T) {
	p := NewPipeline(log.Nop(), ingest.Options{}, 1)

	readings := make([]types.Reading, 300)
	for i := range readings {
		readings[i] = types.Reading{
			Timestamp:  time.Unix(int64(i), 0),
			HolderTemp: 20, LiquidTemp: 19.5, TargetTemp: 20, AmbientTemp: 21,
		}
	}
	md := experiment.Metadata{Name: "runaway", Settings: types.ExperimentSettings{StartTemp: 5, StopTemp: 50, Increment: 1e-9}}

	res, err := p.AnalyzeExperiment(md, readings)
	require.NoError(t, err)
	assert.Equal(t, types.DefaultExperimentSettings(), res.Metadata.Settings)
	assert.Equal(t, segment.ModeSingle, res.Mode)
	require.Len(t, res.Steps, 1)
	assert.InDelta(t, -0.5, res.Steps[0].LiquidOffset, 1e-9)
}

func TestAnalyzeExperimentNoUsableSteps(t *testing.T) {
	p := NewPipeline(log.Nop(), ingest.Options{}, 1)
	readings := []types.Reading{{Timestamp: time.Unix(0, 0)}, {Timestamp: time.Unix(1, 0)}}

	_, err := p.AnalyzeExperiment(experiment.Metadata{Settings: types.DefaultExperimentSettings()}, readings)
	assert.True(t, errors.Is(err, types.ErrData))
}

func TestAnalyzeAllKeepsOrderAndSkipsFailures(t *testing.T) {
	dir := t.TempDir()
	first := writeRecording(t, dir, "14.01.25_10.30_20.0_35.0_5.0_15.csv", []float64{20, 25, 30, 35}, 40)
	second := writeRecording(t, dir, "15.01.25_09.00_40.0_10.0_10.0_15.csv", []float64{40, 30, 20, 10}, 30)
	missing := filepath.Join(dir, "16.01.25_09.00_20.0_30.0_5.0_15.csv")

	p := NewPipeline(log.Nop(), ingest.Options{}, 2)
	results, err := p.AnalyzeAll(context.Background(), []string{first, missing, second})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, first, results[0].Path)
	assert.Equal(t, second, results[1].Path)
	assert.Equal(t, segment.ModeChangepoint, results[0].Mode)
	require.Len(t, results[0].Steps, 4)
	require.Len(t, results[1].Steps, 4)
	assert.InDelta(t, 40, results[1].Steps[0].TargetTemp, 1e-9)
	assert.InDelta(t, trueOffset(25), results[0].Steps[1].LiquidOffset, 1e-5)

	assert.Len(t, Aggregate(results), 8)
}

func TestAnalyzeAllFailsWhenNothingSucceeds(t *testing.T) {
	p := NewPipeline(log.Nop(), ingest.Options{}, 2)
	_, err := p.AnalyzeAll(context.Background(), []string{"/nonexistent/a.csv", "/nonexistent/b.csv"})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.AnalyzeAll(ctx, []string{"/nonexistent/a.csv"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunFitsCombinedSteps(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeRecording(t, dir, "14.01.25_10.30_20.0_35.0_5.0_15.csv", []float64{20, 25, 30, 35}, 40),
		writeRecording(t, dir, "15.01.25_09.00_40.0_10.0_10.0_15.csv", []float64{40, 30, 20, 10}, 30),
	}

	p := NewPipeline(log.Nop(), ingest.Options{}, 2)
	results, err := p.AnalyzeAll(context.Background(), paths)
	require.NoError(t, err)

	current := types.ModelCoefficients{A: 0.0039, B: 0.5645, D: 4.8536, ReferenceTemp: 20, Variant: types.VariantQuadratic}
	report, err := p.Run(results, current, FitOptions{ReferenceTemp: offsetfit.DefaultReferenceTemp})
	require.NoError(t, err)

	c := report.Fit.Coefficients
	assert.InDelta(t, 0.01, c.A, 1e-6)
	assert.InDelta(t, -0.1, c.B, 1e-4)
	assert.InDelta(t, 1, c.D, 1e-3)
	assert.InDelta(t, 1, report.Fit.RSquared, 1e-6)
	assert.Equal(t, 8, report.Fit.SampleCount)
	assert.Len(t, report.Changes, 4)
	assert.Equal(t, current, report.Previous)
	require.NotNil(t, report.Interpolation)
	assert.Equal(t, offsetfit.InterpCubic, report.Interpolation.Kind)
	assert.Len(t, report.Steps(), 8)
}

func TestFitStatsAutoSelect(t *testing.T) {
	var stats []types.StepStatistics
	for _, target := range []float64{10, 20, 30, 40, 50} {
		stats = append(stats, types.StepStatistics{TargetTemp: target, LiquidOffset: trueOffset(target), AmbientMean: 21})
	}

	// a constant ambient temperature leaves only the quadratic model
	report, err := FitStats(log.Nop(), stats, types.ModelCoefficients{}, FitOptions{ReferenceTemp: 20, AutoSelect: true})
	require.NoError(t, err)
	require.NotNil(t, report.Comparison)
	assert.Nil(t, report.Comparison.Ambient)
	assert.Equal(t, types.VariantQuadratic, report.Fit.Coefficients.Variant)
}

func TestFitStatsInsufficientData(t *testing.T) {
	stats := []types.StepStatistics{{TargetTemp: 20, LiquidOffset: 1}, {TargetTemp: 30, LiquidOffset: 2}}
	_, err := FitStats(log.Nop(), stats, types.ModelCoefficients{}, FitOptions{ReferenceTemp: 20})
	assert.True(t, errors.Is(err, types.ErrInsufficientData))
}
