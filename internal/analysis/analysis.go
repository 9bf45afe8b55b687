// Package analysis runs recordings through segmentation and steady-state
// analysis and fits the offset model to the collected step statistics.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chrissnell/thermoffset/internal/experiment"
	"github.com/chrissnell/thermoffset/internal/ingest"
	"github.com/chrissnell/thermoffset/internal/segment"
	"github.com/chrissnell/thermoffset/internal/stability"
	"github.com/chrissnell/thermoffset/internal/types"
)

// DefaultWorkers bounds how many recordings are analyzed at once
const DefaultWorkers = 4

// ExperimentResult is the analysis of a single recording
type ExperimentResult struct {
	Path         string                 `json:"path" msgpack:"path"`
	Metadata     experiment.Metadata    `json:"metadata" msgpack:"metadata"`
	Mode         segment.Mode           `json:"mode" msgpack:"mode"`
	Steps        []types.StepStatistics `json:"steps" msgpack:"steps"`
	SkippedSteps int                    `json:"skipped_steps" msgpack:"skipped_steps"`
	DroppedRows  int                    `json:"dropped_rows" msgpack:"dropped_rows"`
	ReadingCount int                    `json:"reading_count" msgpack:"reading_count"`
}

// Pipeline analyzes recordings
type Pipeline struct {
	logger    *zap.SugaredLogger
	loader    *ingest.Loader
	segmenter *segment.Segmenter
	analyzer  *stability.Analyzer
	workers   int
}

// NewPipeline creates a pipeline that reads recordings with opts and runs up
// to workers analyses concurrently
func NewPipeline(logger *zap.SugaredLogger, opts ingest.Options, workers int) *Pipeline {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pipeline{
		logger:    logger,
		loader:    ingest.NewLoader(logger.Named("ingest"), opts),
		segmenter: segment.NewSegmenter(logger.Named("segment")),
		analyzer:  stability.NewAnalyzer(logger.Named("stability")),
		workers:   workers,
	}
}

// AnalyzeFile reads the recording at path, takes its settings from the file
// name and analyzes it
func (p *Pipeline) AnalyzeFile(path string) (ExperimentResult, error) {
	md, err := experiment.ParseFilename(path)
	if err != nil {
		if !errors.Is(err, types.ErrConfig) {
			return ExperimentResult{}, err
		}
		p.logger.Warnf("%v", err)
	}
	p.logger.Infof("%s: %s", md.Name, md.Settings)

	rec, err := p.loader.Load(path)
	if err != nil {
		return ExperimentResult{}, err
	}

	res, err := p.AnalyzeExperiment(md, rec.Readings)
	res.Path = path
	res.DroppedRows = rec.DroppedRows
	return res, err
}

// AnalyzeExperiment segments readings and computes the statistics of each
// step. Steps that cannot be analyzed are skipped. When segmentation keeps
// no slice the whole recording is analyzed as a single measurement.
func (p *Pipeline) AnalyzeExperiment(md experiment.Metadata, readings []types.Reading) (ExperimentResult, error) {
	res := ExperimentResult{
		Metadata:     md,
		ReadingCount: len(readings),
	}

	seg, err := p.segmenter.Segment(readings, md.Settings)
	if errors.Is(err, types.ErrConfig) {
		p.logger.Warnf("%s: %v, using defaults %s", md.Name, err, types.DefaultExperimentSettings())
		md.Settings = types.DefaultExperimentSettings()
		res.Metadata = md
		seg, err = p.segmenter.Segment(readings, md.Settings)
	}
	if err != nil {
		return res, err
	}
	res.Mode = seg.Mode

	slices := seg.Slices
	if len(slices) == 0 {
		p.logger.Warnf("%s: no steps survived segmentation, treating the recording as a single measurement", md.Name)
		res.Mode = segment.ModeSingle
		slices = []types.StepSlice{{Index: 0, Readings: readings}}
	}

	res.Steps = make([]types.StepStatistics, 0, len(slices))
	for _, slice := range slices {
		st, err := p.analyzer.Analyze(slice)
		if err != nil {
			if !errors.Is(err, types.ErrData) {
				return res, err
			}
			p.logger.Warnf("%s: skipping step %d: %v", md.Name, slice.Index+1, err)
			res.SkippedSteps++
			continue
		}
		res.Steps = append(res.Steps, st)
	}

	if len(res.Steps) == 0 {
		return res, fmt.Errorf("%w: %s yielded no usable steps", types.ErrData, md.Name)
	}
	return res, nil
}

// AnalyzeAll analyzes the recordings at paths concurrently. Results keep the
// order of paths. A recording that fails is logged and left out; an error is
// returned only when the context is cancelled or no recording succeeds.
func (p *Pipeline) AnalyzeAll(ctx context.Context, paths []string) ([]ExperimentResult, error) {
	results := make([]*ExperimentResult, len(paths))

	var mu sync.Mutex
	var failures []error

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := p.AnalyzeFile(path)
			if err != nil {
				p.logger.Errorf("error analyzing %s: %v", path, err)
				mu.Lock()
				failures = append(failures, fmt.Errorf("%s: %w", path, err))
				mu.Unlock()
				return nil
			}
			results[i] = &res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]ExperimentResult, 0, len(paths))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	if len(out) == 0 && len(paths) > 0 {
		return nil, fmt.Errorf("no recording could be analyzed: %w", errors.Join(failures...))
	}

	p.logger.Infof("analyzed %d of %d recordings", len(out), len(paths))
	return out, nil
}

// Aggregate collects the step statistics of every experiment into one list
func Aggregate(results []ExperimentResult) []types.StepStatistics {
	var n int
	for _, r := range results {
		n += len(r.Steps)
	}
	stats := make([]types.StepStatistics, 0, n)
	for _, r := range results {
		stats = append(stats, r.Steps...)
	}
	return stats
}
