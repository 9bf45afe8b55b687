package analysis

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/thermoffset/internal/offsetfit"
	"github.com/chrissnell/thermoffset/internal/types"
)

// FitOptions selects how the offset model is fit
type FitOptions struct {
	ReferenceTemp float64
	UseAmbient    bool
	// AutoSelect fits both variants and keeps the one with the lower AIC
	AutoSelect bool
}

// Report is the outcome of fitting the offset model to analyzed experiments
type Report struct {
	GeneratedAt   time.Time                     `json:"generated_at" msgpack:"generated_at"`
	Experiments   []ExperimentResult            `json:"experiments" msgpack:"experiments"`
	Fit           offsetfit.Result              `json:"fit" msgpack:"fit"`
	Comparison    *offsetfit.Comparison         `json:"comparison,omitempty" msgpack:"comparison,omitempty"`
	Interpolation *offsetfit.InterpolationModel `json:"interpolation,omitempty" msgpack:"interpolation,omitempty"`
	Previous      types.ModelCoefficients       `json:"previous" msgpack:"previous"`
	Changes       []offsetfit.ParameterChange   `json:"changes" msgpack:"changes"`

	stats []types.StepStatistics
}

// Steps returns every step statistic in the report
func (r *Report) Steps() []types.StepStatistics {
	if r.stats != nil {
		return r.stats
	}
	return Aggregate(r.Experiments)
}

// FitStats fits the offset model to stats and compares the outcome against
// the coefficients currently in use
func FitStats(logger *zap.SugaredLogger, stats []types.StepStatistics, current types.ModelCoefficients, opts FitOptions) (Report, error) {
	report := Report{
		GeneratedAt: time.Now().UTC(),
		Previous:    current,
		stats:       stats,
	}

	fitter := offsetfit.NewFitter(logger, opts.ReferenceTemp)

	switch {
	case opts.AutoSelect:
		cmp, err := offsetfit.Compare(stats, opts.ReferenceTemp)
		if err != nil {
			return report, fmt.Errorf("fitting correction parameters: %w", err)
		}
		report.Comparison = &cmp
		report.Fit = cmp.BestResult()
		if cmp.Ambient != nil {
			logger.Infof("model comparison: quadratic AIC %.2f, ambient AIC %.2f, keeping %s",
				cmp.Quadratic.AIC, cmp.Ambient.AIC, cmp.Best)
		} else {
			logger.Infof("ambient model could not be fit, keeping %s", cmp.Best)
		}
	default:
		res, err := fitter.Fit(stats, opts.UseAmbient)
		if err != nil {
			return report, fmt.Errorf("fitting correction parameters: %w", err)
		}
		report.Fit = res
	}

	interp, err := offsetfit.NewInterpolationModel(stats)
	switch {
	case err == nil:
		report.Interpolation = interp
		logger.Infof("%s interpolation over %.2f-%.2f°C: R² = %.4f, RMSE = %.4f°C",
			interp.Kind, interp.TempMin, interp.TempMax, interp.RSquared, interp.RMSE)
	case errors.Is(err, types.ErrInsufficientData):
		logger.Debugf("skipping interpolation model: %v", err)
	default:
		return report, err
	}

	report.Changes = offsetfit.CompareCoefficients(current, report.Fit.Coefficients)
	for _, c := range report.Changes {
		logger.Infof("  %s: %.6f -> %.6f (%+.2f%%)", c.Name, c.Old, c.New, c.PctChange)
	}

	return report, nil
}

// Run fits the offset model to the combined step statistics of analyzed
// experiments
func (p *Pipeline) Run(results []ExperimentResult, current types.ModelCoefficients, opts FitOptions) (Report, error) {
	stats := Aggregate(results)
	p.logger.Infof("fitting correction parameters to %d steps from %d experiments", len(stats), len(results))

	report, err := FitStats(p.logger.Named("fit"), stats, current, opts)
	report.Experiments = results
	return report, err
}
