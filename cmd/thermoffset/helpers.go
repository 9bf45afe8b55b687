package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chrissnell/thermoffset/internal/analysis"
	"github.com/chrissnell/thermoffset/internal/dataset"
	"github.com/chrissnell/thermoffset/internal/export"
	"github.com/chrissnell/thermoffset/internal/log"
	"github.com/chrissnell/thermoffset/internal/offsetfit"
	"github.com/chrissnell/thermoffset/internal/types"
	"github.com/chrissnell/thermoffset/pkg/config"
)

func parseFloatArg(args []string, name string) (float64, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("%w: %s is required", types.ErrConfig, name)
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q: %v", types.ErrConfig, name, args[0], err)
	}
	return v, nil
}

// collectRecordings expands files and directories into the CSV recordings
// they name. Directories are searched recursively.
func collectRecordings(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".csv") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", p, err)
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no recordings found in %s", types.ErrData, strings.Join(paths, ", "))
	}
	return files, nil
}

// fitFlags are the model options shared by analyze and fit
type fitFlags struct {
	referenceTemp float64
	useAmbient    bool
	autoSelect    bool
	update        bool
	output        string
}

func (f *fitFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.referenceTemp, "reference-temp", 0, "Reference ambient temperature in °C (default from configuration)")
	cmd.Flags().BoolVar(&f.useAmbient, "ambient", false, "Fit the ambient-aware model")
	cmd.Flags().BoolVar(&f.autoSelect, "auto-select", false, "Fit both models and keep the one with the lower AIC")
	cmd.Flags().BoolVar(&f.update, "update", false, "Save the fitted coefficients to the configuration")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Report file (.json, .msgpack, .yaml or .csv); '-' writes JSON to stdout")
}

func (f *fitFlags) options(cmd *cobra.Command, cfg *config.ConfigData) analysis.FitOptions {
	opts := analysis.FitOptions{
		ReferenceTemp: cfg.Analysis.ReferenceTemp,
		UseAmbient:    cfg.Analysis.UseAmbient,
		AutoSelect:    cfg.Analysis.AutoSelect,
	}
	if cmd.Flags().Changed("reference-temp") {
		opts.ReferenceTemp = f.referenceTemp
	}
	if cmd.Flags().Changed("ambient") {
		opts.UseAmbient = f.useAmbient
	}
	if cmd.Flags().Changed("auto-select") {
		opts.AutoSelect = f.autoSelect
	}
	return opts
}

// finish prints the fit summary, writes the report and saves the
// coefficients when asked to
func (f *fitFlags) finish(cmd *cobra.Command, provider config.CorrectionProvider, report *analysis.Report, defaultOutput string) error {
	printFit(cmd, report.Fit)
	printChanges(cmd, report.Changes)

	output := f.output
	if output == "" {
		output = defaultOutput
	}
	switch output {
	case "":
	case "-":
		if err := export.Write(cmd.OutOrStdout(), export.FormatJSON, report); err != nil {
			return err
		}
	default:
		if err := export.WriteFile(output, report); err != nil {
			return err
		}
		log.Infof("report written to %s", output)
	}

	if f.update {
		if provider.IsReadOnly() {
			return fmt.Errorf("%w: configuration is read-only", types.ErrConfig)
		}
		if err := provider.SaveCorrection(report.Fit.Coefficients); err != nil {
			return fmt.Errorf("failed to save correction parameters: %w", err)
		}
		log.Infof("saved %s coefficients to %s", report.Fit.Coefficients.Variant, cfgFile)
	}
	return nil
}

func printFit(cmd *cobra.Command, res offsetfit.Result) {
	c := res.Coefficients
	cmd.Printf("Model: %s (reference %.1f°C, %d steps)\n", c.Variant, c.ReferenceTemp, res.SampleCount)
	cmd.Printf("  a = %.6f\n  b = %.6f\n", c.A, c.B)
	if c.UsesAmbient() {
		cmd.Printf("  c = %.6f\n", c.C)
	}
	cmd.Printf("  d = %.6f\n", c.D)
	cmd.Printf("R² = %.4f  adjusted R² = %.4f  RMSE = %.4f°C  MAE = %.4f°C\n",
		res.RSquared, res.AdjustedRSquared, res.RootMeanSquaredError, res.MeanAbsoluteError)
}

func printChanges(cmd *cobra.Command, changes []offsetfit.ParameterChange) {
	if len(changes) == 0 {
		return
	}
	cmd.Println("\nParameter changes:")
	for _, ch := range changes {
		cmd.Printf("  %s: %.6f -> %.6f (%+.6f, %+.2f%%)\n", ch.Name, ch.Old, ch.New, ch.Diff, ch.PctChange)
	}
}

// openDataset opens the configured dataset store
func openDataset(cfg *config.ConfigData) (*dataset.Store, error) {
	if cfg.Dataset.Driver == dataset.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Dataset.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create dataset directory: %w", err)
		}
	}
	return dataset.Open(cfg.Dataset.Driver, cfg.Dataset.DSN, log.Named("dataset"))
}
