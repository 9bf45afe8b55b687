package main

import (
	"fmt"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/chrissnell/thermoffset/internal/analysis"
	"github.com/chrissnell/thermoffset/internal/ingest"
	"github.com/chrissnell/thermoffset/internal/log"
	"github.com/chrissnell/thermoffset/internal/types"
)

func NewAnalyzeCommand() *cobra.Command {
	var (
		fit       fitFlags
		store     bool
		workers   int
		delimiter string
		start     string
	)

	cmd := &cobra.Command{
		Use:     "analyze [recording or directory...]",
		Short:   "Analyze recordings and fit the offset model",
		GroupID: gAnalysis,
		Long: `Analyze set-point sweep recordings and fit the offset model.

Each recording is split into set-point steps, the steady-state region of every
step is located and the liquid offset measured there. The offset model is then
fit to the steps of all recordings and compared with the coefficients in use.

Without arguments the raw data directory from the configuration is scanned
for CSV recordings. The sweep settings of each recording are read from its
file name, for example 20240115_1030_5_50_1_15.csv.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer provider.Close()

			if len(args) == 0 {
				args = []string{cfg.Paths.RawData}
			}
			paths, err := collectRecordings(args)
			if err != nil {
				return err
			}

			opts := ingest.Options{}
			if delimiter != "" {
				r, size := utf8.DecodeRuneInString(delimiter)
				if size != len(delimiter) {
					return fmt.Errorf("%w: delimiter must be a single character", types.ErrConfig)
				}
				opts.Delimiter = r
			}
			if start != "" {
				if opts.Start, err = time.Parse(time.RFC3339, start); err != nil {
					return fmt.Errorf("%w: invalid start time %q: %v", types.ErrConfig, start, err)
				}
			}
			if !cmd.Flags().Changed("workers") {
				workers = cfg.Analysis.Workers
			}

			current, err := provider.LoadCorrection()
			if err != nil {
				return err
			}

			pipeline := analysis.NewPipeline(log.Named("analysis"), opts, workers)
			results, err := pipeline.AnalyzeAll(cmd.Context(), paths)
			if err != nil {
				return err
			}

			printExperiments(cmd, results)

			report, err := pipeline.Run(results, current, fit.options(cmd, cfg))
			if err != nil {
				return err
			}

			if store {
				ds, err := openDataset(cfg)
				if err != nil {
					return err
				}
				defer ds.Close()

				for _, res := range results {
					if _, err := ds.SaveExperiment(cmd.Context(), res); err != nil {
						return err
					}
				}
				if _, err := ds.SaveFit(cmd.Context(), report.Fit); err != nil {
					return err
				}
			}

			stamp := report.GeneratedAt.Format("20060102_150405")
			return fit.finish(cmd, provider, &report, filepath.Join(cfg.Paths.ProcessedData, "offset_analysis_"+stamp+".json"))
		},
	}

	fit.register(cmd)
	cmd.Flags().BoolVar(&store, "store", false, "Store the analyzed experiments and the fit in the dataset")
	cmd.Flags().IntVarP(&workers, "workers", "j", analysis.DefaultWorkers, "Number of recordings analyzed concurrently")
	cmd.Flags().StringVar(&delimiter, "delimiter", "", "Field delimiter of the recordings (default ',')")
	cmd.Flags().StringVar(&start, "start", "", "RFC 3339 time that elapsed-seconds time columns count from")

	return cmd
}

func printExperiments(cmd *cobra.Command, results []analysis.ExperimentResult) {
	for _, res := range results {
		cmd.Printf("%s: %d steps (%s", res.Metadata.Name, len(res.Steps), res.Mode)
		if res.SkippedSteps > 0 {
			cmd.Printf(", %d skipped", res.SkippedSteps)
		}
		if res.DroppedRows > 0 {
			cmd.Printf(", %d rows dropped", res.DroppedRows)
		}
		cmd.Println(")")
		for _, st := range res.Steps {
			stable := "stable"
			if !st.StabilityDetected {
				stable = "not stable"
			}
			cmd.Printf("  target %6.2f°C  liquid %6.2f ± %.3f°C  offset %+.3f°C  ambient %.1f°C  %s after %s\n",
				st.TargetTemp, st.LiquidMean, st.LiquidStd, st.LiquidOffset, st.AmbientMean,
				stable, st.TimeToStability.Round(time.Second))
		}
	}
	cmd.Println()
}
