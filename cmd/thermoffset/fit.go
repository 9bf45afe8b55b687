package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chrissnell/thermoffset/internal/analysis"
	"github.com/chrissnell/thermoffset/internal/log"
	"github.com/chrissnell/thermoffset/internal/types"
)

func NewFitCommand() *cobra.Command {
	var (
		fit         fitFlags
		experiments []string
	)

	cmd := &cobra.Command{
		Use:     "fit",
		Short:   "Fit the offset model to stored step statistics",
		GroupID: gAnalysis,
		Long: `Fit the offset model to the step statistics kept in the dataset.

Experiments are added to the dataset with "analyze --store". By default every
stored experiment contributes; --experiment restricts the fit to chosen ones.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer provider.Close()

			ids, err := parseIDs(experiments)
			if err != nil {
				return err
			}

			ds, err := openDataset(cfg)
			if err != nil {
				return err
			}
			defer ds.Close()

			stats, err := ds.Steps(cmd.Context(), ids...)
			if err != nil {
				return err
			}
			if len(stats) == 0 {
				return fmt.Errorf("%w: the dataset holds no step statistics, run analyze --store first", types.ErrInsufficientData)
			}

			current, err := provider.LoadCorrection()
			if err != nil {
				return err
			}

			logger := log.Named("fit")
			logger.Infof("fitting correction parameters to %d stored steps", len(stats))
			report, err := analysis.FitStats(logger, stats, current, fit.options(cmd, cfg))
			if err != nil {
				return err
			}
			if _, err := ds.SaveFit(cmd.Context(), report.Fit); err != nil {
				return err
			}

			return fit.finish(cmd, provider, &report, "")
		},
	}

	fit.register(cmd)
	cmd.Flags().StringSliceVarP(&experiments, "experiment", "e", nil, "Stored experiment id to include (repeatable)")

	return cmd
}
