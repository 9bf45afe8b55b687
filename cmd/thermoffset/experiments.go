package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/chrissnell/thermoffset/internal/export"
	"github.com/chrissnell/thermoffset/internal/types"
)

func NewExperimentsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "experiments",
		Short:   "Manage experiments stored in the dataset",
		GroupID: gDataset,
	}

	cmd.AddCommand(
		newExperimentsListCommand(),
		newExperimentsStepsCommand(),
		newExperimentsDeleteCommand(),
		newFitsListCommand(),
	)

	return cmd
}

func newExperimentsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored experiments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer provider.Close()

			ds, err := openDataset(cfg)
			if err != nil {
				return err
			}
			defer ds.Close()

			experiments, err := ds.ListExperiments(cmd.Context())
			if err != nil {
				return err
			}
			if len(experiments) == 0 {
				cmd.Println("No experiments stored")
				return nil
			}
			for _, e := range experiments {
				cmd.Printf("%s  %-32s  %s  %s  analyzed %s\n",
					e.ID, e.Name, e.Settings, e.Mode, e.AnalyzedAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func newExperimentsStepsCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "steps [id...]",
		Short: "Export stored step statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			provider, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer provider.Close()

			ds, err := openDataset(cfg)
			if err != nil {
				return err
			}
			defer ds.Close()

			steps, err := ds.Steps(cmd.Context(), ids...)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				return export.Write(cmd.OutOrStdout(), export.FormatCSV, export.StepList(steps))
			}
			return export.WriteFile(output, export.StepList(steps))
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (.csv, .json, .msgpack or .yaml); default CSV on stdout")

	return cmd
}

func newExperimentsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id...]",
		Short: "Delete stored experiments",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			provider, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer provider.Close()

			ds, err := openDataset(cfg)
			if err != nil {
				return err
			}
			defer ds.Close()

			for _, id := range ids {
				if err := ds.DeleteExperiment(cmd.Context(), id); err != nil {
					return err
				}
				cmd.Printf("Deleted experiment %s\n", id)
			}
			return nil
		},
	}
}

func newFitsListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "fits",
		Short: "List stored fits, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer provider.Close()

			ds, err := openDataset(cfg)
			if err != nil {
				return err
			}
			defer ds.Close()

			fits, err := ds.ListFits(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, f := range fits {
				c := f.Coefficients
				cmd.Printf("%s  %s  %-9s a=%.6f b=%.6f c=%.6f d=%.6f  R²=%.4f RMSE=%.4f  %d steps\n",
					f.CreatedAt.Local().Format("2006-01-02 15:04"), f.ID, c.Variant,
					c.A, c.B, c.C, c.D, f.RSquared, f.RMSE, f.StepCount)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of fits to list (0 for all)")

	return cmd
}

func parseIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(args))
	for _, a := range args {
		id, err := uuid.Parse(a)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid experiment id %q: %v", types.ErrConfig, a, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
