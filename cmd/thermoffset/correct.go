package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chrissnell/thermoffset/internal/correction"
	"github.com/chrissnell/thermoffset/internal/export"
	"github.com/chrissnell/thermoffset/internal/log"
	"github.com/chrissnell/thermoffset/internal/types"
)

func NewCorrectCommand() *cobra.Command {
	var (
		ambient float64
		minSet  float64
		maxSet  float64
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:     "correct [desired liquid temperature]",
		Short:   "Compute the holder set point for a desired liquid temperature",
		GroupID: gCorrection,
		Long: `Compute the holder set point that brings the liquid to the desired temperature.

The offset model is inverted with the configured coefficients. When the model
has no real solution a linear approximation is used, and when nothing usable
remains the desired temperature is passed through unchanged. Both cases are
reported as reduced-confidence results.

With --min and --max, solutions inside the holder's operating range win over
closer ones outside it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desired, err := parseFloatArg(args, "desired temperature")
			if err != nil {
				return err
			}

			provider, err := openProvider()
			if err != nil {
				return err
			}
			defer provider.Close()

			coeffs, err := provider.LoadCorrection()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("ambient") {
				ambient = coeffs.ReferenceTemp
			}

			corrector := correction.NewCorrector(log.Named("correction"), coeffs)
			if cmd.Flags().Changed("min") || cmd.Flags().Changed("max") {
				if corrector, err = corrector.WithBounds(minSet, maxSet); err != nil {
					return err
				}
			}

			res := corrector.Correct(desired, ambient)
			if asJSON {
				return export.Write(cmd.OutOrStdout(), export.FormatJSON, res)
			}

			cmd.Printf("Set the holder to %.2f°C for a liquid temperature of %.2f°C (ambient %.1f°C)\n", res.Target, desired, ambient)
			if res.Branch.Degraded() {
				cmd.Printf("Warning: %s result, the model could not be inverted exactly\n", res.Branch)
			}
			return nil
		},
	}

	cmd.Flags().Float64VarP(&ambient, "ambient", "a", 0, "Ambient temperature in °C (default: the reference temperature)")
	cmd.Flags().Float64Var(&minSet, "min", -10, "Lowest holder set point of the operating range in °C")
	cmd.Flags().Float64Var(&maxSet, "max", 100, "Highest holder set point of the operating range in °C")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")

	return cmd
}

func NewPredictCommand() *cobra.Command {
	var ambient float64

	cmd := &cobra.Command{
		Use:     "predict [holder set point]",
		Short:   "Predict the liquid temperature reached at a holder set point",
		GroupID: gCorrection,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseFloatArg(args, "set point")
			if err != nil {
				return err
			}

			provider, err := openProvider()
			if err != nil {
				return err
			}
			defer provider.Close()

			coeffs, err := provider.LoadCorrection()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("ambient") {
				ambient = coeffs.ReferenceTemp
			}

			liquid := correction.Forward(coeffs, coeffs.ReferenceTemp, target, ambient)
			cmd.Printf("A set point of %.2f°C gives a liquid temperature of %.2f°C (offset %+.3f°C, ambient %.1f°C)\n",
				target, liquid, liquid-target, ambient)
			return nil
		},
	}

	cmd.Flags().Float64VarP(&ambient, "ambient", "a", 0, "Ambient temperature in °C (default: the reference temperature)")

	return cmd
}

func NewCheckRangeCommand() *cobra.Command {
	var ambient float64

	cmd := &cobra.Command{
		Use:     "check-range [min] [max]",
		Short:   "Check that the model has a single set point per liquid temperature in a range",
		GroupID: gCorrection,
		Long: `Check that the forward model is monotonic between two holder set points.

A model that folds back inside the operating range maps some liquid
temperatures to two set points, and corrections near the fold are unreliable.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lo, err := parseFloatArg(args[:1], "min")
			if err != nil {
				return err
			}
			hi, err := parseFloatArg(args[1:], "max")
			if err != nil {
				return err
			}

			provider, err := openProvider()
			if err != nil {
				return err
			}
			defer provider.Close()

			coeffs, err := provider.LoadCorrection()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("ambient") {
				ambient = coeffs.ReferenceTemp
			}

			err = correction.CheckMonotonic(coeffs, coeffs.ReferenceTemp, ambient, lo, hi)
			switch {
			case err == nil:
				cmd.Printf("The model is monotonic on [%.1f, %.1f]°C at ambient %.1f°C\n", lo, hi, ambient)
				return nil
			case errors.Is(err, correction.ErrNotMonotonic):
				cmd.Printf("The model is NOT monotonic on [%.1f, %.1f]°C at ambient %.1f°C\n", lo, hi, ambient)
				return err
			default:
				return err
			}
		},
	}

	cmd.Flags().Float64VarP(&ambient, "ambient", "a", 0, "Ambient temperature in °C (default: the reference temperature)")

	return cmd
}

func NewShowCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:     "show",
		Short:   "Show the configured correction coefficients",
		GroupID: gCorrection,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer provider.Close()

			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			if f == export.FormatCSV {
				return fmt.Errorf("%w: the configuration has no CSV form", types.ErrConfig)
			}
			return export.Write(cmd.OutOrStdout(), f, cfg)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: json or yaml")

	return cmd
}
