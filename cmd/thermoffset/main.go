package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/chrissnell/thermoffset/internal/log"
	"github.com/chrissnell/thermoffset/internal/types"
	"github.com/chrissnell/thermoffset/pkg/config"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

var (
	cfgFile    string
	cfgBackend string
	debug      bool
)

var (
	gAnalysis   = "Analysis:"
	gCorrection = "Correction:"
	gDataset    = "Dataset:"
)

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		log.Errorf("%v", err)
		log.Sync()
		if errors.Is(err, types.ErrConfig) {
			fmt.Fprintln(os.Stderr, "Check the configuration file or the command flags. Run with -h for help.")
		}
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thermoffset",
		Short: "thermoffset calibrates the liquid temperature offset of a thermoelectric holder",
		Long: `thermoffset analyzes set-point sweep recordings of a thermoelectrically
controlled sample holder, fits a model of the offset between the commanded
holder temperature and the temperature reached by the liquid, and inverts
that model to pick the holder set point for a desired liquid temperature.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := log.Init(debug); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			log.Sync()
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "Path to configuration source (YAML file or SQLite database)")
	cmd.PersistentFlags().StringVar(&cfgBackend, "config-backend", "yaml", "Configuration backend type: 'yaml' or 'sqlite'")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Turn on debugging output")

	cmd.AddGroup(
		&cobra.Group{ID: gAnalysis, Title: gAnalysis},
		&cobra.Group{ID: gCorrection, Title: gCorrection},
		&cobra.Group{ID: gDataset, Title: gDataset},
	)

	cmd.AddCommand(
		NewAnalyzeCommand(),
		NewFitCommand(),
		NewCorrectCommand(),
		NewPredictCommand(),
		NewCheckRangeCommand(),
		NewShowCommand(),
		NewExperimentsCommand(),
		NewDBCommand(),
		NewVersionCommand(),
	)

	return cmd
}

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("thermoffset %s\n", version)
		},
	}
}

// openProvider opens the configured coefficient store behind a cache
func openProvider() (*config.CachedProvider, error) {
	filename, _ := filepath.Abs(cfgFile)

	var provider config.CorrectionProvider
	var err error

	switch cfgBackend {
	case "yaml":
		provider = config.NewYAMLProvider(filename)
	case "sqlite":
		provider, err = config.NewSQLiteProvider(filename)
		if err != nil {
			return nil, fmt.Errorf("error creating SQLite provider: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported configuration backend: %s. Use 'yaml' or 'sqlite'", types.ErrConfig, cfgBackend)
	}

	return config.NewCachedProvider(provider), nil
}

// loadConfig opens the coefficient store and reads the full configuration.
// The caller closes the returned provider.
func loadConfig() (*config.CachedProvider, *config.ConfigData, error) {
	provider, err := openProvider()
	if err != nil {
		return nil, nil, err
	}

	cfgData, err := provider.LoadConfig()
	if err != nil {
		provider.Close()
		return nil, nil, fmt.Errorf("error reading config %s: %w", cfgFile, err)
	}

	if y, ok := provider.Backend().(*config.YAMLProvider); ok && y.Missing() {
		log.Warnf("configuration file %s not found, using default coefficients", cfgFile)
	}

	return provider, cfgData, nil
}
