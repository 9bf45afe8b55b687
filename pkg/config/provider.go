package config

import (
	"fmt"
	"math"
	"runtime"

	"github.com/chrissnell/thermoffset/internal/types"
)

// CorrectionProvider defines the interface for configuration data sources.
// LoadCorrection and SaveCorrection are the get/set pair for the persisted
// model coefficients.
type CorrectionProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	LoadCorrection() (types.ModelCoefficients, error)
	SaveCorrection(coeffs types.ModelCoefficients) error

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Correction types.ModelCoefficients `json:"correction" yaml:"correction"`
	Paths      PathsData               `json:"paths" yaml:"paths"`
	Dataset    DatasetData             `json:"dataset" yaml:"dataset"`
	Analysis   AnalysisData            `json:"analysis" yaml:"analysis"`
}

// PathsData holds the locations of raw recordings and generated reports
type PathsData struct {
	RawData       string `json:"raw_data" yaml:"raw_data"`
	ProcessedData string `json:"processed_data" yaml:"processed_data"`
}

// DatasetData configures the step statistics store
type DatasetData struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

// AnalysisData holds defaults for analysis runs
type AnalysisData struct {
	ReferenceTemp float64 `json:"reference_temp" yaml:"reference_temp"`
	UseAmbient    bool    `json:"use_ambient" yaml:"use_ambient"`
	AutoSelect    bool    `json:"auto_select" yaml:"auto_select"`
	Workers       int     `json:"workers" yaml:"workers"`
}

// Default correction coefficients used until a fit has been saved
const (
	DefaultA             = 0.0039
	DefaultB             = 0.5645
	DefaultC             = 0.0
	DefaultD             = 4.8536
	DefaultReferenceTemp = 20.0
)

// DefaultCorrection returns the coefficients used when none are configured
func DefaultCorrection() types.ModelCoefficients {
	return types.ModelCoefficients{
		A:             DefaultA,
		B:             DefaultB,
		C:             DefaultC,
		D:             DefaultD,
		ReferenceTemp: DefaultReferenceTemp,
		Variant:       types.VariantQuadratic,
	}
}

// DefaultConfig returns the configuration used when no file exists
func DefaultConfig() *ConfigData {
	return &ConfigData{
		Correction: DefaultCorrection(),
		Paths: PathsData{
			RawData:       "data/raw",
			ProcessedData: "data/processed",
		},
		Dataset: DatasetData{
			Driver: "sqlite",
			DSN:    "data/thermoffset.db",
		},
		Analysis: AnalysisData{
			ReferenceTemp: DefaultReferenceTemp,
			Workers:       runtime.NumCPU(),
		},
	}
}

// normalize fills zero-valued fields of a partially written configuration
// with defaults
func (c *ConfigData) normalize() {
	def := DefaultConfig()
	if c.Correction.Variant == "" {
		c.Correction.Variant = types.VariantQuadratic
	}
	if c.Correction.ReferenceTemp == 0 {
		c.Correction.ReferenceTemp = DefaultReferenceTemp
	}
	if c.Paths.RawData == "" {
		c.Paths.RawData = def.Paths.RawData
	}
	if c.Paths.ProcessedData == "" {
		c.Paths.ProcessedData = def.Paths.ProcessedData
	}
	if c.Dataset.Driver == "" {
		c.Dataset.Driver = def.Dataset.Driver
	}
	if c.Dataset.DSN == "" && c.Dataset.Driver == def.Dataset.Driver {
		c.Dataset.DSN = def.Dataset.DSN
	}
	if c.Analysis.ReferenceTemp == 0 {
		c.Analysis.ReferenceTemp = DefaultReferenceTemp
	}
	if c.Analysis.Workers <= 0 {
		c.Analysis.Workers = def.Analysis.Workers
	}
}

func validateCorrection(c types.ModelCoefficients) error {
	for name, v := range map[string]float64{"a": c.A, "b": c.B, "c": c.C, "d": c.D, "reference_temp": c.ReferenceTemp} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: correction parameter %s is %v", types.ErrConfig, name, v)
		}
	}
	if c.Variant != types.VariantQuadratic && c.Variant != types.VariantAmbient {
		return fmt.Errorf("%w: unknown model variant %q", types.ErrConfig, c.Variant)
	}
	return nil
}
