package types

import (
	"fmt"
	"time"
)

// Reading is a single sample from a thermal-control recording. HolderTemp is the
// thermoelectrically controlled fixture, LiquidTemp the sample liquid, TargetTemp
// the commanded holder set point and AmbientTemp the room. SinkTemp and Power
// are optional channels and are nil when the recording does not carry them.
type Reading struct {
	Timestamp   time.Time
	HolderTemp  float64
	LiquidTemp  float64
	TargetTemp  float64
	AmbientTemp float64
	SinkTemp    *float64
	Power       *float64
}

// ExperimentSettings describes the set-point sweep an experiment was recorded
// with. An Increment of 0 means a single set point was held for the whole run.
type ExperimentSettings struct {
	StartTemp            float64 `json:"start_temp" msgpack:"start_temp"`
	StopTemp             float64 `json:"stop_temp" msgpack:"stop_temp"`
	Increment            float64 `json:"increment" msgpack:"increment"`
	StabilizationMinutes float64 `json:"stabilization_minutes" msgpack:"stabilization_minutes"`
}

func (s ExperimentSettings) String() string {
	return fmt.Sprintf("start=%g stop=%g increment=%g stabilization=%gmin",
		s.StartTemp, s.StopTemp, s.Increment, s.StabilizationMinutes)
}

// Fallback settings used when an experiment's metadata is missing or unparseable
const (
	DefaultStartTemp            = 5.0
	DefaultStopTemp             = 50.0
	DefaultIncrement            = 1.0
	DefaultStabilizationMinutes = 15.0
)

// DefaultExperimentSettings returns the documented fallback settings
func DefaultExperimentSettings() ExperimentSettings {
	return ExperimentSettings{
		StartTemp:            DefaultStartTemp,
		StopTemp:             DefaultStopTemp,
		Increment:            DefaultIncrement,
		StabilizationMinutes: DefaultStabilizationMinutes,
	}
}

// StepSlice is a contiguous run of readings that share one commanded set point.
// Readings aliases the recording it was cut from and must not be modified.
type StepSlice struct {
	Index    int
	Readings []Reading
}

// Len returns the number of readings in the slice
func (s StepSlice) Len() int {
	return len(s.Readings)
}

// Duration returns the elapsed time between the first and last reading
func (s StepSlice) Duration() time.Duration {
	if len(s.Readings) < 2 {
		return 0
	}
	return s.Readings[len(s.Readings)-1].Timestamp.Sub(s.Readings[0].Timestamp)
}

// StepStatistics holds the steady-state statistics of one step
type StepStatistics struct {
	TargetTemp        float64       `json:"target_temp" msgpack:"target_temp"`
	HolderMean        float64       `json:"holder_temp_mean" msgpack:"holder_temp_mean"`
	HolderStd         float64       `json:"holder_temp_std" msgpack:"holder_temp_std"`
	HolderOffset      float64       `json:"holder_offset" msgpack:"holder_offset"`
	LiquidMean        float64       `json:"liquid_temp_mean" msgpack:"liquid_temp_mean"`
	LiquidStd         float64       `json:"liquid_temp_std" msgpack:"liquid_temp_std"`
	LiquidOffset      float64       `json:"liquid_offset" msgpack:"liquid_offset"`
	AmbientMean       float64       `json:"ambient_temp_mean" msgpack:"ambient_temp_mean"`
	AmbientStd        float64       `json:"ambient_temp_std" msgpack:"ambient_temp_std"`
	TimeToStability   time.Duration `json:"time_to_stability" msgpack:"time_to_stability"`
	StabilityDetected bool          `json:"stability_detected" msgpack:"stability_detected"`
	SampleCount       int           `json:"sample_count" msgpack:"sample_count"`
}
