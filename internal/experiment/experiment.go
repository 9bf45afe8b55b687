// Package experiment derives experiment settings from recording file names.
//
// Recordings are named after the temperature program that produced them:
//
//	14.01.25_10.30_20.0_30.0_1.0_15.csv    DATE_TIME_START_STOP_INC_STAB
//	14.01.25,10.30,20.0_30.0_1.0_15.csv    DATE,TIME,START_STOP_INC_STAB
//	run_20_40.csv                          START_STOP, increment ±1
package experiment

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/chrissnell/thermoffset/internal/types"
)

var (
	fullPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d+\.\d+\.\d+)_(\d+\.\d+)_(\d+\.?\d*)_(\d+\.?\d*)_(\d+\.?\d*)_(\d+\.?\d*)`),
		regexp.MustCompile(`(\d+\.\d+\.\d+),(\d+\.\d+),(\d+\.?\d*)_(\d+\.?\d*)_(\d+\.?\d*)_(\d+\.?\d*)`),
	}
	rangePattern = regexp.MustCompile(`(\d+\.?\d*)_(\d+\.?\d*)`)
	datePattern  = regexp.MustCompile(`\d+\.\d+\.\d+`)
)

// Metadata describes one recording
type Metadata struct {
	Name     string                   `json:"name" msgpack:"name"`
	Date     string                   `json:"date,omitempty" msgpack:"date,omitempty"`
	Time     string                   `json:"time,omitempty" msgpack:"time,omitempty"`
	Settings types.ExperimentSettings `json:"settings" msgpack:"settings"`
}

// ParseFilename extracts the experiment settings encoded in a recording's
// file name. When the name carries no usable settings the defaults are
// returned together with an ErrConfig error; callers may log it and carry on.
func ParseFilename(path string) (Metadata, error) {
	base := filepath.Base(path)
	md := Metadata{
		Name:     strings.TrimSuffix(base, filepath.Ext(base)),
		Settings: types.DefaultExperimentSettings(),
	}

	for _, re := range fullPatterns {
		m := re.FindStringSubmatch(base)
		if m == nil {
			continue
		}
		vals, err := parseFloats(m[3:7])
		if err != nil {
			return md, fmt.Errorf("%w: %s: %v", types.ErrConfig, base, err)
		}
		md.Date, md.Time = m[1], m[2]
		md.Settings = types.ExperimentSettings{
			StartTemp:            vals[0],
			StopTemp:             vals[1],
			Increment:            vals[2],
			StabilizationMinutes: vals[3],
		}
		return md, nil
	}

	md.Date = datePattern.FindString(base)

	// the range must not be read out of the date
	rest := base
	if md.Date != "" {
		rest = strings.Replace(rest, md.Date, "", 1)
	}
	if m := rangePattern.FindStringSubmatch(rest); m != nil {
		vals, err := parseFloats(m[1:3])
		if err != nil {
			return md, fmt.Errorf("%w: %s: %v", types.ErrConfig, base, err)
		}
		md.Settings.StartTemp, md.Settings.StopTemp = vals[0], vals[1]
		md.Settings.Increment = 1
		if vals[0] > vals[1] {
			md.Settings.Increment = -1
		}
		md.Settings.StabilizationMinutes = types.DefaultStabilizationMinutes
		return md, nil
	}

	return md, fmt.Errorf("%w: no experiment settings in file name %q, using defaults %s",
		types.ErrConfig, base, md.Settings)
}

func parseFloats(fields []string) ([]float64, error) {
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSuffix(f, "."), 64)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}
