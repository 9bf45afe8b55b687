// Package export writes analysis reports as JSON, MessagePack, YAML or a CSV
// table of step statistics.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/chrissnell/thermoffset/internal/types"
)

// Format is an output encoding
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgPack Format = "msgpack"
	FormatYAML    Format = "yaml"
	FormatCSV     Format = "csv"
)

// StepSource is anything that can list step statistics, used for CSV output
type StepSource interface {
	Steps() []types.StepStatistics
}

// StepList adapts a plain slice to StepSource
type StepList []types.StepStatistics

// Steps returns the list itself
func (l StepList) Steps() []types.StepStatistics {
	return l
}

// ParseFormat maps a format name to a Format
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "json", "":
		return FormatJSON, nil
	case "msgpack", "mpk":
		return FormatMsgPack, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: unknown output format %q", types.ErrConfig, name)
}

// FormatFromPath picks the format matching a file extension. Files without
// an extension are written as JSON.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// csvHeader names the columns of the step table
var csvHeader = []string{
	"target_temp",
	"holder_temp_mean",
	"holder_temp_std",
	"holder_offset",
	"liquid_temp_mean",
	"liquid_temp_std",
	"liquid_offset",
	"ambient_temp_mean",
	"ambient_temp_std",
	"time_to_stability_s",
	"stability_detected",
	"sample_count",
}

// Write encodes data to w in the given format. CSV output needs data to be
// a StepSource.
func Write(w io.Writer, format Format, data any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatMsgPack:
		return writeMsgPack(w, data)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	case FormatCSV:
		src, ok := data.(StepSource)
		if !ok {
			return fmt.Errorf("%w: %T has no step table for CSV output", types.ErrConfig, data)
		}
		return writeCSV(w, src.Steps())
	}
	return fmt.Errorf("%w: unknown output format %q", types.ErrConfig, format)
}

func writeMsgPack(w io.Writer, data any) error {
	encoder := msgpack.NewEncoder(w)
	encoder.UseCompactInts(true)
	return encoder.Encode(data)
}

func writeCSV(w io.Writer, steps []types.StepStatistics) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, st := range steps {
		row := []string{
			f(st.TargetTemp),
			f(st.HolderMean),
			f(st.HolderStd),
			f(st.HolderOffset),
			f(st.LiquidMean),
			f(st.LiquidStd),
			f(st.LiquidOffset),
			f(st.AmbientMean),
			f(st.AmbientStd),
			f(st.TimeToStability.Seconds()),
			strconv.FormatBool(st.StabilityDetected),
			strconv.Itoa(st.SampleCount),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteFile writes data to path in the format its extension selects,
// creating the parent directory if needed
func WriteFile(path string, data any) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Write(f, format, data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
