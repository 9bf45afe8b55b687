// Package ingest loads recorded experiments from CSV files into readings.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/thermoffset/internal/types"
)

// timeLayouts are tried in order for time cells that are not elapsed seconds
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"02.01.2006 15:04:05",
	"02.01.06 15:04:05",
}

// Options controls how a recording is parsed
type Options struct {
	// Start anchors time cells given as elapsed seconds. Defaults to the Unix epoch.
	Start time.Time
	// Delimiter separates fields. Defaults to ','.
	Delimiter rune
}

// Recording is the parsed content of one experiment file
type Recording struct {
	Readings    []types.Reading
	Columns     map[Column]int
	DroppedRows int
}

// ReadFile parses the CSV recording at path
func ReadFile(path string, opts Options) (Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return Recording{}, fmt.Errorf("could not open recording %s: %w", path, err)
	}
	defer f.Close()

	rec, err := Read(f, opts)
	if err != nil {
		return rec, fmt.Errorf("reading %s: %w", path, err)
	}
	return rec, nil
}

// Read parses a CSV recording. Rows whose required channels are missing or
// not numeric are dropped. Timestamps must be non-decreasing.
func Read(r io.Reader, opts Options) (Recording, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	start := opts.Start
	if start.IsZero() {
		start = time.Unix(0, 0).UTC()
	}

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Recording{}, fmt.Errorf("%w: recording is empty", types.ErrData)
	}
	if err != nil {
		return Recording{}, fmt.Errorf("%w: reading header: %v", types.ErrData, err)
	}

	columns, err := StandardizeColumns(header)
	if err != nil {
		return Recording{Columns: columns}, err
	}

	rec := Recording{Columns: columns}
	var last time.Time

	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rec, fmt.Errorf("%w: line %d: %v", types.ErrData, line, err)
		}

		reading, ok := parseRow(record, columns, start)
		if !ok {
			rec.DroppedRows++
			continue
		}
		if len(rec.Readings) > 0 && reading.Timestamp.Before(last) {
			return rec, fmt.Errorf("%w: line %d: timestamp %s precedes %s",
				types.ErrData, line, reading.Timestamp.Format(time.RFC3339), last.Format(time.RFC3339))
		}
		last = reading.Timestamp
		rec.Readings = append(rec.Readings, reading)
	}

	if len(rec.Readings) == 0 {
		return rec, fmt.Errorf("%w: no usable rows (%d dropped)", types.ErrData, rec.DroppedRows)
	}
	return rec, nil
}

func parseRow(record []string, columns map[Column]int, start time.Time) (types.Reading, bool) {
	var r types.Reading

	ts, ok := parseTime(cell(record, columns, ColTime), start)
	if !ok {
		return r, false
	}
	r.Timestamp = ts

	for _, f := range []struct {
		col Column
		dst *float64
	}{
		{ColHolder, &r.HolderTemp},
		{ColLiquid, &r.LiquidTemp},
		{ColTarget, &r.TargetTemp},
		{ColAmbient, &r.AmbientTemp},
	} {
		v, ok := parseFloat(cell(record, columns, f.col))
		if !ok {
			return r, false
		}
		*f.dst = v
	}

	if v, ok := parseFloat(cell(record, columns, ColSink)); ok {
		r.SinkTemp = &v
	}
	if v, ok := parseFloat(cell(record, columns, ColPower)); ok {
		r.Power = &v
	}

	return r, true
}

func cell(record []string, columns map[Column]int, c Column) string {
	i, ok := columns[c]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func parseTime(s string, start time.Time) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if secs, ok := parseFloat(s); ok {
		return start.Add(time.Duration(secs * float64(time.Second))), true
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Loader reads recordings and reports dropped rows through its logger
type Loader struct {
	logger *zap.SugaredLogger
	opts   Options
}

// NewLoader creates a loader using opts for every file
func NewLoader(logger *zap.SugaredLogger, opts Options) *Loader {
	return &Loader{logger: logger, opts: opts}
}

// Load reads the recording at path
func (l *Loader) Load(path string) (Recording, error) {
	rec, err := ReadFile(path, l.opts)
	if err != nil {
		return rec, err
	}
	l.logger.Infof("read %d readings from %s", len(rec.Readings), path)
	if rec.DroppedRows > 0 {
		l.logger.Warnf("%s: dropped %d rows with missing or non-numeric channels", path, rec.DroppedRows)
	}
	return rec, nil
}
