package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/chrissnell/thermoffset/internal/types"
)

var steps = StepList{
	{
		TargetTemp:        10,
		HolderMean:        10.02,
		LiquidMean:        9.5,
		LiquidOffset:      -0.5,
		AmbientMean:       21.5,
		TimeToStability:   90 * time.Second,
		StabilityDetected: true,
		SampleCount:       60,
	},
	{
		TargetTemp:   12.5,
		LiquidOffset: -0.25,
		SampleCount:  30,
	},
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{".JSON", FormatJSON, false},
		{"", FormatJSON, false},
		{"msgpack", FormatMsgPack, false},
		{".mpk", FormatMsgPack, false},
		{"yml", FormatYAML, false},
		{".csv", FormatCSV, false},
		{"xlsx", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.name)
			if tt.wantErr {
				assert.True(t, errors.Is(err, types.ErrConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, steps))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "10", records[1][0])
	assert.Equal(t, "-0.5", records[1][6])
	assert.Equal(t, "90", records[1][9])
	assert.Equal(t, "true", records[1][10])
	assert.Equal(t, "12.5", records[2][0])
	assert.Equal(t, "30", records[2][11])
}

func TestWriteCSVNeedsSteps(t *testing.T) {
	err := Write(&bytes.Buffer{}, FormatCSV, map[string]int{"a": 1})
	assert.True(t, errors.Is(err, types.ErrConfig))
}

func TestWriteEncodings(t *testing.T) {
	data := types.ModelCoefficients{A: 0.004, B: 0.56, D: 4.85, ReferenceTemp: 20, Variant: types.VariantQuadratic}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, FormatJSON, data))
		var got types.ModelCoefficients
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, data, got)
	})

	t.Run("msgpack", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, FormatMsgPack, data))
		var got map[string]interface{}
		require.NoError(t, msgpack.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, "quadratic", got["variant"])
		assert.InDelta(t, 4.85, got["d"], 1e-12)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, FormatYAML, data))
		var got types.ModelCoefficients
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, data, got)
	})
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "steps.csv")
	require.NoError(t, WriteFile(path, steps))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "target_temp,holder_temp_mean")

	err = WriteFile(filepath.Join(t.TempDir(), "report.xlsx"), steps)
	assert.True(t, errors.Is(err, types.ErrConfig))
}
