package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/thermoffset/internal/types"
)

var fitted = types.ModelCoefficients{
	A:             0.0041,
	B:             0.55,
	C:             -0.12,
	D:             4.9,
	ReferenceTemp: 22,
	Variant:       types.VariantAmbient,
}

func TestYAMLProviderMissingFileUsesDefaults(t *testing.T) {
	p := NewYAMLProvider(filepath.Join(t.TempDir(), "config.yaml"))

	cfg, err := p.LoadConfig()
	require.NoError(t, err)
	assert.True(t, p.Missing())
	assert.Equal(t, DefaultCorrection(), cfg.Correction)
	assert.Equal(t, "sqlite", cfg.Dataset.Driver)
	assert.Equal(t, DefaultReferenceTemp, cfg.Analysis.ReferenceTemp)
	assert.Greater(t, cfg.Analysis.Workers, 0)
}

func TestYAMLProviderPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
correction:
  a: 0.005
  b: 0.6
  d: 5
paths:
  raw_data: /srv/recordings
dataset:
  driver: postgres
  dsn: postgres://thermo@localhost/thermo?sslmode=disable
`), 0o644))

	p := NewYAMLProvider(path)
	cfg, err := p.LoadConfig()
	require.NoError(t, err)
	assert.False(t, p.Missing())

	assert.Equal(t, 0.005, cfg.Correction.A)
	assert.Equal(t, 0.0, cfg.Correction.C)
	assert.Equal(t, DefaultReferenceTemp, cfg.Correction.ReferenceTemp)
	assert.Equal(t, types.VariantQuadratic, cfg.Correction.Variant)
	assert.Equal(t, "/srv/recordings", cfg.Paths.RawData)
	assert.Equal(t, "data/processed", cfg.Paths.ProcessedData)
	assert.Equal(t, "postgres", cfg.Dataset.Driver)
}

func TestYAMLProviderMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("correction: [1, 2"), 0o644))

	_, err := NewYAMLProvider(path).LoadConfig()
	assert.True(t, errors.Is(err, types.ErrConfig))
}

func TestYAMLProviderSaveKeepsOtherSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")
	p := NewYAMLProvider(path)

	require.NoError(t, p.SaveCorrection(fitted))
	assert.False(t, p.Missing())

	got, err := p.LoadCorrection()
	require.NoError(t, err)
	assert.Equal(t, fitted, got)

	cfg, err := p.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "data/raw", cfg.Paths.RawData)
}

func TestSQLiteProvider(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "config.db")
	p, err := NewSQLiteProvider(dbPath)
	require.NoError(t, err)

	got, err := p.LoadCorrection()
	require.NoError(t, err)
	assert.Equal(t, DefaultCorrection(), got)

	require.NoError(t, p.SaveCorrection(fitted))

	got, err = p.LoadCorrection()
	require.NoError(t, err)
	assert.Equal(t, fitted, got)

	cfg, err := p.LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Analysis.UseAmbient)
	assert.Equal(t, dbPath, cfg.Dataset.DSN)
	assert.False(t, p.IsReadOnly())

	// reopening sees the stored values
	require.NoError(t, p.Close())
	p2, err := NewSQLiteProvider(dbPath)
	require.NoError(t, err)
	defer p2.Close()
	got, err = p2.LoadCorrection()
	require.NoError(t, err)
	assert.Equal(t, fitted, got)
}

func TestSaveCorrectionValidates(t *testing.T) {
	bad := []types.ModelCoefficients{
		{A: math.NaN(), Variant: types.VariantQuadratic},
		{D: math.Inf(1), Variant: types.VariantQuadratic},
		{Variant: "cubic"},
	}

	p, err := NewSQLiteProvider(filepath.Join(t.TempDir(), "config.db"))
	require.NoError(t, err)
	defer p.Close()

	for _, c := range bad {
		assert.True(t, errors.Is(p.SaveCorrection(c), types.ErrConfig))
		assert.True(t, errors.Is(NewYAMLProvider(filepath.Join(t.TempDir(), "c.yaml")).SaveCorrection(c), types.ErrConfig))
	}
}

// countingProvider counts backend loads
type countingProvider struct {
	CorrectionProvider
	loads int
}

func (c *countingProvider) LoadCorrection() (types.ModelCoefficients, error) {
	c.loads++
	return c.CorrectionProvider.LoadCorrection()
}

func TestCachedProvider(t *testing.T) {
	backend := &countingProvider{CorrectionProvider: NewYAMLProvider(filepath.Join(t.TempDir(), "config.yaml"))}
	cached := NewCachedProvider(backend)

	for i := 0; i < 3; i++ {
		got, err := cached.LoadCorrection()
		require.NoError(t, err)
		assert.Equal(t, DefaultCorrection(), got)
	}
	assert.Equal(t, 1, backend.loads)

	require.NoError(t, cached.SaveCorrection(fitted))
	got, err := cached.LoadCorrection()
	require.NoError(t, err)
	assert.Equal(t, fitted, got)
	assert.Equal(t, 1, backend.loads)

	cached.Invalidate()
	got, err = cached.LoadCorrection()
	require.NoError(t, err)
	assert.Equal(t, fitted, got)
	assert.Equal(t, 2, backend.loads)
}
