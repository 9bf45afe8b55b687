package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/chrissnell/thermoffset/internal/types"
)

// YAMLProvider implements CorrectionProvider for YAML configuration files
type YAMLProvider struct {
	filename string

	mu      sync.Mutex
	missing bool
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from the YAML file. A missing
// file yields the default configuration; Missing reports when that happened.
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.load()
}

func (y *YAMLProvider) load() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if errors.Is(err, fs.ErrNotExist) {
		y.missing = true
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, err
	}
	y.missing = false

	config := &ConfigData{}
	if err := yaml.Unmarshal(cfgFile, config); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", types.ErrConfig, y.filename, err)
	}
	config.normalize()

	return config, nil
}

// Missing reports whether the last load found no configuration file
func (y *YAMLProvider) Missing() bool {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.missing
}

// LoadCorrection returns the configured model coefficients
func (y *YAMLProvider) LoadCorrection() (types.ModelCoefficients, error) {
	config, err := y.LoadConfig()
	if err != nil {
		return types.ModelCoefficients{}, err
	}
	return config.Correction, nil
}

// SaveCorrection replaces the correction block and rewrites the file,
// keeping the other sections
func (y *YAMLProvider) SaveCorrection(coeffs types.ModelCoefficients) error {
	if err := validateCorrection(coeffs); err != nil {
		return err
	}

	y.mu.Lock()
	defer y.mu.Unlock()

	config, err := y.load()
	if err != nil {
		return err
	}
	config.Correction = coeffs

	out, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if dir := filepath.Dir(y.filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	tmp := y.filename + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	if err := os.Rename(tmp, y.filename); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace configuration: %w", err)
	}

	y.missing = false
	return nil
}

// IsReadOnly returns false since the file is rewritten on save
func (y *YAMLProvider) IsReadOnly() bool {
	return false
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}
