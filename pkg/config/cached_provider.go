package config

import (
	"sync"

	"github.com/chrissnell/thermoffset/internal/types"
)

// CachedProvider wraps a CorrectionProvider and keeps the last loaded
// coefficients in memory so repeated corrections do not hit the backend.
// Saving through the wrapper refreshes the cached copy.
type CachedProvider struct {
	provider CorrectionProvider

	mu     sync.RWMutex
	coeffs *types.ModelCoefficients
}

// NewCachedProvider creates a caching wrapper around provider
func NewCachedProvider(provider CorrectionProvider) *CachedProvider {
	return &CachedProvider{
		provider: provider,
	}
}

// LoadCorrection returns the cached coefficients, loading them on first use
func (c *CachedProvider) LoadCorrection() (types.ModelCoefficients, error) {
	c.mu.RLock()
	if c.coeffs != nil {
		coeffs := *c.coeffs
		c.mu.RUnlock()
		return coeffs, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.coeffs != nil {
		return *c.coeffs, nil
	}

	coeffs, err := c.provider.LoadCorrection()
	if err != nil {
		return types.ModelCoefficients{}, err
	}
	c.coeffs = &coeffs
	return coeffs, nil
}

// SaveCorrection writes through to the wrapped provider
func (c *CachedProvider) SaveCorrection(coeffs types.ModelCoefficients) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.provider.SaveCorrection(coeffs); err != nil {
		c.coeffs = nil
		return err
	}
	c.coeffs = &coeffs
	return nil
}

// LoadConfig delegates to wrapped provider and primes the cache
func (c *CachedProvider) LoadConfig() (*ConfigData, error) {
	config, err := c.provider.LoadConfig()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	coeffs := config.Correction
	c.coeffs = &coeffs
	c.mu.Unlock()

	return config, nil
}

// Invalidate drops the cached coefficients
func (c *CachedProvider) Invalidate() {
	c.mu.Lock()
	c.coeffs = nil
	c.mu.Unlock()
}

func (c *CachedProvider) IsReadOnly() bool {
	return c.provider.IsReadOnly()
}

func (c *CachedProvider) Close() error {
	return c.provider.Close()
}

// Backend returns the wrapped provider
func (c *CachedProvider) Backend() CorrectionProvider {
	return c.provider
}
