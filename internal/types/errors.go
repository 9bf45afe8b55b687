package types

import "errors"

var (
	// ErrData marks empty or undersized readings and step slices
	ErrData = errors.New("insufficient or malformed data")

	// ErrConfig marks malformed experiment settings or configuration
	ErrConfig = errors.New("invalid configuration")

	// ErrInsufficientData marks a fit with no more data points than free parameters
	ErrInsufficientData = errors.New("insufficient data for fit")

	// ErrFit marks a fit whose design matrix could not be solved
	ErrFit = errors.New("model fit failed")
)
