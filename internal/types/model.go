package types

// ModelVariant selects which offset model a set of coefficients belongs to
type ModelVariant string

const (
	// VariantQuadratic is offset = A*t^2 + B*t + D
	VariantQuadratic ModelVariant = "quadratic"
	// VariantAmbient is offset = A*t^2 + B*t + C*(ambient - ReferenceTemp) + D
	VariantAmbient ModelVariant = "ambient"
)

// ModelCoefficients parameterise the liquid temperature offset model
//
//	offset = A*target^2 + B*target + C*(ambient - ReferenceTemp) + D
//
// The quadratic variant always carries C = 0.
type ModelCoefficients struct {
	A             float64      `json:"a" yaml:"a" msgpack:"a"`
	B             float64      `json:"b" yaml:"b" msgpack:"b"`
	C             float64      `json:"c" yaml:"c" msgpack:"c"`
	D             float64      `json:"d" yaml:"d" msgpack:"d"`
	ReferenceTemp float64      `json:"reference_temp" yaml:"reference_temp" msgpack:"reference_temp"`
	Variant       ModelVariant `json:"variant" yaml:"variant" msgpack:"variant"`
}

// UsesAmbient reports whether the ambient term participates in the model
func (m ModelCoefficients) UsesAmbient() bool {
	return m.Variant == VariantAmbient
}

// Offset evaluates the offset model at the given target and ambient temperature
func (m ModelCoefficients) Offset(target, ambient float64) float64 {
	return m.A*target*target + m.B*target + m.C*(ambient-m.ReferenceTemp) + m.D
}

// Branch records which solution path produced a corrected set point
type Branch string

const (
	// BranchExact is a real root of the inverted model
	BranchExact Branch = "exact"
	// BranchLinearFallback is the linear approximation used when no real root exists
	BranchLinearFallback Branch = "linear-fallback"
	// BranchFailsafe maps the desired temperature straight through
	BranchFailsafe Branch = "failsafe"
)

// Degraded reports whether the branch is a reduced-confidence result
func (b Branch) Degraded() bool {
	return b != BranchExact
}

// CorrectionResult is the holder set point computed for a desired liquid temperature
type CorrectionResult struct {
	Target float64 `json:"target" msgpack:"target"`
	Branch Branch  `json:"branch" msgpack:"branch"`
}
