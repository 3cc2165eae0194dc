package clustering

import (
	"math"
	"strings"

	"LatentTrader/internal/domain/errs"
)

// Mode selects how a row of densities becomes membership weights.
type Mode int

const (
	// RowSum divides every density by the row total (soft assignment).
	RowSum Mode = iota
	// ArgMax gives the best prototype weight 1 and floors the rest (hard assignment).
	ArgMax
)

func (m Mode) String() string {
	if m == ArgMax {
		return "argmax"
	}
	return "rowsum"
}

// DensityFunc scores the affinity of feature f to prototype c.
type DensityFunc func(f, c []float64) float64

// Policy is a clustering strategy: a density plus the way rows are normalized.
type Policy struct {
	Name    string
	Density DensityFunc
	Mode    Mode
}

// Soft reports whether the policy produces fractional memberships.
func (p Policy) Soft() bool { return p.Mode == RowSum }

const (
	PolicyGaussian   = "gaussian"
	PolicyDotProduct = "dot_product"
	PolicyCosine     = "cosine"
	PolicyHardKMeans = "hard_kmeans"
)

// hardFloor is the weight every non-winning prototype keeps under ArgMax.
const hardFloor = 0.25

// Gaussian scores by exp(-0.5 * squared euclidean distance).
func Gaussian() Policy {
	return Policy{
		Name: PolicyGaussian,
		Density: func(f, c []float64) float64 {
			return math.Exp(-0.5 * squaredDistance(f, c))
		},
		Mode: RowSum,
	}
}

// DotProduct scores by exp(weight * dot / (W-1)).
func DotProduct(weight float64) Policy {
	return Policy{
		Name: PolicyDotProduct,
		Density: func(f, c []float64) float64 {
			return math.Exp(weight * dot(f, c) / besselDenom(len(f)))
		},
		Mode: RowSum,
	}
}

// Cosine scores by dot / W. Inputs are expected to be unit-variance
// normalized. Negative dot / W is clamped to 0 because RowSum needs
// non-negative weights; a raw negative cell would break the row sum.
func Cosine() Policy {
	return Policy{
		Name: PolicyCosine,
		Density: func(f, c []float64) float64 {
			return math.Max(0, dot(f, c)/float64(len(f)))
		},
		Mode: RowSum,
	}
}

// HardKMeans scores by exp(1 - mean absolute difference) squared and
// assigns every feature to its single best prototype.
func HardKMeans() Policy {
	return Policy{
		Name: PolicyHardKMeans,
		Density: func(f, c []float64) float64 {
			e := math.Exp(1 - meanAbsDiff(f, c))
			return e * e
		},
		Mode: ArgMax,
	}
}

// PolicyByName resolves a configured policy. weight only applies to dot_product.
func PolicyByName(name string, weight float64) (Policy, error) {
	switch strings.ToLower(name) {
	case "", PolicyGaussian:
		return Gaussian(), nil
	case PolicyDotProduct:
		return DotProduct(weight), nil
	case PolicyCosine:
		return Cosine(), nil
	case PolicyHardKMeans:
		return HardKMeans(), nil
	default:
		return Policy{}, errs.InvalidArgumentf("clustering policy %q", name)
	}
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func squaredDistance(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func meanAbsDiff(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	s := 0.0
	for i := range a {
		s += math.Abs(a[i] - b[i])
	}
	return s / float64(len(a))
}

// besselDenom is n-1, floored at 1 for single-value windows.
func besselDenom(n int) float64 {
	if n < 2 {
		return 1
	}
	return float64(n - 1)
}
