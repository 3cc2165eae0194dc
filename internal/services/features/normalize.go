package features

import (
	"math"
	"strings"

	"LatentTrader/internal/domain/errs"
)

// degenerateTol treats round-off noise around a constant vector as zero spread.
const degenerateTol = 1e-12

// NormalizeFunc rescales v in place and returns it.
type NormalizeFunc func(v []float64) ([]float64, error)

// Normalizer is a named normalization policy. One policy is used per run.
type Normalizer struct {
	Name  string
	Apply NormalizeFunc
}

var (
	ZScore       = Normalizer{Name: "zscore", Apply: ZScoreNormalize}
	UnitVariance = Normalizer{Name: "unit_variance", Apply: UnitVarianceNormalize}
)

// NormalizerByName resolves a configured normalizer.
func NormalizerByName(name string) (Normalizer, error) {
	switch strings.ToLower(name) {
	case "", ZScore.Name:
		return ZScore, nil
	case UnitVariance.Name:
		return UnitVariance, nil
	default:
		return Normalizer{}, errs.InvalidArgumentf("normalizer %q", name)
	}
}

// ZScoreNormalize subtracts the sample mean and divides by the sample
// standard deviation (n-1 denominator).
func ZScoreNormalize(v []float64) ([]float64, error) {
	if len(v) < 2 {
		return nil, errs.Shapef("z-score needs at least 2 values, got %d", len(v))
	}
	mean := Mean(v)
	std := math.Sqrt(sumSquares(v, mean) / float64(len(v)-1))
	return scale(v, mean, std)
}

// UnitVarianceNormalize subtracts the population mean and divides by the
// population standard deviation (n denominator).
func UnitVarianceNormalize(v []float64) ([]float64, error) {
	if len(v) == 0 {
		return nil, errs.Shapef("empty vector")
	}
	mean := Mean(v)
	std := math.Sqrt(sumSquares(v, mean) / float64(len(v)))
	return scale(v, mean, std)
}

// Mean returns the arithmetic mean of v.
func Mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

// SampleStd returns the n-1 standard deviation of v.
func SampleStd(v []float64) float64 {
	if len(v) < 2 {
		return 0
	}
	return math.Sqrt(sumSquares(v, Mean(v)) / float64(len(v)-1))
}

func sumSquares(v []float64, mean float64) float64 {
	s := 0.0
	for _, x := range v {
		d := x - mean
		s += d * d
	}
	return s
}

func scale(v []float64, mean, std float64) ([]float64, error) {
	if std == 0 || std < degenerateTol*math.Max(1, math.Abs(mean)) {
		return nil, errs.ErrDegenerateVector
	}
	for i := range v {
		v[i] = (v[i] - mean) / std
	}
	return v, nil
}
