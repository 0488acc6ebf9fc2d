package facematch

import (
	"fmt"
	"math"
)

// DefaultThreshold is the Euclidean distance under which two descriptors are
// considered the same person.
const DefaultThreshold = 0.6

// EuclideanDistance returns the L2 distance between a and b.
func EuclideanDistance(a, b Descriptor) (float64, error) {
	if a.Len() == 0 || b.Len() == 0 {
		return 0, ErrEmptyDescriptor
	}
	if a.Len() != b.Len() {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, a.Len(), b.Len())
	}

	var sum float64
	for i := range a.values {
		diff := float64(a.values[i]) - float64(b.values[i])
		sum += diff * diff
	}
	return math.Sqrt(sum), nil
}

// Compare measures the distance between a and b and applies threshold.
// Equal-to-threshold is not a match.
func Compare(a, b Descriptor, threshold float64) (MatchResult, error) {
	distance, err := EuclideanDistance(a, b)
	if err != nil {
		return MatchResult{}, err
	}
	return MatchResult{
		Distance:  distance,
		Threshold: threshold,
		Match:     distance < threshold,
	}, nil
}
