// Package facematch holds face descriptors and the distance comparator used to
// decide whether two descriptors belong to the same person.
package facematch

import (
	"errors"
	"fmt"
)

// DescriptorSize is the length of every descriptor produced by the recognition models.
const DescriptorSize = 128

var (
	ErrEmptyDescriptor   = errors.New("empty descriptor")
	ErrDimensionMismatch = errors.New("descriptor dimension mismatch")
)

// Descriptor is a face embedding. Build it with NewDescriptor and treat it as
// read-only afterwards; Values returns a copy.
type Descriptor struct {
	values []float32
}

// NewDescriptor copies values into a new Descriptor. Values must be exactly
// DescriptorSize long.
func NewDescriptor(values []float32) (Descriptor, error) {
	if len(values) == 0 {
		return Descriptor{}, ErrEmptyDescriptor
	}
	if len(values) != DescriptorSize {
		return Descriptor{}, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(values), DescriptorSize)
	}
	return Descriptor{values: append([]float32(nil), values...)}, nil
}

// Len returns the number of dimensions.
func (d Descriptor) Len() int {
	return len(d.values)
}

// IsZero reports whether d was never initialised.
func (d Descriptor) IsZero() bool {
	return d.values == nil
}

// Values returns a copy of the underlying vector.
func (d Descriptor) Values() []float32 {
	return append([]float32(nil), d.values...)
}

// MatchResult is the outcome of comparing two descriptors.
type MatchResult struct {
	Distance  float64 `json:"distance"`
	Threshold float64 `json:"threshold"`
	Match     bool    `json:"match"`
}
