package facematch

import (
	"errors"
	"math"
	"testing"
)

func descriptorOf(t *testing.T, fill func(i int) float32) Descriptor {
	t.Helper()
	values := make([]float32, DescriptorSize)
	for i := range values {
		values[i] = fill(i)
	}
	d, err := NewDescriptor(values)
	if err != nil {
		t.Fatalf("NewDescriptor: %v", err)
	}
	return d
}

func TestNewDescriptor(t *testing.T) {
	tests := []struct {
		name    string
		values  []float32
		wantErr error
	}{
		{"valid", make([]float32, DescriptorSize), nil},
		{"empty", nil, ErrEmptyDescriptor},
		{"too short", make([]float32, 64), ErrDimensionMismatch},
		{"too long", make([]float32, 512), ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDescriptor(tt.values)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewDescriptor() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewDescriptor_Copies(t *testing.T) {
	values := make([]float32, DescriptorSize)
	d, err := NewDescriptor(values)
	if err != nil {
		t.Fatal(err)
	}
	values[0] = 42
	if d.Values()[0] != 0 {
		t.Error("descriptor must not alias the input slice")
	}

	out := d.Values()
	out[1] = 7
	if d.Values()[1] != 0 {
		t.Error("Values must return a copy")
	}
}

func TestCompare_Identical(t *testing.T) {
	a := descriptorOf(t, func(i int) float32 { return float32(i) / 100 })

	for _, threshold := range []float64{0.0001, 0.6, 2} {
		result, err := Compare(a, a, threshold)
		if err != nil {
			t.Fatal(err)
		}
		if result.Distance != 0 {
			t.Errorf("expected distance 0, got %v", result.Distance)
		}
		if !result.Match {
			t.Errorf("expected match for threshold %v", threshold)
		}
		if result.Threshold != threshold {
			t.Errorf("expected threshold %v echoed, got %v", threshold, result.Threshold)
		}
	}
}

func TestCompare_ThresholdIsStrict(t *testing.T) {
	zero := descriptorOf(t, func(int) float32 { return 0 })
	// A single dimension set to 0.5 gives a distance of exactly 0.5.
	other := descriptorOf(t, func(i int) float32 {
		if i == 0 {
			return 0.5
		}
		return 0
	})

	result, err := Compare(zero, other, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if result.Distance != 0.5 {
		t.Fatalf("expected distance 0.5, got %v", result.Distance)
	}
	if result.Match {
		t.Error("distance equal to threshold must not match")
	}

	result, _ = Compare(zero, other, 0.5000001)
	if !result.Match {
		t.Error("distance just below threshold must match")
	}
}

func TestCompare_Symmetric(t *testing.T) {
	a := descriptorOf(t, func(i int) float32 { return float32(math.Sin(float64(i))) / 10 })
	b := descriptorOf(t, func(i int) float32 { return float32(math.Cos(float64(i))) / 10 })

	ab, err := Compare(a, b, DefaultThreshold)
	if err != nil {
		t.Fatal(err)
	}
	ba, err := Compare(b, a, DefaultThreshold)
	if err != nil {
		t.Fatal(err)
	}
	if ab.Distance != ba.Distance {
		t.Errorf("expected symmetric distance, got %v and %v", ab.Distance, ba.Distance)
	}
}

func TestCompare_DimensionMismatch(t *testing.T) {
	a := descriptorOf(t, func(int) float32 { return 0 })
	b := Descriptor{values: make([]float32, 64)}

	if _, err := Compare(a, b, DefaultThreshold); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := Compare(a, Descriptor{}, DefaultThreshold); !errors.Is(err, ErrEmptyDescriptor) {
		t.Errorf("expected ErrEmptyDescriptor, got %v", err)
	}
}
