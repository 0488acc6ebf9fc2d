package recognition

import (
	"context"
	"fmt"

	"github.com/kozaktomas/faceverify/internal/facematch"
	"github.com/kozaktomas/faceverify/internal/imaging"
)

// Computer turns decoded images into descriptors.
type Computer struct {
	runtime *Runtime
}

// NewComputer creates a Computer backed by rt.
func NewComputer(rt *Runtime) *Computer {
	return &Computer{runtime: rt}
}

// Runtime returns the model runtime used by c.
func (c *Computer) Runtime() *Runtime {
	return c.runtime
}

// Compute detects faces in img and returns the descriptor of the best one.
// Returns ErrNoFaceDetected when the image has no face.
func (c *Computer) Compute(ctx context.Context, img *imaging.Decoded) (facematch.Descriptor, error) {
	if err := c.runtime.EnsureLoaded(ctx); err != nil {
		return facematch.Descriptor{}, err
	}

	candidates, err := c.runtime.backend.Detect(ctx, img, c.runtime.Detector())
	if err != nil {
		return facematch.Descriptor{}, fmt.Errorf("face detection failed: %w", err)
	}

	best := facematch.SelectBest(candidates)
	if best < 0 {
		return facematch.Descriptor{}, ErrNoFaceDetected
	}

	descriptor, err := facematch.NewDescriptor(candidates[best].Embedding)
	if err != nil {
		return facematch.Descriptor{}, fmt.Errorf("invalid embedding from %s backend: %w", c.runtime.backend.Name(), err)
	}
	return descriptor, nil
}
