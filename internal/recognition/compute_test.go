package recognition_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/faceverify/internal/facematch"
	"github.com/kozaktomas/faceverify/internal/imaging"
	"github.com/kozaktomas/faceverify/internal/recognition"
	"github.com/kozaktomas/faceverify/internal/recognition/recognitiontest"
)

func decode(t *testing.T, data []byte) *imaging.Decoded {
	t.Helper()
	img, err := imaging.DecodeAndDownscale(data, 480, 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return img
}

func newComputer(backend *recognitiontest.Backend) *recognition.Computer {
	return recognition.NewComputer(recognition.NewRuntime(backend, recognition.PreferAuto, time.Second))
}

func TestCompute_SameFaceMatches(t *testing.T) {
	c := newComputer(recognitiontest.New())
	ctx := context.Background()

	a, err := c.Compute(ctx, decode(t, recognitiontest.FaceImage(3)))
	if err != nil {
		t.Fatal(err)
	}
	// Same person at a larger resolution goes through downscaling.
	b, err := c.Compute(ctx, decode(t, recognitiontest.LargeFaceImage(3, 1024, 768)))
	if err != nil {
		t.Fatal(err)
	}

	if a.Len() != facematch.DescriptorSize {
		t.Errorf("expected %d dimensions, got %d", facematch.DescriptorSize, a.Len())
	}
	result, err := facematch.Compare(a, b, facematch.DefaultThreshold)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Match {
		t.Errorf("expected match, distance %v", result.Distance)
	}
}

func TestCompute_DifferentFacesDoNotMatch(t *testing.T) {
	c := newComputer(recognitiontest.New())
	ctx := context.Background()

	for i := range 26 {
		a, err := c.Compute(ctx, decode(t, recognitiontest.FaceImage(i)))
		if err != nil {
			t.Fatal(err)
		}
		b, err := c.Compute(ctx, decode(t, recognitiontest.FaceImage(i+1)))
		if err != nil {
			t.Fatal(err)
		}
		result, _ := facematch.Compare(a, b, facematch.DefaultThreshold)
		if result.Match {
			t.Errorf("faces %d and %d must not match (distance %v)", i, i+1, result.Distance)
		}
	}
}

func TestCompute_NoFace(t *testing.T) {
	c := newComputer(recognitiontest.New())

	_, err := c.Compute(context.Background(), decode(t, recognitiontest.BlankImage()))
	if !errors.Is(err, recognition.ErrNoFaceDetected) {
		t.Errorf("expected ErrNoFaceDetected, got %v", err)
	}
}

func TestCompute_LoadsModelsFirst(t *testing.T) {
	backend := recognitiontest.New()
	c := newComputer(backend)

	if c.Runtime().Loaded() {
		t.Fatal("runtime should start unloaded")
	}
	if _, err := c.Compute(context.Background(), decode(t, recognitiontest.FaceImage(1))); err != nil {
		t.Fatal(err)
	}
	if !c.Runtime().Loaded() || backend.LoadCalls() != 1 {
		t.Errorf("expected one load before detection, got %d", backend.LoadCalls())
	}
}

func TestCompute_ModelLoadFailure(t *testing.T) {
	backend := recognitiontest.New()
	backend.FailLoads = 1
	backend.LoadErr = errors.New("missing weights")
	c := newComputer(backend)

	_, err := c.Compute(context.Background(), decode(t, recognitiontest.FaceImage(1)))
	if !errors.Is(err, recognition.ErrModelLoadFailed) {
		t.Errorf("expected ErrModelLoadFailed, got %v", err)
	}
	if backend.DetectCalls() != 0 {
		t.Error("detection must not run without models")
	}
}

func TestCompute_WrongEmbeddingSize(t *testing.T) {
	backend := recognitiontest.New()
	backend.EmbeddingSize = 512
	c := newComputer(backend)

	_, err := c.Compute(context.Background(), decode(t, recognitiontest.FaceImage(1)))
	if !errors.Is(err, facematch.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestCompute_DetectError(t *testing.T) {
	backend := recognitiontest.New()
	backend.DetectErr = errors.New("inference crashed")
	c := newComputer(backend)

	_, err := c.Compute(context.Background(), decode(t, recognitiontest.FaceImage(1)))
	if !errors.Is(err, backend.DetectErr) {
		t.Errorf("expected detect error to be wrapped, got %v", err)
	}
	if errors.Is(err, recognition.ErrNoFaceDetected) {
		t.Error("a detection failure must not be reported as no face")
	}
}
