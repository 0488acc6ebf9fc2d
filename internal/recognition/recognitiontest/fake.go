// Package recognitiontest provides a deterministic recognition backend for tests.
//
// The fake treats the average colour of an image as the identity of the face
// in it. FaceImage(n) renders person n; BlankImage renders an image with no face.
package recognitiontest

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"time"

	"github.com/kozaktomas/faceverify/internal/facematch"
	"github.com/kozaktomas/faceverify/internal/imaging"
	"github.com/kozaktomas/faceverify/internal/recognition"
)

// channel levels are far enough apart that two different people are always
// more than 0.6 apart once scaled by channelScale.
var levels = [3]uint8{40, 120, 200}

const channelScale = 50.0

// Backend is an in-memory recognition.Backend.
type Backend struct {
	Available []recognition.Detector
	LoadDelay time.Duration
	// The first FailLoads calls to Load return LoadErr.
	FailLoads int
	LoadErr   error
	DetectErr error
	// EmbeddingSize overrides the embedding length; 0 means facematch.DescriptorSize.
	EmbeddingSize int

	mu          sync.Mutex
	loadCalls   int
	detectCalls int
	loaded      recognition.Detector
	closed      bool
}

// New returns a Backend with both detectors installed.
func New() *Backend {
	return &Backend{
		Available: []recognition.Detector{recognition.DetectorFast, recognition.DetectorAccurate},
	}
}

func (b *Backend) Name() string { return "fake" }

func (b *Backend) Detectors(_ context.Context) ([]recognition.Detector, error) {
	return b.Available, nil
}

func (b *Backend) Load(ctx context.Context, detector recognition.Detector) error {
	b.mu.Lock()
	b.loadCalls++
	fail := b.loadCalls <= b.FailLoads
	b.mu.Unlock()

	if b.LoadDelay > 0 {
		select {
		case <-time.After(b.LoadDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail {
		return b.LoadErr
	}

	b.mu.Lock()
	b.loaded = detector
	b.mu.Unlock()
	return nil
}

func (b *Backend) Detect(_ context.Context, img *imaging.Decoded, _ recognition.Detector) ([]facematch.Candidate, error) {
	b.mu.Lock()
	b.detectCalls++
	b.mu.Unlock()

	if b.DetectErr != nil {
		return nil, b.DetectErr
	}

	r, g, bl := averageColor(img.Image)
	if isBlank(r, g, bl) {
		return nil, nil
	}

	size := b.EmbeddingSize
	if size == 0 {
		size = facematch.DescriptorSize
	}
	embedding := make([]float32, size)
	embedding[0] = float32(r / channelScale)
	if size > 1 {
		embedding[1] = float32(g / channelScale)
	}
	if size > 2 {
		embedding[2] = float32(bl / channelScale)
	}

	bounds := img.Image.Bounds()
	return []facematch.Candidate{{
		Embedding: embedding,
		BBox:      []float64{0, 0, float64(bounds.Dx()), float64(bounds.Dy())},
		Score:     0.99,
	}}, nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// LoadCalls returns how many times Load ran.
func (b *Backend) LoadCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loadCalls
}

// DetectCalls returns how many times Detect ran.
func (b *Backend) DetectCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.detectCalls
}

// LoadedDetector returns the detector passed to the last successful Load.
func (b *Backend) LoadedDetector() recognition.Detector {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded
}

// Closed reports whether Close was called.
func (b *Backend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// FaceColor returns the colour used to render person n. There are 27 distinct people.
func FaceColor(n int) color.RGBA {
	n %= 27
	return color.RGBA{R: levels[n/9%3], G: levels[n/3%3], B: levels[n%3], A: 255}
}

// FaceImage returns a PNG showing person n.
func FaceImage(n int) []byte {
	return solidPNG(64, 64, FaceColor(n))
}

// LargeFaceImage returns a PNG of person n at the given size.
func LargeFaceImage(n, width, height int) []byte {
	return solidPNG(width, height, FaceColor(n))
}

// BlankImage returns a PNG with no face in it.
func BlankImage() []byte {
	return solidPNG(64, 64, color.RGBA{R: 255, G: 255, B: 255, A: 255})
}

func solidPNG(width, height int, c color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func averageColor(img image.Image) (r, g, b float64) {
	bounds := img.Bounds()
	n := float64(bounds.Dx() * bounds.Dy())
	if n == 0 {
		return 255, 255, 255
	}
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			pr, pg, pb, _ := img.At(x, y).RGBA()
			r += float64(pr >> 8)
			g += float64(pg >> 8)
			b += float64(pb >> 8)
		}
	}
	return r / n, g / n, b / n
}

func isBlank(r, g, b float64) bool {
	return (r > 240 && g > 240 && b > 240) || (r < 15 && g < 15 && b < 15)
}
