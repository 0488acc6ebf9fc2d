//go:build dlib

package dlib

import (
	"context"
	"errors"
	"fmt"
	"sync"

	face "github.com/Kagami/go-face"

	"github.com/kozaktomas/faceverify/internal/facematch"
	"github.com/kozaktomas/faceverify/internal/imaging"
	"github.com/kozaktomas/faceverify/internal/recognition"
)

// Backend runs dlib models in process.
type Backend struct {
	dir string

	// dlib's recognizer is not safe for concurrent use.
	mu  sync.Mutex
	rec *face.Recognizer
}

// NewBackend creates a backend reading model files from dir.
func NewBackend(dir string) (recognition.Backend, error) {
	return &Backend{dir: dir}, nil
}

func (b *Backend) Name() string { return "dlib" }

func (b *Backend) Detectors(_ context.Context) ([]recognition.Detector, error) {
	return InstalledDetectors(b.dir), nil
}

func (b *Backend) Load(_ context.Context, _ recognition.Detector) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rec != nil {
		return nil
	}
	rec, err := face.NewRecognizer(b.dir)
	if err != nil {
		return fmt.Errorf("init dlib recognizer from %s: %w", b.dir, err)
	}
	b.rec = rec
	return nil
}

func (b *Backend) Detect(_ context.Context, img *imaging.Decoded, detector recognition.Detector) ([]facematch.Candidate, error) {
	// go-face only decodes JPEG.
	data, err := imaging.EncodeJPEG(img.Image)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rec == nil {
		return nil, errors.New("dlib recognizer not loaded")
	}

	var faces []face.Face
	if detector == recognition.DetectorAccurate {
		faces, err = b.rec.RecognizeCNN(data)
	} else {
		faces, err = b.rec.Recognize(data)
	}
	if err != nil {
		return nil, fmt.Errorf("dlib recognize: %w", err)
	}

	// dlib reports no confidence, so every face scores the same and the
	// largest one wins.
	candidates := make([]facematch.Candidate, 0, len(faces))
	for _, f := range faces {
		r := f.Rectangle
		candidates = append(candidates, facematch.Candidate{
			Embedding: f.Descriptor[:],
			BBox:      []float64{float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y)},
			Score:     1,
		})
	}
	return candidates, nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rec != nil {
		b.rec.Close()
		b.rec = nil
	}
	return nil
}
