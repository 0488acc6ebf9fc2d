// Package recognition loads face models once per process and turns decoded
// images into face descriptors.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/faceverify/internal/facematch"
	"github.com/kozaktomas/faceverify/internal/imaging"
)

var (
	// ErrNoFaceDetected is an expected outcome, not a system failure.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrModelLoadFailed wraps any failure to load the recognition models.
	ErrModelLoadFailed = errors.New("model load failed")
	// ErrDetectorUnavailable is returned when the requested detector is not installed.
	ErrDetectorUnavailable = errors.New("detector unavailable")
)

// Detector identifies a face detection model variant.
type Detector string

const (
	// DetectorFast is the quicker, less accurate detector.
	DetectorFast Detector = "fast"
	// DetectorAccurate is the slower, more accurate detector.
	DetectorAccurate Detector = "accurate"
)

// Preference selects how the runtime picks a detector at load time.
type Preference string

const (
	PreferAuto     Preference = "auto"
	PreferFast     Preference = "fast"
	PreferAccurate Preference = "accurate"
)

// ParsePreference parses "auto", "fast" or "accurate". Empty means auto.
func ParsePreference(s string) (Preference, error) {
	switch p := Preference(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PreferAuto:
		return PreferAuto, nil
	case PreferFast, PreferAccurate:
		return p, nil
	default:
		return "", fmt.Errorf("unknown detector preference %q", s)
	}
}

// Backend is a face recognition implementation. Detect must only be called
// after a successful Load.
type Backend interface {
	// Name identifies the backend in logs and health output.
	Name() string
	// Detectors reports which detectors are installed.
	Detectors(ctx context.Context) ([]Detector, error)
	// Load loads the detector, landmark and embedding models.
	Load(ctx context.Context, detector Detector) error
	// Detect runs one detection pass and returns every face found with its embedding.
	Detect(ctx context.Context, img *imaging.Decoded, detector Detector) ([]facematch.Candidate, error)
	Close() error
}

// SelectDetector applies pref to the installed detectors.
func SelectDetector(pref Preference, available []Detector) (Detector, error) {
	has := func(d Detector) bool {
		for _, a := range available {
			if a == d {
				return true
			}
		}
		return false
	}

	switch pref {
	case PreferFast:
		if has(DetectorFast) {
			return DetectorFast, nil
		}
		return "", fmt.Errorf("%w: %s", ErrDetectorUnavailable, DetectorFast)
	case PreferAccurate:
		if has(DetectorAccurate) {
			return DetectorAccurate, nil
		}
		return "", fmt.Errorf("%w: %s", ErrDetectorUnavailable, DetectorAccurate)
	default:
		if has(DetectorFast) {
			return DetectorFast, nil
		}
		if has(DetectorAccurate) {
			return DetectorAccurate, nil
		}
		return "", fmt.Errorf("%w: no face detector installed", ErrDetectorUnavailable)
	}
}
