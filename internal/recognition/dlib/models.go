// Package dlib implements an in-process recognition backend on top of dlib
// via github.com/Kagami/go-face. The real implementation needs cgo and the
// dlib libraries and is only compiled with the "dlib" build tag.
package dlib

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/kozaktomas/faceverify/internal/recognition"
)

const (
	ShapePredictorFile = "shape_predictor_5_face_landmarks.dat"
	RecognitionFile    = "dlib_face_recognition_resnet_model_v1.dat"
	CNNDetectorFile    = "mmod_human_face_detector.dat"
)

// ErrNotCompiled is returned by NewBackend in builds without the dlib tag.
var ErrNotCompiled = errors.New("dlib backend not compiled in (build with -tags dlib)")

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// InstalledDetectors reports the detectors the model files in dir support.
// go-face loads every model when the recognizer is created, including the
// CNN detector weights, so both detectors are available or neither is.
func InstalledDetectors(dir string) []recognition.Detector {
	for _, name := range []string{ShapePredictorFile, RecognitionFile, CNNDetectorFile} {
		if !exists(filepath.Join(dir, name)) {
			return nil
		}
	}
	return []recognition.Detector{recognition.DetectorFast, recognition.DetectorAccurate}
}
