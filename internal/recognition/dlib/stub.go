//go:build !dlib

package dlib

import "github.com/kozaktomas/faceverify/internal/recognition"

// NewBackend reports ErrNotCompiled in builds without the dlib tag.
func NewBackend(_ string) (recognition.Backend, error) {
	return nil, ErrNotCompiled
}
