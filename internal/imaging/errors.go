package imaging

import (
	"errors"
	"fmt"
)

var (
	// ErrAcquisitionTimeout is returned when a download does not finish within the configured timeout.
	ErrAcquisitionTimeout = errors.New("image acquisition timed out")
	// ErrEmptySource is returned for a Source with no URL, path or data.
	ErrEmptySource = errors.New("empty image source")

	errTooLarge = errors.New("image too large")
)

// AcquisitionFailedError reports a download or read that failed for a reason
// other than a timeout. StatusCode is zero when no HTTP response was received.
type AcquisitionFailedError struct {
	StatusCode int
	Err        error
}

func (e *AcquisitionFailedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("image acquisition failed (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("image acquisition failed: %v", e.Err)
}

func (e *AcquisitionFailedError) Unwrap() error {
	return e.Err
}

// DecodeError reports corrupt or unsupported image data.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
