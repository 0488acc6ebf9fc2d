package verify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/kozaktomas/faceverify/internal/imaging"
	"github.com/kozaktomas/faceverify/internal/recognition"
)

// ErrReferenceNotFound is returned by resolvers when an identity has no
// reference photo.
var ErrReferenceNotFound = errors.New("reference photo not found")

// Kind classifies a verification failure.
type Kind string

const (
	KindMissingIdentity    Kind = "missing_identity"
	KindMissingImage       Kind = "missing_image"
	KindReferenceNotFound  Kind = "reference_not_found"
	KindNoFaceDetected     Kind = "no_face_detected"
	KindAcquisitionTimeout Kind = "acquisition_timeout"
	KindAcquisitionFailed  Kind = "acquisition_failed"
	KindDecodeError        Kind = "decode_error"
	KindModelLoadFailed    Kind = "model_load_failed"
	KindCanceled           Kind = "canceled"
	KindInternal           Kind = "internal"
)

// StatusClientClosedRequest is returned for verifications abandoned by the
// caller. The client is usually gone, so it mostly shows up in access logs.
const StatusClientClosedRequest = 499

// Side tells which image an error belongs to.
type Side string

const (
	SideNone      Side = ""
	SideReference Side = "reference"
	SideInput     Side = "input"
)

// Error is the only error type returned across the verify boundary.
type Error struct {
	Kind Kind
	Side Side
	// StatusCode is the upstream HTTP status for KindAcquisitionFailed, if any.
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Side != SideNone {
		prefix = string(e.Side) + " " + prefix
	}
	if e.Err == nil {
		return prefix
	}
	return fmt.Sprintf("%s: %v", prefix, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Expected reports whether the error is a normal outcome caused by the
// caller or the photos rather than a system failure.
func (e *Error) Expected() bool {
	switch e.Kind {
	case KindMissingIdentity, KindMissingImage, KindReferenceNotFound, KindNoFaceDetected, KindDecodeError, KindCanceled:
		return true
	}
	return false
}

// Message returns a user-facing description.
func (e *Error) Message() string {
	switch e.Kind {
	case KindMissingIdentity:
		return "Employee ID is required"
	case KindMissingImage:
		return "Image is required"
	case KindReferenceNotFound:
		return "No reference face photo is registered for this employee"
	case KindNoFaceDetected:
		if e.Side == SideReference {
			return "No face detected in the reference photo"
		}
		return "No face detected in the submitted photo. Please make sure your face is clearly visible"
	case KindDecodeError:
		if e.Side == SideReference {
			return "The reference photo could not be read"
		}
		return "The submitted image could not be read"
	case KindAcquisitionTimeout:
		return "Timed out fetching the reference photo, please try again"
	case KindAcquisitionFailed:
		return "Could not fetch the reference photo, please try again"
	case KindModelLoadFailed:
		return "Face recognition is temporarily unavailable"
	case KindCanceled:
		return "The verification was cancelled before it finished"
	default:
		return "Face verification failed"
	}
}

// HTTPStatus maps the error to a response status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindMissingIdentity, KindMissingImage, KindReferenceNotFound, KindNoFaceDetected:
		return http.StatusBadRequest
	case KindDecodeError:
		return http.StatusUnprocessableEntity
	case KindAcquisitionTimeout:
		return http.StatusGatewayTimeout
	case KindAcquisitionFailed:
		return http.StatusBadGateway
	case KindModelLoadFailed:
		return http.StatusServiceUnavailable
	case KindCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func newError(kind Kind, side Side, err error) *Error {
	return &Error{Kind: kind, Side: side, Err: err}
}

// classify converts an error from the lower layers into an *Error for side.
func classify(side Side, err error) *Error {
	if err == nil {
		return nil
	}

	var verr *Error
	if errors.As(err, &verr) {
		return verr
	}

	var acqErr *imaging.AcquisitionFailedError
	var decErr *imaging.DecodeError

	switch {
	case errors.Is(err, ErrReferenceNotFound):
		return newError(KindReferenceNotFound, SideReference, err)
	case errors.Is(err, imaging.ErrEmptySource):
		if side == SideReference {
			return newError(KindReferenceNotFound, side, err)
		}
		return newError(KindMissingImage, side, err)
	case errors.Is(err, recognition.ErrNoFaceDetected):
		return newError(KindNoFaceDetected, side, err)
	case errors.Is(err, imaging.ErrAcquisitionTimeout):
		return newError(KindAcquisitionTimeout, side, err)
	case errors.Is(err, recognition.ErrModelLoadFailed):
		return newError(KindModelLoadFailed, SideNone, err)
	case errors.Is(err, context.Canceled):
		return newError(KindCanceled, side, err)
	case errors.As(err, &acqErr):
		return &Error{Kind: KindAcquisitionFailed, Side: side, StatusCode: acqErr.StatusCode, Err: err}
	case errors.As(err, &decErr):
		return newError(KindDecodeError, side, err)
	default:
		return newError(KindInternal, side, err)
	}
}

// AsError extracts the *Error from err, classifying unknown errors as internal.
func AsError(err error) *Error {
	return classify(SideNone, err)
}
