package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/kozaktomas/faceverify/internal/facematch"
	"github.com/kozaktomas/faceverify/internal/imaging"
	"github.com/kozaktomas/faceverify/internal/verify"
)

// Verifier compares a submitted photo with an employee's reference photo.
type Verifier interface {
	Verify(ctx context.Context, employeeID int64, image []byte) (facematch.MatchResult, error)
}

// FaceHandler handles face verification.
type FaceHandler struct {
	verifier       Verifier
	maxUploadBytes int
}

// NewFaceHandler creates a new face handler. maxUploadBytes caps the decoded image size.
func NewFaceHandler(verifier Verifier, maxUploadBytes int) *FaceHandler {
	return &FaceHandler{verifier: verifier, maxUploadBytes: maxUploadBytes}
}

// VerifyFaceRequest is the body of POST /verify-face.
type VerifyFaceRequest struct {
	EmployeeID  int64  `json:"employeeId" validate:"required,gt=0"`
	ImageBase64 string `json:"imageBase64" validate:"required"`
}

// VerifyFaceResponse is the body of a completed verification.
type VerifyFaceResponse struct {
	Match     bool    `json:"match"`
	Distance  float64 `json:"distance"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
}

// Verify handles POST /api/v1/verify-face.
func (h *FaceHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyFaceRequest
	if status, msg := decodeJSONBody(w, r, jsonBodyLimit(h.maxUploadBytes), &req); status != 0 {
		respondError(w, status, msg)
		return
	}
	if err := validate.Struct(req); err != nil {
		respondVerifyError(w, r, validationError(err))
		return
	}

	if h.maxUploadBytes > 0 && decodedLen(req.ImageBase64) > h.maxUploadBytes+3 {
		respondError(w, http.StatusRequestEntityTooLarge, errImageTooLarge)
		return
	}
	image, err := decodeImage(req.ImageBase64)
	if err != nil {
		respondVerifyError(w, r, &verify.Error{
			Kind: verify.KindDecodeError,
			Side: verify.SideInput,
			Err:  &imaging.DecodeError{Err: err},
		})
		return
	}

	result, err := h.verifier.Verify(r.Context(), req.EmployeeID, image)
	if err != nil {
		respondVerifyError(w, r, err)
		return
	}

	message := "Face verified successfully"
	if !result.Match {
		message = "Face does not match the registered employee"
	}
	respondJSON(w, http.StatusOK, VerifyFaceResponse{
		Match:     result.Match,
		Distance:  result.Distance,
		Threshold: result.Threshold,
		Message:   message,
	})
}

// validationError maps the first failing field to a verify error.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		switch fieldErrs[0].Field() {
		case "EmployeeID":
			return &verify.Error{Kind: verify.KindMissingIdentity, Err: err}
		case "ImageBase64":
			return &verify.Error{Kind: verify.KindMissingImage, Side: verify.SideInput, Err: err}
		}
	}
	return &verify.Error{Kind: verify.KindInternal, Err: err}
}
