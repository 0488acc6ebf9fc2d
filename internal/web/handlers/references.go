package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/faceverify/internal/database"
	"github.com/kozaktomas/faceverify/internal/imaging"
	"github.com/kozaktomas/faceverify/internal/verify"
)

// ReferenceManager reads and changes employees' reference photos.
type ReferenceManager interface {
	Get(ctx context.Context, employeeID int64) (*verify.ReferenceInfo, error)
	Replace(ctx context.Context, employeeID int64, image []byte) (*database.Reference, error)
	Delete(ctx context.Context, employeeID int64) error
}

// ReferencesHandler handles /employees/{employeeId}/biometric-face.
type ReferencesHandler struct {
	refs           ReferenceManager
	maxUploadBytes int
}

func NewReferencesHandler(refs ReferenceManager, maxUploadBytes int) *ReferencesHandler {
	return &ReferencesHandler{refs: refs, maxUploadBytes: maxUploadBytes}
}

// ReplaceReferenceRequest is the JSON body of a reference upload.
type ReplaceReferenceRequest struct {
	ImageBase64 string `json:"imageBase64" validate:"required"`
}

type referenceResponse struct {
	EmployeeID int64     `json:"employeeId"`
	PhotoKey   string    `json:"photoKey"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Get returns the reference photo record with a temporary download URL.
func (h *ReferencesHandler) Get(w http.ResponseWriter, r *http.Request) {
	employeeID, err := employeeIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := h.refs.Get(r.Context(), employeeID)
	if err != nil {
		h.respondReferenceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// Replace uploads a new reference photo. Accepts multipart/form-data with a
// "file" field or JSON with imageBase64.
func (h *ReferencesHandler) Replace(w http.ResponseWriter, r *http.Request) {
	employeeID, err := employeeIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	image, status, msg := h.readImage(w, r)
	if status != 0 {
		respondError(w, status, msg)
		return
	}

	ref, err := h.refs.Replace(r.Context(), employeeID, image)
	if err != nil {
		h.respondReferenceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, referenceResponse{
		EmployeeID: ref.EmployeeID,
		PhotoKey:   ref.PhotoKey,
		CreatedAt:  ref.CreatedAt,
		UpdatedAt:  ref.UpdatedAt,
	})
}

// Delete removes the reference photo.
func (h *ReferencesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	employeeID, err := employeeIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.refs.Delete(r.Context(), employeeID); err != nil {
		h.respondReferenceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readImage returns the uploaded image, or a non-zero status with a message.
func (h *ReferencesHandler) readImage(w http.ResponseWriter, r *http.Request) ([]byte, int, string) {
	limit := int64(h.maxUploadBytes)
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
		if err := r.ParseMultipartForm(limit); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, http.StatusRequestEntityTooLarge, errImageTooLarge
			}
			return nil, http.StatusBadRequest, "failed to parse multipart form"
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, http.StatusBadRequest, "file is required"
		}
		defer file.Close()
		if header.Size > limit {
			return nil, http.StatusRequestEntityTooLarge, errImageTooLarge
		}
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, http.StatusBadRequest, "failed to read file"
		}
		return data, 0, ""
	}

	var req ReplaceReferenceRequest
	if status, msg := decodeJSONBody(w, r, jsonBodyLimit(int(limit)), &req); status != 0 {
		return nil, status, msg
	}
	if err := validate.Struct(req); err != nil {
		return nil, http.StatusBadRequest, "imageBase64 is required"
	}
	if decodedLen(req.ImageBase64) > int(limit)+3 {
		return nil, http.StatusRequestEntityTooLarge, errImageTooLarge
	}
	data, err := decodeImage(req.ImageBase64)
	if err != nil {
		return nil, http.StatusUnprocessableEntity, (&imaging.DecodeError{Err: err}).Error()
	}
	return data, 0, ""
}

// respondReferenceError is respondVerifyError with 404 for missing references.
func (h *ReferencesHandler) respondReferenceError(w http.ResponseWriter, r *http.Request, err error) {
	if verr := verify.AsError(err); verr.Kind == verify.KindReferenceNotFound {
		respondError(w, http.StatusNotFound, verr.Message())
		return
	}
	respondVerifyError(w, r, err)
}
