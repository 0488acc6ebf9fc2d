package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kozaktomas/faceverify/internal/logging"
	"github.com/kozaktomas/faceverify/internal/verify"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

const (
	errImageTooLarge      = "image is too large"
	defaultMaxUploadBytes = 10 << 20
	// jsonEnvelopeSlack covers the JSON fields and a data URL prefix around the image.
	jsonEnvelopeSlack = 4096
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// errorResponse is the body of a failed verification or reference request.
type errorResponse struct {
	Error string      `json:"error"`
	Kind  verify.Kind `json:"kind"`
	Side  verify.Side `json:"side,omitempty"`
}

// respondVerifyError maps err to a status code and a user-facing message.
// Expected outcomes are not logged as errors.
func respondVerifyError(w http.ResponseWriter, r *http.Request, err error) {
	verr := verify.AsError(err)
	status := verr.HTTPStatus()
	if status >= http.StatusInternalServerError && !verr.Expected() {
		logging.Ctx(r.Context()).Error().Err(err).Str("kind", string(verr.Kind)).Msg("request failed")
	}
	respondJSON(w, status, errorResponse{Error: verr.Message(), Kind: verr.Kind, Side: verr.Side})
}

// employeeIDParam parses the {employeeId} URL parameter.
func employeeIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "employeeId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid employee ID")
	}
	return id, nil
}

// decodeImage decodes a base64 image, accepting data URLs.
func decodeImage(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	s = strings.TrimSpace(s)
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// Some clients strip the padding.
		if data, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); rawErr == nil {
			return data, nil
		}
		return nil, err
	}
	return data, nil
}

// decodedLen returns the decoded size of a base64 string without decoding it.
func decodedLen(s string) int {
	return base64.StdEncoding.DecodedLen(len(s))
}

// jsonBodyLimit is the largest JSON body that can carry a base64 image of
// maxImageBytes decoded bytes.
func jsonBodyLimit(maxImageBytes int) int64 {
	if maxImageBytes <= 0 {
		maxImageBytes = defaultMaxUploadBytes
	}
	return int64(base64.StdEncoding.EncodedLen(maxImageBytes)) + jsonEnvelopeSlack
}

// decodeJSONBody decodes at most limit bytes of the request body into v.
// On failure it returns the status and message to respond with.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, v any) (int, string) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, errImageTooLarge
		}
		return http.StatusBadRequest, errInvalidRequestBody
	}
	return 0, ""
}
