// Package remote implements a recognition backend that delegates detection and
// embedding to an HTTP embedding server.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/faceverify/internal/facematch"
	"github.com/kozaktomas/faceverify/internal/imaging"
	"github.com/kozaktomas/faceverify/internal/logging"
	"github.com/kozaktomas/faceverify/internal/metrics"
	"github.com/kozaktomas/faceverify/internal/recognition"
)

const (
	defaultEmbeddingURL = "http://localhost:8000"
	breakerName         = "embedding-server"

	ModelTinyFaceDetector = "tiny_face_detector"
	ModelSSDMobilenet     = "ssd_mobilenetv1"
	ModelLandmarksTiny    = "face_landmark_68_tiny"
	ModelLandmarks        = "face_landmark_68"
	ModelRecognition      = "face_recognition"
)

// ErrMissingModel is returned when the server lacks a model the backend needs.
var ErrMissingModel = errors.New("embedding server is missing a required model")

// APIError is a non-200 response from the embedding server.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// Client talks to the embedding server.
type Client struct {
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker[[]byte]
}

// NewClient creates a new embedding server client.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Client errors say nothing about server health.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < 500
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  httpClient,
		cb:      cb,
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// execute runs fn through the circuit breaker and records the outcome.
func (c *Client) execute(fn func() ([]byte, error)) ([]byte, error) {
	body, err := c.cb.Execute(fn)
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
	}
	return body, err
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	return c.execute(func() ([]byte, error) {
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return body, nil
	})
}

type modelsResponse struct {
	Available []string `json:"available"`
}

// Models lists the models installed on the server.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp modelsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return resp.Available, nil
}

type loadModelRequest struct {
	Model string `json:"model"`
}

// LoadModel asks the server to load model into memory.
func (c *Client) LoadModel(ctx context.Context, model string) error {
	reqBody, err := json.Marshal(loadModelRequest{Model: model})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/models/load", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if _, err := c.do(req); err != nil {
		return fmt.Errorf("load %s: %w", model, err)
	}
	return nil
}

// FaceDetection represents a single detected face.
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint.
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// EmbedFaces detects faces with the given detector model and returns their embeddings.
func (c *Client) EmbedFaces(ctx context.Context, imageData []byte, detectorModel string) (*FaceResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", imaging.DetectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.WriteField("detector", detectorModel); err != nil {
		return nil, fmt.Errorf("failed to write detector field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed/face", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &faceResp, nil
}

// Backend adapts Client to recognition.Backend.
type Backend struct {
	client *Client
}

// NewBackend creates a remote backend for the embedding server at baseURL.
func NewBackend(baseURL string, httpClient *http.Client) *Backend {
	return &Backend{client: NewClient(baseURL, httpClient)}
}

func (b *Backend) Name() string { return "remote" }

func detectorModel(d recognition.Detector) string {
	if d == recognition.DetectorAccurate {
		return ModelSSDMobilenet
	}
	return ModelTinyFaceDetector
}

// Detectors maps the server's installed detector models.
func (b *Backend) Detectors(ctx context.Context) ([]recognition.Detector, error) {
	models, err := b.client.Models(ctx)
	if err != nil {
		return nil, err
	}

	var detectors []recognition.Detector
	for _, m := range models {
		switch m {
		case ModelTinyFaceDetector:
			detectors = append(detectors, recognition.DetectorFast)
		case ModelSSDMobilenet:
			detectors = append(detectors, recognition.DetectorAccurate)
		}
	}
	return detectors, nil
}

// Load loads the detector, a landmark model and the recognition model in parallel.
func (b *Backend) Load(ctx context.Context, detector recognition.Detector) error {
	available, err := b.client.Models(ctx)
	if err != nil {
		return err
	}
	installed := make(map[string]bool, len(available))
	for _, m := range available {
		installed[m] = true
	}

	landmarks := ModelLandmarksTiny
	if (detector == recognition.DetectorAccurate && installed[ModelLandmarks]) || !installed[ModelLandmarksTiny] {
		landmarks = ModelLandmarks
	}

	required := []string{detectorModel(detector), landmarks, ModelRecognition}
	for _, m := range required {
		if !installed[m] {
			return fmt.Errorf("%w: %s", ErrMissingModel, m)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range required {
		g.Go(func() error {
			return b.client.LoadModel(gctx, m)
		})
	}
	return g.Wait()
}

// Detect JPEG-encodes the working image and sends it to the server.
func (b *Backend) Detect(ctx context.Context, img *imaging.Decoded, detector recognition.Detector) ([]facematch.Candidate, error) {
	data, err := imaging.EncodeJPEG(img.Image)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.EmbedFaces(ctx, data, detectorModel(detector))
	if err != nil {
		return nil, err
	}

	candidates := make([]facematch.Candidate, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		candidates = append(candidates, facematch.Candidate{
			Embedding: f.Embedding,
			BBox:      f.BBox,
			Score:     f.DetScore,
		})
	}
	return candidates, nil
}

func (b *Backend) Close() error { return nil }
