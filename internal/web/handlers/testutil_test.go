package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/faceverify/internal/cache"
	"github.com/kozaktomas/faceverify/internal/database"
	"github.com/kozaktomas/faceverify/internal/facematch"
	"github.com/kozaktomas/faceverify/internal/verify"
)

// fakeVerifier records calls and returns a canned result.
type fakeVerifier struct {
	mu         sync.Mutex
	result     facematch.MatchResult
	err        error
	employeeID int64
	image      []byte
	calls      int
}

func (f *fakeVerifier) Verify(_ context.Context, employeeID int64, image []byte) (facematch.MatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.employeeID = employeeID
	f.image = image
	return f.result, f.err
}

// fakeReferences is an in-memory ReferenceManager.
type fakeReferences struct {
	refs       map[int64]*database.Reference
	replaceErr error
	lastImage  []byte
}

func newFakeReferences() *fakeReferences {
	return &fakeReferences{refs: make(map[int64]*database.Reference)}
}

func (f *fakeReferences) Get(_ context.Context, employeeID int64) (*verify.ReferenceInfo, error) {
	ref, ok := f.refs[employeeID]
	if !ok {
		return nil, &verify.Error{Kind: verify.KindReferenceNotFound, Side: verify.SideReference}
	}
	return &verify.ReferenceInfo{EmployeeID: employeeID, PhotoKey: ref.PhotoKey, URL: "file:///" + ref.PhotoKey}, nil
}

func (f *fakeReferences) Replace(_ context.Context, employeeID int64, image []byte) (*database.Reference, error) {
	if f.replaceErr != nil {
		return nil, f.replaceErr
	}
	f.lastImage = image
	ref := &database.Reference{ID: employeeID, EmployeeID: employeeID, PhotoKey: "biometric-face/new.png", UpdatedAt: time.Now()}
	f.refs[employeeID] = ref
	return ref, nil
}

func (f *fakeReferences) Delete(_ context.Context, employeeID int64) error {
	if _, ok := f.refs[employeeID]; !ok {
		return &verify.Error{Kind: verify.KindReferenceNotFound, Side: verify.SideReference}
	}
	delete(f.refs, employeeID)
	return nil
}

// fakeCache is a CacheAdmin and ModelStatusProvider.
type fakeCache struct {
	stats       cache.Stats
	entries     map[int64]bool
	cleared     bool
	modelStatus verify.ModelStatus
}

func (f *fakeCache) CacheStats() cache.Stats { return f.stats }

func (f *fakeCache) Invalidate(employeeID int64) bool {
	ok := f.entries[employeeID]
	delete(f.entries, employeeID)
	return ok
}

func (f *fakeCache) ClearCache() { f.cleared = true }

func (f *fakeCache) ModelStatus() verify.ModelStatus { return f.modelStatus }

// jsonRequest creates a request with a JSON body.
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeBody unmarshals the recorder body into a map.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", rec.Body.String(), err)
	}
	return body
}

func b64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// endlessImage is a request body that opens a JSON image field and then
// streams base64 characters forever, counting what has been read.
type endlessImage struct {
	prefix string
	read   int64
}

func (e *endlessImage) Read(p []byte) (int, error) {
	n := 0
	for ; n < len(p); n++ {
		if int(e.read) < len(e.prefix) {
			p[n] = e.prefix[e.read]
		} else {
			p[n] = 'A'
		}
		e.read++
	}
	return n, nil
}
