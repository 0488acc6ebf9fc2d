package verify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kozaktomas/faceverify/internal/cache"
	"github.com/kozaktomas/faceverify/internal/imaging"
	"github.com/kozaktomas/faceverify/internal/recognition"
	"github.com/kozaktomas/faceverify/internal/recognition/recognitiontest"
)

type fixture struct {
	backend *recognitiontest.Backend
	cache   *cache.DescriptorCache
	orch    *Orchestrator
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	backend := recognitiontest.New()
	rt := recognition.NewRuntime(backend, recognition.PreferAuto, 5*time.Second)
	c := cache.New(capacity, time.Hour)
	acquirer := imaging.NewAcquirer(imaging.Options{
		MaxSize:      480,
		Timeout:      2 * time.Second,
		Retries:      1,
		RetryBackoff: 10 * time.Millisecond,
	})
	return &fixture{
		backend: backend,
		cache:   c,
		orch:    NewOrchestrator(c, recognition.NewComputer(rt), acquirer, 0),
	}
}

// countingResolver returns a fixed source and counts how often it is asked.
type countingResolver struct {
	calls atomic.Int32
	src   imaging.Source
	err   error
}

func (r *countingResolver) resolve(_ context.Context) (imaging.Source, error) {
	r.calls.Add(1)
	return r.src, r.err
}

// imageServer serves img and counts requests.
func imageServer(t *testing.T, img []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.Write(img)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func requireKind(t *testing.T, err error, kind Kind, side Side) {
	t.Helper()
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if verr.Kind != kind || verr.Side != side {
		t.Fatalf("expected %s/%s, got %s/%s (%v)", side, kind, verr.Side, verr.Kind, verr)
	}
}

func TestVerify_SameFaceMatches(t *testing.T) {
	f := newFixture(t, 10)
	resolver := &countingResolver{src: imaging.FromBytes(recognitiontest.FaceImage(1))}

	result, err := f.orch.Verify(context.Background(), "42", "ref-a", resolver.resolve, recognitiontest.FaceImage(1))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Match {
		t.Errorf("expected match, got %+v", result)
	}
	if result.Distance >= 0.6 {
		t.Errorf("expected distance < 0.6, got %v", result.Distance)
	}
	if result.Threshold != 0.6 {
		t.Errorf("expected default threshold 0.6, got %v", result.Threshold)
	}
}

func TestVerify_DifferentFaceDoesNotMatch(t *testing.T) {
	f := newFixture(t, 10)
	resolver := &countingResolver{src: imaging.FromBytes(recognitiontest.FaceImage(1))}

	result, err := f.orch.Verify(context.Background(), "42", "ref-a", resolver.resolve, recognitiontest.FaceImage(2))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Match {
		t.Errorf("expected no match, got %+v", result)
	}
	if result.Distance < 0.6 {
		t.Errorf("expected distance >= 0.6, got %v", result.Distance)
	}
}

func TestVerify_NoFaceInInput(t *testing.T) {
	f := newFixture(t, 10)
	resolver := &countingResolver{src: imaging.FromBytes(recognitiontest.FaceImage(1))}

	_, err := f.orch.Verify(context.Background(), "42", "ref-a", resolver.resolve, recognitiontest.BlankImage())
	requireKind(t, err, KindNoFaceDetected, SideInput)
}

func TestVerify_NoFaceInReference(t *testing.T) {
	f := newFixture(t, 10)
	resolver := &countingResolver{src: imaging.FromBytes(recognitiontest.BlankImage())}

	_, err := f.orch.Verify(context.Background(), "42", "ref-a", resolver.resolve, recognitiontest.FaceImage(1))
	requireKind(t, err, KindNoFaceDetected, SideReference)
	if f.cache.Len() != 0 {
		t.Errorf("expected nothing cached after a failed reference, got %d entries", f.cache.Len())
	}
}

func TestVerify_ResolverNotFound(t *testing.T) {
	f := newFixture(t, 10)
	resolver := &countingResolver{err: ErrReferenceNotFound}

	_, err := f.orch.Verify(context.Background(), "42", "ref-a", resolver.resolve, recognitiontest.FaceImage(1))
	requireKind(t, err, KindReferenceNotFound, SideReference)
	if resolver.calls.Load() != 1 {
		t.Errorf("expected resolver to be called once, got %d", resolver.calls.Load())
	}
	if f.cache.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", f.cache.Len())
	}
}

func TestVerify_CacheHitSkipsReferenceFetch(t *testing.T) {
	f := newFixture(t, 10)
	server, hits := imageServer(t, recognitiontest.FaceImage(3))
	resolver := &countingResolver{src: imaging.FromURL(server.URL + "/ref.png")}
	ctx := context.Background()

	for i := range 2 {
		result, err := f.orch.Verify(ctx, "42", "ref-a", resolver.resolve, recognitiontest.FaceImage(3))
		if err != nil {
			t.Fatalf("Verify %d failed: %v", i, err)
		}
		if !result.Match {
			t.Errorf("Verify %d: expected match", i)
		}
	}

	if got := hits.Load(); got != 1 {
		t.Errorf("expected one reference download, got %d", got)
	}
	if got := resolver.calls.Load(); got != 1 {
		t.Errorf("expected one resolver call, got %d", got)
	}
	if stats := f.cache.Stats(); stats.Hits != 1 {
		t.Errorf("expected 1 cache hit, got %d", stats.Hits)
	}
}

func TestVerify_FingerprintChangeRecomputes(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	oldRef := &countingResolver{src: imaging.FromBytes(recognitiontest.FaceImage(1))}
	if _, err := f.orch.Verify(ctx, "42", "ref-a", oldRef.resolve, recognitiontest.FaceImage(1)); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	// The reference photo is replaced by a different person.
	newRef := &countingResolver{src: imaging.FromBytes(recognitiontest.FaceImage(2))}
	result, err := f.orch.Verify(ctx, "42", "ref-b", newRef.resolve, recognitiontest.FaceImage(1))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Match {
		t.Error("expected stale descriptor to be discarded and the new reference not to match")
	}
	if newRef.calls.Load() != 1 {
		t.Errorf("expected new reference to be resolved, got %d calls", newRef.calls.Load())
	}
	if _, ok := f.cache.Get("42", "ref-a"); ok {
		t.Error("expected old fingerprint to miss")
	}
}

func TestVerify_Validation(t *testing.T) {
	f := newFixture(t, 10)
	resolver := &countingResolver{src: imaging.FromBytes(recognitiontest.FaceImage(1))}

	tests := []struct {
		name     string
		identity string
		resolve  ReferenceResolver
		input    []byte
		kind     Kind
		side     Side
	}{
		{"missing identity", "", resolver.resolve, recognitiontest.FaceImage(1), KindMissingIdentity, SideNone},
		{"missing image", "42", resolver.resolve, nil, KindMissingImage, SideInput},
		{"missing resolver", "42", nil, recognitiontest.FaceImage(1), KindReferenceNotFound, SideReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orch.Verify(context.Background(), tt.identity, "ref-a", tt.resolve, tt.input)
			requireKind(t, err, tt.kind, tt.side)
		})
	}
	if f.backend.LoadCalls() != 0 {
		t.Errorf("expected validation errors to happen before model loading, got %d loads", f.backend.LoadCalls())
	}
}

func TestVerify_UndecodableInput(t *testing.T) {
	f := newFixture(t, 10)
	resolver := &countingResolver{src: imaging.FromBytes(recognitiontest.FaceImage(1))}

	_, err := f.orch.Verify(context.Background(), "42", "ref-a", resolver.resolve, []byte("not an image"))
	requireKind(t, err, KindDecodeError, SideInput)
}

func TestVerify_ReferenceDownloadFailure(t *testing.T) {
	f := newFixture(t, 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusForbidden)
	}))
	defer server.Close()
	resolver := &countingResolver{src: imaging.FromURL(server.URL)}

	_, err := f.orch.Verify(context.Background(), "42", "ref-a", resolver.resolve, recognitiontest.FaceImage(1))
	requireKind(t, err, KindAcquisitionFailed, SideReference)

	var verr *Error
	errors.As(err, &verr)
	if verr.StatusCode != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", verr.StatusCode)
	}
	if f.cache.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", f.cache.Len())
	}
}

func TestVerify_ModelLoadFailureIsRetried(t *testing.T) {
	f := newFixture(t, 10)
	f.backend.FailLoads = 1
	f.backend.LoadErr = errors.New("weights missing")
	resolver := &countingResolver{src: imaging.FromBytes(recognitiontest.FaceImage(1))}
	ctx := context.Background()

	_, err := f.orch.Verify(ctx, "42", "ref-a", resolver.resolve, recognitiontest.FaceImage(1))
	requireKind(t, err, KindModelLoadFailed, SideNone)

	result, err := f.orch.Verify(ctx, "42", "ref-a", resolver.resolve, recognitiontest.FaceImage(1))
	if err != nil {
		t.Fatalf("expected retry after failed load to succeed, got %v", err)
	}
	if !result.Match {
		t.Error("expected match after recovery")
	}
}

func TestVerify_ConcurrentIdentitiesAreIsolated(t *testing.T) {
	const (
		n        = 20
		capacity = 8
	)
	f := newFixture(t, capacity)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resolver := &countingResolver{src: imaging.FromBytes(recognitiontest.FaceImage(i))}
			// Odd identities submit someone else's face.
			input := recognitiontest.FaceImage(i)
			if i%2 == 1 {
				input = recognitiontest.FaceImage(i + 1)
			}
			result, err := f.orch.Verify(ctx, fmt.Sprintf("emp-%d", i), "ref", resolver.resolve, input)
			if err != nil {
				errs <- fmt.Errorf("identity %d: %w", i, err)
				return
			}
			if want := i%2 == 0; result.Match != want {
				errs <- fmt.Errorf("identity %d: match = %v, want %v", i, result.Match, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if got := f.cache.Len(); got > capacity {
		t.Errorf("expected at most %d cached entries, got %d", capacity, got)
	}
	if got := f.backend.LoadCalls(); got != 1 {
		t.Errorf("expected models to load once, got %d", got)
	}
}

func TestWarmup_Concurrent(t *testing.T) {
	f := newFixture(t, 10)
	f.backend.LoadDelay = 50 * time.Millisecond

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.orch.Warmup(context.Background()); err != nil {
				t.Errorf("Warmup failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := f.backend.LoadCalls(); got != 1 {
		t.Errorf("expected exactly one load, got %d", got)
	}
	if !f.orch.Runtime().Loaded() {
		t.Error("expected runtime to be loaded")
	}
}

func TestVerify_CallerCancelWhileWaitingForReference(t *testing.T) {
	f := newFixture(t, 10)
	release := make(chan struct{})
	resolve := func(context.Context) (imaging.Source, error) {
		<-release
		return imaging.FromBytes(recognitiontest.FaceImage(1)), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := f.orch.Verify(ctx, "42", "ref-a", resolve, recognitiontest.FaceImage(1))
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if verr.Kind != KindCanceled {
		t.Fatalf("expected %s, got %s (%v)", KindCanceled, verr.Kind, verr)
	}
	if verr.HTTPStatus() != StatusClientClosedRequest {
		t.Errorf("expected status %d, got %d", StatusClientClosedRequest, verr.HTTPStatus())
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("expected error to wrap context.Canceled")
	}

	// The shared computation keeps running and still fills the cache.
	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := f.cache.Get("42", "ref-a"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected reference descriptor to be cached after the caller left")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
