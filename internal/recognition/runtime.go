package recognition

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kozaktomas/faceverify/internal/logging"
	"github.com/kozaktomas/faceverify/internal/metrics"
)

const defaultLoadTimeout = 2 * time.Minute

// Runtime owns the loaded models of one Backend. Loading happens at most once
// at a time; a failed load leaves the runtime unloaded so the next caller retries.
type Runtime struct {
	backend     Backend
	preference  Preference
	loadTimeout time.Duration

	group singleflight.Group
	loads atomic.Int64

	mu       sync.RWMutex
	loaded   bool
	detector Detector
}

// NewRuntime creates a Runtime. Models are not loaded until EnsureLoaded.
func NewRuntime(backend Backend, pref Preference, loadTimeout time.Duration) *Runtime {
	if loadTimeout <= 0 {
		loadTimeout = defaultLoadTimeout
	}
	if pref == "" {
		pref = PreferAuto
	}
	return &Runtime{
		backend:     backend,
		preference:  pref,
		loadTimeout: loadTimeout,
	}
}

// EnsureLoaded loads the models if needed. Concurrent callers share a single
// in-flight load. A caller whose ctx ends stops waiting but does not cancel
// the load for the others.
func (r *Runtime) EnsureLoaded(ctx context.Context) error {
	if r.Loaded() {
		return nil
	}

	ch := r.group.DoChan("load", func() (any, error) {
		if r.Loaded() {
			return nil, nil
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.loadTimeout)
		defer cancel()
		return nil, r.load(loadCtx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runtime) load(ctx context.Context) error {
	r.loads.Add(1)
	start := time.Now()
	log := logging.With().Str("backend", r.backend.Name()).Logger()

	detector, err := r.loadModels(ctx)
	metrics.RecordModelLoad(time.Since(start), err)
	if err != nil {
		log.Error().Err(err).Msg("failed to load face models")
		return fmt.Errorf("%w: %w", ErrModelLoadFailed, err)
	}

	r.mu.Lock()
	r.loaded = true
	r.detector = detector
	r.mu.Unlock()

	log.Info().
		Str("detector", string(detector)).
		Dur("duration", time.Since(start)).
		Msg("face models loaded")
	return nil
}

func (r *Runtime) loadModels(ctx context.Context) (Detector, error) {
	available, err := r.backend.Detectors(ctx)
	if err != nil {
		return "", fmt.Errorf("list detectors: %w", err)
	}
	detector, err := SelectDetector(r.preference, available)
	if err != nil {
		return "", err
	}
	if err := r.backend.Load(ctx, detector); err != nil {
		return "", err
	}
	return detector, nil
}

// Loaded reports whether the models are ready.
func (r *Runtime) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Detector returns the detector chosen at load time, empty before loading.
func (r *Runtime) Detector() Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.detector
}

// LoadAttempts returns how many load sequences have started.
func (r *Runtime) LoadAttempts() int64 {
	return r.loads.Load()
}

// Backend returns the underlying backend.
func (r *Runtime) Backend() Backend {
	return r.backend
}

// Close releases the backend.
func (r *Runtime) Close() error {
	return r.backend.Close()
}
