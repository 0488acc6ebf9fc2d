package verify

import (
	"context"
	"strconv"
	"time"

	"github.com/kozaktomas/faceverify/internal/cache"
	"github.com/kozaktomas/faceverify/internal/database"
	"github.com/kozaktomas/faceverify/internal/facematch"
	"github.com/kozaktomas/faceverify/internal/storage"
)

const defaultURLExpiry = time.Hour

// Identity converts an employee ID into a cache identity.
func Identity(employeeID int64) string {
	return strconv.FormatInt(employeeID, 10)
}

// ModelStatus describes the recognition runtime for health output.
type ModelStatus struct {
	Backend  string `json:"backend"`
	Detector string `json:"detector,omitempty"`
	Loaded   bool   `json:"loaded"`
}

// Service verifies employees against their stored reference photos.
type Service struct {
	orchestrator *Orchestrator
	refs         database.ReferenceReader
	store        storage.Store
	urlExpiry    time.Duration
}

// NewService creates a Service. urlExpiry bounds the signed URLs handed to
// the image acquirer for reference photos.
func NewService(o *Orchestrator, refs database.ReferenceReader, store storage.Store, urlExpiry time.Duration) *Service {
	if urlExpiry <= 0 {
		urlExpiry = defaultURLExpiry
	}
	return &Service{orchestrator: o, refs: refs, store: store, urlExpiry: urlExpiry}
}

// Verify compares image against the reference photo of employeeID.
func (s *Service) Verify(ctx context.Context, employeeID int64, image []byte) (facematch.MatchResult, error) {
	if employeeID <= 0 {
		return facematch.MatchResult{}, newError(KindMissingIdentity, SideNone, nil)
	}
	if len(image) == 0 {
		return facematch.MatchResult{}, newError(KindMissingImage, SideInput, nil)
	}

	ref, err := s.refs.FindByEmployee(ctx, employeeID)
	if err != nil {
		return facematch.MatchResult{}, newError(KindInternal, SideReference, err)
	}
	if ref == nil {
		return facematch.MatchResult{}, newError(KindReferenceNotFound, SideReference, ErrReferenceNotFound)
	}

	return s.orchestrator.Verify(ctx, Identity(employeeID), ref.PhotoKey, signedURLResolver(s.store, ref.PhotoKey, s.urlExpiry), image)
}

// Warmup loads the models. Intended to be called once at startup.
func (s *Service) Warmup(ctx context.Context) error {
	return s.orchestrator.Warmup(ctx)
}

// Invalidate drops the cached descriptor of employeeID.
func (s *Service) Invalidate(employeeID int64) bool {
	return s.orchestrator.Cache().Invalidate(Identity(employeeID))
}

// ClearCache drops every cached descriptor.
func (s *Service) ClearCache() {
	s.orchestrator.Cache().Clear()
}

// CacheStats returns the descriptor cache counters.
func (s *Service) CacheStats() cache.Stats {
	return s.orchestrator.Cache().Stats()
}

// ModelStatus reports the backend, chosen detector and load state.
func (s *Service) ModelStatus() ModelStatus {
	rt := s.orchestrator.Runtime()
	return ModelStatus{
		Backend:  rt.Backend().Name(),
		Detector: string(rt.Detector()),
		Loaded:   rt.Loaded(),
	}
}
