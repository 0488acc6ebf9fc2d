// Package verify compares a submitted photo against an employee's cached
// reference descriptor and manages the reference photos themselves.
package verify

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kozaktomas/faceverify/internal/cache"
	"github.com/kozaktomas/faceverify/internal/facematch"
	"github.com/kozaktomas/faceverify/internal/imaging"
	"github.com/kozaktomas/faceverify/internal/logging"
	"github.com/kozaktomas/faceverify/internal/metrics"
	"github.com/kozaktomas/faceverify/internal/recognition"
)

// ReferenceResolver yields the location of an identity's reference image.
// It is only called on a cache miss.
type ReferenceResolver func(ctx context.Context) (imaging.Source, error)

// Orchestrator runs a single verification: reference descriptor (cached) and
// input descriptor in parallel, then comparison.
type Orchestrator struct {
	cache     *cache.DescriptorCache
	computer  *recognition.Computer
	acquirer  *imaging.Acquirer
	threshold float64

	// deduplicates concurrent reference computations per identity+fingerprint
	flights singleflight.Group
}

// NewOrchestrator wires the verification pipeline. A non-positive threshold
// selects facematch.DefaultThreshold.
func NewOrchestrator(c *cache.DescriptorCache, computer *recognition.Computer, acquirer *imaging.Acquirer, threshold float64) *Orchestrator {
	if threshold <= 0 {
		threshold = facematch.DefaultThreshold
	}
	return &Orchestrator{
		cache:     c,
		computer:  computer,
		acquirer:  acquirer,
		threshold: threshold,
	}
}

// Cache returns the reference descriptor cache.
func (o *Orchestrator) Cache() *cache.DescriptorCache { return o.cache }

// Computer returns the descriptor computer shared by both sides.
func (o *Orchestrator) Computer() *recognition.Computer { return o.computer }

// Threshold returns the match threshold in effect.
func (o *Orchestrator) Threshold() float64 { return o.threshold }

// Runtime returns the model runtime behind Computer.
func (o *Orchestrator) Runtime() *recognition.Runtime { return o.computer.Runtime() }

// Verify compares input against the reference descriptor of identity.
// fingerprint identifies the current reference image; a cached descriptor
// for a different fingerprint is discarded. All failures are *Error.
func (o *Orchestrator) Verify(ctx context.Context, identity, fingerprint string, resolve ReferenceResolver, input []byte) (facematch.MatchResult, error) {
	start := time.Now()
	result, err := o.verify(ctx, identity, fingerprint, resolve, input)

	log := logging.Ctx(ctx)
	if err != nil {
		verr := AsError(err)
		if ctx.Err() != nil && !verr.Expected() {
			// Caller gave up or hit its deadline; the failure is a side effect.
			verr = &Error{Kind: KindCanceled, Side: verr.Side, Err: err}
		}
		metrics.RecordVerification(string(verr.Kind), time.Since(start))
		event := log.Warn()
		if verr.Expected() {
			event = log.Info()
		}
		event.Err(verr).Str("identity", identity).Str("side", string(verr.Side)).Msg("face verification failed")
		return facematch.MatchResult{}, verr
	}

	outcome := "no_match"
	if result.Match {
		outcome = "match"
	}
	metrics.RecordVerification(outcome, time.Since(start))
	log.Info().
		Str("identity", identity).
		Bool("match", result.Match).
		Float64("distance", result.Distance).
		Dur("duration", time.Since(start)).
		Msg("face verification completed")
	return result, nil
}

func (o *Orchestrator) verify(ctx context.Context, identity, fingerprint string, resolve ReferenceResolver, input []byte) (facematch.MatchResult, error) {
	if identity == "" {
		return facematch.MatchResult{}, newError(KindMissingIdentity, SideNone, nil)
	}
	if len(input) == 0 {
		return facematch.MatchResult{}, newError(KindMissingImage, SideInput, nil)
	}
	if resolve == nil {
		return facematch.MatchResult{}, newError(KindReferenceNotFound, SideReference, nil)
	}

	var reference, submitted facematch.Descriptor
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := o.ReferenceDescriptor(gctx, identity, fingerprint, resolve)
		reference = d
		return err
	})
	g.Go(func() error {
		d, err := o.ComputeDescriptor(gctx, SideInput, imaging.FromBytes(input))
		submitted = d
		return err
	})
	if err := g.Wait(); err != nil {
		return facematch.MatchResult{}, err
	}

	result, err := facematch.Compare(reference, submitted, o.threshold)
	if err != nil {
		return facematch.MatchResult{}, newError(KindInternal, SideNone, err)
	}
	return result, nil
}

// ReferenceDescriptor returns the cached descriptor for identity, computing
// and caching it on a miss. Concurrent misses for the same identity and
// fingerprint share one computation, which outlives callers that give up.
// Nothing is cached when the computation fails.
func (o *Orchestrator) ReferenceDescriptor(ctx context.Context, identity, fingerprint string, resolve ReferenceResolver) (facematch.Descriptor, error) {
	if d, ok := o.cache.Get(identity, fingerprint); ok {
		metrics.RecordDescriptor(string(SideReference), "cache_hit")
		return d, nil
	}

	ch := o.flights.DoChan(identity+"\x00"+fingerprint, func() (any, error) {
		flightCtx := context.WithoutCancel(ctx)
		src, err := resolve(flightCtx)
		if err != nil {
			return nil, classify(SideReference, err)
		}
		d, err := o.ComputeDescriptor(flightCtx, SideReference, src)
		if err != nil {
			return nil, err
		}
		o.cache.Set(identity, d, fingerprint)
		return d, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return facematch.Descriptor{}, res.Err
		}
		return res.Val.(facematch.Descriptor), nil
	case <-ctx.Done():
		return facematch.Descriptor{}, newError(KindCanceled, SideReference, ctx.Err())
	}
}

// ComputeDescriptor acquires src and computes its descriptor. It never
// touches the cache.
func (o *Orchestrator) ComputeDescriptor(ctx context.Context, side Side, src imaging.Source) (facematch.Descriptor, error) {
	img, err := o.acquirer.Acquire(ctx, src)
	if err != nil {
		verr := classify(side, err)
		metrics.RecordDescriptor(string(side), string(verr.Kind))
		return facematch.Descriptor{}, verr
	}

	d, err := o.computer.Compute(ctx, img)
	if err != nil {
		verr := classify(side, err)
		metrics.RecordDescriptor(string(side), string(verr.Kind))
		return facematch.Descriptor{}, verr
	}

	metrics.RecordDescriptor(string(side), "computed")
	logging.Ctx(ctx).Debug().
		Str("side", string(side)).
		Int("width", img.Width()).
		Int("height", img.Height()).
		Int("original_width", img.OriginalWidth).
		Int("original_height", img.OriginalHeight).
		Msg("descriptor computed")
	return d, nil
}

// Warmup loads the recognition models ahead of the first request.
func (o *Orchestrator) Warmup(ctx context.Context) error {
	start := time.Now()
	if err := o.computer.Runtime().EnsureLoaded(ctx); err != nil {
		return classify(SideNone, err)
	}
	rt := o.computer.Runtime()
	logging.Ctx(ctx).Info().
		Str("backend", rt.Backend().Name()).
		Str("detector", string(rt.Detector())).
		Dur("duration", time.Since(start)).
		Msg("face recognition models ready")
	return nil
}
