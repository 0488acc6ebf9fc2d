package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/faceverify/internal/database"
	"github.com/kozaktomas/faceverify/internal/imaging"
	"github.com/kozaktomas/faceverify/internal/logging"
	"github.com/kozaktomas/faceverify/internal/storage"
)

// ReferenceFolder is the storage folder for reference photos.
const ReferenceFolder = "biometric-face"

// ReferenceInfo is a reference record with a temporary download URL.
type ReferenceInfo struct {
	EmployeeID int64     `json:"employeeId"`
	PhotoKey   string    `json:"photoKey"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// CheckFailure is an active reference photo that cannot be used for verification.
type CheckFailure struct {
	EmployeeID int64  `json:"employeeId"`
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
}

// References manages reference photos and keeps the descriptor cache in sync.
type References struct {
	orchestrator *Orchestrator
	refs         database.ReferenceWriter
	store        storage.Store
	urlExpiry    time.Duration
}

func NewReferences(o *Orchestrator, refs database.ReferenceWriter, store storage.Store, urlExpiry time.Duration) *References {
	if urlExpiry <= 0 {
		urlExpiry = defaultURLExpiry
	}
	return &References{orchestrator: o, refs: refs, store: store, urlExpiry: urlExpiry}
}

// Get returns the active reference of employeeID.
func (r *References) Get(ctx context.Context, employeeID int64) (*ReferenceInfo, error) {
	ref, err := r.refs.FindByEmployee(ctx, employeeID)
	if err != nil {
		return nil, newError(KindInternal, SideReference, err)
	}
	if ref == nil {
		return nil, newError(KindReferenceNotFound, SideReference, ErrReferenceNotFound)
	}

	u, err := r.store.SignedURL(ctx, ref.PhotoKey, r.urlExpiry)
	if err != nil {
		return nil, classify(SideReference, fmt.Errorf("sign reference URL: %w", mapStorageError(err)))
	}
	return &ReferenceInfo{
		EmployeeID: ref.EmployeeID,
		PhotoKey:   ref.PhotoKey,
		URL:        u,
		CreatedAt:  ref.CreatedAt,
		UpdatedAt:  ref.UpdatedAt,
	}, nil
}

// Replace stores image as the new reference photo of employeeID. The photo
// must contain a face. The previous blob is removed and the cache is seeded
// with the new descriptor.
func (r *References) Replace(ctx context.Context, employeeID int64, image []byte) (*database.Reference, error) {
	if employeeID <= 0 {
		return nil, newError(KindMissingIdentity, SideNone, nil)
	}
	if len(image) == 0 {
		return nil, newError(KindMissingImage, SideReference, nil)
	}

	descriptor, err := r.orchestrator.ComputeDescriptor(ctx, SideReference, imaging.FromBytes(image))
	if err != nil {
		return nil, err
	}

	previous, err := r.refs.FindByEmployeeWithDeleted(ctx, employeeID)
	if err != nil {
		return nil, newError(KindInternal, SideReference, err)
	}

	key, err := r.store.Put(ctx, ReferenceFolder, "", imaging.DetectMIMEType(image), image)
	if err != nil {
		return nil, newError(KindInternal, SideReference, fmt.Errorf("upload reference photo: %w", err))
	}

	ref, err := r.refs.Save(ctx, employeeID, key)
	if err != nil {
		r.deleteBlob(ctx, key)
		return nil, newError(KindInternal, SideReference, err)
	}

	if previous != nil && previous.PhotoKey != key {
		r.deleteBlob(ctx, previous.PhotoKey)
	}
	r.orchestrator.Cache().Set(Identity(employeeID), descriptor, key)

	logging.Ctx(ctx).Info().Int64("employee_id", employeeID).Str("photo_key", key).Msg("reference photo replaced")
	return ref, nil
}

// Delete removes the reference photo of employeeID.
func (r *References) Delete(ctx context.Context, employeeID int64) error {
	ref, err := r.refs.FindByEmployee(ctx, employeeID)
	if err != nil {
		return newError(KindInternal, SideReference, err)
	}
	if ref == nil {
		return newError(KindReferenceNotFound, SideReference, ErrReferenceNotFound)
	}

	r.deleteBlob(ctx, ref.PhotoKey)
	if _, err := r.refs.SoftDelete(ctx, employeeID); err != nil {
		return newError(KindInternal, SideReference, err)
	}
	r.orchestrator.Cache().Invalidate(Identity(employeeID))

	logging.Ctx(ctx).Info().Int64("employee_id", employeeID).Msg("reference photo deleted")
	return nil
}

// Check recomputes every active reference descriptor and reports the ones
// that cannot be used. Successful descriptors are cached. progress, if not
// nil, is called after each reference.
func (r *References) Check(ctx context.Context, progress func(done, total int)) ([]CheckFailure, error) {
	refs, err := r.refs.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}

	var failures []CheckFailure
	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			return failures, err
		}

		identity := Identity(ref.EmployeeID)
		r.orchestrator.Cache().Invalidate(identity)
		_, err := r.orchestrator.ReferenceDescriptor(ctx, identity, ref.PhotoKey, signedURLResolver(r.store, ref.PhotoKey, r.urlExpiry))
		if err != nil {
			verr := AsError(err)
			failures = append(failures, CheckFailure{
				EmployeeID: ref.EmployeeID,
				Kind:       verr.Kind,
				Message:    verr.Message(),
			})
		}

		if progress != nil {
			progress(i+1, len(refs))
		}
	}
	return failures, nil
}

// signedURLResolver resolves key to a signed URL on store.
func signedURLResolver(store storage.Store, key string, expiry time.Duration) ReferenceResolver {
	return func(ctx context.Context) (imaging.Source, error) {
		u, err := store.SignedURL(ctx, key, expiry)
		if err != nil {
			return imaging.Source{}, mapStorageError(err)
		}
		return imaging.FromURL(u), nil
	}
}

// deleteBlob removes key, tolerating blobs that are already gone.
func (r *References) deleteBlob(ctx context.Context, key string) {
	err := r.store.Delete(ctx, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		logging.Ctx(ctx).Warn().Err(err).Str("photo_key", key).Msg("failed to delete reference blob")
	}
}

func mapStorageError(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrReferenceNotFound
	}
	return &imaging.AcquisitionFailedError{Err: err}
}
