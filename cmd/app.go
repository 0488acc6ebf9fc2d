package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/kozaktomas/faceverify/internal/cache"
	"github.com/kozaktomas/faceverify/internal/config"
	"github.com/kozaktomas/faceverify/internal/database"
	_ "github.com/kozaktomas/faceverify/internal/database/mariadb"  // registers the "mysql" driver
	_ "github.com/kozaktomas/faceverify/internal/database/postgres" // registers the "postgres" driver
	"github.com/kozaktomas/faceverify/internal/imaging"
	"github.com/kozaktomas/faceverify/internal/logging"
	"github.com/kozaktomas/faceverify/internal/recognition"
	"github.com/kozaktomas/faceverify/internal/recognition/dlib"
	"github.com/kozaktomas/faceverify/internal/recognition/remote"
	"github.com/kozaktomas/faceverify/internal/storage"
	"github.com/kozaktomas/faceverify/internal/storage/azure"
	"github.com/kozaktomas/faceverify/internal/storage/local"
	"github.com/kozaktomas/faceverify/internal/verify"
)

// newBackend creates the recognition backend selected by FACE_BACKEND.
func newBackend(cfg *config.Config) (recognition.Backend, error) {
	switch cfg.Face.Backend {
	case "dlib":
		backend, err := dlib.NewBackend(cfg.Face.ModelsDir)
		if err != nil {
			return nil, fmt.Errorf("creating dlib backend: %w", err)
		}
		return backend, nil
	default:
		return remote.NewBackend(cfg.Embedding.URL, nil), nil
	}
}

// newOrchestrator wires the recognition runtime, image acquisition and the
// descriptor cache. Models are not loaded until first use or Warmup.
func newOrchestrator(cfg *config.Config) (*verify.Orchestrator, error) {
	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	pref, err := recognition.ParsePreference(cfg.Face.Detector)
	if err != nil {
		return nil, err
	}

	runtime := recognition.NewRuntime(backend, pref, cfg.Face.ModelLoadTimeout)
	acquirer := imaging.NewAcquirer(imaging.Options{
		MaxSize:      cfg.Face.MaxImageSize,
		Timeout:      cfg.Face.DownloadTimeout,
		Retries:      cfg.Face.DownloadRetries,
		RetryBackoff: cfg.Face.RetryBackoff,
		MaxBytes:     int64(cfg.Face.MaxUploadBytes),
		MaxPixels:    cfg.Face.MaxPixels,
	})
	descriptors := cache.New(cfg.Cache.Capacity, cfg.Cache.TTL)

	return verify.NewOrchestrator(descriptors, recognition.NewComputer(runtime), acquirer, cfg.Face.Threshold), nil
}

// newStore creates the object store selected by STORAGE_DRIVER.
func newStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "azure":
		store, err := azure.New(cfg.Storage, "")
		if err != nil {
			return nil, fmt.Errorf("creating azure store: %w", err)
		}
		return store, nil
	default:
		store, err := local.New(cfg.Storage.LocalDir, cfg.Storage.RootPath)
		if err != nil {
			return nil, fmt.Errorf("creating local store: %w", err)
		}
		return store, nil
	}
}

// app holds everything the service commands share.
type app struct {
	orchestrator *verify.Orchestrator
	service      *verify.Service
	references   *verify.References
	closers      []io.Closer
}

// newApp connects to the database and object storage and builds the
// verification services on top of them.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	orchestrator, err := newOrchestrator(cfg)
	if err != nil {
		return nil, err
	}
	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	logging.Info().Str("driver", cfg.Database.Driver).Msg("connecting to database")
	refs, dbCloser, err := database.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &app{
		orchestrator: orchestrator,
		service:      verify.NewService(orchestrator, refs, store, cfg.Face.ReferenceURLExpiry),
		references:   verify.NewReferences(orchestrator, refs, store, cfg.Face.ReferenceURLExpiry),
		closers:      []io.Closer{dbCloser, orchestrator.Runtime()},
	}, nil
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// sourceFor treats http(s) URLs as downloads and anything else as a local path.
func sourceFor(s string) imaging.Source {
	if u, err := url.Parse(s); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return imaging.FromURL(s)
	}
	return imaging.FromPath(s)
}
