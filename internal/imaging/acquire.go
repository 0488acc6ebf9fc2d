// Package imaging resolves image sources to decoded, size-capped pixel data.
package imaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kozaktomas/faceverify/internal/logging"
	"github.com/kozaktomas/faceverify/internal/metrics"
)

const (
	defaultTimeout  = 20 * time.Second
	defaultBackoff  = 300 * time.Millisecond
	defaultMaxBytes = 10 << 20
)

// Source is where an image comes from. Exactly one field should be set.
type Source struct {
	URL  string
	Path string
	Data []byte
}

// FromURL returns a Source for a remote (http, https or file) URL.
func FromURL(u string) Source { return Source{URL: u} }

// FromPath returns a Source for a local file.
func FromPath(p string) Source { return Source{Path: p} }

// FromBytes returns a Source for an in-memory buffer.
func FromBytes(b []byte) Source { return Source{Data: b} }

func (s Source) String() string {
	switch {
	case s.URL != "":
		return "url"
	case s.Path != "":
		return "path"
	case len(s.Data) > 0:
		return "bytes"
	default:
		return "empty"
	}
}

// Options configures an Acquirer. Zero values select the defaults.
type Options struct {
	MaxSize      int           // longer side cap after decode, 0 disables downscaling
	Timeout      time.Duration // per download attempt
	Retries      int           // extra attempts after the first one
	RetryBackoff time.Duration
	MaxBytes     int64
	MaxPixels    int // decode budget, 0 selects DefaultMaxPixels
	Client       *http.Client
}

// Acquirer downloads or reads images and returns them decoded and downscaled.
type Acquirer struct {
	client       *http.Client
	maxSize      int
	timeout      time.Duration
	retries      int
	retryBackoff time.Duration
	maxBytes     int64
	maxPixels    int
}

// NewAcquirer creates an Acquirer.
func NewAcquirer(opts Options) *Acquirer {
	a := &Acquirer{
		client:       opts.Client,
		maxSize:      opts.MaxSize,
		timeout:      opts.Timeout,
		retries:      max(opts.Retries, 0),
		retryBackoff: opts.RetryBackoff,
		maxBytes:     opts.MaxBytes,
		maxPixels:    opts.MaxPixels,
	}
	if a.client == nil {
		a.client = &http.Client{}
	}
	if a.timeout <= 0 {
		a.timeout = defaultTimeout
	}
	if a.retryBackoff <= 0 {
		a.retryBackoff = defaultBackoff
	}
	if a.maxBytes <= 0 {
		a.maxBytes = defaultMaxBytes
	}
	return a
}

// Acquire resolves src to a decoded image capped at the configured size.
func (a *Acquirer) Acquire(ctx context.Context, src Source) (*Decoded, error) {
	data, err := a.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	return DecodeAndDownscale(data, a.maxSize, a.maxPixels)
}

// Fetch returns the raw bytes behind src without decoding them.
func (a *Acquirer) Fetch(ctx context.Context, src Source) ([]byte, error) {
	switch {
	case len(src.Data) > 0:
		return src.Data, nil
	case src.Path != "":
		return readFile(src.Path)
	case src.URL != "":
		u, err := url.Parse(src.URL)
		if err != nil {
			return nil, &AcquisitionFailedError{Err: fmt.Errorf("invalid image URL: %w", err)}
		}
		switch u.Scheme {
		case "file":
			return readFile(u.Path)
		case "http", "https":
			return a.download(ctx, src.URL)
		default:
			return nil, &AcquisitionFailedError{Err: fmt.Errorf("unsupported URL scheme %q", u.Scheme)}
		}
	default:
		return nil, ErrEmptySource
	}
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &AcquisitionFailedError{Err: err}
	}
	return data, nil
}

// download fetches rawURL with a per-attempt timeout, retrying transient
// failures up to a.retries times.
func (a *Acquirer) download(ctx context.Context, rawURL string) ([]byte, error) {
	attempt := 0
	op := func() ([]byte, error) {
		attempt++
		data, err := a.downloadOnce(ctx, rawURL)
		if err == nil {
			metrics.RecordDownload("ok")
			return data, nil
		}

		var failed *AcquisitionFailedError
		switch {
		case errors.Is(err, ErrAcquisitionTimeout):
			metrics.RecordDownload("timeout")
		case errors.As(err, &failed) && failed.StatusCode != 0:
			metrics.RecordDownload("http_error")
		default:
			metrics.RecordDownload("error")
		}

		if ctx.Err() != nil || !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		logging.Ctx(ctx).Debug().Err(err).Int("attempt", attempt).Msg("image download failed, retrying")
		return nil, err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(a.retryBackoff), uint64(a.retries)),
		ctx,
	)
	data, err := backoff.RetryWithData(op, policy)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ErrAcquisitionTimeout) {
			return nil, ctxErr
		}
		return nil, err
	}
	return data, nil
}

func (a *Acquirer) downloadOnce(ctx context.Context, rawURL string) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &AcquisitionFailedError{Err: fmt.Errorf("failed to create request: %w", err)}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, a.classify(ctx, attemptCtx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &AcquisitionFailedError{StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBytes+1))
	if err != nil {
		return nil, a.classify(ctx, attemptCtx, err)
	}
	if int64(len(data)) > a.maxBytes {
		return nil, &AcquisitionFailedError{Err: fmt.Errorf("%w: more than %d bytes", errTooLarge, a.maxBytes)}
	}
	return data, nil
}

// classify maps a transport error to ErrAcquisitionTimeout when our own
// per-attempt deadline fired, and to AcquisitionFailedError otherwise.
func (a *Acquirer) classify(parent, attemptCtx context.Context, err error) error {
	if parent.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrAcquisitionTimeout, a.timeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrAcquisitionTimeout, err)
	}
	return &AcquisitionFailedError{Err: err}
}

func retryable(err error) bool {
	if errors.Is(err, ErrAcquisitionTimeout) {
		return true
	}
	var failed *AcquisitionFailedError
	if errors.As(err, &failed) {
		if failed.StatusCode == 0 {
			// Transport errors are transient; oversized bodies are not.
			return failed.Err != nil && !errors.Is(failed.Err, errTooLarge)
		}
		return failed.StatusCode >= 500 || failed.StatusCode == http.StatusTooManyRequests
	}
	return false
}
