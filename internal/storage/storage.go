// Package storage defines the interface for S3-compatible object storage
// operations. Swap implementations by changing the factory injected at
// startup; the MinIO implementation works with any S3-compatible provider
// (MinIO, ArvanCloud, AWS S3, DigitalOcean Spaces).
package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"time"
)

// ErrObjectNotFound is returned by Stat when the key does not exist.
// An endpoint that answers with this error is alive and reachable.
var ErrObjectNotFound = errors.New("object not found")

// ErrMisconfigured marks credential or bucket configuration errors.
// These are permanent for the lifetime of the process and must not be
// retried with backoff.
var ErrMisconfigured = errors.New("storage misconfigured")

// ObjectClient is a client bound to a single storage endpoint.
type ObjectClient interface {
	// Stat checks whether an object exists under key.
	// Returns ErrObjectNotFound (possibly wrapped) for missing keys.
	Stat(ctx context.Context, bucket, key string) error
	// Put streams data to the store under the given key with a best-effort
	// public-read ACL. size must be the exact byte count.
	Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error
	// PresignedGet mints a time-limited signed GET URL for the key.
	PresignedGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
	// EndpointURL returns the base URL this client is bound to.
	EndpointURL() *url.URL
}

// ClientFactory constructs a client bound to one endpoint host.
// The upload pipeline calls it once per probed candidate.
type ClientFactory func(endpoint string) (ObjectClient, error)
