// Package upload implements the resilient multi-tier image upload pipeline:
// S3-compatible object storage with endpoint failover and retries, a local
// filesystem fallback, and a last-resort pass-through of the original source
// URL. The Uploader facade is the only entrypoint other subsystems use.
package upload

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/storypress/imagestore/internal/storage"
)

// Tier identifies which durability level served an upload.
type Tier string

const (
	// TierRemote means the asset lives in remote object storage. The URL may
	// be public or signed; callers must not assume public.
	TierRemote Tier = "remote"
	// TierLocal means the asset lives in the local fallback directory.
	TierLocal Tier = "local"
	// TierOriginal means every durable tier failed and the returned URL is
	// the original, possibly short-lived, upstream URL. Callers persisting it
	// accept a risk of link rot.
	TierOriginal Tier = "original"
)

// Result is what every caller of SmartUpload observes.
type Result struct {
	URL  string `json:"url"`
	Tier Tier   `json:"tier"`
}

// ResultEntry is the audit record emitted after every upload.
type ResultEntry struct {
	SourceURL string
	Folder    string
	URL       string
	Tier      Tier
	ObjectKey string
	Elapsed   time.Duration
}

// ResultRecorder persists ResultEntry values for later reconciliation.
// Recording is best-effort: a recorder failure never fails an upload.
type ResultRecorder interface {
	Record(ctx context.Context, entry ResultEntry) error
}

// Config tunes the pipeline. Zero values are replaced by defaults.
type Config struct {
	Endpoints []string
	Bucket    string
	// PublicBaseURL optionally overrides the endpoint-derived public URL,
	// e.g. a CDN domain fronting the bucket.
	PublicBaseURL string

	ProbeTimeout time.Duration
	FetchTimeout time.Duration
	// OverallTimeout bounds the whole remote tier: probe, all upload
	// attempts, and access resolution. It must stay longer than the inner
	// per-operation timeouts or the race fires while an inner operation is
	// still holding resources.
	OverallTimeout  time.Duration
	MaxAttempts     int
	SignedURLExpiry time.Duration

	// AlwaysReprobe re-scans the endpoint list from the top on every call
	// instead of remembering the last known good endpoint.
	AlwaysReprobe bool

	LocalDir       string
	LocalURLPrefix string
}

func (c Config) withDefaults() Config {
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 10 * time.Second
	}
	if c.OverallTimeout <= 0 {
		c.OverallTimeout = 15 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.SignedURLExpiry <= 0 {
		c.SignedURLExpiry = 7 * 24 * time.Hour
	}
	if c.LocalDir == "" {
		c.LocalDir = "public/uploads"
	}
	if c.LocalURLPrefix == "" {
		c.LocalURLPrefix = "/uploads"
	}
	return c
}

// Uploader is the orchestration facade over the three tiers. Construct one at
// process start and share it; it is safe for concurrent use.
type Uploader struct {
	cfg      Config
	probe    *EndpointProbe
	executor *UploadExecutor
	resolver *AccessResolver
	local    *LocalFallbackStore
	recorder ResultRecorder
}

// NewUploader wires the pipeline from config and the injected client
// factory. recorder may be nil to disable audit recording.
func NewUploader(cfg Config, factory storage.ClientFactory, recorder ResultRecorder) *Uploader {
	cfg = cfg.withDefaults()
	fetcher := NewSourceFetcher(cfg.FetchTimeout)
	return &Uploader{
		cfg:      cfg,
		probe:    NewEndpointProbe(cfg.Endpoints, cfg.Bucket, factory, cfg.ProbeTimeout, cfg.AlwaysReprobe),
		executor: NewUploadExecutor(fetcher, cfg.Bucket, cfg.MaxAttempts),
		resolver: NewAccessResolver(cfg.Bucket, cfg.PublicBaseURL, cfg.SignedURLExpiry, cfg.ProbeTimeout),
		local:    NewLocalFallbackStore(fetcher, cfg.LocalDir, cfg.LocalURLPrefix),
		recorder: recorder,
	}
}

// SmartUpload persists the asset at sourceURL under the logical folder and
// returns a stable URL plus the tier that served it. It never fails for
// recoverable conditions: the remote tier degrades to the local tier, and
// the local tier degrades to passing the original URL through unchanged.
func (u *Uploader) SmartUpload(ctx context.Context, sourceURL, folder string) (Result, error) {
	start := time.Now()

	url, key, err := u.remoteUpload(ctx, sourceURL, folder)
	if err == nil {
		return u.finish(ctx, sourceURL, folder, Result{URL: url, Tier: TierRemote}, key, start), nil
	}
	log.Printf("upload: remote tier failed after %s, trying local: %v",
		time.Since(start).Round(time.Millisecond), err)

	path, err := u.local.Store(ctx, sourceURL, folder)
	if err == nil {
		return u.finish(ctx, sourceURL, folder, Result{URL: path, Tier: TierLocal}, "", start), nil
	}
	log.Printf("upload: local tier failed, passing original URL through: %v", err)

	return u.finish(ctx, sourceURL, folder, Result{URL: sourceURL, Tier: TierOriginal}, "", start), nil
}

// remoteUpload runs probe → execute → resolve as one composite operation
// raced against the overall timeout. Cancelling the context cancels the
// in-flight HTTP work, not just the wait.
func (u *Uploader) remoteUpload(ctx context.Context, sourceURL, folder string) (url, key string, err error) {
	ctx, cancel := context.WithTimeout(ctx, u.cfg.OverallTimeout)
	defer cancel()

	client, endpoint, err := u.probe.Probe(ctx)
	if err != nil {
		return "", "", err
	}

	key, _, err = u.executor.Execute(ctx, client, sourceURL, folder)
	if err != nil {
		return "", "", fmt.Errorf("endpoint %s: %w", endpoint, err)
	}

	url, err = u.resolver.Resolve(ctx, client, key)
	if err != nil {
		return "", "", fmt.Errorf("endpoint %s: %w", endpoint, err)
	}
	return url, key, nil
}

// SignedURL mints a signed URL for an existing object. Returns
// ErrSignedURLUnavailable when no storage endpoint answers; signed URLs are a
// remote-tier-only concept.
func (u *Uploader) SignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, u.cfg.OverallTimeout)
	defer cancel()

	client, _, err := u.probe.Probe(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSignedURLUnavailable, err)
	}

	if expiry <= 0 {
		expiry = u.cfg.SignedURLExpiry
	}
	signed, err := client.PresignedGet(ctx, u.cfg.Bucket, objectKey, expiry)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSignedURLUnavailable, err)
	}
	return signed, nil
}

// finish records the outcome and hands the result back.
func (u *Uploader) finish(ctx context.Context, sourceURL, folder string, res Result, key string, start time.Time) Result {
	if res.Tier == TierOriginal {
		log.Printf("upload: degraded result for folder=%s, returned URL is not durable", folder)
	}
	if u.recorder != nil {
		entry := ResultEntry{
			SourceURL: sourceURL,
			Folder:    folder,
			URL:       res.URL,
			Tier:      res.Tier,
			ObjectKey: key,
			Elapsed:   time.Since(start),
		}
		if err := u.recorder.Record(ctx, entry); err != nil {
			log.Printf("upload: audit record failed: %v", err)
		}
	}
	return res
}
