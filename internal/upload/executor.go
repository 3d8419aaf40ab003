package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/storypress/imagestore/internal/storage"
)

// UploadExecutor performs the fetch-then-put sequence against one reachable
// endpoint, retrying the whole sequence with exponential backoff. It never
// falls back to other tiers; that is the Uploader's job.
type UploadExecutor struct {
	fetcher     *SourceFetcher
	bucket      string
	maxAttempts int

	// sleep is swapped in tests to observe backoff without waiting for it.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewUploadExecutor builds an executor with the given retry budget.
func NewUploadExecutor(fetcher *SourceFetcher, bucket string, maxAttempts int) *UploadExecutor {
	return &UploadExecutor{
		fetcher:     fetcher,
		bucket:      bucket,
		maxAttempts: maxAttempts,
		sleep:       sleepCtx,
	}
}

// Execute fetches the source and writes it under a freshly generated key,
// returning the key and content type of the stored object. Each attempt
// generates a new key, so a failed attempt never leaves a referenced partial
// object behind, at worst an orphan key nobody links to.
func (e *UploadExecutor) Execute(ctx context.Context, client storage.ObjectClient, sourceURL, folder string) (key, contentType string, err error) {
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := backoffDelay(attempt - 1)
			if err := e.sleep(ctx, delay); err != nil {
				return "", "", fmt.Errorf("upload aborted during backoff: %w", err)
			}
		}

		start := time.Now()
		key, contentType, lastErr = e.attempt(ctx, client, sourceURL, folder)
		if lastErr == nil {
			return key, contentType, nil
		}

		log.Printf("upload: attempt %d/%d failed after %s: %v",
			attempt, e.maxAttempts, time.Since(start).Round(time.Millisecond), lastErr)

		if errors.Is(lastErr, storage.ErrMisconfigured) {
			// Retrying a misconfiguration wastes the backoff budget.
			return "", "", lastErr
		}
		if ctx.Err() != nil {
			return "", "", fmt.Errorf("upload aborted: %w", ctx.Err())
		}
	}
	return "", "", fmt.Errorf("upload failed after %d attempts: %w", e.maxAttempts, lastErr)
}

func (e *UploadExecutor) attempt(ctx context.Context, client storage.ObjectClient, sourceURL, folder string) (string, string, error) {
	asset, err := e.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return "", "", err
	}

	key := objectKey(folder, asset.Extension())
	if err := client.Put(ctx, e.bucket, key, bytes.NewReader(asset.Data), int64(len(asset.Data)), asset.ContentType); err != nil {
		return "", "", err
	}
	return key, asset.ContentType, nil
}

// objectKey generates a globally unique key "{folder}/{uuid}.{ext}".
// Keys are never reused or looked up by content hash.
func objectKey(folder, ext string) string {
	return fmt.Sprintf("%s/%s.%s", folder, uuid.NewString(), ext)
}

// backoffDelay returns the exponential delay inserted after the n-th failed
// attempt: 1s, 2s, 4s, ...
func backoffDelay(n int) time.Duration {
	return time.Duration(1<<(n-1)) * time.Second
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
