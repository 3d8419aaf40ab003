package upload

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/storypress/imagestore/internal/storage"
)

// AccessResolver decides how a freshly uploaded object is exposed: by its
// public URL when anonymous reads work, otherwise by a signed URL. Bucket
// ACL propagation is not instantaneous on every provider, so the public URL
// is verified rather than assumed.
type AccessResolver struct {
	bucket string
	// publicBase overrides the endpoint-derived public URL when set, e.g. a
	// CDN domain fronting the bucket.
	publicBase string
	expiry     time.Duration
	httpClient *http.Client
}

// NewAccessResolver builds a resolver minting signed URLs valid for expiry.
func NewAccessResolver(bucket, publicBase string, expiry time.Duration, checkTimeout time.Duration) *AccessResolver {
	return &AccessResolver{
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
		expiry:     expiry,
		httpClient: &http.Client{Timeout: checkTimeout},
	}
}

// Resolve returns the externally usable URL for bucket/key. A confirmed
// publicly readable object yields its bare public URL; anything else yields
// a signed URL. Signed-URL generation is the only hard failure here.
func (r *AccessResolver) Resolve(ctx context.Context, client storage.ObjectClient, key string) (string, error) {
	publicURL := r.PublicURL(client, key)
	if r.publiclyReadable(ctx, publicURL) {
		return publicURL, nil
	}

	log.Printf("upload: public read check failed for %q, minting signed URL", key)
	signed, err := client.PresignedGet(ctx, r.bucket, key, r.expiry)
	if err != nil {
		return "", fmt.Errorf("mint signed URL for %q: %w", key, err)
	}
	return signed, nil
}

// PublicURL computes the anonymous-access URL for key.
func (r *AccessResolver) PublicURL(client storage.ObjectClient, key string) string {
	if r.publicBase != "" {
		return r.publicBase + "/" + key
	}
	base := strings.TrimRight(client.EndpointURL().String(), "/")
	return fmt.Sprintf("%s/%s/%s", base, r.bucket, key)
}

// publiclyReadable issues a HEAD request against url and reports whether an
// anonymous client would get the object.
func (r *AccessResolver) publiclyReadable(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}
