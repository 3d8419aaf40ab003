package upload

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const userAgent = "imagestore-fetcher/1.0 (+https://github.com/storypress/imagestore)"

// maxAssetSize caps a fetched source asset. The pipeline handles small
// illustration PNGs, not arbitrary blobs.
const maxAssetSize = 32 << 20 // 32 MiB

// Asset holds the bytes of one fetched source image.
type Asset struct {
	Data        []byte
	ContentType string
}

// Extension maps the asset's content type onto a file extension.
func (a *Asset) Extension() string {
	switch a.ContentType {
	case "image/jpeg":
		return "jpg"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	case "image/svg+xml":
		return "svg"
	default:
		return "png"
	}
}

// SourceFetcher downloads source asset bytes from a remote URL under a
// fetch-specific timeout. Inline data: URLs are decoded locally without any
// network round trip. The connectivity diagnostic depends on that.
type SourceFetcher struct {
	client  *http.Client
	timeout time.Duration
}

// NewSourceFetcher creates a fetcher whose requests time out after timeout.
func NewSourceFetcher(timeout time.Duration) *SourceFetcher {
	return &SourceFetcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Fetch retrieves the asset at sourceURL.
func (f *SourceFetcher) Fetch(ctx context.Context, sourceURL string) (*Asset, error) {
	if strings.HasPrefix(sourceURL, "data:") {
		return decodeDataURL(sourceURL)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build source request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch source %q: %w", sourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch source %q: unexpected status %d", sourceURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize+1))
	if err != nil {
		return nil, fmt.Errorf("read source body: %w", err)
	}
	if len(data) > maxAssetSize {
		return nil, fmt.Errorf("source %q exceeds %d byte limit", sourceURL, maxAssetSize)
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if contentType == "" {
		contentType = "image/png"
	}

	return &Asset{Data: data, ContentType: contentType}, nil
}

// decodeDataURL parses an RFC 2397 data URL. Both base64 and percent-encoded
// payloads are accepted.
func decodeDataURL(raw string) (*Asset, error) {
	rest := strings.TrimPrefix(raw, "data:")
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return nil, fmt.Errorf("malformed data URL: missing comma")
	}

	meta, payload := rest[:comma], rest[comma+1:]
	contentType := "text/plain"
	isBase64 := false
	for i, part := range strings.Split(meta, ";") {
		if part == "base64" {
			isBase64 = true
		} else if i == 0 && part != "" {
			contentType = part
		}
	}

	var data []byte
	var err error
	if isBase64 {
		data, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("decode data URL payload: %w", err)
		}
	} else {
		decoded, uerr := url.QueryUnescape(payload)
		if uerr != nil {
			return nil, fmt.Errorf("decode data URL payload: %w", uerr)
		}
		data = []byte(decoded)
	}

	return &Asset{Data: data, ContentType: contentType}, nil
}
