package upload

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
)

// LocalFallbackStore writes assets into a local, web-served directory and
// returns a root-relative public path. It is the last durable tier before
// giving up, so it does no retrying of its own: its failure modes
// (permissions, disk full, bad source URL) are not transient the way network
// failures are.
type LocalFallbackStore struct {
	fetcher *SourceFetcher
	// dir is the filesystem directory files land in.
	dir string
	// urlPrefix is the path the web server mounts dir under, e.g. "/uploads".
	urlPrefix string
}

// NewLocalFallbackStore builds a store writing into dir, served at urlPrefix.
func NewLocalFallbackStore(fetcher *SourceFetcher, dir, urlPrefix string) *LocalFallbackStore {
	return &LocalFallbackStore{fetcher: fetcher, dir: dir, urlPrefix: urlPrefix}
}

// Store fetches the source and writes it as "{folder}_{uuid}.png" under the
// store directory, creating the directory if absent. Returns the
// root-relative public path. All failures wrap ErrFallbackStorage.
func (s *LocalFallbackStore) Store(ctx context.Context, sourceURL, folder string) (string, error) {
	asset, err := s.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return "", fmt.Errorf("%w: fetch source: %v", ErrFallbackStorage, err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create directory %q: %v", ErrFallbackStorage, s.dir, err)
	}

	name := fmt.Sprintf("%s_%s.png", folder, uuid.NewString())
	if err := os.WriteFile(filepath.Join(s.dir, name), asset.Data, 0o644); err != nil {
		return "", fmt.Errorf("%w: write %q: %v", ErrFallbackStorage, name, err)
	}

	return path.Join(s.urlPrefix, name), nil
}

// URLPrefix returns the public path prefix local files are served under.
// The connectivity diagnostic uses it to recognize local-tier URLs.
func (s *LocalFallbackStore) URLPrefix() string {
	return s.urlPrefix
}
