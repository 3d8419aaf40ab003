package upload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storypress/imagestore/internal/storage"
)

// newTestUploader builds an uploader over the fake factory with fast
// timeouts and an instant backoff sleep.
func newTestUploader(t *testing.T, endpoints []string, factory *fakeFactory, localDir string) (*Uploader, *[]time.Duration) {
	t.Helper()
	u := NewUploader(Config{
		Endpoints:      endpoints,
		Bucket:         "images",
		ProbeTimeout:   200 * time.Millisecond,
		FetchTimeout:   time.Second,
		OverallTimeout: 5 * time.Second,
		AlwaysReprobe:  true,
		LocalDir:       localDir,
	}, factory.factory(), nil)
	sleeps := captureSleeps(u.executor)
	return u, sleeps
}

// headServer returns an httptest server answering every request with status.
func headServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func localFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSmartUploadRemoteTier(t *testing.T) {
	srv := headServer(t, http.StatusOK)
	client := reachableClient(srv.URL)
	factory := newFakeFactory(map[string]*fakeClient{"primary": client})
	dir := t.TempDir()
	u, _ := newTestUploader(t, []string{"primary"}, factory, dir)

	res, err := u.SmartUpload(context.Background(), testPixelDataURL, "illustrations")
	require.NoError(t, err)

	assert.Equal(t, TierRemote, res.Tier)
	assert.True(t, strings.HasPrefix(res.URL, srv.URL+"/images/illustrations/"), "got %q", res.URL)

	// A successful remote upload never also writes to the local tier.
	assert.Empty(t, localFiles(t, dir))
}

func TestSmartUploadFallsBackToLocal(t *testing.T) {
	// All endpoints refuse connections, the local directory is writable,
	// and the source is a valid 1x1 PNG data URL.
	factory := newFakeFactory(map[string]*fakeClient{
		"a": unreachableClient("https://a.example.com"),
		"b": unreachableClient("https://b.example.com"),
	})
	dir := t.TempDir()
	u, _ := newTestUploader(t, []string{"a", "b"}, factory, dir)

	res, err := u.SmartUpload(context.Background(), testPixelDataURL, "illustrations")
	require.NoError(t, err)

	assert.Equal(t, TierLocal, res.Tier)
	assert.Regexp(t, regexp.MustCompile(`^/uploads/illustrations_[0-9a-f-]{36}\.png$`), res.URL)

	files := localFiles(t, dir)
	require.Len(t, files, 1)
	assert.Regexp(t, regexp.MustCompile(`^illustrations_.*\.png$`), files[0])
}

func TestSmartUploadSignedURLWhenNotPublic(t *testing.T) {
	// The first endpoint is unreachable, the second accepts the upload but
	// the public HEAD check answers 403. The result is remote with a
	// signed URL.
	srv := headServer(t, http.StatusForbidden)
	factory := newFakeFactory(map[string]*fakeClient{
		"a": unreachableClient("https://a.example.com"),
		"b": reachableClient(srv.URL),
	})
	u, _ := newTestUploader(t, []string{"a", "b"}, factory, t.TempDir())

	res, err := u.SmartUpload(context.Background(), testPixelDataURL, "illustrations")
	require.NoError(t, err)

	assert.Equal(t, TierRemote, res.Tier)
	assert.Contains(t, res.URL, "X-Amz-Signature")
}

func TestSmartUploadOriginalWhenEverythingFails(t *testing.T) {
	// Endpoints are unreachable and the local directory cannot be created.
	// The original URL comes back unchanged, and the call still does not
	// error.
	factory := newFakeFactory(map[string]*fakeClient{
		"a": unreachableClient("https://a.example.com"),
	})
	parent := t.TempDir()
	blocker := filepath.Join(parent, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	u, _ := newTestUploader(t, []string{"a"}, factory, filepath.Join(blocker, "uploads"))

	res, err := u.SmartUpload(context.Background(), testPixelDataURL, "illustrations")
	require.NoError(t, err)

	assert.Equal(t, TierOriginal, res.Tier)
	assert.Equal(t, testPixelDataURL, res.URL)
}

func TestSmartUploadRetriesThenSucceeds(t *testing.T) {
	// Two simulated timeouts, then success. Exactly two backoff sleeps
	// (1s, 2s) and a remote-tier result.
	srv := headServer(t, http.StatusOK)
	client := reachableClient(srv.URL)
	client.putErrs = []error{errConnRefused, errConnRefused}
	factory := newFakeFactory(map[string]*fakeClient{"primary": client})
	u, sleeps := newTestUploader(t, []string{"primary"}, factory, t.TempDir())

	res, err := u.SmartUpload(context.Background(), testPixelDataURL, "illustrations")
	require.NoError(t, err)

	assert.Equal(t, TierRemote, res.Tier)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, *sleeps)
}

func TestSmartUploadConcurrentKeysDistinct(t *testing.T) {
	// Concurrent calls into the same folder never collide on keys.
	srv := headServer(t, http.StatusOK)
	client := reachableClient(srv.URL)
	factory := newFakeFactory(map[string]*fakeClient{"primary": client})
	u, _ := newTestUploader(t, []string{"primary"}, factory, t.TempDir())

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := u.SmartUpload(context.Background(), testPixelDataURL, "illustrations")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	puts := client.putCalls()
	require.Len(t, puts, n)
	keys := map[string]bool{}
	for _, p := range puts {
		assert.False(t, keys[p.key], "duplicate key %q", p.key)
		keys[p.key] = true
	}
}

func TestSmartUploadMisconfigurationFallsBack(t *testing.T) {
	client := reachableClient("https://a.example.com")
	client.putErrs = []error{storage.ErrMisconfigured}
	factory := newFakeFactory(map[string]*fakeClient{"a": client})
	dir := t.TempDir()
	u, sleeps := newTestUploader(t, []string{"a"}, factory, dir)

	res, err := u.SmartUpload(context.Background(), testPixelDataURL, "illustrations")
	require.NoError(t, err)

	assert.Equal(t, TierLocal, res.Tier)
	assert.Empty(t, *sleeps, "misconfiguration skips straight to the next tier")
}

type capturingRecorder struct {
	mu      sync.Mutex
	entries []ResultEntry
}

func (r *capturingRecorder) Record(ctx context.Context, e ResultEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func TestSmartUploadRecordsOutcome(t *testing.T) {
	srv := headServer(t, http.StatusOK)
	client := reachableClient(srv.URL)
	factory := newFakeFactory(map[string]*fakeClient{"primary": client})

	rec := &capturingRecorder{}
	u := NewUploader(Config{
		Endpoints:     []string{"primary"},
		Bucket:        "images",
		AlwaysReprobe: true,
		LocalDir:      t.TempDir(),
	}, factory.factory(), rec)

	res, err := u.SmartUpload(context.Background(), testPixelDataURL, "illustrations")
	require.NoError(t, err)

	require.Len(t, rec.entries, 1)
	entry := rec.entries[0]
	assert.Equal(t, TierRemote, entry.Tier)
	assert.Equal(t, res.URL, entry.URL)
	assert.Equal(t, "illustrations", entry.Folder)
	assert.NotEmpty(t, entry.ObjectKey)
}

func TestSignedURL(t *testing.T) {
	client := reachableClient("https://a.example.com")
	factory := newFakeFactory(map[string]*fakeClient{"a": client})
	u, _ := newTestUploader(t, []string{"a"}, factory, t.TempDir())

	url, err := u.SignedURL(context.Background(), "illustrations/abc.png", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, url, "X-Amz-Signature")
}

func TestSignedURLUnavailable(t *testing.T) {
	factory := newFakeFactory(map[string]*fakeClient{
		"a": unreachableClient("https://a.example.com"),
	})
	u, _ := newTestUploader(t, []string{"a"}, factory, t.TempDir())

	_, err := u.SignedURL(context.Background(), "illustrations/abc.png", time.Hour)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSignedURLUnavailable)
}
