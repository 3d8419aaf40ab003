package upload

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/storypress/imagestore/internal/storage"
)

// errConnRefused simulates a dial failure; net.OpError satisfies net.Error.
var errConnRefused = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connect: connection refused")}

type putCall struct {
	bucket      string
	key         string
	data        []byte
	contentType string
}

// fakeClient is a scriptable ObjectClient bound to a fake endpoint.
type fakeClient struct {
	mu sync.Mutex

	endpoint *url.URL

	statErr error

	// putErrs are consumed one per Put call; once exhausted, Put succeeds.
	putErrs []error
	puts    []putCall

	presignURL string
	presignErr error
}

func newFakeClient(rawURL string) *fakeClient {
	u, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}
	return &fakeClient{endpoint: u}
}

func (f *fakeClient) Stat(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.statErr
}

func (f *fakeClient) Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.putErrs) > 0 {
		err := f.putErrs[0]
		f.putErrs = f.putErrs[1:]
		if err != nil {
			return err
		}
	}
	data, _ := io.ReadAll(reader)
	f.puts = append(f.puts, putCall{bucket: bucket, key: key, data: data, contentType: contentType})
	return nil
}

func (f *fakeClient) PresignedGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	if f.presignURL != "" {
		return f.presignURL, nil
	}
	return f.endpoint.String() + "/" + bucket + "/" + key + "?X-Amz-Expires=604800&X-Amz-Signature=deadbeef", nil
}

func (f *fakeClient) EndpointURL() *url.URL {
	u := *f.endpoint
	return &u
}

func (f *fakeClient) putCalls() []putCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]putCall(nil), f.puts...)
}

// fakeFactory hands out pre-built clients by endpoint and records the order
// endpoints were requested in.
type fakeFactory struct {
	mu      sync.Mutex
	clients map[string]*fakeClient
	probed  []string
}

func newFakeFactory(clients map[string]*fakeClient) *fakeFactory {
	return &fakeFactory{clients: clients}
}

func (f *fakeFactory) factory() storage.ClientFactory {
	return func(endpoint string) (storage.ObjectClient, error) {
		f.mu.Lock()
		f.probed = append(f.probed, endpoint)
		f.mu.Unlock()

		c, ok := f.clients[endpoint]
		if !ok {
			return nil, errors.New("unknown endpoint " + endpoint)
		}
		return c, nil
	}
}

func (f *fakeFactory) probeOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.probed...)
}

// unreachableClient fails every operation at the transport level.
func unreachableClient(rawURL string) *fakeClient {
	c := newFakeClient(rawURL)
	c.statErr = errConnRefused
	return c
}

// reachableClient answers the probe with "no such key" and accepts puts.
func reachableClient(rawURL string) *fakeClient {
	c := newFakeClient(rawURL)
	c.statErr = storage.ErrObjectNotFound
	return c
}

// captureSleeps replaces an executor's sleep with one that records delays
// and returns immediately.
func captureSleeps(e *UploadExecutor) *[]time.Duration {
	var sleeps []time.Duration
	e.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return &sleeps
}
