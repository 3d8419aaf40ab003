package upload

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/storypress/imagestore/internal/storage"
)

// probeKey is a well-known, intentionally nonexistent key. Any answer about
// it, including "no such key", proves the endpoint is alive.
const probeKey = "test-connectivity"

// EndpointProbe walks an ordered candidate list and returns a client bound to
// the first endpoint that answers a cheap existence check. Order encodes
// preference: the first candidate is the primary region.
//
// With AlwaysReprobe (the default policy) no state is kept between calls:
// endpoints may recover or degrade between calls, so every call starts from
// the top of the list. Turning the policy off makes the probe revalidate the
// last known good endpoint first before falling back to the full scan.
type EndpointProbe struct {
	endpoints     []string
	bucket        string
	factory       storage.ClientFactory
	timeout       time.Duration
	alwaysReprobe bool

	mu       sync.Mutex
	lastGood string
}

// NewEndpointProbe builds a probe over the ordered endpoint list.
func NewEndpointProbe(endpoints []string, bucket string, factory storage.ClientFactory, timeout time.Duration, alwaysReprobe bool) *EndpointProbe {
	return &EndpointProbe{
		endpoints:     endpoints,
		bucket:        bucket,
		factory:       factory,
		timeout:       timeout,
		alwaysReprobe: alwaysReprobe,
	}
}

// Probe returns a client for the first reachable endpoint, or
// ErrNoReachableEndpoint when every candidate fails to answer.
func (p *EndpointProbe) Probe(ctx context.Context) (storage.ObjectClient, string, error) {
	for _, endpoint := range p.candidates() {
		client, err := p.factory(endpoint)
		if err != nil {
			log.Printf("upload: probe %s: client construction failed: %v", endpoint, err)
			continue
		}

		if p.reachable(ctx, client, endpoint) {
			p.remember(endpoint)
			return client, endpoint, nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, "", ErrNoReachableEndpoint
}

// reachable issues the stat against the probe key under the per-endpoint
// timeout and classifies the outcome.
func (p *EndpointProbe) reachable(ctx context.Context, client storage.ObjectClient, endpoint string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err := client.Stat(probeCtx, p.bucket, probeKey)
	switch {
	case err == nil, errors.Is(err, storage.ErrObjectNotFound):
		return true
	case isUnreachable(err):
		log.Printf("upload: probe %s: unreachable after %s: %v", endpoint, time.Since(start).Round(time.Millisecond), err)
		return false
	default:
		// The service answered, just not with the answer we asked for.
		return true
	}
}

// candidates returns the probe order for this call.
func (p *EndpointProbe) candidates() []string {
	if p.alwaysReprobe {
		return p.endpoints
	}

	p.mu.Lock()
	last := p.lastGood
	p.mu.Unlock()
	if last == "" {
		return p.endpoints
	}

	ordered := make([]string, 0, len(p.endpoints)+1)
	ordered = append(ordered, last)
	for _, e := range p.endpoints {
		if e != last {
			ordered = append(ordered, e)
		}
	}
	return ordered
}

func (p *EndpointProbe) remember(endpoint string) {
	if p.alwaysReprobe {
		return
	}
	p.mu.Lock()
	p.lastGood = endpoint
	p.mu.Unlock()
}
