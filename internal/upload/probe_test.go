package upload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storypress/imagestore/internal/storage"
)

func TestProbePicksFirstReachable(t *testing.T) {
	factory := newFakeFactory(map[string]*fakeClient{
		"s3.primary.example.com":  unreachableClient("https://s3.primary.example.com"),
		"s3.fallback.example.com": reachableClient("https://s3.fallback.example.com"),
	})
	p := NewEndpointProbe(
		[]string{"s3.primary.example.com", "s3.fallback.example.com"},
		"images", factory.factory(), time.Second, true)

	client, endpoint, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s3.fallback.example.com", endpoint)
	assert.NotNil(t, client)
}

func TestProbeShortCircuitsOnFirstHit(t *testing.T) {
	factory := newFakeFactory(map[string]*fakeClient{
		"a.example.com": reachableClient("https://a.example.com"),
		"b.example.com": reachableClient("https://b.example.com"),
	})
	p := NewEndpointProbe([]string{"a.example.com", "b.example.com"}, "images", factory.factory(), time.Second, true)

	_, endpoint, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a.example.com", endpoint)
	assert.Equal(t, []string{"a.example.com"}, factory.probeOrder(), "must not probe past the first reachable endpoint")
}

func TestProbeNotFoundCountsAsReachable(t *testing.T) {
	c := newFakeClient("https://a.example.com")
	c.statErr = storage.ErrObjectNotFound
	factory := newFakeFactory(map[string]*fakeClient{"a.example.com": c})
	p := NewEndpointProbe([]string{"a.example.com"}, "images", factory.factory(), time.Second, true)

	_, _, err := p.Probe(context.Background())
	assert.NoError(t, err)
}

func TestProbeServiceErrorCountsAsReachable(t *testing.T) {
	// A 403-style answer is still an answer: the endpoint is alive.
	c := newFakeClient("https://a.example.com")
	c.statErr = errors.New("Access Denied")
	factory := newFakeFactory(map[string]*fakeClient{"a.example.com": c})
	p := NewEndpointProbe([]string{"a.example.com"}, "images", factory.factory(), time.Second, true)

	_, _, err := p.Probe(context.Background())
	assert.NoError(t, err)
}

func TestProbeAllUnreachable(t *testing.T) {
	factory := newFakeFactory(map[string]*fakeClient{
		"a.example.com": unreachableClient("https://a.example.com"),
		"b.example.com": unreachableClient("https://b.example.com"),
	})
	p := NewEndpointProbe([]string{"a.example.com", "b.example.com"}, "images", factory.factory(), time.Second, true)

	_, _, err := p.Probe(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoReachableEndpoint)
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, factory.probeOrder())
}

func TestProbeAlwaysReprobeStartsFromTop(t *testing.T) {
	factory := newFakeFactory(map[string]*fakeClient{
		"a.example.com": unreachableClient("https://a.example.com"),
		"b.example.com": reachableClient("https://b.example.com"),
	})
	p := NewEndpointProbe([]string{"a.example.com", "b.example.com"}, "images", factory.factory(), time.Second, true)

	for i := 0; i < 2; i++ {
		_, endpoint, err := p.Probe(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "b.example.com", endpoint)
	}
	// No sticky cache: the second call re-probes the dead primary first.
	assert.Equal(t, []string{"a.example.com", "b.example.com", "a.example.com", "b.example.com"}, factory.probeOrder())
}

func TestProbeStickyPolicyRevalidatesLastGood(t *testing.T) {
	factory := newFakeFactory(map[string]*fakeClient{
		"a.example.com": unreachableClient("https://a.example.com"),
		"b.example.com": reachableClient("https://b.example.com"),
	})
	p := NewEndpointProbe([]string{"a.example.com", "b.example.com"}, "images", factory.factory(), time.Second, false)

	_, endpoint, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b.example.com", endpoint)

	_, endpoint, err = p.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b.example.com", endpoint)

	// Second call goes straight to the remembered endpoint.
	assert.Equal(t, []string{"a.example.com", "b.example.com", "b.example.com"}, factory.probeOrder())
}
