package upload

import (
	"context"
	"errors"
	"net"
)

// ErrNoReachableEndpoint is returned when every configured storage endpoint
// failed to answer the connectivity probe.
var ErrNoReachableEndpoint = errors.New("no reachable storage endpoint")

// ErrFallbackStorage is returned when the local filesystem tier fails to
// persist the asset. The local tier is the retry-exhausted fallback, so this
// error is never retried.
var ErrFallbackStorage = errors.New("fallback storage failed")

// ErrSignedURLUnavailable is returned by SignedURL when the remote tier
// cannot be reached at all. Signed URLs have no local equivalent.
var ErrSignedURLUnavailable = errors.New("signed URL unavailable")

// isUnreachable reports whether err indicates the endpoint never answered:
// timeout, refused connection, DNS failure, TLS failure. A service-level
// error response (404, 403, ...) means the endpoint is alive and does not
// count as unreachable.
func isUnreachable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
