package auth

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// RefreshFunc performs the actual network round trip to mint new
// credentials from the current ones.
type RefreshFunc func(ctx context.Context, creds Credentials) (Credentials, error)

// RefreshCoordinator coalesces concurrent refresh callers onto a single
// in-flight task (spec §4.9). It shares one singleflight.Group key across
// every call to RefreshIfNeeded, which is this type's only entry point, so
// deduplication can never split across code paths.
type RefreshCoordinator struct {
	refreshFn RefreshFunc
	sf        singleflight.Group
}

// NewRefreshCoordinator creates a coordinator backed by refreshFn.
func NewRefreshCoordinator(refreshFn RefreshFunc) *RefreshCoordinator {
	return &RefreshCoordinator{refreshFn: refreshFn}
}

// refreshKey is the coordinator's single singleflight key: every caller
// coalesces onto the same in-flight task regardless of which credentials
// value they happen to be holding.
const refreshKey = "refresh"

// RefreshIfNeeded runs refreshFn for creds, coalescing concurrent callers.
// All callers arriving while a refresh is in flight receive the same
// result (success or the same error). The in-flight slot is cleared
// immediately after completion either way, so the next wave of callers -
// whether after a success or a failure - starts a fresh task rather than
// replaying a cached outcome.
func (c *RefreshCoordinator) RefreshIfNeeded(ctx context.Context, creds Credentials) (Credentials, error) {
	v, err, _ := c.sf.Do(refreshKey, func() (any, error) {
		return c.refreshFn(ctx, creds)
	})
	if err != nil {
		return Credentials{}, err
	}
	return v.(Credentials), nil
}
