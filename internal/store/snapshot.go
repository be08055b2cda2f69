package store

import (
	"sync"
	"sync/atomic"

	"github.com/dagbolade/toolguard/internal/policy"
)

// snapshotCache keeps a versioned copy of the full policy set so the hot
// invocation path does not re-query SQLite per attempt. Every write bumps
// the version; a stale snapshot is rebuilt on the next read. A resolver
// holding an old snapshot keeps evaluating against it, which is exactly the
// no-mixed-rule-sets guarantee: a verdict is always produced from one
// consistent version.
type snapshotCache struct {
	version atomic.Uint64

	mu       sync.Mutex
	built    uint64
	fresh    bool
	policies []policy.Policy
}

func (c *snapshotCache) invalidate() {
	c.version.Add(1)
}

func (c *snapshotCache) get(build func() ([]policy.Policy, error)) ([]policy.Policy, error) {
	v := c.version.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fresh && c.built == v {
		return c.policies, nil
	}

	policies, err := build()
	if err != nil {
		return nil, err
	}

	c.policies = policies
	c.built = v
	c.fresh = true
	return c.policies, nil
}
