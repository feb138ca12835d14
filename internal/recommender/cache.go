package recommender

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type tenantStatus int

const (
	// stateReady: mapping and model loaded, predictions available.
	stateReady tenantStatus = iota
	// stateColdStart: tenant has no purchase history yet; serving returns
	// empty results until the next retrain or restart.
	stateColdStart
	// stateFailed: loading or training blew up; behaves like a cold start
	// from the caller's perspective, but the failure is kept for inspection.
	stateFailed
)

func (s tenantStatus) String() string {
	switch s {
	case stateReady:
		return "ready"
	case stateColdStart:
		return "cold_start"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// tenantState is an immutable snapshot of one tenant's recommendation state.
// Snapshots are swapped whole under the tenant lock; readers holding an old
// snapshot keep scoring against it safely while a retrain builds the next one.
type tenantState struct {
	status    tenantStatus
	model     *Model
	mapping   *Mapping
	trainedAt time.Time
	failure   error
}

// stateCache holds per-tenant snapshots and the per-tenant mutexes that
// serialize load/train/retrain sequences. Entries are created lazily and
// never evicted; the tenant set is small and long-lived.
type stateCache struct {
	mu     sync.RWMutex
	states map[uuid.UUID]*tenantState

	lockMu sync.Mutex
	locks  map[uuid.UUID]*sync.Mutex
}

func newStateCache() *stateCache {
	return &stateCache{
		states: make(map[uuid.UUID]*tenantState),
		locks:  make(map[uuid.UUID]*sync.Mutex),
	}
}

// lock returns the tenant's mutex, creating it on first use. Different
// tenants get independent mutexes so their load/train cycles proceed in
// parallel.
func (c *stateCache) lock(tenantID uuid.UUID) *sync.Mutex {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()

	l, ok := c.locks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[tenantID] = l
	}
	return l
}

func (c *stateCache) get(tenantID uuid.UUID) (*tenantState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.states[tenantID]
	return state, ok
}

func (c *stateCache) put(tenantID uuid.UUID, state *tenantState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[tenantID] = state
}

// size returns the number of cached tenants, for metrics.
func (c *stateCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.states)
}
