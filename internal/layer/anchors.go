package layer

import "sync"

// DefaultAnchorCapacity bounds the process-wide anchor set.
const DefaultAnchorCapacity = 10000

// AnchorView is the read-only side of the anchor set handed to layers.
type AnchorView interface {
	Contains(key string) bool
	Len() int
}

// AnchorSet is the process-wide set of memory anchors. It is capped and
// evicts the oldest key first. Layers only read it; the orchestrator commits
// new anchors after a pass.
type AnchorSet struct {
	mu       sync.RWMutex
	capacity int
	keys     map[string]struct{}
	order    []string
	evicted  int
}

func NewAnchorSet(capacity int) *AnchorSet {
	if capacity <= 0 {
		capacity = DefaultAnchorCapacity
	}
	return &AnchorSet{
		capacity: capacity,
		keys:     make(map[string]struct{}),
	}
}

func (a *AnchorSet) Contains(key string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.keys[key]
	return ok
}

func (a *AnchorSet) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.keys)
}

// Add inserts keys not yet present and returns how many were new.
func (a *AnchorSet) Add(keys ...string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	added := 0
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := a.keys[k]; ok {
			continue
		}
		a.keys[k] = struct{}{}
		a.order = append(a.order, k)
		added++
		for len(a.order) > a.capacity {
			oldest := a.order[0]
			a.order = a.order[1:]
			delete(a.keys, oldest)
			a.evicted++
		}
	}
	return added
}

// Evicted reports how many keys have been dropped by the cap.
func (a *AnchorSet) Evicted() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.evicted
}
