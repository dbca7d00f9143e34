package downloader

import (
	"sync"

	"github.com/clocksmith/doppler/pkg/distribution/types"
)

// registry tracks which model IDs have an active download, enforcing that
// at most one job per model ID runs at a time.
type registry struct {
	mu     sync.Mutex
	active map[string]bool
}

func newRegistry() *registry {
	return &registry{active: make(map[string]bool)}
}

func (r *registry) acquire(modelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[modelID] {
		return &types.AlreadyInProgressError{ModelID: modelID}
	}
	r.active[modelID] = true
	return nil
}

func (r *registry) release(modelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, modelID)
}
