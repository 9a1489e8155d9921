package drain

import (
	"context"
	"sync"
)

// WorkTracker counts in-flight jobs per resource. Its Idle method is an
// IdleFunc, so schedulers that route work through Begin get drain waits
// that end when the last job finishes.
type WorkTracker struct {
	mu     sync.Mutex
	active map[string]int
}

// NewWorkTracker creates an empty tracker.
func NewWorkTracker() *WorkTracker {
	return &WorkTracker{active: make(map[string]int)}
}

// Begin records one job on id. The returned func ends it; extra calls are no-ops.
func (t *WorkTracker) Begin(id string) (done func()) {
	t.mu.Lock()
	t.active[id]++
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if t.active[id] <= 1 {
				delete(t.active, id)
			} else {
				t.active[id]--
			}
		})
	}
}

// Active returns the number of in-flight jobs on id.
func (t *WorkTracker) Active(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active[id]
}

// Idle reports whether id has no in-flight jobs.
func (t *WorkTracker) Idle(_ context.Context, id string) (bool, error) {
	return t.Active(id) == 0, nil
}
