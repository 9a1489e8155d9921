package health

import (
	"context"
	"sync"
	"time"
)

// TickFunc runs one monitoring round for id. ctx is canceled when the
// loop is stopped, so a tick blocked on I/O or a lock returns promptly.
type TickFunc func(ctx context.Context, id string)

// Monitor owns one recurring loop per resource id.
type Monitor struct {
	interval time.Duration

	mu     sync.Mutex
	active map[string]*loop
	closed bool
}

type loop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a monitor that ticks every interval.
func NewMonitor(interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		interval: interval,
		active:   make(map[string]*loop),
	}
}

// Interval returns the tick interval.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Start begins ticking for id. It returns false if id already has a loop
// or the monitor has been stopped.
func (m *Monitor) Start(id string, tick TickFunc) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	if _, ok := m.active[id]; ok {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &loop{cancel: cancel, done: make(chan struct{})}
	m.active[id] = l

	go m.run(ctx, id, l, tick)
	return true
}

func (m *Monitor) run(ctx context.Context, id string, l *loop, tick TickFunc) {
	defer close(l.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.owns(id, l) {
				return
			}
			tick(ctx, id)
		}
	}
}

// owns reports whether l is still the registered loop for id.
func (m *Monitor) owns(id string, l *loop) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[id] == l
}

// Stop cancels the loop for id and waits for it to exit. It returns false
// if id had no loop. Stop must not be called from inside id's own tick.
func (m *Monitor) Stop(id string) bool {
	m.mu.Lock()
	l, ok := m.active[id]
	if ok {
		delete(m.active, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	l.cancel()
	<-l.done
	return true
}

// StopAll stops every loop and refuses further Starts.
func (m *Monitor) StopAll() {
	m.mu.Lock()
	m.closed = true
	loops := make([]*loop, 0, len(m.active))
	for id, l := range m.active {
		loops = append(loops, l)
		delete(m.active, id)
	}
	m.mu.Unlock()

	for _, l := range loops {
		l.cancel()
	}
	for _, l := range loops {
		<-l.done
	}
}

// Active reports whether id has a running loop.
func (m *Monitor) Active(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[id]
	return ok
}

// Len returns the number of running loops.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}
