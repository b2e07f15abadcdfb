package flow

import (
	"sync"
	"time"
)

// Metrics is a read-only snapshot of the engine's latest values. It is
// maintained by the other components at flush boundaries; reading it never
// triggers computation.
type Metrics struct {
	MemoryUsageMB      float64   `json:"memory_usage_mb"`
	BufferLines        uint32    `json:"buffer_lines"`
	ThrottleActive     bool      `json:"throttle_active"`
	OutputChunksQueued int       `json:"output_chunks_queued"`
	FramesDropped      uint64    `json:"frames_dropped"`
	LastGCTime         time.Time `json:"last_gc_time"`
}

// Transition records one internal dispatcher transition. Transitions are
// retained only when the engine runs with Debug enabled.
type Transition struct {
	At   time.Time `json:"at"`
	Note string    `json:"note"`
}

// maxTransitions bounds the debug trail.
const maxTransitions = 64

// recorder aggregates the latest metric values and fans them out to
// subscribers. Snapshot is a cheap read under RLock; consumers may poll or
// subscribe, and either way observe values no older than one flush cycle.
type recorder struct {
	mu          sync.RWMutex
	current     Metrics
	subscribers []func(Metrics)
	transitions []Transition
}

// snapshot returns the latest metrics.
func (r *recorder) snapshot() Metrics {
	r.mu.RLock()
	m := r.current
	r.mu.RUnlock()
	return m
}

// subscribe registers fn for push-on-change delivery. fn is invoked
// synchronously after each publish; it must not call back into the engine's
// write path.
func (r *recorder) subscribe(fn func(Metrics)) {
	r.mu.Lock()
	r.subscribers = append(r.subscribers, fn)
	r.mu.Unlock()
}

// publish stores m and notifies subscribers.
func (r *recorder) publish(m Metrics) {
	r.mu.Lock()
	r.current = m
	subs := r.subscribers
	r.mu.Unlock()

	for _, fn := range subs {
		fn(m)
	}
}

// recordTransition appends a debug trail entry, evicting the oldest once
// the trail is full.
func (r *recorder) recordTransition(note string) {
	r.mu.Lock()
	if len(r.transitions) >= maxTransitions {
		r.transitions = r.transitions[1:]
	}
	r.transitions = append(r.transitions, Transition{At: time.Now(), Note: note})
	r.mu.Unlock()
}

// recentTransitions returns a copy of the debug trail.
func (r *recorder) recentTransitions() []Transition {
	r.mu.RLock()
	out := make([]Transition, len(r.transitions))
	copy(out, r.transitions)
	r.mu.RUnlock()
	return out
}
