package session

import "sync"

const defaultRingSize = 64 * 1024

// ring is a fixed-size circular byte buffer holding output produced before
// a renderer attaches. When full, the oldest bytes are overwritten: a
// late-attaching renderer wants recent output, not the start of history.
type ring struct {
	mu    sync.Mutex
	data  []byte
	start int
	count int
}

func newRing(size int) *ring {
	if size <= 0 {
		size = defaultRingSize
	}
	return &ring{data: make([]byte, size)}
}

// Write appends p, overwriting the oldest bytes once the buffer is full.
func (r *ring) Write(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range p {
		idx := (r.start + r.count) % len(r.data)
		r.data[idx] = b
		if r.count < len(r.data) {
			r.count++
		} else {
			r.start = (r.start + 1) % len(r.data)
		}
	}
}

// Drain returns all buffered bytes in write order and empties the buffer.
func (r *ring) Drain() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]byte, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.data[(r.start+i)%len(r.data)]
	}
	r.start = 0
	r.count = 0
	return out
}

// Len returns the number of buffered bytes.
func (r *ring) Len() int {
	r.mu.Lock()
	n := r.count
	r.mu.Unlock()
	return n
}
