package flow

import (
	"sync"
	"time"
)

// Chunk is an immutable byte sequence delivered by the producer in one
// event, stamped with its arrival time and a monotonic sequence number.
type Chunk struct {
	Seq     uint64
	Data    []byte
	Arrived time.Time
}

// queue holds incoming chunks in arrival order until the dispatcher drains
// them. Enqueue never blocks and never rejects: backpressure is expressed
// through throttling, not rejection, because the producer is an OS-level
// byte stream that cannot be paused without stalling the process behind it.
type queue struct {
	mu      sync.Mutex
	chunks  []Chunk
	nextSeq uint64
}

// enqueue copies p into a new chunk. The caller may reuse p immediately.
func (q *queue) enqueue(p []byte) {
	data := make([]byte, len(p))
	copy(data, p)

	q.mu.Lock()
	q.chunks = append(q.chunks, Chunk{
		Seq:     q.nextSeq,
		Data:    data,
		Arrived: time.Now(),
	})
	q.nextSeq++
	q.mu.Unlock()
}

// drainAll atomically removes and returns all queued chunks in arrival
// order. Used exclusively by the dispatcher during a flush, and by dispose
// to discard in-flight output.
func (q *queue) drainAll() []Chunk {
	q.mu.Lock()
	chunks := q.chunks
	q.chunks = nil
	q.mu.Unlock()
	return chunks
}

// depth returns the number of chunks currently queued.
func (q *queue) depth() int {
	q.mu.Lock()
	n := len(q.chunks)
	q.mu.Unlock()
	return n
}
