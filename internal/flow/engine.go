package flow

import (
	"bytes"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Renderer is the external screen surface the engine writes into. It
// receives decoded byte writes, drops scrollback on request, and reports
// its retained line count. Only the engine's flush path may call into it.
type Renderer interface {
	Write(p []byte) error
	EvictOldest(lines uint32) error
	LineCount() uint32
}

// Observer receives engine events for external accounting, e.g. a
// prometheus bridge. All callbacks run on the flush path and must be cheap.
type Observer interface {
	FlushCompleted(chunks, bytes int)
	FrameDropped()
	LinesEvicted(lines uint32)
	WriteError()
}

// State is the engine lifecycle state. The Active → Disposed transition is
// one-way and terminal.
type State int

const (
	StateActive State = iota
	StateDisposed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// dispatcher phases, orthogonal to the throttle flag.
type phase int

const (
	phaseIdle phase = iota
	phaseScheduled
	phaseFlushing
)

const (
	// throttleCoalesceFactor lengthens the rearm interval while throttled so
	// one flush batches several frames' worth of data.
	throttleCoalesceFactor = 2
	// pressureBackoffFactor lengthens the rearm interval under memory
	// pressure. Backing off, not flushing more eagerly, is the throttle
	// mechanism proper.
	pressureBackoffFactor = 4
	// calmFlushesToClear is the hysteresis: consecutive flushes that must
	// observe a calm queue before the throttle flag drops.
	calmFlushesToClear = 2
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithObserver installs an event observer.
func WithObserver(obs Observer) Option {
	return func(e *Engine) { e.obs = obs }
}

// Engine is the flow-control engine bound to one renderer and one config.
// It is created with New, fed through Write, and destroyed exactly once via
// Dispose; every public method is a no-op after Dispose.
type Engine struct {
	cfg Config
	log *zap.Logger
	obs Observer

	q   *queue
	rec *recorder

	mu       sync.Mutex
	renderer Renderer
	buf      *scrollback
	mem      *memoryMonitor

	phase         phase
	disposed      bool
	timer         *time.Timer
	delay         time.Duration
	throttled     bool
	calmFlushes   int
	framesDropped uint64
}

// New creates an engine bound to renderer. A nil renderer is permitted for
// the not-yet-attached window; scheduled flushes drop their batches until
// one is bound at construction of the next engine. Configuration invariant
// violations are fatal here, never clamped.
func New(renderer Renderer, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		log:      zap.NewNop(),
		q:        &queue{},
		rec:      &recorder{},
		renderer: renderer,
		delay:    cfg.Throttle.Debounce,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.buf = newScrollback(renderer, cfg.Buffer, e.log)
	e.mem = newMemoryMonitor(cfg.Memory)
	return e, nil
}

// Write enqueues one producer chunk and schedules a flush if none is
// pending. It never blocks the producer and never rejects a chunk.
func (e *Engine) Write(p []byte) {
	if len(p) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return
	}

	e.q.enqueue(p)

	switch e.phase {
	case phaseIdle:
		e.phase = phaseScheduled
		e.armLocked(e.delay)
		e.transitionLocked("flush scheduled")
	case phaseScheduled:
		// An already-armed timer is never shortened; shortening under
		// burst load trades one stall for many. The coalescing mode
		// changes instead.
		if !e.throttled && e.q.depth() >= e.cfg.Throttle.HighVolumeThreshold {
			e.throttled = true
			e.calmFlushes = 0
			e.transitionLocked("throttle engaged",
				zap.Int("queued", e.q.depth()),
				zap.Int("threshold", e.cfg.Throttle.HighVolumeThreshold),
			)
		}
	case phaseFlushing:
		// Chunks arriving mid-flush belong to the next batch; the flush
		// epilogue reschedules.
	}
}

// Snapshot returns the latest metrics. Cheap and non-blocking.
func (e *Engine) Snapshot() Metrics {
	return e.rec.snapshot()
}

// Subscribe registers fn for push-on-change metric delivery after each
// flush cycle.
func (e *Engine) Subscribe(fn func(Metrics)) {
	e.rec.subscribe(fn)
}

// Transitions returns the debug transition trail. Empty unless the engine
// was created with Debug enabled.
func (e *Engine) Transitions() []Transition {
	return e.rec.recentTransitions()
}

// State reports the lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return StateDisposed
	}
	return StateActive
}

// Dispose tears the engine down: the armed timer is cancelled, queued
// output is discarded without writing (the renderer is assumed gone), and
// every subsequent operation becomes a no-op. Idempotent, and safe to call
// while a flush is mid-flight; the flush aborts its remaining segments.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	discarded := e.q.drainAll()
	e.phase = phaseIdle
	e.transitionLocked("disposed", zap.Int("discarded_chunks", len(discarded)))
	frames := e.framesDropped
	e.mu.Unlock()

	// Final publish so pollers observe the settled state. Component values
	// are left at their last flush; only queue depth is known to be zero.
	m := e.rec.snapshot()
	m.OutputChunksQueued = 0
	m.FramesDropped = frames
	e.rec.publish(m)
}

// armLocked arms the one-shot debounce timer. Caller holds e.mu.
func (e *Engine) armLocked(d time.Duration) {
	e.timer = time.AfterFunc(d, e.flush)
}

// flush is the timer callback: drain the queue, write it out in bounded
// segments, and settle the next dispatcher phase.
func (e *Engine) flush() {
	e.mu.Lock()
	if e.disposed {
		// Dispose raced the timer fire; the queue is already discarded and
		// this is a clean cancellation, not a dropped frame.
		e.mu.Unlock()
		return
	}
	e.timer = nil

	depth := e.q.depth()
	if e.throttled {
		if depth < e.cfg.Throttle.HighVolumeThreshold {
			e.calmFlushes++
			if e.calmFlushes >= calmFlushesToClear {
				e.throttled = false
				e.calmFlushes = 0
				e.transitionLocked("throttle cleared")
			}
		} else {
			e.calmFlushes = 0
		}
	}

	if e.renderer == nil {
		// No surface to receive the batch. Discard rather than queue
		// indefinitely; only reachable during attach/teardown races.
		dropped := e.q.drainAll()
		e.framesDropped++
		e.phase = phaseIdle
		e.transitionLocked("frame dropped", zap.Int("chunks", len(dropped)))
		obs := e.obs
		m := e.metricsLocked()
		e.mu.Unlock()

		if obs != nil {
			obs.FrameDropped()
		}
		e.rec.publish(m)
		return
	}

	e.phase = phaseFlushing
	batch := e.q.drainAll()
	e.transitionLocked("flush begin", zap.Int("chunks", len(batch)))
	e.mu.Unlock()

	// Renderer interaction happens outside the engine lock so Write calls
	// keep enqueuing; those chunks land in the next batch, never this one.
	written, warning := e.writeBatch(batch)

	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}

	e.delay = e.cfg.Throttle.Debounce
	if warning {
		e.delay *= pressureBackoffFactor
		e.transitionLocked("memory pressure backoff", zap.Duration("delay", e.delay))
	} else if e.throttled {
		e.delay *= throttleCoalesceFactor
	}

	if e.q.depth() > 0 {
		e.phase = phaseScheduled
		e.armLocked(e.delay)
	} else {
		e.phase = phaseIdle
	}
	e.transitionLocked("flush complete", zap.Int("bytes", written))
	obs := e.obs
	m := e.metricsLocked()
	e.mu.Unlock()

	if obs != nil {
		obs.FlushCompleted(len(batch), written)
	}
	e.rec.publish(m)
}

// writeBatch concatenates the batch and writes it to the renderer in
// ordered segments no larger than MaxChunkSize; an unbounded renderer write
// can itself stall the UI thread. A failed segment is logged and skipped
// while the rest of the batch is still attempted. Returns the bytes
// actually written and whether any sample reported memory pressure.
func (e *Engine) writeBatch(batch []Chunk) (int, bool) {
	var total int
	for _, c := range batch {
		total += len(c.Data)
	}
	coalesced := make([]byte, 0, total)
	for _, c := range batch {
		coalesced = append(coalesced, c.Data...)
	}

	var (
		written int
		warning bool
		max     = e.cfg.Throttle.MaxChunkSize
	)
	for off := 0; off < len(coalesced); off += max {
		if e.State() == StateDisposed {
			// Torn down mid-batch; the renderer is gone, stop writing.
			break
		}

		end := off + max
		if end > len(coalesced) {
			end = len(coalesced)
		}
		seg := coalesced[off:end]

		if err := e.renderer.Write(seg); err != nil {
			e.log.Warn("renderer write failed, segment skipped",
				zap.Int("segment_bytes", len(seg)),
				zap.Error(err),
			)
			if e.obs != nil {
				e.obs.WriteError()
			}
			continue
		}
		written += len(seg)

		lineDelta := uint32(bytes.Count(seg, []byte{'\n'}))
		evicted := e.buf.recordWrite(lineDelta)
		if evicted {
			e.transition("scrollback evicted", zap.Uint32("lines", e.cfg.Buffer.TrimLines))
			if e.obs != nil {
				e.obs.LinesEvicted(e.cfg.Buffer.TrimLines)
			}
		}
		if e.mem.sample(e.buf.residentLines(), evicted) == PressureWarning {
			warning = true
		}
	}
	return written, warning
}

// metricsLocked assembles the current snapshot. Caller holds e.mu and the
// flush path is quiescent, so component reads are safe.
func (e *Engine) metricsLocked() Metrics {
	return Metrics{
		MemoryUsageMB:      e.mem.estimatedMB,
		BufferLines:        e.buf.residentLines(),
		ThrottleActive:     e.throttled,
		OutputChunksQueued: e.q.depth(),
		FramesDropped:      e.framesDropped,
		LastGCTime:         e.mem.lastGC,
	}
}

// transitionLocked surfaces an internal transition when Debug is on.
// Caller holds e.mu.
func (e *Engine) transitionLocked(note string, fields ...zap.Field) {
	if !e.cfg.Debug {
		return
	}
	e.log.Debug(note, fields...)
	e.rec.recordTransition(note)
}

// transition is transitionLocked for call sites outside the lock.
func (e *Engine) transition(note string, fields ...zap.Field) {
	if !e.cfg.Debug {
		return
	}
	e.log.Debug(note, fields...)
	e.rec.recordTransition(note)
}
