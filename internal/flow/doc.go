// Package flow implements the terminal output flow-control engine.
//
// The engine sits between a PTY producer that emits bytes at unbounded,
// bursty rates and a renderer that can only safely accept work at a bounded
// frame rate with a bounded memory budget. It buffers incoming chunks,
// coalesces them into frame-paced flushes, evicts old scrollback under a
// high-water-mark policy, estimates memory pressure, and exposes metrics.
// It never loses or reorders bytes, and never writes into a renderer that
// has been torn down.
//
// Architecture:
//   - chunk queue: holds incoming byte chunks in arrival order
//   - dispatcher: Idle → Scheduled → Flushing state machine driven by a
//     one-shot debounce timer, with an orthogonal throttle flag
//   - scrollback manager: resident line accounting and batched eviction
//   - memory monitor: bytes-per-line estimator and pressure classification
//   - recorder: snapshot/subscription metrics surface
//
// The engine is mutated only by producer Write calls and its own timer
// callbacks; an internal mutex serializes them. Write is synchronous and
// O(1) amortized. Dispose is idempotent and safe mid-flush.
//
// Example Usage:
//
//	eng, err := flow.New(renderer, flow.DefaultConfig(), flow.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	defer eng.Dispose()
//
//	eng.Write(ptyOutput)          // producer side, never blocks
//	m := eng.Snapshot()           // latest metrics
//	eng.Subscribe(func(m flow.Metrics) { ... })
package flow
