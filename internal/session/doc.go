// Package session manages PTY-backed shell sessions and feeds their output
// into the flow-control engine.
//
// Each session spawns a shell on a pseudo-terminal. A reader goroutine is
// the engine's producer: while a renderer stream is attached, output goes
// straight into the session's engine; before attachment it accumulates in a
// bounded backlog ring that is replayed on attach, so early shell output
// (prompts, login banners) is not lost.
//
// Lifecycle:
//   - Create spawns the shell and starts the reader and exit monitor
//   - Attach binds a renderer, constructs the engine, replays the backlog
//   - Detach disposes the engine; output falls back to the backlog
//   - Kill terminates the process; the monitor cleans up and the session's
//     Done channel closes
package session
