package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/ttyflow/backend/internal/flow"
	"github.com/ttyflow/backend/internal/id"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session is closed")
	ErrAlreadyAttached = errors.New("session already has an attached stream")
	ErrNotAttached     = errors.New("session has no attached stream")
)

// Config holds session manager configuration.
type Config struct {
	// DefaultShell overrides platform shell resolution when set.
	DefaultShell string
	// BacklogBytes bounds the pre-attach output ring per session.
	BacklogBytes int
}

// CreateOptions are the per-session creation parameters; all are optional.
type CreateOptions struct {
	Shell      string            `json:"shell"`
	WorkingDir string            `json:"working_dir"`
	Cols       int               `json:"cols"`
	Rows       int               `json:"rows"`
	Env        map[string]string `json:"env"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithExitHook registers fn to run when a session's shell process exits.
func WithExitHook(fn func(sessionID string)) Option {
	return func(m *Manager) { m.onExit = fn }
}

// Manager manages PTY sessions.
type Manager struct {
	cfg      Config
	log      *zap.Logger
	sessions sync.Map // map[string]*Session
	onExit   func(sessionID string)
}

// NewManager creates a session manager.
func NewManager(cfg Config, log *zap.Logger, opts ...Option) *Manager {
	m := &Manager{cfg: cfg, log: log}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create spawns a shell on a new PTY and starts its reader and exit
// monitor.
func (m *Manager) Create(opts CreateOptions) (Info, error) {
	shell := resolveShell(opts.Shell, m.cfg.DefaultShell)
	workingDir := resolveWorkingDir(opts.WorkingDir)

	cols := opts.Cols
	if cols <= 0 {
		cols = 80
	}
	rows := opts.Rows
	if rows <= 0 {
		rows = 24
	}

	cmd := exec.Command(shell)
	cmd.Dir = workingDir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	for key, value := range opts.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
	if err != nil {
		return Info{}, fmt.Errorf("failed to start PTY: %w", err)
	}

	s := &Session{
		ID:         id.NewSessionID().String(),
		Shell:      shell,
		WorkingDir: workingDir,
		StartedAt:  time.Now(),
		cmd:        cmd,
		ptmx:       ptmx,
		cols:       cols,
		rows:       rows,
		backlog:    newRing(m.cfg.BacklogBytes),
		done:       make(chan struct{}),
	}
	m.sessions.Store(s.ID, s)

	m.log.Info("session created",
		zap.String("session_id", s.ID),
		zap.String("shell", shell),
		zap.Int("cols", cols),
		zap.Int("rows", rows),
	)

	go m.readOutput(s)
	go m.monitorProcess(s)

	return s.info(), nil
}

// readOutput is the engine's producer: it pumps PTY output into the
// session until the PTY closes.
func (m *Manager) readOutput(s *Session) {
	buf := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			s.deliver(buf[:n])
		}
		if err != nil {
			if err != io.EOF && !errors.Is(err, os.ErrClosed) {
				m.log.Debug("pty read ended", zap.String("session_id", s.ID), zap.Error(err))
			}
			return
		}
	}
}

// monitorProcess waits for the shell to exit, then tears the session down:
// the engine (if any) is disposed, the PTY is closed, and Done is closed.
func (m *Manager) monitorProcess(s *Session) {
	err := s.cmd.Wait()

	s.mu.Lock()
	s.closed = true
	eng := s.engine
	s.engine = nil
	s.mu.Unlock()

	if eng != nil {
		eng.Dispose()
	}
	s.ptmx.Close()
	close(s.done)

	m.log.Info("session exited", zap.String("session_id", s.ID), zap.Error(err))
	if m.onExit != nil {
		m.onExit(s.ID)
	}
}

// Attach binds a renderer to the session: the engine is created against
// it, the pre-attach backlog is replayed in order, and subsequent PTY
// output flows through the engine. One attachment at a time.
func (m *Manager) Attach(sessionID string, renderer flow.Renderer, cfg flow.Config, opts ...flow.Option) (*flow.Engine, error) {
	s, err := m.session(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("%w: %s", ErrSessionClosed, sessionID)
	}
	if s.engine != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyAttached, sessionID)
	}

	eng, err := flow.New(renderer, cfg, opts...)
	if err != nil {
		return nil, err
	}

	// Replay under the session lock so the reader cannot interleave fresh
	// output ahead of the backlog.
	if backlog := s.backlog.Drain(); len(backlog) > 0 {
		eng.Write(backlog)
	}
	s.engine = eng
	return eng, nil
}

// Detach disposes the session's engine; output falls back to the backlog.
// No-op when nothing is attached.
func (m *Manager) Detach(sessionID string) {
	s, err := m.session(sessionID)
	if err != nil {
		return
	}

	s.mu.Lock()
	eng := s.engine
	s.engine = nil
	s.mu.Unlock()

	if eng != nil {
		eng.Dispose()
	}
}

// EngineMetrics returns the attached engine's latest snapshot.
func (m *Manager) EngineMetrics(sessionID string) (flow.Metrics, error) {
	s, err := m.session(sessionID)
	if err != nil {
		return flow.Metrics{}, err
	}

	s.mu.RLock()
	eng := s.engine
	s.mu.RUnlock()

	if eng == nil {
		return flow.Metrics{}, fmt.Errorf("%w: %s", ErrNotAttached, sessionID)
	}
	return eng.Snapshot(), nil
}

// Write sends input to the session's PTY.
func (m *Manager) Write(sessionID string, input []byte) error {
	s, err := m.session(sessionID)
	if err != nil {
		return err
	}

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return fmt.Errorf("%w: %s", ErrSessionClosed, sessionID)
	}

	_, err = s.ptmx.Write(input)
	return err
}

// Resize changes the PTY dimensions.
func (m *Manager) Resize(sessionID string, cols, rows int) error {
	s, err := m.session(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: %s", ErrSessionClosed, sessionID)
	}
	s.cols = cols
	s.rows = rows

	return pty.Setsize(s.ptmx, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
}

// Kill terminates the session's process and removes the session. The exit
// monitor performs the actual cleanup when the process reaps.
func (m *Manager) Kill(sessionID string) error {
	s, err := m.session(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	alreadyClosed := s.closed
	s.mu.Unlock()

	if !alreadyClosed && s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	m.sessions.Delete(sessionID)
	return nil
}

// List returns all sessions, including exited ones not yet killed.
func (m *Manager) List() []Info {
	infos := make([]Info, 0)
	m.sessions.Range(func(_, value any) bool {
		infos = append(infos, value.(*Session).info())
		return true
	})
	return infos
}

// Get returns one session's info.
func (m *Manager) Get(sessionID string) (Info, error) {
	s, err := m.session(sessionID)
	if err != nil {
		return Info{}, err
	}
	return s.info(), nil
}

// Done exposes the session's exit channel for stream handlers.
func (m *Manager) Done(sessionID string) (<-chan struct{}, error) {
	s, err := m.session(sessionID)
	if err != nil {
		return nil, err
	}
	return s.Done(), nil
}

// Shutdown kills every session.
func (m *Manager) Shutdown() {
	m.sessions.Range(func(key, _ any) bool {
		m.Kill(key.(string))
		return true
	})
}

func (m *Manager) session(sessionID string) (*Session, error) {
	value, ok := m.sessions.Load(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return value.(*Session), nil
}
