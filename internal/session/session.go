package session

import (
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/ttyflow/backend/internal/flow"
)

// Session represents one PTY-backed shell session.
type Session struct {
	ID         string
	Shell      string
	WorkingDir string
	StartedAt  time.Time

	cmd  *exec.Cmd
	ptmx *os.File

	mu      sync.RWMutex
	cols    int
	rows    int
	closed  bool
	engine  *flow.Engine
	backlog *ring
	done    chan struct{}
}

// Info is the public representation of a session.
type Info struct {
	ID         string    `json:"id"`
	Shell      string    `json:"shell"`
	WorkingDir string    `json:"working_dir"`
	Cols       int       `json:"cols"`
	Rows       int       `json:"rows"`
	StartedAt  time.Time `json:"started_at"`
	Active     bool      `json:"active"`
	Attached   bool      `json:"attached"`
}

func (s *Session) info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Info{
		ID:         s.ID,
		Shell:      s.Shell,
		WorkingDir: s.WorkingDir,
		Cols:       s.cols,
		Rows:       s.rows,
		StartedAt:  s.StartedAt,
		Active:     !s.closed,
		Attached:   s.engine != nil,
	}
}

// deliver routes producer output into the attached engine, or the
// pre-attach backlog when no renderer is bound.
func (s *Session) deliver(p []byte) {
	s.mu.RLock()
	eng := s.engine
	s.mu.RUnlock()

	if eng != nil {
		eng.Write(p)
		return
	}
	s.backlog.Write(p)
}

// Done is closed when the shell process exits and cleanup has run.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
