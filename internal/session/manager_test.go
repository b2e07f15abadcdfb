package session

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ttyflow/backend/internal/flow"
)

// captureRenderer is a flow.Renderer recording everything written to it.
type captureRenderer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	lines uint32
}

func (r *captureRenderer) Write(p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf.Write(p)
	r.lines += uint32(bytes.Count(p, []byte{'\n'}))
	return nil
}

func (r *captureRenderer) EvictOldest(lines uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lines > lines {
		r.lines -= lines
	} else {
		r.lines = 0
	}
	return nil
}

func (r *captureRenderer) LineCount() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lines
}

func (r *captureRenderer) data() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}
}

func testFlowConfig() flow.Config {
	cfg := flow.DefaultConfig()
	cfg.Throttle.Debounce = 2 * time.Millisecond
	return cfg
}

func TestManagerLifecycle(t *testing.T) {
	requireShell(t)
	m := NewManager(Config{BacklogBytes: 4096}, zap.NewNop())
	defer m.Shutdown()

	info, err := m.Create(CreateOptions{Shell: "/bin/sh"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(info.ID, "term_"))
	assert.Equal(t, "/bin/sh", info.Shell)
	assert.Equal(t, 80, info.Cols)
	assert.Equal(t, 24, info.Rows)
	assert.True(t, info.Active)
	assert.False(t, info.Attached)

	got, err := m.Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, info.ID, got.ID)
	assert.Len(t, m.List(), 1)

	require.NoError(t, m.Resize(info.ID, 120, 40))
	got, err = m.Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, 120, got.Cols)
	assert.Equal(t, 40, got.Rows)

	// Output before any attachment accumulates in the backlog.
	require.NoError(t, m.Write(info.ID, []byte("echo backlogged\n")))
	s, err := m.session(info.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return s.backlog.Len() > 0
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, m.Kill(info.ID))
	_, err = m.Get(info.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerUnknownSession(t *testing.T) {
	m := NewManager(Config{}, zap.NewNop())

	assert.ErrorIs(t, m.Write("term_missing", []byte("x")), ErrSessionNotFound)
	assert.ErrorIs(t, m.Resize("term_missing", 80, 24), ErrSessionNotFound)
	assert.ErrorIs(t, m.Kill("term_missing"), ErrSessionNotFound)
	_, err := m.EngineMetrics("term_missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerAttachReplaysBacklog(t *testing.T) {
	requireShell(t)
	m := NewManager(Config{BacklogBytes: 8192}, zap.NewNop())
	defer m.Shutdown()

	info, err := m.Create(CreateOptions{Shell: "/bin/sh"})
	require.NoError(t, err)

	require.NoError(t, m.Write(info.ID, []byte("echo flow-marker\n")))
	s, err := m.session(info.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return s.backlog.Len() > 0
	}, 5*time.Second, 20*time.Millisecond)

	r := &captureRenderer{}
	eng, err := m.Attach(info.ID, r, testFlowConfig())
	require.NoError(t, err)
	require.NotNil(t, eng)

	require.Eventually(t, func() bool {
		return strings.Contains(r.data(), "flow-marker")
	}, 5*time.Second, 20*time.Millisecond)

	// One stream at a time.
	_, err = m.Attach(info.ID, &captureRenderer{}, testFlowConfig())
	assert.ErrorIs(t, err, ErrAlreadyAttached)

	_, err = m.EngineMetrics(info.ID)
	assert.NoError(t, err)

	m.Detach(info.ID)
	assert.Equal(t, flow.StateDisposed, eng.State())
	_, err = m.EngineMetrics(info.ID)
	assert.ErrorIs(t, err, ErrNotAttached)

	// Reattach after detach is allowed.
	_, err = m.Attach(info.ID, &captureRenderer{}, testFlowConfig())
	assert.NoError(t, err)
}

func TestManagerExitClosesDone(t *testing.T) {
	requireShell(t)

	exited := make(chan string, 1)
	m := NewManager(Config{}, zap.NewNop(), WithExitHook(func(id string) {
		exited <- id
	}))

	info, err := m.Create(CreateOptions{Shell: "/bin/sh"})
	require.NoError(t, err)

	done, err := m.Done(info.ID)
	require.NoError(t, err)

	require.NoError(t, m.Write(info.ID, []byte("exit\n")))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not exit")
	}
	select {
	case got := <-exited:
		assert.Equal(t, info.ID, got)
	case <-time.After(5 * time.Second):
		t.Fatal("exit hook not invoked")
	}

	got, err := m.Get(info.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	// Writes after exit are rejected, and Kill is still clean.
	assert.ErrorIs(t, m.Write(info.ID, []byte("x")), ErrSessionClosed)
	assert.NoError(t, m.Kill(info.ID))
}
