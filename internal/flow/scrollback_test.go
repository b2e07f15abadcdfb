package flow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestScrollbackEvictsAtHighWaterMark(t *testing.T) {
	r := newFakeRenderer()
	s := newScrollback(r, BufferConfig{MaxLines: 10000, TrimThreshold: 0.8, TrimLines: 1000}, zap.NewNop())

	// Scenario A: 8000 lines then one more yields exactly one eviction of
	// 1000 lines and 7001 resident.
	evicted := s.recordWrite(8000)
	assert.True(t, evicted)
	assert.Equal(t, uint32(7000), s.residentLines())

	evicted = s.recordWrite(1)
	assert.False(t, evicted)
	assert.Equal(t, uint32(7001), s.residentLines())

	assert.Equal(t, []uint32{1000}, r.evictions())
}

func TestScrollbackBelowThresholdNoEviction(t *testing.T) {
	r := newFakeRenderer()
	s := newScrollback(r, BufferConfig{MaxLines: 100, TrimThreshold: 0.8, TrimLines: 10}, zap.NewNop())

	assert.False(t, s.recordWrite(79))
	assert.Equal(t, uint32(79), s.residentLines())
	assert.Empty(t, r.evictions())
}

func TestScrollbackFloorsAtZero(t *testing.T) {
	r := newFakeRenderer()
	// trimAt is 1, so the very first recorded line evicts more lines than
	// are resident; the estimate floors at zero instead of wrapping.
	s := &scrollback{renderer: r, log: zap.NewNop(), maxLines: 100, trimLines: 5, trimAt: 1}

	assert.True(t, s.recordWrite(2))
	assert.Equal(t, uint32(0), s.residentLines())
}

func TestScrollbackEvictionFailureKeepsEstimate(t *testing.T) {
	r := newFakeRenderer()
	r.evictErr = errors.New("renderer cannot drop lines")
	s := newScrollback(r, BufferConfig{MaxLines: 100, TrimThreshold: 0.8, TrimLines: 10}, zap.NewNop())

	// The estimate is not decremented on failure so pressure stays
	// conservative.
	assert.False(t, s.recordWrite(90))
	assert.Equal(t, uint32(90), s.residentLines())
}

func TestScrollbackCeilingUnderSustainedWrites(t *testing.T) {
	r := newFakeRenderer()
	cfg := BufferConfig{MaxLines: 10000, TrimThreshold: 0.8, TrimLines: 1000}
	s := newScrollback(r, cfg, zap.NewNop())

	for i := 0; i < 100000; i++ {
		s.recordWrite(1)
		assert.LessOrEqual(t, s.residentLines(), cfg.MaxLines)
	}
}
