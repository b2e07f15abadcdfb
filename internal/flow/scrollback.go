package flow

import (
	"go.uber.org/zap"
)

// scrollback tracks the renderer's resident line count and evicts the
// oldest lines once occupancy crosses the high-water mark. Eviction is
// batched rather than per-line: per-line trimming costs on every write and
// causes visible jank, while a batched trim amortizes the cost and still
// bounds worst-case residency to MaxLines.
//
// Only the dispatcher's flush path touches the scrollback manager, so it
// needs no locking of its own.
type scrollback struct {
	renderer Renderer
	log      *zap.Logger

	maxLines  uint32
	trimLines uint32
	trimAt    uint32 // floor(maxLines * trimThreshold)

	resident uint32
}

func newScrollback(renderer Renderer, cfg BufferConfig, log *zap.Logger) *scrollback {
	return &scrollback{
		renderer:  renderer,
		log:       log,
		maxLines:  cfg.MaxLines,
		trimLines: cfg.TrimLines,
		trimAt:    uint32(float64(cfg.MaxLines) * cfg.TrimThreshold),
	}
}

// recordWrite accounts for delta newly rendered lines and runs eviction if
// the high-water mark is reached. Returns true when an eviction completed.
// On eviction failure the resident estimate is left undecremented so memory
// pressure stays conservative.
func (s *scrollback) recordWrite(delta uint32) bool {
	s.resident += delta
	if s.resident < s.trimAt {
		return false
	}

	if err := s.renderer.EvictOldest(s.trimLines); err != nil {
		s.log.Warn("scrollback eviction failed",
			zap.Uint32("trim_lines", s.trimLines),
			zap.Uint32("resident_lines", s.resident),
			zap.Error(err),
		)
		return false
	}

	if s.resident > s.trimLines {
		s.resident -= s.trimLines
	} else {
		s.resident = 0
	}
	return true
}

// residentLines returns the current resident line estimate.
func (s *scrollback) residentLines() uint32 {
	return s.resident
}
