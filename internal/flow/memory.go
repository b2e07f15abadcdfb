package flow

import "time"

// Pressure classifies the estimated memory state of buffered plus rendered
// content.
type Pressure int

const (
	PressureNormal Pressure = iota
	PressureWarning
)

// String returns the string representation of the pressure state.
func (p Pressure) String() string {
	switch p {
	case PressureNormal:
		return "normal"
	case PressureWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// memEstimateBytesPerLine is the calibrated per-line cost used by the
// estimator: roughly an 80-column row of multi-byte cells plus renderer
// bookkeeping. True accounting would require host-runtime instrumentation
// the renderer does not expose; this is an estimator by design.
const memEstimateBytesPerLine = 256

// memoryMonitor estimates resident memory from the scrollback line count
// and classifies it against the configured warning threshold. Like the
// scrollback manager it is only touched by the flush path.
type memoryMonitor struct {
	maxMB  float64
	warnAt float64 // maxMB * warningThreshold

	estimatedMB float64
	pressure    Pressure
	lastGC      time.Time
}

func newMemoryMonitor(cfg MemoryConfig) *memoryMonitor {
	return &memoryMonitor{
		maxMB:  cfg.MaxMemoryMB,
		warnAt: cfg.MaxMemoryMB * cfg.WarningThreshold,
	}
}

// sample recomputes the estimate from residentLines and returns the current
// pressure. When the sample coincides with a scrollback eviction the gc
// timestamp is refreshed, as a proxy for memory having been reclaimed.
func (m *memoryMonitor) sample(residentLines uint32, evicted bool) Pressure {
	m.estimatedMB = float64(residentLines) * memEstimateBytesPerLine / (1024 * 1024)

	if m.estimatedMB >= m.warnAt {
		m.pressure = PressureWarning
	} else {
		m.pressure = PressureNormal
	}

	if evicted {
		m.lastGC = time.Now()
	}
	return m.pressure
}
