package flow

import (
	"fmt"
	"time"
)

// BufferConfig controls scrollback eviction.
type BufferConfig struct {
	// MaxLines is the hard ceiling on resident scrollback lines.
	MaxLines uint32
	// TrimThreshold is the occupancy fraction (0,1] at which eviction fires.
	TrimThreshold float64
	// TrimLines is how many of the oldest lines one eviction removes.
	TrimLines uint32
}

// ThrottleConfig controls flush pacing and coalescing.
type ThrottleConfig struct {
	// Debounce is the base interval between a write and its flush,
	// targeting one flush per rendered frame.
	Debounce time.Duration
	// MaxChunkSize bounds the byte size of a single renderer write.
	MaxChunkSize int
	// HighVolumeThreshold is the queue depth per frame that activates
	// throttled coalescing.
	HighVolumeThreshold int
}

// MemoryConfig controls the pressure estimator.
type MemoryConfig struct {
	MaxMemoryMB      float64
	WarningThreshold float64
}

// Config is the immutable engine configuration supplied at construction.
type Config struct {
	Buffer   BufferConfig
	Throttle ThrottleConfig
	Memory   MemoryConfig
	// Debug surfaces every internal transition through the recorder and
	// the logger.
	Debug bool
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Buffer: BufferConfig{
			MaxLines:      10000,
			TrimThreshold: 0.8,
			TrimLines:     1000,
		},
		Throttle: ThrottleConfig{
			Debounce:            16 * time.Millisecond,
			MaxChunkSize:        1000,
			HighVolumeThreshold: 100,
		},
		Memory: MemoryConfig{
			MaxMemoryMB:      100,
			WarningThreshold: 0.8,
		},
	}
}

// Validate rejects configurations under which the engine cannot uphold its
// invariants. Violations are fatal at construction; nothing is clamped.
func (c Config) Validate() error {
	if c.Buffer.MaxLines == 0 {
		return fmt.Errorf("buffer.max_lines must be positive")
	}
	if c.Buffer.TrimThreshold <= 0 || c.Buffer.TrimThreshold > 1 {
		return fmt.Errorf("buffer.trim_threshold must be in (0,1], got %v", c.Buffer.TrimThreshold)
	}
	if c.Buffer.TrimLines == 0 {
		return fmt.Errorf("buffer.trim_lines must be positive")
	}
	// Eviction must restore headroom below the trigger point, otherwise it
	// fires on every subsequent write and can overshoot to zero repeatedly.
	headroom := float64(c.Buffer.MaxLines) * (1 - c.Buffer.TrimThreshold)
	if float64(c.Buffer.TrimLines) >= headroom {
		return fmt.Errorf("buffer.trim_lines %d exceeds eviction headroom %.0f (max_lines * (1 - trim_threshold))",
			c.Buffer.TrimLines, headroom)
	}
	if c.Throttle.Debounce <= 0 {
		return fmt.Errorf("throttle.debounce must be positive")
	}
	if c.Throttle.MaxChunkSize <= 0 {
		return fmt.Errorf("throttle.max_chunk_size must be positive")
	}
	if c.Throttle.HighVolumeThreshold <= 0 {
		return fmt.Errorf("throttle.high_volume_threshold must be positive")
	}
	if c.Memory.MaxMemoryMB <= 0 {
		return fmt.Errorf("memory.max_memory_mb must be positive")
	}
	if c.Memory.WarningThreshold <= 0 || c.Memory.WarningThreshold > 1 {
		return fmt.Errorf("memory.warning_threshold must be in (0,1], got %v", c.Memory.WarningThreshold)
	}
	return nil
}
