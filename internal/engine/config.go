package engine

import (
	"errors"
	"fmt"

	"github.com/eigerco/warpsim/internal/scheduler"
)

var ErrInvalidConfig = errors.New("invalid engine configuration")

// Config sizes the simulated device.
type Config struct {
	MemorySize int    `yaml:"memory_size"` // global memory, in words
	CacheLines int    `yaml:"cache_lines"` // power of two
	LineSize   int    `yaml:"line_size"`   // words per cache line, power of two
	WarpSize   int    `yaml:"warp_size"`
	MaxCycles  uint64 `yaml:"max_cycles"` // bound on runaway programs
}

func DefaultConfig() Config {
	return Config{
		MemorySize: 1 << 16,
		CacheLines: 256,
		LineSize:   4,
		WarpSize:   scheduler.DefaultWarpSize,
		MaxCycles:  1_000_000,
	}
}

func (c Config) Validate() error {
	switch {
	case c.MemorySize <= 0:
		return fmt.Errorf("%w: memory size %d", ErrInvalidConfig, c.MemorySize)
	case !isPowerOfTwo(c.CacheLines):
		return fmt.Errorf("%w: cache lines %d is not a power of two", ErrInvalidConfig, c.CacheLines)
	case !isPowerOfTwo(c.LineSize):
		return fmt.Errorf("%w: line size %d is not a power of two", ErrInvalidConfig, c.LineSize)
	case c.WarpSize <= 0:
		return fmt.Errorf("%w: warp size %d", ErrInvalidConfig, c.WarpSize)
	case c.MaxCycles == 0:
		return fmt.Errorf("%w: max cycles must be positive", ErrInvalidConfig)
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
