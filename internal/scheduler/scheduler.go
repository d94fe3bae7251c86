package scheduler

import (
	"github.com/eigerco/warpsim/internal/thread"
)

// DefaultWarpSize is the number of threads issued together.
const DefaultWarpSize = 32

// Warp is a slice of consecutive threads of one block. PC mirrors the first
// active thread and only serves as a divergence signal.
type Warp struct {
	ID      int
	BlockID uint32
	Threads []*thread.State
	Active  bool
	PC      uint32
}

func (w *Warp) activeThreads() int {
	n := 0
	for _, t := range w.Threads {
		if t.Active {
			n++
		}
	}
	return n
}

type Stats struct {
	Cycles         uint64
	Warps          int
	ActiveWarps    int
	ActiveThreads  int
	DivergedIssues uint64 // warps issued while their active threads disagreed on PC
}

// Scheduler picks warps round robin. Divergence is observed and counted but
// lanes are never serialized.
type Scheduler struct {
	warpSize int
	warps    []*Warp
	next     int
	cycles   uint64
	diverged uint64
}

func New(warpSize int) *Scheduler {
	if warpSize <= 0 {
		warpSize = DefaultWarpSize
	}
	return &Scheduler{warpSize: warpSize}
}

// InitializeBlocks replaces the warp list. Warps point into the given
// blocks, so the caller must keep them alive and in place.
func (s *Scheduler) InitializeBlocks(blocks []thread.Block) {
	s.warps = nil
	s.next = 0
	for b := range blocks {
		threads := blocks[b].Threads
		for start := 0; start < len(threads); start += s.warpSize {
			end := min(start+s.warpSize, len(threads))
			w := &Warp{
				ID:      len(s.warps),
				BlockID: blocks[b].ID,
				Threads: make([]*thread.State, 0, end-start),
			}
			for i := start; i < end; i++ {
				w.Threads = append(w.Threads, &threads[i])
			}
			w.Active = w.activeThreads() > 0
			s.warps = append(s.warps, w)
		}
	}
}

// NextWarp returns the next warp with an active thread after the one issued
// last, or nil once every warp is exhausted.
func (s *Scheduler) NextWarp() *Warp {
	n := len(s.warps)
	for i := 0; i < n; i++ {
		idx := (s.next + i) % n
		w := s.warps[idx]
		w.Active = w.activeThreads() > 0
		if !w.Active {
			continue
		}
		s.next = (idx + 1) % n
		for _, t := range w.Threads {
			if t.Active {
				w.PC = t.PC
				break
			}
		}
		if s.IsWarpDiverged(w) {
			s.diverged++
		}
		return w
	}
	return nil
}

// IsWarpDiverged reports whether the warp's active threads disagree on PC.
func (s *Scheduler) IsWarpDiverged(w *Warp) bool {
	var (
		pc   uint32
		seen bool
	)
	for _, t := range w.Threads {
		if !t.Active {
			continue
		}
		if !seen {
			pc, seen = t.PC, true
			continue
		}
		if t.PC != pc {
			return true
		}
	}
	return false
}

// IsComplete holds once no warp has an active thread.
func (s *Scheduler) IsComplete() bool {
	for _, w := range s.warps {
		if w.activeThreads() > 0 {
			return false
		}
	}
	return true
}

func (s *Scheduler) Tick() {
	s.cycles++
}

func (s *Scheduler) Warps() []*Warp {
	return s.warps
}

func (s *Scheduler) Stats() Stats {
	st := Stats{Cycles: s.cycles, Warps: len(s.warps), DivergedIssues: s.diverged}
	for _, w := range s.warps {
		if n := w.activeThreads(); n > 0 {
			st.ActiveWarps++
			st.ActiveThreads += n
		}
	}
	return st
}

// Reset forgets every warp and counter.
func (s *Scheduler) Reset() {
	s.warps = nil
	s.next = 0
	s.cycles = 0
	s.diverged = 0
}
