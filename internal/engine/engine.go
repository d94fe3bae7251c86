package engine

import (
	"context"

	"github.com/eigerco/warpsim/internal/alu"
	"github.com/eigerco/warpsim/internal/cache"
	"github.com/eigerco/warpsim/internal/memctrl"
	"github.com/eigerco/warpsim/internal/memory"
	"github.com/eigerco/warpsim/internal/regfile"
	"github.com/eigerco/warpsim/internal/scheduler"
	"github.com/eigerco/warpsim/internal/thread"
	"github.com/eigerco/warpsim/pkg/log"
)

type (
	ThreadState = thread.State
	BlockState  = thread.Block
)

// UniformBlocks builds numBlocks blocks of threadsPerBlock active threads.
func UniformBlocks(numBlocks, threadsPerBlock int) []BlockState {
	return thread.Uniform(numBlocks, threadsPerBlock)
}

// HaltReason tells why ExecuteCycle stopped making progress.
type HaltReason uint8

const (
	Running HaltReason = iota
	Completed        // every thread is inactive
	MaxCyclesReached // the cycle bound was hit first
)

func (h HaltReason) String() string {
	switch h {
	case Completed:
		return "completed"
	case MaxCyclesReached:
		return "max cycles reached"
	}
	return "running"
}

// State is a snapshot of the device after some number of cycles.
type State struct {
	Memory  []uint32
	Threads []ThreadState
	Blocks  []BlockState
	Cycle   uint64
	Halt    HaltReason
}

type Stats struct {
	Cycle        uint64
	Instructions uint64 // thread instructions executed
	Halt         HaltReason
	Scheduler    scheduler.Stats
	Cache        cache.Stats
	Memory       memctrl.Stats
}

// Engine owns every component of the simulated device and advances them
// one cycle at a time. It is not safe for concurrent use.
type Engine struct {
	config  Config
	program []uint32

	mem   *memory.Global
	regs  *regfile.File
	unit  *alu.Unit
	cache *cache.Cache
	ctrl  *memctrl.Controller
	sched *scheduler.Scheduler

	blocks       []BlockState
	cycle        uint64
	instructions uint64
	halt         HaltReason
	tracer       Tracer
}

func New(config Config, opts ...Option) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c, err := cache.New(config.CacheLines, config.LineSize)
	if err != nil {
		return nil, err
	}
	mem := memory.NewGlobal(config.MemorySize)
	regs := regfile.New(0)
	e := &Engine{
		config: config,
		mem:    mem,
		regs:   regs,
		unit:   alu.New(regs),
		cache:  c,
		ctrl:   memctrl.New(mem),
		sched:  scheduler.New(config.WarpSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Config() Config {
	return e.config
}

// LoadInstructions replaces instruction memory.
func (e *Engine) LoadInstructions(words []uint32) {
	e.program = append([]uint32(nil), words...)
}

// Program returns a copy of instruction memory.
func (e *Engine) Program() []uint32 {
	return append([]uint32(nil), e.program...)
}

// LoadMemory writes global memory contents starting at base, through the
// memory controller's direct path, and drops every cached line. Words past
// the end of memory are dropped.
func (e *Engine) LoadMemory(base uint32, words []uint32) {
	for i, w := range words {
		e.ctrl.Write(base+uint32(i), w)
	}
	e.cache.Invalidate()
}

// InitializeBlocks registers the thread blocks to run, replacing any
// previous ones. Each thread gets a register bank seeded from its
// Registers field and the threads are grouped into warps.
func (e *Engine) InitializeBlocks(blocks []BlockState) {
	e.blocks = thread.Clone(blocks)
	e.regs.ClearAll()
	slot := 0
	for b := range e.blocks {
		for t := range e.blocks[b].Threads {
			th := &e.blocks[b].Threads[t]
			th.Slot = slot
			th.BlockID = e.blocks[b].ID
			e.regs.Seed(slot, th.Registers)
			slot++
		}
	}
	e.sched.InitializeBlocks(e.blocks)
	e.halt = Running
	log.Sim.Debug().Int("blocks", len(e.blocks)).Int("threads", slot).
		Int("warps", len(e.sched.Warps())).Msg("blocks initialized")
}

// ExecuteCycle issues one warp and services the memory traffic it
// generated. It returns false without doing anything once the cycle bound
// is reached or no thread is left to run.
func (e *Engine) ExecuteCycle() bool {
	if e.cycle >= e.config.MaxCycles {
		e.stop(MaxCyclesReached)
		return false
	}
	if e.sched.IsComplete() {
		e.stop(Completed)
		return false
	}
	w := e.sched.NextWarp()
	if w == nil {
		e.stop(Completed)
		return false
	}

	for _, t := range w.Threads {
		if t.Active {
			e.executeThread(w, t)
		}
	}
	e.ctrl.ProcessRequests()

	e.cycle++
	e.sched.Tick()
	return true
}

func (e *Engine) stop(reason HaltReason) {
	if e.halt == reason {
		return
	}
	e.halt = reason
	log.Sim.Debug().Uint64("cycle", e.cycle).Uint64("instructions", e.instructions).
		Stringer("reason", reason).Msg("execution halted")
}

// Run executes cycles until the engine halts and returns the final state.
func (e *Engine) Run() State {
	for e.ExecuteCycle() {
	}
	return e.State()
}

// RunContext is Run for callers that must be able to abandon a long
// execution. The context is polled every few thousand cycles.
func (e *Engine) RunContext(ctx context.Context) (State, error) {
	for n := 0; e.ExecuteCycle(); n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return e.State(), err
			}
		}
	}
	return e.State(), nil
}

func (e *Engine) State() State {
	blocks := thread.Clone(e.blocks)
	var threads []ThreadState
	for _, b := range blocks {
		threads = append(threads, b.Threads...)
	}
	return State{
		Memory:  e.mem.Snapshot(),
		Threads: threads,
		Blocks:  blocks,
		Cycle:   e.cycle,
		Halt:    e.halt,
	}
}

// Memory returns a copy of global memory.
func (e *Engine) Memory() []uint32 {
	return e.mem.Snapshot()
}

// MemoryWindow returns length words of global memory starting at base.
func (e *Engine) MemoryWindow(base uint32, length int) []uint32 {
	return e.mem.Window(base, length)
}

func (e *Engine) Cycle() uint64 {
	return e.cycle
}

func (e *Engine) Stats() Stats {
	return Stats{
		Cycle:        e.cycle,
		Instructions: e.instructions,
		Halt:         e.halt,
		Scheduler:    e.sched.Stats(),
		Cache:        e.cache.Stats(),
		Memory:       e.ctrl.Stats(),
	}
}

// Reset returns the device to its power-on state: cycle counter, registers,
// memory, cache, memory controller and scheduler are cleared and the blocks
// are dropped. The loaded program is kept.
func (e *Engine) Reset() {
	e.cycle = 0
	e.instructions = 0
	e.halt = Running
	e.blocks = nil
	e.regs.ClearAll()
	e.mem.Clear()
	e.cache.Invalidate()
	e.cache.ResetStats()
	e.ctrl.Reset()
	e.sched.Reset()
}
