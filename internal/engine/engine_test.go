package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/warpsim/internal/asm"
	"github.com/eigerco/warpsim/internal/regfile"
)

func newEngine(t *testing.T, config Config, src string, blocks []BlockState, opts ...Option) *Engine {
	t.Helper()
	e, err := New(config, opts...)
	require.NoError(t, err)
	words, err := asm.Assemble(src)
	require.NoError(t, err)
	e.LoadInstructions(words)
	e.InitializeBlocks(blocks)
	return e
}

// singleThread is one block holding one active thread with the given
// initial registers.
func singleThread(regs regfile.Registers) []BlockState {
	return []BlockState{{
		ID:      0,
		Threads: []ThreadState{{ID: 0, Active: true, Registers: regs}},
	}}
}

func TestArithmeticProgram(t *testing.T) {
	e := newEngine(t, DefaultConfig(), `
		CONST R0, #5
		CONST R1, #7
		ADD R2, R0, R1
		RET`, singleThread(regfile.Registers{}))

	state := e.Run()
	require.Len(t, state.Threads, 1)
	th := state.Threads[0]
	assert.Equal(t, uint32(12), th.Registers[2])
	assert.False(t, th.Active)
	assert.Equal(t, uint32(3), th.PC, "RET leaves the PC on itself")
	assert.Equal(t, Completed, state.Halt)
	assert.Equal(t, uint64(4), state.Cycle)
	assert.Equal(t, uint64(4), e.Stats().Instructions)
}

func TestLoadMissesColdCache(t *testing.T) {
	e := newEngine(t, DefaultConfig(), "LDR R0, [R1+0]\nRET", singleThread(regfile.Registers{}))

	assert.Equal(t, uint64(0), e.Stats().Cache.Hits+e.Stats().Cache.Misses)
	state := e.Run()

	assert.Equal(t, uint32(0), state.Threads[0].Registers[0])
	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.Cache.Misses)
	assert.Equal(t, uint64(0), stats.Cache.Hits)
	assert.Equal(t, uint64(1), stats.Memory.Reads)
}

func TestStoreIsWrittenThrough(t *testing.T) {
	var regs regfile.Registers
	regs[1], regs[2] = 16, 42
	e := newEngine(t, DefaultConfig(), `
		STR [R1+0], R2
		LDR R0, [R1+0]
		RET`, singleThread(regs))

	require.True(t, e.ExecuteCycle())
	assert.Equal(t, []uint32{42}, e.MemoryWindow(16, 1))

	state := e.Run()
	assert.Equal(t, uint32(42), state.Threads[0].Registers[0])
	assert.Equal(t, uint32(42), state.Memory[16])
	assert.Equal(t, uint64(1), e.Stats().Cache.Hits)
}

func TestBranchSkipsInstruction(t *testing.T) {
	e := newEngine(t, DefaultConfig(), `
		CONST R0, #0
		BRz,#2
		CONST R1, #99
		CONST R1, #1`, singleThread(regfile.Registers{}))

	var executed []uint32
	e.tracer = func(ev TraceEvent) { executed = append(executed, ev.PC) }

	state := e.Run()
	assert.Equal(t, uint32(1), state.Threads[0].Registers[1])
	assert.Equal(t, []uint32{0, 1, 3}, executed)
	assert.False(t, state.Threads[0].Active, "falling off the program deactivates the thread")
}

func TestConditionalBranches(t *testing.T) {
	tests := []struct {
		name  string
		op    string
		value uint32
		taken bool
	}{
		{name: "brz zero", op: "BRz", value: 0, taken: true},
		{name: "brz nonzero", op: "BRz", value: 3, taken: false},
		{name: "brnz negative", op: "BRnz", value: 0xFFFFFFFF, taken: true},
		{name: "brnz zero", op: "BRnz", value: 0, taken: true},
		{name: "brnz positive", op: "BRnz", value: 1, taken: false},
		{name: "brn negative", op: "BRn", value: 0x80000000, taken: true},
		{name: "brn zero", op: "BRn", value: 0, taken: false},
		{name: "brp positive", op: "BRp", value: 0x7FFFFFFF, taken: true},
		{name: "brp negative", op: "BRp", value: 0xFFFFFFFF, taken: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var regs regfile.Registers
			regs[4] = tc.value
			e := newEngine(t, DefaultConfig(), tc.op+` R4, #2
				CONST R5, #1
				RET`, singleThread(regs))

			state := e.Run()
			if tc.taken {
				assert.Equal(t, uint32(0), state.Threads[0].Registers[5])
			} else {
				assert.Equal(t, uint32(1), state.Threads[0].Registers[5])
			}
		})
	}
}

func TestIdenticalWarpsAgree(t *testing.T) {
	blocks := UniformBlocks(1, 64)
	for i := range blocks[0].Threads {
		blocks[0].Threads[i].Registers[1] = 3
	}
	e := newEngine(t, DefaultConfig(), `
		CONST R0, #10
		MUL R2, R0, R1
		SUB R3, R2, R1
		XOR R4, R3, R0
		RET`, blocks)

	state := e.Run()
	require.Len(t, state.Threads, 64)
	assert.Len(t, e.sched.Warps(), 2)
	want := state.Threads[0].Registers
	assert.Equal(t, uint32(30), want[2])
	for _, th := range state.Threads {
		assert.Equal(t, want, th.Registers, "thread %d", th.ID)
	}
	assert.Equal(t, uint64(10), state.Cycle)
	assert.Equal(t, uint64(0), e.Stats().Scheduler.DivergedIssues)
}

func TestRunawayProgramHitsCycleBound(t *testing.T) {
	config := DefaultConfig()
	config.MaxCycles = 1000
	e := newEngine(t, config, "BR,#-1", UniformBlocks(1, 4))

	state := e.Run()
	assert.Equal(t, uint64(1000), state.Cycle)
	assert.Equal(t, MaxCyclesReached, state.Halt)
	for _, th := range state.Threads {
		assert.True(t, th.Active)
		assert.Equal(t, uint32(0), th.PC)
	}
	assert.False(t, e.ExecuteCycle())
	assert.Equal(t, uint64(1000), e.Cycle())
}

func TestRunContextCancelled(t *testing.T) {
	config := DefaultConfig()
	config.MaxCycles = 1000
	e := newEngine(t, config, "BR,#-1", singleThread(regfile.Registers{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	state, err := e.RunContext(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(1), state.Cycle)
	assert.Equal(t, Running, state.Halt)

	state, err = e.RunContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MaxCyclesReached, state.Halt)
	assert.Equal(t, uint64(1000), state.Cycle)
}

func TestLoadMemoryAfterRunDropsCachedLines(t *testing.T) {
	e := newEngine(t, DefaultConfig(), "STR [R0+0], R1\nRET", singleThread(regfile.Registers{1: 42}))
	e.Run()
	require.Equal(t, uint32(42), e.MemoryWindow(0, 1)[0])

	e.LoadMemory(0, []uint32{7})

	v, hit := e.cache.Read(0, e.mem)
	assert.False(t, hit)
	assert.Equal(t, uint32(7), v)

	// evicting the line that held the store must not bring 42 back
	conflict := uint32(e.cache.NumLines() * e.cache.LineSize())
	e.cache.Read(conflict, e.mem)
	e.cache.Flush(e.mem)
	assert.Equal(t, uint32(7), e.MemoryWindow(0, 1)[0])
}

func TestRoundRobinAcrossWarps(t *testing.T) {
	config := DefaultConfig()
	config.WarpSize = 2

	var order []int
	e := newEngine(t, config, "NOP\nRET", UniformBlocks(2, 3),
		WithTracer(func(ev TraceEvent) {
			if len(order) == 0 || order[len(order)-1] != ev.WarpID {
				order = append(order, ev.WarpID)
			}
		}))

	state := e.Run()
	// each block splits into a full warp and a one-thread warp
	assert.Equal(t, []int{0, 1, 2, 3, 0, 1, 2, 3}, order)
	assert.Equal(t, uint64(8), state.Cycle)
	assert.Equal(t, Completed, state.Halt)
}

func TestDivergenceIsCounted(t *testing.T) {
	blocks := UniformBlocks(1, 2)
	blocks[0].Threads[1].Registers[0] = 1
	e := newEngine(t, DefaultConfig(), `
		BRz R0, #2
		NOP
		NOP
		RET`, blocks)

	state := e.Run()
	assert.Positive(t, e.Stats().Scheduler.DivergedIssues)
	// lanes are not serialized: the taken thread finishes first
	for _, th := range state.Threads {
		assert.False(t, th.Active)
		assert.Equal(t, uint32(3), th.PC)
	}
}

func TestSilentDefaults(t *testing.T) {
	config := DefaultConfig()
	config.MemorySize = 64
	var regs regfile.Registers
	regs[1] = 1000
	regs[3] = 9
	e := newEngine(t, config, `
		DIV R2, R3, R0
		LDR R4, [R1+0]
		STR [R1+5], R3
		.word 0xFF000000
		RET`, singleThread(regs))
	e.LoadMemory(62, []uint32{7, 8, 9, 10})

	state := e.Run()
	th := state.Threads[0]
	assert.Equal(t, uint32(0), th.Registers[2], "division by zero")
	assert.Equal(t, uint32(0), th.Registers[4], "read past memory")
	assert.Len(t, state.Memory, 64)
	assert.Equal(t, []uint32{7, 8}, e.MemoryWindow(62, 2), "load past the end is truncated")
	assert.Equal(t, Completed, state.Halt)
	assert.Equal(t, uint64(5), e.Stats().Instructions)
}

func TestTracer(t *testing.T) {
	var events []TraceEvent
	e := newEngine(t, DefaultConfig(), "CONST R0, #1\nRET", singleThread(regfile.Registers{}),
		WithTracer(func(ev TraceEvent) { events = append(events, ev) }))
	e.Run()

	require.Len(t, events, 2)
	assert.Equal(t, "CONST R0, #1", events[0].Instruction.String())
	assert.Equal(t, uint32(1), events[0].NextPC)
	assert.False(t, events[0].Halted)
	assert.Equal(t, uint64(1), events[1].Cycle)
	assert.True(t, events[1].Halted)
	assert.Equal(t, uint32(1), events[1].NextPC)
}

func TestReset(t *testing.T) {
	src := `
		CONST R1, #8
		CONST R2, #5
		STR [R1+0], R2
		RET`
	e := newEngine(t, DefaultConfig(), src, UniformBlocks(1, 2))
	first := e.Run()

	e.Reset()
	assert.Equal(t, uint64(0), e.Cycle())
	assert.Equal(t, uint32(0), e.MemoryWindow(8, 1)[0])
	assert.Equal(t, Stats{}.Cache, e.Stats().Cache)
	assert.NotEmpty(t, e.Program())
	assert.False(t, e.ExecuteCycle(), "no blocks after reset")

	e.Reset()
	e.InitializeBlocks(UniformBlocks(1, 2))
	second := e.Run()
	assert.Equal(t, first.Cycle, second.Cycle)
	assert.Equal(t, first.Memory, second.Memory)
}

func TestDeterminism(t *testing.T) {
	src := `
		CONST R1, #1
		CONST R0, #20
	loop:	SUB R0, R0, R1
		LDR R2, [R0+100]
		ADD R2, R2, R0
		STR [R0+200], R2
		BRp R0, loop
		RET`
	memory := make([]uint32, 32)
	for i := range memory {
		memory[i] = uint32(i * i)
	}
	blocks := UniformBlocks(3, 40)
	for b := range blocks {
		for i := range blocks[b].Threads {
			blocks[b].Threads[i].Registers[7] = uint32(b*100 + i)
		}
	}

	run := func() State {
		e := newEngine(t, DefaultConfig(), src, blocks)
		e.LoadMemory(100, memory)
		return e.Run()
	}
	first, second := dump(run()), dump(run())
	if first != second {
		diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(first),
			B:        difflib.SplitLines(second),
			FromFile: "first",
			ToFile:   "second",
			Context:  2,
		})
		t.Fatalf("runs differ:\n%s", diff)
	}
	assert.Contains(t, first, "halt completed")
}

// dump renders the observable final state one fact per line.
func dump(s State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "cycle %d\nhalt %s\n", s.Cycle, s.Halt)
	for _, th := range s.Threads {
		fmt.Fprintf(&b, "thread %d/%d pc=%d active=%t regs=%v\n", th.BlockID, th.ID, th.PC, th.Active, th.Registers)
	}
	for addr, w := range s.Memory {
		if w != 0 {
			fmt.Fprintf(&b, "mem[%d]=%d\n", addr, w)
		}
	}
	return b.String()
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "no memory", mutate: func(c *Config) { c.MemorySize = 0 }},
		{name: "odd cache lines", mutate: func(c *Config) { c.CacheLines = 3 }},
		{name: "zero line size", mutate: func(c *Config) { c.LineSize = 0 }},
		{name: "negative warp", mutate: func(c *Config) { c.WarpSize = -1 }},
		{name: "no cycle bound", mutate: func(c *Config) { c.MaxCycles = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := DefaultConfig()
			tc.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
			_, err := New(c)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
