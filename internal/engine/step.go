package engine

import (
	"math"

	"github.com/eigerco/warpsim/internal/isa"
	"github.com/eigerco/warpsim/internal/memctrl"
	"github.com/eigerco/warpsim/internal/scheduler"
)

// outcome is what executing one instruction asks the engine to do.
type outcome struct {
	pc      uint32
	halt    bool
	request *memctrl.Request
}

func (e *Engine) executeThread(w *scheduler.Warp, t *ThreadState) {
	if uint64(t.PC) >= uint64(len(e.program)) {
		t.Active = false
		return
	}

	pc := t.PC
	instr := isa.Decode(e.program[pc])
	out := e.step(t, instr)

	t.PC = out.pc
	if out.halt {
		t.Active = false
	}
	t.Registers = e.regs.Registers(t.Slot)
	if out.request != nil {
		e.ctrl.Request(*out.request)
	}
	e.instructions++

	if e.tracer != nil {
		e.tracer(TraceEvent{
			Cycle:       e.cycle,
			WarpID:      w.ID,
			ThreadID:    t.ID,
			BlockID:     t.BlockID,
			PC:          pc,
			NextPC:      out.pc,
			Instruction: instr,
			Halted:      out.halt,
		})
	}
}

// step executes one decoded instruction for thread t.
func (e *Engine) step(t *ThreadState, instr isa.Instruction) outcome {
	op := instr.Opcode
	switch {
	case op.IsALU():
		return e.arithmetic(t, op, instr.Rd, instr.Rs1, instr.Rs2)
	case op.IsBranch():
		return e.branch(t, e.taken(t, instr), instr.Imm)
	}

	switch op {
	case isa.Const:
		return e.constant(t, instr.Rd, instr.Imm)
	case isa.Cmp:
		return e.compare(t, instr.Rs1, instr.Rs2)
	case isa.Ldr:
		return e.load(t, instr.Rd, instr.Rs1, instr.Imm)
	case isa.Str:
		return e.store(t, instr.Rd, instr.Rs1, instr.Imm)
	case isa.Ret:
		return e.ret(t)
	}
	return e.nop(t)
}

// taken evaluates a branch condition against Rs1 as a signed value.
func (e *Engine) taken(t *ThreadState, instr isa.Instruction) bool {
	v := e.signed(t, instr.Rs1)
	switch instr.Opcode {
	case isa.BrZ:
		return v == 0
	case isa.BrNZ:
		return v <= 0
	case isa.BrN:
		return v < 0
	case isa.BrP:
		return v > 0
	}
	return true
}

func (e *Engine) signed(t *ThreadState, reg isa.Reg) int32 {
	return int32(e.regs.Read(t.Slot, reg))
}

// branchTarget is pc+offset. Targets below the first instruction
// saturate at 0; targets past the end deactivate the thread on its next
// fetch like any other overrun.
func branchTarget(pc uint32, offset int32) uint32 {
	target := int64(pc) + int64(offset)
	switch {
	case target < 0:
		return 0
	case target > math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(target)
}

// effectiveAddress is base register plus offset, wrapping at 32 bits.
func (e *Engine) effectiveAddress(t *ThreadState, base isa.Reg, offset int32) uint32 {
	return e.regs.Read(t.Slot, base) + uint32(offset)
}
