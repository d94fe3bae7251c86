package engine

import (
	"github.com/eigerco/warpsim/internal/alu"
	"github.com/eigerco/warpsim/internal/isa"
	"github.com/eigerco/warpsim/internal/memctrl"
)

// nop nop
func (e *Engine) nop(t *ThreadState) outcome {
	return outcome{pc: t.PC + 1}
}

// constant const Rd = imm
func (e *Engine) constant(t *ThreadState, rd isa.Reg, imm int32) outcome {
	e.regs.Write(t.Slot, rd, uint32(imm))
	return outcome{pc: t.PC + 1}
}

// arithmetic add/sub/mul/div/and/or/xor Rd = Rs1 op Rs2
func (e *Engine) arithmetic(t *ThreadState, op isa.Opcode, rd, rs1, rs2 isa.Reg) outcome {
	result := e.unit.ExecuteALU(t.Slot, op, rs1, alu.RegOperand(rs2))
	e.regs.Write(t.Slot, rd, result.Value)
	return outcome{pc: t.PC + 1}
}

// compare cmp Rs1, Rs2. The comparison has no architectural effect.
func (e *Engine) compare(t *ThreadState, rs1, rs2 isa.Reg) outcome {
	_ = e.unit.Compare(t.Slot, rs1, alu.RegOperand(rs2))
	return outcome{pc: t.PC + 1}
}

// load ldr Rd = mem[Rs1 + imm], read through the cache
func (e *Engine) load(t *ThreadState, rd, base isa.Reg, offset int32) outcome {
	address := e.effectiveAddress(t, base, offset)
	value, _ := e.cache.Read(address, e.mem)
	e.regs.Write(t.Slot, rd, value)
	return outcome{
		pc: t.PC + 1,
		request: &memctrl.Request{
			Address:  address,
			ThreadID: t.ID,
			BlockID:  t.BlockID,
		},
	}
}

// store str mem[Rs1 + imm] = Rd, written through the cache
func (e *Engine) store(t *ThreadState, src, base isa.Reg, offset int32) outcome {
	address := e.effectiveAddress(t, base, offset)
	value := e.regs.Read(t.Slot, src)
	e.cache.Write(address, value, e.mem)
	return outcome{
		pc: t.PC + 1,
		request: &memctrl.Request{
			Address:  address,
			Data:     value,
			Write:    true,
			ThreadID: t.ID,
			BlockID:  t.BlockID,
		},
	}
}

// branch br/brz/brnz/brn/brp pc = pc + imm if taken
func (e *Engine) branch(t *ThreadState, taken bool, offset int32) outcome {
	if !taken {
		return outcome{pc: t.PC + 1}
	}
	return outcome{pc: branchTarget(t.PC, offset)}
}

// ret ret halts the thread where it stands
func (e *Engine) ret(t *ThreadState) outcome {
	return outcome{pc: t.PC, halt: true}
}
