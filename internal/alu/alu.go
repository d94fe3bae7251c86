package alu

import (
	"github.com/eigerco/warpsim/internal/isa"
	"github.com/eigerco/warpsim/internal/safemath"
)

// RegisterReader is the view of the register file the unit needs.
type RegisterReader interface {
	Read(slot int, reg isa.Reg) uint32
}

// Operand is the second source of an operation: either a register index
// or an immediate the caller already resolved.
type Operand struct {
	value uint32
	imm   bool
}

func RegOperand(reg isa.Reg) Operand {
	return Operand{value: uint32(reg)}
}

func ImmOperand(v uint32) Operand {
	return Operand{value: v, imm: true}
}

// Result carries the wrapped value and the flags derived from it.
type Result struct {
	Value    uint32
	Zero     bool
	Negative bool
	Overflow bool
}

type CompareResult struct {
	Equal   bool
	Less    bool
	Greater bool
}

// Unit evaluates arithmetic and logic operations for one thread at a time.
type Unit struct {
	regs RegisterReader
}

func New(regs RegisterReader) *Unit {
	return &Unit{regs: regs}
}

func (u *Unit) resolve(slot int, o Operand) uint32 {
	if o.imm {
		return o.value
	}
	return u.regs.Read(slot, isa.Reg(o.value))
}

// ExecuteALU applies op to register rs1 and the rs2 operand. Operations the
// unit does not implement produce a zero result rather than a fault.
func (u *Unit) ExecuteALU(slot int, op isa.Opcode, rs1 isa.Reg, rs2 Operand) Result {
	a := u.regs.Read(slot, rs1)
	b := u.resolve(slot, rs2)
	return Evaluate(op, a, b)
}

// Evaluate is the register-free core of ExecuteALU.
func Evaluate(op isa.Opcode, a, b uint32) Result {
	var (
		v  uint32
		ok = true
	)
	switch op {
	case isa.Add:
		v, ok = safemath.AddInt32(a, b)
	case isa.Sub:
		v, ok = safemath.SubInt32(a, b)
	case isa.Mul:
		v, ok = safemath.MulInt32(a, b)
	case isa.Div:
		v, ok = safemath.DivInt32(a, b)
		// only MinInt32 / -1 overflows, a zero divisor is a silent zero
		ok = ok || b == 0
	case isa.And:
		v = a & b
	case isa.Or:
		v = a | b
	case isa.Xor:
		v = a ^ b
	}
	return Result{
		Value:    v,
		Zero:     v == 0,
		Negative: int32(v) < 0,
		Overflow: !ok,
	}
}

// Compare orders rs1 against rs2 as signed values. Nothing is retained:
// branches test registers directly.
func (u *Unit) Compare(slot int, rs1 isa.Reg, rs2 Operand) CompareResult {
	a := int32(u.regs.Read(slot, rs1))
	b := int32(u.resolve(slot, rs2))
	return CompareResult{
		Equal:   a == b,
		Less:    a < b,
		Greater: a > b,
	}
}
