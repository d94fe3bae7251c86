package isa

import (
	"fmt"
)

// NumRegisters is the size of each thread's general register bank.
const NumRegisters = 16

// Reg names one of the general registers R0..R15.
type Reg uint8

func (r Reg) Valid() bool {
	return r < NumRegisters
}

func (r Reg) String() string {
	return fmt.Sprintf("R%d", uint8(r))
}

// Bit layout of an encoded instruction word.
const (
	opcodeShift = 24
	rdShift     = 20
	rs1Shift    = 16
	rs2Shift    = 12
	regMask     = 0xF
	immMask     = 0xFFFF
)

// Instruction is a decoded instruction word. Only the operands used by the
// opcode class are meaningful, the others are zero.
type Instruction struct {
	Opcode Opcode
	Rd     Reg
	Rs1    Reg
	Rs2    Reg
	Imm    int32
}

// Decode splits a 32 bit word into its fields. It never fails: opcode bytes
// outside the instruction set decode as NOP.
func Decode(word uint32) Instruction {
	op := Opcode(word >> opcodeShift)
	if !op.Valid() || op == Nop {
		return Instruction{Opcode: Nop}
	}

	instr := Instruction{
		Opcode: op,
		Rd:     Reg((word >> rdShift) & regMask),
		Rs1:    Reg((word >> rs1Shift) & regMask),
	}
	if op.UsesImmediate() {
		instr.Imm = SignExtend16(word & immMask)
	} else {
		instr.Rs2 = Reg((word >> rs2Shift) & regMask)
	}
	return instr
}

// Encode is the inverse of Decode. Immediates are truncated to 16 bits.
func Encode(instr Instruction) uint32 {
	word := uint32(instr.Opcode) << opcodeShift
	word |= (uint32(instr.Rd) & regMask) << rdShift
	word |= (uint32(instr.Rs1) & regMask) << rs1Shift
	if instr.Opcode.UsesImmediate() {
		word |= uint32(instr.Imm) & immMask
	} else {
		word |= (uint32(instr.Rs2) & regMask) << rs2Shift
	}
	return word
}

// SignExtend16 widens the low 16 bits of v using bit 15 as the sign.
func SignExtend16(v uint32) int32 {
	return int32(int16(uint16(v)))
}

// String renders the instruction in the assembler's syntax.
func (i Instruction) String() string {
	switch i.Opcode {
	case Nop, Ret:
		return i.Opcode.String()
	case Const:
		return fmt.Sprintf("CONST %s, #%d", i.Rd, i.Imm)
	case Add, Sub, Mul, Div, And, Or, Xor:
		return fmt.Sprintf("%s %s, %s, %s", i.Opcode, i.Rd, i.Rs1, i.Rs2)
	case Cmp:
		return fmt.Sprintf("CMP %s, %s", i.Rs1, i.Rs2)
	case Ldr:
		return fmt.Sprintf("LDR %s, [%s%+d]", i.Rd, i.Rs1, i.Imm)
	case Str:
		return fmt.Sprintf("STR [%s%+d], %s", i.Rs1, i.Imm, i.Rd)
	case Br:
		return fmt.Sprintf("BR #%d", i.Imm)
	case BrZ, BrNZ, BrN, BrP:
		return fmt.Sprintf("%s %s, #%d", i.Opcode, i.Rs1, i.Imm)
	}
	return "NOP"
}
