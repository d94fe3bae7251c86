package isa

import "strings"

type Opcode byte

// No-argument instructions.
const (
	Nop Opcode = 0x00 // nop
	Ret Opcode = 0x11 // ret
)

// Instructions with one destination register and one immediate.
const (
	Const Opcode = 0x01 // const
)

// Instructions with three registers.
const (
	Add Opcode = 0x02 // add
	Sub Opcode = 0x03 // sub
	Mul Opcode = 0x04 // mul
	Div Opcode = 0x05 // div
	And Opcode = 0x06 // and
	Or  Opcode = 0x07 // or
	Xor Opcode = 0x08 // xor
	Cmp Opcode = 0x10 // cmp
)

// Memory instructions: base register, register operand and one offset immediate.
const (
	Ldr Opcode = 0x09 // ldr
	Str Opcode = 0x0A // str
)

// Branch instructions: one tested register and one offset immediate.
const (
	Br   Opcode = 0x0B // br
	BrZ  Opcode = 0x0C // brz
	BrNZ Opcode = 0x0D // brnz
	BrN  Opcode = 0x0E // brn
	BrP  Opcode = 0x0F // brp
)

var opcodeNames = map[Opcode]string{
	Nop:   "NOP",
	Const: "CONST",
	Add:   "ADD",
	Sub:   "SUB",
	Mul:   "MUL",
	Div:   "DIV",
	And:   "AND",
	Or:    "OR",
	Xor:   "XOR",
	Ldr:   "LDR",
	Str:   "STR",
	Br:    "BR",
	BrZ:   "BRz",
	BrNZ:  "BRnz",
	BrN:   "BRn",
	BrP:   "BRp",
	Cmp:   "CMP",
	Ret:   "RET",
}

// Valid reports whether the opcode byte names an instruction of the set.
func (o Opcode) Valid() bool {
	_, ok := opcodeNames[o]
	return ok
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return "NOP"
}

// ParseOpcode looks an opcode up by mnemonic, case-insensitively.
func ParseOpcode(mnemonic string) (Opcode, bool) {
	for op, name := range opcodeNames {
		if strings.EqualFold(name, mnemonic) {
			return op, true
		}
	}
	return Nop, false
}

// IsBranch reports whether the instruction may redirect the program counter.
func (o Opcode) IsBranch() bool {
	switch o {
	case Br, BrZ, BrNZ, BrN, BrP:
		return true
	}
	return false
}

// UsesImmediate reports whether the low 16 bits of the encoded word hold
// an immediate rather than a second source register.
func (o Opcode) UsesImmediate() bool {
	switch o {
	case Const, Ldr, Str, Br, BrZ, BrNZ, BrN, BrP:
		return true
	}
	return false
}

// IsALU reports whether the instruction is evaluated by the execution unit.
func (o Opcode) IsALU() bool {
	switch o {
	case Add, Sub, Mul, Div, And, Or, Xor:
		return true
	}
	return false
}
