package asm

import (
	"fmt"
	"strings"

	"github.com/eigerco/warpsim/internal/isa"
)

// DisassembleWord renders one word. Words whose opcode byte is outside the
// instruction set, or whose unused bits are set, come out as ".word" so
// the result assembles back to the same bits.
func DisassembleWord(word uint32) string {
	instr := canonical(isa.Decode(word))
	if isa.Encode(instr) != word {
		return fmt.Sprintf(".word 0x%08X", word)
	}
	return instr.String()
}

// canonical clears the fields String does not print.
func canonical(i isa.Instruction) isa.Instruction {
	switch i.Opcode {
	case isa.Nop, isa.Ret:
		return isa.Instruction{Opcode: i.Opcode}
	case isa.Const:
		i.Rs1 = 0
	case isa.Cmp:
		i.Rd = 0
	case isa.Br:
		i.Rd, i.Rs1 = 0, 0
	case isa.BrZ, isa.BrNZ, isa.BrN, isa.BrP:
		i.Rd = 0
	}
	return i
}

// Disassemble renders a program one instruction per element.
func Disassemble(words []uint32) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = DisassembleWord(w)
	}
	return out
}

// Listing renders a program with addresses and raw words, the way the dis
// subcommand prints it.
func Listing(words []uint32) string {
	var b strings.Builder
	for i, w := range words {
		fmt.Fprintf(&b, "%04d  %08X  %s\n", i, w, DisassembleWord(w))
	}
	return b.String()
}
