package asm

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/warpsim/internal/isa"
)

func TestAssemble(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []isa.Instruction
	}{
		{
			name: "arithmetic",
			src: `
				CONST R0, #5
				CONST R1, #7
				ADD   R2, R0, R1
				RET`,
			want: []isa.Instruction{
				{Opcode: isa.Const, Rd: 0, Imm: 5},
				{Opcode: isa.Const, Rd: 1, Imm: 7},
				{Opcode: isa.Add, Rd: 2, Rs1: 0, Rs2: 1},
				{Opcode: isa.Ret},
			},
		},
		{
			name: "memory operands",
			src: `
				LDR R0, [R1]
				LDR R3, [R1+4]
				STR [R2-0x10], R4`,
			want: []isa.Instruction{
				{Opcode: isa.Ldr, Rd: 0, Rs1: 1},
				{Opcode: isa.Ldr, Rd: 3, Rs1: 1, Imm: 4},
				{Opcode: isa.Str, Rd: 4, Rs1: 2, Imm: -16},
			},
		},
		{
			name: "comma after mnemonic and default condition register",
			src: `
				BRz,#2
				BR,#-1
				brp r3, #0x7fff`,
			want: []isa.Instruction{
				{Opcode: isa.BrZ, Imm: 2},
				{Opcode: isa.Br, Imm: -1},
				{Opcode: isa.BrP, Rs1: 3, Imm: 32767},
			},
		},
		{
			name: "labels resolve relative to the branch",
			src: `
			top:	CONST R0, #3
			loop:	SUB R0, R0, R1   ; R1 holds 1
					BRp R0, loop
					BR done
					NOP
			done:	RET`,
			want: []isa.Instruction{
				{Opcode: isa.Const, Rd: 0, Imm: 3},
				{Opcode: isa.Sub, Rd: 0, Rs1: 0, Rs2: 1},
				{Opcode: isa.BrP, Rs1: 0, Imm: -1},
				{Opcode: isa.Br, Imm: 2},
				{Opcode: isa.Nop},
				{Opcode: isa.Ret},
			},
		},
		{
			name: "comments and blank lines",
			src: `
				// header
				CMP R1, R2 ; advisory

				NOP`,
			want: []isa.Instruction{
				{Opcode: isa.Cmp, Rs1: 1, Rs2: 2},
				{Opcode: isa.Nop},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			words, err := Assemble(tc.src)
			require.NoError(t, err)
			require.Len(t, words, len(tc.want))
			for i, w := range words {
				assert.Equal(t, tc.want[i], isa.Decode(w), "instruction %d", i)
			}
		})
	}
}

func TestAssembleWord(t *testing.T) {
	words, err := Assemble(".word 0xFF123456\n.word 7")
	require.NoError(t, err)
	assert.Equal(t, []uint32{0xFF123456, 7}, words)
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
		msg  string
	}{
		{name: "unknown mnemonic", src: "NOP\nJMP #1", line: 2, msg: "unknown mnemonic"},
		{name: "bad register", src: "ADD R2, R0, R16", line: 1, msg: "invalid register"},
		{name: "missing operand", src: "ADD R2, R0", line: 1, msg: "missing operand"},
		{name: "extra operand", src: "CONST R0, #1, #2", line: 1, msg: "operands"},
		{name: "immediate range", src: "CONST R0, #40000", line: 1, msg: "16 bits"},
		{name: "immediate without hash", src: "CONST R0, 5", line: 1, msg: "must start with #"},
		{name: "undefined label", src: "\n\nBR nowhere", line: 3, msg: "undefined label"},
		{name: "duplicate label", src: "a: NOP\na: NOP", line: 2, msg: "redefined"},
		{name: "bad memory operand", src: "LDR R0, R1", line: 1, msg: "memory operand"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Assemble(tc.src)
			require.Error(t, err)

			var asmErr *Error
			require.True(t, errors.As(err, &asmErr))
			assert.Equal(t, tc.line, asmErr.Line)
			assert.Contains(t, asmErr.Msg, tc.msg)
		})
	}
}

func TestAssembleReportsEveryLine(t *testing.T) {
	_, err := Assemble("FOO\nNOP\nBAR R1\nADD R0")
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "line 1:")
	assert.Contains(t, msg, "line 3:")
	assert.Contains(t, msg, "line 4:")
	assert.NotContains(t, msg, "line 2:")
}

func TestMustAssemblePanics(t *testing.T) {
	assert.Panics(t, func() { MustAssemble("BOGUS") })
	assert.NotPanics(t, func() { MustAssemble("RET") })
}

func TestDisassembleRoundTrip(t *testing.T) {
	src := `
		CONST R0, #-12
		MUL R3, R1, R2
		LDR R0, [R1+0]
		STR [R1-4], R2
		BRnz R5, #-3
		CMP R1, R2
		RET`
	words := MustAssemble(src)
	again, err := Assemble(strings.Join(Disassemble(words), "\n"))
	require.NoError(t, err)
	assert.Equal(t, words, again)
}

func TestDisassembleArbitraryWords(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	words := make([]uint32, 500)
	for i := range words {
		words[i] = r.Uint32()
	}
	again, err := Assemble(strings.Join(Disassemble(words), "\n"))
	require.NoError(t, err)
	assert.Equal(t, words, again)
}

func TestListing(t *testing.T) {
	out := Listing([]uint32{0x01000005, 0x11000000})
	assert.Equal(t, "0000  01000005  CONST R0, #5\n0001  11000000  RET\n", out)
}
