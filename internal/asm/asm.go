// Package asm translates between the text form of a program and its
// encoded instruction words.
//
// One statement per line:
//
//	loop:   LDR  R0, [R1+4]     ; comment
//	        ADD  R2, R0, R2
//	        BRp  R3, loop
//	        STR  [R1], R2
//	        RET
//
// Registers are R0..R15, immediates are written #n (decimal or 0x hex),
// and a branch operand may be a label, resolved relative to the branch.
// The mnemonic may be followed by a comma ("BR,#-1"). ".word n" emits a raw
// word.
package asm

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/eigerco/warpsim/internal/isa"
)

// Error is a problem found on one source line.
type Error struct {
	Line int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

func errorf(line int, format string, args ...any) *Error {
	return &Error{Line: line, Msg: fmt.Sprintf(format, args...)}
}

type statement struct {
	line     int
	pc       uint32
	mnemonic string
	operands []string
}

// Assemble encodes src. Every faulty line is reported; the returned error
// joins one *Error per problem.
func Assemble(src string) ([]uint32, error) {
	stmts, symbols, errs := scan(src)

	words := make([]uint32, 0, len(stmts))
	for _, st := range stmts {
		w, err := encode(st, symbols)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		words = append(words, w)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return words, nil
}

// MustAssemble is Assemble for sources known to be valid.
func MustAssemble(src string) []uint32 {
	words, err := Assemble(src)
	if err != nil {
		panic(err)
	}
	return words
}

// scan is the first pass: strip comments, collect labels and split each
// statement into mnemonic and operands.
func scan(src string) ([]statement, map[string]uint32, []error) {
	var (
		stmts   []statement
		errs    []error
		symbols = make(map[string]uint32)
		pc      uint32
	)
	for i, raw := range strings.Split(src, "\n") {
		line := i + 1
		text := stripComment(raw)

		for {
			colon := strings.Index(text, ":")
			if colon < 0 {
				break
			}
			label := strings.TrimSpace(text[:colon])
			if !isIdentifier(label) {
				errs = append(errs, errorf(line, "invalid label %q", label))
				break
			}
			if _, dup := symbols[label]; dup {
				errs = append(errs, errorf(line, "label %q redefined", label))
			}
			symbols[label] = pc
			text = text[colon+1:]
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		mnemonic, rest := splitMnemonic(text)
		stmts = append(stmts, statement{
			line:     line,
			pc:       pc,
			mnemonic: mnemonic,
			operands: splitOperands(rest),
		})
		pc++
	}
	return stmts, symbols, errs
}

func stripComment(s string) string {
	if i := strings.Index(s, ";"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, "//"); i >= 0 {
		s = s[:i]
	}
	return s
}

func splitMnemonic(s string) (string, string) {
	i := strings.IndexAny(s, " \t,")
	if i < 0 {
		return s, ""
	}
	rest := strings.TrimSpace(s[i:])
	rest = strings.TrimPrefix(rest, ",")
	return s[:i], rest
}

// splitOperands splits on commas outside brackets.
func splitOperands(s string) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i, r := range s {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if last := strings.TrimSpace(s[start:]); last != "" || len(out) > 0 {
		out = append(out, last)
	}
	return out
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r == '.', 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z':
		case '0' <= r && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// encode is the second pass for one statement.
func encode(st statement, symbols map[string]uint32) (uint32, error) {
	if strings.EqualFold(st.mnemonic, ".word") {
		if len(st.operands) != 1 {
			return 0, errorf(st.line, ".word takes one value")
		}
		v, err := strconv.ParseUint(strings.TrimPrefix(st.operands[0], "#"), 0, 32)
		if err != nil {
			return 0, errorf(st.line, "invalid word %q", st.operands[0])
		}
		return uint32(v), nil
	}

	op, ok := isa.ParseOpcode(st.mnemonic)
	if !ok {
		return 0, errorf(st.line, "unknown mnemonic %q", st.mnemonic)
	}
	p := &operandParser{line: st.line, ops: st.operands}
	instr := isa.Instruction{Opcode: op}

	switch {
	case op.IsALU():
		instr.Rd = p.reg()
		instr.Rs1 = p.reg()
		instr.Rs2 = p.reg()
	case op == isa.Const:
		instr.Rd = p.reg()
		instr.Imm = p.imm()
	case op == isa.Cmp:
		instr.Rs1 = p.reg()
		instr.Rs2 = p.reg()
	case op == isa.Ldr:
		instr.Rd = p.reg()
		instr.Rs1, instr.Imm = p.mem()
	case op == isa.Str:
		instr.Rs1, instr.Imm = p.mem()
		instr.Rd = p.reg()
	case op == isa.Br:
		instr.Imm = p.target(st.pc, symbols)
	case op.IsBranch():
		if len(p.ops) == 2 {
			instr.Rs1 = p.reg()
		}
		instr.Imm = p.target(st.pc, symbols)
	}
	if p.err == nil && p.pos != len(p.ops) {
		p.fail("%s takes %d operands, got %d", op, p.pos, len(p.ops))
	}
	if p.err != nil {
		return 0, p.err
	}
	return isa.Encode(instr), nil
}

// operandParser consumes operands left to right and keeps the first error.
type operandParser struct {
	line int
	ops  []string
	pos  int
	err  *Error
}

func (p *operandParser) fail(format string, args ...any) {
	if p.err == nil {
		p.err = errorf(p.line, format, args...)
	}
}

func (p *operandParser) next() (string, bool) {
	if p.pos >= len(p.ops) {
		p.fail("missing operand %d", p.pos+1)
		return "", false
	}
	s := p.ops[p.pos]
	p.pos++
	return s, true
}

func (p *operandParser) reg() isa.Reg {
	s, ok := p.next()
	if !ok {
		return 0
	}
	r, ok := parseReg(s)
	if !ok {
		p.fail("invalid register %q", s)
	}
	return r
}

func (p *operandParser) imm() int32 {
	s, ok := p.next()
	if !ok {
		return 0
	}
	if !strings.HasPrefix(s, "#") {
		p.fail("immediate %q must start with #", s)
		return 0
	}
	v, err := parseImm16(s[1:])
	if err != nil {
		p.fail("%v", err)
	}
	return v
}

// mem parses [Rn], [Rn+imm] or [Rn-imm].
func (p *operandParser) mem() (isa.Reg, int32) {
	s, ok := p.next()
	if !ok {
		return 0, 0
	}
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		p.fail("memory operand %q must be [Rn+offset]", s)
		return 0, 0
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	regPart, offPart := inner, ""
	if i := strings.IndexAny(inner, "+-"); i >= 0 {
		regPart, offPart = strings.TrimSpace(inner[:i]), strings.TrimSpace(inner[i:])
	}
	r, ok := parseReg(regPart)
	if !ok {
		p.fail("invalid base register %q", regPart)
		return 0, 0
	}
	if offPart == "" {
		return r, 0
	}
	sign := offPart[:1]
	off, err := parseImm16(sign + strings.TrimPrefix(strings.TrimSpace(offPart[1:]), "#"))
	if err != nil {
		p.fail("%v", err)
	}
	return r, off
}

// target is a #offset or a label converted to an offset from pc.
func (p *operandParser) target(pc uint32, symbols map[string]uint32) int32 {
	s, ok := p.next()
	if !ok {
		return 0
	}
	if strings.HasPrefix(s, "#") {
		v, err := parseImm16(s[1:])
		if err != nil {
			p.fail("%v", err)
		}
		return v
	}
	dest, ok := symbols[s]
	if !ok {
		p.fail("undefined label %q", s)
		return 0
	}
	off := int64(dest) - int64(pc)
	if off < math.MinInt16 || off > math.MaxInt16 {
		p.fail("label %q is out of branch range", s)
		return 0
	}
	return int32(off)
}

func parseReg(s string) (isa.Reg, bool) {
	if len(s) < 2 || (s[0] != 'R' && s[0] != 'r') {
		return 0, false
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 0 || n >= isa.NumRegisters {
		return 0, false
	}
	return isa.Reg(n), true
}

func parseImm16(s string) (int32, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid immediate %q", s)
	}
	if v < math.MinInt16 || v > math.MaxInt16 {
		return 0, fmt.Errorf("immediate %d does not fit in 16 bits", v)
	}
	return int32(v), nil
}
