package engine

import (
	"github.com/eigerco/warpsim/internal/isa"
)

// TraceEvent describes one instruction executed by one thread.
type TraceEvent struct {
	Cycle       uint64
	WarpID      int
	ThreadID    uint32
	BlockID     uint32
	PC          uint32 // address the instruction was fetched from
	NextPC      uint32
	Instruction isa.Instruction
	Halted      bool
}

// Tracer receives every executed instruction, in issue order.
type Tracer func(TraceEvent)

type Option func(*Engine)

func WithTracer(t Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}
