package thread

import "github.com/eigerco/warpsim/internal/regfile"

// State is one SIMT thread. Registers is a snapshot of the thread's bank in
// the register file, refreshed by the engine after every instruction.
type State struct {
	ID        uint32
	BlockID   uint32
	Slot      int // index of the thread's bank in the register file
	PC        uint32
	Registers regfile.Registers
	Active    bool
}

// Block owns an ordered group of threads.
type Block struct {
	ID      uint32
	Threads []State
}

// Clone deep-copies a block list.
func Clone(blocks []Block) []Block {
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = Block{ID: b.ID, Threads: append([]State(nil), b.Threads...)}
	}
	return out
}

// Uniform builds numBlocks active blocks of threadsPerBlock threads each,
// all starting at PC 0. Thread ids are local to their block.
func Uniform(numBlocks, threadsPerBlock int) []Block {
	blocks := make([]Block, numBlocks)
	for b := range blocks {
		threads := make([]State, threadsPerBlock)
		for t := range threads {
			threads[t] = State{ID: uint32(t), BlockID: uint32(b), Active: true}
		}
		blocks[b] = Block{ID: uint32(b), Threads: threads}
	}
	return blocks
}
