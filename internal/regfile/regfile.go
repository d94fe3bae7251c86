package regfile

import "github.com/eigerco/warpsim/internal/isa"

// Registers is one thread's bank of general registers.
type Registers [isa.NumRegisters]uint32

// File is the register arena shared by all threads of an engine. Registers
// are addressed by thread slot, a dense index assigned at block
// initialization, so the backing table is a single slice of numSlots banks.
type File struct {
	banks     []Registers
	allocated []bool
}

func New(capacity int) *File {
	return &File{
		banks:     make([]Registers, 0, capacity),
		allocated: make([]bool, 0, capacity),
	}
}

// InitializeThread allocates a zeroed bank for slot if it has none yet.
func (f *File) InitializeThread(slot int) {
	if slot < 0 {
		return
	}
	for len(f.banks) <= slot {
		f.banks = append(f.banks, Registers{})
		f.allocated = append(f.allocated, false)
	}
	f.allocated[slot] = true
}

func (f *File) has(slot int) bool {
	return slot >= 0 && slot < len(f.banks) && f.allocated[slot]
}

// Read returns 0 for an unallocated slot or a register index out of range.
func (f *File) Read(slot int, reg isa.Reg) uint32 {
	if !f.has(slot) || !reg.Valid() {
		return 0
	}
	return f.banks[slot][reg]
}

// Write is a no-op for an unallocated slot or a register index out of range.
func (f *File) Write(slot int, reg isa.Reg, value uint32) {
	if !f.has(slot) || !reg.Valid() {
		return
	}
	f.banks[slot][reg] = value
}

// Seed overwrites a whole bank, allocating it if needed.
func (f *File) Seed(slot int, regs Registers) {
	f.InitializeThread(slot)
	if f.has(slot) {
		f.banks[slot] = regs
	}
}

// Registers returns a copy of the slot's bank, all zero when unallocated.
func (f *File) Registers(slot int) Registers {
	if !f.has(slot) {
		return Registers{}
	}
	return f.banks[slot]
}

func (f *File) ClearThread(slot int) {
	if !f.has(slot) {
		return
	}
	f.banks[slot] = Registers{}
	f.allocated[slot] = false
}

func (f *File) ClearAll() {
	f.banks = f.banks[:0]
	f.allocated = f.allocated[:0]
}

// Threads is the number of allocated banks.
func (f *File) Threads() int {
	n := 0
	for _, ok := range f.allocated {
		if ok {
			n++
		}
	}
	return n
}
