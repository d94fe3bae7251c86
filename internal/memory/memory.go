package memory

// Global is the flat word-addressed memory shared by every thread. Accesses
// outside its bounds never fault: reads yield 0 and writes are dropped.
type Global struct {
	words []uint32
}

func NewGlobal(size int) *Global {
	return &Global{words: make([]uint32, size)}
}

func (g *Global) Size() int {
	return len(g.words)
}

// InRange reports whether address names a word of this memory.
func (g *Global) InRange(address uint32) bool {
	return uint64(address) < uint64(len(g.words))
}

func (g *Global) Read(address uint32) uint32 {
	if !g.InRange(address) {
		return 0
	}
	return g.words[address]
}

// Write stores value and reports whether the address was in range.
func (g *Global) Write(address, value uint32) bool {
	if !g.InRange(address) {
		return false
	}
	g.words[address] = value
	return true
}

// Load copies words starting at base, dropping whatever falls outside.
func (g *Global) Load(base uint32, words []uint32) {
	for i, w := range words {
		g.Write(base+uint32(i), w)
	}
}

// Snapshot returns a copy of the whole memory.
func (g *Global) Snapshot() []uint32 {
	out := make([]uint32, len(g.words))
	copy(out, g.words)
	return out
}

// Window copies length words starting at base; out-of-range words read 0.
func (g *Global) Window(base uint32, length int) []uint32 {
	out := make([]uint32, length)
	for i := range out {
		out[i] = g.Read(base + uint32(i))
	}
	return out
}

func (g *Global) Clear() {
	clear(g.words)
}
