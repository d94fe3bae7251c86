package cache

import (
	"errors"
	"fmt"
	"math/bits"
)

var ErrInvalidGeometry = errors.New("cache geometry must use powers of two")

// Backing is the memory a cache sits in front of.
type Backing interface {
	InRange(address uint32) bool
	Read(address uint32) uint32
	Write(address, value uint32) bool
}

// Line is one slot of the direct-mapped cache.
type Line struct {
	Tag   uint32
	Data  []uint32
	Valid bool
	Dirty bool
}

type Stats struct {
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// Cache is a direct-mapped, write-allocate cache. Writes go through to
// memory and also mark the line dirty, so an eviction write-back rewrites
// values memory already holds.
type Cache struct {
	lines     []Line
	lineSize  uint32
	offsetLen uint
	indexLen  uint
	hits      uint64
	misses    uint64
}

// New builds a cache of numLines lines holding lineSize words each. Lines
// are allocated lazily on first use.
func New(numLines, lineSize int) (*Cache, error) {
	if !isPowerOfTwo(numLines) || !isPowerOfTwo(lineSize) {
		return nil, fmt.Errorf("%w: %d lines of %d words", ErrInvalidGeometry, numLines, lineSize)
	}
	return &Cache{
		lines:     make([]Line, numLines),
		lineSize:  uint32(lineSize),
		offsetLen: uint(bits.TrailingZeros(uint(lineSize))),
		indexLen:  uint(bits.TrailingZeros(uint(numLines))),
	}, nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func (c *Cache) index(address uint32) uint32 {
	return (address >> c.offsetLen) & (uint32(len(c.lines)) - 1)
}

func (c *Cache) tag(address uint32) uint32 {
	return address >> (c.offsetLen + c.indexLen)
}

func (c *Cache) offset(address uint32) uint32 {
	return address & (c.lineSize - 1)
}

// base is the first address held by a line with the given tag and index.
func (c *Cache) base(tag, index uint32) uint32 {
	return tag<<(c.offsetLen+c.indexLen) | index<<c.offsetLen
}

// lookup returns the line that holds address, filling it on a miss.
func (c *Cache) lookup(address uint32, mem Backing) (*Line, bool) {
	index := c.index(address)
	tag := c.tag(address)
	line := &c.lines[index]
	if line.Valid && line.Tag == tag {
		c.hits++
		return line, true
	}
	c.misses++

	if line.Valid && line.Dirty {
		c.writeBack(line, index, mem)
	}
	if line.Data == nil {
		line.Data = make([]uint32, c.lineSize)
	}
	start := c.base(tag, index)
	for i := range line.Data {
		line.Data[i] = mem.Read(start + uint32(i))
	}
	line.Tag = tag
	line.Valid = true
	line.Dirty = false
	return line, false
}

func (c *Cache) writeBack(line *Line, index uint32, mem Backing) {
	start := c.base(line.Tag, index)
	for i, w := range line.Data {
		mem.Write(start+uint32(i), w)
	}
	line.Dirty = false
}

// Read returns the word at address and whether it was a hit. Addresses
// outside memory bypass the cache, read 0 and count as a miss.
func (c *Cache) Read(address uint32, mem Backing) (uint32, bool) {
	if !mem.InRange(address) {
		c.misses++
		return 0, false
	}
	line, hit := c.lookup(address, mem)
	return line.Data[c.offset(address)], hit
}

// Write stores data in the line and in memory and reports whether it hit.
// Addresses outside memory are dropped.
func (c *Cache) Write(address, data uint32, mem Backing) bool {
	if !mem.InRange(address) {
		return false
	}
	line, hit := c.lookup(address, mem)
	line.Data[c.offset(address)] = data
	line.Dirty = true
	mem.Write(address, data)
	return hit
}

// Flush writes every dirty line back to memory.
func (c *Cache) Flush(mem Backing) {
	for i := range c.lines {
		line := &c.lines[i]
		if line.Valid && line.Dirty {
			c.writeBack(line, uint32(i), mem)
		}
	}
}

// Invalidate drops every line without writing anything back.
func (c *Cache) Invalidate() {
	for i := range c.lines {
		c.lines[i].Valid = false
		c.lines[i].Dirty = false
	}
}

// Line returns a copy of the slot at index.
func (c *Cache) Line(index int) Line {
	line := c.lines[index]
	line.Data = append([]uint32(nil), line.Data...)
	return line
}

func (c *Cache) NumLines() int {
	return len(c.lines)
}

func (c *Cache) LineSize() int {
	return int(c.lineSize)
}

func (c *Cache) Stats() Stats {
	s := Stats{Hits: c.hits, Misses: c.misses}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

func (c *Cache) ResetStats() {
	c.hits = 0
	c.misses = 0
}
