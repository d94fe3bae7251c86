// Package kernel reads launch descriptions: a program, the thread grid to
// run it on, initial memory and device configuration.
//
//	name: vector-add
//	config:
//	  max_cycles: 10000
//	program: |
//	  LDR R1, [R0+0]
//	  ...
//	blocks: 2
//	threads_per_block: 64
//	id_register: 0
//	memory:
//	  - base: 0
//	    words: [1, 2, 3]
//	dump: {base: 256, length: 128}
package kernel

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/eigerco/warpsim/internal/asm"
	"github.com/eigerco/warpsim/internal/engine"
	"github.com/eigerco/warpsim/internal/isa"
)

var ErrInvalidKernel = errors.New("invalid kernel")

// Segment is a run of words written to global memory before launch.
type Segment struct {
	Base  uint32   `yaml:"base"`
	Words []uint32 `yaml:"words"`
}

// RegisterInit seeds one register of one thread.
type RegisterInit struct {
	Block  uint32 `yaml:"block"`
	Thread uint32 `yaml:"thread"`
	Reg    uint8  `yaml:"reg"`
	Value  uint32 `yaml:"value"`
}

// Window selects a range of global memory.
type Window struct {
	Base   uint32 `yaml:"base"`
	Length int    `yaml:"length"`
}

type Kernel struct {
	Name   string        `yaml:"name"`
	Config engine.Config `yaml:"config"`

	// Exactly one of Program (assembly text) and Words (encoded image).
	Program string   `yaml:"program"`
	Words   []uint32 `yaml:"words"`

	Blocks          int `yaml:"blocks"`
	ThreadsPerBlock int `yaml:"threads_per_block"`
	// IDRegister, when set, receives blockID*ThreadsPerBlock+threadID.
	IDRegister *uint8 `yaml:"id_register"`

	Registers []RegisterInit `yaml:"registers"`
	Memory    []Segment      `yaml:"memory"`
	Dump      Window         `yaml:"dump"`
}

// Parse decodes a launch file. Config fields that are absent keep their
// defaults.
func Parse(data []byte) (*Kernel, error) {
	k := &Kernel{
		Config:          engine.DefaultConfig(),
		Blocks:          1,
		ThreadsPerBlock: 1,
	}
	if err := yaml.Unmarshal(data, k); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKernel, err)
	}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	return k, nil
}

func Load(path string) (*Kernel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	k, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return k, nil
}

func (k *Kernel) Validate() error {
	switch {
	case k.Program != "" && len(k.Words) > 0:
		return fmt.Errorf("%w: both program and words given", ErrInvalidKernel)
	case k.Program == "" && len(k.Words) == 0:
		return fmt.Errorf("%w: no program", ErrInvalidKernel)
	case k.Blocks <= 0 || k.ThreadsPerBlock <= 0:
		return fmt.Errorf("%w: grid %dx%d", ErrInvalidKernel, k.Blocks, k.ThreadsPerBlock)
	case k.IDRegister != nil && *k.IDRegister >= isa.NumRegisters:
		return fmt.Errorf("%w: id register R%d", ErrInvalidKernel, *k.IDRegister)
	case k.Dump.Length < 0:
		return fmt.Errorf("%w: negative dump length", ErrInvalidKernel)
	}
	for _, r := range k.Registers {
		if r.Reg >= isa.NumRegisters || int(r.Block) >= k.Blocks || int(r.Thread) >= k.ThreadsPerBlock {
			return fmt.Errorf("%w: register init %+v outside the grid", ErrInvalidKernel, r)
		}
	}
	if err := k.Config.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKernel, err)
	}
	if k.Dump.Length > k.Config.MemorySize {
		return fmt.Errorf("%w: dump of %d words is larger than memory", ErrInvalidKernel, k.Dump.Length)
	}
	return nil
}

// Image returns the encoded program.
func (k *Kernel) Image() ([]uint32, error) {
	if len(k.Words) > 0 {
		return append([]uint32(nil), k.Words...), nil
	}
	return asm.Assemble(k.Program)
}

// BlockStates lays out the thread grid with its initial registers.
func (k *Kernel) BlockStates() []engine.BlockState {
	blocks := engine.UniformBlocks(k.Blocks, k.ThreadsPerBlock)
	for b := range blocks {
		for t := range blocks[b].Threads {
			if k.IDRegister != nil {
				blocks[b].Threads[t].Registers[*k.IDRegister] = uint32(b*k.ThreadsPerBlock + t)
			}
		}
	}
	for _, r := range k.Registers {
		blocks[r.Block].Threads[r.Thread].Registers[r.Reg] = r.Value
	}
	return blocks
}

// Engine builds an engine with the program, memory and blocks loaded and
// ready to run.
func (k *Kernel) Engine(opts ...engine.Option) (*engine.Engine, error) {
	words, err := k.Image()
	if err != nil {
		return nil, err
	}
	e, err := engine.New(k.Config, opts...)
	if err != nil {
		return nil, err
	}
	e.LoadInstructions(words)
	for _, seg := range k.Memory {
		e.LoadMemory(seg.Base, seg.Words)
	}
	e.InitializeBlocks(k.BlockStates())
	return e, nil
}
