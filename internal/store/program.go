package store

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/eigerco/warpsim/pkg/db"
)

var (
	ErrProgramNotFound = errors.New("program not found")
	ErrInvalidHash     = errors.New("invalid program hash")
	ErrCorruptProgram  = errors.New("stored program image is not word aligned")
)

// ProgramHash identifies a program image by content.
type ProgramHash [32]byte

// HashProgram is the blake2b-256 digest of the little-endian image bytes.
func HashProgram(words []uint32) ProgramHash {
	return blake2b.Sum256(imageBytes(words))
}

func (h ProgramHash) String() string {
	return hex.EncodeToString(h[:])
}

func (h ProgramHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *ProgramHash) UnmarshalText(text []byte) error {
	parsed, err := ParseProgramHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseProgramHash reads the hex form produced by String.
func ParseProgramHash(s string) (ProgramHash, error) {
	var h ProgramHash
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(h) {
		return h, fmt.Errorf("%w: %q", ErrInvalidHash, s)
	}
	copy(h[:], b)
	return h, nil
}

func imageBytes(words []uint32) []byte {
	b := make([]byte, 0, 4*len(words))
	for _, w := range words {
		b = binary.LittleEndian.AppendUint32(b, w)
	}
	return b
}

// Programs is a content addressed library of program images.
type Programs struct {
	db db.KVStore
}

func NewPrograms(kv db.KVStore) *Programs {
	return &Programs{db: kv}
}

// Put stores an image and returns its hash. Storing the same image twice
// is a no-op.
func (p *Programs) Put(words []uint32) (ProgramHash, error) {
	h := HashProgram(words)
	if err := p.db.Put(makeKey(prefixProgram, h[:]), imageBytes(words)); err != nil {
		return h, translate(err, nil)
	}
	return h, nil
}

func (p *Programs) Get(h ProgramHash) ([]uint32, error) {
	b, err := p.db.Get(makeKey(prefixProgram, h[:]))
	if err != nil {
		return nil, translate(err, ErrProgramNotFound)
	}
	if len(b)%4 != 0 {
		return nil, ErrCorruptProgram
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[4*i:])
	}
	return words, nil
}

func (p *Programs) Has(h ProgramHash) (bool, error) {
	ok, err := p.db.Has(makeKey(prefixProgram, h[:]))
	return ok, translate(err, nil)
}
