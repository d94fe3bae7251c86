package wire

import (
	"encoding/binary"
	"math"
	"math/bits"
)

// appendCompact appends x in the variable length natural format: the count
// of leading one bits in the first byte is the number of little-endian
// bytes that follow, and the rest of the first byte holds the high bits.
// Values of 2^56 and above take a 0xFF marker and eight bytes.
func appendCompact(dst []byte, x uint64) []byte {
	l := 0
	for ; l < 8; l++ {
		if x < 1<<(7*(l+1)) {
			break
		}
	}
	if l == 8 {
		dst = append(dst, math.MaxUint8)
		return binary.LittleEndian.AppendUint64(dst, x)
	}
	high := int(x >> (8 * l))
	dst = append(dst, byte(256-(1<<(8-l))+high))
	return appendFixed(dst, x, l)
}

// compactTail is the number of bytes following prefix.
func compactTail(prefix byte) int {
	return bits.LeadingZeros8(^prefix)
}

// decodeCompact decodes a prefix and its tail as produced by appendCompact.
func decodeCompact(prefix byte, tail []byte) uint64 {
	l := len(tail)
	if l == 8 {
		return binary.LittleEndian.Uint64(tail)
	}
	var x uint64
	for i, b := range tail {
		x |= uint64(b) << (8 * i)
	}
	return x | uint64(prefix&(math.MaxUint8>>l))<<(8*l)
}

func appendFixed(dst []byte, x uint64, width int) []byte {
	for i := 0; i < width; i++ {
		dst = append(dst, byte(x>>(8*i)))
	}
	return dst
}

func decodeFixed(b []byte) uint64 {
	var x uint64
	for i, v := range b {
		x |= uint64(v) << (8 * i)
	}
	return x
}
