package safemath

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddInt32(t *testing.T) {
	tests := []struct {
		name     string
		a, b     int32
		want     int32
		overflow bool
	}{
		{"zero plus zero", 0, 0, 0, false},
		{"small positives", 1, 2, 3, false},
		{"positive plus negative", 10, -3, 7, false},
		{"max plus one", math.MaxInt32, 1, math.MinInt32, true},
		{"min plus minus one", math.MinInt32, -1, math.MaxInt32, true},
		{"max plus min", math.MaxInt32, math.MinInt32, -1, false},
		{"negatives at boundary", math.MinInt32 + 1, -1, math.MinInt32, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, ok := AddInt32(uint32(tc.a), uint32(tc.b))
			assert.Equal(t, tc.want, int32(v))
			assert.Equal(t, tc.overflow, !ok)
		})
	}
}

func TestSubInt32(t *testing.T) {
	tests := []struct {
		name     string
		a, b     int32
		want     int32
		overflow bool
	}{
		{"zero minus zero", 0, 0, 0, false},
		{"positive result", 5, 3, 2, false},
		{"negative result", 3, 5, -2, false},
		{"min minus one", math.MinInt32, 1, math.MaxInt32, true},
		{"max minus minus one", math.MaxInt32, -1, math.MinInt32, true},
		{"zero minus min", 0, math.MinInt32, math.MinInt32, true},
		{"minus one minus min", -1, math.MinInt32, math.MaxInt32, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, ok := SubInt32(uint32(tc.a), uint32(tc.b))
			assert.Equal(t, tc.want, int32(v))
			assert.Equal(t, tc.overflow, !ok)
		})
	}
}

// The overflow flag must agree with the sign rule for every operand pair.
func TestSignRuleAgreesWithWideArithmetic(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 20000; i++ {
		a, b := r.Uint32(), r.Uint32()

		sum, ok := AddInt32(a, b)
		wide := int64(int32(a)) + int64(int32(b))
		assert.Equal(t, wide != int64(int32(sum)), !ok)
		signA, signB, signSum := a>>31, b>>31, sum>>31
		assert.Equal(t, signA == signB && signA != signSum, !ok)

		diff, ok := SubInt32(a, b)
		wide = int64(int32(a)) - int64(int32(b))
		assert.Equal(t, wide != int64(int32(diff)), !ok)
	}
}

func TestMulInt32(t *testing.T) {
	v, ok := MulInt32(6, 7)
	assert.Equal(t, uint32(42), v)
	assert.True(t, ok)

	v, ok = MulInt32(uint32(0xFFFFFFFF), 5) // -1 * 5
	assert.Equal(t, int32(-5), int32(v))
	assert.True(t, ok)

	v, ok = MulInt32(0x10000, 0x10000)
	assert.Equal(t, uint32(0), v)
	assert.False(t, ok)
}

func TestDivInt32(t *testing.T) {
	v, ok := DivInt32(uint32(0xFFFFFFF9), 2) // -7 / 2
	assert.Equal(t, int32(-3), int32(v))
	assert.True(t, ok)

	v, ok = DivInt32(10, 0)
	assert.Equal(t, uint32(0), v)
	assert.False(t, ok)

	minInt := uint32(1 << 31)
	v, ok = DivInt32(minInt, math.MaxUint32)
	assert.Equal(t, minInt, v)
	assert.False(t, ok)
}
