package wire

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompact(t *testing.T) {
	tests := []struct {
		value uint64
		want  []byte
	}{
		{value: 0, want: []byte{0x00}},
		{value: 127, want: []byte{0x7F}},
		{value: 128, want: []byte{0x80, 0x80}},
		{value: 1<<14 - 1, want: []byte{0xBF, 0xFF}},
		{value: 1 << 14, want: []byte{0xC0, 0x00, 0x40}},
		{value: 1<<56 - 1, want: []byte{0xFE, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
		{value: 1 << 63, want: []byte{0xFF, 0, 0, 0, 0, 0, 0, 0, 0x80}},
	}
	for _, tc := range tests {
		got := appendCompact(nil, tc.value)
		assert.Equal(t, tc.want, got, "encode %d", tc.value)
		assert.Equal(t, tc.value, decodeCompact(got[0], got[1:]), "decode %d", tc.value)
		assert.Equal(t, len(got)-1, compactTail(got[0]))
	}
}

type segment struct {
	Base  uint32
	Words []uint32
}

type sample struct {
	Name     string
	Flag     bool
	Small    int8
	Offset   int32
	Count    int
	Words    []uint32
	Raw      []byte
	Regs     [4]uint32
	Reg      *uint8
	Missing  *uint8
	Segments []segment
	At       time.Time
	Cached   string `wire:"-"`
	internal int
}

func TestRoundTrip(t *testing.T) {
	reg := uint8(7)
	in := sample{
		Name:     "vector-add",
		Flag:     true,
		Small:    -3,
		Offset:   -40000,
		Count:    -1,
		Words:    []uint32{1, 0xFFFFFFFF},
		Raw:      []byte{0xDE, 0xAD},
		Regs:     [4]uint32{1, 2, 3, 4},
		Reg:      &reg,
		Segments: []segment{{Base: 16, Words: []uint32{42}}, {Base: 64}},
		At:       time.Unix(1700000000, 123).UTC(),
		Cached:   "dropped",
		internal: 9,
	}
	b, err := Marshal(in)
	require.NoError(t, err)

	var out sample
	require.NoError(t, Unmarshal(b, &out))

	in.Cached, in.internal = "", 0
	assert.Equal(t, in, out)
}

func TestZeroValues(t *testing.T) {
	b, err := Marshal(sample{})
	require.NoError(t, err)

	var out sample
	require.NoError(t, Unmarshal(b, &out))
	assert.Equal(t, sample{}, out)
}

func TestDecodeErrors(t *testing.T) {
	valid, err := Marshal(sample{Name: "x", Words: []uint32{1}})
	require.NoError(t, err)

	var s sample
	assert.ErrorIs(t, Unmarshal(valid[:len(valid)-3], &s), ErrShortBuffer)
	assert.ErrorIs(t, Unmarshal(append(valid, 0), &s), ErrTrailingBytes)

	var flag bool
	assert.ErrorIs(t, Unmarshal([]byte{2}, &flag), ErrInvalidBool)

	var p *uint32
	assert.ErrorIs(t, Unmarshal([]byte{9}, &p), ErrInvalidPointer)

	var words []uint32
	huge := appendCompact(nil, MaxLength+1)
	assert.ErrorIs(t, Unmarshal(huge, &words), ErrTooLarge)

	assert.ErrorIs(t, Unmarshal([]byte{0}, s), ErrUnsupportedType)
}

func TestUnsupportedTypes(t *testing.T) {
	_, err := Marshal(map[string]int{"a": 1})
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = Marshal(struct{ F float64 }{1})
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.Contains(t, err.Error(), "'F'")
}

func TestEncoderDecoder(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(uint16(0xBEEF)))
	require.NoError(t, enc.Encode("hi"))

	dec := NewDecoder(&buf)
	var n uint16
	var s string
	require.NoError(t, dec.Decode(&n))
	require.NoError(t, dec.Decode(&s))
	assert.Equal(t, uint16(0xBEEF), n)
	assert.Equal(t, "hi", s)
	assert.Equal(t, 0, buf.Len())
}

func TestMessageFraming(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer

	require.NoError(t, WriteMessage(ctx, &buf, []byte("hello")))
	assert.Equal(t, []byte{5, 0, 0, 0, 'h', 'e', 'l', 'l', 'o'}, buf.Bytes())

	got, err := ReadMessage(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	_, err = ReadMessage(ctx, bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF}))
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = ReadMessage(ctx, bytes.NewReader([]byte{3, 0, 0, 0, 'a'}))
	assert.Error(t, err)
}

func TestSendReceive(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	want := segment{Base: 3, Words: []uint32{9, 8, 7}}
	go func() {
		_ = Send(ctx, client, want)
	}()

	var got segment
	require.NoError(t, Receive(ctx, server, &got))
	assert.Equal(t, want, got)
}

func TestReadMessageCancelled(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadMessage(ctx, server)
	assert.ErrorIs(t, err, context.Canceled)
}
