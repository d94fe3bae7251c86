package memctrl

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/warpsim/internal/memory"
)

func TestResponseID(t *testing.T) {
	assert.Equal(t, uint64(3_020_016), ResponseID(3, 2, 16))
	assert.Equal(t, ResponseID(1, 0, 5), Request{ThreadID: 1, Address: 5}.ID())
}

func TestController_ReadsAndWrites(t *testing.T) {
	mem := memory.NewGlobal(32)
	mem.Write(4, 11)
	c := New(mem)

	c.Request(Request{Address: 4, ThreadID: 0})
	c.Request(Request{Address: 8, Data: 42, Write: true, ThreadID: 1})
	require.Equal(t, 2, c.Pending())
	assert.Equal(t, uint32(0), mem.Read(8), "nothing commits before processing")

	c.ProcessRequests()
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, uint32(42), mem.Read(8))

	r, ok := c.Response(ResponseID(0, 0, 4))
	require.True(t, ok)
	assert.Equal(t, Response{Data: 11, Valid: true}, r)

	r, ok = c.Response(ResponseID(1, 0, 8))
	require.True(t, ok)
	assert.Equal(t, Response{Data: 42, Valid: true}, r)
}

func TestController_Coalescing(t *testing.T) {
	tests := []struct {
		name         string
		requests     []Request
		transactions uint64
		coalesced    uint64
	}{
		{
			name: "adjacent reads share a transaction",
			requests: []Request{
				{Address: 0, ThreadID: 0}, {Address: 1, ThreadID: 1},
				{Address: 2, ThreadID: 2}, {Address: 3, ThreadID: 3},
			},
			transactions: 1,
			coalesced:    3,
		},
		{
			name: "window is four words from the group start",
			requests: []Request{
				{Address: 0, ThreadID: 0}, {Address: 3, ThreadID: 1}, {Address: 4, ThreadID: 2},
			},
			transactions: 2,
			coalesced:    1,
		},
		{
			name: "direction change starts a group",
			requests: []Request{
				{Address: 0, ThreadID: 0}, {Address: 1, Write: true, ThreadID: 1},
			},
			transactions: 2,
		},
		{
			name: "submission order does not matter",
			requests: []Request{
				{Address: 10, ThreadID: 0}, {Address: 2, ThreadID: 1}, {Address: 11, ThreadID: 2}, {Address: 1, ThreadID: 3},
			},
			transactions: 2,
			coalesced:    2,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := New(memory.NewGlobal(64))
			for _, r := range tc.requests {
				c.Request(r)
			}
			c.ProcessRequests()

			stats := c.Stats()
			assert.Equal(t, tc.transactions, stats.Transactions)
			assert.Equal(t, tc.coalesced, stats.Coalesced)
			assert.Equal(t, uint64(len(tc.requests)), stats.Requests)
			assert.Len(t, c.Responses(), len(tc.requests))
		})
	}
}

func TestController_OutOfRange(t *testing.T) {
	mem := memory.NewGlobal(4)
	c := New(mem)
	c.Request(Request{Address: 100, Data: 1, Write: true})
	c.Request(Request{Address: 200, ThreadID: 1})
	c.ProcessRequests()

	r, ok := c.Response(ResponseID(0, 0, 100))
	require.True(t, ok)
	assert.False(t, r.Valid)
	r, ok = c.Response(ResponseID(1, 0, 200))
	require.True(t, ok)
	assert.False(t, r.Valid)
	assert.Equal(t, []uint32{0, 0, 0, 0}, mem.Snapshot())
}

func TestController_SameAddressKeepsSubmissionOrder(t *testing.T) {
	mem := memory.NewGlobal(4)
	c := New(mem)
	c.Request(Request{Address: 1, Data: 5, Write: true, ThreadID: 0})
	c.Request(Request{Address: 1, Data: 6, Write: true, ThreadID: 1})
	c.ProcessRequests()
	assert.Equal(t, uint32(6), mem.Read(1))
}

// Servicing a batch in one coalesced pass leaves memory and every response
// exactly as servicing each request on its own would.
func TestController_CoalescingIsSafe(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for round := 0; round < 50; round++ {
		batched := memory.NewGlobal(64)
		single := memory.NewGlobal(64)
		c := New(batched)

		var reqs []Request
		used := make(map[uint64]bool)
		for i := 0; len(reqs) < 32 && i < 256; i++ {
			req := Request{
				Address:  uint32(r.Intn(80)),
				Data:     r.Uint32(),
				Write:    r.Intn(2) == 0,
				ThreadID: uint32(i),
			}
			if used[req.ID()] || used[uint64(req.Address)|1<<40] {
				continue
			}
			// one request per address keeps same-cycle ordering out of the comparison
			used[req.ID()] = true
			used[uint64(req.Address)|1<<40] = true
			reqs = append(reqs, req)
		}

		for _, req := range reqs {
			c.Request(req)
		}
		c.ProcessRequests()

		for _, req := range reqs {
			solo := New(single)
			solo.Request(req)
			solo.ProcessRequests()
			want, _ := solo.Response(req.ID())
			got, ok := c.Response(req.ID())
			require.True(t, ok)
			assert.Equal(t, want, got)
		}
		assert.Equal(t, single.Snapshot(), batched.Snapshot())
	}
}

func TestController_DirectAccessAndReset(t *testing.T) {
	mem := memory.NewGlobal(8)
	c := New(mem)
	assert.True(t, c.Write(2, 9))
	assert.Equal(t, uint32(9), c.Read(2))
	assert.False(t, c.Write(8, 1))

	c.Request(Request{Address: 2})
	c.ProcessRequests()
	c.Request(Request{Address: 3})
	c.Reset()
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, Stats{}, c.Stats())
	assert.Empty(t, c.Responses())
}
