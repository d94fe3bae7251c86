package memctrl

import (
	"github.com/google/btree"
)

// CoalesceWindow is the span, in words, of one coalesced transaction.
const CoalesceWindow = 4

const queueDegree = 8

// Memory is the global memory the controller services.
type Memory interface {
	InRange(address uint32) bool
	Read(address uint32) uint32
	Write(address, value uint32) bool
}

// Request is a load or store issued by one thread.
type Request struct {
	Address  uint32
	Data     uint32
	Write    bool
	ThreadID uint32
	BlockID  uint32
}

// ID is the synthetic key under which the request's response is published.
func (r Request) ID() uint64 {
	return ResponseID(r.ThreadID, r.BlockID, r.Address)
}

// ResponseID combines thread, block and address into one key. Distinct
// triples may collide once ids grow past the field widths.
func ResponseID(threadID, blockID, address uint32) uint64 {
	return uint64(threadID)*1_000_000 + uint64(blockID)*10_000 + uint64(address)
}

type Response struct {
	Data  uint32
	Valid bool
}

type Stats struct {
	Requests     uint64 // requests serviced
	Reads        uint64
	Writes       uint64
	Transactions uint64 // coalesced groups issued to memory
	Coalesced    uint64 // requests folded into an existing group
}

// pending orders queued requests by address, then by submission order.
type pending struct {
	Request
	seq uint64
}

func (p pending) Less(than btree.Item) bool {
	o := than.(pending)
	if p.Address != o.Address {
		return p.Address < o.Address
	}
	return p.seq < o.seq
}

// Controller queues requests during a cycle and services them in one pass.
type Controller struct {
	memory    Memory
	queue     *btree.BTree
	seq       uint64
	responses map[uint64]Response
	stats     Stats
}

func New(memory Memory) *Controller {
	return &Controller{
		memory:    memory,
		queue:     btree.New(queueDegree),
		responses: make(map[uint64]Response),
	}
}

// Request enqueues req for the next ProcessRequests.
func (c *Controller) Request(req Request) {
	c.queue.ReplaceOrInsert(pending{Request: req, seq: c.seq})
	c.seq++
}

// Pending is the number of queued requests.
func (c *Controller) Pending() int {
	return c.queue.Len()
}

// ProcessRequests drains the queue in address order. Requests within
// CoalesceWindow words of the current group's first address and of the same
// direction join that group; each request still gets its own response.
// Writes commit to memory as they are serviced.
func (c *Controller) ProcessRequests() {
	c.responses = make(map[uint64]Response, c.queue.Len())

	var (
		group    uint32
		groupDir bool
		open     bool
	)
	c.queue.Ascend(func(item btree.Item) bool {
		req := item.(pending).Request
		if open && req.Write == groupDir && req.Address-group < CoalesceWindow {
			c.stats.Coalesced++
		} else {
			group, groupDir, open = req.Address, req.Write, true
			c.stats.Transactions++
		}
		c.responses[req.ID()] = c.service(req)
		return true
	})
	c.queue = btree.New(queueDegree)
}

func (c *Controller) service(req Request) Response {
	c.stats.Requests++
	if req.Write {
		c.stats.Writes++
		if !c.memory.Write(req.Address, req.Data) {
			return Response{}
		}
		return Response{Data: req.Data, Valid: true}
	}
	c.stats.Reads++
	if !c.memory.InRange(req.Address) {
		return Response{}
	}
	return Response{Data: c.memory.Read(req.Address), Valid: true}
}

// Response returns the response published for id by the last batch.
func (c *Controller) Response(id uint64) (Response, bool) {
	r, ok := c.responses[id]
	return r, ok
}

// Responses returns a copy of the last batch's responses.
func (c *Controller) Responses() map[uint64]Response {
	out := make(map[uint64]Response, len(c.responses))
	for k, v := range c.responses {
		out[k] = v
	}
	return out
}

// Read bypasses the queue.
func (c *Controller) Read(address uint32) uint32 {
	return c.memory.Read(address)
}

// Write bypasses the queue.
func (c *Controller) Write(address, value uint32) bool {
	return c.memory.Write(address, value)
}

func (c *Controller) Stats() Stats {
	return c.stats
}

// Reset drops queued requests, responses and statistics.
func (c *Controller) Reset() {
	c.queue = btree.New(queueDegree)
	c.seq = 0
	c.responses = make(map[uint64]Response)
	c.stats = Stats{}
}
