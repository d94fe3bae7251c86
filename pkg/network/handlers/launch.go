// Package handlers implements the launch protocol spoken over transport
// streams.
//
// A client opens a bidirectional stream per launch:
//
//	--> LaunchRequest
//	--> FIN
//	<-- LaunchResult
//	<-- FIN
//
// Both messages are wire-encoded and length-prefixed.
package handlers

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"

	"github.com/quic-go/quic-go"

	"github.com/eigerco/warpsim/internal/engine"
	"github.com/eigerco/warpsim/internal/kernel"
	"github.com/eigerco/warpsim/internal/regfile"
	"github.com/eigerco/warpsim/internal/store"
	"github.com/eigerco/warpsim/pkg/log"
	"github.com/eigerco/warpsim/pkg/wire"
)

// Limits on what a remote client may ask the server to simulate.
const (
	MaxThreads     = 1 << 16
	MaxMemoryWords = 1 << 24
)

var (
	ErrLaunchRejected = errors.New("launch rejected")
	ErrLaunchFailed   = errors.New("launch failed")
)

type LaunchRequest struct {
	Kernel kernel.Kernel
	// Threads asks for every thread's final state in the result.
	Threads bool
}

type ThreadResult struct {
	Block     uint32
	Thread    uint32
	PC        uint32
	Active    bool
	Registers regfile.Registers
}

type LaunchResult struct {
	Report  store.Report
	Memory  []uint32 // the kernel's dump window
	Threads []ThreadResult
	// Error is set instead of everything else when the server refused or
	// could not run the kernel.
	Error string
}

// LaunchHandler runs kernels received from peers and records every run.
// With a positive retain only that many of the newest reports are kept.
type LaunchHandler struct {
	programs *store.Programs
	runs     *store.Runs
	retain   int
}

func NewLaunchHandler(programs *store.Programs, runs *store.Runs, retain int) *LaunchHandler {
	return &LaunchHandler{
		programs: programs,
		runs:     runs,
		retain:   retain,
	}
}

// HandleStream reads one launch request, runs it and answers with the
// result. Failures of the kernel itself are reported to the client in the
// result; only stream failures are returned.
func (h *LaunchHandler) HandleStream(ctx context.Context, stream quic.Stream, peer ed25519.PublicKey) error {
	var req LaunchRequest
	if err := wire.Receive(ctx, stream, &req); err != nil {
		return fmt.Errorf("failed to read launch request: %w", err)
	}

	res, err := h.Launch(ctx, req)
	if err != nil {
		log.Network.Warn().Err(err).Str("kernel", req.Kernel.Name).Hex("peer", peer[:8]).Msg("launch failed")
		res = LaunchResult{Error: err.Error()}
	} else {
		log.Network.Info().Str("kernel", req.Kernel.Name).Str("run", string(res.Report.ID)).
			Uint64("cycles", res.Report.Cycles).Hex("peer", peer[:8]).Msg("launch served")
	}

	if err := wire.Send(ctx, stream, res); err != nil {
		return fmt.Errorf("failed to write launch result: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}
	return nil
}

// Launch runs the requested kernel to completion and stores its program
// and report.
func (h *LaunchHandler) Launch(ctx context.Context, req LaunchRequest) (LaunchResult, error) {
	k := &req.Kernel
	if err := k.Validate(); err != nil {
		return LaunchResult{}, fmt.Errorf("%w: %w", ErrLaunchRejected, err)
	}
	if err := checkLimits(k); err != nil {
		return LaunchResult{}, fmt.Errorf("%w: %w", ErrLaunchRejected, err)
	}
	threads := k.Blocks * k.ThreadsPerBlock

	e, err := k.Engine()
	if err != nil {
		return LaunchResult{}, fmt.Errorf("%w: %w", ErrLaunchRejected, err)
	}
	state, err := e.RunContext(ctx)
	if err != nil {
		return LaunchResult{}, fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}

	hash, err := h.programs.Put(e.Program())
	if err != nil {
		return LaunchResult{}, fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}
	report := store.NewReport(k.Name, hash, threads, e.Stats())
	if report.ID, err = h.runs.Put(report); err != nil {
		return LaunchResult{}, fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}
	if stored, err := h.runs.Get(report.ID); err == nil {
		report = stored
	}
	if h.retain > 0 {
		if _, err := h.runs.Prune(h.retain); err != nil {
			log.Network.Warn().Err(err).Msg("prune run reports")
		}
	}

	res := LaunchResult{
		Report: report,
		Memory: e.MemoryWindow(k.Dump.Base, k.Dump.Length),
	}
	if req.Threads {
		res.Threads = threadResults(state)
	}
	return res, nil
}

// checkLimits bounds every size a kernel turns into an allocation.
func checkLimits(k *kernel.Kernel) error {
	c := k.Config
	switch {
	case k.Blocks > MaxThreads || k.ThreadsPerBlock > MaxThreads || k.Blocks*k.ThreadsPerBlock > MaxThreads:
		return fmt.Errorf("%d blocks of %d threads exceed the limit of %d", k.Blocks, k.ThreadsPerBlock, MaxThreads)
	case c.WarpSize > MaxThreads:
		return fmt.Errorf("warp size %d exceeds the limit of %d", c.WarpSize, MaxThreads)
	case c.MemorySize > MaxMemoryWords:
		return fmt.Errorf("memory of %d words exceeds the limit of %d", c.MemorySize, MaxMemoryWords)
	case c.LineSize > MaxMemoryWords || c.CacheLines > MaxMemoryWords/c.LineSize:
		return fmt.Errorf("cache of %d lines of %d words exceeds the limit of %d", c.CacheLines, c.LineSize, MaxMemoryWords)
	case k.Dump.Length > MaxMemoryWords:
		return fmt.Errorf("dump of %d words exceeds the limit of %d", k.Dump.Length, MaxMemoryWords)
	}
	return nil
}

func threadResults(state engine.State) []ThreadResult {
	out := make([]ThreadResult, 0, len(state.Threads))
	for _, t := range state.Threads {
		out = append(out, ThreadResult{
			Block:     t.BlockID,
			Thread:    t.ID,
			PC:        t.PC,
			Active:    t.Active,
			Registers: t.Registers,
		})
	}
	return out
}

// Launch is the client side: it sends req over stream, half-closes it and
// waits for the result. A result carrying an error is returned as an error
// wrapping ErrLaunchFailed.
func Launch(ctx context.Context, stream io.ReadWriteCloser, req LaunchRequest) (LaunchResult, error) {
	if err := wire.Send(ctx, stream, req); err != nil {
		return LaunchResult{}, fmt.Errorf("failed to write launch request: %w", err)
	}
	if err := stream.Close(); err != nil {
		return LaunchResult{}, fmt.Errorf("failed to close stream: %w", err)
	}

	var res LaunchResult
	if err := wire.Receive(ctx, stream, &res); err != nil {
		return LaunchResult{}, fmt.Errorf("failed to read launch result: %w", err)
	}
	if res.Error != "" {
		return res, fmt.Errorf("%w: %s", ErrLaunchFailed, res.Error)
	}
	return res, nil
}
