package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/eigerco/warpsim/internal/asm"
	"github.com/eigerco/warpsim/internal/engine"
	"github.com/eigerco/warpsim/internal/kernel"
	"github.com/eigerco/warpsim/internal/store"
)

var errUsage = errors.New("bad arguments")

func runKernel(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	trace := fs.Bool("trace", false, "print every executed instruction")
	threads := fs.Bool("threads", false, "print the final state of every thread")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: run takes one kernel file", errUsage)
	}

	k, err := kernel.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	var opts []engine.Option
	if *trace {
		opts = append(opts, engine.WithTracer(printTrace(os.Stdout)))
	}
	e, err := k.Engine(opts...)
	if err != nil {
		return err
	}
	state := e.Run()

	report := store.NewReport(k.Name, store.HashProgram(e.Program()), k.Blocks*k.ThreadsPerBlock, e.Stats())
	printReport(os.Stdout, report)
	if k.Dump.Length > 0 {
		printMemory(os.Stdout, k.Dump.Base, e.MemoryWindow(k.Dump.Base, k.Dump.Length))
	}
	if *threads {
		for _, t := range state.Threads {
			printThread(os.Stdout, t.BlockID, t.ID, t.PC, t.Active, t.Registers[:])
		}
	}
	return nil
}

func assemble(args []string) error {
	fs := flag.NewFlagSet("asm", flag.ExitOnError)
	out := fs.String("o", "", "write the hex image here instead of stdout")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: asm takes one source file", errUsage)
	}

	src, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	words, err := asm.Assemble(string(src))
	if err != nil {
		return err
	}

	w := io.Writer(os.Stdout)
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriter(w)
	for _, word := range words {
		fmt.Fprintf(bw, "%08X\n", word)
	}
	return bw.Flush()
}

// disassemble accepts either hex words on the command line or a single file
// holding whitespace separated hex words.
func disassemble(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: dis takes hex words or a file", errUsage)
	}
	fields := args
	if len(args) == 1 {
		if data, err := os.ReadFile(args[0]); err == nil {
			fields = strings.Fields(string(data))
		}
	}

	words := make([]uint32, 0, len(fields))
	for _, f := range fields {
		w, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(f), "0x"), 16, 32)
		if err != nil {
			return fmt.Errorf("%w: %q is not a hex word", errUsage, f)
		}
		words = append(words, uint32(w))
	}
	fmt.Print(asm.Listing(words))
	return nil
}

func printTrace(w io.Writer) engine.Tracer {
	return func(ev engine.TraceEvent) {
		fmt.Fprintf(w, "%6d  w%-3d b%-3d t%-4d %04d  %s\n",
			ev.Cycle, ev.WarpID, ev.BlockID, ev.ThreadID, ev.PC, ev.Instruction)
	}
}

func printReport(w io.Writer, r store.Report) {
	label := color.New(color.FgCyan).SprintFunc()
	status := color.New(color.FgGreen, color.Bold).Sprint("completed")
	if !r.Completed {
		status = color.New(color.FgYellow, color.Bold).Sprint("max cycles reached")
	}

	name := r.Name
	if name == "" {
		name = "kernel"
	}
	fmt.Fprintf(w, "%s %s\n", color.New(color.Bold).Sprint(name), status)
	if r.ID != "" {
		fmt.Fprintf(w, "  %s %s\n", label("run         "), r.ID)
	}
	fmt.Fprintf(w, "  %s %s\n", label("program     "), r.ProgramHash)
	fmt.Fprintf(w, "  %s %d\n", label("threads     "), r.Threads)
	fmt.Fprintf(w, "  %s %d\n", label("cycles      "), r.Cycles)
	fmt.Fprintf(w, "  %s %d\n", label("instructions"), r.Instructions)
	fmt.Fprintf(w, "  %s %d hits, %d misses\n", label("cache       "), r.CacheHits, r.CacheMisses)
	fmt.Fprintf(w, "  %s %d requests, %d transactions\n", label("memory      "), r.Requests, r.Transactions)
	fmt.Fprintf(w, "  %s %d\n", label("divergent   "), r.DivergedIssues)
}

func printMemory(w io.Writer, base uint32, words []uint32) {
	for i := 0; i < len(words); i += 8 {
		end := min(i+8, len(words))
		fmt.Fprintf(w, "%s", color.New(color.FgCyan).Sprintf("%06d:", base+uint32(i)))
		for _, v := range words[i:end] {
			fmt.Fprintf(w, " %08X", v)
		}
		fmt.Fprintln(w)
	}
}

func printThread(w io.Writer, block, thread, pc uint32, active bool, regs []uint32) {
	state := "halted"
	if active {
		state = color.YellowString("active")
	}
	fmt.Fprintf(w, "b%d t%d pc=%d %s\n ", block, thread, pc, state)
	for i, v := range regs {
		fmt.Fprintf(w, " R%d=%d", i, v)
	}
	fmt.Fprintln(w)
}
