// Command warpsim runs kernels on the simulated SIMT device, assembles and
// disassembles programs, and serves or submits remote launches.
//
//	warpsim run [-trace] [-threads] kernel.yaml
//	warpsim asm [-o program.hex] program.s
//	warpsim dis 0x01000005 0x11000000 | program.hex
//	warpsim serve -addr 127.0.0.1:9440 -http 127.0.0.1:9441 -db ./warpsim.db
//	warpsim submit -addr 127.0.0.1:9440 kernel.yaml
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/tebeka/atexit"

	"github.com/eigerco/warpsim/pkg/log"
)

type command struct {
	name  string
	usage string
	run   func(args []string) error
}

var commands = []command{
	{name: "run", usage: "run [-trace] [-threads] <kernel.yaml>", run: runKernel},
	{name: "asm", usage: "asm [-o out.hex] <program.s>", run: assemble},
	{name: "dis", usage: "dis <hex words... | file.hex>", run: disassemble},
	{name: "serve", usage: "serve [-addr a] [-http a] [-db dir]", run: serve},
	{name: "submit", usage: "submit -addr <server> [-threads] <kernel.yaml>", run: submit},
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: warpsim [-log-level l] [-log-json] <command> [args]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(flag.CommandLine.Output(), "  %s\n", c.usage)
	}
	flag.PrintDefaults()
}

func main() {
	logLevel := flag.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	logJSON := flag.Bool("log-json", false, "log as JSON instead of console text")
	flag.Usage = usage
	flag.Parse()

	level, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		fatal(err)
	}
	opts := log.Options{LogLevel: level, Output: os.Stderr}
	if *logJSON {
		opts.Type = log.JSONLogger
	}
	log.Init(opts)

	if flag.NArg() == 0 {
		usage()
		atexit.Exit(2)
	}
	name, args := flag.Arg(0), flag.Args()[1:]
	for _, c := range commands {
		if c.name == name {
			if err := c.run(args); err != nil {
				fatal(err)
			}
			atexit.Exit(0)
		}
	}
	fmt.Fprintf(os.Stderr, "unknown command %q\n", name)
	usage()
	atexit.Exit(2)
}

// fatal reports err and exits through atexit so open stores get closed.
func fatal(err error) {
	color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "error: ")
	fmt.Fprintln(os.Stderr, err)
	atexit.Exit(1)
}
