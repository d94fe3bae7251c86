package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tebeka/atexit"

	"github.com/eigerco/warpsim/internal/inspect"
	"github.com/eigerco/warpsim/internal/kernel"
	"github.com/eigerco/warpsim/internal/store"
	"github.com/eigerco/warpsim/pkg/db"
	"github.com/eigerco/warpsim/pkg/db/pebble"
	"github.com/eigerco/warpsim/pkg/log"
	"github.com/eigerco/warpsim/pkg/network/cert"
	"github.com/eigerco/warpsim/pkg/network/handlers"
	"github.com/eigerco/warpsim/pkg/network/transport"
)

const defaultAddr = "127.0.0.1:9440"

func openStore(path string) (db.KVStore, error) {
	var (
		kv  *pebble.KVStore
		err error
	)
	if path == "" {
		kv, err = pebble.NewKVStore()
	} else {
		kv, err = pebble.Open(path)
	}
	if err != nil {
		return nil, err
	}
	atexit.Register(func() {
		if err := kv.Close(); err != nil {
			log.Store.Error().Err(err).Msg("close store")
		}
	})
	return kv, nil
}

// serve runs the launch service and, when -http is set, the inspection API
// over the same store until interrupted.
func serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", defaultAddr, "QUIC listen address for launches")
	httpAddr := fs.String("http", "", "HTTP listen address for the inspection API (disabled when empty)")
	dbPath := fs.String("db", "", "store directory (in-memory when empty)")
	keep := fs.Int("keep-runs", 0, "keep only this many of the newest run reports (0 keeps all)")
	_ = fs.Parse(args)

	kv, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	programs, runs := store.NewPrograms(kv), store.NewRuns(kv)

	identity, err := cert.NewIdentity()
	if err != nil {
		return err
	}
	tr, err := transport.NewTransport(transport.Config{
		TLSCert:       identity,
		ListenAddr:    *addr,
		CertValidator: cert.NewValidator(),
		Handler:       handlers.NewLaunchHandler(programs, runs, *keep),
	})
	if err != nil {
		return err
	}
	if err := tr.Start(); err != nil {
		return err
	}

	var srv *http.Server
	if *httpAddr != "" {
		srv = &http.Server{
			Addr:              *httpAddr,
			Handler:           inspect.NewServer(programs, runs),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Root.Info().Str("addr", *httpAddr).Msg("inspection API listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Root.Error().Err(err).Msg("inspection API stopped")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Root.Info().Msg("shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Root.Warn().Err(err).Msg("inspection API shutdown")
		}
	}
	return tr.Stop()
}

// submit sends a kernel to a running server and prints the result.
func submit(args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	addr := fs.String("addr", defaultAddr, "server address")
	threads := fs.Bool("threads", false, "print the final state of every thread")
	timeout := fs.Duration("timeout", time.Minute, "give up after this long")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: submit takes one kernel file", errUsage)
	}

	k, err := kernel.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	identity, err := cert.NewIdentity()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	conn, err := transport.Dial(ctx, *addr, identity, cert.NewValidator())
	if err != nil {
		return err
	}
	defer conn.Close()
	stream, err := conn.OpenStream(ctx)
	if err != nil {
		return err
	}

	res, err := handlers.Launch(ctx, stream, handlers.LaunchRequest{Kernel: *k, Threads: *threads})
	if err != nil {
		return err
	}
	printReport(os.Stdout, res.Report)
	if len(res.Memory) > 0 {
		printMemory(os.Stdout, k.Dump.Base, res.Memory)
	}
	for _, t := range res.Threads {
		printThread(os.Stdout, t.Block, t.Thread, t.PC, t.Active, t.Registers[:])
	}
	return nil
}
