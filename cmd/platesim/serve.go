package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/platesim/internal/dynamo"
	"github.com/san-kum/platesim/internal/logging"
	"github.com/san-kum/platesim/internal/observability"
	"github.com/san-kum/platesim/internal/physics"
	"github.com/san-kum/platesim/internal/sim"
	"github.com/san-kum/platesim/internal/stream"
)

var (
	listenAddr  string
	streamEvery int
	streamFPS   int
	loop        bool
)

// pacer slows a run down to fps broadcast frames per second so viewers
// can follow it.
type pacer struct {
	every    int
	interval time.Duration
}

func (p pacer) OnStep(s dynamo.Snapshot) {
	if p.interval > 0 && s.Step%p.every == 0 {
		time.Sleep(p.interval)
	}
}

func serveStream(cmd *cobra.Command, args []string) error {
	sc, ic, err := plateSetup(cmd)
	if err != nil {
		return err
	}
	if streamEvery < 1 {
		streamEvery = 1
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector, err := observability.NewSolverCollector(nil)
	if err != nil {
		return err
	}
	hub := stream.NewHub(streamEvery, logger.With(logging.String("component", "stream")))
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.Handle("/metrics", collector.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "ok clients=%d\n", hub.Clients())
	})

	srv := &http.Server{Addr: listenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening", logging.String("addr", listenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	fmt.Printf("streaming %s on ws://%s/ws\n", sc, listenAddr)
	runErr := streamRuns(ctx, sc, ic, hub, collector)

	if runErr == nil && !loop {
		// keep serving the last frame until interrupted
		select {
		case <-ctx.Done():
		case err := <-serveErr:
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "http shutdown failed", logging.Err(err))
	}
	if errors.Is(runErr, dynamo.ErrContextCanceled) {
		return nil
	}
	return runErr
}

// streamRuns runs the plate once, or repeatedly with --loop, publishing
// into hub. The final step is always published.
func streamRuns(ctx context.Context, sc sim.Config, ic physics.InitialCondition, hub *stream.Hub, collector *observability.SolverCollector) error {
	p := pacer{every: streamEvery}
	if streamFPS > 0 {
		p.interval = time.Second / time.Duration(streamFPS)
	}
	for {
		runCtx, log := logging.WithRunLogger(ctx, logger)
		solver, err := seededSolver(sc, ic,
			sim.WithLogger(log),
			sim.WithCollector(collector),
			sim.WithObserver(hub),
			sim.WithObserver(p),
		)
		if err != nil {
			return err
		}
		res, err := solver.Run(runCtx)
		if err != nil {
			return err
		}
		if res.Nt%streamEvery != 0 {
			hub.Publish(res.Final)
		}
		if !loop {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}
