// Command peer runs one sharenet peer agent: it connects to a
// tracker, serves piece requests from other peers, drives downloads,
// and exposes an interactive command shell.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/arjr-dev/sharenet/internal/logging"
	"github.com/arjr-dev/sharenet/internal/model"
	"github.com/arjr-dev/sharenet/internal/peeragent"
)

// errInterrupted is returned when the run loop tore down because of a
// signal rather than an internal failure, so main still exits non-zero.
var errInterrupted = errors.New("peer: terminated by signal")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer <self-endpoint> <tracker-info-path>",
		Short: "run a sharenet peer agent",
		Args:  cobra.ExactArgs(2),
		RunE:  runPeer,
	}
	return cmd
}

func runPeer(cmd *cobra.Command, args []string) error {
	self, err := model.ParseEndpoint(args[0])
	if err != nil {
		return err
	}
	infoPath := args[1]

	log := slog.New(logging.NewPrettyHandler(os.Stdout, nil))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lines, err := peeragent.ReadTrackerInfoLines(infoPath, 2)
	if err != nil {
		return err
	}
	trackerConn, err := peeragent.ConnectTracker(lines)
	if err != nil {
		return fmt.Errorf("connect to tracker: %w", err)
	}
	defer trackerConn.Close()
	log.Info("connected to tracker")

	ln, err := peeragent.Listen(ctx, self.String())
	if err != nil {
		return fmt.Errorf("bind %s: %w", self.String(), err)
	}
	log.Info("peer listening", "addr", self.String())

	files := peeragent.NewLocalFiles()

	shellCtx, cancelShell := context.WithCancel(ctx)
	defer cancelShell()

	g, gctx := errgroup.WithContext(shellCtx)
	g.Go(func() error {
		return peeragent.Serve(gctx, ln, files, log)
	})
	g.Go(func() error {
		sh := newShell(os.Stdin, os.Stdout, trackerConn, self, files, log)
		sh.run(gctx)
		cancelShell()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		log.Info("peer shut down", "reason", "signal")
		return errInterrupted
	}
	log.Info("peer shut down")
	return nil
}
