// Command tracker runs the sharenet tracker service: it accepts peer
// connections, maintains the directory of users, groups, and files,
// and answers the line-oriented command grammar peers send it.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/arjr-dev/sharenet/internal/logging"
	"github.com/arjr-dev/sharenet/internal/peeragent"
	"github.com/arjr-dev/sharenet/internal/trackerserver"
)

// errInterrupted is returned when the run loop tore down because of a
// signal rather than an internal failure, so main still exits non-zero.
var errInterrupted = errors.New("tracker: terminated by signal")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracker <tracker-info-path> <tracker-number>",
		Short: "run a sharenet tracker",
		Args:  cobra.ExactArgs(2),
		RunE:  runTracker,
	}
	return cmd
}

func runTracker(cmd *cobra.Command, args []string) error {
	infoPath := args[0]
	trackerNumber, err := strconv.Atoi(args[1])
	if err != nil || (trackerNumber != 1 && trackerNumber != 2) {
		return fmt.Errorf("tracker-number must be 1 or 2, got %q", args[1])
	}

	lines, err := peeragent.ReadTrackerInfoLines(infoPath, 2)
	if err != nil {
		return err
	}
	addr := lines[trackerNumber-1]

	log := slog.New(logging.NewPrettyHandler(os.Stdout, nil))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := trackerserver.Listen(ctx, addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	log.Info("tracker listening", "addr", addr)

	srv := trackerserver.New(log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		log.Info("tracker shut down", "reason", "signal")
		return errInterrupted
	}
	log.Info("tracker shut down")
	return nil
}
