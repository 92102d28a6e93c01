package trackerserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"syscall"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/arjr-dev/sharenet/internal/config"
	"github.com/arjr-dev/sharenet/internal/trackerstate"
)

// Server accepts connections on a bound listener and dispatches every
// line against a shared trackerstate.State.
type Server struct {
	state *trackerstate.State
	log   *slog.Logger
}

// New returns a Server backed by a fresh, empty directory.
func New(log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{state: trackerstate.New(), log: log}
}

// Listen binds addr with SO_REUSEADDR and SO_REUSEPORT set so a
// restarted tracker can rebind the same port immediately instead of
// waiting out TIME_WAIT.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if sockErr != nil {
					return
				}
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	return lc.Listen(ctx, "tcp4", addr)
}

// Serve runs the accept loop on ln until ctx is canceled or ln is
// closed. Each accepted connection is handled on its own goroutine,
// fire-and-forget.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})

	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if errors.Is(err, net.ErrClosed) {
					return nil
				}
				return err
			}
			go s.handleConn(conn)
		}
	})

	return g.Wait()
}

func (s *Server) maxFrameSize() uint32 {
	return config.Load().MaxFrameSize
}
