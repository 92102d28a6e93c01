package peeragent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/arjr-dev/sharenet/internal/config"
	"github.com/arjr-dev/sharenet/internal/model"
	"github.com/arjr-dev/sharenet/internal/wire"
)

// Listen binds addr for inbound peer connections, with SO_REUSEADDR
// and SO_REUSEPORT set so a peer that restarts on the same endpoint
// can rebind immediately.
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

// Serve runs the peer's accept loop on ln until ctx is canceled,
// handling each accepted connection on its own goroutine.
func Serve(ctx context.Context, ln net.Listener, files *LocalFiles, log *slog.Logger) error {
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
			go handlePeerConn(conn, files, log)
		}
	})

	return g.Wait()
}

// handlePeerConn serves request_file_piece requests on one accepted
// connection.
func handlePeerConn(conn net.Conn, files *LocalFiles, log *slog.Logger) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	log = log.With("peer", remote)

	for {
		cfg := config.Load()
		if err := conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout)); err != nil {
			log.Warn("set read deadline", "error", err)
			return
		}

		msg, err := wire.RecvString(conn, cfg.MaxFrameSize)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn("frame read failed", "error", err)
			}
			return
		}
		msg = strings.TrimSpace(msg)
		if msg == "" || msg == "quit" {
			return
		}

		if err := servePieceRequest(conn, files, log, msg); err != nil {
			log.Warn("piece request failed", "error", err)
			return
		}
	}
}

func servePieceRequest(conn net.Conn, files *LocalFiles, log *slog.Logger, msg string) error {
	tokens := model.SplitTokens(msg)
	if len(tokens) < 3 || tokens[0] != "request_file_piece" {
		return writeText(conn, "INVALID COMMAND")
	}

	key := tokens[1]
	pieceNumber, err := strconv.Atoi(tokens[2])
	if err != nil || pieceNumber <= 0 {
		return writeText(conn, "invalid input, piece value should be positive")
	}

	local, ok := files.Get(key)
	if !ok {
		return writeText(conn, "file does not exist")
	}

	data, err := readPiece(local.Path, pieceNumber-1)
	if err != nil {
		log.Warn("could not read local piece", "path", local.Path, "piece", pieceNumber, "error", err)
		return err
	}

	if err := writeText(conn, "Success"); err != nil {
		return err
	}

	cfg := config.Load()
	if err := conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout)); err != nil {
		return err
	}
	return wire.Send(conn, data)
}

func readPiece(path string, index int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("peeragent: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("peeragent: stat %s: %w", path, err)
	}

	length := model.PieceLength(info.Size(), index)
	if length == 0 {
		return nil, fmt.Errorf("peeragent: piece %d is past the end of %s", index, path)
	}

	if _, err := f.Seek(int64(index)*model.PieceSize, io.SeekStart); err != nil {
		return nil, fmt.Errorf("peeragent: seek %s: %w", path, err)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("peeragent: read %s: %w", path, err)
	}
	return buf, nil
}

func writeText(conn net.Conn, text string) error {
	cfg := config.Load()
	if err := conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout)); err != nil {
		return err
	}
	return wire.SendString(conn, text)
}
