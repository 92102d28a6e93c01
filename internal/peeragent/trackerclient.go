package peeragent

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/arjr-dev/sharenet/internal/config"
	"github.com/arjr-dev/sharenet/internal/wire"
)

// ReadTrackerInfoLines reads the first n non-empty lines of a tracker
// info file, each expected to be an "ip:port" endpoint.
func ReadTrackerInfoLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("peeragent: open tracker info %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() && len(lines) < n {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("peeragent: read tracker info %s: %w", path, err)
	}
	if len(lines) < n {
		return nil, fmt.Errorf("peeragent: tracker info %s has fewer than %d endpoints", path, n)
	}
	return lines, nil
}

// ConnectTracker dials each endpoint in order, keeping the first
// connection that succeeds. There is no failover once a connection is
// established.
func ConnectTracker(endpoints []string) (net.Conn, error) {
	cfg := config.Load()
	var lastErr error
	for _, ep := range endpoints {
		conn, err := net.DialTimeout("tcp4", ep, cfg.DialTimeout)
		if err != nil {
			lastErr = err
			continue
		}
		return conn, nil
	}
	return nil, fmt.Errorf("peeragent: could not connect to any tracker: %w", lastErr)
}

// Call sends line as a framed command to the tracker connection and
// returns the single framed text reply.
func Call(conn net.Conn, line string) (string, error) {
	cfg := config.Load()

	if err := conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout)); err != nil {
		return "", err
	}
	if err := wire.SendString(conn, line); err != nil {
		return "", fmt.Errorf("peeragent: send %q: %w", line, err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout)); err != nil {
		return "", err
	}
	resp, err := wire.RecvString(conn, cfg.MaxFrameSize)
	if err != nil {
		return "", fmt.Errorf("peeragent: recv reply to %q: %w", line, err)
	}
	return resp, nil
}
