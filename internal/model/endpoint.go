// Package model holds the value types shared by the tracker and the
// peer agent: endpoints and the fixed piece-size arithmetic they both
// need to agree on.
package model

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// PieceSize is the fixed size, in bytes, of every piece except
// possibly the last one in a file.
const PieceSize = 524288

// Endpoint is an IPv4 address and TCP port, serialized on the wire as
// "a.b.c.d:port". It is a value object, freely copied and compared.
type Endpoint struct {
	IP   string
	Port uint16
}

// ParseEndpoint parses "ip:port" into an Endpoint.
func ParseEndpoint(s string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint %q: %w", s, err)
	}

	if net.ParseIP(host) == nil {
		return Endpoint{}, fmt.Errorf("endpoint %q: invalid ip", s)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return Endpoint{}, fmt.Errorf("endpoint %q: invalid port", s)
	}

	return Endpoint{IP: host, Port: uint16(port)}, nil
}

// String renders the endpoint as "ip:port".
func (e Endpoint) String() string {
	return net.JoinHostPort(e.IP, strconv.FormatUint(uint64(e.Port), 10))
}

// IsZero reports whether e is the zero Endpoint.
func (e Endpoint) IsZero() bool { return e == Endpoint{} }

// PieceCount returns the number of pieces a file of the given size is
// split into: ceil(size / PieceSize). A size of zero or less yields 0;
// callers reject zero-length uploads before reaching here.
func PieceCount(size int64) int {
	if size <= 0 {
		return 0
	}
	return int((size + PieceSize - 1) / PieceSize)
}

// PieceLength returns the length in bytes of piece index i (0-based)
// for a file of the given total size.
func PieceLength(size int64, index int) int64 {
	start := int64(index) * PieceSize
	if start >= size {
		return 0
	}
	if rem := size - start; rem < PieceSize {
		return rem
	}
	return PieceSize
}

// SplitTokens splits a framed command line on runs of whitespace
// (spaces, tabs, newlines), the way the tracker and peer dispatchers
// both do, so repeated separators never produce empty tokens.
func SplitTokens(line string) []string {
	fields := strings.Fields(line)
	return fields
}
