// Package wire implements the length-prefixed message envelope shared
// by every client-tracker and peer-peer connection: a 4-byte
// network-order length prefix followed by that many bytes of payload.
//
// The framing is content-agnostic — control messages are UTF-8 text,
// piece replies are raw bytes — and is exposed as plain Send/Recv
// functions over an io.Writer/io.Reader. Unlike a BitTorrent wire
// message there is no message-ID byte; this protocol's free-form
// command lines don't need one.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrFrameTooLarge is returned by Recv when a length prefix exceeds the
// configured maximum, guarding against a corrupt or hostile peer
// forcing an unbounded allocation.
var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")

// Send writes b as one framed message: a 4-byte big-endian length
// prefix followed by b itself. An empty payload is sent as a single
// space, per the documented quirk of the protocol this implements —
// receivers must not rely on empty payloads never occurring, but
// senders never produce one.
func Send(w io.Writer, b []byte) error {
	if len(b) == 0 {
		b = []byte{' '}
	}

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(b)))

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("wire: write payload: %w", err)
	}
	return nil
}

// SendString is a convenience wrapper around Send for text payloads.
func SendString(w io.Writer, s string) error {
	return Send(w, []byte(s))
}

// Recv reads one framed message from r: a 4-byte length prefix, then
// exactly that many payload bytes, looping on short reads. A stream
// that ends before a frame is complete (before its first byte, inside
// the length prefix, or inside the payload) is a clean disconnect and
// is reported as an unwrapped io.EOF; other read failures are wrapped.
func Recv(r io.Reader, maxSize uint32) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("wire: read length prefix: %w", err)
	}

	length := binary.BigEndian.Uint32(hdr[:])
	if length == 0 {
		return []byte{}, nil
	}
	if maxSize > 0 && length > maxSize {
		return nil, ErrFrameTooLarge
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("wire: read payload: %w", err)
	}

	return buf, nil
}

// RecvString is a convenience wrapper around Recv for text payloads.
func RecvString(r io.Reader, maxSize uint32) (string, error) {
	b, err := Recv(r, maxSize)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
