package peeragent

import (
	"fmt"
	"net"
	"testing"

	"github.com/arjr-dev/sharenet/internal/wire"
)

// fakeTrackerForDownload scripts just enough of the tracker's side of
// the protocol to drive DownloadFile through get_rarest_piece_info and
// update_piece_info for a file with len(pieceHashes) pieces, all
// served by a single provider at providerAddr.
func fakeTrackerForDownload(t *testing.T, conn net.Conn, providerAddr string, pieceHashes []string) {
	t.Helper()
	defer conn.Close()

	next := 1
	total := len(pieceHashes)

	for next <= total {
		line, err := wire.RecvString(conn, 0)
		if err != nil {
			return
		}

		switch {
		case hasPrefix(line, "get_rarest_piece_info"):
			resp := fmt.Sprintf("Success\n%d\n%s:/remote/source.bin", next, providerAddr)
			if err := wire.SendString(conn, resp); err != nil {
				return
			}

		case hasPrefix(line, "update_piece_info"):
			if err := wire.SendString(conn, "piece info updated"); err != nil {
				return
			}
			next++

		default:
			wire.SendString(conn, "unexpected command in test")
			return
		}
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
