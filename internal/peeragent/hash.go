package peeragent

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/arjr-dev/sharenet/internal/model"
)

// FileHashes is the result of hashing a local file for upload: one
// hex SHA-1 digest per PieceSize chunk, plus the whole-file digest,
// computed in a single streaming pass over the file.
type FileHashes struct {
	PieceHashes []string
	WholeHash   string
	Size        int64
}

// HashFile streams path once, computing per-piece and whole-file
// SHA-1 digests in a single pass.
func HashFile(path string) (FileHashes, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileHashes{}, fmt.Errorf("peeragent: open %s: %w", path, err)
	}
	defer f.Close()

	whole := sha1.New()
	buf := make([]byte, model.PieceSize)
	var pieceHashes []string
	var size int64

	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			chunk := buf[:n]
			piece := sha1.Sum(chunk)
			pieceHashes = append(pieceHashes, hex.EncodeToString(piece[:]))
			whole.Write(chunk)
			size += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return FileHashes{}, fmt.Errorf("peeragent: read %s: %w", path, err)
		}
	}

	return FileHashes{
		PieceHashes: pieceHashes,
		WholeHash:   hex.EncodeToString(whole.Sum(nil)),
		Size:        size,
	}, nil
}

// VerifyPiece reports whether data's SHA-1 matches wantHex.
func VerifyPiece(data []byte, wantHex string) bool {
	got := sha1.Sum(data)
	return hex.EncodeToString(got[:]) == wantHex
}
