package peeragent

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/arjr-dev/sharenet/internal/model"
)

func writeTempFile(t *testing.T, content []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestHashFileSinglePiece(t *testing.T) {
	content := bytes.Repeat([]byte{0x7}, 1000)
	path := writeTempFile(t, content)

	hashes, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if hashes.Size != int64(len(content)) {
		t.Fatalf("size = %d, want %d", hashes.Size, len(content))
	}
	if len(hashes.PieceHashes) != 1 {
		t.Fatalf("piece count = %d, want 1", len(hashes.PieceHashes))
	}

	want := sha1.Sum(content)
	if hashes.PieceHashes[0] != hex.EncodeToString(want[:]) {
		t.Fatalf("piece hash mismatch")
	}
	if hashes.WholeHash != hex.EncodeToString(want[:]) {
		t.Fatalf("whole hash mismatch")
	}
}

func TestHashFileMultiplePieces(t *testing.T) {
	content := make([]byte, model.PieceSize+1000)
	for i := range content {
		content[i] = byte(i)
	}
	path := writeTempFile(t, content)

	hashes, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if len(hashes.PieceHashes) != 2 {
		t.Fatalf("piece count = %d, want 2", len(hashes.PieceHashes))
	}

	first := sha1.Sum(content[:model.PieceSize])
	second := sha1.Sum(content[model.PieceSize:])
	if hashes.PieceHashes[0] != hex.EncodeToString(first[:]) {
		t.Fatalf("piece 0 hash mismatch")
	}
	if hashes.PieceHashes[1] != hex.EncodeToString(second[:]) {
		t.Fatalf("piece 1 hash mismatch")
	}

	whole := sha1.Sum(content)
	if hashes.WholeHash != hex.EncodeToString(whole[:]) {
		t.Fatalf("whole hash mismatch")
	}
}

func TestVerifyPiece(t *testing.T) {
	data := []byte("hello piece")
	sum := sha1.Sum(data)
	hexSum := hex.EncodeToString(sum[:])

	if !VerifyPiece(data, hexSum) {
		t.Fatalf("expected match")
	}
	if VerifyPiece([]byte("tampered"), hexSum) {
		t.Fatalf("expected mismatch")
	}
}
