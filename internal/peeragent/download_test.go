package peeragent

import (
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/arjr-dev/sharenet/internal/model"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startServePeer spins up a real TCP listener backed by files and
// returns its address plus a stop func.
func startServePeer(t *testing.T, files *LocalFiles) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handlePeerConn(conn, files, discardLog())
		}
	}()
	return ln.Addr().String(), func() { ln.Close() }
}

func TestServePieceRequestRoundTrip(t *testing.T) {
	content := make([]byte, model.PieceSize+1000)
	for i := range content {
		content[i] = byte(i % 251)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "shared.bin")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	files := NewLocalFiles()
	files.Put(Key("g1", "shared.bin"), &LocalFile{Path: path})

	addr, stop := startServePeer(t, files)
	defer stop()

	piece1, err := fetchPieceFrom(addr, "g1", "shared.bin", 1)
	if err != nil {
		t.Fatalf("fetchPieceFrom piece 1: %v", err)
	}
	if string(piece1) != string(content[:model.PieceSize]) {
		t.Fatalf("piece 1 content mismatch, got %d bytes", len(piece1))
	}

	piece2, err := fetchPieceFrom(addr, "g1", "shared.bin", 2)
	if err != nil {
		t.Fatalf("fetchPieceFrom piece 2: %v", err)
	}
	if string(piece2) != string(content[model.PieceSize:]) {
		t.Fatalf("piece 2 content mismatch, got %d bytes, want %d", len(piece2), len(content)-model.PieceSize)
	}
}

func TestServePieceRequestUnknownFile(t *testing.T) {
	files := NewLocalFiles()
	addr, stop := startServePeer(t, files)
	defer stop()

	_, err := fetchPieceFrom(addr, "g1", "missing.bin", 1)
	if err == nil {
		t.Fatalf("expected error for unknown file")
	}
}

func TestDownloadFileEndToEnd(t *testing.T) {
	content := make([]byte, model.PieceSize+2000)
	for i := range content {
		content[i] = byte(i % 199)
	}
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "source.bin")
	if err := os.WriteFile(sourcePath, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	hashes, err := HashFile(sourcePath)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}

	providerFiles := NewLocalFiles()
	providerFiles.Put(Key("g1", "source.bin"), &LocalFile{Path: sourcePath})
	providerAddr, stop := startServePeer(t, providerFiles)
	defer stop()

	// A real tracker isn't needed for this test: DownloadFile
	// only calls back to the tracker for get_rarest_piece_info and
	// update_piece_info, which we stub out via a net.Pipe driven by a
	// tiny scripted responder.
	clientConn, trackerSide := net.Pipe()
	defer clientConn.Close()

	go fakeTrackerForDownload(t, trackerSide, providerAddr, hashes.PieceHashes)

	meta := DownloadMetadata{
		GroupID:     "g1",
		Filename:    "source.bin",
		Size:        hashes.Size,
		Hash:        hashes.WholeHash,
		PieceHashes: hashes.PieceHashes,
	}

	targetPath := filepath.Join(dir, "target.bin")
	files := NewLocalFiles()

	if err := DownloadFile(clientConn, meta, targetPath, files, discardLog()); err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}

	got, err := os.ReadFile(targetPath)
	if err != nil {
		t.Fatalf("ReadFile(target): %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("downloaded content mismatch: got %d bytes, want %d", len(got), len(content))
	}
}
