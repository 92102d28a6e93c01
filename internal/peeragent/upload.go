package peeragent

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/arjr-dev/sharenet/internal/config"
	"github.com/arjr-dev/sharenet/internal/wire"
)

// ErrEmptyFile is returned by UploadFile for a zero-length source
// file; empty files are rejected outright rather than uploaded.
var ErrEmptyFile = errors.New("peeragent: empty file; not uploading")

// UploadFile hashes localPath, runs the upload_file sub-protocol
// against trackerConn, and on success registers the file in files
// under its group/filename key so this peer can serve it to others.
func UploadFile(trackerConn net.Conn, localPath, groupID string, files *LocalFiles) (string, error) {
	hashes, err := HashFile(localPath)
	if err != nil {
		return "", err
	}
	if hashes.Size == 0 {
		return "", ErrEmptyFile
	}

	cmd := fmt.Sprintf("upload_file %s %s %s %d %d", localPath, groupID, hashes.WholeHash, hashes.Size, len(hashes.PieceHashes))
	ack, err := Call(trackerConn, cmd)
	if err != nil {
		return "", fmt.Errorf("peeragent: upload_file: %w", err)
	}
	if ack != "Success" {
		return "", fmt.Errorf("peeragent: upload_file rejected: %s", ack)
	}

	cfg := config.Load()
	for _, h := range hashes.PieceHashes {
		if err := setWriteDeadline(trackerConn, cfg); err != nil {
			return "", err
		}
		if err := wire.SendString(trackerConn, h); err != nil {
			return "", fmt.Errorf("peeragent: send piece hash: %w", err)
		}
	}

	if err := setReadDeadline(trackerConn, cfg); err != nil {
		return "", err
	}
	final, err := wire.RecvString(trackerConn, cfg.MaxFrameSize)
	if err != nil {
		return "", fmt.Errorf("peeragent: read upload confirmation: %w", err)
	}
	if final != "file uploaded" {
		return "", fmt.Errorf("peeragent: upload_file: %s", final)
	}

	filename := filepath.Base(localPath)
	files.Put(Key(groupID, filename), &LocalFile{Path: localPath})

	return final, nil
}

func setWriteDeadline(conn net.Conn, cfg *config.Config) error {
	return conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
}

func setReadDeadline(conn net.Conn, cfg *config.Config) error {
	return conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
}
