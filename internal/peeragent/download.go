package peeragent

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/arjr-dev/sharenet/internal/config"
	"github.com/arjr-dev/sharenet/internal/model"
	"github.com/arjr-dev/sharenet/internal/wire"
)

// DownloadMetadata mirrors the tracker's download_file response.
type DownloadMetadata struct {
	GroupID     string
	Filename    string
	Size        int64
	Hash        string
	PieceHashes []string
}

// ParseDownloadMetadata parses the tracker's multi-line download_file
// reply.
func ParseDownloadMetadata(resp string) (DownloadMetadata, error) {
	lines := strings.Split(resp, "\n")
	if len(lines) < 2 || lines[0] != "Success" {
		return DownloadMetadata{}, fmt.Errorf("peeragent: download_file: %s", resp)
	}

	fields := model.SplitTokens(lines[1])
	if len(fields) < 5 {
		return DownloadMetadata{}, fmt.Errorf("peeragent: download_file: malformed metadata line %q", lines[1])
	}

	size, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil || size <= 0 {
		return DownloadMetadata{}, fmt.Errorf("peeragent: download_file: invalid size %q", fields[2])
	}
	count, err := strconv.Atoi(fields[4])
	if err != nil || count <= 0 {
		return DownloadMetadata{}, fmt.Errorf("peeragent: download_file: invalid piece count %q", fields[4])
	}
	if len(lines)-2 != count {
		return DownloadMetadata{}, fmt.Errorf("peeragent: download_file: expected %d piece hashes, got %d", count, len(lines)-2)
	}

	return DownloadMetadata{
		GroupID:     fields[0],
		Filename:    fields[1],
		Size:        size,
		Hash:        fields[3],
		PieceHashes: lines[2:],
	}, nil
}

// rarestPieceDescriptor mirrors the tracker's get_rarest_piece_info
// reply.
type rarestPieceDescriptor struct {
	pieceNumber int
	providers   []string // "endpoint:path", in the order the tracker sent them
}

func parseRarestPiece(resp string) (rarestPieceDescriptor, bool, error) {
	if resp == "" {
		return rarestPieceDescriptor{}, false, nil
	}

	lines := strings.Split(resp, "\n")
	if lines[0] != "Success" || len(lines) < 2 {
		return rarestPieceDescriptor{}, false, fmt.Errorf("peeragent: get_rarest_piece_info: %s", resp)
	}

	n, err := strconv.Atoi(lines[1])
	if err != nil || n == 0 {
		return rarestPieceDescriptor{}, false, fmt.Errorf("peeragent: get_rarest_piece_info: invalid piece number %q", lines[1])
	}

	return rarestPieceDescriptor{pieceNumber: n, providers: lines[2:]}, true, nil
}

// PrepareDownloadTarget creates targetPath with create|truncate|write
// semantics and grows it to size bytes by seeking to size-1 and writing
// one zero byte, so later piece writes can use WriteAt freely.
func PrepareDownloadTarget(targetPath string, size int64) (*os.File, error) {
	f, err := os.OpenFile(targetPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("peeragent: create %s: %w", targetPath, err)
	}
	if _, err := f.Seek(size-1, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("peeragent: seek %s: %w", targetPath, err)
	}
	if _, err := f.Write([]byte{0}); err != nil {
		f.Close()
		return nil, fmt.Errorf("peeragent: grow %s: %w", targetPath, err)
	}
	return f, nil
}

// DownloadFile drives one file's worth of pieces to completion. It
// repeatedly asks the tracker for the rarest piece this endpoint
// lacks, connects to a provider (trying the provider list in REVERSE
// order), fetches and verifies the piece, writes it, and advertises it
// back to the tracker via update_piece_info. On any hard error the
// local file handle is dropped and the download aborts.
func DownloadFile(trackerConn net.Conn, meta DownloadMetadata, targetPath string, files *LocalFiles, log *slog.Logger) error {
	key := Key(meta.GroupID, meta.Filename)

	f, err := PrepareDownloadTarget(targetPath, meta.Size)
	if err != nil {
		return err
	}
	defer f.Close()

	files.Put(key, &LocalFile{Path: targetPath})

	remaining := len(meta.PieceHashes)
	for remaining > 0 {
		resp, err := Call(trackerConn, fmt.Sprintf("get_rarest_piece_info %s %s", meta.GroupID, meta.Filename))
		if err != nil {
			files.Delete(key)
			return fmt.Errorf("peeragent: get_rarest_piece_info: %w", err)
		}

		desc, found, err := parseRarestPiece(resp)
		if err != nil {
			files.Delete(key)
			return err
		}
		if !found {
			files.Delete(key)
			return errors.New("peeragent: tracker reports no remaining piece but local download is incomplete")
		}

		data, ok := fetchPieceFromProviders(desc, meta.GroupID, meta.Filename, log)
		if !ok {
			files.Delete(key)
			return fmt.Errorf("peeragent: could not fetch piece %d from any provider", desc.pieceNumber)
		}

		wantHash := meta.PieceHashes[desc.pieceNumber-1]
		if !VerifyPiece(data, wantHash) {
			log.Warn("piece failed hash verification, retrying", "piece", desc.pieceNumber)
			continue
		}

		if _, err := f.WriteAt(data, int64(desc.pieceNumber-1)*model.PieceSize); err != nil {
			files.Delete(key)
			return fmt.Errorf("peeragent: write piece %d: %w", desc.pieceNumber, err)
		}

		if _, err := Call(trackerConn, fmt.Sprintf("update_piece_info %s %s %s %d", meta.GroupID, meta.Filename, targetPath, desc.pieceNumber)); err != nil {
			files.Delete(key)
			return fmt.Errorf("peeragent: update_piece_info: %w", err)
		}

		remaining--
	}

	log.Info("file downloaded", "group", meta.GroupID, "filename", meta.Filename, "path", targetPath)
	return nil
}

// fetchPieceFromProviders tries desc.providers in REVERSE order: the
// last-listed provider first, falling back toward the first as earlier
// attempts fail.
func fetchPieceFromProviders(desc rarestPieceDescriptor, groupID, filename string, log *slog.Logger) ([]byte, bool) {
	for i := len(desc.providers) - 1; i >= 0; i-- {
		endpoint, path, ok := splitProviderLine(desc.providers[i])
		if !ok {
			continue
		}

		data, err := fetchPieceFrom(endpoint, groupID, filename, desc.pieceNumber)
		if err != nil {
			log.Warn("provider fetch failed, trying next", "provider", endpoint, "path", path, "error", err)
			continue
		}
		return data, true
	}
	return nil, false
}

// splitProviderLine parses an "ip:port:local-path" line from a
// get_rarest_piece_info response.
func splitProviderLine(line string) (endpoint, path string, ok bool) {
	parts := strings.SplitN(line, ":", 3)
	if len(parts) < 3 {
		return "", "", false
	}
	return parts[0] + ":" + parts[1], parts[2], true
}

func fetchPieceFrom(endpoint, groupID, filename string, pieceNumber int) ([]byte, error) {
	cfg := config.Load()

	conn, err := net.DialTimeout("tcp4", endpoint, cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout)); err != nil {
		return nil, err
	}
	req := fmt.Sprintf("request_file_piece %s %d", Key(groupID, filename), pieceNumber)
	if err := wire.SendString(conn, req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout)); err != nil {
		return nil, err
	}
	ack, err := wire.RecvString(conn, cfg.MaxFrameSize)
	if err != nil {
		return nil, fmt.Errorf("read ack: %w", err)
	}
	if ack != "Success" {
		return nil, fmt.Errorf("provider replied %q", ack)
	}

	if err := conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout)); err != nil {
		return nil, err
	}
	data, err := wire.Recv(conn, cfg.MaxFrameSize)
	if err != nil {
		return nil, fmt.Errorf("read piece: %w", err)
	}
	return data, nil
}
