package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/arjr-dev/sharenet/internal/model"
	"github.com/arjr-dev/sharenet/internal/peeragent"
)

// shell is a plain line-oriented REPL over stdin that either runs a
// local peer-agent action (upload_file, download_file, quit) or passes
// the line straight through to the tracker. It is an external
// collaborator of the core download/serve logic, not part of it.
type shell struct {
	in          *bufio.Scanner
	out         io.Writer
	trackerConn net.Conn
	self        model.Endpoint
	files       *peeragent.LocalFiles
	log         *slog.Logger
}

func newShell(in io.Reader, out io.Writer, trackerConn net.Conn, self model.Endpoint, files *peeragent.LocalFiles, log *slog.Logger) *shell {
	return &shell{in: bufio.NewScanner(in), out: out, trackerConn: trackerConn, self: self, files: files, log: log}
}

// run reads commands until stdin closes, a quit command is issued, or
// ctx is canceled. sh.in.Scan() blocks on stdin and cannot itself be
// interrupted by ctx, so the read runs on its own goroutine feeding a
// channel, letting run select between the next line and ctx.Done().
func (sh *shell) run(ctx context.Context) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			fmt.Fprint(sh.out, "> ")
			if !sh.in.Scan() {
				return
			}
			select {
			case lines <- sh.in.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return
		case line, ok = <-lines:
			if !ok {
				return
			}
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		tokens := model.SplitTokens(line)

		switch tokens[0] {
		case "quit":
			peeragent.Call(sh.trackerConn, "quit")
			return

		case "upload_file":
			sh.runUpload(tokens)

		case "download_file":
			sh.runDownload(tokens)

		case "login":
			sh.runLogin(line, tokens)

		default:
			sh.passThrough(line)
		}
	}
}

func (sh *shell) runUpload(tokens []string) {
	if len(tokens) != 3 {
		fmt.Fprintln(sh.out, "usage: upload_file <local-path> <group-id>")
		return
	}
	resp, err := peeragent.UploadFile(sh.trackerConn, tokens[1], tokens[2], sh.files)
	if err != nil {
		fmt.Fprintln(sh.out, "error:", err)
		return
	}
	fmt.Fprintln(sh.out, "Server:", resp)
}

func (sh *shell) runDownload(tokens []string) {
	if len(tokens) != 4 {
		fmt.Fprintln(sh.out, "usage: download_file <group-id> <filename> <target-path>")
		return
	}
	groupID, filename, targetPath := tokens[1], tokens[2], tokens[3]

	resp, err := peeragent.Call(sh.trackerConn, fmt.Sprintf("download_file %s %s %s", groupID, filename, targetPath))
	if err != nil {
		fmt.Fprintln(sh.out, "error:", err)
		return
	}

	meta, err := peeragent.ParseDownloadMetadata(resp)
	if err != nil {
		fmt.Fprintln(sh.out, "Server:", resp)
		return
	}

	go func() {
		if err := peeragent.DownloadFile(sh.trackerConn, meta, targetPath, sh.files, sh.log); err != nil {
			sh.log.Warn("download failed", "group", groupID, "filename", filename, "error", err)
		}
	}()
}

// runLogin appends this peer's own endpoint to the login command, the
// way the interactive client always has (a peer only ever logs itself
// in as the endpoint it is listening on).
func (sh *shell) runLogin(line string, tokens []string) {
	if len(tokens) != 3 {
		fmt.Fprintln(sh.out, "usage: login <user-id> <password>")
		return
	}
	sh.passThrough(fmt.Sprintf("%s %s", line, sh.self.String()))
}

func (sh *shell) passThrough(line string) {
	resp, err := peeragent.Call(sh.trackerConn, line)
	if err != nil {
		fmt.Fprintln(sh.out, "error:", err)
		return
	}
	fmt.Fprintln(sh.out, "Server:", resp)
}
