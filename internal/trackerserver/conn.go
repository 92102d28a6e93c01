package trackerserver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/arjr-dev/sharenet/internal/config"
	"github.com/arjr-dev/sharenet/internal/trackerstate"
	"github.com/arjr-dev/sharenet/internal/wire"
)

// handleConn owns one client connection end to end: it reads framed
// command lines, dispatches each against s.state, writes the response,
// and on EOF or quit tears the session down exactly as an explicit
// logout would.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	log := s.log.With("remote", remote)
	log.Info("connection accepted")

	var sess *trackerstate.Session
	defer func() {
		if sess != nil {
			s.state.Logout(sess)
			log.Info("session torn down", "user", sess.UserID)
		}
	}()

	cfg := config.Load()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout)); err != nil {
			log.Warn("set read deadline", "error", err)
			return
		}

		line, err := wire.RecvString(conn, s.maxFrameSize())
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Info("connection closed by peer")
				return
			}
			log.Warn("frame read failed", "error", err)
			return
		}

		resp, quit := s.dispatch(conn, log, &sess, line)
		if err := s.writeReply(conn, resp); err != nil {
			log.Warn("frame write failed", "error", err)
			return
		}
		if quit {
			return
		}
	}
}

func (s *Server) writeReply(conn net.Conn, text string) error {
	cfg := config.Load()
	if err := conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout)); err != nil {
		return err
	}
	return wire.SendString(conn, text)
}

// dispatch parses and executes a single command line. sess is threaded
// through by pointer since login/logout mutate the connection's bound
// session. quit reports whether the caller should close the connection
// after writing resp; of all the commands, only QuitCmd sets it.
func (s *Server) dispatch(conn net.Conn, log *slog.Logger, sess **trackerstate.Session, line string) (resp string, quit bool) {
	cmd, err := ParseCommand(line)
	if err != nil {
		return err.Error(), false
	}
	if cmd == nil {
		return "", false
	}

	st := s.state

	switch c := cmd.(type) {
	case CreateUserCmd:
		if err := st.CreateUser(*sess, c.UserID, c.Password); err != nil {
			return translateErr(err), false
		}
		return "user created", false

	case LoginCmd:
		newSess, err := st.Login(*sess, c.UserID, c.Password, c.Endpoint)
		if err != nil {
			return translateErr(err), false
		}
		*sess = newSess
		return "logged in", false

	case LogoutCmd:
		if *sess == nil {
			return translateErr(trackerstate.ErrNotLoggedIn), false
		}
		st.Logout(*sess)
		*sess = nil
		return "logged out", false

	case CreateGroupCmd:
		if err := st.CreateGroup(*sess, c.GroupID); err != nil {
			return translateErr(err), false
		}
		return "group created", false

	case JoinGroupCmd:
		if err := st.JoinGroup(*sess, c.GroupID); err != nil {
			return translateErr(err), false
		}
		return "request sent", false

	case LeaveGroupCmd:
		destroyed, err := st.LeaveGroup(*sess, c.GroupID)
		if err != nil {
			return translateErr(err), false
		}
		if destroyed {
			return "last member. deleting group", false
		}
		return "left group", false

	case ListRequestsCmd:
		rows, err := st.ListRequests(*sess, c.GroupID)
		if err != nil {
			return translateErr(err), false
		}
		return trackerstate.FormatPendingRequests(rows), false

	case AcceptRequestCmd:
		if err := st.AcceptRequest(*sess, c.GroupID, c.UserID); err != nil {
			return translateErr(err), false
		}
		return "request accepted", false

	case ListGroupsCmd:
		rows, err := st.ListGroups(*sess)
		if err != nil {
			return translateErr(err), false
		}
		return trackerstate.FormatGroupListings(rows), false

	case ListFilesCmd:
		rows, err := st.ListFiles(*sess, c.GroupID)
		if err != nil {
			return translateErr(err), false
		}
		return trackerstate.FormatFileListings(rows), false

	case UploadFileCmd:
		return s.handleUpload(conn, log, *sess, c), false

	case DownloadFileCmd:
		meta, err := st.DownloadFile(*sess, c.GroupID, c.Filename)
		if err != nil {
			return translateErr(err), false
		}
		return formatDownloadMetadata(meta), false

	case GetRarestPieceInfoCmd:
		pieceNum, providers, err := st.RarestPieceInfo(*sess, c.GroupID, c.Filename)
		if err != nil {
			return translateErr(err), false
		}
		if providers == nil {
			return "", false
		}
		return formatRarestPiece(pieceNum, providers), false

	case UpdatePieceInfoCmd:
		if err := st.UpdatePieceInfo(*sess, c.GroupID, c.Filename, c.LocalPath, c.PieceNumber); err != nil {
			return translateErr(err), false
		}
		return "piece info updated", false

	case StopShareCmd:
		if err := st.StopShare(*sess, c.GroupID, c.Filename); err != nil {
			return translateErr(err), false
		}
		return "stopped sharing", false

	case QuitCmd:
		return "bye", true

	default:
		return malformed("unknown", "unrecognized command variant").Error(), false
	}
}

// handleUpload runs the upload_file sub-protocol: reply "Success",
// read exactly PieceCount framed hash lines, then commit the entry and
// reply "file uploaded".
func (s *Server) handleUpload(conn net.Conn, log *slog.Logger, sess *trackerstate.Session, c UploadFileCmd) string {
	filename, err := s.state.CheckUploadPreconditions(sess, c.GroupID, c.LocalPath, c.Size, c.PieceCount)
	if err != nil {
		return translateErr(err)
	}

	if err := s.writeReply(conn, "Success"); err != nil {
		log.Warn("upload ack failed", "error", err)
		return ""
	}

	hashes := make([]string, 0, c.PieceCount)
	for i := 0; i < c.PieceCount; i++ {
		if err := conn.SetReadDeadline(time.Now().Add(config.Load().ReadTimeout)); err != nil {
			log.Warn("upload hash read deadline", "error", err)
			return ""
		}
		h, err := wire.RecvString(conn, s.maxFrameSize())
		if err != nil {
			log.Warn("upload hash read failed", "error", err, "index", i)
			return ""
		}
		hashes = append(hashes, strings.TrimSpace(h))
	}

	wholeHash := c.WholeHash
	if err := s.state.CommitUpload(sess, c.GroupID, filename, wholeHash, c.Size, hashes, c.LocalPath); err != nil {
		return translateErr(err)
	}

	return "file uploaded"
}

func formatDownloadMetadata(meta trackerstate.DownloadMetadata) string {
	lines := make([]string, 0, 2+len(meta.PieceHashes))
	lines = append(lines, "Success")
	lines = append(lines, fmt.Sprintf("%s %s %d %s %d", meta.GroupID, meta.Filename, meta.Size, meta.Hash, len(meta.PieceHashes)))
	lines = append(lines, meta.PieceHashes...)
	return strings.Join(lines, "\n")
}

func formatRarestPiece(pieceNumber int, providers []trackerstate.Provider) string {
	lines := make([]string, 0, 2+len(providers))
	lines = append(lines, "Success")
	lines = append(lines, fmt.Sprintf("%d", pieceNumber))
	for _, p := range providers {
		lines = append(lines, fmt.Sprintf("%s:%s", p.Endpoint.String(), p.Path))
	}
	return strings.Join(lines, "\n")
}

// translateErr renders a trackerstate sentinel error as the exact
// human-readable reply text the wire protocol expects.
func translateErr(err error) string {
	switch {
	case errors.Is(err, trackerstate.ErrAlreadyLoggedIn):
		return "already logged in"
	case errors.Is(err, trackerstate.ErrNotLoggedIn):
		return "not logged in"
	case errors.Is(err, trackerstate.ErrUserExists):
		return "user already exists"
	case errors.Is(err, trackerstate.ErrUnknownUser):
		return "unknown user"
	case errors.Is(err, trackerstate.ErrBadCredentials):
		return "invalid credentials"
	case errors.Is(err, trackerstate.ErrUserLoggedInElsewhere):
		return "user already logged in"
	case errors.Is(err, trackerstate.ErrGroupExists):
		return "group already exists"
	case errors.Is(err, trackerstate.ErrNoSuchGroup):
		return "no such group"
	case errors.Is(err, trackerstate.ErrNotAMember):
		return err.Error()
	case errors.Is(err, trackerstate.ErrAlreadyMember):
		return "already a member"
	case errors.Is(err, trackerstate.ErrAlreadyRequested):
		return "already requested"
	case errors.Is(err, trackerstate.ErrNotOwner):
		return "unauthorized"
	case errors.Is(err, trackerstate.ErrNotRequested):
		return "not requested"
	case errors.Is(err, trackerstate.ErrFileExists):
		return "file already exists"
	case errors.Is(err, trackerstate.ErrNoSuchFile):
		return "no such file"
	case errors.Is(err, trackerstate.ErrInvalidPieceCount):
		return "invalid piece count"
	case errors.Is(err, trackerstate.ErrInvalidPieceNumber):
		return "invalid piece number"
	default:
		return err.Error()
	}
}
