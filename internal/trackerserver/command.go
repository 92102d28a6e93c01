// Package trackerserver accepts TCP connections, reads framed command
// lines, and dispatches them against an internal/trackerstate.State.
// Commands are parsed once at the connection boundary into a tagged
// sum of typed command variants, rather than re-splitting and
// re-indexing token slices throughout the handler.
package trackerserver

import (
	"fmt"

	"github.com/arjr-dev/sharenet/internal/model"
)

// Command is the tagged sum of every tracker verb. A connection
// handler type-switches on the concrete type to dispatch.
type Command interface {
	isCommand()
}

type CreateUserCmd struct{ UserID, Password string }
type LoginCmd struct {
	UserID, Password string
	Endpoint         model.Endpoint
}
type LogoutCmd struct{}
type CreateGroupCmd struct{ GroupID string }
type JoinGroupCmd struct{ GroupID string }
type LeaveGroupCmd struct{ GroupID string }
type ListRequestsCmd struct{ GroupID string }
type AcceptRequestCmd struct{ GroupID, UserID string }
type ListGroupsCmd struct{}
type ListFilesCmd struct{ GroupID string }
type UploadFileCmd struct {
	LocalPath, GroupID, WholeHash string
	Size                          int64
	PieceCount                    int
}
type DownloadFileCmd struct{ GroupID, Filename, TargetPath string }
type GetRarestPieceInfoCmd struct{ GroupID, Filename string }
type UpdatePieceInfoCmd struct {
	GroupID, Filename, LocalPath string
	PieceNumber                  int
}
type StopShareCmd struct{ GroupID, Filename string }
type QuitCmd struct{}

func (CreateUserCmd) isCommand()        {}
func (LoginCmd) isCommand()             {}
func (LogoutCmd) isCommand()            {}
func (CreateGroupCmd) isCommand()       {}
func (JoinGroupCmd) isCommand()         {}
func (LeaveGroupCmd) isCommand()        {}
func (ListRequestsCmd) isCommand()      {}
func (AcceptRequestCmd) isCommand()     {}
func (ListGroupsCmd) isCommand()        {}
func (ListFilesCmd) isCommand()         {}
func (UploadFileCmd) isCommand()        {}
func (DownloadFileCmd) isCommand()      {}
func (GetRarestPieceInfoCmd) isCommand() {}
func (UpdatePieceInfoCmd) isCommand()   {}
func (StopShareCmd) isCommand()         {}
func (QuitCmd) isCommand()              {}

// ErrMalformed is returned when a command line is missing required
// arguments or has an argument that fails to parse (e.g. a non-numeric
// size). The tracker replies with a human-readable string and keeps
// the connection open.
type ErrMalformed struct {
	Verb   string
	Reason string
}

func (e *ErrMalformed) Error() string {
	return fmt.Sprintf("malformed %s: %s", e.Verb, e.Reason)
}

func malformed(verb, reason string) error { return &ErrMalformed{Verb: verb, Reason: reason} }

// ParseCommand parses one framed command line into a Command. An empty
// line (after tokenizing) yields (nil, nil), which the caller treats
// as a no-op rather than an error. The framing produces this whenever a
// client sends an empty payload, since Send substitutes a single space.
func ParseCommand(line string) (Command, error) {
	tokens := model.SplitTokens(line)
	if len(tokens) == 0 {
		return nil, nil
	}

	verb, args := tokens[0], tokens[1:]

	switch verb {
	case "create_user":
		if len(args) < 2 {
			return nil, malformed(verb, "want user-id password")
		}
		return CreateUserCmd{UserID: args[0], Password: args[1]}, nil

	case "login":
		if len(args) < 3 {
			return nil, malformed(verb, "want user-id password endpoint")
		}
		ep, err := model.ParseEndpoint(args[2])
		if err != nil {
			return nil, malformed(verb, err.Error())
		}
		return LoginCmd{UserID: args[0], Password: args[1], Endpoint: ep}, nil

	case "logout":
		return LogoutCmd{}, nil

	case "create_group":
		if len(args) < 1 {
			return nil, malformed(verb, "want group-id")
		}
		return CreateGroupCmd{GroupID: args[0]}, nil

	case "join_group":
		if len(args) < 1 {
			return nil, malformed(verb, "want group-id")
		}
		return JoinGroupCmd{GroupID: args[0]}, nil

	case "leave_group":
		if len(args) < 1 {
			return nil, malformed(verb, "want group-id")
		}
		return LeaveGroupCmd{GroupID: args[0]}, nil

	case "list_requests":
		if len(args) < 1 {
			return nil, malformed(verb, "want group-id")
		}
		return ListRequestsCmd{GroupID: args[0]}, nil

	case "accept_request":
		if len(args) < 2 {
			return nil, malformed(verb, "want group-id user-id")
		}
		return AcceptRequestCmd{GroupID: args[0], UserID: args[1]}, nil

	case "list_groups":
		return ListGroupsCmd{}, nil

	case "list_files":
		if len(args) < 1 {
			return nil, malformed(verb, "want group-id")
		}
		return ListFilesCmd{GroupID: args[0]}, nil

	case "upload_file":
		if len(args) < 5 {
			return nil, malformed(verb, "want local-path group-id whole-hash size piece-count")
		}
		size, err := parseInt64(args[3])
		if err != nil {
			return nil, malformed(verb, "invalid size")
		}
		count, err := parseInt(args[4])
		if err != nil || count <= 0 {
			return nil, malformed(verb, "invalid piece-count")
		}
		return UploadFileCmd{
			LocalPath: args[0], GroupID: args[1], WholeHash: args[2],
			Size: size, PieceCount: count,
		}, nil

	case "download_file":
		if len(args) < 3 {
			return nil, malformed(verb, "want group-id filename target-path")
		}
		return DownloadFileCmd{GroupID: args[0], Filename: args[1], TargetPath: args[2]}, nil

	case "get_rarest_piece_info":
		if len(args) < 2 {
			return nil, malformed(verb, "want group-id filename")
		}
		return GetRarestPieceInfoCmd{GroupID: args[0], Filename: args[1]}, nil

	case "update_piece_info":
		if len(args) < 4 {
			return nil, malformed(verb, "want group-id filename local-path piece-number")
		}
		n, err := parseInt(args[3])
		if err != nil {
			return nil, malformed(verb, "invalid piece-number")
		}
		return UpdatePieceInfoCmd{GroupID: args[0], Filename: args[1], LocalPath: args[2], PieceNumber: n}, nil

	case "stop_share":
		if len(args) < 2 {
			return nil, malformed(verb, "want group-id filename")
		}
		return StopShareCmd{GroupID: args[0], Filename: args[1]}, nil

	case "quit":
		return QuitCmd{}, nil

	default:
		return nil, malformed(verb, "unknown command")
	}
}

func parseInt64(s string) (int64, error) {
	var n int64
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}
