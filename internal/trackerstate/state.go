// Package trackerstate owns the tracker's entire authoritative
// directory: registered users, the set of users currently logged in,
// groups and their membership, and every group's file catalog. All of
// it is shared mutable state guarded by a single mutex — the tracker
// never suspends while holding it; only the network I/O surrounding a
// command happens outside the lock.
package trackerstate

import (
	"errors"
	"sort"
	"sync"

	"github.com/arjr-dev/sharenet/internal/model"
)

// Sentinel errors returned by State methods. Callers in
// internal/trackerserver translate these into the exact response
// strings the command grammar documents; for ErrNotAMember the error's
// own text is the reply.
var (
	ErrAlreadyLoggedIn     = errors.New("already logged in")
	ErrNotLoggedIn         = errors.New("not logged in")
	ErrUserExists          = errors.New("user already exists")
	ErrUnknownUser         = errors.New("unknown user")
	ErrBadCredentials      = errors.New("invalid credentials")
	ErrUserLoggedInElsewhere = errors.New("user already logged in")
	ErrGroupExists         = errors.New("group already exists")
	ErrNoSuchGroup         = errors.New("group does not exist")
	ErrNotAMember          = errors.New("not a member of the group")
	ErrAlreadyMember       = errors.New("already a member")
	ErrAlreadyRequested    = errors.New("already requested")
	ErrNotOwner            = errors.New("unauthorized")
	ErrNotRequested        = errors.New("not requested")
	ErrFileExists          = errors.New("file with same name already exists")
	ErrNoSuchFile          = errors.New("file does not exist")
	ErrInvalidPieceCount   = errors.New("invalid piece count")
	ErrInvalidPieceNumber  = errors.New("invalid piece number")
)

// Session is the (user-id, advertised endpoint) binding a single
// connection holds once logged in. One Session exists per connection;
// it is owned by that connection's handler goroutine, not by State,
// and is threaded through State's methods that need to know who the
// caller is.
type Session struct {
	UserID   string
	Endpoint model.Endpoint
}

// State is the tracker's single directory: users, active logins,
// groups, and every group's files. Every field is guarded by mu.
type State struct {
	mu sync.Mutex

	users        map[string]string        // user-id -> password
	loggedInAs   map[string]model.Endpoint // user-id -> endpoint, only while logged in
	groups       map[string]*Group         // group-id -> group
}

// New returns an empty tracker directory.
func New() *State {
	return &State{
		users:      make(map[string]string),
		loggedInAs: make(map[string]model.Endpoint),
		groups:     make(map[string]*Group),
	}
}

// Group is one access boundary: an owner, a member set, a pending-join
// set, and the files shared within it.
type Group struct {
	Owner   string
	Members map[string]struct{}
	Pending map[string]struct{}
	Files   map[string]*FileEntry // filename -> entry
}

// CreateUser registers a new user-id/password pair. The caller must not
// already be logged in on this connection.
func (s *State) CreateUser(sess *Session, userID, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess != nil {
		return ErrAlreadyLoggedIn
	}
	if _, ok := s.users[userID]; ok {
		return ErrUserExists
	}

	s.users[userID] = password
	return nil
}

// Login validates credentials and returns a new Session bound to
// endpoint. A user-id already logged in from a different connection is
// rejected; a second login attempt must log out first.
func (s *State) Login(sess *Session, userID, password string, endpoint model.Endpoint) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess != nil {
		return nil, ErrAlreadyLoggedIn
	}

	pw, ok := s.users[userID]
	if !ok || pw != password {
		return nil, ErrBadCredentials
	}
	if _, ok := s.loggedInAs[userID]; ok {
		return nil, ErrUserLoggedInElsewhere
	}

	s.loggedInAs[userID] = endpoint
	return &Session{UserID: userID, Endpoint: endpoint}, nil
}

// Logout clears sess's binding and removes its endpoint from every
// piece availability set of every file in every group it belongs to.
// Safe to call on disconnect as well as on an explicit logout command.
func (s *State) Logout(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logoutLocked(sess)
}

func (s *State) logoutLocked(sess *Session) {
	if sess == nil {
		return
	}

	delete(s.loggedInAs, sess.UserID)

	for _, g := range s.groups {
		if _, member := g.Members[sess.UserID]; !member {
			continue
		}
		for _, f := range g.Files {
			f.removeProvider(sess.Endpoint)
		}
	}
}

// sortedKeys returns the keys of a string-keyed set in ascending
// lexicographic order, used wherever a deterministic choice among a
// set is needed (e.g. ownership transfer).
func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
