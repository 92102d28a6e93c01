package trackerstate

import (
	"fmt"
	"sort"
	"strings"
)

// CreateGroup creates groupID with sess's user as owner and sole
// member.
func (s *State) CreateGroup(sess *Session, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess == nil {
		return ErrNotLoggedIn
	}
	if _, ok := s.groups[groupID]; ok {
		return ErrGroupExists
	}

	s.groups[groupID] = &Group{
		Owner:   sess.UserID,
		Members: map[string]struct{}{sess.UserID: {}},
		Pending: make(map[string]struct{}),
		Files:   make(map[string]*FileEntry),
	}
	return nil
}

// JoinGroup records sess's user as pending membership in groupID.
func (s *State) JoinGroup(sess *Session, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess == nil {
		return ErrNotLoggedIn
	}
	g, ok := s.groups[groupID]
	if !ok {
		return ErrNoSuchGroup
	}
	if _, ok := g.Members[sess.UserID]; ok {
		return ErrAlreadyMember
	}
	if _, ok := g.Pending[sess.UserID]; ok {
		return ErrAlreadyRequested
	}

	g.Pending[sess.UserID] = struct{}{}
	return nil
}

// LeaveGroup removes sess's user from groupID. If the caller owned the
// group, ownership transfers to the lexicographically smallest
// remaining member; if no members remain, the group is destroyed.
// destroyed reports whether the group no longer exists after the call.
func (s *State) LeaveGroup(sess *Session, groupID string) (destroyed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess == nil {
		return false, ErrNotLoggedIn
	}
	g, ok := s.groups[groupID]
	if !ok {
		return false, ErrNoSuchGroup
	}
	if _, ok := g.Members[sess.UserID]; !ok {
		return false, ErrNotAMember
	}

	delete(g.Members, sess.UserID)
	for _, f := range g.Files {
		f.removeProvider(sess.Endpoint)
	}

	if len(g.Members) == 0 {
		delete(s.groups, groupID)
		return true, nil
	}

	if g.Owner == sess.UserID {
		remaining := sortedKeys(g.Members)
		g.Owner = remaining[0]
	}
	return false, nil
}

// ListRequests returns groupID's pending user-ids, lexicographically
// sorted, for the owner only.
func (s *State) ListRequests(sess *Session, groupID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess == nil {
		return nil, ErrNotLoggedIn
	}
	g, ok := s.groups[groupID]
	if !ok {
		return nil, ErrNoSuchGroup
	}
	if g.Owner != sess.UserID {
		return nil, ErrNotOwner
	}

	return sortedKeys(g.Pending), nil
}

// AcceptRequest moves userID from pending to members of groupID. Only
// the group's owner may call this.
func (s *State) AcceptRequest(sess *Session, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess == nil {
		return ErrNotLoggedIn
	}
	g, ok := s.groups[groupID]
	if !ok {
		return ErrNoSuchGroup
	}
	if g.Owner != sess.UserID {
		return ErrNotOwner
	}
	if _, ok := s.users[userID]; !ok {
		return ErrUnknownUser
	}
	if _, ok := g.Pending[userID]; !ok {
		return ErrNotRequested
	}

	delete(g.Pending, userID)
	g.Members[userID] = struct{}{}
	return nil
}

// GroupListing is one row of a list_groups response.
type GroupListing struct {
	GroupID string
	Owner   string
}

// ListGroups returns every group, sorted by group-id, as
// "group-id<TAB>owner" pairs.
func (s *State) ListGroups(sess *Session) ([]GroupListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess == nil {
		return nil, ErrNotLoggedIn
	}

	ids := make([]string, 0, len(s.groups))
	for id := range s.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]GroupListing, 0, len(ids))
	for _, id := range ids {
		out = append(out, GroupListing{GroupID: id, Owner: s.groups[id].Owner})
	}
	return out, nil
}

// FileListing is one row of a list_files response.
type FileListing struct {
	Filename string
	Size     int64
}

// ListFiles returns groupID's files, sorted by filename, as
// "filename<TAB>size" pairs. Caller must be a member of the group.
func (s *State) ListFiles(sess *Session, groupID string) ([]FileListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess == nil {
		return nil, ErrNotLoggedIn
	}
	g, ok := s.groups[groupID]
	if !ok {
		return nil, ErrNoSuchGroup
	}
	if _, ok := g.Members[sess.UserID]; !ok {
		return nil, ErrNotAMember
	}

	names := make([]string, 0, len(g.Files))
	for name := range g.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]FileListing, 0, len(names))
	for _, name := range names {
		out = append(out, FileListing{Filename: name, Size: g.Files[name].Size})
	}
	return out, nil
}

// FormatGroupListings renders rows the way list_groups replies on the
// wire: a non-empty listing carries a leading blank line before the
// first row; an empty listing is the empty string.
func FormatGroupListings(rows []GroupListing) string {
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = fmt.Sprintf("%s\t%s", r.GroupID, r.Owner)
	}
	return prefixedLines(lines)
}

// FormatFileListings renders rows the way list_files replies on the
// wire: every line, including the last, is newline-terminated, with no
// leading blank line; an empty listing is the empty string.
func FormatFileListings(rows []FileListing) string {
	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%s\t%d\n", r.Filename, r.Size)
	}
	return b.String()
}

// FormatPendingRequests renders a list_requests response: the same
// leading-blank-line-when-non-empty shape as FormatGroupListings.
func FormatPendingRequests(userIDs []string) string {
	return prefixedLines(userIDs)
}

// prefixedLines joins lines the way list_requests/list_groups do on
// the wire: a leading "\n" before the first line when non-empty,
// nothing between lines beyond that same "\n" prefix, and no trailing
// newline.
func prefixedLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return "\n" + strings.Join(lines, "\n")
}
