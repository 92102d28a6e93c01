package trackerstate

import (
	"errors"
	"testing"

	"github.com/arjr-dev/sharenet/internal/model"
)

func mustEndpoint(t *testing.T, s string) model.Endpoint {
	t.Helper()
	ep, err := model.ParseEndpoint(s)
	if err != nil {
		t.Fatalf("ParseEndpoint(%q): %v", s, err)
	}
	return ep
}

func login(t *testing.T, s *State, userID, password, endpoint string) *Session {
	t.Helper()
	if err := s.CreateUser(nil, userID, password); err != nil {
		t.Fatalf("CreateUser(%s): %v", userID, err)
	}
	sess, err := s.Login(nil, userID, password, mustEndpoint(t, endpoint))
	if err != nil {
		t.Fatalf("Login(%s): %v", userID, err)
	}
	return sess
}

func TestGroupOwnershipTransferOnLeave(t *testing.T) {
	s := New()
	alice := login(t, s, "alice", "pw", "10.0.0.1:9000")
	bob := login(t, s, "bob", "pw", "10.0.0.2:9000")
	carol := login(t, s, "carol", "pw", "10.0.0.3:9000")

	if err := s.CreateGroup(alice, "g"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := s.JoinGroup(bob, "g"); err != nil {
		t.Fatalf("JoinGroup(bob): %v", err)
	}
	if err := s.AcceptRequest(alice, "g", "bob"); err != nil {
		t.Fatalf("AcceptRequest(bob): %v", err)
	}
	if err := s.JoinGroup(carol, "g"); err != nil {
		t.Fatalf("JoinGroup(carol): %v", err)
	}
	if err := s.AcceptRequest(alice, "g", "carol"); err != nil {
		t.Fatalf("AcceptRequest(carol): %v", err)
	}

	destroyed, err := s.LeaveGroup(alice, "g")
	if err != nil {
		t.Fatalf("LeaveGroup(alice): %v", err)
	}
	if destroyed {
		t.Fatalf("group destroyed with members remaining")
	}

	g := s.groups["g"]
	if g.Owner != "bob" {
		t.Fatalf("owner = %q, want bob (lexicographically smallest remaining member)", g.Owner)
	}
	if _, ok := g.Members[g.Owner]; !ok {
		t.Fatalf("invariant violated: owner %q not in members", g.Owner)
	}
	for m := range g.Pending {
		if _, ok := g.Members[m]; ok {
			t.Fatalf("invariant violated: %q is both pending and a member", m)
		}
	}
}

func TestGroupDestroyedWhenEmpty(t *testing.T) {
	s := New()
	alice := login(t, s, "alice", "pw", "10.0.0.1:9000")

	if err := s.CreateGroup(alice, "g"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	destroyed, err := s.LeaveGroup(alice, "g")
	if err != nil {
		t.Fatalf("LeaveGroup: %v", err)
	}
	if !destroyed {
		t.Fatalf("expected group to be destroyed")
	}
	if _, ok := s.groups["g"]; ok {
		t.Fatalf("group still present after last member left")
	}
}

func TestUploadPieceCountAndAvailabilityInvariant(t *testing.T) {
	s := New()
	alice := login(t, s, "alice", "pw", "10.0.0.1:9000")
	if err := s.CreateGroup(alice, "g"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	hashes := []string{"h0", "h1"}
	filename, err := s.CheckUploadPreconditions(alice, "g", "/tmp/hello.bin", 600000, len(hashes))
	if err != nil {
		t.Fatalf("CheckUploadPreconditions: %v", err)
	}
	if filename != "hello.bin" {
		t.Fatalf("filename = %q, want hello.bin", filename)
	}

	if err := s.CommitUpload(alice, "g", filename, "wholehash", 600000, hashes, "/tmp/hello.bin"); err != nil {
		t.Fatalf("CommitUpload: %v", err)
	}

	meta, err := s.DownloadFile(alice, "g", filename)
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	if len(meta.PieceHashes) != len(hashes) {
		t.Fatalf("piece count = %d, want %d", len(meta.PieceHashes), len(hashes))
	}

	f := s.groups["g"].Files[filename]
	if len(f.availability) != len(hashes) {
		t.Fatalf("availability sets = %d, want %d", len(f.availability), len(hashes))
	}
	for i, set := range f.availability {
		if _, ok := set[alice.Endpoint]; !ok {
			t.Fatalf("piece %d missing uploader as initial provider", i)
		}
	}
}

func TestStopShareRemovesProviderFromEveryPiece(t *testing.T) {
	s := New()
	alice := login(t, s, "alice", "pw", "10.0.0.1:9000")
	if err := s.CreateGroup(alice, "g"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	hashes := []string{"h0", "h1", "h2"}
	if _, err := s.CheckUploadPreconditions(alice, "g", "/tmp/f.bin", 1572864, len(hashes)); err != nil {
		t.Fatalf("CheckUploadPreconditions: %v", err)
	}
	if err := s.CommitUpload(alice, "g", "f.bin", "wh", 1572864, hashes, "/tmp/f.bin"); err != nil {
		t.Fatalf("CommitUpload: %v", err)
	}

	if err := s.StopShare(alice, "g", "f.bin"); err != nil {
		t.Fatalf("StopShare: %v", err)
	}

	f := s.groups["g"].Files["f.bin"]
	for i, set := range f.availability {
		if _, ok := set[alice.Endpoint]; ok {
			t.Fatalf("piece %d still lists provider after stop_share", i)
		}
	}
}

func TestLogoutRemovesProviderAcrossAllGroups(t *testing.T) {
	s := New()
	alice := login(t, s, "alice", "pw", "10.0.0.1:9000")
	if err := s.CreateGroup(alice, "g1"); err != nil {
		t.Fatalf("CreateGroup g1: %v", err)
	}
	if err := s.CreateGroup(alice, "g2"); err != nil {
		t.Fatalf("CreateGroup g2: %v", err)
	}
	for _, gid := range []string{"g1", "g2"} {
		if _, err := s.CheckUploadPreconditions(alice, gid, "/tmp/f.bin", 10, 1); err != nil {
			t.Fatalf("CheckUploadPreconditions(%s): %v", gid, err)
		}
		if err := s.CommitUpload(alice, gid, "f.bin", "wh", 10, []string{"h0"}, "/tmp/f.bin"); err != nil {
			t.Fatalf("CommitUpload(%s): %v", gid, err)
		}
	}

	s.Logout(alice)

	for _, gid := range []string{"g1", "g2"} {
		f := s.groups[gid].Files["f.bin"]
		if _, ok := f.availability[0][alice.Endpoint]; ok {
			t.Fatalf("group %s still lists provider after logout", gid)
		}
	}
}

func TestRarestPieceSelectionExcludesCallerAndBreaksTiesToFirst(t *testing.T) {
	s := New()
	alice := login(t, s, "alice", "pw", "10.0.0.1:9000")
	bob := login(t, s, "bob", "pw", "10.0.0.2:9000")
	carol := login(t, s, "carol", "pw", "10.0.0.3:9000")

	if err := s.CreateGroup(alice, "g"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := s.JoinGroup(bob, "g"); err != nil {
		t.Fatalf("JoinGroup(bob): %v", err)
	}
	if err := s.AcceptRequest(alice, "g", "bob"); err != nil {
		t.Fatalf("AcceptRequest(bob): %v", err)
	}
	if err := s.JoinGroup(carol, "g"); err != nil {
		t.Fatalf("JoinGroup(carol): %v", err)
	}
	if err := s.AcceptRequest(alice, "g", "carol"); err != nil {
		t.Fatalf("AcceptRequest(carol): %v", err)
	}

	hashes := []string{"h0", "h1", "h2"}
	if _, err := s.CheckUploadPreconditions(alice, "g", "/tmp/f.bin", 1572864, len(hashes)); err != nil {
		t.Fatalf("CheckUploadPreconditions: %v", err)
	}
	if err := s.CommitUpload(alice, "g", "f.bin", "wh", 1572864, hashes, "/tmp/f.bin"); err != nil {
		t.Fatalf("CommitUpload: %v", err)
	}
	// All three pieces start with availability {alice}=1. Bob now also
	// provides piece 0, so piece 0 is at count 2 and is excluded from
	// bob's own lookup; pieces 1 and 2 remain tied at count 1, and the
	// first one encountered, index 1, wins.
	if err := s.UpdatePieceInfo(bob, "g", "f.bin", "/tmp/b.bin", 1); err != nil {
		t.Fatalf("UpdatePieceInfo: %v", err)
	}

	pieceNum, providers, err := s.RarestPieceInfo(bob, "g", "f.bin")
	if err != nil {
		t.Fatalf("RarestPieceInfo: %v", err)
	}
	if pieceNum != 2 {
		t.Fatalf("rarest piece = %d, want 2 (1-indexed piece index 1)", pieceNum)
	}
	if len(providers) != 1 || providers[0].Endpoint != alice.Endpoint {
		t.Fatalf("providers = %+v, want just alice", providers)
	}

	// Alice already has every piece (she is the uploader and a
	// provider of all three); the rarest lookup for her must report
	// "no such piece".
	_, _, err = s.RarestPieceInfo(alice, "g", "f.bin")
	if err != nil {
		t.Fatalf("RarestPieceInfo(alice): %v", err)
	}
	noPiece, _, err := s.RarestPieceInfo(alice, "g", "f.bin")
	if err != nil || noPiece != 0 {
		t.Fatalf("expected no rarest piece for a full provider, got piece=%d err=%v", noPiece, err)
	}
}

func TestSecondLoginFromDifferentEndpointIsRejected(t *testing.T) {
	s := New()
	if err := s.CreateUser(nil, "alice", "pw"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := s.Login(nil, "alice", "pw", mustEndpoint(t, "10.0.0.1:9000")); err != nil {
		t.Fatalf("first Login: %v", err)
	}

	_, err := s.Login(nil, "alice", "pw", mustEndpoint(t, "10.0.0.2:9000"))
	if !errors.Is(err, ErrUserLoggedInElsewhere) {
		t.Fatalf("second Login error = %v, want ErrUserLoggedInElsewhere", err)
	}
}
