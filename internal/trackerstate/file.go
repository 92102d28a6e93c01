package trackerstate

import (
	"path/filepath"

	"github.com/arjr-dev/sharenet/internal/model"
)

// FileEntry is one uploaded file's tracker-side metadata: size, whole
// and per-piece SHA-1 hashes, and, per piece, the set of provider
// endpoints that currently hold it plus each provider's local path for
// the file.
type FileEntry struct {
	Size        int64
	Hash        string
	PieceHashes []string

	availability []map[model.Endpoint]struct{} // len == len(PieceHashes)
	providerPath map[model.Endpoint]string
}

func newFileEntry(size int64, hash string, pieceHashes []string, uploader model.Endpoint, uploaderPath string) *FileEntry {
	availability := make([]map[model.Endpoint]struct{}, len(pieceHashes))
	for i := range availability {
		availability[i] = map[model.Endpoint]struct{}{uploader: {}}
	}

	return &FileEntry{
		Size:         size,
		Hash:         hash,
		PieceHashes:  pieceHashes,
		availability: availability,
		providerPath: map[model.Endpoint]string{uploader: uploaderPath},
	}
}

// PieceCount reports how many pieces this file has.
func (f *FileEntry) PieceCount() int { return len(f.PieceHashes) }

// Availability returns a copy of the provider set for piece index
// (0-based).
func (f *FileEntry) Availability(index int) []model.Endpoint {
	if index < 0 || index >= len(f.availability) {
		return nil
	}
	out := make([]model.Endpoint, 0, len(f.availability[index]))
	for ep := range f.availability[index] {
		out = append(out, ep)
	}
	return out
}

func (f *FileEntry) removeProvider(ep model.Endpoint) {
	for _, set := range f.availability {
		delete(set, ep)
	}
	delete(f.providerPath, ep)
}

// UploadFilename returns the name a group stores a file under: the
// basename of the uploader's local path.
func UploadFilename(localPath string) string {
	return filepath.Base(localPath)
}

// CheckUploadPreconditions validates an upload_file request before the
// caller reads the piece hashes off the wire: logged in, group exists,
// caller is a member, no file of this name already exists in the
// group, and the declared piece count matches what size actually
// splits into. It returns the resolved filename.
func (s *State) CheckUploadPreconditions(sess *Session, groupID, localPath string, size int64, pieceCount int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess == nil {
		return "", ErrNotLoggedIn
	}
	g, ok := s.groups[groupID]
	if !ok {
		return "", ErrNoSuchGroup
	}
	if _, ok := g.Members[sess.UserID]; !ok {
		return "", ErrNotAMember
	}

	filename := UploadFilename(localPath)
	if _, ok := g.Files[filename]; ok {
		return "", ErrFileExists
	}
	if pieceCount <= 0 || pieceCount != model.PieceCount(size) {
		return "", ErrInvalidPieceCount
	}

	return filename, nil
}

// CommitUpload inserts the fully-read file entry into groupID,
// re-validating that the filename is still free (another upload may
// have completed concurrently). The uploader is installed as the sole
// provider of every piece.
func (s *State) CommitUpload(sess *Session, groupID, filename, wholeHash string, size int64, pieceHashes []string, localPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess == nil {
		return ErrNotLoggedIn
	}
	g, ok := s.groups[groupID]
	if !ok {
		return ErrNoSuchGroup
	}
	if _, ok := g.Files[filename]; ok {
		return ErrFileExists
	}

	g.Files[filename] = newFileEntry(size, wholeHash, pieceHashes, sess.Endpoint, localPath)
	return nil
}

// DownloadMetadata is the resolved response to download_file.
type DownloadMetadata struct {
	GroupID     string
	Filename    string
	Size        int64
	Hash        string
	PieceHashes []string
}

// DownloadFile returns the metadata block for groupID/filename.
func (s *State) DownloadFile(sess *Session, groupID, filename string) (DownloadMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess == nil {
		return DownloadMetadata{}, ErrNotLoggedIn
	}
	g, ok := s.groups[groupID]
	if !ok {
		return DownloadMetadata{}, ErrNoSuchGroup
	}
	f, ok := g.Files[filename]
	if !ok {
		return DownloadMetadata{}, ErrNoSuchFile
	}

	return DownloadMetadata{
		GroupID:     groupID,
		Filename:    filename,
		Size:        f.Size,
		Hash:        f.Hash,
		PieceHashes: append([]string(nil), f.PieceHashes...),
	}, nil
}

// Provider is one entry of a get_rarest_piece_info response: an
// endpoint and the local path it claims to serve the file from.
type Provider struct {
	Endpoint model.Endpoint
	Path     string
}

// RarestPieceInfo returns the 1-indexed rarest piece number and its
// providers for groupID/filename, as seen by sess's endpoint. See
// rarest.go for the selection algorithm.
func (s *State) RarestPieceInfo(sess *Session, groupID, filename string) (pieceNumber int, providers []Provider, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess == nil {
		return 0, nil, ErrNotLoggedIn
	}
	g, ok := s.groups[groupID]
	if !ok {
		return 0, nil, ErrNoSuchGroup
	}
	if _, ok := g.Members[sess.UserID]; !ok {
		return 0, nil, ErrNotAMember
	}
	f, ok := g.Files[filename]
	if !ok {
		return 0, nil, ErrNoSuchFile
	}

	index, found := rarestPieceIndex(f.availability, sess.Endpoint)
	if !found {
		return 0, nil, nil
	}

	providers = make([]Provider, 0, len(f.availability[index]))
	for ep := range f.availability[index] {
		providers = append(providers, Provider{Endpoint: ep, Path: f.providerPath[ep]})
	}

	return index + 1, providers, nil
}

// UpdatePieceInfo records sess's endpoint as a provider of piece
// pieceNumber (1-indexed) of groupID/filename, and records localPath as
// its path for the file.
func (s *State) UpdatePieceInfo(sess *Session, groupID, filename, localPath string, pieceNumber int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess == nil {
		return ErrNotLoggedIn
	}
	g, ok := s.groups[groupID]
	if !ok {
		return ErrNoSuchGroup
	}
	f, ok := g.Files[filename]
	if !ok {
		return ErrNoSuchFile
	}
	if pieceNumber <= 0 || pieceNumber > len(f.availability) {
		return ErrInvalidPieceNumber
	}

	index := pieceNumber - 1
	f.availability[index][sess.Endpoint] = struct{}{}
	f.providerPath[sess.Endpoint] = localPath
	return nil
}

// StopShare removes sess's endpoint from every piece's availability
// set of groupID/filename, so it stops being offered as a provider for
// any piece of that file.
func (s *State) StopShare(sess *Session, groupID, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess == nil {
		return ErrNotLoggedIn
	}
	g, ok := s.groups[groupID]
	if !ok {
		return ErrNoSuchGroup
	}
	f, ok := g.Files[filename]
	if !ok {
		return ErrNoSuchFile
	}

	f.removeProvider(sess.Endpoint)
	return nil
}
