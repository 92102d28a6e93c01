// Package peeragent implements the peer side of the protocol: serving
// piece reads to other peers and driving downloads against a tracker.
// Every completed piece is reported back to the tracker via
// update_piece_info, and every downloaded piece is verified against
// its advertised hash before being written and acknowledged.
package peeragent

import "sync"

// LocalFile is one file this peer holds on disk, either as the
// original uploader or as a download target/completed download.
type LocalFile struct {
	Path string
}

// LocalFiles is the peer's table of locally known files, keyed by
// "<group-id>::<filename>". Shared between the serve handlers and the
// download driver, so every access is serialized by mu.
type LocalFiles struct {
	mu    sync.Mutex
	files map[string]*LocalFile
}

// NewLocalFiles returns an empty table.
func NewLocalFiles() *LocalFiles {
	return &LocalFiles{files: make(map[string]*LocalFile)}
}

// Key builds the "<group-id>::<filename>" lookup key.
func Key(groupID, filename string) string {
	return groupID + "::" + filename
}

// Put records or replaces the entry for key.
func (l *LocalFiles) Put(key string, f *LocalFile) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.files[key] = f
}

// Get returns the entry for key, or (nil, false).
func (l *LocalFiles) Get(key string) (*LocalFile, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, ok := l.files[key]
	return f, ok
}

// Delete removes key, if present.
func (l *LocalFiles) Delete(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.files, key)
}
