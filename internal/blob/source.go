// Package blob provides read access to named immutable blobs (catalog
// snapshots) on local disk, S3, MinIO or memory, plus transparent
// decompression chosen by file extension.
package blob

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations return an error that satisfies errors.Is(err, ErrNotFound).
var ErrNotFound = os.ErrNotExist

// Source opens blobs by name.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Local reads blobs from a directory.
type Local struct {
	root string
}

// NewLocal creates a Local source rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{root: dir}
}

// Open opens root/name.
func (s *Local) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(name)))
	if err != nil {
		return nil, err // *PathError wraps os.ErrNotExist
	}
	return f, nil
}

// Memory is an in-process Source, safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemory creates an empty Memory source.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

// Put stores a copy of data under name.
func (s *Memory) Put(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[name] = bytes.Clone(data)
}

// Delete removes name.
func (s *Memory) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, name)
}

// Open returns a reader over the stored bytes.
func (s *Memory) Open(_ context.Context, name string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[name]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
