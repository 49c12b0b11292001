// Package tokenstore persists session tokens across process restarts.
package tokenstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/aits/core/session"
)

// FileStore keeps the TokenPair as JSON in a file only its owner can read.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ session.Store = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(context.Context) (session.TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pair session.TokenPair
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return pair, nil
		}
		return pair, errors.Wrap(err, "reading token file")
	}
	if err = json.Unmarshal(data, &pair); err != nil {
		return session.TokenPair{}, errors.Wrap(err, "decoding token file")
	}
	return pair, nil
}

// Save replaces the file atomically: readers never observe a partial write.
func (s *FileStore) Save(_ context.Context, pair session.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(pair)
	if err != nil {
		return errors.Wrap(err, "encoding tokens")
	}

	dir := filepath.Dir(s.path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "creating token dir")
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return errors.Wrap(err, "creating temp token file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }() // no-op after the rename

	if err = tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "securing temp token file")
	}
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "writing temp token file")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temp token file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), s.path), "replacing token file")
}

func (s *FileStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing token file")
	}
	return nil
}
