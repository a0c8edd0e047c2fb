package throttle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FileStore keeps one JSON file per key in a directory. Read-modify-write
// cycles hold an exclusive advisory lock on the file, so separate processes
// sharing the directory serialize their updates.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed store rooted at dir, creating the
// directory if it does not exist.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating throttle directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Load reads the window for key under a shared lock.
func (s *FileStore) Load(_ context.Context, key string) (*Window, error) {
	f, err := os.Open(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return &Window{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening throttle file: %w", err)
	}
	defer f.Close()

	if err := lockFile(f, false); err != nil {
		return nil, fmt.Errorf("locking throttle file: %w", err)
	}
	defer unlockFile(f)

	return readWindow(f)
}

// Update rewrites the window in place while holding an exclusive lock.
// The file is never replaced, so a concurrent writer always locks the same
// inode.
func (s *FileStore) Update(_ context.Context, key string, _ time.Duration, fn func(*Window)) error {
	f, err := os.OpenFile(s.path(key), os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("opening throttle file: %w", err)
	}
	defer f.Close()

	if err := lockFile(f, true); err != nil {
		return fmt.Errorf("locking throttle file: %w", err)
	}
	defer unlockFile(f)

	w, err := readWindow(f)
	if err != nil {
		return err
	}

	fn(w)

	data, err := encodeWindow(w)
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncating throttle file: %w", err)
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		return fmt.Errorf("writing throttle file: %w", err)
	}
	return f.Sync()
}

// Delete empties the file for key under an exclusive lock. The file is
// truncated rather than unlinked so a writer already waiting on the lock
// keeps using the same inode and its failure is not lost.
func (s *FileStore) Delete(_ context.Context, key string) error {
	f, err := os.OpenFile(s.path(key), os.O_RDWR, 0o600)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening throttle file: %w", err)
	}
	defer f.Close()

	if err := lockFile(f, true); err != nil {
		return fmt.Errorf("locking throttle file: %w", err)
	}
	defer unlockFile(f)

	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncating throttle file: %w", err)
	}
	return f.Sync()
}

// readWindow decodes the file from the start. An empty file is an empty
// window.
func readWindow(f *os.File) (*Window, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking throttle file: %w", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading throttle file: %w", err)
	}
	if len(data) == 0 {
		return &Window{}, nil
	}
	return decodeWindow(data)
}

func encodeWindow(w *Window) ([]byte, error) {
	if w.Attempts == nil {
		w.Attempts = []int64{}
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encoding throttle window: %w", err)
	}
	return data, nil
}
