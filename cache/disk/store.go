package disk

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/meigma/blobcache/cache"
)

// stagePrefix names in-flight writes. Staging files never carry an entry
// suffix, so listings ignore them; Init sweeps the ones a crash left behind.
const stagePrefix = ".stage-"

// Store is the file-system boundary of a disk cache: a single flat directory
// of entry files. Implementations must be safe for concurrent use.
type Store interface {
	// Init creates the directory if needed and removes staging files left
	// behind by interrupted writes.
	Init() error

	// List returns the regular files in the directory with their
	// modification times.
	List() ([]Entry, error)

	// ReadFile returns the contents of the named file.
	ReadFile(name string) ([]byte, error)

	// Stage opens a staging file. Commit atomically replaces name with the
	// staged content; Discard removes the staging file.
	Stage(name string) (cache.Writer, error)

	// Remove deletes the named file. Missing files are not an error.
	Remove(name string) error

	// Touch sets the modification time of the named file.
	Touch(name string, mtime time.Time) error
}

// OSStore is a Store over a directory on the local filesystem. All access
// goes through os.Root, so names cannot escape the directory.
type OSStore struct {
	dir     string
	dirPerm os.FileMode
}

var _ Store = (*OSStore)(nil)

// NewOSStore returns a Store rooted at dir, creating it with dirPerm on Init.
func NewOSStore(dir string, dirPerm os.FileMode) *OSStore {
	return &OSStore{dir: dir, dirPerm: dirPerm}
}

// Init creates the directory and sweeps stale staging files.
func (s *OSStore) Init() error {
	if s.dir == "" {
		return errors.New("cache dir is empty")
	}
	if err := os.MkdirAll(s.dir, s.dirPerm); err != nil {
		return err
	}
	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return fmt.Errorf("open cache root: %w", err)
	}
	defer root.Close()

	dirents, err := fs.ReadDir(root.FS(), ".")
	if err != nil {
		return fmt.Errorf("read cache dir: %w", err)
	}
	for _, d := range dirents {
		if strings.HasPrefix(d.Name(), stagePrefix) {
			_ = root.Remove(d.Name())
		}
	}
	return nil
}

// List returns the regular files in the directory.
func (s *OSStore) List() ([]Entry, error) {
	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return nil, fmt.Errorf("open cache root: %w", err)
	}
	defer root.Close()

	dirents, err := fs.ReadDir(root.FS(), ".")
	if err != nil {
		return nil, fmt.Errorf("read cache dir: %w", err)
	}
	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		if !d.Type().IsRegular() {
			continue
		}
		info, err := d.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat cache entry: %w", err)
		}
		entries = append(entries, Entry{
			Name:    d.Name(),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	return entries, nil
}

// ReadFile returns the contents of the named file.
func (s *OSStore) ReadFile(name string) ([]byte, error) {
	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return nil, fmt.Errorf("open cache root: %w", err)
	}
	defer root.Close()
	return root.ReadFile(name)
}

// Stage opens a staging file next to name.
func (s *OSStore) Stage(name string) (cache.Writer, error) {
	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return nil, fmt.Errorf("open cache root: %w", err)
	}
	tmp, tmpPath, err := createTemp(root, stagePrefix+"*")
	if err != nil {
		root.Close()
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	return &osWriter{
		root:      root,
		file:      tmp,
		tmpPath:   tmpPath,
		finalPath: name,
	}, nil
}

// Remove deletes the named file.
func (s *OSStore) Remove(name string) error {
	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return fmt.Errorf("open cache root: %w", err)
	}
	defer root.Close()
	if err := root.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Touch sets the modification time of the named file.
func (s *OSStore) Touch(name string, mtime time.Time) error {
	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return fmt.Errorf("open cache root: %w", err)
	}
	defer root.Close()
	return root.Chtimes(name, mtime, mtime)
}

type osWriter struct {
	root      *os.Root
	file      *os.File
	tmpPath   string
	finalPath string
	done      bool
}

func (w *osWriter) Write(p []byte) (int, error) {
	return w.file.Write(p)
}

func (w *osWriter) Commit() error {
	if w.done {
		return errors.New("staged write already finished")
	}
	w.done = true
	defer w.root.Close()

	if err := w.file.Close(); err != nil {
		_ = w.root.Remove(w.tmpPath)
		return fmt.Errorf("close staging file: %w", err)
	}
	if err := w.root.Rename(w.tmpPath, w.finalPath); err != nil {
		_ = w.root.Remove(w.tmpPath)
		return fmt.Errorf("rename staging file: %w", err)
	}
	return nil
}

func (w *osWriter) Discard() error {
	if w.done {
		return nil
	}
	w.done = true
	defer w.root.Close()

	_ = w.file.Close()
	if err := w.root.Remove(w.tmpPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// createTemp creates a uniquely named file in root for exclusive writing.
func createTemp(root *os.Root, pattern string) (*os.File, string, error) {
	for tries := 0; tries < 10000; tries++ {
		name, err := stageName(pattern)
		if err != nil {
			return nil, "", err
		}
		f, err := root.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return f, name, nil
	}

	return nil, "", errors.New("failed to create temp file")
}

func stageName(pattern string) (string, error) {
	var randBytes [8]byte
	if _, err := rand.Read(randBytes[:]); err != nil {
		return "", err
	}
	return strings.Replace(pattern, "*", hex.EncodeToString(randBytes[:]), 1), nil
}
