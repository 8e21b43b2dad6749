package disk

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmgilman/go/fs/core"

	"github.com/meigma/blobcache/cache"
)

// FSStore is a Store over a directory of any core.FS, such as the in-memory
// or local filesystems from github.com/jmgilman/go/fs/billy.
//
// Entry ages come from the filesystem's reported modification times. Touch
// needs a filesystem that implements core.MetadataFS; on any other it is a
// no-op and entries keep whatever times the filesystem records.
type FSStore struct {
	fsys    core.FS
	dir     string
	dirPerm fs.FileMode
}

var _ Store = (*FSStore)(nil)

// NewFSStore returns a Store rooted at dir within fsys.
func NewFSStore(fsys core.FS, dir string, dirPerm fs.FileMode) *FSStore {
	return &FSStore{fsys: fsys, dir: dir, dirPerm: dirPerm}
}

func (s *FSStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

// Init creates the directory and sweeps stale staging files.
func (s *FSStore) Init() error {
	if s.fsys == nil {
		return errors.New("filesystem cannot be nil")
	}
	if s.dir == "" {
		return errors.New("cache dir is empty")
	}
	if err := s.fsys.MkdirAll(s.dir, s.dirPerm); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	dirents, err := s.fsys.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read cache dir: %w", err)
	}
	for _, d := range dirents {
		if strings.HasPrefix(d.Name(), stagePrefix) {
			_ = s.fsys.Remove(s.path(d.Name()))
		}
	}
	return nil
}

// List returns the regular files in the directory.
func (s *FSStore) List() ([]Entry, error) {
	dirents, err := s.fsys.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read cache dir: %w", err)
	}
	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		info, err := d.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat cache entry: %w", err)
		}
		if !info.Mode().IsRegular() {
			continue
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
func (s *FSStore) ReadFile(name string) ([]byte, error) {
	return s.fsys.ReadFile(s.path(name))
}

// Stage opens a staging file in the store's directory.
func (s *FSStore) Stage(name string) (cache.Writer, error) {
	for tries := 0; tries < 10000; tries++ {
		tmpName, err := stageName(stagePrefix + "*")
		if err != nil {
			return nil, err
		}
		tmpPath := s.path(tmpName)
		f, err := s.fsys.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create staging file: %w", err)
		}
		return &fsWriter{
			fsys:      s.fsys,
			file:      f,
			tmpPath:   tmpPath,
			finalPath: s.path(name),
		}, nil
	}
	return nil, errors.New("failed to create temp file")
}

// Remove deletes the named file.
func (s *FSStore) Remove(name string) error {
	if err := s.fsys.Remove(s.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Touch sets the modification time of the named file if the filesystem
// supports it.
func (s *FSStore) Touch(name string, mtime time.Time) error {
	mfs, ok := s.fsys.(core.MetadataFS)
	if !ok {
		return nil
	}
	return mfs.Chtimes(s.path(name), mtime, mtime)
}

type fsWriter struct {
	fsys      core.FS
	file      core.File
	tmpPath   string
	finalPath string
	done      bool
}

func (w *fsWriter) Write(p []byte) (int, error) {
	return w.file.Write(p)
}

func (w *fsWriter) Commit() error {
	if w.done {
		return errors.New("staged write already finished")
	}
	w.done = true

	if err := w.file.Close(); err != nil {
		_ = w.fsys.Remove(w.tmpPath)
		return fmt.Errorf("close staging file: %w", err)
	}
	err := w.fsys.Rename(w.tmpPath, w.finalPath)
	if err != nil {
		// Not every provider replaces an existing target on rename.
		if rmErr := w.fsys.Remove(w.finalPath); rmErr == nil || errors.Is(rmErr, fs.ErrNotExist) {
			err = w.fsys.Rename(w.tmpPath, w.finalPath)
		}
	}
	if err != nil {
		_ = w.fsys.Remove(w.tmpPath)
		return fmt.Errorf("rename staging file: %w", err)
	}
	return nil
}

func (w *fsWriter) Discard() error {
	if w.done {
		return nil
	}
	w.done = true

	_ = w.file.Close()
	if err := w.fsys.Remove(w.tmpPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
