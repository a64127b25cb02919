package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Sentinel errors for the storage layer.
var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidName = errors.New("invalid file name")
)

// Store defines the interface for name-addressed file storage.
// Writes never destroy a predecessor: an existing file with the same
// name is moved aside first (see SupersedeName).
type Store interface {
	Create(name string, write func(w io.Writer) error) (*SavedFile, error)
	Save(name string, data io.Reader) (*SavedFile, error)
	GetPath(name string) (string, error)
	EnsureDir() error
	HealthCheck() error
}

// SavedFile describes a completed write.
type SavedFile struct {
	Name       string
	Path       string
	Size       int64
	Checksum   string // BLAKE2b-256, hex
	Superseded string // name the previous file was moved to, empty if none
}

// FileSystemStore stores files in a single flat directory.
type FileSystemStore struct {
	basePath string
	locks    *pathLocks
	now      func() time.Time
}

// NewFileSystemStore creates a new filesystem storage backend rooted at basePath.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{
		basePath: basePath,
		locks:    newPathLocks(),
		now:      time.Now,
	}
}

// Root returns the directory the store writes into.
func (fs *FileSystemStore) Root() string {
	return fs.basePath
}

// EnsureDir creates the storage directory if it doesn't exist.
func (fs *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(fs.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", fs.basePath, err)
	}
	return nil
}

// HealthCheck verifies the directory is writable.
func (fs *FileSystemStore) HealthCheck() error {
	f, err := os.CreateTemp(fs.basePath, ".health-*")
	if err != nil {
		return fmt.Errorf("storage directory %s not writable: %w", fs.basePath, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// Save copies data into the file called name.
func (fs *FileSystemStore) Save(name string, data io.Reader) (*SavedFile, error) {
	return fs.Create(name, func(w io.Writer) error {
		_, err := io.Copy(w, data)
		return err
	})
}

// Create writes the file called name using write. The content goes to a
// temporary file first; once write succeeds any existing file with the
// same name is moved aside and the temporary file is renamed into place.
// The whole sequence holds a lock on the target path.
func (fs *FileSystemStore) Create(name string, write func(w io.Writer) error) (*SavedFile, error) {
	filePath, err := fs.filePath(name)
	if err != nil {
		return nil, err
	}

	unlock := fs.locks.Lock(filePath)
	defer unlock()

	tmp, err := os.CreateTemp(fs.basePath, ".upload-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file in %s: %w", fs.basePath, err)
	}
	tmpPath := tmp.Name()

	hasher, err := blake2b.New256(nil)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to init checksum: %w", err)
	}
	counter := &countingWriter{}

	if err := write(io.MultiWriter(tmp, hasher, counter)); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to write file %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to sync file %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to close file %s: %w", name, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to chmod file %s: %w", name, err)
	}

	superseded, err := fs.supersede(filePath)
	if err != nil {
		os.Remove(tmpPath)
		return nil, err
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to move file into place %s: %w", filePath, err)
	}

	return &SavedFile{
		Name:       name,
		Path:       filePath,
		Size:       counter.n,
		Checksum:   hex.EncodeToString(hasher.Sum(nil)),
		Superseded: superseded,
	}, nil
}

// GetPath returns the path to a stored file.
// Returns ErrNotFound if the file does not exist and ErrInvalidName if
// name would resolve outside the store.
func (fs *FileSystemStore) GetPath(name string) (string, error) {
	filePath, err := fs.filePath(name)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return filePath, nil
}

// supersede moves an existing file at filePath to its timestamped name.
// It returns the new base name, or "" when nothing was there.
func (fs *FileSystemStore) supersede(filePath string) (string, error) {
	if _, err := os.Lstat(filePath); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to stat %s: %w", filePath, err)
	}

	target, err := fs.supersedePath(filePath)
	if err != nil {
		return "", err
	}
	if err := os.Rename(filePath, target); err != nil {
		return "", fmt.Errorf("failed to rename %s to %s: %w", filePath, target, err)
	}
	return filepath.Base(target), nil
}

// supersedePath picks the first free timestamped sibling of filePath.
// Two supersedes within the same second get a numeric suffix.
func (fs *FileSystemStore) supersedePath(filePath string) (string, error) {
	dir := filepath.Dir(filePath)
	name := SupersedeName(filepath.Base(filePath), fs.now())
	stem, ext := SplitExt(name)

	candidate := filepath.Join(dir, name)
	for n := 2; ; n++ {
		_, err := os.Lstat(candidate)
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", candidate, err)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
	}
}

// filePath joins name under the store root, rejecting anything that is
// not a single path element.
func (fs *FileSystemStore) filePath(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, "/\\\x00") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	root := filepath.Clean(fs.basePath)
	p := filepath.Join(root, name)
	if filepath.Dir(p) != root {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return p, nil
}

type countingWriter struct {
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}
