package record

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// Storage is the non-volatile byte region the install record lives in.
// Writes land in a staging buffer and reach the medium only on Commit,
// mirroring EEPROM-style storage on embedded targets.
type Storage interface {
	// ReadAt fills p with the bytes starting at off.
	ReadAt(p []byte, off int) error
	// WriteAt stages the bytes of p at off.
	WriteAt(p []byte, off int) error
	// Commit flushes all staged writes to the medium.
	Commit() error
}

// FileStorage emulates a small non-volatile region with a plain file,
// for host-side daemons and tests. The whole region is kept in memory
// and written out atomically on Commit.
type FileStorage struct {
	path string
	buf  []byte
}

// NewFileStorage opens (or creates zero-filled) a region of size bytes
// backed by the file at path.
func NewFileStorage(path string, size int) (*FileStorage, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid storage size %d", size)
	}

	buf := make([]byte, size)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		copy(buf, data)
	case os.IsNotExist(err):
		log.Debugf("storage file %s does not exist yet, starting empty", path)
	default:
		return nil, fmt.Errorf("read storage file %q: %w", path, err)
	}

	return &FileStorage{path: path, buf: buf}, nil
}

func (s *FileStorage) ReadAt(p []byte, off int) error {
	if off < 0 || off+len(p) > len(s.buf) {
		return fmt.Errorf("read of %d bytes at %d outside region of %d", len(p), off, len(s.buf))
	}
	copy(p, s.buf[off:])
	return nil
}

func (s *FileStorage) WriteAt(p []byte, off int) error {
	if off < 0 || off+len(p) > len(s.buf) {
		return fmt.Errorf("write of %d bytes at %d outside region of %d", len(p), off, len(s.buf))
	}
	copy(s.buf[off:], p)
	return nil
}

// Commit writes the region through a temporary file and renames it into
// place so a crash mid-commit leaves the previous content intact.
func (s *FileStorage) Commit() error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temporary storage file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(s.buf); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write storage file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close storage file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace storage file: %w", err)
	}
	return nil
}
