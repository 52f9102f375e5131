// Package record persists the filename of the last successfully
// installed forced firmware image, so the same forced image is not
// re-flashed on every check cycle after a reboot.
//
// The on-storage layout is frozen for compatibility with records already
// in the field: a 2-byte little-endian magic marker, a 1-byte filename
// length, then the raw filename bytes, all inside a 128-byte region at
// offset 0. The magic gates interpretation: clearing the record only
// zeroes the marker and leaves stale payload bytes unreachable.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

const (
	// RegionSize is the total reserved region in bytes.
	RegionSize = 128
	// regionOffset is where the record starts inside the region.
	regionOffset = 0
	// magic marks an initialized record.
	magic uint16 = 0xAA55
	// headerSize is magic (2) plus the length byte (1).
	headerSize = 3
)

var (
	// ErrFilenameTooLong means the filename does not fit the reserved
	// payload field.
	ErrFilenameTooLong = errors.New("filename too long for record region")
	// ErrCommitFailed means the storage medium rejected the commit; the
	// in-memory record is left unchanged.
	ErrCommitFailed = errors.New("record commit failed")
)

// InstallRecord is the decoded persisted record. Valid is false when the
// region carries no magic marker, which is the normal state on a device
// that never installed a forced image.
type InstallRecord struct {
	Valid    bool
	Filename string
}

// Store reads and writes the install record. The first Load performs the
// physical read; the decoded record is cached for the process lifetime
// since this process is the region's sole writer.
type Store struct {
	storage Storage
	loaded  bool
	rec     InstallRecord
}

// NewStore wraps the given non-volatile region.
func NewStore(storage Storage) *Store {
	return &Store{storage: storage}
}

// Load returns the persisted record. A missing or unrecognized marker
// yields an empty record and no error.
func (s *Store) Load() InstallRecord {
	if s.loaded {
		return s.rec
	}
	s.loaded = true

	buf := make([]byte, RegionSize)
	if err := s.storage.ReadAt(buf, regionOffset); err != nil {
		log.Warnf("failed to read install record: %v", err)
		return s.rec
	}

	if binary.LittleEndian.Uint16(buf) != magic {
		log.Debugf("no previous firmware record")
		return s.rec
	}

	length := int(buf[2])
	if length > 0 && length < RegionSize-headerSize {
		s.rec = InstallRecord{
			Valid:    true,
			Filename: string(buf[headerSize : headerSize+length]),
		}
		log.Infof("last installed firmware: %s", s.rec.Filename)
	}
	return s.rec
}

// Filename returns the persisted filename, empty when no record exists.
func (s *Store) Filename() string {
	return s.Load().Filename
}

// Save overwrites the record with the given filename and commits it.
func (s *Store) Save(filename string) error {
	s.Load()

	if len(filename) >= RegionSize-headerSize {
		return fmt.Errorf("%w: %q", ErrFilenameTooLong, filename)
	}

	buf := make([]byte, headerSize+len(filename))
	binary.LittleEndian.PutUint16(buf, magic)
	buf[2] = byte(len(filename))
	copy(buf[headerSize:], filename)

	if err := s.storage.WriteAt(buf, regionOffset); err != nil {
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	if err := s.storage.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}

	s.rec = InstallRecord{Valid: true, Filename: filename}
	log.Infof("saved firmware filename: %s", filename)
	return nil
}

// Clear invalidates the record by zeroing the magic marker. Payload
// bytes may remain but the marker gates interpretation.
func (s *Store) Clear() error {
	s.Load()

	if err := s.storage.WriteAt([]byte{0, 0}, regionOffset); err != nil {
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	if err := s.storage.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}

	s.rec = InstallRecord{}
	log.Infof("firmware record cleared")
	return nil
}
