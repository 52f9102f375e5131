package partition

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrNoValidPartition means there is nothing to roll back to. A
	// normal outcome on devices that never completed an update.
	ErrNoValidPartition = errors.New("no valid partition to rollback to")
	// ErrSetBootPartition means the platform refused the boot target
	// change; the device keeps booting the current image.
	ErrSetBootPartition = errors.New("failed to set boot partition")
)

// Manager exposes rollback and validity bookkeeping over the platform.
type Manager struct {
	platform Platform
	restart  Restarter
}

// NewManager wires the platform and the restarter used after a
// successful rollback.
func NewManager(platform Platform, restart Restarter) *Manager {
	return &Manager{platform: platform, restart: restart}
}

// CanRollback reports whether a previous firmware bank is available:
// a next-update partition exists and differs from the last invalid one.
func (m *Manager) CanRollback() bool {
	next := m.platform.NextUpdate()
	if next == nil {
		return false
	}
	last := m.platform.LastInvalid()
	return last == nil || next.Label != last.Label
}

// Rollback reassigns the boot target to the previous firmware bank and
// restarts. Under a real restarter a nil return is never observed.
func (m *Manager) Rollback() error {
	log.Infof("attempting rollback")

	if !m.CanRollback() {
		return ErrNoValidPartition
	}

	next := m.platform.NextUpdate()
	if next == nil {
		return ErrNoValidPartition
	}

	if err := m.platform.SetBootPartition(next); err != nil {
		return fmt.Errorf("%w: %v", ErrSetBootPartition, err)
	}

	log.Infof("rollback successful, rebooting to %s", next.Label)
	m.restart.Restart()
	return nil
}

// MarkAsValid confirms the running image and cancels a pending rollback.
// Returns false, not an error, when the image was not pending
// verification or the platform call failed.
func (m *Manager) MarkAsValid() bool {
	running := m.platform.Running()
	if running == nil {
		return false
	}

	state, err := m.platform.State(running)
	if err != nil || state != ImageStatePendingVerify {
		return false
	}

	if err := m.platform.MarkValidCancelRollback(); err != nil {
		log.Warnf("failed to mark firmware as valid: %v", err)
		return false
	}

	log.Infof("firmware marked as valid")
	return true
}

// BootPartitionLabel returns the running partition's label, or the
// "unknown" sentinel when the platform cannot resolve it.
func (m *Manager) BootPartitionLabel() string {
	if p := m.platform.Running(); p != nil {
		return p.Label
	}
	return UnknownLabel
}

// NextUpdatePartitionLabel returns the label of the bank the next image
// will be written to, or the "unknown" sentinel.
func (m *Manager) NextUpdatePartitionLabel() string {
	if p := m.platform.NextUpdate(); p != nil {
		return p.Label
	}
	return UnknownLabel
}
