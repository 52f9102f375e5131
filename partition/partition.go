// Package partition wraps the platform's dual-bank partition and
// bootloader interface: querying which bank runs, which one the next
// image targets, switching the boot target, and streaming a new image
// into the inactive bank.
package partition

import "io"

// UnknownLabel is returned by label lookups when the platform cannot
// resolve the partition. Callers treat it as a defensive sentinel, never
// as an error.
const UnknownLabel = "unknown"

// ImageState describes the bootloader's view of the image in a bank.
type ImageState int

const (
	ImageStateUnknown ImageState = iota
	// ImageStateValid has been confirmed bootable.
	ImageStateValid
	// ImageStatePendingVerify boots once; unless the running firmware
	// marks itself valid, the bootloader rolls back on the next boot.
	ImageStatePendingVerify
	// ImageStateInvalid failed verification or was rolled back from.
	ImageStateInvalid
)

// Partition identifies one firmware bank.
type Partition struct {
	Label string
}

// ImageWriter receives a firmware image streamed into the inactive bank.
type ImageWriter interface {
	io.Writer
	// Finalize seals the image and makes the bank the next boot target.
	Finalize() error
	// Abort discards the partially written image. The bank content is
	// undefined afterwards but is not a boot target.
	Abort()
}

// Platform is the device's OTA partition subsystem. Lookups return nil
// when the platform cannot resolve a partition.
type Platform interface {
	// Running is the partition the current firmware booted from.
	Running() *Partition
	// NextUpdate is the inactive partition the next image targets.
	// Never the running partition.
	NextUpdate() *Partition
	// LastInvalid is the partition holding the most recent image that
	// failed verification, if any.
	LastInvalid() *Partition
	// State reports the image state of the given partition.
	State(p *Partition) (ImageState, error)
	// SetBootPartition selects the partition booted on next restart.
	SetBootPartition(p *Partition) error
	// MarkValidCancelRollback confirms the running image as good and
	// cancels a pending rollback.
	MarkValidCancelRollback() error
	// BeginImage reserves size bytes in the next update partition and
	// returns a writer for the image stream.
	BeginImage(size int64) (ImageWriter, error)
}

// Restarter triggers a device restart. The production implementation
// does not return; tests substitute one that records the call.
type Restarter interface {
	Restart()
}
