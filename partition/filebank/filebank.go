// Package filebank implements partition.Platform with two firmware
// banks stored as host files plus a small JSON state file. It stands in
// for the real bootloader subsystem on development hosts and in tests.
package filebank

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/otakitio/otakit/partition"
)

const (
	bankA = "ota_0"
	bankB = "ota_1"

	stateFileName = "state.json"

	stateValid         = "valid"
	statePendingVerify = "pending_verify"
	stateInvalid       = "invalid"
)

// DefaultBankSize is the per-bank capacity used when none is configured.
const DefaultBankSize int64 = 4 << 20

// Config locates the bank directory and sizes the banks.
type Config struct {
	Dir      string
	BankSize int64
}

type bankState struct {
	Boot        string            `json:"boot"`
	LastInvalid string            `json:"last_invalid,omitempty"`
	Images      map[string]string `json:"images"`
}

// Device is a file-backed dual-bank platform.
type Device struct {
	dir      string
	bankSize int64
	state    bankState
}

// New opens the bank directory, creating it and an initial state on
// first use.
func New(cfg Config) (*Device, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("bank directory not configured")
	}
	if cfg.BankSize <= 0 {
		cfg.BankSize = DefaultBankSize
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create bank directory %q: %w", cfg.Dir, err)
	}

	d := &Device{dir: cfg.Dir, bankSize: cfg.BankSize}

	data, err := os.ReadFile(d.statePath())
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &d.state); err != nil {
			return nil, fmt.Errorf("parse bank state: %w", err)
		}
	case os.IsNotExist(err):
		d.state = bankState{
			Boot:   bankA,
			Images: map[string]string{bankA: stateValid},
		}
		if err := d.saveState(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("read bank state: %w", err)
	}

	if d.state.Images == nil {
		d.state.Images = map[string]string{}
	}
	return d, nil
}

func (d *Device) statePath() string {
	return filepath.Join(d.dir, stateFileName)
}

// BankPath returns the image file backing the given bank label.
func (d *Device) BankPath(label string) string {
	return filepath.Join(d.dir, label+".img")
}

func (d *Device) saveState() error {
	data, err := json.MarshalIndent(d.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode bank state: %w", err)
	}
	tmp := d.statePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write bank state: %w", err)
	}
	if err := os.Rename(tmp, d.statePath()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace bank state: %w", err)
	}
	return nil
}

func otherBank(label string) string {
	if label == bankA {
		return bankB
	}
	return bankA
}

func (d *Device) Running() *partition.Partition {
	if d.state.Boot != bankA && d.state.Boot != bankB {
		return nil
	}
	return &partition.Partition{Label: d.state.Boot}
}

func (d *Device) NextUpdate() *partition.Partition {
	running := d.Running()
	if running == nil {
		return nil
	}
	return &partition.Partition{Label: otherBank(running.Label)}
}

func (d *Device) LastInvalid() *partition.Partition {
	if d.state.LastInvalid == "" {
		return nil
	}
	return &partition.Partition{Label: d.state.LastInvalid}
}

func (d *Device) State(p *partition.Partition) (partition.ImageState, error) {
	if p == nil {
		return partition.ImageStateUnknown, fmt.Errorf("nil partition")
	}
	switch d.state.Images[p.Label] {
	case stateValid:
		return partition.ImageStateValid, nil
	case statePendingVerify:
		return partition.ImageStatePendingVerify, nil
	case stateInvalid:
		return partition.ImageStateInvalid, nil
	default:
		return partition.ImageStateUnknown, nil
	}
}

func (d *Device) SetBootPartition(p *partition.Partition) error {
	if p == nil || (p.Label != bankA && p.Label != bankB) {
		return fmt.Errorf("unknown partition %v", p)
	}
	d.state.Boot = p.Label
	return d.saveState()
}

func (d *Device) MarkValidCancelRollback() error {
	running := d.Running()
	if running == nil {
		return fmt.Errorf("no running partition")
	}
	d.state.Images[running.Label] = stateValid
	if d.state.LastInvalid == running.Label {
		d.state.LastInvalid = ""
	}
	return d.saveState()
}

// BeginImage reserves the inactive bank for an image of the given size.
// The image lands in a staging file and replaces the bank only on
// Finalize, so an aborted or interrupted install leaves the bank as it
// was.
func (d *Device) BeginImage(size int64) (partition.ImageWriter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid image size %d", size)
	}
	if size > d.bankSize {
		return nil, fmt.Errorf("image size %d exceeds bank capacity %d", size, d.bankSize)
	}

	target := d.NextUpdate()
	if target == nil {
		return nil, fmt.Errorf("no update partition available")
	}

	staging := d.BankPath(target.Label) + ".part"
	f, err := os.Create(staging)
	if err != nil {
		return nil, fmt.Errorf("create staging image %q: %w", staging, err)
	}

	log.Debugf("writing image of %d bytes to bank %s", size, target.Label)
	return &imageWriter{dev: d, label: target.Label, f: f, staging: staging, size: size}, nil
}

type imageWriter struct {
	dev     *Device
	label   string
	f       *os.File
	staging string
	size    int64
	written int64
	done    bool
}

func (w *imageWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, fmt.Errorf("image already finalized")
	}
	if w.written+int64(len(p)) > w.size {
		return 0, fmt.Errorf("write beyond reserved image size %d", w.size)
	}
	n, err := w.f.Write(p)
	w.written += int64(n)
	if err != nil {
		return n, fmt.Errorf("write image: %w", err)
	}
	return n, nil
}

func (w *imageWriter) Finalize() error {
	if w.done {
		return fmt.Errorf("image already finalized")
	}
	w.done = true

	if err := w.f.Close(); err != nil {
		_ = os.Remove(w.staging)
		return fmt.Errorf("close staging image: %w", err)
	}
	if w.written != w.size {
		_ = os.Remove(w.staging)
		return fmt.Errorf("incomplete image: %d of %d bytes", w.written, w.size)
	}
	if err := os.Rename(w.staging, w.dev.BankPath(w.label)); err != nil {
		_ = os.Remove(w.staging)
		return fmt.Errorf("seal image: %w", err)
	}

	// The new image boots next, pending verification by the firmware.
	w.dev.state.Boot = w.label
	w.dev.state.Images[w.label] = statePendingVerify
	return w.dev.saveState()
}

func (w *imageWriter) Abort() {
	if w.done {
		return
	}
	w.done = true
	_ = w.f.Close()
	_ = os.Remove(w.staging)
	log.Debugf("aborted image write to bank %s after %d bytes", w.label, w.written)
}
