// Package updater composes the OTA pipeline: manifest fetch, candidate
// selection, streaming install, rollback bookkeeping. One Updater
// instance owns all mutable state (the cached candidate, the persisted
// record cache, the last-check stamp); hosts construct it once per
// device process and drive it from their own loop.
package updater

import (
	"context"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/otakitio/otakit/fetcher"
	"github.com/otakitio/otakit/installer"
	"github.com/otakitio/otakit/manifest"
	"github.com/otakitio/otakit/monotime"
	"github.com/otakitio/otakit/partition"
	"github.com/otakitio/otakit/record"
)

// Outcome is the result of an update attempt.
type Outcome int

const (
	// NoUpdate means the manifest offered nothing to install.
	NoUpdate Outcome = iota
	// Rebooting means an image installed and the restarter fired. Under
	// a real restarter callers never observe this value: the process
	// restarts inside the call.
	Rebooting
	// Failed means an install was attempted and aborted; the device
	// keeps running the current firmware and may retry later.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case NoUpdate:
		return "no update"
	case Rebooting:
		return "rebooting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Updater is the update scheduler.
type Updater struct {
	mu        sync.Mutex
	cfg       Config
	fetcher   *fetcher.Fetcher
	selector  *manifest.Selector
	installer *installer.Installer
	record    *record.Store
	parts     *partition.Manager
	candidate *manifest.Candidate
	lastCheck monotime.Time
	clock     func() monotime.Time
}

// New builds an updater over the given platform, record storage and
// restarter.
func New(cfg Config, platform partition.Platform, storage record.Storage, restart partition.Restarter) *Updater {
	cfg = cfg.withDefaults()

	rec := record.NewStore(storage)
	f := fetcher.New().
		WithTimeout(cfg.Timeout).
		WithMaxRedirects(cfg.MaxRedirects).
		WithTLSVerify(cfg.TLSVerify)

	return &Updater{
		cfg:       cfg,
		fetcher:   f,
		selector:  manifest.NewSelector(cfg.CurrentVersion, rec).WithComparator(cfg.comparator()),
		installer: installer.New(f, platform, rec, restart),
		record:    rec,
		parts:     partition.NewManager(platform, restart),
		clock:     monotime.Now,
	}
}

// SetProgressFn registers the install progress callback.
func (u *Updater) SetProgressFn(fn installer.ProgressFn) {
	u.installer.SetProgressFn(fn)
}

// SetCheckInterval changes the periodic check interval; zero disables
// Tick-driven checks.
func (u *Updater) SetCheckInterval(interval time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cfg.CheckInterval = interval
}

// HasUpdate fetches the manifest and evaluates it, replacing any cached
// candidate. Safe to call repeatedly; always reflects the latest fetch.
func (u *Updater) HasUpdate(ctx context.Context) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.refresh(ctx)
}

// refresh runs a manifest check under the caller-held lock.
func (u *Updater) refresh(ctx context.Context) bool {
	log.Debugf("checking for updates at %s", u.cfg.ManifestURL)
	u.candidate = nil

	status, body, err := u.fetcher.Fetch(ctx, u.cfg.ManifestURL)
	if err != nil {
		log.Warnf("manifest fetch failed: %v", err)
		return false
	}
	if status != http.StatusOK {
		log.Warnf("manifest fetch: server returned %d", status)
		return false
	}

	doc, err := manifest.Parse(body)
	if err != nil {
		log.Warnf("manifest rejected: %v", err)
		return false
	}

	u.candidate = u.selector.Select(doc)
	return u.candidate != nil
}

func (u *Updater) install(ctx context.Context) (Outcome, error) {
	c := u.candidate
	log.Infof("updating to %s", c.Version)
	if err := u.installer.Install(ctx, c.URL, c.Filename); err != nil {
		log.Errorf("update to %s failed: %v", c.Version, err)
		return Failed, err
	}
	return Rebooting, nil
}

// Update installs the cached candidate, running a check first when none
// is cached. Returns NoUpdate when the device is up to date.
func (u *Updater) Update(ctx context.Context) (Outcome, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.candidate != nil && u.candidate.URL != "" {
		return u.install(ctx)
	}
	if !u.refresh(ctx) {
		return NoUpdate, nil
	}
	return u.install(ctx)
}

// CheckUpdate always re-checks the manifest, ignoring any cached
// candidate, and installs when one is found.
func (u *Updater) CheckUpdate(ctx context.Context) (Outcome, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.checkAndInstall(ctx)
}

// ForceUpdate drops the cached candidate and behaves as CheckUpdate.
func (u *Updater) ForceUpdate(ctx context.Context) (Outcome, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	log.Infof("force update check")
	u.candidate = nil
	return u.checkAndInstall(ctx)
}

func (u *Updater) checkAndInstall(ctx context.Context) (Outcome, error) {
	if !u.refresh(ctx) {
		return NoUpdate, nil
	}
	return u.install(ctx)
}

// Tick is the cooperative periodic trigger: when a non-zero check
// interval is configured and has elapsed since the last check, it runs
// CheckUpdate and resets the stamp. Hosts call it from their own loop;
// the updater has no internal timer.
func (u *Updater) Tick(ctx context.Context) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.cfg.CheckInterval <= 0 {
		return
	}
	now := u.clock()
	if time.Duration(now-u.lastCheck) <= u.cfg.CheckInterval {
		return
	}
	u.lastCheck = now

	if _, err := u.checkAndInstall(ctx); err != nil {
		log.Errorf("periodic update failed: %v", err)
	}
}

// Candidate returns a copy of the cached candidate from the most recent
// check, if any.
func (u *Updater) Candidate() *manifest.Candidate {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.candidate == nil {
		return nil
	}
	c := *u.candidate
	return &c
}

// Version returns the running firmware version.
func (u *Updater) Version() string {
	return u.cfg.CurrentVersion
}

// URL returns the manifest endpoint.
func (u *Updater) URL() string {
	return u.cfg.ManifestURL
}

// LastInstalledFilename returns the persisted filename of the last
// forced install, empty when none exists.
func (u *Updater) LastInstalledFilename() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.record.Filename()
}

// ClearRecord invalidates the persisted install record, allowing a
// forced image with the same filename to install again.
func (u *Updater) ClearRecord() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.record.Clear()
}

// Partitions exposes rollback and validity bookkeeping.
func (u *Updater) Partitions() *partition.Manager {
	return u.parts
}
