// Package installer streams a firmware image into the inactive
// partition bank in bounded chunks and hands control to the bootloader.
// The running partition is never written; every failure path leaves the
// device bootable on its current image.
package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/otakitio/otakit/fetcher"
	"github.com/otakitio/otakit/manifest"
	"github.com/otakitio/otakit/partition"
)

// chunkSize bounds per-read memory; the device cannot buffer a full
// image.
const chunkSize = 512

var (
	// ErrDownloadFailed covers non-200 responses and stream
	// disconnections mid-transfer. There is no resume: a broken
	// transfer aborts the whole install.
	ErrDownloadFailed = errors.New("firmware download failed")
	// ErrInvalidContentLength means the server did not announce a
	// positive content length, so the target bank cannot be reserved.
	ErrInvalidContentLength = errors.New("invalid content length")
	// ErrInsufficientSpace means the platform could not reserve the
	// image region.
	ErrInsufficientSpace = errors.New("not enough space for update")
	// ErrFinalizeFailed means the platform rejected the completed
	// image; the partially written bank is abandoned.
	ErrFinalizeFailed = errors.New("failed to finalize update")
)

// ProgressFn receives (percent, written, total) whenever the integer
// percentage changes. Values are non-decreasing and each is reported at
// most once per install.
type ProgressFn func(percent int, written, total int64)

// RecordSaver persists the installed filename for force-update
// deduplication.
type RecordSaver interface {
	Save(filename string) error
}

// Installer downloads and installs firmware images.
type Installer struct {
	fetcher  *fetcher.Fetcher
	platform partition.Platform
	record   RecordSaver
	restart  partition.Restarter
	progress ProgressFn
}

// New wires the installer's collaborators.
func New(f *fetcher.Fetcher, platform partition.Platform, record RecordSaver, restart partition.Restarter) *Installer {
	return &Installer{
		fetcher:  f,
		platform: platform,
		record:   record,
		restart:  restart,
	}
}

// SetProgressFn registers the progress callback. Without one, a log
// line is emitted at every multiple of 10%.
func (i *Installer) SetProgressFn(fn ProgressFn) {
	i.progress = fn
}

// Install streams the image at url into the next update bank, seals it,
// persists filename for force-update deduplication and restarts the
// device. Under a real restarter a nil return is never observed by the
// caller: the process restarts inside the call.
func (i *Installer) Install(ctx context.Context, url, filename string) error {
	log.Infof("downloading firmware from %s", url)

	status, resp, err := i.fetcher.Get(ctx, url)
	if err != nil || resp == nil {
		return fmt.Errorf("%w: status %d: %v", ErrDownloadFailed, status, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Warnf("error closing firmware response body: %v", cerr)
		}
	}()

	if status != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrDownloadFailed, status)
	}

	total := resp.ContentLength
	if total <= 0 {
		return ErrInvalidContentLength
	}

	w, err := i.platform.BeginImage(total)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientSpace, err)
	}

	log.Infof("installing %d bytes", total)

	written, err := i.copyImage(w, resp.Body, total)
	if err != nil {
		w.Abort()
		return err
	}
	if written != total {
		w.Abort()
		return fmt.Errorf("%w: transfer ended after %d of %d bytes", ErrDownloadFailed, written, total)
	}

	if err := w.Finalize(); err != nil {
		return fmt.Errorf("%w: %v", ErrFinalizeFailed, err)
	}

	// The image is installed at this point; a record failure only makes
	// the dedup record stale, so it must not block the reboot.
	if filename == "" {
		filename = manifest.FilenameFromURL(url)
	}
	if filename != "" {
		if err := i.record.Save(filename); err != nil {
			log.Warnf("failed to persist installed filename %q: %v", filename, err)
		}
	}

	log.Infof("update complete, rebooting")
	i.restart.Restart()
	return nil
}

func (i *Installer) copyImage(w io.Writer, body io.Reader, total int64) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	lastPercent := -1

	for written < total {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("failed to write image chunk: %w", werr)
			}
			written += int64(n)

			percent := int(written * 100 / total)
			if percent != lastPercent {
				lastPercent = percent
				if i.progress != nil {
					i.progress(percent, written, total)
				} else if percent%10 == 0 {
					log.Infof("progress: %d%%", percent)
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, fmt.Errorf("%w: stream read: %v", ErrDownloadFailed, err)
		}
	}
	return written, nil
}
