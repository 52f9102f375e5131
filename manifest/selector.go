package manifest

import (
	log "github.com/sirupsen/logrus"
)

// RecordSource exposes the persisted filename of the last forced
// install, used to deduplicate forced entries.
type RecordSource interface {
	Filename() string
}

// Selector applies the update policy to a parsed manifest.
type Selector struct {
	current string
	record  RecordSource
	greater Greater
}

// NewSelector builds a selector for the given running version. The
// comparison strategy defaults to OrdinalGreater.
func NewSelector(currentVersion string, record RecordSource) *Selector {
	return &Selector{
		current: currentVersion,
		record:  record,
		greater: OrdinalGreater,
	}
}

// WithComparator overrides the version comparison strategy.
func (s *Selector) WithComparator(greater Greater) *Selector {
	if greater != nil {
		s.greater = greater
	}
	return s
}

// Select scans the manifest in order and returns the first qualifying
// entry, or nil when the device is up to date.
//
// Forced entries short-circuit version comparison entirely; the only
// thing that skips one is a filename matching the persisted record,
// meaning that exact image was already installed. Non-forced entries
// qualify when their version is newer than the running one.
func (s *Selector) Select(doc *Document) *Candidate {
	for _, entry := range doc.Updater {
		filename := FilenameFromURL(entry.URL)

		if entry.Force {
			if filename != "" && filename == s.record.Filename() {
				log.Infof("force update skipped, same firmware: %s", filename)
				continue
			}
			log.Infof("force update: %s (%s)", entry.Version, filename)
			return &Candidate{
				Available: true,
				Force:     true,
				Version:   entry.Version,
				URL:       entry.URL,
				Filename:  filename,
			}
		}

		if s.greater(entry.Version, s.current) {
			log.Infof("update available: %s", entry.Version)
			return &Candidate{
				Available: true,
				Version:   entry.Version,
				URL:       entry.URL,
				Filename:  filename,
			}
		}
	}

	log.Debugf("already up to date (%s)", s.current)
	return nil
}
