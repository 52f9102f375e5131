package updater

import (
	"time"

	"github.com/otakitio/otakit/fetcher"
	"github.com/otakitio/otakit/manifest"
)

// CompareStrategy selects how manifest versions are ordered against the
// running version.
type CompareStrategy string

const (
	// CompareOrdinal is byte-wise string comparison, the compatibility
	// default ("2.0" sorts above "10.0").
	CompareOrdinal CompareStrategy = "ordinal"
	// CompareSemantic uses semver ordering.
	CompareSemantic CompareStrategy = "semantic"
)

// Config describes the device and its update endpoint.
type Config struct {
	// ManifestURL is the JSON update endpoint.
	ManifestURL string
	// CurrentVersion is the running firmware version string.
	CurrentVersion string
	// CheckInterval enables Tick-driven periodic checks when non-zero.
	CheckInterval time.Duration
	// Timeout bounds each manifest or firmware GET.
	Timeout time.Duration
	// MaxRedirects caps redirect following per GET.
	MaxRedirects int
	// TLSVerify enables certificate validation on https fetches. Off by
	// default to match devices without a trust store.
	TLSVerify bool
	// VersionCompare selects the comparison strategy, CompareOrdinal
	// when empty.
	VersionCompare CompareStrategy
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = fetcher.DefaultTimeout
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = fetcher.DefaultMaxRedirects
	}
	if c.VersionCompare == "" {
		c.VersionCompare = CompareOrdinal
	}
	return c
}

func (c Config) comparator() manifest.Greater {
	if c.VersionCompare == CompareSemantic {
		return manifest.SemanticGreater
	}
	return manifest.OrdinalGreater
}
