// Package manifest parses the update endpoint's JSON document and
// selects at most one update candidate per check cycle.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidManifest means the manifest body could not be parsed.
// Callers treat it as "no update this round", never as fatal.
var ErrInvalidManifest = errors.New("invalid manifest")

// Document is the manifest served by the update endpoint.
type Document struct {
	Updater []Entry `json:"updater"`
}

// Entry is one candidate firmware image. Force defaults to false and
// missing strings to empty, per the endpoint contract.
type Entry struct {
	Device  string `json:"device"`
	Version string `json:"version"`
	Force   bool   `json:"force"`
	URL     string `json:"url"`
}

// Candidate is the single selected update entry for the current check
// cycle. It is replaced wholesale on every evaluation and never
// persisted.
type Candidate struct {
	Available bool
	Force     bool
	Version   string
	URL       string
	Filename  string
}

// Parse decodes a manifest body.
func Parse(body []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return &doc, nil
}

// FilenameFromURL extracts the segment after the last '/', stripping a
// query suffix. Empty when the URL has no path segment.
func FilenameFromURL(url string) string {
	slash := strings.LastIndexByte(url, '/')
	if slash < 0 || slash == len(url)-1 {
		return ""
	}
	name := url[slash+1:]
	if q := strings.IndexByte(name, '?'); q > 0 {
		name = name[:q]
	}
	return name
}
