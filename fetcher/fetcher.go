// Package fetcher performs the HTTP GETs behind manifest checks and
// firmware downloads. The transport's own redirect handling is disabled
// and redirects are followed manually under a fixed hop cap, so a
// misconfigured server can never loop the client.
package fetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultMaxRedirects caps the manual redirect chain.
	DefaultMaxRedirects = 5
	// DefaultTimeout bounds a single GET including all redirect hops'
	// individual requests.
	DefaultTimeout = 30 * time.Second

	// StatusTooManyRedirects is the distinguished status reported when
	// the hop cap is exhausted. Callers treat it like any non-200.
	StatusTooManyRedirects = -1

	// maxManifestSize bounds how much of a manifest response is read.
	maxManifestSize = 1 << 20

	userAgent = "otakit-updater"
)

// ErrTooManyRedirects accompanies StatusTooManyRedirects.
var ErrTooManyRedirects = errors.New("too many redirects")

// Fetcher issues redirect-following GETs.
type Fetcher struct {
	maxRedirects int
	timeout      time.Duration
	tlsVerify    bool
}

// New returns a fetcher with the default hop cap and timeout.
// Certificate validation on https URLs is off unless enabled with
// WithTLSVerify: field devices rarely carry a usable trust store, and
// a stale one must not be able to block updates.
func New() *Fetcher {
	return &Fetcher{
		maxRedirects: DefaultMaxRedirects,
		timeout:      DefaultTimeout,
	}
}

// WithTimeout overrides the per-call timeout.
func (f *Fetcher) WithTimeout(timeout time.Duration) *Fetcher {
	if timeout > 0 {
		f.timeout = timeout
	}
	return f
}

// WithMaxRedirects overrides the redirect hop cap.
func (f *Fetcher) WithMaxRedirects(n int) *Fetcher {
	if n > 0 {
		f.maxRedirects = n
	}
	return f
}

// WithTLSVerify enables certificate validation on https URLs.
func (f *Fetcher) WithTLSVerify(verify bool) *Fetcher {
	f.tlsVerify = verify
	return f
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func (f *Fetcher) client(url string) *http.Client {
	c := &http.Client{
		Timeout: f.timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	if strings.HasPrefix(url, "https://") && !f.tlsVerify {
		c.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		}
	}
	return c
}

// Get issues a GET against url, following redirects up to the hop cap.
// A redirect response without a Location header ends the chain and its
// status is returned with a nil response. When the cap is exhausted the
// status is StatusTooManyRedirects and the error ErrTooManyRedirects.
// Otherwise the final response is returned and the caller owns its body.
func (f *Fetcher) Get(ctx context.Context, url string) (int, *http.Response, error) {
	current := url

	for hop := 0; hop < f.maxRedirects; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to create request for %q: %w", current, err)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := f.client(current).Do(req)
		if err != nil {
			return 0, nil, fmt.Errorf("request to %q failed: %w", current, err)
		}

		if !isRedirect(resp.StatusCode) {
			return resp.StatusCode, resp, nil
		}

		location := resp.Header.Get("Location")
		status := resp.StatusCode
		if err := resp.Body.Close(); err != nil {
			log.Warnf("error closing redirect response body: %v", err)
		}

		if location == "" {
			log.Warnf("redirect from %s without Location header", current)
			return status, nil, nil
		}

		log.Debugf("following redirect to %s", location)
		current = location
	}

	log.Warnf("too many redirects fetching %s", url)
	return StatusTooManyRedirects, nil, ErrTooManyRedirects
}

// Fetch issues a redirect-following GET and reads the whole body. The
// body is nil unless the final status is 200; any non-200 status is the
// caller's to interpret, not an error.
func (f *Fetcher) Fetch(ctx context.Context, url string) (int, []byte, error) {
	status, resp, err := f.Get(ctx, url)
	if err != nil || resp == nil {
		return status, nil, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Warnf("error closing response body: %v", cerr)
		}
	}()

	if status != http.StatusOK {
		return status, nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return status, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return status, body, nil
}
