// Package manifest retrieves the remote build manifest and extracts
// the expected agent digest from it.
//
// Wire format: the last non-empty line of the manifest body carries
// "Hash: " followed by the 64-character hex digest. The digest is
// extracted by byte offset, not by prefix match; the offsets are a
// compatibility contract with the update origin and must not change.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/etonedemid/better-launcher/internal/httpx"
)

const (
	// digestStart and digestEnd delimit the digest bytes within the
	// last non-empty manifest line ("Hash: " is 6 bytes, the digest 64).
	digestStart = 6
	digestEnd   = 70
)

// ErrManifestFormat reports a manifest body too short to carry a digest.
var ErrManifestFormat = errors.New("manifest body malformed")

// Fetcher retrieves expected digests from the update origin.
// It performs a single bounded-timeout GET per call and never retries;
// retry policy belongs to callers.
type Fetcher struct {
	client *resty.Client
	log    *zap.Logger
}

// NewFetcher creates a Fetcher with the given request timeout.
func NewFetcher(timeout time.Duration, log *zap.Logger) *Fetcher {
	return &Fetcher{
		client: httpx.New(timeout),
		log:    log,
	}
}

// ExpectedDigest fetches the manifest at url and returns the digest it
// publishes. Non-2xx responses surface as *httpx.StatusError.
func (f *Fetcher) ExpectedDigest(ctx context.Context, url string) (string, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("fetch manifest: %w", err)
	}
	if !resp.IsSuccess() {
		return "", &httpx.StatusError{Code: resp.StatusCode(), URL: url}
	}

	digest, err := ParseDigest(resp.String())
	if err != nil {
		return "", err
	}
	f.log.Debug("manifest digest fetched", zap.String("url", url), zap.String("digest", digest))
	return digest, nil
}

// ParseDigest extracts the expected digest from a manifest body: the
// bytes [6:70) of the last non-empty line. The digest is untrusted
// input; callers only ever compare it against a locally computed hash.
func ParseDigest(body string) (string, error) {
	lines := strings.Split(body, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimRight(lines[i], "\r")
		if line == "" {
			continue
		}
		if len(line) < digestEnd {
			return "", fmt.Errorf("%w: last line is %d bytes, need %d", ErrManifestFormat, len(line), digestEnd)
		}
		return line[digestStart:digestEnd], nil
	}
	return "", fmt.Errorf("%w: body has no non-empty lines", ErrManifestFormat)
}
