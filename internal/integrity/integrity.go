// Package integrity decides whether the local agent binary matches the
// published build, downloading a fresh copy when it does not.
package integrity

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/etonedemid/better-launcher/internal/config"
	"github.com/etonedemid/better-launcher/internal/hashing"
)

// Result reports what EnsureCurrent did.
type Result int

const (
	// ResultUpToDate means no download happened. When updates are
	// disabled this is an explicit opt-out, not a verified state.
	ResultUpToDate Result = iota
	// ResultDownloaded means a fresh agent binary was fetched.
	ResultDownloaded
)

func (r Result) String() string {
	switch r {
	case ResultUpToDate:
		return "up-to-date"
	case ResultDownloaded:
		return "downloaded"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// DigestFetcher retrieves the expected digest from the update origin.
type DigestFetcher interface {
	ExpectedDigest(ctx context.Context, url string) (string, error)
}

// ArtifactDownloader streams the agent binary to a local path.
type ArtifactDownloader interface {
	Download(ctx context.Context, url, destPath string) error
}

// Verifier orchestrates manifest fetch, local hashing and download.
type Verifier struct {
	cfg         *config.Config
	fetcher     DigestFetcher
	downloader  ArtifactDownloader
	manifestURL string
	agentURL    string
	log         *zap.Logger
}

// NewVerifier creates a Verifier. The config is shared by handle with
// the controller; flipping UpdateEnabled takes effect on the next call.
func NewVerifier(cfg *config.Config, fetcher DigestFetcher, downloader ArtifactDownloader, env config.Env, log *zap.Logger) *Verifier {
	return &Verifier{
		cfg:         cfg,
		fetcher:     fetcher,
		downloader:  downloader,
		manifestURL: env.ManifestURL,
		agentURL:    env.AgentURL,
		log:         log,
	}
}

// EnsureCurrent makes sure the agent at agentPath is the published
// build. With updates disabled it returns ResultUpToDate without any
// network access. A missing binary is always downloaded. Otherwise the
// local digest is compared against the manifest digest and a mismatch
// triggers a download. Fetch and hash failures propagate; they are
// never collapsed into a false "up to date".
func (v *Verifier) EnsureCurrent(ctx context.Context, agentPath string) (Result, error) {
	if !v.cfg.UpdateEnabled {
		v.log.Info("agent updates disabled, skipping integrity check")
		return ResultUpToDate, nil
	}

	if _, err := os.Stat(agentPath); err != nil {
		if !os.IsNotExist(err) {
			return ResultUpToDate, fmt.Errorf("stat agent binary: %w", err)
		}
		v.log.Info("agent binary missing, downloading", zap.String("path", agentPath))
		if err := v.downloader.Download(ctx, v.agentURL, agentPath); err != nil {
			return ResultUpToDate, err
		}
		return ResultDownloaded, nil
	}

	expected, err := v.fetcher.ExpectedDigest(ctx, v.manifestURL)
	if err != nil {
		return ResultUpToDate, err
	}
	local, err := hashing.FileDigest(agentPath)
	if err != nil {
		return ResultUpToDate, err
	}

	if strings.EqualFold(expected, local) {
		v.log.Debug("agent binary is current", zap.String("digest", local))
		return ResultUpToDate, nil
	}

	v.log.Info("agent binary is stale, downloading",
		zap.String("local", local),
		zap.String("expected", expected))
	if err := v.downloader.Download(ctx, v.agentURL, agentPath); err != nil {
		return ResultUpToDate, err
	}
	return ResultDownloaded, nil
}
