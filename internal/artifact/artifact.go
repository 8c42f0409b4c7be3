// Package artifact downloads the agent binary from the update origin.
package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/etonedemid/better-launcher/internal/httpx"
)

// copyBufferSize bounds how much of the artifact is resident during
// the streamed copy to disk.
const copyBufferSize = 64 * 1024

// agentFileMode gives the downloaded binary owner write and
// owner/group/other read+execute, so it can be spawned as a process.
const agentFileMode = 0o755

// Downloader streams agent binaries to disk.
type Downloader struct {
	client *resty.Client
	log    *zap.Logger
}

// NewDownloader creates a Downloader with the given request timeout.
// The timeout covers the whole transfer; there is no mid-stream
// cancellation beyond it and the caller's context.
func NewDownloader(timeout time.Duration, log *zap.Logger) *Downloader {
	return &Downloader{
		client: httpx.New(timeout),
		log:    log,
	}
}

// Download streams the artifact at url to destPath and marks it
// executable. The body is written to a sibling .partial file and
// renamed into place only after the full transfer succeeds, so a
// failed download never leaves a torn file at destPath.
func (d *Downloader) Download(ctx context.Context, url, destPath string) error {
	resp, err := d.client.R().SetContext(ctx).SetDoNotParseResponse(true).Get(url)
	if err != nil {
		return fmt.Errorf("fetch artifact: %w", err)
	}
	body := resp.RawBody()
	defer func() { _ = body.Close() }()

	if !resp.IsSuccess() {
		return &httpx.StatusError{Code: resp.StatusCode(), URL: url}
	}

	partial := destPath + ".partial"
	written, err := writeStream(partial, body)
	if err != nil {
		_ = os.Remove(partial)
		return err
	}

	if err := os.Rename(partial, destPath); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("move artifact into place: %w", err)
	}
	if err := os.Chmod(destPath, agentFileMode); err != nil {
		return fmt.Errorf("mark artifact executable: %w", err)
	}

	d.log.Info("agent downloaded",
		zap.String("url", url),
		zap.String("path", destPath),
		zap.Int64("bytes", written))
	return nil
}

func writeStream(path string, body io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // G304 - path derived from launcher home
	if err != nil {
		return 0, fmt.Errorf("create partial artifact file: %w", err)
	}

	buf := make([]byte, copyBufferSize)
	written, err := io.CopyBuffer(f, body, buf)
	if err != nil {
		_ = f.Close()
		return written, fmt.Errorf("stream artifact body: %w", err)
	}
	if err := f.Close(); err != nil {
		return written, fmt.Errorf("close partial artifact file: %w", err)
	}
	return written, nil
}
