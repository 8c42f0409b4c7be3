// Package assets mirrors the agent's asset directory between the
// persistent store and the volatile runtime location.
//
// Both directions are mirror operations: the destination is removed
// and fully recreated from the source, so stale files never accumulate
// between runs. The trade-off is that anything written only at the
// destination and not yet copied back is lost on the next mirror; that
// is an accepted constraint of the design.
package assets

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/etonedemid/better-launcher/internal/config"
)

// Syncer copies the asset tree between its two roots.
type Syncer struct {
	cfg         *config.Config
	storePath   string
	runtimePath string
	log         *zap.Logger
}

// NewSyncer creates a Syncer for the given persistent store and
// volatile runtime roots. The config is shared by handle with the
// controller; flipping AssetsSavingEnabled takes effect on the next call.
func NewSyncer(cfg *config.Config, storePath, runtimePath string, log *zap.Logger) *Syncer {
	return &Syncer{
		cfg:         cfg,
		storePath:   storePath,
		runtimePath: runtimePath,
		log:         log,
	}
}

// PushToRuntime mirrors the persistent store into the runtime tree.
// Called before the agent starts.
func (s *Syncer) PushToRuntime() error {
	return s.mirror(s.storePath, s.runtimePath, "push")
}

// PullFromRuntime mirrors the runtime tree back into the persistent
// store. Called after the agent has stopped.
func (s *Syncer) PullFromRuntime() error {
	return s.mirror(s.runtimePath, s.storePath, "pull")
}

func (s *Syncer) mirror(src, dst, op string) error {
	if !s.cfg.AssetsSavingEnabled {
		s.log.Info("assets saving disabled, skipping sync", zap.String("op", op))
		return nil
	}

	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			s.log.Debug("asset source missing, nothing to sync",
				zap.String("op", op), zap.String("source", src))
			return nil
		}
		return fmt.Errorf("stat asset source: %w", err)
	}

	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("clear asset destination: %w", err)
	}
	if err := copyTree(src, dst, s.log); err != nil {
		return fmt.Errorf("mirror assets (%s): %w", op, err)
	}

	s.log.Info("assets synced",
		zap.String("op", op),
		zap.String("source", src),
		zap.String("destination", dst))
	return nil
}

// copyTree recursively copies src into dst, preserving file modes.
// Irregular entries (sockets, devices, symlinks) are skipped with a
// warning rather than failing the whole mirror.
func copyTree(src, dst string, log *zap.Logger) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			log.Warn("skipping irregular asset entry",
				zap.String("path", path),
				zap.String("mode", info.Mode().String()))
			return nil
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src) //nolint:gosec // G304 - path from walked asset tree
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm) //nolint:gosec // G304 - destination derived from asset roots
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
