// Package cleanup garbage-collects the shared user-level caches.
package cleanup

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.trai.ch/mason/internal/core/domain"
	"go.trai.ch/mason/internal/core/ports"
	"go.trai.ch/zerr"
)

const day = 24 * time.Hour

// Service removes least-recently-used cache entries and stale wrapper
// artifacts from the user-level cache directory. It runs at most once per
// process; a second Run is an idempotent no-op.
type Service struct {
	cfg       *domain.CacheConfigurations
	blobs     ports.BlobStore
	telemetry ports.Telemetry
	logger    ports.Logger
	userHome  string

	mu  sync.Mutex
	ran bool

	now func() time.Time
}

// NewService creates a cleanup service over the given user cache home.
func NewService(
	cfg *domain.CacheConfigurations,
	blobs ports.BlobStore,
	telemetry ports.Telemetry,
	logger ports.Logger,
	userHome string,
) *Service {
	return &Service{
		cfg:       cfg,
		blobs:     blobs,
		telemetry: telemetry,
		logger:    logger,
		userHome:  userHome,
		now:       time.Now,
	}
}

// Run performs cleanup if it is due. force bypasses the frequency gate but
// not the enable switch or the once-per-process guard.
func (s *Service) Run(ctx context.Context, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ran {
		return nil
	}
	s.ran = true

	if !s.cfg.Enabled() {
		s.logger.Debug("cache cleanup disabled")
		return nil
	}
	if !force && !s.due() {
		s.logger.Debug("cache cleanup not due")
		return nil
	}

	_, vertex := s.telemetry.Record(ctx, "clean shared caches", ports.WithInternal())

	cleaned, err := s.cleanCaches()
	if err != nil {
		vertex.Complete(err)
		return err
	}

	// Distribution cleanup is gated on cache cleanup having removed
	// something: an idle cache means the wrappers are idle too.
	if cleaned > 0 {
		if err := s.cleanWrappers(); err != nil {
			vertex.Complete(err)
			return err
		}
	}

	if err := s.stamp(); err != nil {
		vertex.Complete(err)
		return err
	}

	s.logger.Info("cache cleanup finished", "removed", cleaned)
	vertex.Complete(nil)
	return nil
}

// due consults the last-run stamp against the configured frequency.
func (s *Service) due() bool {
	switch s.cfg.Frequency() {
	case domain.CleanupAlways:
		return true
	case domain.CleanupDisabled:
		return false
	}

	info, err := os.Stat(s.stampPath())
	if err != nil {
		return true
	}
	return s.now().Sub(info.ModTime()) >= day
}

// cleanCaches is the first action: LRU eviction of build-cache entries plus
// removal of version-scoped cache directories past their retention.
func (s *Service) cleanCaches() (int, error) {
	retention := time.Duration(s.cfg.CreatedResourceDays()) * day
	removed, err := s.blobs.EvictOlderThan(s.now().Add(-retention))
	if err != nil {
		return removed, zerr.Wrap(err, "blob eviction failed")
	}

	downloaded, err := s.removeStaleDirs(
		filepath.Join(s.userHome, "caches"),
		time.Duration(s.cfg.DownloadedResourceDays())*day,
	)
	if err != nil {
		return removed, err
	}

	return removed + downloaded, nil
}

// cleanWrappers is the second action: removal of wrapper/distribution
// directories no longer used within their retention window. Snapshot
// wrappers age out faster than released ones.
func (s *Service) cleanWrappers() error {
	dists := filepath.Join(s.userHome, domain.WrapperDirName, "dists")
	entries, err := os.ReadDir(dists)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return zerr.Wrap(err, "failed to list wrapper distributions")
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		retention := time.Duration(s.cfg.ReleasedWrapperDays()) * day
		if strings.Contains(entry.Name(), "-snapshot") {
			retention = time.Duration(s.cfg.SnapshotWrapperDays()) * day
		}

		path := filepath.Join(dists, entry.Name())
		stale, err := dirUnusedSince(path, s.now().Add(-retention))
		if err != nil {
			return err
		}
		if !stale {
			continue
		}

		if err := os.RemoveAll(path); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to remove distribution"), "path", path)
		}
		s.logger.Debug("removed stale distribution", "path", path)
	}

	return nil
}

func (s *Service) removeStaleDirs(root string, retention time.Duration) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, zerr.Wrap(err, "failed to list cache directories")
	}

	cutoff := s.now().Add(-retention)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(root, entry.Name())
		stale, err := dirUnusedSince(path, cutoff)
		if err != nil {
			return removed, err
		}
		if !stale {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return removed, zerr.With(zerr.Wrap(err, "failed to remove cache directory"), "path", path)
		}
		removed++
		s.logger.Debug("removed stale cache directory", "path", path)
	}

	return removed, nil
}

// dirUnusedSince reports whether no file under dir has been modified at or
// after cutoff.
func dirUnusedSince(dir string, cutoff time.Time) (bool, error) {
	unused := true
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.ModTime().Before(cutoff) {
			unused = false
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return false, zerr.With(zerr.Wrap(err, "failed to inspect directory"), "path", dir)
	}
	return unused, nil
}

func (s *Service) stampPath() string {
	return filepath.Join(s.userHome, domain.GCStampFileName)
}

func (s *Service) stamp() error {
	if err := os.MkdirAll(s.userHome, domain.DirPerm); err != nil {
		return zerr.Wrap(err, "failed to create cache home")
	}
	stamp := s.now().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(s.stampPath(), []byte(stamp), domain.FilePerm); err != nil {
		return zerr.Wrap(err, "failed to write cleanup stamp")
	}
	return nil
}
