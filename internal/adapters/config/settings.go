package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.trai.ch/mason/internal/core/domain"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// settingsDTO mirrors the user-level settings.yaml cache section.
type settingsDTO struct {
	Caches struct {
		Enabled                *bool  `yaml:"enabled"`
		Frequency              string `yaml:"frequency"`
		ReleasedWrapperDays    *int   `yaml:"releasedWrapperDays"`
		SnapshotWrapperDays    *int   `yaml:"snapshotWrapperDays"`
		DownloadedResourceDays *int   `yaml:"downloadedResourceDays"`
		CreatedResourceDays    *int   `yaml:"createdResourceDays"`
	} `yaml:"caches"`
}

// LoadCacheConfigurations reads the user-level cache retention settings,
// falling back to defaults when no settings file exists. The returned record
// is not yet finalized; the app finalizes it before the first node executes.
func LoadCacheConfigurations(userHome string) (*domain.CacheConfigurations, error) {
	cfg := domain.DefaultCacheConfigurations()

	path := filepath.Join(userHome, domain.SettingsFileName)
	data, err := os.ReadFile(path) //nolint:gosec // path is inside the mason user home
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, zerr.With(zerr.Wrap(err, "failed to read settings"), "path", path)
	}

	var dto settingsDTO
	if err := yaml.Unmarshal(data, &dto); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to parse settings"), "path", path)
	}

	c := dto.Caches
	if c.Enabled != nil {
		_ = cfg.SetEnabled(*c.Enabled)
	}
	if c.Frequency != "" {
		switch f := domain.CleanupFrequency(c.Frequency); f {
		case domain.CleanupAlways, domain.CleanupDaily, domain.CleanupDisabled:
			_ = cfg.SetFrequency(f)
		default:
			return nil, zerr.With(zerr.New("unknown cleanup frequency"), "frequency", c.Frequency)
		}
	}
	if c.ReleasedWrapperDays != nil {
		_ = cfg.SetReleasedWrapperDays(*c.ReleasedWrapperDays)
	}
	if c.SnapshotWrapperDays != nil {
		_ = cfg.SetSnapshotWrapperDays(*c.SnapshotWrapperDays)
	}
	if c.DownloadedResourceDays != nil {
		_ = cfg.SetDownloadedResourceDays(*c.DownloadedResourceDays)
	}
	if c.CreatedResourceDays != nil {
		_ = cfg.SetCreatedResourceDays(*c.CreatedResourceDays)
	}

	return cfg, nil
}
