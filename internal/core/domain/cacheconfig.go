package domain

// CleanupFrequency controls how often the cleanup service may run.
type CleanupFrequency string

const (
	// CleanupAlways runs cleanup on every eligible invocation.
	CleanupAlways CleanupFrequency = "ALWAYS"
	// CleanupDaily runs cleanup at most once per 24 hours.
	CleanupDaily CleanupFrequency = "DAILY"
	// CleanupDisabled never runs cleanup.
	CleanupDisabled CleanupFrequency = "DISABLED"
)

// CacheConfigurations is the user-overridable retention policy for the shared
// caches. Once the owning build has started executing nodes the record is
// finalized: cleanup decisions and cache paths are derived from it, so it must
// not change mid-execution.
type CacheConfigurations struct {
	releasedWrapperDays    int
	snapshotWrapperDays    int
	downloadedResourceDays int
	createdResourceDays    int
	frequency              CleanupFrequency
	enabled                bool

	finalized bool
}

// DefaultCacheConfigurations returns the stock retention policy.
func DefaultCacheConfigurations() *CacheConfigurations {
	return &CacheConfigurations{
		releasedWrapperDays:    30,
		snapshotWrapperDays:    7,
		downloadedResourceDays: 30,
		createdResourceDays:    7,
		frequency:              CleanupDaily,
		enabled:                true,
	}
}

// FinalizeConfigurations seals the record. Idempotent.
func (c *CacheConfigurations) FinalizeConfigurations() {
	c.finalized = true
}

// Finalized reports whether the record has been sealed.
func (c *CacheConfigurations) Finalized() bool {
	return c.finalized
}

func (c *CacheConfigurations) mutate(apply func()) error {
	if c.finalized {
		return ErrCacheConfigFinalized
	}
	apply()
	return nil
}

// SetReleasedWrapperDays sets the retention for released-version wrappers.
func (c *CacheConfigurations) SetReleasedWrapperDays(days int) error {
	return c.mutate(func() { c.releasedWrapperDays = days })
}

// SetSnapshotWrapperDays sets the retention for snapshot wrappers.
func (c *CacheConfigurations) SetSnapshotWrapperDays(days int) error {
	return c.mutate(func() { c.snapshotWrapperDays = days })
}

// SetDownloadedResourceDays sets the retention for downloaded artifacts.
func (c *CacheConfigurations) SetDownloadedResourceDays(days int) error {
	return c.mutate(func() { c.downloadedResourceDays = days })
}

// SetCreatedResourceDays sets the retention for build-cache entries.
func (c *CacheConfigurations) SetCreatedResourceDays(days int) error {
	return c.mutate(func() { c.createdResourceDays = days })
}

// SetFrequency sets the cleanup frequency.
func (c *CacheConfigurations) SetFrequency(f CleanupFrequency) error {
	return c.mutate(func() { c.frequency = f })
}

// SetEnabled toggles cleanup.
func (c *CacheConfigurations) SetEnabled(enabled bool) error {
	return c.mutate(func() { c.enabled = enabled })
}

// ReleasedWrapperDays returns the retention for released-version wrappers.
func (c *CacheConfigurations) ReleasedWrapperDays() int { return c.releasedWrapperDays }

// SnapshotWrapperDays returns the retention for snapshot wrappers.
func (c *CacheConfigurations) SnapshotWrapperDays() int { return c.snapshotWrapperDays }

// DownloadedResourceDays returns the retention for downloaded artifacts.
func (c *CacheConfigurations) DownloadedResourceDays() int { return c.downloadedResourceDays }

// CreatedResourceDays returns the retention for build-cache entries.
func (c *CacheConfigurations) CreatedResourceDays() int { return c.createdResourceDays }

// Frequency returns the cleanup frequency.
func (c *CacheConfigurations) Frequency() CleanupFrequency { return c.frequency }

// Enabled reports whether cleanup is enabled.
func (c *CacheConfigurations) Enabled() bool { return c.enabled }
