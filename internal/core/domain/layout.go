package domain

import (
	"os"
	"path/filepath"
	"sync"
)

const (
	// MasonDirName is the name of the workspace-local metadata directory.
	MasonDirName = ".mason"

	// HistoryDirName holds per-node execution records.
	HistoryDirName = "history"

	// ConfCacheDirName holds configuration cache snapshots.
	ConfCacheDirName = "configuration-cache"

	// BlobDirName is the content-addressed blob store inside the user cache.
	BlobDirName = "cas"

	// WrapperDirName holds version-scoped wrapper/distribution artifacts.
	WrapperDirName = "wrapper"

	// SettingsFileName is the user-level cache settings file.
	SettingsFileName = "settings.yaml"

	// GCStampFileName records when cleanup last ran.
	GCStampFileName = "gc.stamp"

	// BuildFileName is the workspace build definition.
	BuildFileName = "mason.yaml"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644
)

// HistoryPath returns the execution-history directory for a workspace.
func HistoryPath(root string) string {
	return filepath.Join(root, MasonDirName, HistoryDirName)
}

// ConfCachePath returns the configuration-cache directory for a workspace.
func ConfCachePath(root string) string {
	return filepath.Join(root, MasonDirName, ConfCacheDirName)
}

var (
	userHomeOnce sync.Once
	userHomeDir  string
	userHomeErr  error
)

// UserCacheHome resolves the user-home-scoped mason directory holding the
// shared cache stores and settings. Resolved once per process; MASON_USER_HOME
// overrides the default for tests and sandboxed environments.
func UserCacheHome() (string, error) {
	userHomeOnce.Do(func() {
		if override := os.Getenv("MASON_USER_HOME"); override != "" {
			userHomeDir = override
			return
		}
		home, err := os.UserHomeDir()
		if err != nil {
			userHomeErr = err
			return
		}
		userHomeDir = filepath.Join(home, MasonDirName)
	})
	return userHomeDir, userHomeErr
}
