package confcache

import "go.trai.ch/mason/internal/core/domain"

// FormatVersion is the snapshot schema version. Any mismatch discards the
// snapshot and forces full reconfiguration.
const FormatVersion = 1

// FileDigest captures the identity of one build file that produced the
// snapshot. Mtime and size are a cheap staleness probe; Probe is a fast
// content hash consulted when the probe misses; Digest is authoritative.
type FileDigest struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Mtime  int64  `json:"mtime_unix_nano"`
	Probe  uint64 `json:"probe"`
	Digest string `json:"digest"`
}

// Snapshot is the serialized closure of a configured work graph together
// with the fingerprint of the inputs that produced it.
type Snapshot struct {
	FormatVersion int               `json:"format_version"`
	Nodes         []domain.Node     `json:"nodes"`
	ConfigFiles   []FileDigest      `json:"config_files"`
	EnvReads      map[string]string `json:"env_reads,omitzero"`
}
