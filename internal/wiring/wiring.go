// Package wiring pulls in every Graft node registration. Importing it for
// side effects is all an entrypoint needs to assemble the application.
package wiring

import (
	_ "go.trai.ch/mason/internal/adapters/cas"
	_ "go.trai.ch/mason/internal/adapters/cleanup"
	_ "go.trai.ch/mason/internal/adapters/confcache"
	_ "go.trai.ch/mason/internal/adapters/config"
	_ "go.trai.ch/mason/internal/adapters/fingerprint"
	_ "go.trai.ch/mason/internal/adapters/fs"
	_ "go.trai.ch/mason/internal/adapters/logger"
	_ "go.trai.ch/mason/internal/adapters/shell"
	_ "go.trai.ch/mason/internal/adapters/telemetry"
	_ "go.trai.ch/mason/internal/app"
)
