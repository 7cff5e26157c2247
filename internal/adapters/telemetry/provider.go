package telemetry

import (
	"os"

	"go.trai.ch/mason/internal/adapters/telemetry/progrock"
	"go.trai.ch/mason/internal/core/ports"
)

// NewFromEnvironment selects the telemetry backend. MASON_PROGRESS=plain
// disables the progrock tape, which is useful for CI logs and tests.
func NewFromEnvironment() ports.Telemetry {
	if os.Getenv("MASON_PROGRESS") == "plain" {
		return NewNoOp()
	}
	return progrock.New()
}
