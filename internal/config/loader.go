package config

import (
	"context"
)

// Loader resolves the orchestrator's configuration from some source. The
// deployed binary reads a YAML file (see fileloader), but the port keeps the
// orchestrator wiring independent of where settings actually live.
type Loader interface {
	// Load retrieves and parses the configuration. Defaults are applied by
	// the caller, not the loader.
	Load(ctx context.Context) (*Config, error)
}
