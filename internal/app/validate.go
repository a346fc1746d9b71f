package app

import (
	"fmt"

	"colloquy/pkg/config"
)

// validateConfig rejects configurations the server cannot run with.
func validateConfig(cfg *config.Config) error {
	if cfg.Server.DBPath == "" {
		return fmt.Errorf("db path is required (flag -db, env COLLOQUY_DB_PATH or server.db_path)")
	}
	if cfg.Hydration.WindowSize <= 0 {
		return fmt.Errorf("hydration window_size must be positive, got %d", cfg.Hydration.WindowSize)
	}
	if _, err := config.ParseSize(cfg.Hydration.MaxResourceSize); cfg.Hydration.MaxResourceSize != "" && err != nil {
		return fmt.Errorf("invalid hydration max_resource_size: %w", err)
	}
	for _, rs := range cfg.Tools.RemoteServers {
		if rs.ID == "" || rs.Endpoint == "" {
			return fmt.Errorf("remote tool servers need both id and endpoint")
		}
	}
	return nil
}
