package cli

import (
	"github.com/rs/zerolog"

	"github.com/edvin/shopvault/internal/config"
	"github.com/edvin/shopvault/internal/logging"
	"github.com/edvin/shopvault/internal/source"
)

func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logging.NewLogger(cfg), nil
}

// buildSources returns the component adapters in pipeline order:
// database, blobs, config. Restore injects in this same order, with
// configuration last.
func buildSources(logger zerolog.Logger, cfg *config.Config) []source.ComponentSource {
	return []source.ComponentSource{
		source.NewDatabaseSource(logger, cfg.DatabaseURL),
		source.NewBlobTreeSource(logger, cfg.BlobRoot),
		source.NewConfigSnapshotSource(logger, cfg.ConfigDir),
	}
}
