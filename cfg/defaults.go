package cfg

import (
	"time"

	"github.com/sheepgate/sheepgate/internal/wire"
)

// Default returns the configuration used when no flags or config file
// override it. Block size and placement bounds default to the §6.4
// constants so they're overridable in tests but fixed in production.
func Default() Config {
	return Config{
		Listen: ListenConfig{Addr: ":8080"},
		Store: StoreConfig{
			Endpoint:  "localhost:7000",
			BlockSize: wire.BlockSize,
			NrCopies:  1,
		},
		Logging: LoggingConfig{
			Severity: "INFO",
			Format:   "json",
			LogRotate: LogRotateConfig{
				MaxFileSizeMb:   512,
				BackupFileCount: 10,
				Compress:        true,
			},
		},
		Metrics: MetricsConfig{Addr: ":9090"},
		Placement: PlacementConfig{
			MaxProbe:       int(wire.MaxBuckets),
			RequestTimeout: 30 * time.Second,
		},
	}
}
