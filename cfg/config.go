// Package cfg describes the gateway process's runtime configuration:
// listen address, backing-store endpoint, logging, metrics, and
// placement tuning. Values are bound to both CLI flags and an optional
// YAML config file through Viper.
package cfg

import "time"

// Config is the root configuration object, unmarshaled from flags and an
// optional config file by cmd/root.go.
type Config struct {
	Listen    ListenConfig    `mapstructure:"listen"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Placement PlacementConfig `mapstructure:"placement"`
}

// ListenConfig controls the HTTP front end's bind address.
type ListenConfig struct {
	Addr string `mapstructure:"addr"`
}

// StoreConfig addresses the backing distributed block-object store.
type StoreConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	BlockSize int    `mapstructure:"block-size"`
	NrCopies  int    `mapstructure:"nr-copies"`
}

// LoggingConfig selects severity, format, and optional file rotation.
type LoggingConfig struct {
	Severity  string          `mapstructure:"severity"`
	Format    string          `mapstructure:"format"`
	FilePath  string          `mapstructure:"file-path"`
	LogRotate LogRotateConfig `mapstructure:"log-rotate"`
}

// LogRotateConfig configures lumberjack when FilePath is set.
type LogRotateConfig struct {
	MaxFileSizeMb   int  `mapstructure:"max-file-size-mb"`
	BackupFileCount int  `mapstructure:"backup-file-count"`
	Compress        bool `mapstructure:"compress"`
}

// MetricsConfig controls the Prometheus exporter endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// PlacementConfig holds placement settings. MaxProbe is validated but not
// read by the bucket or object probes; RequestTimeout is the shutdown
// deadline cmd/serve.go gives the metrics endpoint.
type PlacementConfig struct {
	MaxProbe       int           `mapstructure:"max-probe"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
}
