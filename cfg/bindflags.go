package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BindFlags registers every flag on fs and binds it into v under the
// same dotted key used by mapstructure, so a YAML config file and CLI
// flags populate the same Config fields.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	d := Default()

	fs.String("listen.addr", d.Listen.Addr, "address the HTTP front end listens on")
	fs.String("store.endpoint", d.Store.Endpoint, "backing distributed block-object store endpoint")
	fs.Int("store.block-size", d.Store.BlockSize, "data block size in bytes, must be a power of two (validated only; placement always uses 4 MiB blocks)")
	fs.Int("store.nr-copies", d.Store.NrCopies, "replica count, must be positive (validated only; new volumes are created with 1 copy)")
	fs.String("logging.severity", d.Logging.Severity, "TRACE, DEBUG, INFO, WARNING, ERROR, or OFF")
	fs.String("logging.format", d.Logging.Format, "json or text")
	fs.String("logging.file-path", d.Logging.FilePath, "log file path; empty logs to stderr")
	fs.Int("logging.log-rotate.max-file-size-mb", d.Logging.LogRotate.MaxFileSizeMb, "max log file size before rotation")
	fs.Int("logging.log-rotate.backup-file-count", d.Logging.LogRotate.BackupFileCount, "rotated log files to retain")
	fs.Bool("logging.log-rotate.compress", d.Logging.LogRotate.Compress, "gzip rotated log files")
	fs.String("metrics.addr", d.Metrics.Addr, "address the Prometheus /metrics endpoint listens on")
	fs.Int("placement.max-probe", d.Placement.MaxProbe, "open-addressing probe step bound, must be positive (validated only; bucket and object probes do not read it)")
	fs.Duration("placement.request-timeout", d.Placement.RequestTimeout, "deadline for shutting down the metrics endpoint on SIGINT/SIGTERM; not applied to store calls")

	return v.BindPFlags(fs)
}
