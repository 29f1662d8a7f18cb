// Package cmd implements the sheepgate command-line interface: flag/config
// binding through Cobra + Viper, and the serve subcommand that starts the
// gateway's metrics endpoint.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sheepgate/sheepgate/cfg"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "sheepgate",
	Short: "sheepgate is a distributed object-storage gateway",
	Long: `sheepgate exposes an S3-like account/bucket/object hierarchy over a
distributed block-object store, materializing that hierarchy as sparse
hyper-volumes.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "optional YAML config file")
	if err := cfg.BindFlags(rootCmd.PersistentFlags(), v); err != nil {
		panic(fmt.Errorf("cmd: bind flags: %w", err))
	}
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command; it is the entry point main.go calls.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads bound flags and, if --config-file was given, merges in
// the YAML document, then validates the result.
func loadConfig() (cfg.Config, error) {
	return loadConfigFrom(v, cfgFile)
}

func loadConfigFrom(vi *viper.Viper, configFile string) (cfg.Config, error) {
	if configFile != "" {
		vi.SetConfigFile(configFile)
		vi.SetConfigType("yaml")
		if err := vi.ReadInConfig(); err != nil {
			return cfg.Config{}, fmt.Errorf("cmd: read config file %q: %w", configFile, err)
		}
	}

	c := cfg.Default()
	if err := vi.Unmarshal(&c); err != nil {
		return cfg.Config{}, fmt.Errorf("cmd: unmarshal config: %w", err)
	}
	if err := cfg.Validate(c); err != nil {
		return cfg.Config{}, err
	}
	return c, nil
}
