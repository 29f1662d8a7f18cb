package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheepgate/sheepgate/cfg"
)

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	vi := viper.New()
	require.NoError(t, cfg.BindFlags(fs, vi))
	return vi
}

func TestLoadConfigAppliesDefaultsWhenNoFileGiven(t *testing.T) {
	c, err := loadConfigFrom(newTestViper(t), "")
	require.NoError(t, err)
	assert.Equal(t, ":9090", c.Metrics.Addr)
}

func TestLoadConfigMergesYamlFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sheepgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("metrics:\n  addr: \":9999\"\n"), 0o644))

	c, err := loadConfigFrom(newTestViper(t), path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", c.Metrics.Addr)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  severity: \"LOUD\"\n"), 0o644))

	_, err := loadConfigFrom(newTestViper(t), path)
	assert.Error(t, err)
}
