package cfg_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sheepgate/sheepgate/cfg"
)

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, cfg.Validate(cfg.Default()))
}

func TestValidateRejectsNonPowerOfTwoBlockSize(t *testing.T) {
	c := cfg.Default()
	c.Store.BlockSize = 3
	assert.Error(t, cfg.Validate(c))
}

func TestValidateRejectsZeroMaxProbe(t *testing.T) {
	c := cfg.Default()
	c.Placement.MaxProbe = 0
	assert.Error(t, cfg.Validate(c))
}

func TestValidateRejectsUnknownSeverity(t *testing.T) {
	c := cfg.Default()
	c.Logging.Severity = "VERBOSE"
	assert.Error(t, cfg.Validate(c))
}

func TestValidateRejectsUnknownFormat(t *testing.T) {
	c := cfg.Default()
	c.Logging.Format = "xml"
	assert.Error(t, cfg.Validate(c))
}
