package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsAndValidates(t *testing.T) {
	cfg, err := Load("/nonexistent/path/for/defaults")
	require.NoError(t, err)
	assert.Equal(t, 65536, cfg.Queue.Capacity)
	assert.Equal(t, "mpsc", cfg.Queue.Mode)
	assert.False(t, cfg.Parser.EnforceChecksum, "checksum enforcement should default to false")
}
