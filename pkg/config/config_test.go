package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spotmatchd.toml")
	contents := `
id = 2
start_with_leader = true
addr = "0.0.0.0:5000"
metrics_addr = "0.0.0.0:5010"
base_path = "/tmp/data"
log_level = "debug"

[[node_list]]
id = 1
addr = "10.0.0.1:4000"

[[node_list]]
id = 2
addr = "10.0.0.2:4000"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.EqualValues(t, 2, cfg.ID)
	assert.True(t, cfg.StartWithLeader)
	assert.Equal(t, "0.0.0.0:5000", cfg.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)
	require.Len(t, cfg.NodeList, 2)

	addr, ok := cfg.PeerAddr(1)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1:4000", addr)

	assert.ElementsMatch(t, []uint64{1, 2}, cfg.Peers())

	_, ok = cfg.PeerAddr(99)
	assert.False(t, ok)
}
