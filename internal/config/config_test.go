package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadServerDefaultsWithoutPath(t *testing.T) {
	cfg, err := LoadServer("")
	require.NoError(t, err)
	require.Equal(t, "9100", cfg.Port)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadServerOverridesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"9200\"\nlog_level: debug\n"), 0o644))

	cfg, err := LoadServer(path)
	require.NoError(t, err)
	require.Equal(t, "9200", cfg.Port)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadClientDefaultsIncludeLocalProxy(t *testing.T) {
	cfg, err := LoadClient("")
	require.NoError(t, err)
	require.Equal(t, []string{"127.0.0.1:9000"}, cfg.Proxies)
}

func TestReadPortsFileExtractsPortHalf(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_servers.txt")
	require.NoError(t, os.WriteFile(path, []byte("web1:9100\nweb2:9101\n\n"), 0o644))

	ports, err := ReadPortsFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{"9100", "9101"}, ports)
}

func TestReadPortsFileRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_servers.txt")
	require.NoError(t, os.WriteFile(path, []byte("not-a-valid-entry\n"), 0o644))

	_, err := ReadPortsFile(path)
	require.Error(t, err)
}
