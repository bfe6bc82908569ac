package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yamlBody string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dnsrelay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))
	return path
}

const minimalYAML = `
listen: "0.0.0.0:53"
servers:
  - address: "10.0.0.1:53"
    zones: ["corp.internal"]
  - address: "1.1.1.1:53"
    zones: []
search: ["corp.internal"]
env: prod
log_level: info
`

func TestLoadParsesMinimalFile(t *testing.T) {
	path := writeConfig(t, minimalYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:53", cfg.Listen)
	require.Len(t, cfg.Servers, 2)
	assert.Equal(t, "10.0.0.1:53", cfg.Servers[0].Address)
	assert.Equal(t, []string{"corp.internal"}, cfg.Servers[0].Zones)
	assert.Empty(t, cfg.Servers[1].Zones)
	assert.Equal(t, []string{"corp.internal"}, cfg.Search)
	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadRejectsMissingServers(t *testing.T) {
	path := writeConfig(t, `
listen: "0.0.0.0:53"
env: prod
log_level: info
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadListenAddress(t *testing.T) {
	path := writeConfig(t, `
listen: "not-an-address"
servers:
  - address: "10.0.0.1:53"
env: prod
log_level: info
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownEnv(t *testing.T) {
	path := writeConfig(t, `
listen: "0.0.0.0:53"
servers:
  - address: "10.0.0.1:53"
env: staging
log_level: info
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEnvOverridesListen(t *testing.T) {
	path := writeConfig(t, minimalYAML)

	t.Setenv("DNSRELAY_LISTEN", "127.0.0.1:5353")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:5353", cfg.Listen)
}

func TestToDomainResolvesServersAndZones(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	domainCfg, err := ToDomain(*cfg)
	require.NoError(t, err)

	require.Len(t, domainCfg.Servers, 2)
	assert.False(t, domainCfg.Servers[0].IsDefault())
	assert.True(t, domainCfg.Servers[1].IsDefault())
	assert.Equal(t, []string{"corp.internal"}, domainCfg.Search)
}

func TestToDomainRejectsUnparsableAddress(t *testing.T) {
	_, err := ToDomain(AppConfig{Servers: []ServerEntry{{Address: "garbage"}}})
	assert.Error(t, err)
}

func TestWatchReturnsAnUpdatesChannelAndStopFunc(t *testing.T) {
	path := writeConfig(t, minimalYAML)

	updates, stop, err := Watch(path)
	require.NoError(t, err)
	require.NotNil(t, updates)
	require.NotNil(t, stop)
	stop()
}
