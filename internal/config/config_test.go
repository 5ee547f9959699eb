package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "sepolia", cfg.Network)
	assert.Equal(t, "text", cfg.Format)
	assert.Equal(t, time.Second, cfg.BatchDelay)
	assert.False(t, cfg.Watch)
	assert.Empty(t, cfg.Contracts)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := `network: mainnet
license: MIT
watch: true
fail-fast: true
batch-delay: 3s
default-package: my_pkg
contracts:
  - class-hash: "0x1"
    contract-name: counter
  - class-hash: "0x2"
    contract-name: token
    package: erc20
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "mainnet", cfg.Network)
	assert.Equal(t, "MIT", cfg.License)
	assert.True(t, cfg.Watch)
	assert.True(t, cfg.FailFast)
	assert.Equal(t, 3*time.Second, cfg.BatchDelay)
	assert.Equal(t, "my_pkg", cfg.DefaultPackage)
	require.Len(t, cfg.Contracts, 2)
	assert.Equal(t, "counter", cfg.Contracts[0].ContractName)
	assert.Equal(t, "erc20", cfg.Contracts[1].Package)
}

func TestLoadWalksUpForConfigFile(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName), []byte("network: dev\n"), 0o644))

	cfg, err := Load(nested)
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Network)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("network: mainnet\nwatch: false\n"), 0o644))

	t.Setenv("STARKVERIFY_NETWORK", "dev")
	t.Setenv("STARKVERIFY_WATCH", "true")
	t.Setenv("STARKVERIFY_BATCH_DELAY", "10s")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Network)
	assert.True(t, cfg.Watch)
	assert.Equal(t, 10*time.Second, cfg.BatchDelay)
}

func TestDotEnvIsLoaded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STARKVERIFY_LICENSE=Apache-2.0\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("STARKVERIFY_LICENSE") })

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "Apache-2.0", cfg.License)
}

func TestResolveAPIURL(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{"explicit url wins", Config{Network: "mainnet", URL: "http://localhost:8080/beta"}, "http://localhost:8080/beta", false},
		{"mainnet", Config{Network: "mainnet"}, "https://api.voyager.online/beta", false},
		{"sepolia", Config{Network: "sepolia"}, "https://sepolia-api.voyager.online/beta", false},
		{"dev", Config{Network: "dev"}, "https://dev-api.voyager.online/beta", false},
		{"case insensitive", Config{Network: "Mainnet"}, "https://api.voyager.online/beta", false},
		{"unknown network", Config{Network: "goerli"}, "", true},
		{"nothing configured", Config{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.ResolveAPIURL()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
