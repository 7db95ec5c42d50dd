package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, "./streampay-data", cfg.DataDir)
	require.Equal(t, "0", cfg.DefaultFeeRate)
	require.Equal(t, "dev", cfg.LogEnv)
	require.Equal(t, 100, cfg.LogMaxSizeMB)

	// The generated file loads back cleanly.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Vault, reloaded.Vault)
}

func TestLoadParsesFullConfig(t *testing.T) {
	path := writeConfig(t, `
DataDir = "/var/lib/streampay"
Vault = "0x00000000000000000000000000000000000000aa"
FeeCollector = "0x00000000000000000000000000000000000000bb"
DefaultFeeRate = "10000000000000000"
Admins = ["0x00000000000000000000000000000000000000cc"]
LogEnv = "prod"

[TokenFeeRates]
PAY = "20000000000000000"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	vault, err := cfg.VaultAddress()
	require.NoError(t, err)
	require.Equal(t, byte(0xAA), vault[19])

	collector, err := cfg.FeeCollectorAddress()
	require.NoError(t, err)
	require.Equal(t, byte(0xBB), collector[19])

	admins, err := cfg.AdminAddresses()
	require.NoError(t, err)
	require.Len(t, admins, 1)
	require.Equal(t, byte(0xCC), admins[0][19])

	policy, err := cfg.FeePolicy()
	require.NoError(t, err)
	require.Equal(t, "10000000000000000", policy.DefaultRate.String())
	require.Equal(t, "20000000000000000", policy.RateFor("PAY").String())
}

func TestLoadRejectsBadVault(t *testing.T) {
	path := writeConfig(t, `Vault = "0x1234"`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Vault")
}

func TestLoadRejectsBadFeeRate(t *testing.T) {
	path := writeConfig(t, `
Vault = "0x0000000000000000000000000000000000000001"
DefaultFeeRate = "not-a-number"
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "DefaultFeeRate")
}

func TestLoadRejectsFeeRateAbove100Percent(t *testing.T) {
	path := writeConfig(t, `
Vault = "0x0000000000000000000000000000000000000001"
DefaultFeeRate = "1000000000000000001"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestEmptyFeeCollectorIsZeroAddress(t *testing.T) {
	path := writeConfig(t, `Vault = "0x0000000000000000000000000000000000000001"`)
	cfg, err := Load(path)
	require.NoError(t, err)
	collector, err := cfg.FeeCollectorAddress()
	require.NoError(t, err)
	require.Equal(t, [20]byte{}, collector)
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0x00000000000000000000000000000000000000ff")
	require.NoError(t, err)
	require.Equal(t, byte(0xFF), addr[19])

	withoutPrefix, err := ParseAddress("00000000000000000000000000000000000000ff")
	require.NoError(t, err)
	require.Equal(t, addr, withoutPrefix)

	_, err = ParseAddress("0xzz")
	require.Error(t, err)
	_, err = ParseAddress("0x01")
	require.Error(t, err)
}
