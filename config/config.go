package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"streampay/native/stream"
)

// Config is the protocol deployment configuration, loaded from a TOML file.
// Fee rates are decimal strings in parts-per-1e18 of every withdrawal.
type Config struct {
	DataDir        string            `toml:"DataDir"`
	Vault          string            `toml:"Vault"`
	FeeCollector   string            `toml:"FeeCollector"`
	DefaultFeeRate string            `toml:"DefaultFeeRate"`
	TokenFeeRates  map[string]string `toml:"TokenFeeRates"`
	Admins         []string          `toml:"Admins"`
	LogEnv         string            `toml:"LogEnv"`
	LogFile        string            `toml:"LogFile"`
	LogMaxSizeMB   int               `toml:"LogMaxSizeMB"`
	LogMaxBackups  int               `toml:"LogMaxBackups"`
}

// Load reads the configuration at path, creating a commented default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./streampay-data"
	}
	if strings.TrimSpace(c.DefaultFeeRate) == "" {
		c.DefaultFeeRate = "0"
	}
	if c.TokenFeeRates == nil {
		c.TokenFeeRates = map[string]string{}
	}
	if strings.TrimSpace(c.LogEnv) == "" {
		c.LogEnv = "dev"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 5
	}
}

// Validate checks addresses and fee rates without mutating the config.
func (c *Config) Validate() error {
	if _, err := c.VaultAddress(); err != nil {
		return err
	}
	if strings.TrimSpace(c.FeeCollector) != "" {
		if _, err := ParseAddress(c.FeeCollector); err != nil {
			return fmt.Errorf("config: FeeCollector: %w", err)
		}
	}
	if _, err := c.FeePolicy(); err != nil {
		return err
	}
	if _, err := c.AdminAddresses(); err != nil {
		return err
	}
	return nil
}

// VaultAddress parses the protocol vault address.
func (c *Config) VaultAddress() ([20]byte, error) {
	addr, err := ParseAddress(c.Vault)
	if err != nil {
		return [20]byte{}, fmt.Errorf("config: Vault: %w", err)
	}
	return addr, nil
}

// FeeCollectorAddress parses the fee collector; an empty setting yields the
// zero address, which the engine rejects only once a fee is actually due.
func (c *Config) FeeCollectorAddress() ([20]byte, error) {
	if strings.TrimSpace(c.FeeCollector) == "" {
		return [20]byte{}, nil
	}
	addr, err := ParseAddress(c.FeeCollector)
	if err != nil {
		return [20]byte{}, fmt.Errorf("config: FeeCollector: %w", err)
	}
	return addr, nil
}

// AdminAddresses parses the accounts granted the stream admin role.
func (c *Config) AdminAddresses() ([][20]byte, error) {
	admins := make([][20]byte, 0, len(c.Admins))
	for _, raw := range c.Admins {
		addr, err := ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("config: Admins: %w", err)
		}
		admins = append(admins, addr)
	}
	return admins, nil
}

// FeePolicy builds the fee configuration from the decimal rate strings.
func (c *Config) FeePolicy() (*stream.FeePolicy, error) {
	defaultRate, err := parseRate(c.DefaultFeeRate)
	if err != nil {
		return nil, fmt.Errorf("config: DefaultFeeRate: %w", err)
	}
	policy := stream.NewFeePolicy(nil)
	if err := policy.SetDefaultRate(defaultRate); err != nil {
		return nil, fmt.Errorf("config: DefaultFeeRate: %w", err)
	}
	for token, raw := range c.TokenFeeRates {
		rate, err := parseRate(raw)
		if err != nil {
			return nil, fmt.Errorf("config: TokenFeeRates[%s]: %w", token, err)
		}
		if err := policy.SetTokenRate(token, rate); err != nil {
			return nil, fmt.Errorf("config: TokenFeeRates[%s]: %w", token, err)
		}
	}
	return policy, nil
}

// ParseAddress decodes a 0x-prefixed 20-byte hex address.
func ParseAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %v", raw, err)
	}
	if len(decoded) != 20 {
		return addr, fmt.Errorf("invalid address %q: want 20 bytes, got %d", raw, len(decoded))
	}
	copy(addr[:], decoded)
	return addr, nil
}

func parseRate(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	rate, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid fee rate %q", raw)
	}
	return rate, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		Vault: "0x0000000000000000000000000000000000000001",
	}
	cfg.applyDefaults()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.WriteString(defaultConfigHeader); err != nil {
		return nil, err
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

const defaultConfigHeader = `# streampay protocol configuration.
# Fee rates are decimal integers in parts-per-1e18 (1e16 = 1%).
`
