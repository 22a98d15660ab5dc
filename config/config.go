package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"moneymarket/crypto"
)

const (
	DatabaseLevelDB = "leveldb"
	DatabaseMemory  = "memory"

	defaultListenAddress   = "127.0.0.1:8545"
	defaultDataDir         = "./moneymarket-data"
	defaultGovernanceAsset = "GOV"
	defaultChainID         = 43_114
)

type Config struct {
	ListenAddress     string    `toml:"ListenAddress" yaml:"listenAddress"`
	DataDir           string    `toml:"DataDir" yaml:"dataDir"`
	Database          string    `toml:"Database" yaml:"database"`
	Environment       string    `toml:"Environment" yaml:"environment"`
	ChainID           uint64    `toml:"ChainID" yaml:"chainId"`
	AdminKeystorePath string    `toml:"AdminKeystorePath" yaml:"adminKeystorePath"`
	Logging           Logging   `toml:"logging" yaml:"logging"`
	Telemetry         Telemetry `toml:"telemetry" yaml:"telemetry"`
	RateLimit         RateLimit `toml:"ratelimit" yaml:"ratelimit"`
	EventLog          EventLog  `toml:"eventlog" yaml:"eventlog"`
	Pauses            Pauses    `toml:"pauses" yaml:"pauses"`
	Genesis           Genesis   `toml:"genesis" yaml:"genesis"`
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load loads the configuration from the given path. A missing file is
// created with defaults and a freshly generated admin keystore.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg, err := decode(path)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if strings.TrimSpace(cfg.Genesis.Admin) == "" {
		if err := ensureKeystore(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(path string) (*Config, error) {
	cfg := &Config{}
	if isYAML(path) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = defaultListenAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaultDataDir
	}
	cfg.Database = strings.ToLower(strings.TrimSpace(cfg.Database))
	if cfg.Database == "" {
		cfg.Database = DatabaseLevelDB
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = defaultChainID
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 60
	}
	if strings.TrimSpace(cfg.Genesis.GovernanceAsset) == "" {
		cfg.Genesis.GovernanceAsset = defaultGovernanceAsset
	}
}

// ensureKeystore provisions the admin key when the genesis names no admin.
func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.AdminKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}
	var key *crypto.PrivateKey
	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		generated, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if _, err := crypto.SaveToKeystore(keystorePath, generated, ""); err != nil {
			return err
		}
		key = generated
	} else if err != nil {
		return err
	} else {
		loaded, err := crypto.LoadFromKeystore(keystorePath, "")
		if err != nil {
			return fmt.Errorf("admin keystore %s: %w", keystorePath, err)
		}
		key = loaded
	}
	cfg.AdminKeystorePath = keystorePath
	cfg.Genesis.Admin = key.PubKey().Address().String()
	return persist(configPath, cfg)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Genesis.CloseFactor = "0.5"
	cfg.Genesis.LiquidationIncentive = "1.08"
	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "admin.keystore")
}
