package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"moneymarket/core/exp"
	"moneymarket/crypto"
	"moneymarket/native/interest"
	"moneymarket/native/lending"
)

var (
	testAdmin    = crypto.ModuleAddress("config/admin").String()
	testGuardian = crypto.ModuleAddress("config/guardian").String()
	testHolder   = crypto.ModuleAddress("config/holder").String()
)

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesTOML(t *testing.T) {
	path := writeFile(t, "config.toml", fmt.Sprintf(`ListenAddress = "0.0.0.0:9000"
DataDir = "./data"
Environment = "dev"

[logging]
Level = "debug"
File = "./logs/node.log"

[eventlog]
Driver = "sqlite"
DSN = "./events.db"

[genesis]
Admin = "%s"
PauseGuardian = "%s"
CloseFactor = "0.5"
LiquidationIncentive = "1.08"

[[genesis.Markets]]
Underlying = "dai"
Symbol = "mmDAI"
Price = "1"
CollateralFactor = "0.75"
ReserveFactor = "0.1"
BorrowCap = "1000000"

[genesis.Markets.RateModel]
Kind = "whitepaper"
BaseRatePerYear = "0.02"
MultiplierPerYear = "0.2"

[[genesis.Markets.Rewards]]
Type = "native"
SupplySpeed = "0.5"
BorrowSpeed = "0.25"

[[genesis.Allocations]]
Address = "%s"
Asset = "DAI"
Amount = "5000"
`, testAdmin, testGuardian, testHolder))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.ListenAddress)
	require.Equal(t, DatabaseLevelDB, cfg.Database)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, defaultGovernanceAsset, cfg.Genesis.GovernanceAsset)
	require.Equal(t, uint64(defaultChainID), cfg.ChainID)
	require.Equal(t, 600.0, cfg.RateLimit.RequestsPerMinute)

	params, err := cfg.Genesis.ControllerParams()
	require.NoError(t, err)
	require.Equal(t, crypto.MustParseAddress(testAdmin), params.Admin)
	require.Equal(t, crypto.MustParseAddress(testGuardian), params.PauseGuardian)
	require.True(t, params.BorrowCapGuardian.IsZero())
	require.Equal(t, exp.MustMantissa("1.08"), params.LiquidationIncentive)

	require.Len(t, cfg.Genesis.Markets, 1)
	market, err := cfg.Genesis.Markets[0].MarketConfig()
	require.NoError(t, err)
	require.Equal(t, "DAI", market.Underlying)
	require.Equal(t, exp.MustMantissa("0.02"), market.InitialExchangeRate)
	require.Equal(t, exp.MustMantissa("1000000"), market.BorrowCap)
	require.Equal(t, interest.KindWhitePaper, market.RateModel.Kind)

	rt, supply, borrow, err := cfg.Genesis.Markets[0].Rewards[0].Parse()
	require.NoError(t, err)
	require.Equal(t, lending.RewardNative, rt)
	require.Equal(t, exp.MustMantissa("0.5"), supply)
	require.Equal(t, exp.MustMantissa("0.25"), borrow)

	holder, asset, amount, err := cfg.Genesis.Allocations[0].Parse()
	require.NoError(t, err)
	require.Equal(t, crypto.MustParseAddress(testHolder), holder)
	require.Equal(t, "DAI", asset)
	require.Equal(t, exp.MustMantissa("5000"), amount)
}

func TestLoadParsesYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", fmt.Sprintf(`listenAddress: 127.0.0.1:7000
database: memory
ratelimit:
  requestsPerMinute: 30
  burst: 5
genesis:
  admin: %s
  markets:
    - underlying: native
      collateralFactor: "0.8"
    - underlying: COLL
      price: "2.5"
      collateralFactor: "0.5"
`, testAdmin))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DatabaseMemory, cfg.Database)
	require.Equal(t, 30.0, cfg.RateLimit.RequestsPerMinute)
	require.Equal(t, 5, cfg.RateLimit.Burst)
	require.Len(t, cfg.Genesis.Markets, 2)

	market, err := cfg.Genesis.Markets[0].MarketConfig()
	require.NoError(t, err)
	require.Equal(t, "native", market.Underlying)
	require.Equal(t, interest.KindJumpRate, market.RateModel.Kind)

	price, err := cfg.Genesis.Markets[1].PriceMantissa()
	require.NoError(t, err)
	require.Equal(t, exp.MustMantissa("2.5"), price)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "config.toml", fmt.Sprintf(`ListenAddress = ":1"
Bootnodes = ["1.1.1.1:6001"]

[genesis]
Admin = "%s"
`, testAdmin))
	_, err := Load(path)
	require.ErrorContains(t, err, "Bootnodes")

	yamlPath := writeFile(t, "config.yml", "listenAddress: \":1\"\nbootnodes: []\n")
	_, err = Load(yamlPath)
	require.Error(t, err)
}

func TestLoadCreatesDefaultWithAdminKeystore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node", "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.FileExists(t, cfg.AdminKeystorePath)
	require.NotEmpty(t, cfg.Genesis.Admin)
	require.Equal(t, "0.5", cfg.Genesis.CloseFactor)

	key, err := crypto.LoadFromKeystore(cfg.AdminKeystorePath, "")
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().String(), cfg.Genesis.Admin)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Genesis.Admin, reloaded.Genesis.Admin)
}

func validConfig() *Config {
	cfg := &Config{Genesis: Genesis{Admin: testAdmin}}
	applyDefaults(cfg)
	return cfg
}

func TestValidateRejectsOutOfBoundsGenesis(t *testing.T) {
	cases := map[string]func(*Config){
		"close factor low":    func(c *Config) { c.Genesis.CloseFactor = "0.01" },
		"close factor high":   func(c *Config) { c.Genesis.CloseFactor = "0.95" },
		"incentive below one": func(c *Config) { c.Genesis.LiquidationIncentive = "0.99" },
		"missing admin":       func(c *Config) { c.Genesis.Admin = "" },
		"bad guardian":        func(c *Config) { c.Genesis.PauseGuardian = "mm1xyz" },
		"collateral factor": func(c *Config) {
			c.Genesis.Markets = []MarketGenesis{{Underlying: "DAI", Price: "1", CollateralFactor: "0.91"}}
		},
		"reserve factor": func(c *Config) {
			c.Genesis.Markets = []MarketGenesis{{Underlying: "DAI", ReserveFactor: "1.5"}}
		},
		"unpriced collateral": func(c *Config) {
			c.Genesis.Markets = []MarketGenesis{{Underlying: "DAI", CollateralFactor: "0.5"}}
		},
		"duplicate market": func(c *Config) {
			c.Genesis.Markets = []MarketGenesis{{Underlying: "dai"}, {Underlying: "DAI"}}
		},
		"duplicate symbol": func(c *Config) {
			c.Genesis.Markets = []MarketGenesis{{Underlying: "DAI", Symbol: "mm"}, {Underlying: "USDC", Symbol: "MM"}}
		},
		"bad rate model": func(c *Config) {
			c.Genesis.Markets = []MarketGenesis{{Underlying: "DAI", RateModel: RateModel{Kind: "curve"}}}
		},
		"bad reward type": func(c *Config) {
			c.Genesis.Markets = []MarketGenesis{{Underlying: "DAI", Rewards: []RewardSpeed{{Type: "bonus"}}}}
		},
		"allocation without address": func(c *Config) {
			c.Genesis.Allocations = []Allocation{{Asset: "DAI", Amount: "1"}}
		},
		"postgres without dsn": func(c *Config) { c.EventLog.Driver = "postgres" },
		"unknown database":     func(c *Config) { c.Database = "badger" },
		"sample ratio":         func(c *Config) { c.Telemetry.SampleRatio = 1.5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, validConfig().Validate())
}

func TestRewardReservesMayOmitAddress(t *testing.T) {
	cfg := validConfig()
	cfg.Genesis.RewardReserves = []Allocation{{Asset: "GOV", Amount: "100"}}
	require.NoError(t, cfg.Validate())
}
