// Package config loads the ASP-side operational parameters PoolManager
// and PoolWatcher need to construct: the batching interval, the claim
// and redeem timeouts, the Elements network to sign against, the ASP's
// signing epoch, and the miner-fee/connector-dust policy.
package config

import (
	"fmt"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/spf13/viper"
	"github.com/vulpemventures/go-elements/network"

	"github.com/louisinger/ark-liquid-poc/internal/covenant"
	"github.com/louisinger/ark-liquid-poc/internal/domain"
	"github.com/louisinger/ark-liquid-poc/internal/poolmanager"
	"github.com/louisinger/ark-liquid-poc/internal/poolwatcher"
)

// Env var / config keys, read with the ARK_ prefix LoadConfig sets.
var (
	Network              = "NETWORK"
	RoundInterval        = "ROUND_INTERVAL"
	ClaimTimeoutSeconds  = "CLAIM_TIMEOUT_SECONDS"
	RedeemTimeoutSeconds = "REDEEM_TIMEOUT_SECONDS"
	ScanInterval         = "SCAN_INTERVAL"
	MinerFee             = "MINER_FEE"
	ConnectorDust        = "CONNECTOR_DUST"
	Epoch                = "EPOCH"

	defaultRoundInterval        = 5
	defaultScanInterval         = 30
	defaultClaimTimeoutSeconds  = covenant.ClaimTimeoutSeconds
	defaultRedeemTimeoutSeconds = covenant.RedeemTimeoutSeconds
	defaultMinerFee             = uint64(500)
	defaultConnectorDust        = uint64(400)
	defaultEpoch                = uint64(0)
)

// Config carries the parameters PoolManager and PoolWatcher need to
// build and sign Elements transactions for one ASP deployment.
type Config struct {
	Network              network.Network
	GenesisBlockHash     string
	RoundInterval        int64
	ClaimTimeoutSeconds  uint
	RedeemTimeoutSeconds uint
	ScanInterval         int64
	MinerFee             uint64
	ConnectorDust        uint64
	Epoch                domain.PoolEpoch
}

// LoadConfig reads ARK_-prefixed environment variables via viper,
// applies defaults, and validates the result.
func LoadConfig() (*Config, error) {
	viper.SetEnvPrefix("ARK")
	viper.AutomaticEnv()

	viper.SetDefault(Network, "liquid")
	viper.SetDefault(RoundInterval, defaultRoundInterval)
	viper.SetDefault(ClaimTimeoutSeconds, defaultClaimTimeoutSeconds)
	viper.SetDefault(RedeemTimeoutSeconds, defaultRedeemTimeoutSeconds)
	viper.SetDefault(ScanInterval, defaultScanInterval)
	viper.SetDefault(MinerFee, defaultMinerFee)
	viper.SetDefault(ConnectorDust, defaultConnectorDust)
	viper.SetDefault(Epoch, defaultEpoch)

	net, err := networkFromString(viper.GetString(Network))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Network:              *net,
		GenesisBlockHash:     net.GenesisBlockHash,
		RoundInterval:        viper.GetInt64(RoundInterval),
		ClaimTimeoutSeconds:  viper.GetUint(ClaimTimeoutSeconds),
		RedeemTimeoutSeconds: viper.GetUint(RedeemTimeoutSeconds),
		ScanInterval:         viper.GetInt64(ScanInterval),
		MinerFee:             viper.GetUint64(MinerFee),
		ConnectorDust:        viper.GetUint64(ConnectorDust),
		Epoch:                domain.PoolEpoch(viper.GetUint64(Epoch)),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RoundInterval < 1 {
		return fmt.Errorf("config: round interval must be at least 1 second")
	}
	if c.RedeemTimeoutSeconds >= c.ClaimTimeoutSeconds {
		return fmt.Errorf("config: redeem timeout must be strictly less than claim timeout")
	}
	if _, err := covenant.BIP68Encode(c.ClaimTimeoutSeconds); err != nil {
		return fmt.Errorf("config: invalid claim timeout: %w", err)
	}
	if _, err := covenant.BIP68Encode(c.RedeemTimeoutSeconds); err != nil {
		return fmt.Errorf("config: invalid redeem timeout: %w", err)
	}
	if c.ConnectorDust == 0 {
		return fmt.Errorf("config: connector dust value must be positive")
	}
	return nil
}

// ManagerConfig projects Config onto the fields PoolManager needs,
// given the ASP's resolved public key.
func (c *Config) ManagerConfig(aspPubKey *secp256k1.PublicKey) poolmanager.Config {
	return poolmanager.Config{
		AspPubKey:            aspPubKey,
		Asset:                c.Network.AssetID,
		MinerFee:             c.MinerFee,
		ClaimTimeoutSeconds:  c.ClaimTimeoutSeconds,
		RedeemTimeoutSeconds: c.RedeemTimeoutSeconds,
		BatchInterval:        time.Duration(c.RoundInterval) * time.Second,
	}
}

// WatcherConfig projects Config onto the fields PoolWatcher needs,
// given the ASP's resolved public key.
func (c *Config) WatcherConfig(aspPubKey *secp256k1.PublicKey) poolwatcher.Config {
	return poolwatcher.Config{
		AspPubKey:            aspPubKey,
		RedeemTimeoutSeconds: c.RedeemTimeoutSeconds,
		ScanInterval:         time.Duration(c.ScanInterval) * time.Second,
	}
}

func networkFromString(net string) (*network.Network, error) {
	switch net {
	case network.Liquid.Name:
		return &network.Liquid, nil
	case network.Testnet.Name:
		return &network.Testnet, nil
	case network.Regtest.Name:
		return &network.Regtest, nil
	default:
		return nil, fmt.Errorf("config: invalid network: %s", net)
	}
}
