package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// BaseAsset is the denom the vault accounts in (e.g. "uusdc").
	BaseAsset string
	// BaseAssetPrecision is the number of decimals of the base asset, used
	// only for display conversion on the web API.
	BaseAssetPrecision int

	// VaultID is the identity of the vault instance, bound into the
	// StrategyManager as its sole authorized allocation caller.
	VaultID string
	// Owner is the single administrative authority.
	Owner string
	// Treasury receives the treasury share of performance fees as shares.
	Treasury string
	// Founder receives the founder share of performance fees in base asset.
	Founder string
	// KeeperID is the identity the scheduled keeper uses when triggering
	// harvest, allocation, and rebalance operations.
	KeeperID string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	BaseAsset, err = getEnv("YVM_BASE_ASSET")
	if err != nil {
		return err
	}

	BaseAssetPrecision, err = getEnvAsInt("YVM_BASE_ASSET_PRECISION")
	if err != nil {
		return err
	}

	VaultID, err = getEnv("YVM_VAULT_ID")
	if err != nil {
		return err
	}

	Owner, err = getEnv("YVM_OWNER")
	if err != nil {
		return err
	}

	Treasury, err = getEnv("YVM_TREASURY")
	if err != nil {
		return err
	}

	Founder, err = getEnv("YVM_FOUNDER")
	if err != nil {
		return err
	}

	KeeperID, err = getEnv("YVM_KEEPER_ID")
	if err != nil {
		return err
	}

	log.Debug().
		Str("BaseAsset", BaseAsset).
		Str("VaultID", VaultID).
		Str("Owner", Owner).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsInt retrieves an environment variable as an int. Returns error if not set or invalid.
func getEnvAsInt(key string) (int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int, got: " + valueStr)
	}
	return value, nil
}
