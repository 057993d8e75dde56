// ./internal/state/params_store.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/openvault/yvm/internal/types"
)

// SaveVaultParameters saves a new version of the tier configuration and fee
// policy under configName, optionally activating it.
func SaveVaultParameters(tier types.TierConfig, fees types.FeePolicy, configName string, version int, makeActive bool) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	if makeActive {
		stmtDeactivate := `UPDATE vault_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`
		_, err = tx.Exec(stmtDeactivate, configName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	stmt := `
        INSERT INTO vault_parameters (
            version, config_name, is_active, activated_at, created_at,
            idle_threshold, min_profit_for_harvest, max_tvl, min_deposit,
            min_allocation_threshold_bps, max_allocation_per_strategy_bps,
            rebalance_min_tvl, rebalance_skew_threshold_bps, rebalance_overhead, rebalance_profit_multiplier,
            performance_fee_bps, treasury_split_bps, founder_split_bps, keeper_incentive_bps
        ) VALUES (
            $1, $2, $3, $4, $5,
            $6, $7, $8, $9,
            $10, $11,
            $12, $13, $14, $15,
            $16, $17, $18, $19
        ) RETURNING params_id;`

	var paramsID int64
	currentTime := time.Now()
	err = tx.QueryRow(
		stmt,
		version, configName, makeActive, currentTime, currentTime,
		tier.IdleThreshold.String(), tier.MinProfitForHarvest.String(), tier.MaxTVL.String(), tier.MinDeposit.String(),
		tier.MinAllocationThresholdBps, tier.MaxAllocationPerStrategyBps,
		tier.RebalanceMinTVL.String(), tier.RebalanceSkewThresholdBps, tier.RebalanceOverhead.String(), tier.RebalanceProfitMultiplier,
		fees.PerformanceFeeBps, fees.TreasurySplitBps, fees.FounderSplitBps, fees.KeeperIncentiveBps,
	).Scan(&paramsID)

	if err != nil {
		return 0, fmt.Errorf("failed to insert vault parameters: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Msg("Saved vault parameters")
	return paramsID, nil
}

// LoadActiveVaultParameters loads the currently active tier configuration and
// fee policy for configName.
func LoadActiveVaultParameters(configName string) (*types.TierConfig, *types.FeePolicy, error) {
	if DB == nil {
		return nil, nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT
            idle_threshold, min_profit_for_harvest, max_tvl, min_deposit,
            min_allocation_threshold_bps, max_allocation_per_strategy_bps,
            rebalance_min_tvl, rebalance_skew_threshold_bps, rebalance_overhead, rebalance_profit_multiplier,
            performance_fee_bps, treasury_split_bps, founder_split_bps, keeper_incentive_bps
        FROM vault_parameters
        WHERE config_name = $1 AND is_active = TRUE
        ORDER BY activated_at DESC
        LIMIT 1;`

	var (
		idleThreshold, minProfit, maxTVL, minDeposit string
		rebalanceMinTVL, rebalanceOverhead           string
		tier                                         types.TierConfig
		fees                                         types.FeePolicy
	)
	row := DB.QueryRow(query, configName)
	err := row.Scan(
		&idleThreshold, &minProfit, &maxTVL, &minDeposit,
		&tier.MinAllocationThresholdBps, &tier.MaxAllocationPerStrategyBps,
		&rebalanceMinTVL, &tier.RebalanceSkewThresholdBps, &rebalanceOverhead, &tier.RebalanceProfitMultiplier,
		&fees.PerformanceFeeBps, &fees.TreasurySplitBps, &fees.FounderSplitBps, &fees.KeeperIncentiveBps,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, fmt.Errorf("no active vault parameters found for config '%s'", configName)
		}
		return nil, nil, fmt.Errorf("failed to scan active vault parameters for config '%s': %w", configName, err)
	}

	for _, v := range []struct {
		raw  string
		dest *sdkmath.Int
		name string
	}{
		{idleThreshold, &tier.IdleThreshold, "idle_threshold"},
		{minProfit, &tier.MinProfitForHarvest, "min_profit_for_harvest"},
		{maxTVL, &tier.MaxTVL, "max_tvl"},
		{minDeposit, &tier.MinDeposit, "min_deposit"},
		{rebalanceMinTVL, &tier.RebalanceMinTVL, "rebalance_min_tvl"},
		{rebalanceOverhead, &tier.RebalanceOverhead, "rebalance_overhead"},
	} {
		amount, ok := sdkmath.NewIntFromString(v.raw)
		if !ok {
			return nil, nil, fmt.Errorf("invalid %s amount in stored parameters: %s", v.name, v.raw)
		}
		*v.dest = amount
	}

	log.Info().Str("config", configName).Msg("Loaded active vault parameters")
	return &tier, &fees, nil
}

// ParameterWriter versions and persists configuration snapshots under one
// config name. It satisfies the vault's ParameterStore hook.
type ParameterWriter struct {
	ConfigName string
}

// NewParameterWriter returns a writer persisting under configName.
func NewParameterWriter(configName string) *ParameterWriter {
	return &ParameterWriter{ConfigName: configName}
}

func (w *ParameterWriter) SaveParameters(tier types.TierConfig, fees types.FeePolicy) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	var next int
	row := DB.QueryRow(`SELECT COALESCE(MAX(version), 0) + 1 FROM vault_parameters WHERE config_name = $1;`, w.ConfigName)
	if err := row.Scan(&next); err != nil {
		return fmt.Errorf("failed to determine next parameter version: %w", err)
	}

	_, err := SaveVaultParameters(tier, fees, w.ConfigName, next, true)
	return err
}
