/*

This file contains the automation keeper. It runs the vault's periodic
maintenance on cron schedules: harvesting accrued yield, sweeping the idle
buffer into strategies, and rebalancing strategy allocations when the drift
gates say it pays for itself.

Economic gates declining an action (not enough idle, skew too small, gain
below the overhead hurdle) are expected outcomes and logged as skips.
Everything else is a failure.

*/

package keeper

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/openvault/yvm/internal/allocator"
	"github.com/openvault/yvm/internal/logger"
	"github.com/openvault/yvm/internal/manager"
	"github.com/openvault/yvm/internal/utils"
	"github.com/openvault/yvm/internal/vault"
)

var (
	ErrKeeperConfigNil = errors.New("keeper config is nil")
	ErrKeeperIdentity  = errors.New("keeper identity must not be empty")
	ErrKeeperVaultNil  = errors.New("keeper vault must not be nil")
	ErrKeeperSchedule  = errors.New("invalid keeper schedule")
)

// Config bundles the dependencies and schedules for a Keeper.
type Config struct {
	// Identity is the caller string the keeper acts under. Register it as an
	// official keeper on the vault to suppress the harvest incentive.
	Identity string

	Vault   *vault.Vault
	Manager *manager.StrategyManager

	// Cron expressions (robfig/cron standard 5-field format). Empty disables
	// the corresponding job.
	HarvestSchedule   string
	AllocateSchedule  string
	RebalanceSchedule string

	// Precision is the base asset's decimals, used for log display values.
	Precision int
}

// Keeper drives scheduled vault maintenance.
type Keeper struct {
	logger    zerolog.Logger
	identity  string
	vault     *vault.Vault
	manager   *manager.StrategyManager
	precision int
	cron      *cron.Cron
}

func validateKeeperConfig(cfg *Config) error {
	if cfg == nil {
		return ErrKeeperConfigNil
	}
	if cfg.Identity == "" {
		return ErrKeeperIdentity
	}
	if cfg.Vault == nil {
		return ErrKeeperVaultNil
	}
	return nil
}

// NewKeeper creates a keeper and registers its cron jobs. Call Start to
// begin scheduling.
func NewKeeper(cfg *Config) (*Keeper, error) {
	if err := validateKeeperConfig(cfg); err != nil {
		return nil, err
	}

	k := &Keeper{
		logger:    logger.GetForComponent("keeper"),
		identity:  cfg.Identity,
		vault:     cfg.Vault,
		manager:   cfg.Manager,
		precision: cfg.Precision,
		cron:      cron.New(),
	}

	jobs := []struct {
		name     string
		schedule string
		run      func()
	}{
		{"harvest", cfg.HarvestSchedule, k.runHarvest},
		{"allocate_idle", cfg.AllocateSchedule, k.runAllocateIdle},
		{"rebalance", cfg.RebalanceSchedule, k.runRebalance},
	}
	for _, job := range jobs {
		if job.schedule == "" {
			continue
		}
		if _, err := k.cron.AddFunc(job.schedule, job.run); err != nil {
			return nil, fmt.Errorf("%w: %s %q: %v", ErrKeeperSchedule, job.name, job.schedule, err)
		}
		k.logger.Info().Str("job", job.name).Str("schedule", job.schedule).Msg("Keeper job registered")
	}

	return k, nil
}

// Start begins running the registered schedules in their own goroutine.
func (k *Keeper) Start() {
	k.cron.Start()
	k.logger.Info().Str("identity", k.identity).Msg("Keeper started")
}

// Stop stops the scheduler and waits for any running job to finish.
func (k *Keeper) Stop() {
	ctx := k.cron.Stop()
	<-ctx.Done()
	k.logger.Info().Msg("Keeper stopped")
}

func (k *Keeper) runHarvest() {
	profit, err := k.vault.Harvest(k.identity)
	if err != nil {
		if errors.Is(err, vault.ErrPaused) {
			k.logger.Info().Msg("Harvest skipped: vault is paused")
			return
		}
		k.logger.Error().Err(err).Msg("Scheduled harvest failed")
		return
	}
	if profit.IsZero() {
		k.logger.Debug().Msg("Harvest skipped: profit below minimum")
		return
	}
	display, _ := utils.SDKIntToFloat64(profit, k.precision)
	k.logger.Info().
		Str("profit", profit.String()).
		Float64("profit_display", display).
		Msg("Scheduled harvest completed")
}

func (k *Keeper) runAllocateIdle() {
	err := k.vault.AllocateIdle(k.identity)
	if err != nil {
		switch {
		case errors.Is(err, vault.ErrIdleBelowThreshold):
			k.logger.Debug().Msg("Idle allocation skipped: buffer below threshold")
		case errors.Is(err, vault.ErrPaused):
			k.logger.Info().Msg("Idle allocation skipped: vault is paused")
		case errors.Is(err, manager.ErrNoStrategies),
			errors.Is(err, allocator.ErrNoEligibleStrategies),
			errors.Is(err, allocator.ErrNoPositiveYield):
			k.logger.Debug().Err(err).Msg("Idle allocation skipped: nowhere to deploy")
		default:
			k.logger.Error().Err(err).Msg("Scheduled idle allocation failed")
		}
		return
	}
	k.logger.Info().Msg("Scheduled idle allocation completed")
}

func (k *Keeper) runRebalance() {
	if k.manager == nil {
		return
	}

	ok, err := k.manager.ShouldRebalance()
	if err != nil {
		k.logger.Error().Err(err).Msg("Rebalance eligibility check failed")
		return
	}
	if !ok {
		k.logger.Debug().Msg("Rebalance skipped: gates not met")
		return
	}

	if err := k.manager.Rebalance(k.identity); err != nil {
		switch {
		case errors.Is(err, manager.ErrRebalanceBelowMinTVL),
			errors.Is(err, manager.ErrRebalanceSkewTooSmall),
			errors.Is(err, manager.ErrRebalanceNotProfitable):
			// The portfolio moved between the check and the execution.
			k.logger.Info().Err(err).Msg("Rebalance skipped")
		default:
			k.logger.Error().Err(err).Msg("Scheduled rebalance failed")
		}
		return
	}
	k.logger.Info().Msg("Scheduled rebalance completed")
}
