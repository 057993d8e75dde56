/*

This file contains the user-facing share ledger: per-holder balances, total
supply, and the idle buffer of undeployed base asset. Shares are issued and
burned at a price derived from (idle buffer + deployed assets) / total supply.
Deposits that push the idle buffer past the tier threshold sweep the buffer
into the StrategyManager within the same operation; capital the per-strategy
caps refuse stays idle.

*/

package vault

import (
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/openvault/yvm/internal/logger"
	"github.com/openvault/yvm/internal/types"
)

var (
	ErrPaused             = errors.New("vault is paused")
	ErrNotPaused          = errors.New("vault is not paused")
	ErrZeroAmount         = errors.New("amount must be positive")
	ErrBelowMinDeposit    = errors.New("deposit below minimum")
	ErrMaxTVLExceeded     = errors.New("deposit would exceed max TVL")
	ErrZeroShares         = errors.New("deposit would mint zero shares")
	ErrInsufficientShares = errors.New("holder balance insufficient")
	ErrUnauthorized       = errors.New("caller is not the owner")
	ErrZeroIdentity       = errors.New("identity cannot be empty")
	ErrIdleBelowThreshold = errors.New("idle buffer below threshold")
	ErrManagerQuery       = errors.New("strategy manager query failed")
)

// ManagerAPI is the surface the vault consumes from the StrategyManager.
// Allocate reports the amount actually deployed, which falls short of the
// request when per-strategy caps refuse part of it.
type ManagerAPI interface {
	Allocate(caller string, amount sdkmath.Int) (sdkmath.Int, error)
	WithdrawTo(caller string, amount sdkmath.Int, receiver string) (sdkmath.Int, error)
	Harvest(caller string) (sdkmath.Int, error)
	TotalAssets() (sdkmath.Int, error)
}

// HarvestStore receives a record of every fee-distributing harvest. Optional;
// persistence problems are logged, never surfaced to the harvest caller.
type HarvestStore interface {
	SaveHarvest(profit, fee sdkmath.Int, timestamp time.Time, cumulative sdkmath.Int) error
}

// ParameterStore receives a snapshot whenever an admin setter changes the
// tier configuration or fee policy. Optional.
type ParameterStore interface {
	SaveParameters(tier types.TierConfig, fees types.FeePolicy) error
}

// Vault is the share ledger and auto-allocation core.
type Vault struct {
	mu sync.Mutex

	logger  zerolog.Logger
	id      string
	asset   string
	manager ManagerAPI
	auth    types.Authorizer
	events  types.EventSink

	tier types.TierConfig
	fees types.FeePolicy

	treasury        string
	founder         string
	officialKeepers map[string]bool

	paused bool

	idle        sdkmath.Int
	totalSupply sdkmath.Int
	balances    map[string]sdkmath.Int

	lastHarvest    time.Time
	totalHarvested sdkmath.Int

	harvestStore HarvestStore
	paramStore   ParameterStore
}

// Config holds the dependencies for constructing a Vault.
type Config struct {
	ID        string
	Asset     string
	Manager   ManagerAPI
	Authority types.Authorizer
	EventSink types.EventSink
	Tier      types.TierConfig
	Fees      types.FeePolicy
	Treasury  string
	Founder   string

	// Optional persistence hooks.
	HarvestStore   HarvestStore
	ParameterStore ParameterStore
}

// NewVault creates a vault referencing an already-constructed StrategyManager.
// The manager does not yet know this vault's identity; the caller completes
// bootstrapping by binding v's identity into the manager exactly once.
func NewVault(cfg Config) (*Vault, error) {
	if err := validateVaultConfig(cfg); err != nil {
		return nil, fmt.Errorf("vault configuration validation failed: %w", err)
	}
	sink := cfg.EventSink
	if sink == nil {
		sink = types.NopSink{}
	}
	v := &Vault{
		logger:          logger.GetForComponent("vault"),
		id:              cfg.ID,
		asset:           cfg.Asset,
		manager:         cfg.Manager,
		auth:            cfg.Authority,
		events:          sink,
		tier:            cfg.Tier,
		fees:            cfg.Fees,
		treasury:        cfg.Treasury,
		founder:         cfg.Founder,
		officialKeepers: make(map[string]bool),
		idle:            sdkmath.ZeroInt(),
		totalSupply:     sdkmath.ZeroInt(),
		balances:        make(map[string]sdkmath.Int),
		totalHarvested:  sdkmath.ZeroInt(),
		harvestStore:    cfg.HarvestStore,
		paramStore:      cfg.ParameterStore,
	}
	v.logger.Info().
		Str("vault", cfg.ID).
		Str("asset", cfg.Asset).
		Msg("Vault created")
	return v, nil
}

func validateVaultConfig(cfg Config) error {
	if cfg.ID == "" {
		return fmt.Errorf("%w: vault id", ErrZeroIdentity)
	}
	if cfg.Asset == "" {
		return fmt.Errorf("%w: base asset", ErrZeroIdentity)
	}
	if cfg.Manager == nil {
		return fmt.Errorf("strategy manager cannot be nil")
	}
	if cfg.Authority == nil {
		return fmt.Errorf("authority cannot be nil")
	}
	if cfg.Treasury == "" {
		return fmt.Errorf("%w: treasury", ErrZeroIdentity)
	}
	if cfg.Founder == "" {
		return fmt.Errorf("%w: founder", ErrZeroIdentity)
	}
	if err := cfg.Tier.Validate(); err != nil {
		return err
	}
	return cfg.Fees.Validate()
}

// ID returns the vault's identity, the caller identity bound into the manager.
func (v *Vault) ID() string {
	return v.id
}

// Asset returns the base asset the ledger accounts in.
func (v *Vault) Asset() string {
	return v.asset
}

// TotalAssets returns idle buffer plus deployed assets.
func (v *Vault) TotalAssets() (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalAssetsLocked()
}

func (v *Vault) totalAssetsLocked() (sdkmath.Int, error) {
	deployed, err := v.manager.TotalAssets()
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", ErrManagerQuery, err)
	}
	return v.idle.Add(deployed), nil
}

// TotalSupply returns the total issued shares.
func (v *Vault) TotalSupply() sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalSupply
}

// IdleBuffer returns the undeployed base-asset balance.
func (v *Vault) IdleBuffer() sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.idle
}

// BalanceOf returns a holder's share balance.
func (v *Vault) BalanceOf(holder string) sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balanceOfLocked(holder)
}

// balanceOfLocked returns a holder's share balance, zero for holders with no
// ledger entry. Entries are deleted on full redemption, so a direct map read
// would yield a nil Int for them.
func (v *Vault) balanceOfLocked(holder string) sdkmath.Int {
	if bal, ok := v.balances[holder]; ok {
		return bal
	}
	return sdkmath.ZeroInt()
}

// SharePrice returns total assets per share as a decimal, or 1 when no shares
// have been issued yet.
func (v *Vault) SharePrice() (sdkmath.LegacyDec, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.totalSupply.IsZero() {
		return sdkmath.LegacyOneDec(), nil
	}
	total, err := v.totalAssetsLocked()
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	return sdkmath.LegacyNewDecFromInt(total).QuoInt(v.totalSupply), nil
}

// LastHarvest returns the timestamp of the last fee-distributing harvest.
func (v *Vault) LastHarvest() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastHarvest
}

// TotalHarvested returns the cumulative harvested profit.
func (v *Vault) TotalHarvested() sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalHarvested
}

// IsPaused reports whether the vault is paused.
func (v *Vault) IsPaused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paused
}

// Tier returns the current tier configuration.
func (v *Vault) Tier() types.TierConfig {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tier
}

// Fees returns the current fee policy.
func (v *Vault) Fees() types.FeePolicy {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fees
}

// convertToSharesLocked values assets at the current price, truncating in the
// vault's favor. The first deposit bootstraps the price 1:1.
func (v *Vault) convertToSharesLocked(assets, totalAssets sdkmath.Int) sdkmath.Int {
	if v.totalSupply.IsZero() || totalAssets.IsZero() {
		return assets
	}
	return assets.Mul(v.totalSupply).Quo(totalAssets)
}

// convertToAssetsLocked values shares at the current price, truncating.
func (v *Vault) convertToAssetsLocked(shares, totalAssets sdkmath.Int) sdkmath.Int {
	if v.totalSupply.IsZero() {
		return shares
	}
	return shares.Mul(totalAssets).Quo(v.totalSupply)
}

// sharesForAssetsCeilLocked is the share cost of withdrawing assets, rounded
// up so rounding never favors the withdrawer.
func (v *Vault) sharesForAssetsCeilLocked(assets, totalAssets sdkmath.Int) sdkmath.Int {
	if v.totalSupply.IsZero() || totalAssets.IsZero() {
		return assets
	}
	num := assets.Mul(v.totalSupply)
	return num.Add(totalAssets.SubRaw(1)).Quo(totalAssets)
}

// assetsForSharesCeilLocked is the asset cost of minting shares, rounded up.
func (v *Vault) assetsForSharesCeilLocked(shares, totalAssets sdkmath.Int) sdkmath.Int {
	if v.totalSupply.IsZero() {
		return shares
	}
	num := shares.Mul(totalAssets)
	return num.Add(v.totalSupply.SubRaw(1)).Quo(v.totalSupply)
}

// creditSharesLocked mints shares to a holder.
func (v *Vault) creditSharesLocked(holder string, shares sdkmath.Int) {
	bal, ok := v.balances[holder]
	if !ok {
		bal = sdkmath.ZeroInt()
	}
	v.balances[holder] = bal.Add(shares)
	v.totalSupply = v.totalSupply.Add(shares)
}

// debitSharesLocked burns shares from a holder. Ledger entries vanish on full
// redemption.
func (v *Vault) debitSharesLocked(holder string, shares sdkmath.Int) {
	bal := v.balances[holder].Sub(shares)
	if bal.IsZero() {
		delete(v.balances, holder)
	} else {
		v.balances[holder] = bal
	}
	v.totalSupply = v.totalSupply.Sub(shares)
}

// Deposit credits assets to the idle buffer and mints shares at the current
// price. When the idle buffer reaches the tier threshold afterwards, the
// buffer is pushed into the StrategyManager within the same operation.
func (v *Vault) Deposit(caller string, assets sdkmath.Int) (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.paused {
		return sdkmath.ZeroInt(), ErrPaused
	}
	if caller == "" {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: depositor", ErrZeroIdentity)
	}
	if assets.IsNil() || !assets.IsPositive() {
		return sdkmath.ZeroInt(), ErrZeroAmount
	}
	if assets.LT(v.tier.MinDeposit) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s < %s", ErrBelowMinDeposit, assets, v.tier.MinDeposit)
	}

	totalBefore, err := v.totalAssetsLocked()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if totalBefore.Add(assets).GT(v.tier.MaxTVL) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s + %s > %s", ErrMaxTVLExceeded, totalBefore, assets, v.tier.MaxTVL)
	}

	shares := v.convertToSharesLocked(assets, totalBefore)
	if shares.IsZero() {
		return sdkmath.ZeroInt(), ErrZeroShares
	}

	snap := v.snapshotLocked(caller)
	v.idle = v.idle.Add(assets)
	v.creditSharesLocked(caller, shares)

	if err := v.maybeAllocateIdleLocked(); err != nil {
		v.restoreLocked(snap)
		return sdkmath.ZeroInt(), err
	}

	v.events.Publish(types.NewEvent(types.EventDeposit, map[string]string{
		"user":   caller,
		"assets": assets.String(),
		"shares": shares.String(),
	}))
	v.logger.Info().
		Str("user", caller).
		Str("assets", assets.String()).
		Str("shares", shares.String()).
		Msg("Deposit completed")
	return shares, nil
}

// Mint issues an exact number of shares, charging the asset cost at the
// current price rounded up. Subject to the same minimum and cap as Deposit.
func (v *Vault) Mint(caller string, shares sdkmath.Int) (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.paused {
		return sdkmath.ZeroInt(), ErrPaused
	}
	if caller == "" {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: depositor", ErrZeroIdentity)
	}
	if shares.IsNil() || !shares.IsPositive() {
		return sdkmath.ZeroInt(), ErrZeroAmount
	}

	totalBefore, err := v.totalAssetsLocked()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	assets := v.assetsForSharesCeilLocked(shares, totalBefore)
	if assets.LT(v.tier.MinDeposit) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s < %s", ErrBelowMinDeposit, assets, v.tier.MinDeposit)
	}
	if totalBefore.Add(assets).GT(v.tier.MaxTVL) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s + %s > %s", ErrMaxTVLExceeded, totalBefore, assets, v.tier.MaxTVL)
	}

	snap := v.snapshotLocked(caller)
	v.idle = v.idle.Add(assets)
	v.creditSharesLocked(caller, shares)

	if err := v.maybeAllocateIdleLocked(); err != nil {
		v.restoreLocked(snap)
		return sdkmath.ZeroInt(), err
	}

	v.events.Publish(types.NewEvent(types.EventDeposit, map[string]string{
		"user":   caller,
		"assets": assets.String(),
		"shares": shares.String(),
	}))
	v.logger.Info().
		Str("user", caller).
		Str("assets", assets.String()).
		Str("shares", shares.String()).
		Msg("Mint completed")
	return assets, nil
}

// Withdraw pays out an asset amount to receiver, burning the corresponding
// shares. The idle buffer is drained first; any shortfall is pulled from the
// StrategyManager, which may under-deliver on external illiquidity. Shares
// are burned for what was actually paid out.
func (v *Vault) Withdraw(caller string, assets sdkmath.Int, receiver string) (sdkmath.Int, sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.paused {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), ErrPaused
	}
	if receiver == "" {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("%w: receiver", ErrZeroIdentity)
	}
	if assets.IsNil() || !assets.IsPositive() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), ErrZeroAmount
	}

	totalBefore, err := v.totalAssetsLocked()
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	sharesNeeded := v.sharesForAssetsCeilLocked(assets, totalBefore)
	if sharesNeeded.GT(v.balanceOfLocked(caller)) {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("%w: need %s shares", ErrInsufficientShares, sharesNeeded)
	}

	paid, burned, err := v.payOutLocked(caller, assets, receiver, totalBefore)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}

	v.events.Publish(types.NewEvent(types.EventWithdrawal, map[string]string{
		"user":   caller,
		"assets": paid.String(),
		"shares": burned.String(),
	}))
	v.logger.Info().
		Str("user", caller).
		Str("receiver", receiver).
		Str("assets", paid.String()).
		Str("shares", burned.String()).
		Msg("Withdrawal completed")
	return paid, burned, nil
}

// Redeem burns an exact number of shares and pays out their current value.
func (v *Vault) Redeem(caller string, shares sdkmath.Int, receiver string) (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.paused {
		return sdkmath.ZeroInt(), ErrPaused
	}
	if receiver == "" {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: receiver", ErrZeroIdentity)
	}
	if shares.IsNil() || !shares.IsPositive() {
		return sdkmath.ZeroInt(), ErrZeroAmount
	}
	held := v.balanceOfLocked(caller)
	if shares.GT(held) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: have %s, redeeming %s", ErrInsufficientShares, held, shares)
	}

	totalBefore, err := v.totalAssetsLocked()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	assets := v.convertToAssetsLocked(shares, totalBefore)
	if assets.IsZero() {
		return sdkmath.ZeroInt(), ErrZeroAmount
	}

	paid, burned, err := v.payOutLocked(caller, assets, receiver, totalBefore)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	v.events.Publish(types.NewEvent(types.EventWithdrawal, map[string]string{
		"user":   caller,
		"assets": paid.String(),
		"shares": burned.String(),
	}))
	v.logger.Info().
		Str("user", caller).
		Str("receiver", receiver).
		Str("assets", paid.String()).
		Str("shares", burned.String()).
		Msg("Redemption completed")
	return paid, nil
}

// payOutLocked drains the idle buffer first and pulls any shortfall from the
// StrategyManager, then burns shares for the assets actually paid out.
func (v *Vault) payOutLocked(caller string, assets sdkmath.Int, receiver string, totalBefore sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	fromIdle := assets
	if fromIdle.GT(v.idle) {
		fromIdle = v.idle
	}
	shortfall := assets.Sub(fromIdle)

	delivered := sdkmath.ZeroInt()
	if shortfall.IsPositive() {
		var err error
		delivered, err = v.manager.WithdrawTo(v.id, shortfall, receiver)
		if err != nil {
			return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
		}
		if delivered.LT(shortfall) {
			v.logger.Warn().
				Str("requested", shortfall.String()).
				Str("delivered", delivered.String()).
				Msg("Manager under-delivered on withdrawal")
		}
	}

	paid := fromIdle.Add(delivered)
	if paid.IsZero() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), ErrZeroAmount
	}
	burned := v.sharesForAssetsCeilLocked(paid, totalBefore)
	if held := v.balanceOfLocked(caller); burned.GT(held) {
		burned = held
	}

	v.idle = v.idle.Sub(fromIdle)
	v.debitSharesLocked(caller, burned)
	return paid, burned, nil
}

// maybeAllocateIdleLocked sweeps the idle buffer into the manager once the
// tier threshold is crossed. Capital the per-strategy caps refuse stays idle.
func (v *Vault) maybeAllocateIdleLocked() error {
	if v.idle.LT(v.tier.IdleThreshold) || v.idle.IsZero() {
		return nil
	}
	deployed, err := v.manager.Allocate(v.id, v.idle)
	if err != nil {
		return err
	}
	if deployed.IsZero() {
		return nil
	}
	v.idle = v.idle.Sub(deployed)
	v.events.Publish(types.NewEvent(types.EventIdleAllocated, map[string]string{
		"amount": deployed.String(),
	}))
	v.logger.Info().Str("amount", deployed.String()).Msg("Idle buffer allocated")
	return nil
}

// ledgerSnapshot captures the mutable ledger state touched by one operation
// so a failed external call can restore it exactly.
type ledgerSnapshot struct {
	idle           sdkmath.Int
	totalSupply    sdkmath.Int
	holder         string
	holderBalance  sdkmath.Int
	holderExisted  bool
	lastHarvest    time.Time
	totalHarvested sdkmath.Int
}

func (v *Vault) snapshotLocked(holder string) ledgerSnapshot {
	bal, ok := v.balances[holder]
	return ledgerSnapshot{
		idle:           v.idle,
		totalSupply:    v.totalSupply,
		holder:         holder,
		holderBalance:  bal,
		holderExisted:  ok,
		lastHarvest:    v.lastHarvest,
		totalHarvested: v.totalHarvested,
	}
}

func (v *Vault) restoreLocked(snap ledgerSnapshot) {
	v.idle = snap.idle
	v.totalSupply = snap.totalSupply
	if snap.holderExisted {
		v.balances[snap.holder] = snap.holderBalance
	} else {
		delete(v.balances, snap.holder)
	}
	v.lastHarvest = snap.lastHarvest
	v.totalHarvested = snap.totalHarvested
}
