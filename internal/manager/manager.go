/*

This file contains the StrategyManager: an ordered registry of active yield
strategies over one base asset. It pushes capital in by APY-proportional
weights, pulls capital out proportional to balances, moves deployed capital
between strategies when the projected gain clears the configured overhead, and
aggregates harvests fail-fast.

The manager is constructed before the vault and cannot authorize allocation
callers until the vault's identity is bound into it, exactly once.

*/

package manager

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/openvault/yvm/internal/allocator"
	"github.com/openvault/yvm/internal/logger"
	"github.com/openvault/yvm/internal/types"
)

var (
	ErrAlreadyBound      = errors.New("vault identity already bound")
	ErrNotBound          = errors.New("vault identity not bound")
	ErrInvalidVault      = errors.New("vault identity is empty")
	ErrNotVault          = errors.New("caller is not the bound vault")
	ErrUnauthorized      = errors.New("caller is not the owner")
	ErrZeroAmount        = errors.New("amount must be positive")
	ErrNoStrategies      = errors.New("strategy registry is empty")
	ErrAssetMismatch     = errors.New("strategy asset does not match manager base asset")
	ErrDuplicateStrategy = errors.New("strategy already registered")
	ErrUnknownStrategy   = errors.New("strategy index out of range")
	ErrStrategyNotEmpty  = errors.New("strategy still holds assets")
	ErrStrategyQuery     = errors.New("strategy query failed")
	ErrStrategyDeposit   = errors.New("strategy deposit failed")
	ErrStrategyWithdraw  = errors.New("strategy withdrawal failed")
	ErrStrategyHarvest   = errors.New("strategy harvest failed")

	ErrRebalanceBelowMinTVL   = errors.New("rebalance gated: deployed value below minimum")
	ErrRebalanceSkewTooSmall  = errors.New("rebalance gated: allocation skew below threshold")
	ErrRebalanceNotProfitable = errors.New("rebalance not profitable")
)

// StrategyManager holds the ordered strategy registry and executes the
// capital-allocation decisions for the bound vault.
type StrategyManager struct {
	mu sync.Mutex

	logger zerolog.Logger
	asset  string
	tier   types.TierConfig
	auth   types.Authorizer
	events types.EventSink

	vaultID    string
	strategies []types.Strategy
}

// Config holds the dependencies for constructing a StrategyManager.
type Config struct {
	Asset     string
	Tier      types.TierConfig
	Authority types.Authorizer
	EventSink types.EventSink
}

// NewStrategyManager creates a manager with an empty registry and no bound
// vault. The vault identity is bound later via Bind, breaking the circular
// construction dependency between the two components.
func NewStrategyManager(cfg Config) (*StrategyManager, error) {
	if cfg.Asset == "" {
		return nil, fmt.Errorf("manager configuration invalid: base asset is empty")
	}
	if cfg.Authority == nil {
		return nil, fmt.Errorf("manager configuration invalid: authority cannot be nil")
	}
	if err := cfg.Tier.Validate(); err != nil {
		return nil, fmt.Errorf("manager configuration invalid: %w", err)
	}
	sink := cfg.EventSink
	if sink == nil {
		sink = types.NopSink{}
	}
	m := &StrategyManager{
		logger:     logger.GetForComponent("strategy_manager"),
		asset:      cfg.Asset,
		tier:       cfg.Tier,
		auth:       cfg.Authority,
		events:     sink,
		strategies: make([]types.Strategy, 0),
	}
	m.logger.Info().Str("asset", cfg.Asset).Msg("StrategyManager created, awaiting vault binding")
	return m, nil
}

// Bind sets the bound vault identity exactly once. A second attempt fails.
func (m *StrategyManager) Bind(vaultID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if vaultID == "" {
		return ErrInvalidVault
	}
	if m.vaultID != "" {
		return fmt.Errorf("%w: bound to %s", ErrAlreadyBound, m.vaultID)
	}
	m.vaultID = vaultID
	m.logger.Info().Str("vault", vaultID).Msg("Vault identity bound")
	return nil
}

// Asset returns the base asset identity the manager accounts in.
func (m *StrategyManager) Asset() string {
	return m.asset
}

// requireVault checks that the manager is bound and the caller is the vault.
func (m *StrategyManager) requireVault(caller string) error {
	if m.vaultID == "" {
		return ErrNotBound
	}
	if caller != m.vaultID {
		return fmt.Errorf("%w: %s", ErrNotVault, caller)
	}
	return nil
}

// TotalAssets sums the reported balance of every active strategy.
func (m *StrategyManager) TotalAssets() (sdkmath.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalAssetsLocked()
}

func (m *StrategyManager) totalAssetsLocked() (sdkmath.Int, error) {
	total := sdkmath.ZeroInt()
	for _, s := range m.strategies {
		bal, err := s.TotalAssets()
		if err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: %s: %w", ErrStrategyQuery, s.Name(), err)
		}
		total = total.Add(bal)
	}
	return total, nil
}

// StrategyCount returns the number of active strategies.
func (m *StrategyManager) StrategyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.strategies)
}

// StrategyInfo is a read-only snapshot of one registry entry.
type StrategyInfo struct {
	Index       int         `json:"index"`
	Name        string      `json:"name"`
	Asset       string      `json:"asset"`
	APYBps      int64       `json:"apy_bps"`
	TotalAssets sdkmath.Int `json:"total_assets"`
}

// Snapshot returns a read-only view of the registry in order.
func (m *StrategyManager) Snapshot() ([]StrategyInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]StrategyInfo, 0, len(m.strategies))
	for i, s := range m.strategies {
		bal, err := s.TotalAssets()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrStrategyQuery, s.Name(), err)
		}
		apy, err := s.APY()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrStrategyQuery, s.Name(), err)
		}
		infos = append(infos, StrategyInfo{
			Index:       i,
			Name:        s.Name(),
			Asset:       s.Asset(),
			APYBps:      apy,
			TotalAssets: bal,
		})
	}
	return infos, nil
}

// Allocate pushes amount into the active strategies weighted by reported APY,
// respecting the tier's participation floor and per-strategy cap. Only the
// bound vault may call it. The amount actually deployed is returned; it falls
// short of the request when every eligible strategy is locked at the cap, and
// the caller keeps the remainder.
func (m *StrategyManager) Allocate(caller string, amount sdkmath.Int) (sdkmath.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireVault(caller); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), ErrZeroAmount
	}
	if len(m.strategies) == 0 {
		return sdkmath.ZeroInt(), ErrNoStrategies
	}

	apys, err := m.collectAPYsLocked()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	weights, err := allocator.TargetWeightsBps(apys, m.tier.MinAllocationThresholdBps, m.tier.MaxAllocationPerStrategyBps)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	portions, leftover, err := allocator.SplitByWeights(amount, weights)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	deposited := make([]sdkmath.Int, len(portions))
	for i, portion := range portions {
		if portion.IsZero() {
			deposited[i] = sdkmath.ZeroInt()
			continue
		}
		if _, err := m.strategies[i].Deposit(portion); err != nil {
			wrapped := fmt.Errorf("%w: %s: %w", ErrStrategyDeposit, m.strategies[i].Name(), err)
			m.unwindDepositsLocked(deposited)
			return sdkmath.ZeroInt(), wrapped
		}
		deposited[i] = portion
		m.events.Publish(types.NewEvent(types.EventAllocated, map[string]string{
			"strategy": m.strategies[i].Name(),
			"assets":   portion.String(),
		}))
		m.logger.Info().
			Str("strategy", m.strategies[i].Name()).
			Str("assets", portion.String()).
			Int64("weightBps", weights[i]).
			Msg("Capital allocated to strategy")
	}
	if leftover.IsPositive() {
		m.logger.Info().
			Str("undeployed", leftover.String()).
			Msg("Per-strategy caps refused part of the allocation")
	}
	return amount.Sub(leftover), nil
}

// collectAPYsLocked queries every strategy's reported APY in registry order.
func (m *StrategyManager) collectAPYsLocked() ([]int64, error) {
	apys := make([]int64, len(m.strategies))
	for i, s := range m.strategies {
		apy, err := s.APY()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrStrategyQuery, s.Name(), err)
		}
		apys[i] = apy
	}
	return apys, nil
}

// unwindDepositsLocked issues compensating withdrawals for deposits already
// made inside a failed allocation, restoring the pre-call balances so the
// enclosing operation aborts without partial commit.
func (m *StrategyManager) unwindDepositsLocked(deposited []sdkmath.Int) {
	for i, amt := range deposited {
		if amt.IsNil() || amt.IsZero() {
			continue
		}
		if _, err := m.strategies[i].Withdraw(amt); err != nil {
			m.logger.Error().
				Err(err).
				Str("strategy", m.strategies[i].Name()).
				Str("assets", amt.String()).
				Msg("Compensating withdrawal failed while unwinding allocation")
		}
	}
}

// WithdrawTo pulls amount out of the strategies proportional to each
// strategy's share of the deployed total and delivers the sum to receiver.
// A strategy that cannot supply its proportional share (external illiquidity)
// causes under-delivery: the shortfall is not redistributed within the call,
// and the actual amount delivered is returned to the caller.
func (m *StrategyManager) WithdrawTo(caller string, amount sdkmath.Int, receiver string) (sdkmath.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireVault(caller); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), ErrZeroAmount
	}
	if receiver == "" {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: receiver is empty", ErrInvalidVault)
	}
	if len(m.strategies) == 0 {
		return sdkmath.ZeroInt(), ErrNoStrategies
	}

	balances := make([]sdkmath.Int, len(m.strategies))
	total := sdkmath.ZeroInt()
	for i, s := range m.strategies {
		bal, err := s.TotalAssets()
		if err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: %s: %w", ErrStrategyQuery, s.Name(), err)
		}
		balances[i] = bal
		total = total.Add(bal)
	}
	if total.IsZero() {
		return sdkmath.ZeroInt(), nil
	}

	// Requests above the deployed total are capped at the total.
	request := amount
	if request.GT(total) {
		request = total
	}

	// Proportional split by balance, truncation dust to the last non-empty
	// strategy in registry order.
	requests := make([]sdkmath.Int, len(m.strategies))
	assigned := sdkmath.ZeroInt()
	lastFunded := -1
	for i, bal := range balances {
		if bal.IsZero() {
			requests[i] = sdkmath.ZeroInt()
			continue
		}
		requests[i] = request.Mul(bal).Quo(total)
		assigned = assigned.Add(requests[i])
		lastFunded = i
	}
	dust := request.Sub(assigned)
	if lastFunded >= 0 && dust.IsPositive() {
		requests[lastFunded] = requests[lastFunded].Add(dust)
		if requests[lastFunded].GT(balances[lastFunded]) {
			requests[lastFunded] = balances[lastFunded]
		}
	}

	delivered := sdkmath.ZeroInt()
	withdrawn := make([]sdkmath.Int, len(m.strategies))
	for i, req := range requests {
		if req.IsNil() || req.IsZero() {
			withdrawn[i] = sdkmath.ZeroInt()
			continue
		}
		actual, err := m.strategies[i].Withdraw(req)
		if err != nil {
			wrapped := fmt.Errorf("%w: %s: %w", ErrStrategyWithdraw, m.strategies[i].Name(), err)
			m.unwindWithdrawalsLocked(withdrawn)
			return sdkmath.ZeroInt(), wrapped
		}
		if actual.LT(req) {
			m.logger.Warn().
				Str("strategy", m.strategies[i].Name()).
				Str("requested", req.String()).
				Str("actual", actual.String()).
				Msg("Strategy under-delivered on withdrawal, shortfall surfaced to caller")
		}
		withdrawn[i] = actual
		delivered = delivered.Add(actual)
	}

	m.logger.Info().
		Str("receiver", receiver).
		Str("requested", amount.String()).
		Str("delivered", delivered.String()).
		Msg("Withdrawal completed")
	return delivered, nil
}

// unwindWithdrawalsLocked re-deposits amounts already withdrawn inside a
// failed WithdrawTo so the enclosing operation aborts without partial commit.
func (m *StrategyManager) unwindWithdrawalsLocked(withdrawn []sdkmath.Int) {
	for i, amt := range withdrawn {
		if amt.IsNil() || amt.IsZero() {
			continue
		}
		if _, err := m.strategies[i].Deposit(amt); err != nil {
			m.logger.Error().
				Err(err).
				Str("strategy", m.strategies[i].Name()).
				Str("assets", amt.String()).
				Msg("Compensating deposit failed while unwinding withdrawal")
		}
	}
}

// SetAllocationConstraints updates the participation floor and the
// per-strategy cap used for allocation targets and rebalance planning. Owner
// only. Deployed balances are not moved here; a later rebalance realigns them.
func (m *StrategyManager) SetAllocationConstraints(caller string, floorBps, capBps int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.auth.IsAuthorized(caller) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	updated := m.tier
	updated.MinAllocationThresholdBps = floorBps
	updated.MaxAllocationPerStrategyBps = capBps
	if err := updated.Validate(); err != nil {
		return err
	}
	m.tier = updated
	m.logger.Info().
		Int64("floorBps", floorBps).
		Int64("capBps", capBps).
		Msg("Allocation constraints updated")
	return nil
}

// Harvest calls Harvest on every active strategy in registry order and sums
// the realized profit. Any single failure aborts the whole call: a partial
// harvest would misstate the APY figures the next allocation relies on.
func (m *StrategyManager) Harvest(caller string) (sdkmath.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireVault(caller); err != nil {
		return sdkmath.ZeroInt(), err
	}

	total := sdkmath.ZeroInt()
	for _, s := range m.strategies {
		profit, err := s.Harvest()
		if err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: %s: %w", ErrStrategyHarvest, s.Name(), err)
		}
		total = total.Add(profit)
		if profit.IsPositive() {
			m.logger.Debug().
				Str("strategy", s.Name()).
				Str("profit", profit.String()).
				Msg("Strategy harvested")
		}
	}
	return total, nil
}

// AddStrategy appends a strategy to the registry. Owner only.
func (m *StrategyManager) AddStrategy(caller string, s types.Strategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.auth.IsAuthorized(caller) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	if s == nil {
		return fmt.Errorf("%w: strategy is nil", ErrUnknownStrategy)
	}
	if s.Asset() != m.asset {
		return fmt.Errorf("%w: strategy %s accounts in %s, manager in %s",
			ErrAssetMismatch, s.Name(), s.Asset(), m.asset)
	}
	for _, existing := range m.strategies {
		if existing == s || existing.Name() == s.Name() {
			return fmt.Errorf("%w: %s", ErrDuplicateStrategy, s.Name())
		}
	}
	m.strategies = append(m.strategies, s)
	m.events.Publish(types.NewEvent(types.EventStrategyAdded, map[string]string{
		"strategy": s.Name(),
		"index":    strconv.Itoa(len(m.strategies) - 1),
	}))
	m.logger.Info().Str("strategy", s.Name()).Int("count", len(m.strategies)).Msg("Strategy added")
	return nil
}

// RemoveStrategy removes the strategy at index. Owner only; refused while the
// strategy still reports a balance, preventing stranded funds.
func (m *StrategyManager) RemoveStrategy(caller string, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.auth.IsAuthorized(caller) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	if index < 0 || index >= len(m.strategies) {
		return fmt.Errorf("%w: %d", ErrUnknownStrategy, index)
	}
	s := m.strategies[index]
	bal, err := s.TotalAssets()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStrategyQuery, s.Name(), err)
	}
	if !bal.IsZero() {
		return fmt.Errorf("%w: %s holds %s", ErrStrategyNotEmpty, s.Name(), bal)
	}
	m.strategies = append(m.strategies[:index], m.strategies[index+1:]...)
	m.events.Publish(types.NewEvent(types.EventStrategyRemoved, map[string]string{
		"strategy": s.Name(),
	}))
	m.logger.Info().Str("strategy", s.Name()).Int("count", len(m.strategies)).Msg("Strategy removed")
	return nil
}
