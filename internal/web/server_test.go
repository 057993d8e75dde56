package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvault/yvm/internal/manager"
	"github.com/openvault/yvm/internal/strategy"
	"github.com/openvault/yvm/internal/types"
	"github.com/openvault/yvm/internal/vault"
)

func testServer(t *testing.T) *WebServer {
	t.Helper()
	tier := types.TierConfig{
		IdleThreshold:       sdkmath.NewInt(10_000_000),
		MinProfitForHarvest: sdkmath.NewInt(1_000_000),
		MaxTVL:              sdkmath.NewInt(1_000_000_000_000),
		MinDeposit:          sdkmath.NewInt(1_000_000),

		MinAllocationThresholdBps:   500,
		MaxAllocationPerStrategyBps: 10000,

		RebalanceMinTVL:           sdkmath.NewInt(50_000_000),
		RebalanceSkewThresholdBps: 300,
		RebalanceOverhead:         sdkmath.NewInt(1_000_000),
		RebalanceProfitMultiplier: 3,
	}
	auth := types.NewSingleOwner("owner")

	m, err := manager.NewStrategyManager(manager.Config{
		Asset:     "uusdc",
		Tier:      tier,
		Authority: auth,
	})
	require.NoError(t, err)

	v, err := vault.NewVault(vault.Config{
		ID:        "vault-main",
		Asset:     "uusdc",
		Manager:   m,
		Authority: auth,
		Tier:      tier,
		Fees: types.FeePolicy{
			PerformanceFeeBps:  1000,
			TreasurySplitBps:   8000,
			FounderSplitBps:    2000,
			KeeperIncentiveBps: 50,
		},
		Treasury: "treasury",
		Founder:  "founder",
	})
	require.NoError(t, err)
	require.NoError(t, m.Bind(v.ID()))
	require.NoError(t, m.AddStrategy("owner", strategy.NewSim("lending", "uusdc", 800)))

	_, err = v.Deposit("alice", sdkmath.NewInt(5_000_000))
	require.NoError(t, err)

	return NewWebServer("0", v, m, 6, false)
}

func TestHandleVault(t *testing.T) {
	ws := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/vault", nil)
	rec := httptest.NewRecorder()
	ws.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "uusdc", payload["asset"])
	assert.Equal(t, "5000000", payload["total_assets"])
	assert.Equal(t, "5000000", payload["idle_buffer"])
	assert.Equal(t, false, payload["paused"])
}

func TestHandleStrategies(t *testing.T) {
	ws := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/strategies", nil)
	rec := httptest.NewRecorder()
	ws.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var views []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "lending", views[0]["name"])
	assert.Equal(t, float64(800), views[0]["apy_bps"])
}

func TestHandleHealth(t *testing.T) {
	ws := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	ws.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "ok", payload["status"])
}

func TestHandleHarvestsAndEvents_WithoutDatabase(t *testing.T) {
	ws := testServer(t)

	for _, path := range []string{"/api/harvests", "/api/events"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		ws.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.JSONEq(t, "[]", rec.Body.String(), path)
	}
}
