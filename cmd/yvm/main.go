package main

import (
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/openvault/yvm/internal/config"
	"github.com/openvault/yvm/internal/keeper"
	"github.com/openvault/yvm/internal/logger"
	"github.com/openvault/yvm/internal/manager"
	"github.com/openvault/yvm/internal/state"
	"github.com/openvault/yvm/internal/strategy"
	"github.com/openvault/yvm/internal/types"
	"github.com/openvault/yvm/internal/vault"
	"github.com/openvault/yvm/internal/web"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// main is the entry point for the YVM system.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("YVM Core Logic Starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// Load Vault Parameters
	tier, fees, err := state.LoadActiveVaultParameters(config.DefaultParamsConfigName)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load active vault parameters, using defaults and saving.")
		defaultTier := config.DefaultTierConfig
		defaultFees := config.DefaultFeePolicy
		if _, err := state.SaveVaultParameters(defaultTier, defaultFees, config.DefaultParamsConfigName, config.DefaultParamsConfigVersion, true); err != nil {
			log.Fatal().Err(err).Msg("Failed to save initial default vault parameters.")
		}
		tier, fees = &defaultTier, &defaultFees
	}
	log.Info().Msg("Vault parameters loaded successfully.")

	// --- 2. Vault and Manager Initialization ---
	authority := types.NewSingleOwner(config.Owner)
	eventSink := state.NewEventStore()

	mgr, err := manager.NewStrategyManager(manager.Config{
		Asset:     config.BaseAsset,
		Tier:      *tier,
		Authority: authority,
		EventSink: eventSink,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create strategy manager")
	}

	v, err := vault.NewVault(vault.Config{
		ID:             config.VaultID,
		Asset:          config.BaseAsset,
		Manager:        mgr,
		Authority:      authority,
		EventSink:      eventSink,
		Tier:           *tier,
		Fees:           *fees,
		Treasury:       config.Treasury,
		Founder:        config.Founder,
		HarvestStore:   state.NewHarvestStore(),
		ParameterStore: state.NewParameterWriter(config.DefaultParamsConfigName),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create vault")
	}

	if err := mgr.Bind(v.ID()); err != nil {
		log.Fatal().Err(err).Msg("Failed to bind vault identity into strategy manager")
	}

	if err := v.SetOfficialKeeper(config.Owner, config.KeeperID, true); err != nil {
		log.Fatal().Err(err).Msg("Failed to register official keeper")
	}

	// Register the configured strategies
	for _, spec := range parseStrategySpecs(os.Getenv("YVM_STRATEGIES")) {
		sim := strategy.NewSim(spec.name, config.BaseAsset, spec.apyBps)
		if err := mgr.AddStrategy(config.Owner, sim); err != nil {
			log.Fatal().Err(err).Str("strategy", spec.name).Msg("Failed to register strategy")
		}
		log.Info().Str("strategy", spec.name).Int64("apy_bps", spec.apyBps).Msg("Strategy registered")
	}

	// --- 3. Start Web Server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}

	webServer := web.NewWebServer(webPort, v, mgr, config.BaseAssetPrecision, true)
	go func() {
		log.Info().Str("port", webPort).Str("url", "http://localhost:"+webPort).Msg("Starting YVM web API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 4. Start Keeper Schedules ---
	kpr, err := keeper.NewKeeper(&keeper.Config{
		Identity:          config.KeeperID,
		Vault:             v,
		Manager:           mgr,
		HarvestSchedule:   envOrDefault("YVM_HARVEST_SCHEDULE", "0 * * * *"),
		AllocateSchedule:  envOrDefault("YVM_ALLOCATE_SCHEDULE", "*/10 * * * *"),
		RebalanceSchedule: envOrDefault("YVM_REBALANCE_SCHEDULE", "30 */6 * * *"),
		Precision:         config.BaseAssetPrecision,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create keeper")
	}
	kpr.Start()

	// --- 5. Wait for Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	kpr.Stop()
	webServer.Stop()
	log.Info().Msg("YVM stopped")
}

type strategySpec struct {
	name   string
	apyBps int64
}

// parseStrategySpecs parses YVM_STRATEGIES, a comma-separated list of
// name:apy_bps entries, e.g. "lending:800,amm-lp:1250,staking:600".
func parseStrategySpecs(raw string) []strategySpec {
	if raw == "" {
		raw = "lending:800,amm-lp:1250,staking:600"
	}
	var specs []strategySpec
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			log.Fatal().Str("entry", entry).Msg("Invalid YVM_STRATEGIES entry, expected name:apy_bps")
		}
		apy, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || apy < 0 {
			log.Fatal().Str("entry", entry).Msg("Invalid APY in YVM_STRATEGIES entry")
		}
		specs = append(specs, strategySpec{name: parts[0], apyBps: apy})
	}
	return specs
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
