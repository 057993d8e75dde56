/*

This file contains the HTTP API exposing the vault's live and persisted state
for monitoring: totals, share price, strategy registry, harvest history, and
the event log.

*/

package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/openvault/yvm/internal/logger"
	"github.com/openvault/yvm/internal/manager"
	"github.com/openvault/yvm/internal/state"
	"github.com/openvault/yvm/internal/utils"
	"github.com/openvault/yvm/internal/vault"
)

// WebServer handles HTTP requests for vault data visualization
type WebServer struct {
	router  *mux.Router
	logger  zerolog.Logger
	port    string
	vault   *vault.Vault
	manager *manager.StrategyManager

	// precision is the base asset's decimals, used for display values.
	precision int

	// dbAttached gates the endpoints backed by the persistent store.
	dbAttached bool

	srv *http.Server
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, v *vault.Vault, m *manager.StrategyManager, precision int, dbAttached bool) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:     mux.NewRouter(),
		logger:     logger.GetForComponent("web_server"),
		port:       port,
		vault:      v,
		manager:    m,
		precision:  precision,
		dbAttached: dbAttached,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/vault", ws.handleVault).Methods("GET")
	api.HandleFunc("/strategies", ws.handleStrategies).Methods("GET")
	api.HandleFunc("/harvests", ws.handleHarvests).Methods("GET")
	api.HandleFunc("/events", ws.handleEvents).Methods("GET")
}

// Start begins serving HTTP requests. Blocks until Stop or a listener error.
func (ws *WebServer) Start() error {
	ws.srv = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	ws.logger.Info().Str("port", ws.port).Msg("Web server listening")
	err := ws.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the server down gracefully.
func (ws *WebServer) Stop() {
	if ws.srv != nil {
		if err := ws.srv.Close(); err != nil {
			ws.logger.Error().Err(err).Msg("Error closing web server")
		}
	}
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		ws.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (ws *WebServer) writeError(w http.ResponseWriter, status int, err error) {
	ws.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{
		"status": "ok",
		"paused": ws.vault.IsPaused(),
		"time":   time.Now().UTC(),
	}
	if ws.dbAttached {
		if err := state.TestDBConnection(); err != nil {
			payload["status"] = "degraded"
			payload["db_error"] = err.Error()
		}
	}
	ws.writeJSON(w, http.StatusOK, payload)
}

func (ws *WebServer) handleVault(w http.ResponseWriter, r *http.Request) {
	total, err := ws.vault.TotalAssets()
	if err != nil {
		ws.writeError(w, http.StatusInternalServerError, err)
		return
	}
	price, err := ws.vault.SharePrice()
	if err != nil {
		ws.writeError(w, http.StatusInternalServerError, err)
		return
	}

	idle := ws.vault.IdleBuffer()
	totalDisplay, _ := utils.SDKIntToFloat64(total, ws.precision)
	idleDisplay, _ := utils.SDKIntToFloat64(idle, ws.precision)

	ws.writeJSON(w, http.StatusOK, map[string]interface{}{
		"asset":           ws.vault.Asset(),
		"total_assets":    total.String(),
		"total_display":   totalDisplay,
		"idle_buffer":     idle.String(),
		"idle_display":    idleDisplay,
		"total_supply":    ws.vault.TotalSupply().String(),
		"share_price":     price.String(),
		"paused":          ws.vault.IsPaused(),
		"last_harvest":    ws.vault.LastHarvest(),
		"total_harvested": ws.vault.TotalHarvested().String(),
		"tier":            ws.vault.Tier(),
		"fees":            ws.vault.Fees(),
	})
}

func (ws *WebServer) handleStrategies(w http.ResponseWriter, r *http.Request) {
	infos, err := ws.manager.Snapshot()
	if err != nil {
		ws.writeError(w, http.StatusInternalServerError, err)
		return
	}

	type strategyView struct {
		Index       int     `json:"index"`
		Name        string  `json:"name"`
		Asset       string  `json:"asset"`
		APYBps      int64   `json:"apy_bps"`
		TotalAssets string  `json:"total_assets"`
		Display     float64 `json:"total_display"`
	}
	views := make([]strategyView, 0, len(infos))
	for _, info := range infos {
		display, _ := utils.SDKIntToFloat64(info.TotalAssets, ws.precision)
		views = append(views, strategyView{
			Index:       info.Index,
			Name:        info.Name,
			Asset:       info.Asset,
			APYBps:      info.APYBps,
			TotalAssets: info.TotalAssets.String(),
			Display:     display,
		})
	}
	ws.writeJSON(w, http.StatusOK, views)
}

func (ws *WebServer) handleHarvests(w http.ResponseWriter, r *http.Request) {
	if !ws.dbAttached {
		ws.writeJSON(w, http.StatusOK, []state.HarvestRecord{})
		return
	}
	limit := parseLimit(r, 50)
	records, err := state.ListHarvests(limit)
	if err != nil {
		ws.writeError(w, http.StatusInternalServerError, err)
		return
	}
	ws.writeJSON(w, http.StatusOK, records)
}

func (ws *WebServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !ws.dbAttached {
		ws.writeJSON(w, http.StatusOK, []interface{}{})
		return
	}
	limit := parseLimit(r, 100)
	eventType := r.URL.Query().Get("type")
	events, err := state.ListEvents(eventType, limit)
	if err != nil {
		ws.writeError(w, http.StatusInternalServerError, err)
		return
	}
	ws.writeJSON(w, http.StatusOK, events)
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
