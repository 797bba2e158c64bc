package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/xela07ax/custody-guard/internal/console/service"
	"github.com/xela07ax/custody-guard/internal/guardian"
	"github.com/xela07ax/custody-guard/internal/infra/auth"
)

// Право на управление kill-switch-ом. Выдается отдельно от обычного
// операторского доступа: остановка и запуск торговли — разные веса.
const scopeHalt = "guardians.halt"

type GuardiansHandler struct {
	service *service.GuardianService
	engine  *guardian.Engine
	configs *guardian.ConfigCache
	halt    *guardian.HaltSync
}

func NewGuardiansHandler(s *service.GuardianService, engine *guardian.Engine, configs *guardian.ConfigCache, halt *guardian.HaltSync) *GuardiansHandler {
	return &GuardiansHandler{service: s, engine: engine, configs: configs, halt: halt}
}

// GetConfig — GET /v1/guardians/config?org_id=...&account_id=...
func (h *GuardiansHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("org_id")
	accountID := r.URL.Query().Get("account_id")

	cfg, err := h.service.GetConfig(r.Context(), orgID, accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PutConfig — PUT /v1/guardians/config?org_id=...&account_id=...
// Тело: пресет-база и/или частичное наложение по секциям guardian-ов.
func (h *GuardiansHandler) PutConfig(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("org_id")
	accountID := r.URL.Query().Get("account_id")

	var upd service.ConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	stored, err := h.service.UpdateConfig(r.Context(), orgID, accountID, upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

type stateResponse struct {
	Snapshot guardian.StateSnapshot `json:"snapshot"`

	// Остатки лимитов по действующей конфигурации аккаунта
	CooldownRemainingSec   float64 `json:"cooldown_remaining_sec"`
	TradesRemaining        int     `json:"trades_remaining"`
	DailySpendRemainingUsd float64 `json:"daily_spend_remaining_usd"`
}

// GetState — GET /v1/guardians/state?org_id=...&account_id=...
func (h *GuardiansHandler) GetState(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("org_id")
	accountID := r.URL.Query().Get("account_id")

	cfg := h.configs.GetConfig(orgID, accountID)
	store := h.engine.State()
	store.MarkHealthCheck()

	resp := stateResponse{
		Snapshot:               store.Snapshot(),
		TradesRemaining:        store.TradesRemaining(cfg.Rate.MaxPerDay),
		DailySpendRemainingUsd: store.DailySpendRemaining(cfg.Spend.MaxDailyUsd),
	}
	cooldown := time.Duration(cfg.Rate.CooldownSeconds) * time.Second
	resp.CooldownRemainingSec = store.CooldownRemaining(cooldown).Seconds()

	writeJSON(w, http.StatusOK, resp)
}

type haltRequest struct {
	Reason string `json:"reason"`
}

// Halt — POST /v1/guardians/halt: взводит защелку на всех инстансах.
func (h *GuardiansHandler) Halt(w http.ResponseWriter, r *http.Request) {
	if !auth.HasScope(r.Context(), scopeHalt) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var req haltRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		http.Error(w, "reason is required", http.StatusBadRequest)
		return
	}

	h.halt.TriggerHalt(r.Context(), "operator: "+req.Reason)
	halted, reason := h.engine.State().Halted()
	writeJSON(w, http.StatusOK, map[string]any{"halted": halted, "reason": reason})
}

// Resume — POST /v1/guardians/resume: единственный путь из halted-состояния.
func (h *GuardiansHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if !auth.HasScope(r.Context(), scopeHalt) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	h.halt.Resume(r.Context())
	halted, _ := h.engine.State().Halted()
	writeJSON(w, http.StatusOK, map[string]any{"halted": halted})
}
