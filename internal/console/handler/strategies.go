package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/custody-guard/internal/strategy"
)

// EligibilityChecker — проверка пригодности стратегии.
type EligibilityChecker interface {
	CheckEligibility(ctx context.Context, name, symbol string, requestedSizeUsd float64) (*strategy.Result, error)
}

type StrategiesHandler struct {
	checker EligibilityChecker
}

func NewStrategiesHandler(c EligibilityChecker) *StrategiesHandler {
	return &StrategiesHandler{checker: c}
}

type eligibilityRequest struct {
	Symbol           string  `json:"symbol"`
	RequestedSizeUsd float64 `json:"requested_size_usd"`
}

// Eligibility — POST /v1/strategies/{name}/eligibility.
// Непригодность — это 200 с eligible=false и списком причин,
// а не ошибка: клиент спрашивал вердикт и получил его.
func (h *StrategiesHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req eligibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}

	res, err := h.checker.CheckEligibility(r.Context(), name, req.Symbol, req.RequestedSizeUsd)
	if err != nil {
		// Неизвестная стратегия — ошибка конфигурации (400)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
