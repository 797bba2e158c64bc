package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/xela07ax/custody-guard/internal/domain"
	"github.com/xela07ax/custody-guard/internal/gateway"
	"github.com/xela07ax/custody-guard/internal/infra/auth"
)

// ActionGate — вход конвейера гейтинга.
type ActionGate interface {
	Gate(ctx context.Context, intent domain.ActionIntent, source domain.ActionSource, proposedBy string) (*gateway.GateResult, error)
}

type ActionsHandler struct {
	gate ActionGate
}

func NewActionsHandler(gate ActionGate) *ActionsHandler {
	return &ActionsHandler{gate: gate}
}

type executeRequest struct {
	Intent domain.ActionIntent `json:"intent"`
	Source domain.ActionSource `json:"source,omitempty"`
}

// Execute — POST /v1/actions/execute, граница гейтинга действий.
// Коды ответа: 400 вход/guardrail, 403 отказ политики, 500 сбой исполнения.
func (h *ActionsHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Source == "" {
		req.Source = domain.SourceUser
	}

	res, err := h.gate.Gate(r.Context(), req.Intent, req.Source, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	code := http.StatusOK
	if res.Status == domain.AuditPending {
		// Действие в очереди ручного подтверждения, не исполнено
		code = http.StatusAccepted
	}
	writeJSON(w, code, res)
}
