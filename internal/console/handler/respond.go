package handler

/*
Файл respond.go — единая точка трансляции таксономии ошибок движка
в HTTP-коды. Контракт границы:

  400 — некорректный вход (валидация, guardrail, конфигурация);
  403 — отказ политики (guardian-ы или breach кастоди);
  404 — неизвестный ресурс;
  409 — повторное решение по уже обработанной заявке;
  500 — сбой исполнения/инфраструктуры.

Отказ политики — ожидаемый исход, а не сбой: тело 403 несет полный
структурированный список причин, по которым действие не прошло.
*/

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xela07ax/custody-guard/internal/domain"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string                  `json:"error"`
	Stage   string                  `json:"stage,omitempty"`
	Fields  map[string]string       `json:"fields,omitempty"`
	Issues  []string                `json:"issues,omitempty"`
	Denials []domain.GuardianDenial `json:"denials,omitempty"`
	Breach  *domain.PolicyBreach    `json:"policy_breach,omitempty"`
}

// writeError маппит ошибку движка в HTTP-ответ.
func writeError(w http.ResponseWriter, err error) {
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Fields: vErr.Fields})
		return
	}

	if pd, ok := domain.AsPolicyDenied(err); ok {
		body := errorBody{
			Error:   pd.Error(),
			Stage:   pd.Stage,
			Issues:  pd.Issues,
			Denials: pd.Denials,
			Breach:  pd.Breach,
		}
		// Guardrail — это еще валидация входа, а не вердикт движка
		if pd.Stage == domain.StageGuardrail {
			writeJSON(w, http.StatusBadRequest, body)
			return
		}
		writeJSON(w, http.StatusForbidden, body)
		return
	}

	if domain.IsNotFound(err) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}

	if errors.Is(err, domain.ErrAlreadyProcessed) || errors.Is(err, domain.ErrInvalidTransition) {
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
		return
	}

	if domain.IsConfiguration(err) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	if uf, ok := domain.AsUpstreamFault(err); ok {
		// Деталей апстрима наружу не отдаем, только стадию
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error: "execution failed",
			Stage: uf.Stage,
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
}
