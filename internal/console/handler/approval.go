package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/custody-guard/internal/domain"
	"github.com/xela07ax/custody-guard/internal/infra/auth"
)

// ApprovalService описывает, что нужно от workflow заявок
type ApprovalService interface {
	Get(ctx context.Context, id string) (*domain.PendingAction, error)
	List(ctx context.Context, status domain.ApprovalStatus) ([]*domain.PendingAction, error)
	Approve(ctx context.Context, id, reviewerID, comment string) (*domain.PendingAction, error)
	Reject(ctx context.Context, id, reviewerID, comment string) (*domain.PendingAction, error)
}

type ApprovalHandler struct {
	service ApprovalService
}

func NewApprovalHandler(s ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{service: s}
}

// GetDetails — GET /v1/approvals/{id}
func (h *ApprovalHandler) GetDetails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	approval, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, approval)
}

// List — GET /v1/approvals?status=PENDING (очередь решений)
func (h *ApprovalHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.ApprovalStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.StatusPending // Дефолт для удобства очереди оператора
	}

	list, err := h.service.List(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type DecideRequest struct {
	Approved bool   `json:"approved"`
	Comment  string `json:"comment"`
}

// Decide — POST /v1/approvals/{id}/decide. Одобрение запускает
// исполнение; свежий провал политики вернется как 403 с квитанцией,
// уже прикрепленной к заявке.
func (h *ApprovalHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	reviewerID := auth.UserID(r.Context())
	if reviewerID == "" {
		http.Error(w, "reviewer identity missing", http.StatusUnauthorized)
		return
	}

	var (
		action *domain.PendingAction
		err    error
	)
	if req.Approved {
		action, err = h.service.Approve(r.Context(), id, reviewerID, req.Comment)
	} else {
		action, err = h.service.Reject(r.Context(), id, reviewerID, req.Comment)
	}
	if err != nil {
		// Решение могло состояться, а исполнение — нет; квитанция
		// уже у заявки, клиент перечитает ее отдельным GET
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

// Cancel — DELETE /v1/approvals/{id}: снятие заявки без исполнения.
func (h *ApprovalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	reviewerID := auth.UserID(r.Context())
	if _, err := h.service.Reject(r.Context(), id, reviewerID, "cancelled"); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
