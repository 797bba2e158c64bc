package domain

import (
	"errors"
	"time"
)

// Статусы State Machine
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "PENDING"
	StatusApproved ApprovalStatus = "APPROVED"
	StatusRejected ApprovalStatus = "REJECTED"
)

var (
	ErrInvalidTransition = errors.New("invalid approval status transition")
	ErrAlreadyProcessed  = errors.New("approval request already processed")
)

// PolicyCheck — зафиксированный результат проверки политики на момент
// создания заявки. Хранится даже при провале: заявка должна быть видна
// в очереди оператора вне зависимости от вердикта.
type PolicyCheck struct {
	Passed  bool             `json:"passed"`
	Denials []GuardianDenial `json:"denials,omitempty"`
}

// ExecutionReceipt — исход исполнения одобренной заявки.
// Прикрепляется к заявке, новой сущности не создает.
type ExecutionReceipt struct {
	TxHash     string    `json:"tx_hash,omitempty"`
	OrderID    string    `json:"order_id,omitempty"`
	FillPrice  float64   `json:"fill_price,omitempty"`
	FillAmount float64   `json:"fill_amount,omitempty"`
	GasUsed    int64     `json:"gas_used,omitempty"`
	Error      string    `json:"error,omitempty"` // заполнено при сбое исполнения
	ExecutedAt time.Time `json:"executed_at"`
}

// PendingAction — предложенное действие, ожидающее решения человека.
// Переход pending -> approved|rejected происходит ровно один раз.
type PendingAction struct {
	ID         string         `json:"id"`
	Type       ActionType     `json:"type"`
	Intent     ActionIntent   `json:"intent"`
	ProposedBy string         `json:"proposed_by"`
	Policy     PolicyCheck    `json:"policy_check"`
	Status     ApprovalStatus `json:"status"`

	ReviewerID *string `json:"reviewer_id,omitempty"`
	Comment    *string `json:"comment,omitempty"`

	Receipt *ExecutionReceipt `json:"receipt,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanTransitionTo проверяет правила конечного автомата.
// Повторное решение по уже обработанной заявке — ошибка, не no-op.
func (a *PendingAction) CanTransitionTo(next ApprovalStatus) error {
	if a.Status != StatusPending {
		return ErrAlreadyProcessed
	}
	if next == StatusPending {
		return ErrInvalidTransition
	}
	return nil
}
