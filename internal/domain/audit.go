package domain

import "time"

// ActionCategory отделяет решения политики от исходов исполнения.
type ActionCategory string

const (
	CategoryPolicy    ActionCategory = "policy"
	CategoryExecution ActionCategory = "execution"
)

// AuditStatus — статус записи в журнале решений.
type AuditStatus string

const (
	AuditApproved  AuditStatus = "approved"
	AuditDenied    AuditStatus = "denied"
	AuditPending   AuditStatus = "pending"
	AuditFilled    AuditStatus = "filled"
	AuditPartial   AuditStatus = "partial"
	AuditFailed    AuditStatus = "failed"
	AuditConfirmed AuditStatus = "confirmed"
)

// ActionSource — кто инициировал действие.
type ActionSource string

const (
	SourceUser  ActionSource = "user"
	SourceAgent ActionSource = "agent"
)

// AuditRecord — одна неизменяемая строка журнала. Создается один раз,
// никогда не мутируется; журнал только дописывается.
type AuditRecord struct {
	ID        string         `json:"id"` // ULID: сортируется по времени
	TraceID   string         `json:"trace_id"`
	Timestamp time.Time      `json:"timestamp"`
	Category  ActionCategory `json:"category"`

	ActionType string `json:"action_type"`

	AccountID      string `json:"account_id"`
	AccountName    string `json:"account_name,omitempty"`
	AccountAddress string `json:"account_address,omitempty"`

	// Свободная форма: рынок, сумма, описание — что было запрошено
	Payload map[string]any `json:"payload,omitempty"`

	Status  AuditStatus      `json:"status"`
	Passed  bool             `json:"passed"`
	Denials []GuardianDenial `json:"denials,omitempty"`

	// Результат исполнения, если до него дошло
	TxHash     string  `json:"tx_hash,omitempty"`
	OrderID    string  `json:"order_id,omitempty"`
	FillPrice  float64 `json:"fill_price,omitempty"`
	FillAmount float64 `json:"fill_amount,omitempty"`
	GasUsed    int64   `json:"gas_used,omitempty"`

	Source ActionSource `json:"source"`
	Error  string       `json:"error,omitempty"`
}

// AuditFilter — параметры выборки из журнала.
type AuditFilter struct {
	Status     AuditStatus `json:"status,omitempty"`
	ActionType string      `json:"action_type,omitempty"`
	AccountID  string      `json:"account_id,omitempty"`
	From       time.Time   `json:"from,omitempty"`
	To         time.Time   `json:"to,omitempty"`
	Search     string      `json:"search,omitempty"` // подстрока в payload/tx_hash
	Limit      int         `json:"limit,omitempty"`
	Offset     int         `json:"offset,omitempty"`
}

// AuditPage — страница выборки.
type AuditPage struct {
	Records []AuditRecord `json:"records"`
	Total   int64         `json:"total"`
	HasMore bool          `json:"has_more"`
}

// AuditStats — агрегаты, вычисляемые на чтении. Никогда не кэшируются
/// деструктивно: каждый вызов считает по актуальному набору записей.
type AuditStats struct {
	Total           int64            `json:"total"`
	ByStatus        map[string]int64 `json:"by_status"`
	Last24h         int64            `json:"last_24h"`
	Last7d          int64            `json:"last_7d"`
	TotalVolumeUsd  float64          `json:"total_volume_usd"`
	SuccessRate     float64          `json:"success_rate"`
	DenialBreakdown map[string]int64 `json:"denial_breakdown"` // guardian -> count
}
