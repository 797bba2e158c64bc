package custody

/*
Пакет custody инкапсулирует границу с кастоди/подписывающим бэкендом.
Бэкенд непрозрачен и сам умеет отклонять транзакции по своим политикам;
ключевой контракт пакета — нормализация: любой исход вызова приводится
к тройке {Receipt | Breach | error} прямо на границе, и остальной движок
никогда не разбирает форму исключений апстрима. Отказ политики кастоди,
прилетевший ошибкой с policy-метаданными, — это Breach, а не сбой.
*/

import (
	"context"

	"github.com/xela07ax/custody-guard/internal/domain"
)

// SignerIdentity — результат аутентификации на бэкенде.
type SignerIdentity struct {
	SignerID string `json:"signer_id"`
	Name     string `json:"name"`
}

type Organisation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Account struct {
	ID      string `json:"id"`
	OrgID   string `json:"org_id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// TxRequest — запрос на подпись и отправку транзакции.
type TxRequest struct {
	AccountID string `json:"account_id"`
	To        string `json:"to"`
	Data      string `json:"data,omitempty"`
	Value     string `json:"value,omitempty"`
}

// TransferRequest — запрос на перевод токена.
type TransferRequest struct {
	AccountID string  `json:"account_id"`
	To        string  `json:"to"`
	Token     string  `json:"token"`
	Amount    float64 `json:"amount"`
}

// Receipt — подтверждение принятого бэкендом исполнения.
type Receipt struct {
	TxHash     string  `json:"tx_hash,omitempty"`
	OrderID    string  `json:"order_id,omitempty"`
	FillPrice  float64 `json:"fill_price,omitempty"`
	FillAmount float64 `json:"fill_amount,omitempty"`
	GasUsed    int64   `json:"gas_used,omitempty"`
}

// SubmitResult — нормализованный исход: ровно одно из полей не nil.
// Ошибка уровня Go означает сбой/таймаут (индетерминированный исход),
// а не отказ политики.
type SubmitResult struct {
	Receipt *Receipt             `json:"receipt,omitempty"`
	Breach  *domain.PolicyBreach `json:"policy_breach,omitempty"`
}

// Client — операции кастоди-бэкенда. Все вызовы сетевые и обязаны
// уважать контекст: на гейтинге деньгодвижущих вызовов стоит жесткий
// таймаут, и таймаут трактуется как индетерминированный исход.
type Client interface {
	Authenticate(ctx context.Context) (*SignerIdentity, error)
	GetOrganisations(ctx context.Context) ([]Organisation, error)
	GetAccounts(ctx context.Context, orgID string) ([]Account, error)
	SubmitTx(ctx context.Context, req TxRequest) (*SubmitResult, error)
	Transfer(ctx context.Context, req TransferRequest) (*SubmitResult, error)
}
