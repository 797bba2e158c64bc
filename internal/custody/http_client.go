package custody

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/xela07ax/custody-guard/internal/domain"
	"go.uber.org/zap"
)

// HTTPClient — адаптер к HTTP JSON API кастоди-бэкенда.
type HTTPClient struct {
	rc     *resty.Client
	logger *zap.Logger
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetHeader("Content-Type", "application/json")

	return &HTTPClient{
		rc:     rc,
		logger: logger.Named("custody"),
	}
}

// Форма ответа бэкенда на submit/transfer. Бэкенд отдает либо receipt,
// либо policy_breach (нарушение его собственной политики), либо ошибку.
type submitEnvelope struct {
	Success bool                 `json:"success"`
	TxHash  string               `json:"tx_hash,omitempty"`
	OrderID string               `json:"order_id,omitempty"`
	Fill    *fillInfo            `json:"fill,omitempty"`
	GasUsed int64                `json:"gas_used,omitempty"`
	Breach  *domain.PolicyBreach `json:"policy_breach,omitempty"`
	Error   string               `json:"error,omitempty"`
}

type fillInfo struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

func (c *HTTPClient) Authenticate(ctx context.Context) (*SignerIdentity, error) {
	var id SignerIdentity
	resp, err := c.rc.R().SetContext(ctx).SetResult(&id).Post("/v1/auth")
	if err != nil {
		return nil, fmt.Errorf("custody: authenticate failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("custody: authenticate returned %s", resp.Status())
	}
	return &id, nil
}

func (c *HTTPClient) GetOrganisations(ctx context.Context) ([]Organisation, error) {
	var orgs []Organisation
	resp, err := c.rc.R().SetContext(ctx).SetResult(&orgs).Get("/v1/organisations")
	if err != nil {
		return nil, fmt.Errorf("custody: list organisations failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("custody: list organisations returned %s", resp.Status())
	}
	return orgs, nil
}

func (c *HTTPClient) GetAccounts(ctx context.Context, orgID string) ([]Account, error) {
	var accounts []Account
	resp, err := c.rc.R().SetContext(ctx).
		SetPathParam("org_id", orgID).
		SetResult(&accounts).
		Get("/v1/organisations/{org_id}/accounts")
	if err != nil {
		return nil, fmt.Errorf("custody: list accounts failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("custody: list accounts returned %s", resp.Status())
	}
	return accounts, nil
}

func (c *HTTPClient) SubmitTx(ctx context.Context, req TxRequest) (*SubmitResult, error) {
	return c.submit(ctx, "/v1/transactions", req)
}

func (c *HTTPClient) Transfer(ctx context.Context, req TransferRequest) (*SubmitResult, error) {
	return c.submit(ctx, "/v1/transfers", req)
}

// submit выполняет деньгодвижущий вызов и нормализует исход.
// 403 с policy_breach в теле — это Breach, а не ошибка: дальше по движку
// никто не разбирает ни HTTP-коды, ни форму исключений бэкенда.
func (c *HTTPClient) submit(ctx context.Context, path string, body any) (*SubmitResult, error) {
	resp, err := c.rc.R().SetContext(ctx).SetBody(body).Post(path)
	if err != nil {
		// Сетевой сбой или таймаут: исход индетерминирован
		return nil, fmt.Errorf("custody: submit failed: %w", err)
	}

	var env submitEnvelope
	if jerr := json.Unmarshal(resp.Body(), &env); jerr != nil {
		if resp.IsError() {
			return nil, fmt.Errorf("custody: submit returned %s", resp.Status())
		}
		return nil, fmt.Errorf("custody: malformed submit response: %w", jerr)
	}

	// Отказ политики кастоди может прийти и с 403, и с success=false
	if env.Breach != nil {
		c.logger.Info("custody policy breach",
			zap.String("rule_id", env.Breach.RuleID),
			zap.String("reason", env.Breach.Reason))
		return &SubmitResult{Breach: env.Breach}, nil
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		return nil, &ThrottleError{
			RetryAfter: parseRetryAfter(resp.Header().Get("Retry-After")),
			Cause:      fmt.Errorf("custody returned 429"),
		}
	}

	if resp.IsError() || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = resp.Status()
		}
		return nil, fmt.Errorf("custody: submit rejected: %s", msg)
	}

	receipt := &Receipt{
		TxHash:  env.TxHash,
		OrderID: env.OrderID,
		GasUsed: env.GasUsed,
	}
	if env.Fill != nil {
		receipt.FillPrice = env.Fill.Price
		receipt.FillAmount = env.Fill.Amount
	}
	return &SubmitResult{Receipt: receipt}, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return time.Second
	}
	if d, err := time.ParseDuration(header + "s"); err == nil {
		return d
	}
	return time.Second
}
