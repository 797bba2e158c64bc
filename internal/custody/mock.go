package custody

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/custody-guard/internal/domain"
)

// MockClient — локальная заглушка кастоди-бэкенда для разработки и демо.
// Имитирует задержку сети и собственные политики бэкенда: перевод на
// burn-адрес отклоняется policy_breach-ом, как это сделал бы реальный
// кастоди-слой.
type MockClient struct{}

func (c *MockClient) Authenticate(ctx context.Context) (*SignerIdentity, error) {
	return &SignerIdentity{SignerID: "mock-signer", Name: "Mock Custody Signer"}, nil
}

func (c *MockClient) GetOrganisations(ctx context.Context) ([]Organisation, error) {
	return []Organisation{{ID: "org-1", Name: "Demo Desk"}}, nil
}

func (c *MockClient) GetAccounts(ctx context.Context, orgID string) ([]Account, error) {
	if orgID != "org-1" {
		return nil, fmt.Errorf("organisation %s not found", orgID)
	}
	return []Account{
		{ID: "acc-1", OrgID: orgID, Name: "Main Trading", Address: "0x1111111111111111111111111111111111111111"},
		{ID: "acc-2", OrgID: orgID, Name: "Vault", Address: "0x2222222222222222222222222222222222222222"},
	}, nil
}

func (c *MockClient) SubmitTx(ctx context.Context, req TxRequest) (*SubmitResult, error) {
	if err := c.simulateLatency(ctx); err != nil {
		return nil, err
	}

	// Имитация политики самого бэкенда
	if strings.HasSuffix(strings.ToLower(req.To), "dead") {
		return &SubmitResult{Breach: &domain.PolicyBreach{
			RuleID: "custody.denylist",
			Reason: "destination address is denylisted",
		}}, nil
	}

	return &SubmitResult{Receipt: &Receipt{
		TxHash:  "0x" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		OrderID: uuid.New().String(),
		GasUsed: int64(21000 + rand.IntN(50000)),
	}}, nil
}

func (c *MockClient) Transfer(ctx context.Context, req TransferRequest) (*SubmitResult, error) {
	if err := c.simulateLatency(ctx); err != nil {
		return nil, err
	}

	if strings.HasSuffix(strings.ToLower(req.To), "dead") {
		return &SubmitResult{Breach: &domain.PolicyBreach{
			RuleID: "custody.denylist",
			Reason: "destination address is denylisted",
		}}, nil
	}

	return &SubmitResult{Receipt: &Receipt{
		TxHash:     "0x" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		FillAmount: req.Amount,
		GasUsed:    int64(21000 + rand.IntN(30000)),
	}}, nil
}

// simulateLatency имитирует задержку 20-120мс с уважением контекста
func (c *MockClient) simulateLatency(ctx context.Context) error {
	latency := time.Duration(20+rand.IntN(100)) * time.Millisecond
	select {
	case <-time.After(latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
