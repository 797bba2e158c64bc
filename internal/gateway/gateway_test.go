package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/custody-guard/internal/audit"
	"github.com/xela07ax/custody-guard/internal/custody"
	"github.com/xela07ax/custody-guard/internal/domain"
	"github.com/xela07ax/custody-guard/internal/guardian"
	"go.uber.org/zap"
)

// recordingAuditRepo складывает записи журнала в память.
type recordingAuditRepo struct {
	mu      sync.Mutex
	records []domain.AuditRecord
}

func (r *recordingAuditRepo) WriteBatch(_ context.Context, records []domain.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, records...)
	return nil
}

func (r *recordingAuditRepo) Query(_ context.Context, _ domain.AuditFilter) (*domain.AuditPage, error) {
	return &domain.AuditPage{}, nil
}

func (r *recordingAuditRepo) Stats(_ context.Context, _ domain.AuditFilter) (*domain.AuditStats, error) {
	return &domain.AuditStats{}, nil
}

func (r *recordingAuditRepo) byStatus(status domain.AuditStatus) []domain.AuditRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditRecord
	for _, rec := range r.records {
		if rec.Status == status {
			out = append(out, rec)
		}
	}
	return out
}

// faultyCustody — бэкенд, у которого всегда сетевой сбой.
type faultyCustody struct{}

func (faultyCustody) Authenticate(context.Context) (*custody.SignerIdentity, error) {
	return nil, errors.New("connection refused")
}
func (faultyCustody) GetOrganisations(context.Context) ([]custody.Organisation, error) {
	return nil, errors.New("connection refused")
}
func (faultyCustody) GetAccounts(context.Context, string) ([]custody.Account, error) {
	return nil, errors.New("connection refused")
}
func (faultyCustody) SubmitTx(context.Context, custody.TxRequest) (*custody.SubmitResult, error) {
	return nil, errors.New("connection refused")
}
func (faultyCustody) Transfer(context.Context, custody.TransferRequest) (*custody.SubmitResult, error) {
	return nil, errors.New("connection refused")
}

// capturingCustody записывает уходящие в кастоди запросы.
type capturingCustody struct {
	custody.MockClient
	mu  sync.Mutex
	txs []custody.TxRequest
}

func (c *capturingCustody) SubmitTx(ctx context.Context, req custody.TxRequest) (*custody.SubmitResult, error) {
	c.mu.Lock()
	c.txs = append(c.txs, req)
	c.mu.Unlock()
	return c.MockClient.SubmitTx(ctx, req)
}

// stubProposer запоминает предложенные действия.
type stubProposer struct {
	mu       sync.Mutex
	proposed []domain.ActionIntent
}

func (p *stubProposer) Propose(_ context.Context, intent domain.ActionIntent, _ string, check domain.PolicyCheck) (*domain.PendingAction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proposed = append(p.proposed, intent)
	return &domain.PendingAction{
		ID:     "appr-1",
		Intent: intent,
		Policy: check,
		Status: domain.StatusPending,
	}, nil
}

type gatewayFixture struct {
	gw     *Gateway
	engine *guardian.Engine
	repo   *recordingAuditRepo

	// drain останавливает журнал и доливает буфер в репозиторий.
	// Идемпотентен: зовется и тестом, и cleanup-ом.
	drain func()
}

func newFixture(t *testing.T, client custody.Client, opts Options) *gatewayFixture {
	t.Helper()
	return newFixtureWithGuardians(t, client, opts, domain.GuardiansConfig{
		Spend: domain.SpendConfig{Enabled: true, MaxPerTradeUsd: 100_000, MaxDailyUsd: 1_000_000},
		Loss:  domain.LossConfig{Enabled: true, MaxDrawdownUsd: 50_000, AccountStatus: domain.AccountActive},
	})
}

func newFixtureWithGuardians(t *testing.T, client custody.Client, opts Options, defaults domain.GuardiansConfig) *gatewayFixture {
	t.Helper()

	store := guardian.NewStore(zap.NewNop())
	engine := guardian.NewEngine(store, nil, zap.NewNop())
	guardrails := guardian.NewGuardrails(store)
	configs := guardian.NewConfigCache(nil, nil, defaults, zap.NewNop())

	repo := &recordingAuditRepo{}
	ledger := audit.NewLedger(repo, zap.NewNop(), 100, time.Hour, nil)
	ledger.Start()
	var stopOnce sync.Once
	drain := func() { stopOnce.Do(ledger.Stop) }
	t.Cleanup(drain)

	if opts.Guardrails.AllowedMarkets == nil {
		opts.Guardrails = domain.GuardrailsConfig{
			AllowedMarkets: []string{"ETH", "BTC", "USDC"},
			MaxSlippageBps: 100,
		}
	}

	gw := New(engine, guardrails, configs, client, ledger, nil, zap.NewNop(), opts)
	return &gatewayFixture{gw: gw, engine: engine, repo: repo, drain: drain}
}

func orderIntent(notional float64) domain.ActionIntent {
	return domain.ActionIntent{
		Type:            domain.ActionSpotMarketOrder,
		Market:          "ETH/USD",
		Side:            domain.SideBuy,
		NotionalUsd:     notional,
		MaxSlippageBps:  50,
		Leverage:        1,
		ValidForSeconds: 60,
		OrgID:           "org-1",
		AccountID:       "acc-1",
	}
}

func TestGateFillsOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &custody.MockClient{}, Options{})

	res, err := f.gw.Gate(context.Background(), orderIntent(5_000), domain.SourceUser, "")
	require.NoError(t, err)
	assert.Equal(t, domain.AuditFilled, res.Status)
	require.NotNil(t, res.Receipt)
	assert.NotEmpty(t, res.Receipt.TxHash)

	// Бюджет зафиксирован
	assert.Equal(t, 5_000.0, f.engine.State().Snapshot().DailySpendUsd)

	// Запись исполнения доезжает до журнала
	f.drain()
	filled := f.repo.byStatus(domain.AuditFilled)
	require.Len(t, filled, 1)
	assert.Equal(t, res.Receipt.TxHash, filled[0].TxHash)
	assert.Equal(t, "acc-1", filled[0].AccountID)
}

func TestOrderSubmitCarriesOrderPayload(t *testing.T) {
	t.Parallel()

	client := &capturingCustody{}
	f := newFixture(t, client, Options{})

	_, err := f.gw.Gate(context.Background(), orderIntent(5_000), domain.SourceUser, "")
	require.NoError(t, err)

	// Бэкенд подписывает то, что прошло политику: сумма в value,
	// параметры ордера в calldata
	client.mu.Lock()
	defer client.mu.Unlock()
	require.Len(t, client.txs, 1)
	tx := client.txs[0]
	assert.Equal(t, "acc-1", tx.AccountID)
	assert.Equal(t, "ETH/USD", tx.To)
	assert.Equal(t, "5000.00", tx.Value)
	assert.Contains(t, tx.Data, `"market":"ETH/USD"`)
	assert.Contains(t, tx.Data, `"side":"BUY"`)
}

func TestGateRejectsInvalidIntent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &custody.MockClient{}, Options{})

	_, err := f.gw.Gate(context.Background(), domain.ActionIntent{Type: "warp"}, domain.SourceUser, "")
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Zero(t, f.engine.State().Snapshot().DailySpendUsd)
}

func TestGuardrailDenialIsStagedForClient(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &custody.MockClient{}, Options{})

	intent := orderIntent(1_000)
	intent.Market = "DOGE/USD"

	_, err := f.gw.Gate(context.Background(), intent, domain.SourceUser, "")
	require.Error(t, err)

	denied, ok := domain.AsPolicyDenied(err)
	require.True(t, ok)
	assert.Equal(t, domain.StageGuardrail, denied.Stage)
	require.NotEmpty(t, denied.Issues)
	assert.Contains(t, denied.Issues[0], "not allowed")

	// До движка и кастоди дело не дошло
	assert.Zero(t, f.engine.State().Snapshot().DailySpendUsd)
}

func TestGuardianDenialAfterGuardrails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &custody.MockClient{}, Options{})

	// Больше per-trade лимита из дефолтов (100k)
	_, err := f.gw.Gate(context.Background(), orderIntent(150_000), domain.SourceUser, "")
	require.Error(t, err)

	denied, ok := domain.AsPolicyDenied(err)
	require.True(t, ok)
	assert.Equal(t, domain.StageGuardian, denied.Stage)
	require.NotEmpty(t, denied.Denials)
	assert.Equal(t, domain.GuardianSpend, denied.Denials[0].Guardian)
	assert.Zero(t, f.engine.State().Snapshot().DailySpendUsd)
}

func TestVenueGuardianDeniesUnlistedTarget(t *testing.T) {
	t.Parallel()

	f := newFixtureWithGuardians(t, &custody.MockClient{}, Options{}, domain.GuardiansConfig{
		Spend: domain.SpendConfig{Enabled: true, MaxPerTradeUsd: 100_000, MaxDailyUsd: 1_000_000},
		Venue: domain.VenueConfig{Enabled: true, AllowedContracts: []string{
			"0xa11ce00000000000000000000000000000000001",
		}},
	})

	intent := domain.ActionIntent{
		Type:            domain.ActionTransfer,
		Target:          "0x000000000000000000000000000000000000dEaD",
		Market:          "USDC",
		NotionalUsd:     1_000,
		Leverage:        1,
		ValidForSeconds: 60,
		OrgID:           "org-1",
		AccountID:       "acc-1",
	}

	_, err := f.gw.Gate(context.Background(), intent, domain.SourceUser, "")
	require.Error(t, err)

	// Получатель вне allowlist режется нашим Venue-guardian-ом,
	// до кастоди вызов не доходит
	denied, ok := domain.AsPolicyDenied(err)
	require.True(t, ok)
	assert.Equal(t, domain.StageGuardian, denied.Stage)
	require.NotEmpty(t, denied.Denials)
	assert.Equal(t, domain.GuardianVenue, denied.Denials[0].Guardian)
	assert.Zero(t, f.engine.State().Snapshot().DailySpendUsd)

	// Отказ доезжает до журнала как denied-запись
	f.drain()
	recs := f.repo.byStatus(domain.AuditDenied)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Passed)
	require.NotEmpty(t, recs[0].Denials)
	assert.Equal(t, domain.GuardianVenue, recs[0].Denials[0].Guardian)
}

func TestCustodyBreachReleasesBudget(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &custody.MockClient{}, Options{})

	intent := domain.ActionIntent{
		Type:            domain.ActionTransfer,
		Target:          "0x000000000000000000000000000000000000dead",
		Market:          "USDC",
		NotionalUsd:     1_000,
		Leverage:        1,
		ValidForSeconds: 60,
		OrgID:           "org-1",
		AccountID:       "acc-1",
	}

	_, err := f.gw.Gate(context.Background(), intent, domain.SourceUser, "")
	require.Error(t, err)

	denied, ok := domain.AsPolicyDenied(err)
	require.True(t, ok)
	assert.Equal(t, domain.StageCustody, denied.Stage)
	require.NotNil(t, denied.Breach)
	assert.Equal(t, "custody.denylist", denied.Breach.RuleID)

	// Кастоди отказал определенно: резерв вернулся
	snap := f.engine.State().Snapshot()
	assert.Zero(t, snap.DailySpendUsd)
	assert.Zero(t, snap.TradeCountToday)
}

func TestUpstreamFaultCommitsReservation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, faultyCustody{}, Options{})

	_, err := f.gw.Gate(context.Background(), orderIntent(2_000), domain.SourceUser, "")
	require.Error(t, err)

	fault, ok := domain.AsUpstreamFault(err)
	require.True(t, ok)
	assert.Equal(t, domain.StageExecution, fault.Stage)

	// Исход индетерминирован: деньги могли уйти, резерв остается потраченным
	snap := f.engine.State().Snapshot()
	assert.Equal(t, 2_000.0, snap.DailySpendUsd)
	assert.Equal(t, 1, snap.TradeCountToday)
}

func TestExpensiveActionRoutesToApproval(t *testing.T) {
	t.Parallel()

	proposer := &stubProposer{}
	f := newFixture(t, &custody.MockClient{}, Options{ApprovalThresholdUsd: 50_000})
	f.gw.AttachProposer(proposer)

	res, err := f.gw.Gate(context.Background(), orderIntent(75_000), domain.SourceUser, "operator-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AuditPending, res.Status)
	assert.Equal(t, "appr-1", res.ApprovalID)
	assert.Nil(t, res.Receipt)

	// Исполнения не было: бюджет не резервировался
	assert.Zero(t, f.engine.State().Snapshot().DailySpendUsd)
	require.Len(t, proposer.proposed, 1)
	assert.Equal(t, 75_000.0, proposer.proposed[0].NotionalUsd)
}

func TestCheapActionSkipsApprovalQueue(t *testing.T) {
	t.Parallel()

	proposer := &stubProposer{}
	f := newFixture(t, &custody.MockClient{}, Options{ApprovalThresholdUsd: 50_000})
	f.gw.AttachProposer(proposer)

	res, err := f.gw.Gate(context.Background(), orderIntent(10_000), domain.SourceUser, "operator-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AuditFilled, res.Status)
	assert.Empty(t, proposer.proposed)
}

func TestHaltLatchBlocksGateway(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &custody.MockClient{}, Options{})
	f.engine.State().TriggerHalt("emergency stop")

	_, err := f.gw.Gate(context.Background(), orderIntent(100), domain.SourceUser, "")
	require.Error(t, err)

	denied, ok := domain.AsPolicyDenied(err)
	require.True(t, ok)
	assert.Equal(t, domain.StageGuardian, denied.Stage)
	assert.Contains(t, denied.Denials[0].Reason, "emergency stop")
}
