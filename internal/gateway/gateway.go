package gateway

/*
Пакет gateway — ядро гейтинга исходящих финансовых действий. Конвейер:

  валидация -> guardrails -> Risk Engine (CheckAndReserve) ->
  [HITL-маршрутизация по порогу] -> кастоди -> журнал решений

Правила обращения с резервом бюджета после вызова кастоди:
- Breach (кастоди определенно отказал) — резерв возвращается;
- Receipt — резерв фиксируется;
- сбой/таймаут — исход индетерминирован: деньги МОГЛИ уйти, поэтому
  резерв консервативно фиксируется. Недосчитать потраченное опаснее,
  чем пересчитать.
*/

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/custody-guard/internal/audit"
	"github.com/xela07ax/custody-guard/internal/custody"
	"github.com/xela07ax/custody-guard/internal/domain"
	"github.com/xela07ax/custody-guard/internal/guardian"
	"go.uber.org/zap"
)

// Proposer ставит действие в очередь ручного подтверждения.
// Интерфейс разрывает цикл: workflow исполняет одобренное через Gateway.
type Proposer interface {
	Propose(ctx context.Context, intent domain.ActionIntent, proposedBy string, check domain.PolicyCheck) (*domain.PendingAction, error)
}

// Options — пороги и таймауты конвейера.
type Options struct {
	Guardrails domain.GuardrailsConfig

	// Действия дороже порога уходят в HITL-очередь. 0 выключает маршрутизацию.
	ApprovalThresholdUsd float64

	// Жесткий таймаут деньгодвижущего вызова кастоди
	CustodyTimeout time.Duration
}

type Gateway struct {
	engine     *guardian.Engine
	guardrails *guardian.Guardrails
	configs    *guardian.ConfigCache
	custody    custody.Client
	ledger     *audit.Ledger
	metrics    *guardian.Metrics
	logger     *zap.Logger
	proposer   Proposer
	opts       Options
}

func New(engine *guardian.Engine, guardrails *guardian.Guardrails, configs *guardian.ConfigCache,
	cust custody.Client, ledger *audit.Ledger, metrics *guardian.Metrics, logger *zap.Logger, opts Options) *Gateway {
	if opts.CustodyTimeout <= 0 {
		opts.CustodyTimeout = 10 * time.Second
	}
	return &Gateway{
		engine:     engine,
		guardrails: guardrails,
		configs:    configs,
		custody:    cust,
		ledger:     ledger,
		metrics:    metrics,
		logger:     logger.Named("gateway"),
		opts:       opts,
	}
}

// AttachProposer подключает HITL-очередь. Вызывается на этапе сборки:
// Gateway и Workflow ссылаются друг на друга, кто-то должен быть вторым.
func (g *Gateway) AttachProposer(p Proposer) { g.proposer = p }

// GateResult — исход конвейера для успешных путей (исполнено или в очереди).
type GateResult struct {
	Status     domain.AuditStatus       `json:"status"` // filled | pending
	AuditID    string                   `json:"audit_id,omitempty"`
	ApprovalID string                   `json:"approval_id,omitempty"`
	Receipt    *domain.ExecutionReceipt `json:"receipt,omitempty"`
	Warnings   []domain.GuardianDenial  `json:"warnings,omitempty"`
}

// Gate — полный конвейер обработки интента.
func (g *Gateway) Gate(ctx context.Context, intent domain.ActionIntent, source domain.ActionSource, proposedBy string) (*GateResult, error) {
	start := time.Now()
	traceID := uuid.New().String()

	status := "error"
	defer func() {
		if g.metrics != nil {
			g.metrics.ActionDuration.WithLabelValues(string(intent.Type), status).
				Observe(time.Since(start).Seconds())
		}
	}()

	// 1. Валидация входа: до guardian-ов доходят только корректные интенты
	if err := intent.Validate(); err != nil {
		status = "invalid"
		return nil, err
	}

	// 2. Дешевый локальный фильтр
	if res := g.guardrails.Evaluate(intent, g.opts.Guardrails); !res.Passed {
		status = "denied"
		g.auditDecision(intent, traceID, source, domain.AuditDenied, nil, "guardrail: "+res.Issues[0])
		return nil, &domain.PolicyDeniedError{Stage: domain.StageGuardrail, Issues: res.Issues}
	}

	// 3. HITL-маршрутизация: дорогое действие не исполняется напрямую
	if g.proposer != nil && g.opts.ApprovalThresholdUsd > 0 && intent.NotionalUsd > g.opts.ApprovalThresholdUsd {
		cfg := g.configs.GetConfig(intent.OrgID, intent.AccountID)
		check := g.engine.CheckAll(intent, cfg)
		pa, err := g.proposer.Propose(ctx, intent, proposedBy, domain.PolicyCheck{
			Passed:  check.Passed,
			Denials: check.Denials,
		})
		if err != nil {
			return nil, err
		}
		status = "pending"
		return &GateResult{
			Status:     domain.AuditPending,
			ApprovalID: pa.ID,
			Warnings:   check.Warnings,
		}, nil
	}

	// 4. Прямое исполнение
	receipt, warnings, err := g.Execute(ctx, intent, source, traceID)
	if err != nil {
		status = "denied"
		if _, upstream := domain.AsUpstreamFault(err); upstream {
			status = "failed"
		}
		return nil, err
	}
	status = "filled"
	return &GateResult{
		Status:   domain.AuditFilled,
		AuditID:  traceID,
		Receipt:  receipt,
		Warnings: warnings,
	}, nil
}

// Execute — гейтинг и исполнение без HITL-маршрутизации. Используется
// и прямым путем Gate, и одобрением заявки: политика прогоняется
// заново в момент вызова, бюджет резервируется атомарно.
func (g *Gateway) Execute(ctx context.Context, intent domain.ActionIntent, source domain.ActionSource, traceID string) (*domain.ExecutionReceipt, []domain.GuardianDenial, error) {
	cfg := g.configs.GetConfig(intent.OrgID, intent.AccountID)

	res, reservation := g.engine.CheckAndReserve(intent, cfg)
	if !res.Passed {
		g.auditDecision(intent, traceID, source, domain.AuditDenied, res.Denials, "")
		return nil, res.Warnings, &domain.PolicyDeniedError{Stage: domain.StageGuardian, Denials: res.Denials}
	}

	// Мьютекс стора уже отпущен; наружу держим только резерв
	submitCtx, cancel := context.WithTimeout(ctx, g.opts.CustodyTimeout)
	defer cancel()

	outcome, err := g.submit(submitCtx, intent)
	switch {
	case err != nil:
		// Индетерминированный исход: резерв консервативно фиксируем
		reservation.Commit()
		g.logger.Error("custody call failed after policy pass",
			zap.String("trace_id", traceID),
			zap.String("type", string(intent.Type)),
			zap.Error(err))
		g.auditExecution(intent, traceID, source, domain.AuditFailed, nil, err.Error())
		return nil, res.Warnings, &domain.UpstreamFaultError{Stage: domain.StageExecution, Err: err}

	case outcome.Breach != nil:
		// Кастоди определенно отказал: денег не двигалось, бюджет возвращаем
		reservation.Release()
		g.auditDecision(intent, traceID, source, domain.AuditDenied, nil,
			"custody breach ["+outcome.Breach.RuleID+"]: "+outcome.Breach.Reason)
		return nil, res.Warnings, &domain.PolicyDeniedError{Stage: domain.StageCustody, Breach: outcome.Breach}

	default:
		reservation.Commit()
		receipt := &domain.ExecutionReceipt{
			TxHash:     outcome.Receipt.TxHash,
			OrderID:    outcome.Receipt.OrderID,
			FillPrice:  outcome.Receipt.FillPrice,
			FillAmount: outcome.Receipt.FillAmount,
			GasUsed:    outcome.Receipt.GasUsed,
			ExecutedAt: time.Now().UTC(),
		}
		g.auditExecution(intent, traceID, source, domain.AuditFilled, receipt, "")
		g.logger.Info("action executed",
			zap.String("trace_id", traceID),
			zap.String("type", string(intent.Type)),
			zap.Float64("notional_usd", intent.NotionalUsd),
			zap.String("tx_hash", receipt.TxHash))
		return receipt, res.Warnings, nil
	}
}

// submit транслирует интент в вызов кастоди-бэкенда.
func (g *Gateway) submit(ctx context.Context, intent domain.ActionIntent) (*custody.SubmitResult, error) {
	switch intent.Type {
	case domain.ActionTransfer:
		return g.custody.Transfer(ctx, custody.TransferRequest{
			AccountID: intent.AccountID,
			To:        intent.Target,
			Token:     intent.RootSymbol(),
			Amount:    intent.NotionalUsd,
		})
	default:
		// Параметры ордера уезжают в calldata: бэкенд непрозрачен,
		// но подписывает ровно то, что прошло политику
		data, _ := json.Marshal(map[string]any{
			"market":           intent.Market,
			"side":             string(intent.Side),
			"leverage":         intent.Leverage,
			"max_slippage_bps": intent.MaxSlippageBps,
		})
		return g.custody.SubmitTx(ctx, custody.TxRequest{
			AccountID: intent.AccountID,
			To:        intent.VenueTarget(),
			Data:      string(data),
			Value:     strconv.FormatFloat(intent.NotionalUsd, 'f', 2, 64),
		})
	}
}

func (g *Gateway) auditDecision(intent domain.ActionIntent, traceID string, source domain.ActionSource,
	status domain.AuditStatus, denials []domain.GuardianDenial, errMsg string) {
	g.ledger.Append(domain.AuditRecord{
		TraceID:    traceID,
		Category:   domain.CategoryPolicy,
		ActionType: string(intent.Type),
		AccountID:  intent.AccountID,
		Payload:    auditPayload(intent),
		Status:     status,
		Passed:     status != domain.AuditDenied,
		Denials:    denials,
		Source:     source,
		Error:      errMsg,
	})
}

func (g *Gateway) auditExecution(intent domain.ActionIntent, traceID string, source domain.ActionSource,
	status domain.AuditStatus, receipt *domain.ExecutionReceipt, errMsg string) {
	rec := domain.AuditRecord{
		TraceID:    traceID,
		Category:   domain.CategoryExecution,
		ActionType: string(intent.Type),
		AccountID:  intent.AccountID,
		Payload:    auditPayload(intent),
		Status:     status,
		Passed:     status == domain.AuditFilled,
		Source:     source,
		Error:      errMsg,
	}
	if receipt != nil {
		rec.TxHash = receipt.TxHash
		rec.OrderID = receipt.OrderID
		rec.FillPrice = receipt.FillPrice
		rec.FillAmount = receipt.FillAmount
		rec.GasUsed = receipt.GasUsed
	}
	g.ledger.Append(rec)
}

func auditPayload(i domain.ActionIntent) map[string]any {
	return map[string]any{
		"type":         string(i.Type),
		"market":       i.Market,
		"side":         string(i.Side),
		"notional_usd": i.NotionalUsd,
		"leverage":     i.Leverage,
		"target":       i.Target,
	}
}
