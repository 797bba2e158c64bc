package approval

/*
Пакет approval реализует механизм Human-in-the-loop: дорогие или
сомнительные действия не исполняются сразу, а встают в очередь на
решение оператора.

Конечный автомат заявки: PENDING -> APPROVED | REJECTED, переход ровно
один раз (условный UPDATE в репозитории). Критичный момент — Approve
НЕ доверяет вердикту, зафиксированному при создании заявки: между
Propose и решением оператора лимиты могли уехать, могла взвестись
защелка. Политика прогоняется заново в момент одобрения, и если теперь
она против — одобрение превращается в фактический отказ.
*/

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/custody-guard/internal/audit"
	"github.com/xela07ax/custody-guard/internal/domain"
	"go.uber.org/zap"
)

// Repository — персистентность заявок.
type Repository interface {
	Create(ctx context.Context, a *domain.PendingAction) error
	GetByID(ctx context.Context, id string) (*domain.PendingAction, error)
	Find(ctx context.Context, status domain.ApprovalStatus) ([]*domain.PendingAction, error)
	Decide(ctx context.Context, id string, status domain.ApprovalStatus, reviewerID, comment string) (*domain.PendingAction, error)
	AttachReceipt(ctx context.Context, id string, receipt *domain.ExecutionReceipt) error
}

// Executor исполняет одобренный интент через полный гейтинг:
// повторная проверка политики, резервирование бюджета, кастоди.
type Executor interface {
	Execute(ctx context.Context, intent domain.ActionIntent, source domain.ActionSource, traceID string) (*domain.ExecutionReceipt, []domain.GuardianDenial, error)
}

type Workflow struct {
	repo   Repository
	exec   Executor
	ledger *audit.Ledger
	logger *zap.Logger
	now    func() time.Time
}

func NewWorkflow(repo Repository, exec Executor, ledger *audit.Ledger, logger *zap.Logger) *Workflow {
	return &Workflow{
		repo:   repo,
		exec:   exec,
		ledger: ledger,
		logger: logger.Named("approval"),
		now:    time.Now,
	}
}

// Propose ставит действие в очередь. Вердикт политики на момент
// предложения фиксируется в заявке даже при провале: оператор должен
// видеть, ЧТО именно не прошло.
func (w *Workflow) Propose(ctx context.Context, intent domain.ActionIntent, proposedBy string, check domain.PolicyCheck) (*domain.PendingAction, error) {
	now := w.now().UTC()
	pa := &domain.PendingAction{
		ID:         uuid.New().String(),
		Type:       intent.Type,
		Intent:     intent,
		ProposedBy: proposedBy,
		Policy:     check,
		Status:     domain.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := w.repo.Create(ctx, pa); err != nil {
		return nil, err
	}

	w.ledger.Append(domain.AuditRecord{
		TraceID:    pa.ID,
		Category:   domain.CategoryPolicy,
		ActionType: string(intent.Type),
		AccountID:  intent.AccountID,
		Payload:    intentPayload(intent),
		Status:     domain.AuditPending,
		Passed:     check.Passed,
		Denials:    check.Denials,
		Source:     domain.SourceUser,
	})

	w.logger.Info("action queued for approval",
		zap.String("approval_id", pa.ID),
		zap.String("type", string(intent.Type)),
		zap.Float64("notional_usd", intent.NotionalUsd),
		zap.Bool("policy_passed", check.Passed),
	)
	return pa, nil
}

// Approve переводит заявку в APPROVED и исполняет ее. Решение
// забирается атомарно: из двух одновременных одобрений исполнится
// ровно одно. Свежий провал политики превращает одобрение в
// фактический отказ — исход прикрепляется к заявке, отдельная
// сущность не создается.
func (w *Workflow) Approve(ctx context.Context, id, reviewerID, comment string) (*domain.PendingAction, error) {
	claimed, err := w.repo.Decide(ctx, id, domain.StatusApproved, reviewerID, comment)
	if err != nil {
		return nil, err
	}

	receipt, _, execErr := w.exec.Execute(ctx, claimed.Intent, domain.SourceUser, "approval:"+id)
	if execErr != nil {
		receipt = &domain.ExecutionReceipt{
			Error:      execErr.Error(),
			ExecutedAt: w.now().UTC(),
		}
	}

	if err := w.repo.AttachReceipt(ctx, id, receipt); err != nil {
		// Исполнение уже случилось; потерю квитанции только логируем
		w.logger.Error("failed to attach execution receipt",
			zap.String("approval_id", id), zap.Error(err))
	}
	claimed.Receipt = receipt

	if execErr != nil {
		w.logger.Warn("approved action did not execute",
			zap.String("approval_id", id), zap.Error(execErr))
		return claimed, execErr
	}
	return claimed, nil
}

// Reject закрывает заявку без исполнения.
func (w *Workflow) Reject(ctx context.Context, id, reviewerID, comment string) (*domain.PendingAction, error) {
	rejected, err := w.repo.Decide(ctx, id, domain.StatusRejected, reviewerID, comment)
	if err != nil {
		return nil, err
	}

	w.ledger.Append(domain.AuditRecord{
		TraceID:    rejected.ID,
		Category:   domain.CategoryPolicy,
		ActionType: string(rejected.Intent.Type),
		AccountID:  rejected.Intent.AccountID,
		Payload:    intentPayload(rejected.Intent),
		Status:     domain.AuditDenied,
		Source:     domain.SourceUser,
		Error:      "rejected by operator: " + comment,
	})
	return rejected, nil
}

// Get возвращает заявку по ID.
func (w *Workflow) Get(ctx context.Context, id string) (*domain.PendingAction, error) {
	return w.repo.GetByID(ctx, id)
}

// List возвращает очередь заявок, опционально по статусу.
func (w *Workflow) List(ctx context.Context, status domain.ApprovalStatus) ([]*domain.PendingAction, error) {
	return w.repo.Find(ctx, status)
}

func intentPayload(i domain.ActionIntent) map[string]any {
	return map[string]any{
		"type":         string(i.Type),
		"market":       i.Market,
		"side":         string(i.Side),
		"notional_usd": i.NotionalUsd,
		"leverage":     i.Leverage,
		"target":       i.Target,
	}
}
