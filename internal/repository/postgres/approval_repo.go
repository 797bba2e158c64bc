package postgres

/*
Файл approval_repo.go — персистентность заявок Human-in-the-loop.

Ключевой метод — Decide: условный UPDATE ... WHERE status = 'PENDING'
закрывает гонку двух операторов, жмущих кнопки одновременно. Решение
принимает ровно один из них, второй получает ErrAlreadyProcessed.
*/

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/custody-guard/internal/domain"
)

const approvalColumns = `id, action_type, intent, proposed_by, policy_check,
	status, reviewer_id, comment, receipt, created_at, updated_at`

type ApprovalRepo struct {
	pool *pgxpool.Pool
}

func NewApprovalRepo(pool *pgxpool.Pool) *ApprovalRepo {
	return &ApprovalRepo{pool: pool}
}

// Create сохраняет новую заявку. Результат проверки политики пишется
// даже при провале: очередь оператора должна показывать вердикт.
func (r *ApprovalRepo) Create(ctx context.Context, a *domain.PendingAction) error {
	intent, err := json.Marshal(a.Intent)
	if err != nil {
		return fmt.Errorf("postgres: marshal intent: %w", err)
	}
	policy, err := json.Marshal(a.Policy)
	if err != nil {
		return fmt.Errorf("postgres: marshal policy check: %w", err)
	}

	query := `INSERT INTO approvals (id, action_type, intent, proposed_by, policy_check, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.pool.Exec(ctx, query,
		a.ID, a.Type, intent, a.ProposedBy, policy, a.Status, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create approval: %w", err)
	}
	return nil
}

// GetByID возвращает заявку или NotFoundError.
func (r *ApprovalRepo) GetByID(ctx context.Context, id string) (*domain.PendingAction, error) {
	row := r.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM approvals WHERE id = $1", approvalColumns), id)

	a, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.NotFoundError{Resource: "approval", ID: id}
		}
		return nil, fmt.Errorf("postgres: failed to get approval: %w", err)
	}
	return a, nil
}

// Find возвращает очередь заявок, опционально по статусу.
func (r *ApprovalRepo) Find(ctx context.Context, status domain.ApprovalStatus) ([]*domain.PendingAction, error) {
	query := fmt.Sprintf("SELECT %s FROM approvals", approvalColumns)
	var args []interface{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT 100"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query approvals: %w", err)
	}
	defer rows.Close()

	// Пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.PendingAction, 0)
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan approval: %w", err)
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// Decide атомарно переводит заявку из PENDING в терминальный статус.
// Условие WHERE status = 'PENDING' исключает Double Decision: если строк
// не нашлось — заявка либо не существует, либо уже обработана.
func (r *ApprovalRepo) Decide(ctx context.Context, id string, status domain.ApprovalStatus, reviewerID, comment string) (*domain.PendingAction, error) {
	query := fmt.Sprintf(`
		UPDATE approvals
		SET status = $1,
		    reviewer_id = $2,
		    comment = NULLIF($3, ''),
		    updated_at = NOW()
		WHERE id = $4 AND status = 'PENDING'
		RETURNING %s`, approvalColumns)

	row := r.pool.QueryRow(ctx, query, status, reviewerID, comment, id)
	a, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Либо ID неверный, либо решение уже было принято ранее
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, domain.ErrAlreadyProcessed
		}
		return nil, fmt.Errorf("postgres: failed to decide approval: %w", err)
	}
	return a, nil
}

// AttachReceipt прикрепляет исход исполнения к одобренной заявке.
func (r *ApprovalRepo) AttachReceipt(ctx context.Context, id string, receipt *domain.ExecutionReceipt) error {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("postgres: marshal receipt: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE approvals SET receipt = $1, updated_at = NOW() WHERE id = $2`, raw, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to attach receipt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Resource: "approval", ID: id}
	}
	return nil
}

func scanApproval(row pgx.Row) (*domain.PendingAction, error) {
	var a domain.PendingAction
	var intent, policy, receipt []byte
	var reviewerID, comment sql.NullString // Обработка NULL из БД

	err := row.Scan(
		&a.ID, &a.Type, &intent, &a.ProposedBy, &policy,
		&a.Status, &reviewerID, &comment, &receipt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(intent, &a.Intent); err != nil {
		return nil, fmt.Errorf("unmarshal intent: %w", err)
	}
	if err := json.Unmarshal(policy, &a.Policy); err != nil {
		return nil, fmt.Errorf("unmarshal policy check: %w", err)
	}
	if len(receipt) > 0 {
		a.Receipt = &domain.ExecutionReceipt{}
		if err := json.Unmarshal(receipt, a.Receipt); err != nil {
			return nil, fmt.Errorf("unmarshal receipt: %w", err)
		}
	}

	if reviewerID.Valid {
		val := reviewerID.String
		a.ReviewerID = &val
	}
	if comment.Valid {
		val := comment.String
		a.Comment = &val
	}
	return &a, nil
}
