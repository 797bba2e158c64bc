package postgres

/*
Файл audit_repo.go — персистентность журнала решений.

Запись идет пачками из асинхронного воркера Ledger-а, чтение — напрямую
по запросу оператора. Агрегаты считаются на стороне базы: FILTER-клаузы
и разворачивание JSONB дешевле, чем таскать весь журнал в приложение.
*/

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/custody-guard/internal/domain"
)

const auditColumns = `id, trace_id, timestamp, category, action_type,
	account_id, account_name, account_address, payload, status, passed,
	denials, tx_hash, order_id, fill_price, fill_amount, gas_used, source, error`

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// WriteBatch вставляет пачку записей одним запросом.
func (r *AuditRepo) WriteBatch(ctx context.Context, records []domain.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_records
	const numFields = 19
	var sb strings.Builder
	vals := make([]interface{}, 0, len(records)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, rec := range records {
		if i > 0 {
			sb.WriteString(",")
		}
		p := i * numFields
		sb.WriteString("(")
		for j := 1; j <= numFields; j++ {
			if j > 1 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, "$%d", p+j)
		}
		sb.WriteString(")")

		payload, _ := json.Marshal(rec.Payload)
		denials, _ := json.Marshal(rec.Denials)

		vals = append(vals,
			rec.ID, rec.TraceID, rec.Timestamp, rec.Category, rec.ActionType,
			rec.AccountID, rec.AccountName, rec.AccountAddress, payload,
			rec.Status, rec.Passed, denials, rec.TxHash, rec.OrderID,
			rec.FillPrice, rec.FillAmount, rec.GasUsed, rec.Source, rec.Error,
		)
	}

	query := fmt.Sprintf("INSERT INTO audit_records (%s) VALUES %s", auditColumns, sb.String())
	_, err := r.pool.Exec(ctx, query, vals...)
	if err != nil {
		return fmt.Errorf("postgres: audit batch insert failed: %w", err)
	}
	return nil
}

// buildFilter превращает AuditFilter в WHERE-клаузу с аргументами.
func buildFilter(f domain.AuditFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	add := func(cond string, val interface{}) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.ActionType != "" {
		add("action_type = $%d", f.ActionType)
	}
	if f.AccountID != "" {
		add("account_id = $%d", f.AccountID)
	}
	if !f.From.IsZero() {
		add("timestamp >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("timestamp <= $%d", f.To)
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(payload::text ILIKE $%d OR tx_hash ILIKE $%d)", n, n))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Query возвращает страницу журнала, новые записи первыми.
func (r *AuditRepo) Query(ctx context.Context, f domain.AuditFilter) (*domain.AuditPage, error) {
	where, args := buildFilter(f)

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_records"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("postgres: audit count failed: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM audit_records%s ORDER BY timestamp DESC LIMIT $%d OFFSET $%d",
		auditColumns, where, len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: audit query failed: %w", err)
	}
	defer rows.Close()

	// Пустой слайс, чтобы в JSON был [] вместо null
	records := make([]domain.AuditRecord, 0, f.Limit)
	for rows.Next() {
		var rec domain.AuditRecord
		var payload, denials []byte

		err := rows.Scan(
			&rec.ID, &rec.TraceID, &rec.Timestamp, &rec.Category, &rec.ActionType,
			&rec.AccountID, &rec.AccountName, &rec.AccountAddress, &payload,
			&rec.Status, &rec.Passed, &denials, &rec.TxHash, &rec.OrderID,
			&rec.FillPrice, &rec.FillAmount, &rec.GasUsed, &rec.Source, &rec.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: audit scan failed: %w", err)
		}
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &rec.Payload)
		}
		if len(denials) > 0 {
			_ = json.Unmarshal(denials, &rec.Denials)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}

	return &domain.AuditPage{
		Records: records,
		Total:   total,
		HasMore: int64(f.Offset+len(records)) < total,
	}, nil
}

// Stats считает агрегаты журнала на стороне базы.
func (r *AuditRepo) Stats(ctx context.Context, f domain.AuditFilter) (*domain.AuditStats, error) {
	where, args := buildFilter(f)

	stats := &domain.AuditStats{
		ByStatus:        make(map[string]int64),
		DenialBreakdown: make(map[string]int64),
	}

	// Общие счетчики одним проходом
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE timestamp > NOW() - INTERVAL '24 hours'),
			COUNT(*) FILTER (WHERE timestamp > NOW() - INTERVAL '7 days'),
			COALESCE(SUM((payload->>'notional_usd')::DOUBLE PRECISION) FILTER (WHERE status = 'filled'), 0)
		FROM audit_records%s`, where), args...).Scan(
		&stats.Total, &stats.Last24h, &stats.Last7d, &stats.TotalVolumeUsd,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: audit stats failed: %w", err)
	}

	// Разбивка по статусам
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf("SELECT status, COUNT(*) FROM audit_records%s GROUP BY status", where), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: status breakdown failed: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("postgres: status scan failed: %w", err)
		}
		stats.ByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}

	// Какие guardian-ы отклоняют чаще всего: разворачиваем JSONB
	dWhere := where
	if dWhere == "" {
		dWhere = " WHERE status = 'denied'"
	} else {
		dWhere += " AND status = 'denied'"
	}
	dRows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT d->>'guardian', COUNT(*)
		FROM audit_records, jsonb_array_elements(denials) d%s
		GROUP BY 1`, dWhere), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: denial breakdown failed: %w", err)
	}
	defer dRows.Close()
	for dRows.Next() {
		var guardian string
		var count int64
		if err := dRows.Scan(&guardian, &count); err != nil {
			return nil, fmt.Errorf("postgres: denial scan failed: %w", err)
		}
		stats.DenialBreakdown[guardian] = count
	}
	if err := dRows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}

	// Успешность исполнения: filled против всех завершившихся исполнений
	executed := stats.ByStatus[string(domain.AuditFilled)] +
		stats.ByStatus[string(domain.AuditPartial)] +
		stats.ByStatus[string(domain.AuditFailed)]
	if executed > 0 {
		stats.SuccessRate = float64(stats.ByStatus[string(domain.AuditFilled)]) / float64(executed)
	}

	return stats, nil
}
