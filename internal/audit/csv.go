package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/xela07ax/custody-guard/internal/domain"
)

// Потолок выборки для экспорта: CSV собирается в памяти целиком.
const exportMaxRecords = 10000

var csvHeader = []string{
	"id", "timestamp", "category", "action_type",
	"account_id", "account_name", "account_address",
	"status", "passed", "denials", "payload",
	"tx_hash", "order_id", "fill_price", "fill_amount", "gas_used",
	"source", "error",
}

// ExportCSV выгружает отфильтрованный срез журнала в CSV.
func (l *Ledger) ExportCSV(ctx context.Context, filter domain.AuditFilter) ([]byte, error) {
	filter.Limit = exportMaxRecords
	filter.Offset = 0

	page, err := l.repo.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("ledger: export query failed: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}

	for _, rec := range page.Records {
		denials, _ := json.Marshal(rec.Denials)
		payload, _ := json.Marshal(rec.Payload)

		row := []string{
			rec.ID,
			rec.Timestamp.UTC().Format(time.RFC3339),
			string(rec.Category),
			rec.ActionType,
			rec.AccountID,
			rec.AccountName,
			rec.AccountAddress,
			string(rec.Status),
			strconv.FormatBool(rec.Passed),
			string(denials),
			string(payload),
			rec.TxHash,
			rec.OrderID,
			f(rec.FillPrice),
			f(rec.FillAmount),
			strconv.FormatInt(rec.GasUsed, 10),
			string(rec.Source),
			rec.Error,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
