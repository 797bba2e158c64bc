package audit

import (
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/custody-guard/internal/domain"
	"go.uber.org/zap"
)

func TestExportCSV(t *testing.T) {
	t.Parallel()

	repo := &memRepo{records: []domain.AuditRecord{
		{
			ID:         NewRecordID(time.Now()),
			Timestamp:  time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
			Category:   domain.CategoryExecution,
			ActionType: "spot_market_order",
			AccountID:  "acc-1",
			Status:     domain.AuditFilled,
			Passed:     true,
			Payload:    map[string]any{"notional_usd": 5000.0},
			TxHash:     "0xbeef",
			GasUsed:    21000,
			Source:     domain.SourceUser,
		},
		{
			ID:         NewRecordID(time.Now()),
			Timestamp:  time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC),
			Category:   domain.CategoryPolicy,
			ActionType: "transfer",
			AccountID:  "acc-1",
			Status:     domain.AuditDenied,
			Denials:    []domain.GuardianDenial{domain.Deny(domain.GuardianSpend, "Spend limit", "over budget")},
			Source:     domain.SourceAgent,
		},
	}}
	ledger := NewLedger(repo, zap.NewNop(), 10, time.Hour, nil)

	out, err := ledger.ExportCSV(context.Background(), domain.AuditFilter{})
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus two records")
	assert.Equal(t, csvHeader, rows[0])

	assert.Equal(t, "2026-03-10T12:00:00Z", rows[1][1])
	assert.Equal(t, "0xbeef", rows[1][11])
	assert.Contains(t, rows[1][10], "notional_usd")

	assert.Equal(t, "denied", rows[2][7])
	assert.Contains(t, rows[2][9], "over budget")
}
