package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/custody-guard/internal/domain"
	"go.uber.org/zap"
)

// memRepo — потокобезопасный репозиторий в памяти для тестов воркера.
type memRepo struct {
	mu      sync.Mutex
	records []domain.AuditRecord
	batches int
}

func (r *memRepo) WriteBatch(_ context.Context, records []domain.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, records...)
	r.batches++
	return nil
}

func (r *memRepo) Query(_ context.Context, filter domain.AuditFilter) (*domain.AuditPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	limit := filter.Limit
	if limit > len(r.records) {
		limit = len(r.records)
	}
	return &domain.AuditPage{
		Records: append([]domain.AuditRecord{}, r.records[:limit]...),
		Total:   int64(len(r.records)),
		HasMore: limit < len(r.records),
	}, nil
}

func (r *memRepo) Stats(_ context.Context, _ domain.AuditFilter) (*domain.AuditStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &domain.AuditStats{Total: int64(len(r.records))}, nil
}

func (r *memRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func TestAppendFillsIDAndTimestamp(t *testing.T) {
	t.Parallel()

	repo := &memRepo{}
	ledger := NewLedger(repo, zap.NewNop(), 10, time.Hour, nil)

	id := ledger.Append(domain.AuditRecord{Status: domain.AuditDenied})
	assert.NotEmpty(t, id)
	assert.Len(t, id, 26, "ULID is 26 chars")
}

func TestStopDrainsBuffer(t *testing.T) {
	t.Parallel()

	repo := &memRepo{}
	// Огромный интервал flush: записи доедут только через drain на Stop
	ledger := NewLedger(repo, zap.NewNop(), 100, time.Hour, nil)
	ledger.Start()

	for i := 0; i < 7; i++ {
		ledger.Append(domain.AuditRecord{
			AccountID: "acc-1",
			Status:    domain.AuditFilled,
			Payload:   map[string]any{"notional_usd": 100.0},
		})
	}
	ledger.Stop()

	assert.Equal(t, 7, repo.len())
}

func TestBatchFlushOnSize(t *testing.T) {
	t.Parallel()

	repo := &memRepo{}
	ledger := NewLedger(repo, zap.NewNop(), 500, time.Hour, nil)
	ledger.Start()

	// Полная пачка уходит по размеру, не дожидаясь таймера
	for i := 0; i < flushBatchSize; i++ {
		ledger.Append(domain.AuditRecord{Status: domain.AuditDenied})
	}
	require.Eventually(t, func() bool { return repo.len() == flushBatchSize },
		2*time.Second, 10*time.Millisecond)

	ledger.Stop()
	assert.Equal(t, flushBatchSize, repo.len())
}

func TestAppendAfterStopIsDropped(t *testing.T) {
	t.Parallel()

	repo := &memRepo{}
	ledger := NewLedger(repo, zap.NewNop(), 10, time.Hour, nil)
	ledger.Start()
	ledger.Stop()

	// ID выдается, но запись не попадает в закрытый канал
	id := ledger.Append(domain.AuditRecord{Status: domain.AuditFailed})
	assert.NotEmpty(t, id)
	assert.Zero(t, repo.len())
}

func TestQueryDefaultLimit(t *testing.T) {
	t.Parallel()

	repo := &memRepo{}
	for i := 0; i < 60; i++ {
		repo.records = append(repo.records, domain.AuditRecord{ID: NewRecordID(time.Now())})
	}
	ledger := NewLedger(repo, zap.NewNop(), 10, time.Hour, nil)

	page, err := ledger.Query(context.Background(), domain.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, page.Records, 50)
	assert.True(t, page.HasMore)
	assert.Equal(t, int64(60), page.Total)
}

func TestRecordIDsSortChronologically(t *testing.T) {
	t.Parallel()

	early := NewRecordID(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	late := NewRecordID(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.Less(t, early, late)
}
