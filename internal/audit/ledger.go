package audit

/*
Файл ledger.go реализует журнал решений (Audit Ledger) — append-only
запись каждого вердикта политики и исхода исполнения.

Ключевые особенности архитектуры:
- Non-blocking Append: запись уходит через неблокирующий канал из Hot Path
  гейтинга. Задержки БД не влияют на время ответа, а сбой записи журнала
  никогда не валит и не откатывает само решение.
- Batching: накопление событий в памяти и пакетная вставка в PostgreSQL
  по таймеру или при достижении лимита пачки.
- Drain Pattern & Graceful Shutdown: при остановке канал закрывается,
  воркер вычитает остатки и делает финальный flush — записи при
  перезапуске не теряются.
- Чтение (выборки, агрегаты, CSV-экспорт) идет напрямую из репозитория,
  агрегаты считаются на момент запроса и не кэшируются деструктивно.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/xela07ax/custody-guard/internal/domain"
	"go.uber.org/zap"
)

const flushBatchSize = 100

// Repository определяет, куда физически сохраняются и откуда читаются записи
type Repository interface {
	// WriteBatch сохраняет пачку записей за один раз
	WriteBatch(ctx context.Context, records []domain.AuditRecord) error
	Query(ctx context.Context, filter domain.AuditFilter) (*domain.AuditPage, error)
	Stats(ctx context.Context, filter domain.AuditFilter) (*domain.AuditStats, error)
}

// BufferGauge — необязательная метрика заполненности буфера.
type BufferGauge interface {
	Set(float64)
}

type Ledger struct {
	ch     chan domain.AuditRecord // Буфер для асинхронности
	repo   Repository
	logger *zap.Logger
	gauge  BufferGauge
	wg     sync.WaitGroup

	flushInterval time.Duration

	// Атомарный флаг (0 - открыт, 1 - закрыт): защита от Append после остановки
	isClosed int32
}

func NewLedger(repo Repository, logger *zap.Logger, bufferSize int, flushInterval time.Duration, gauge BufferGauge) *Ledger {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if flushInterval <= 0 {
		flushInterval = 500 * time.Millisecond
	}
	return &Ledger{
		ch:            make(chan domain.AuditRecord, bufferSize),
		repo:          repo,
		logger:        logger.Named("ledger"),
		gauge:         gauge,
		flushInterval: flushInterval,
	}
}

func (l *Ledger) Start() {
	l.wg.Add(1)
	go l.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (l *Ledger) Stop() {
	// 1. Сначала ставим флаг
	atomic.StoreInt32(&l.isClosed, 1)

	// 2. Даем крошечную паузу, чтобы текущие Append успели проскочить
	time.Sleep(10 * time.Millisecond)

	// 3. Закрываем канал (Drain Pattern): воркер вычитает остатки и сделает финальный flush
	l.logger.Info("stopping ledger: closing channel and flushing buffer...")
	close(l.ch)
	l.wg.Wait()
	l.logger.Info("ledger stopped gracefully")
}

// Append ставит запись в очередь на сохранение и возвращает ее ID.
// Никогда не возвращает ошибку вызывающему: сбой персистентности журнала
// изолирован от основной операции.
func (l *Ledger) Append(rec domain.AuditRecord) string {
	if rec.ID == "" {
		rec.ID = NewRecordID(rec.Timestamp)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	// Атомарно проверяем, не остановлен ли журнал
	if atomic.LoadInt32(&l.isClosed) == 1 {
		l.logger.Warn("audit record dropped: ledger is stopping", zap.String("id", rec.ID))
		return rec.ID
	}

	// Стратегия Load Shedding: при переполнении буфера запись уходит
	// хотя бы в обычный лог, чтобы не потерять след решения
	select {
	case l.ch <- rec:
		if l.gauge != nil {
			l.gauge.Set(float64(len(l.ch)))
		}
	default:
		l.logger.Error("audit_buffer_overflow",
			zap.String("id", rec.ID),
			zap.String("account_id", rec.AccountID),
			zap.String("status", string(rec.Status)),
		)
	}
	return rec.ID
}

// Query возвращает страницу журнала по фильтру.
func (l *Ledger) Query(ctx context.Context, filter domain.AuditFilter) (*domain.AuditPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return l.repo.Query(ctx, filter)
}

// Stats считает агрегаты на чтении по полному или отфильтрованному набору.
func (l *Ledger) Stats(ctx context.Context, filter domain.AuditFilter) (*domain.AuditStats, error) {
	return l.repo.Stats(ctx, filter)
}

func (l *Ledger) worker() {
	defer l.wg.Done()

	batch := make([]domain.AuditRecord, 0, flushBatchSize)
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст к моменту финального flush может быть закрыт
			if err := l.repo.WriteBatch(context.Background(), batch); err != nil {
				l.logger.Error("audit flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case rec, ok := <-l.ch:
			if !ok {
				// Канал закрыт в Stop() — самодостаточный сигнал завершения:
				// воркер уже вычитал всё из очереди, остался финальный flush
				flush()
				l.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, rec)
			if len(batch) >= flushBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
			if l.gauge != nil {
				l.gauge.Set(float64(len(l.ch)))
			}
		}
	}
}

// NewRecordID выдает ULID: лексикографическая сортировка совпадает с
// хронологией, что удобно для append-only журнала.
func NewRecordID(ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return ulid.MustNew(ulid.Timestamp(ts), ulid.DefaultEntropy()).String()
}
