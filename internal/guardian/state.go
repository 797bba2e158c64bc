package guardian

/*
Файл state.go реализует Guardian State Store — единственный компонент
с мутабельным рантайм-состоянием движка (дневные счетчики, кулдаун,
kill-switch). Все мутации сериализованы одним мьютексом: пара
"прочитал остаток бюджета — закоммитил сделку" атомарна, два запроса
у дневного лимита не пройдут по одному и тому же устаревшему остатку.

Наружу торчат только намеренные операции; сырых сеттеров полей нет —
инварианты (ролловер дневного ключа, защелка halt) нельзя обойти.
*/

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const dayKeyLayout = "2006-01-02"

// StateSnapshot — согласованный срез состояния для read-only оценки.
type StateSnapshot struct {
	DailySpendUsd     float64   `json:"daily_spend_usd"`
	SpendDayKey       string    `json:"spend_day_key"`
	TradeCountToday   int       `json:"trade_count_today"`
	LastExecutionAt   time.Time `json:"last_execution_at"` // zero == исполнений еще не было
	Halted            bool      `json:"halted"`
	HaltReason        string    `json:"halt_reason,omitempty"`
	LastHealthCheckAt time.Time `json:"last_health_check_at"`
	Now               time.Time `json:"-"`
}

// Store живет весь процесс: создается один раз со счетчиками в нуле,
// в исходное состояние возвращается только явным ResetState.
type Store struct {
	mu     sync.Mutex
	logger *zap.Logger
	clock  func() time.Time

	dailySpendUsd     float64
	spendDayKey       string
	tradeCountToday   int
	lastExecutionAt   time.Time
	halted            bool
	haltReason        string
	lastHealthCheckAt time.Time
}

func NewStore(logger *zap.Logger) *Store {
	return NewStoreWithClock(logger, time.Now)
}

// NewStoreWithClock позволяет тестам управлять временем (ролловер суток).
func NewStoreWithClock(logger *zap.Logger, clock func() time.Time) *Store {
	now := clock().UTC()
	return &Store{
		logger:      logger.Named("state"),
		clock:       clock,
		spendDayKey: now.Format(dayKeyLayout),
	}
}

// rolloverLocked обнуляет дневные счетчики при пересечении границы
// суток UTC. Вызывается под мьютексом перед любым чтением/записью
// дневных полей: сброс происходит ровно один раз на границу,
// а не на каждом чтении.
func (s *Store) rolloverLocked(now time.Time) {
	key := now.UTC().Format(dayKeyLayout)
	if key == s.spendDayKey {
		return
	}
	s.logger.Info("daily counters rolled over",
		zap.String("prev_day", s.spendDayKey),
		zap.String("new_day", key),
		zap.Float64("prev_spend_usd", s.dailySpendUsd),
		zap.Int("prev_trades", s.tradeCountToday),
	)
	s.spendDayKey = key
	s.dailySpendUsd = 0
	s.tradeCountToday = 0
}

// Snapshot возвращает согласованный срез для read-only оценки.
// Оценка по снапшоту может быть чуть устаревшей; гейтинг реального
// исполнения идет через Engine.CheckAndReserve под этим же мьютексом.
func (s *Store) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock().UTC()
	s.rolloverLocked(now)
	return s.snapshotLocked(now)
}

func (s *Store) snapshotLocked(now time.Time) StateSnapshot {
	return StateSnapshot{
		DailySpendUsd:     s.dailySpendUsd,
		SpendDayKey:       s.spendDayKey,
		TradeCountToday:   s.tradeCountToday,
		LastExecutionAt:   s.lastExecutionAt,
		Halted:            s.halted,
		HaltReason:        s.haltReason,
		LastHealthCheckAt: s.lastHealthCheckAt,
		Now:               now,
	}
}

// CooldownRemaining — сколько осталось ждать до следующего исполнения.
func (s *Store) CooldownRemaining(cooldown time.Duration) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastExecutionAt.IsZero() {
		return 0
	}
	rest := cooldown - s.clock().UTC().Sub(s.lastExecutionAt)
	if rest < 0 {
		return 0
	}
	return rest
}

// TradesRemaining — сколько сделок осталось в дневном лимите.
func (s *Store) TradesRemaining(maxPerDay int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolloverLocked(s.clock().UTC())
	rest := maxPerDay - s.tradeCountToday
	if rest < 0 {
		return 0
	}
	return rest
}

// DailySpendRemaining — остаток дневного бюджета в USD.
func (s *Store) DailySpendRemaining(maxDailyUsd float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolloverLocked(s.clock().UTC())
	rest := maxDailyUsd - s.dailySpendUsd
	if rest < 0 {
		return 0
	}
	return rest
}

// RecordExecution продвигает часы кулдауна. Вызывается только после
// подтвержденного исполнения на стороне кастоди.
func (s *Store) RecordExecution() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastExecutionAt = s.clock().UTC()
}

// RecordTrade фиксирует подтвержденную сделку в дневных счетчиках.
func (s *Store) RecordTrade(market string, usd float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock().UTC()
	s.rolloverLocked(now)
	s.dailySpendUsd += usd
	s.tradeCountToday++
	s.lastExecutionAt = now
	s.logger.Debug("trade recorded",
		zap.String("market", market),
		zap.Float64("usd", usd),
		zap.Float64("daily_spend_usd", s.dailySpendUsd),
		zap.Int("trade_count", s.tradeCountToday),
	)
}

// TriggerHalt взводит защелку kill-switch. Повторный вызов не
// перетирает первоначальную причину.
func (s *Store) TriggerHalt(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.halted {
		return
	}
	s.halted = true
	s.haltReason = reason
	s.logger.Warn("trading halted", zap.String("reason", reason))
}

// ResumeTrading снимает защелку. Единственный путь из halted-состояния.
func (s *Store) ResumeTrading() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.halted {
		return
	}
	s.halted = false
	s.haltReason = ""
	s.logger.Info("trading resumed")
}

// Halted возвращает состояние защелки и причину.
func (s *Store) Halted() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted, s.haltReason
}

// MarkHealthCheck фиксирует время последней проверки живости.
func (s *Store) MarkHealthCheck() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHealthCheckAt = s.clock().UTC()
}

// ResetState возвращает стор в исходное состояние: счетчики в ноль,
// защелка снята. Только для тестов и операторского тулинга — до
// недоверенного вызывающего этот метод доходить не должен.
func (s *Store) ResetState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dailySpendUsd = 0
	s.spendDayKey = s.clock().UTC().Format(dayKeyLayout)
	s.tradeCountToday = 0
	s.lastExecutionAt = time.Time{}
	s.halted = false
	s.haltReason = ""
	s.logger.Warn("guardian state reset")
}
