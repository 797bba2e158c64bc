package guardian

/*
Файл engine.go реализует композитный Risk Engine. Каждый guardian —
независимая проверка со своим флагом enabled; движок прогоняет ВСЕ
включенные проверки без short-circuit и собирает все отказы разом:
вызывающий никогда не должен предполагать, что сработать может только
один guardian.

Два режима:
- CheckAll — read-only оценка по снапшоту (preview, очередь заявок);
- CheckAndReserve — гейтинг реального исполнения: оценка и
  резервирование бюджета происходят под одним мьютексом стора,
  что закрывает гонку check-then-act у дневного лимита.
*/

import (
	"fmt"

	"github.com/xela07ax/custody-guard/internal/domain"
	"go.uber.org/zap"
)

// Доля дневного бюджета, после которой Spend начинает предупреждать.
const spendWarnFraction = 0.8

type Engine struct {
	state   *Store
	metrics *Metrics
	logger  *zap.Logger
}

func NewEngine(state *Store, metrics *Metrics, logger *zap.Logger) *Engine {
	return &Engine{
		state:   state,
		metrics: metrics,
		logger:  logger.Named("engine"),
	}
}

// State открывает доступ к стору для операторских эндпоинтов
// (остатки лимитов, halt/resume).
func (e *Engine) State() *Store { return e.state }

// CheckAll — read-only оценка интента по слегка устаревшему снапшоту.
// Состояние не мутирует, безопасно вызывать сколько угодно раз.
func (e *Engine) CheckAll(intent domain.ActionIntent, cfg domain.GuardiansConfig) domain.CheckResult {
	res := evaluateGuardians(intent, cfg, e.state.Snapshot())
	e.observe(intent, res)
	return res
}

// Reservation — зарезервированный под сделку кусок дневного бюджета.
// Commit фиксирует исполнение (двигает кулдаун), Release возвращает
// бюджет при отказе кастоди. Оба вызова идемпотентны.
type Reservation struct {
	store    *Store
	market   string
	usd      float64
	day      string // дневной ключ на момент резервирования
	resolved bool
}

// Commit подтверждает сделку: резерв остается потраченным,
// часы кулдауна продвигаются.
func (r *Reservation) Commit() {
	if r == nil || r.resolved {
		return
	}
	r.resolved = true
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.lastExecutionAt = r.store.clock().UTC()
	r.store.logger.Debug("reservation committed",
		zap.String("market", r.market), zap.Float64("usd", r.usd))
}

// Release возвращает бюджет: кастоди определенно отказал, денег не двигалось.
func (r *Reservation) Release() {
	if r == nil || r.resolved {
		return
	}
	r.resolved = true
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.rolloverLocked(r.store.clock().UTC())
	// Резерв из прошлых суток не возвращаем: счетчики уже обнулились,
	// и вычет стер бы учет чужой сделки нового дня
	if r.day != r.store.spendDayKey {
		r.store.logger.Debug("stale reservation dropped",
			zap.String("market", r.market),
			zap.Float64("usd", r.usd),
			zap.String("reserved_day", r.day))
		return
	}
	r.store.dailySpendUsd -= r.usd
	if r.store.dailySpendUsd < 0 {
		r.store.dailySpendUsd = 0
	}
	if r.store.tradeCountToday > 0 {
		r.store.tradeCountToday--
	}
	r.store.logger.Debug("reservation released",
		zap.String("market", r.market), zap.Float64("usd", r.usd))
}

// CheckAndReserve оценивает интент и, при проходе, сразу резервирует
// бюджет (спенд + счетчик сделок) под тем же мьютексом. Мьютекс НЕ
// удерживается на время сетевого вызова кастоди: наружу отдается
// Reservation, который вызывающий коммитит или отпускает по исходу.
func (e *Engine) CheckAndReserve(intent domain.ActionIntent, cfg domain.GuardiansConfig) (domain.CheckResult, *Reservation) {
	s := e.state
	s.mu.Lock()
	now := s.clock().UTC()
	s.rolloverLocked(now)
	res := evaluateGuardians(intent, cfg, s.snapshotLocked(now))
	var reservation *Reservation
	if res.Passed {
		s.dailySpendUsd += intent.NotionalUsd
		s.tradeCountToday++
		reservation = &Reservation{store: s, market: intent.Market, usd: intent.NotionalUsd, day: s.spendDayKey}
	}
	s.mu.Unlock()

	e.observe(intent, res)
	return res, reservation
}

// RecordDrawdown скармливает движку текущий PnL. Пробой -maxDrawdown
// взводит защелку; обратно она снимается только явным ResumeTrading.
func (e *Engine) RecordDrawdown(pnlUsd float64, cfg domain.LossConfig) {
	if !cfg.Enabled || cfg.MaxDrawdownUsd <= 0 {
		return
	}
	if pnlUsd <= -cfg.MaxDrawdownUsd {
		e.state.TriggerHalt(fmt.Sprintf(
			"drawdown breach: pnl %.2f USD <= -%.2f USD", pnlUsd, cfg.MaxDrawdownUsd))
		if e.metrics != nil {
			e.metrics.HaltState.Set(1)
		}
	}
}

func (e *Engine) observe(intent domain.ActionIntent, res domain.CheckResult) {
	if e.metrics == nil {
		return
	}
	outcome := "pass"
	if !res.Passed {
		outcome = "deny"
	}
	e.metrics.DecisionsTotal.WithLabelValues(string(intent.Type), outcome).Inc()
	for _, d := range res.Denials {
		e.metrics.DenialsTotal.WithLabelValues(d.Guardian).Inc()
	}
}

// evaluateGuardians — чистая функция: интент + конфиг + снапшот -> вердикт.
// Порядок фиксирован только ради стабильного вывода; между guardian-ами
// зависимостей нет.
func evaluateGuardians(intent domain.ActionIntent, cfg domain.GuardiansConfig, st StateSnapshot) domain.CheckResult {
	var denials, warnings []domain.GuardianDenial

	collect := func(ds []domain.GuardianDenial) {
		for _, d := range ds {
			if d.Severity == domain.SeverityBlock {
				denials = append(denials, d)
			} else {
				warnings = append(warnings, d)
			}
		}
	}

	collect(checkHalt(st))
	if cfg.Loss.Enabled {
		collect(checkLoss(cfg.Loss, st))
	}
	if cfg.Spend.Enabled {
		collect(checkSpend(intent, cfg.Spend, st))
	}
	if cfg.Venue.Enabled {
		collect(checkVenue(intent, cfg.Venue))
	}
	if cfg.Rate.Enabled {
		collect(checkRate(cfg.Rate, st))
	}
	if cfg.TimeWindow.Enabled {
		collect(checkTimeWindow(cfg.TimeWindow, st))
	}
	if cfg.Exposure.Enabled {
		collect(checkExposure(intent, cfg.Exposure))
	}
	if cfg.Leverage.Enabled {
		collect(checkLeverage(intent, cfg.Leverage))
	}

	return domain.CheckResult{
		Passed:   len(denials) == 0,
		Denials:  denials,
		Warnings: warnings,
	}
}
