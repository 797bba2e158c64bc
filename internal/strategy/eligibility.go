package strategy

/*
Пакет strategy отвечает на вопрос "можно ли этой стратегии торговать
прямо сейчас". Проверка трехслойная:
 1. имя стратегии резолвится в пресет конфигурации guardian-ов;
 2. синтетический интент на запрошенный размер прогоняется через
    общий Risk Engine (лимиты, защелка, окно — всё как у живых сделок);
 3. поверх — числовые пороги самой стратегии против живых рыночных
    данных.

Любое несработавшее условие дает отдельный denial с конкретным
порогом, чтобы вызывающий видел, ЧТО именно заблокировало стратегию.
*/

import (
	"context"
	"fmt"
	"math"

	"github.com/xela07ax/custody-guard/internal/domain"
	"github.com/xela07ax/custody-guard/internal/guardian"
	"github.com/xela07ax/custody-guard/internal/marketdata"
	"go.uber.org/zap"
)

// Имена стратегий совпадают с именами их пресетов.
const (
	StrategyBasisArb     = domain.PresetBasisArb
	StrategyHedging      = domain.PresetHedging
	StrategyDrawdownStop = domain.PresetDrawdownStop
)

// Thresholds — числовые пороги стратегии.
type Thresholds struct {
	MinFundingRate float64 `json:"min_funding_rate,omitempty"`
	MaxBasisSpread float64 `json:"max_basis_spread,omitempty"`
	MinDeltaDrift  float64 `json:"min_delta_drift,omitempty"`
	MaxLossUsd     float64 `json:"max_loss_usd,omitempty"`
}

// Пороговые значения по умолчанию для известных стратегий.
var defaultThresholds = map[string]Thresholds{
	StrategyBasisArb:     {MinFundingRate: 0.0001, MaxBasisSpread: 0.005},
	StrategyHedging:      {MinDeltaDrift: 0.05},
	StrategyDrawdownStop: {MaxLossUsd: 2_500},
}

// Result — вердикт проверки пригодности стратегии.
type Result struct {
	Eligible bool                    `json:"eligible"`
	Message  string                  `json:"message"`
	Denials  []domain.GuardianDenial `json:"denials,omitempty"`
}

type Checker struct {
	engine *guardian.Engine
	feed   marketdata.Feed
	logger *zap.Logger
}

func NewChecker(engine *guardian.Engine, feed marketdata.Feed, logger *zap.Logger) *Checker {
	return &Checker{
		engine: engine,
		feed:   feed,
		logger: logger.Named("strategy"),
	}
}

// CheckEligibility выполняет полную проверку стратегии.
// Неизвестное имя стратегии — ConfigurationError, не отказ.
func (c *Checker) CheckEligibility(ctx context.Context, name, symbol string, requestedSizeUsd float64) (*Result, error) {
	cfg, err := domain.ResolvePreset(name)
	if err != nil {
		return nil, err
	}
	thresholds, ok := defaultThresholds[name]
	if !ok {
		return nil, &domain.ConfigurationError{Msg: "strategy has no threshold profile: " + name}
	}

	// Синтетический интент на запрошенный размер: стратегия проходит
	// тот же Risk Engine, что и реальные сделки
	intent := domain.ActionIntent{
		Type:            domain.ActionSpotMarketOrder,
		Market:          symbol,
		Side:            domain.SideBuy,
		NotionalUsd:     requestedSizeUsd,
		Leverage:        1,
		ValidForSeconds: 60,
	}
	check := c.engine.CheckAll(intent, cfg)
	denials := append([]domain.GuardianDenial{}, check.Denials...)

	// Рыночные данные: сбой фида — отказ, а не тихий пропуск
	quote, qerr := c.feed.GetQuote(ctx, symbol)
	if qerr != nil {
		c.logger.Warn("market data unavailable", zap.String("symbol", symbol), zap.Error(qerr))
		denials = append(denials, domain.Deny(domain.GuardianMarketData,
			"Market data", "market data unavailable for %s", symbol))
	} else {
		if name == StrategyDrawdownStop {
			// Живой PnL кормит защелку движка: пробой max loss
			// останавливает торговлю целиком, не только эту проверку
			c.engine.RecordDrawdown(quote.PnlUsd, cfg.Loss)
		}
		denials = append(denials, evaluateThresholds(name, thresholds, quote, cfg)...)
	}

	res := &Result{
		Eligible: len(denials) == 0,
		Denials:  denials,
	}
	if res.Eligible {
		res.Message = fmt.Sprintf("strategy %s is eligible for %.2f USD", name, requestedSizeUsd)
	} else {
		res.Message = fmt.Sprintf("strategy %s is blocked by %d condition(s)", name, len(denials))
	}
	return res, nil
}

// evaluateThresholds — стратегические пороги против живых данных.
func evaluateThresholds(name string, t Thresholds, q *marketdata.Quote, cfg domain.GuardiansConfig) []domain.GuardianDenial {
	var out []domain.GuardianDenial

	switch name {
	case StrategyBasisArb:
		if q.FundingRate < t.MinFundingRate {
			out = append(out, domain.Deny(domain.GuardianStrategy, "Basis arbitrage",
				"funding rate %.6f below minimum %.6f", q.FundingRate, t.MinFundingRate).
				WithValues(t.MinFundingRate, q.FundingRate))
		}
		if q.BasisSpread > t.MaxBasisSpread {
			out = append(out, domain.Deny(domain.GuardianStrategy, "Basis arbitrage",
				"basis spread %.6f above maximum %.6f", q.BasisSpread, t.MaxBasisSpread).
				WithValues(t.MaxBasisSpread, q.BasisSpread))
		}

	case StrategyHedging:
		if math.Abs(q.Delta) < t.MinDeltaDrift {
			out = append(out, domain.Deny(domain.GuardianStrategy, "Hedging",
				"delta drift %.4f below minimum %.4f — nothing to hedge",
				math.Abs(q.Delta), t.MinDeltaDrift).
				WithValues(t.MinDeltaDrift, math.Abs(q.Delta)))
		}

	case StrategyDrawdownStop:
		if cfg.Loss.AccountStatus != domain.AccountActive {
			out = append(out, domain.Deny(domain.GuardianStrategy, "Drawdown stop",
				"account status is %q, expected active", cfg.Loss.AccountStatus))
		}
		if t.MaxLossUsd > 0 && q.PnlUsd <= -t.MaxLossUsd {
			out = append(out, domain.Deny(domain.GuardianStrategy, "Drawdown stop",
				"pnl %.2f USD breaches max loss %.2f USD", q.PnlUsd, t.MaxLossUsd).
				WithValues(t.MaxLossUsd, q.PnlUsd))
		}
	}

	return out
}
