package guardian

import (
	"fmt"
	"time"

	"github.com/xela07ax/custody-guard/internal/domain"
)

// Guardrails — простой локальный фильтр, самый дешевый слой перед
// композитным движком. Stateless: из стора читает только время
// последнего исполнения. Безопасно звать сколько угодно раз (превью,
// повторная проверка перед исполнением) — состояние не трогается;
// кулдаун двигает вызывающий через Store.RecordExecution после
// подтвержденного исполнения.
type Guardrails struct {
	state *Store
}

func NewGuardrails(state *Store) *Guardrails {
	return &Guardrails{state: state}
}

// Evaluate прогоняет все четыре проверки без short-circuit:
// вызывающий получает полный список проблем за один заход.
func (g *Guardrails) Evaluate(intent domain.ActionIntent, cfg domain.GuardrailsConfig) domain.GuardrailResult {
	var issues []string

	if root := intent.RootSymbol(); !cfg.AllowsMarket(root) {
		issues = append(issues, fmt.Sprintf("market %q is not allowed", root))
	}

	if cfg.MaxPerTxUsd > 0 && intent.NotionalUsd > cfg.MaxPerTxUsd {
		issues = append(issues, fmt.Sprintf(
			"notional %.2f USD exceeds per-tx limit %.2f USD",
			intent.NotionalUsd, cfg.MaxPerTxUsd))
	}

	if cfg.CooldownSeconds > 0 {
		cooldown := time.Duration(cfg.CooldownSeconds) * time.Second
		// Пропускаем проверку, если исполнений еще не было
		if rest := g.state.CooldownRemaining(cooldown); rest > 0 {
			issues = append(issues, fmt.Sprintf(
				"cooldown: %s remaining of %s", rest.Round(time.Second), cooldown))
		}
	}

	if cfg.MaxSlippageBps > 0 && intent.MaxSlippageBps > cfg.MaxSlippageBps {
		issues = append(issues, fmt.Sprintf(
			"slippage tolerance %d bps exceeds limit %d bps",
			intent.MaxSlippageBps, cfg.MaxSlippageBps))
	}

	return domain.GuardrailResult{Passed: len(issues) == 0, Issues: issues}
}
