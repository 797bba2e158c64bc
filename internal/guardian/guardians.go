package guardian

import (
	"time"

	"github.com/xela07ax/custody-guard/internal/domain"
)

// Отдельные guardian-ы. Каждый — чистая функция над интентом,
// своей секцией конфига и снапшотом состояния.

// checkHalt — защелка kill-switch. Проверяется всегда, вне зависимости
// от конфигурации: выключенный Loss-guardian не должен открывать
// остановленную торговлю. Снимается только явным resume оператора.
func checkHalt(st StateSnapshot) []domain.GuardianDenial {
	if !st.Halted {
		return nil
	}
	reason := st.HaltReason
	if reason == "" {
		reason = "kill switch engaged"
	}
	return []domain.GuardianDenial{
		domain.Deny(domain.GuardianLoss, "Loss guardian", "trading halted: %s", reason),
	}
}

func checkLoss(cfg domain.LossConfig, st StateSnapshot) []domain.GuardianDenial {
	if cfg.AccountStatus == domain.AccountPaused {
		return []domain.GuardianDenial{
			domain.Deny(domain.GuardianLoss, "Loss guardian", "account is paused"),
		}
	}
	return nil
}

func checkSpend(intent domain.ActionIntent, cfg domain.SpendConfig, st StateSnapshot) []domain.GuardianDenial {
	var out []domain.GuardianDenial

	if cfg.MaxPerTradeUsd > 0 && intent.NotionalUsd > cfg.MaxPerTradeUsd {
		out = append(out, domain.Deny(domain.GuardianSpend, "Spend guardian",
			"notional %.2f USD exceeds per-trade limit %.2f USD",
			intent.NotionalUsd, cfg.MaxPerTradeUsd).
			WithValues(cfg.MaxPerTradeUsd, intent.NotionalUsd))
	}

	if cfg.MaxDailyUsd > 0 {
		projected := st.DailySpendUsd + intent.NotionalUsd
		if projected > cfg.MaxDailyUsd {
			out = append(out, domain.Deny(domain.GuardianSpend, "Spend guardian",
				"daily spend %.2f + %.2f USD exceeds daily limit %.2f USD",
				st.DailySpendUsd, intent.NotionalUsd, cfg.MaxDailyUsd).
				WithValues(cfg.MaxDailyUsd, projected))
		} else if projected >= cfg.MaxDailyUsd*spendWarnFraction {
			// Мягкий порог: бюджет на исходе, но сделка еще проходит
			out = append(out, domain.Warn(domain.GuardianSpend, "Spend guardian",
				"daily spend %.2f of %.2f USD after this trade",
				projected, cfg.MaxDailyUsd).
				WithValues(cfg.MaxDailyUsd, projected))
		}
	}

	return out
}

func checkVenue(intent domain.ActionIntent, cfg domain.VenueConfig) []domain.GuardianDenial {
	target := intent.VenueTarget()
	if cfg.Allows(target) {
		return nil
	}
	return []domain.GuardianDenial{
		domain.Deny(domain.GuardianVenue, "Venue guardian",
			"target %q is not in the allowed list", target),
	}
}

func checkRate(cfg domain.RateConfig, st StateSnapshot) []domain.GuardianDenial {
	var out []domain.GuardianDenial

	if cfg.MaxPerDay > 0 {
		if st.TradeCountToday >= cfg.MaxPerDay {
			out = append(out, domain.Deny(domain.GuardianRate, "Rate guardian",
				"trade count %d reached daily limit %d",
				st.TradeCountToday, cfg.MaxPerDay).
				WithValues(float64(cfg.MaxPerDay), float64(st.TradeCountToday)))
		} else if cfg.MaxPerDay-st.TradeCountToday == 1 {
			out = append(out, domain.Warn(domain.GuardianRate, "Rate guardian",
				"last trade of the day (%d of %d)", st.TradeCountToday+1, cfg.MaxPerDay))
		}
	}

	if cfg.CooldownSeconds > 0 && !st.LastExecutionAt.IsZero() {
		elapsed := st.Now.Sub(st.LastExecutionAt)
		if elapsed < cfg.Cooldown() {
			out = append(out, domain.Deny(domain.GuardianRate, "Rate guardian",
				"cooldown: %s remaining of %s",
				(cfg.Cooldown() - elapsed).Round(time.Second), cfg.Cooldown()))
		}
	}

	return out
}

func checkTimeWindow(cfg domain.TimeWindowConfig, st StateSnapshot) []domain.GuardianDenial {
	hour := st.Now.UTC().Hour()
	if cfg.Contains(hour) {
		return nil
	}
	return []domain.GuardianDenial{
		domain.Deny(domain.GuardianTimeWindow, "Time window guardian",
			"hour %02d UTC is outside trading window [%02d:00, %02d:00)",
			hour, cfg.StartHour, cfg.EndHour),
	}
}

func checkExposure(intent domain.ActionIntent, cfg domain.ExposureConfig) []domain.GuardianDenial {
	if cfg.MaxExposureUsd <= 0 {
		return nil
	}
	exposure := intent.NotionalUsd * intent.Leverage
	if exposure <= cfg.MaxExposureUsd {
		return nil
	}
	return []domain.GuardianDenial{
		domain.Deny(domain.GuardianExposure, "Exposure guardian",
			"position exposure %.2f USD exceeds ceiling %.2f USD",
			exposure, cfg.MaxExposureUsd).
			WithValues(cfg.MaxExposureUsd, exposure),
	}
}

func checkLeverage(intent domain.ActionIntent, cfg domain.LeverageConfig) []domain.GuardianDenial {
	if cfg.MaxLeverage <= 0 || intent.Leverage <= cfg.MaxLeverage {
		return nil
	}
	return []domain.GuardianDenial{
		domain.Deny(domain.GuardianLeverage, "Leverage guardian",
			"requested leverage %.1fx exceeds ceiling %.1fx",
			intent.Leverage, cfg.MaxLeverage).
			WithValues(cfg.MaxLeverage, intent.Leverage),
	}
}
