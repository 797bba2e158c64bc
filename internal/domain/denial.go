package domain

import "fmt"

// Severity — тяжесть срабатывания guardian-а.
type Severity string

const (
	SeverityWarn  Severity = "warn"  // Мягкий порог: не блокирует действие
	SeverityBlock Severity = "block" // Жесткий порог: действие запрещено
)

// Имена guardian-ов. Используются в denial-ах, метриках и агрегатах аудита,
// поэтому закреплены константами, а не свободными строками.
const (
	GuardianSpend      = "spend"
	GuardianVenue      = "venue"
	GuardianRate       = "rate"
	GuardianTimeWindow = "timewindow"
	GuardianLoss       = "loss"
	GuardianExposure   = "exposure"
	GuardianLeverage   = "leverage"
	GuardianStrategy   = "strategy"
	GuardianMarketData = "marketdata"
)

// GuardianDenial — структурированная причина отказа.
// Где применимо, Limit и Attempted позволяют UI показать
// "лимит vs запрошенное", а не только факт блокировки.
type GuardianDenial struct {
	Guardian string   `json:"guardian"`
	Name     string   `json:"name"`
	Reason   string   `json:"reason"`
	Severity Severity `json:"severity"`

	Limit     float64 `json:"limit,omitempty"`
	Attempted float64 `json:"attempted,omitempty"`
}

// Deny — конструктор блокирующего отказа.
func Deny(guardian, name, format string, args ...any) GuardianDenial {
	return GuardianDenial{
		Guardian: guardian,
		Name:     name,
		Reason:   fmt.Sprintf(format, args...),
		Severity: SeverityBlock,
	}
}

// Warn — конструктор неблокирующего предупреждения.
func Warn(guardian, name, format string, args ...any) GuardianDenial {
	return GuardianDenial{
		Guardian: guardian,
		Name:     name,
		Reason:   fmt.Sprintf(format, args...),
		Severity: SeverityWarn,
	}
}

// WithValues добавляет числовой контекст (лимит и запрошенное значение).
func (d GuardianDenial) WithValues(limit, attempted float64) GuardianDenial {
	d.Limit = limit
	d.Attempted = attempted
	return d
}

// CheckResult — агрегированный вердикт Risk Engine.
// Инвариант: Passed == (len(Denials) == 0). Warnings на Passed не влияют.
type CheckResult struct {
	Passed   bool             `json:"passed"`
	Denials  []GuardianDenial `json:"denials"`
	Warnings []GuardianDenial `json:"warnings"`
}

// GuardrailResult — вердикт простого правила-фильтра (без guardian-структуры).
type GuardrailResult struct {
	Passed bool     `json:"passed"`
	Issues []string `json:"issues"`
}
