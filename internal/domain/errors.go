package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Таксономия ошибок движка. Каждый тип несет структурированные детали,
// чтобы граница HTTP могла отдать не просто строку, а объяснение.

// ValidationError — некорректный вход. Отбрасывается до запуска guardian-ов.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

func (e *ValidationError) Add(field, msg string) {
	e.Fields[field] = msg
}

// OrNil возвращает nil, если ни одно поле не провалило проверку.
// Позволяет писать `return v.OrNil()` без ручного подсчета.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for f, m := range e.Fields {
		parts = append(parts, f+": "+m)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Стадии, на которых может быть заблокировано или сорвано действие.
// Стадия нужна вызывающему, чтобы отличить "не пустила политика"
// от "исполнение сорвалось после прохождения политики".
const (
	StageGuardrail = "guardrail" // локальный простой фильтр
	StageGuardian  = "guardian"  // композитный Risk Engine
	StageCustody   = "custody"   // отказ политики на стороне кастоди
	StageExecution = "execution" // сбой/таймаут самого исполнения
	StageMarket    = "marketdata"
)

// PolicyDeniedError — ожидаемый отказ. Никогда не логируется как сбой системы.
type PolicyDeniedError struct {
	Stage   string
	Issues  []string         // заполнено для StageGuardrail
	Denials []GuardianDenial // заполнено для StageGuardian
	Breach  *PolicyBreach    // заполнено для StageCustody
}

func (e *PolicyDeniedError) Error() string {
	switch e.Stage {
	case StageGuardrail:
		return "guardrail denied: " + strings.Join(e.Issues, "; ")
	case StageCustody:
		if e.Breach != nil {
			return fmt.Sprintf("custody policy breach [%s]: %s", e.Breach.RuleID, e.Breach.Reason)
		}
		return "custody policy breach"
	default:
		names := make([]string, 0, len(e.Denials))
		for _, d := range e.Denials {
			names = append(names, d.Guardian)
		}
		return "policy denied by: " + strings.Join(names, ", ")
	}
}

// PolicyBreach — отказ политики на стороне кастоди-бэкенда.
// Отдельная сущность: проверяется ПОСЛЕ локального движка.
type PolicyBreach struct {
	RuleID string `json:"rule_id"`
	Reason string `json:"reason"`
}

// NotFoundError — неизвестный аккаунт/организация/заявка.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// UpstreamFaultError — сбой или таймаут внешнего вызова (кастоди, маркет-дата).
// Stage обязателен: "blocked by policy" и "execution failed" — разные исходы.
type UpstreamFaultError struct {
	Stage string
	Err   error
}

func (e *UpstreamFaultError) Error() string {
	return fmt.Sprintf("upstream fault at stage %s: %v", e.Stage, e.Err)
}

func (e *UpstreamFaultError) Unwrap() error { return e.Err }

// ConfigurationError — неизвестный пресет или имя guardian-а.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Msg
}

// Хелперы классификации для границы HTTP.

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func AsPolicyDenied(err error) (*PolicyDeniedError, bool) {
	var p *PolicyDeniedError
	ok := errors.As(err, &p)
	return p, ok
}

func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}

func AsUpstreamFault(err error) (*UpstreamFaultError, bool) {
	var u *UpstreamFaultError
	ok := errors.As(err, &u)
	return u, ok
}

func IsConfiguration(err error) bool {
	var c *ConfigurationError
	return errors.As(err, &c)
}
