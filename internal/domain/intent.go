package domain

import "strings"

// ActionType — тип исходящего финансового действия.
type ActionType string

const (
	ActionSpotMarketOrder ActionType = "spot-market-order"
	ActionSpotLimitOrder  ActionType = "spot-limit-order"
	ActionTransfer        ActionType = "transfer"
	ActionVaultOp         ActionType = "vault-op"
)

// Side — направление сделки.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ActionIntent — нормализованное описание действия до исполнения.
// Объект неизменяемый: создается один раз вызывающей стороной и
// передается по значению во все проверки.
type ActionIntent struct {
	// Контекст аккаунта: чья конфигурация guardian-ов применяется.
	// Пустые значения означают конфигурацию по умолчанию.
	OrgID     string `json:"org_id,omitempty"`
	AccountID string `json:"account_id,omitempty"`

	Type           ActionType `json:"type"`
	Market         string     `json:"market"` // "ETH/USD", "BTC-PERP"
	Side           Side       `json:"side"`
	NotionalUsd    float64    `json:"notional_usd"`
	MaxSlippageBps int        `json:"max_slippage_bps"`
	Leverage       float64    `json:"leverage"` // >= 1, для спота всегда 1

	// Target — адрес контракта (transfer/vault-op) или символ рынка (ордера).
	// Именно его сверяет Venue-guardian со списком разрешенных.
	Target string `json:"target"`

	ValidForSeconds int      `json:"valid_for_seconds"`
	Rationale       []string `json:"rationale,omitempty"`
	RiskNotes       []string `json:"risk_notes,omitempty"`
}

// RootSymbol возвращает базовый символ рынка до разделителя пары:
// "ETH/USD" -> "ETH", "BTC-PERP" -> "BTC", "SOL" -> "SOL".
func (i ActionIntent) RootSymbol() string {
	root := strings.FieldsFunc(i.Market, func(r rune) bool {
		return r == '/' || r == '-' || r == '_'
	})
	if len(root) == 0 {
		return ""
	}
	return root[0]
}

// VenueTarget возвращает то, что проверяет Venue-guardian:
// для переводов и операций с хранилищем — адрес получателя,
// для ордеров — символ рынка.
func (i ActionIntent) VenueTarget() string {
	switch i.Type {
	case ActionTransfer, ActionVaultOp:
		return i.Target
	default:
		if i.Target != "" {
			return i.Target
		}
		return i.Market
	}
}

// Validate проверяет инварианты интента один раз на границе.
// Дальше по движку значения считаются корректными.
func (i ActionIntent) Validate() error {
	v := NewValidationError()
	switch i.Type {
	case ActionSpotMarketOrder, ActionSpotLimitOrder, ActionTransfer, ActionVaultOp:
	default:
		v.Add("type", "unknown action type")
	}
	if i.Type == ActionSpotMarketOrder || i.Type == ActionSpotLimitOrder {
		if i.Market == "" {
			v.Add("market", "market is required for orders")
		}
		if i.Side != SideBuy && i.Side != SideSell {
			v.Add("side", "side must be BUY or SELL")
		}
	}
	if i.Type == ActionTransfer || i.Type == ActionVaultOp {
		if i.Target == "" {
			v.Add("target", "target address is required")
		}
	}
	if i.NotionalUsd < 0 {
		v.Add("notional_usd", "notional must be >= 0")
	}
	if i.MaxSlippageBps < 0 {
		v.Add("max_slippage_bps", "slippage must be >= 0")
	}
	if i.Leverage < 1 {
		v.Add("leverage", "leverage must be >= 1")
	}
	if i.ValidForSeconds <= 0 {
		v.Add("valid_for_seconds", "validity window must be positive")
	}
	return v.OrNil()
}
