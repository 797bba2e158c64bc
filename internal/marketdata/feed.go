package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Quote — срез рыночных данных по символу на момент запроса.
type Quote struct {
	Symbol      string    `json:"symbol"`
	Price       float64   `json:"price"`
	FundingRate float64   `json:"funding_rate"`
	BasisSpread float64   `json:"basis_spread"`
	Volume24h   float64   `json:"volume_24h"`
	Delta       float64   `json:"delta"` // Дельта портфеля по инструменту
	PnlUsd      float64   `json:"pnl_usd"`
	Timestamp   time.Time `json:"timestamp"`
}

// Feed — read-only фид рыночных данных. Сбой фида на стороне
// вызывающего деградирует в отказ ("data unavailable"), никогда
// в тихий пропуск проверки.
type Feed interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
}

// HTTPFeed — адаптер к HTTP JSON API поставщика данных.
type HTTPFeed struct {
	rc     *resty.Client
	logger *zap.Logger
}

func NewHTTPFeed(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPFeed {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &HTTPFeed{rc: rc, logger: logger.Named("marketdata")}
}

func (f *HTTPFeed) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	var q Quote
	resp, err := f.rc.R().SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetResult(&q).
		Get("/v1/quotes/{symbol}")
	if err != nil {
		return nil, fmt.Errorf("marketdata: quote request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("marketdata: quote for %s returned %s", symbol, resp.Status())
	}
	if q.Timestamp.IsZero() {
		q.Timestamp = time.Now().UTC()
	}
	return &q, nil
}

// StaticFeed — фиксированные котировки для тестов и демо-режима.
type StaticFeed struct {
	Quotes map[string]Quote
}

func (f *StaticFeed) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	q, ok := f.Quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("marketdata: no quote for %s", symbol)
	}
	return &q, nil
}
