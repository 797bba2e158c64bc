package custody

/*
Файл reliability.go оборачивает кастоди-клиент в слой надежности:
Rate Limiter + Circuit Breaker + ретраи.

Принципиальное разделение:
- read-only вызовы (аутентификация, иерархия аккаунтов) ретраятся
  с экспоненциальным бэкоффом и уважением Retry-After;
- деньгодвижущие SubmitTx/Transfer НЕ ретраятся никогда: таймаут —
  индетерминированный исход, слепой повтор рискует двойным исполнением.
  Они проходят только через лимитер, предохранитель и жесткий таймаут.
*/

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// StateGauge — метрика состояния предохранителя (0 - closed, 1 - open).
type StateGauge interface {
	Set(float64)
}

type ReliabilityWrapper struct {
	next    Client
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
}

type ReliabilityOptions struct {
	CBMaxRequests uint32
	CBInterval    time.Duration
	CBTimeout     time.Duration
	CallTimeout   time.Duration
	Gauge         StateGauge
}

func NewReliabilityWrapper(next Client, opts ReliabilityOptions) *ReliabilityWrapper {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}

	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "custody-backend",
		MaxRequests: opts.CBMaxRequests,
		Interval:    opts.CBInterval,
		Timeout:     opts.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Более 5 ошибок подряд — открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if opts.Gauge == nil {
				return
			}
			if to == gobreaker.StateOpen {
				opts.Gauge.Set(1)
			} else {
				opts.Gauge.Set(0)
			}
		},
	})

	// Лимитер: кастоди-API не любит бурсты
	limiter := rate.NewLimiter(rate.Limit(50), 10)

	return &ReliabilityWrapper{
		next:    next,
		cb:      cb,
		limiter: limiter,
		timeout: opts.CallTimeout,
	}
}

// callRead — общий путь для идемпотентных чтений: лимитер, CB, ретраи.
func callRead[T any](ctx context.Context, w *ReliabilityWrapper, do func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if err := w.limiter.Wait(ctx); err != nil {
		return zero, fmt.Errorf("rate limit exceeded: %w", err)
	}

	var out T
	_, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
			// Умный расчет задержки
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Если бэкенд вернул ThrottleError (прочитан Retry-After заголовок)
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				// Сетевой лаг, 500-ка — стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		return nil, r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.timeout)
			defer cancel()

			var callErr error
			out, callErr = do(tCtx)
			return callErr
		})
	})

	if err != nil {
		return zero, err
	}
	return out, nil
}

// callSubmit — путь деньгодвижущих вызовов: лимитер, CB, таймаут, БЕЗ ретраев.
func (w *ReliabilityWrapper) callSubmit(ctx context.Context, do func(ctx context.Context) (*SubmitResult, error)) (*SubmitResult, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	res, err := w.cb.Execute(func() (interface{}, error) {
		tCtx, cancel := context.WithTimeout(ctx, w.timeout)
		defer cancel()
		return do(tCtx)
	})
	if err != nil {
		return nil, err
	}
	return res.(*SubmitResult), nil
}

func (w *ReliabilityWrapper) Authenticate(ctx context.Context) (*SignerIdentity, error) {
	return callRead(ctx, w, w.next.Authenticate)
}

func (w *ReliabilityWrapper) GetOrganisations(ctx context.Context) ([]Organisation, error) {
	return callRead(ctx, w, w.next.GetOrganisations)
}

func (w *ReliabilityWrapper) GetAccounts(ctx context.Context, orgID string) ([]Account, error) {
	return callRead(ctx, w, func(ctx context.Context) ([]Account, error) {
		return w.next.GetAccounts(ctx, orgID)
	})
}

func (w *ReliabilityWrapper) SubmitTx(ctx context.Context, req TxRequest) (*SubmitResult, error) {
	return w.callSubmit(ctx, func(ctx context.Context) (*SubmitResult, error) {
		return w.next.SubmitTx(ctx, req)
	})
}

func (w *ReliabilityWrapper) Transfer(ctx context.Context, req TransferRequest) (*SubmitResult, error) {
	return w.callSubmit(ctx, func(ctx context.Context) (*SubmitResult, error) {
		return w.next.Transfer(ctx, req)
	})
}
