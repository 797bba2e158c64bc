package custody

import (
	"fmt"
	"time"
)

// ThrottleError несет Retry-After бэкенда, чтобы ретраи read-only
// вызовов ждали ровно столько, сколько просил апстрим.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }
