package cartstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy governs the read-merge-write loop of the persisted backends.
//
// With MaxAttempts == 0 the loop retries until it commits or ctx is done.
// Sustained contention on a single cart can then keep a request spinning
// (livelock); set MaxAttempts to trade that for ErrTooManyConflicts.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy retries forever with a short capped backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    0,
		InitialBackoff: 2 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
	}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.InitialBackoff <= 0 {
		return 0
	}
	d := p.InitialBackoff
	for i := 1; i < attempt && (p.MaxBackoff <= 0 || d < p.MaxBackoff); i++ {
		d *= 2
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// run calls op until it returns something other than errConflict.
// onConflict is told about every lost race.
func (p RetryPolicy) run(ctx context.Context, op func(ctx context.Context) error, onConflict func(attempt int)) error {
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if !errors.Is(err, errConflict) {
			return err
		}
		if onConflict != nil {
			onConflict(attempt)
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return fmt.Errorf("%w after %d attempts", ErrTooManyConflicts, attempt)
		}

		wait := p.backoff(attempt)
		if wait == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
