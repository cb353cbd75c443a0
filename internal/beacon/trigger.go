package beacon

import (
	"context"
	"time"
)

// DefaultPeriod is the time between two broadcasts.
const DefaultPeriod = 100 * time.Second

// Ticker is the subset of time.Ticker the trigger needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// Trigger fires a callback once when armed and then every Period.
// Firings run on the goroutine that called Run, one at a time; ticks that
// come due while a firing is running are dropped.
type Trigger struct {
	Period time.Duration

	newTicker func(time.Duration) Ticker
}

func NewTrigger(period time.Duration) *Trigger {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Trigger{
		Period: period,
		newTicker: func(d time.Duration) Ticker {
			return timeTicker{t: time.NewTicker(d)}
		},
	}
}

// Run blocks until ctx ends or fire returns an error.
func (t *Trigger) Run(ctx context.Context, fire func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ticker := t.newTicker(t.Period)
	defer ticker.Stop()

	if err := fire(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if err := fire(ctx); err != nil {
				return err
			}
		}
	}
}
