package beacon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogela/nrf5-temperature-beacon/internal/sensor"
)

type manualTicker struct {
	ch      chan time.Time
	stopped bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.stopped = true }

func newManualTrigger(period time.Duration) (*Trigger, *manualTicker) {
	mt := &manualTicker{ch: make(chan time.Time)}
	tr := NewTrigger(period)
	tr.newTicker = func(d time.Duration) Ticker {
		if d != period {
			panic("unexpected period")
		}
		return mt
	}
	return tr, mt
}

func TestNewTrigger_DefaultPeriod(t *testing.T) {
	if got := NewTrigger(0).Period; got != DefaultPeriod {
		t.Errorf("Period = %v; want %v", got, DefaultPeriod)
	}
	if got := NewTrigger(time.Second).Period; got != time.Second {
		t.Errorf("Period = %v; want 1s", got)
	}
}

func TestTrigger_FiresImmediatelyThenOnTicks(t *testing.T) {
	tr, mt := newManualTrigger(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan int, 16)
	n := 0
	done := make(chan error, 1)
	go func() {
		done <- tr.Run(ctx, func(context.Context) error {
			n++
			fired <- n
			return nil
		})
	}()

	if got := <-fired; got != 1 {
		t.Fatalf("first firing = %d; want 1", got)
	}
	for i := 2; i <= 4; i++ {
		mt.ch <- time.Now()
		if got := <-fired; got != i {
			t.Fatalf("firing = %d; want %d", got, i)
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v; want context.Canceled", err)
	}
	if !mt.stopped {
		t.Error("ticker not stopped")
	}
}

func TestTrigger_StopsOnError(t *testing.T) {
	tr, mt := newManualTrigger(time.Minute)
	boom := errors.New("boom")

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- tr.Run(context.Background(), func(context.Context) error {
			calls++
			if calls == 2 {
				return boom
			}
			return nil
		})
	}()

	mt.ch <- time.Now()
	if err := <-done; !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v; want boom", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d; want 2", calls)
	}
}

func TestTrigger_CanceledBeforeArm(t *testing.T) {
	tr, _ := newManualTrigger(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tr.Run(ctx, func(context.Context) error {
		t.Fatal("fired after cancel")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v; want context.Canceled", err)
	}
}

func TestBroadcasterRun_SkipsBadSamplesStopsOnTransportError(t *testing.T) {
	tr, mt := newManualTrigger(time.Minute)
	s := &fakeSensor{
		m:        sensor.Measurement{Temperature: 2000, Pressure: 100000},
		readErrs: []error{nil, errors.New("nack"), nil, nil},
	}
	a := &fakeAdvertiser{failConfigureAt: 3}
	b := newTestBroadcaster(s, a, &recordingWait{}, 0)

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background(), tr) }()

	// Firing 1 (immediate) broadcasts seq 0, firing 2 is skipped, firing 3
	// broadcasts seq 1 and firing 4 fails to configure.
	for i := 0; i < 3; i++ {
		mt.ch <- time.Now()
	}

	err := <-done
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Run() error = %v; want ErrTransport", err)
	}
	if len(a.configured) != 2 {
		t.Fatalf("configured %d payloads; want 2", len(a.configured))
	}
	if got := a.last(t).Sequence; got != 1 {
		t.Errorf("last broadcast sequence = %d; want 1", got)
	}
	wantAdv := []string{"configure", "start", "stop", "configure", "start", "configure"}
	if !equalCalls(a.calls, wantAdv) {
		t.Errorf("advertiser calls = %v; want %v", a.calls, wantAdv)
	}
	if !mt.stopped {
		t.Error("ticker not stopped")
	}
}
