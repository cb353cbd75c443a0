// Package ble wraps tinygo.org/x/bluetooth for the beacon (advertising) and
// the observer (scanning).
package ble

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/gogela/nrf5-temperature-beacon/internal/payload"
)

const (
	DefaultInterval = 100 * time.Millisecond
	DefaultDuration = 30 * time.Second
)

type AdvertiserOptions struct {
	Interval time.Duration
	// Duration takes the advertisement off the air this long after Start.
	// Zero keeps it on until the next Stop or Configure.
	Duration  time.Duration
	LocalName string
}

// advertisement is the part of *bluetooth.Advertisement the advertiser uses.
type advertisement interface {
	Configure(options bluetooth.AdvertisementOptions) error
	Start() error
	Stop() error
}

type stopper interface {
	Stop() bool
}

func afterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// Advertiser broadcasts manufacturer data in non-connectable advertisements.
// The payload is copied into a buffer owned by the advertiser, so a single
// buffer is live in the stack at any time.
type Advertiser struct {
	adv       advertisement
	opts      AdvertiserOptions
	logger    *slog.Logger
	afterFunc func(time.Duration, func()) stopper

	mu          sync.Mutex
	data        [payload.MaxFrameLen]byte
	frame       []byte
	configured  bool
	advertising bool
	// gen counts Starts so a timer armed by an earlier Start is ignored.
	gen       uint64
	expiry    stopper
	expiryErr error
}

// NewAdvertiser enables the adapter and takes its default advertisement.
func NewAdvertiser(adapter *bluetooth.Adapter, opts AdvertiserOptions, logger *slog.Logger) (*Advertiser, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble enable: %w", err)
	}
	return newAdvertiser(adapter.DefaultAdvertisement(), opts, logger), nil
}

func newAdvertiser(adv advertisement, opts AdvertiserOptions, logger *slog.Logger) *Advertiser {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Advertiser{
		adv:       adv,
		opts:      opts,
		logger:    logger,
		afterFunc: afterFunc,
		frame:     make([]byte, 0, payload.MaxFrameLen),
	}
}

// Configure replaces the advertised manufacturer data. A running
// advertisement is stopped first; Start puts it back on the air.
func (a *Advertiser) Configure(adv payload.Advertisement) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.takeExpiryErr(); err != nil {
		return err
	}

	adv.LocalName = a.opts.LocalName
	frame, err := payload.AppendFrame(a.frame[:0], adv)
	if err != nil {
		return err
	}
	a.frame = frame

	if err := a.stop(); err != nil {
		return err
	}

	n := copy(a.data[:], adv.Data)
	err = a.adv.Configure(bluetooth.AdvertisementOptions{
		AdvertisementType: bluetooth.AdvertisingTypeNonConnInd,
		LocalName:         a.opts.LocalName,
		Interval:          bluetooth.NewDuration(a.opts.Interval),
		ManufacturerData: []bluetooth.ManufacturerDataElement{
			{CompanyID: adv.CompanyID, Data: a.data[:n]},
		},
	})
	if err != nil {
		a.configured = false
		return fmt.Errorf("ble configure: %w", err)
	}
	a.configured = true
	a.logger.Debug("ble: advertisement configured", "frame", fmt.Sprintf("% X", a.frame))
	return nil
}

// Start is a no-op while already advertising. With a Duration set, the
// advertisement is stopped again once it elapses.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.takeExpiryErr(); err != nil {
		return err
	}
	if !a.configured {
		return fmt.Errorf("ble start: advertisement not configured")
	}
	if a.advertising {
		return nil
	}
	if err := a.adv.Start(); err != nil {
		return fmt.Errorf("ble start: %w", err)
	}
	a.advertising = true

	a.gen++
	if a.opts.Duration > 0 {
		gen := a.gen
		a.expiry = a.afterFunc(a.opts.Duration, func() { a.expire(gen) })
	}
	return nil
}

// Stop is a no-op when not advertising.
func (a *Advertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stop()
}

func (a *Advertiser) stop() error {
	if a.expiry != nil {
		a.expiry.Stop()
		a.expiry = nil
	}
	if !a.advertising {
		return nil
	}
	if err := a.adv.Stop(); err != nil {
		return fmt.Errorf("ble stop: %w", err)
	}
	a.advertising = false
	return nil
}

// expire runs on the timer goroutine. A failed stop is kept and reported by
// the next Configure or Start.
func (a *Advertiser) expire(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.gen || !a.advertising {
		return
	}
	a.expiry = nil
	if err := a.stop(); err != nil {
		a.logger.Error("ble: stop after advertising duration", "error", err)
		a.expiryErr = err
		return
	}
	a.logger.Debug("ble: advertising duration elapsed", "duration", a.opts.Duration)
}

func (a *Advertiser) takeExpiryErr() error {
	err := a.expiryErr
	a.expiryErr = nil
	if err != nil {
		return fmt.Errorf("advertising duration: %w", err)
	}
	return nil
}

// Frame returns the advertising data last accepted by Configure.
func (a *Advertiser) Frame() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]byte(nil), a.frame...)
}
