// Package beacon runs the sample-and-broadcast cycle: read the sensor, pack
// the reading into manufacturer data and (re)start a non-connectable
// advertisement carrying it.
package beacon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gogela/nrf5-temperature-beacon/internal/payload"
	"github.com/gogela/nrf5-temperature-beacon/internal/sensor"
)

const DefaultSettleDelay = 50 * time.Millisecond

var (
	// ErrTransport marks failures of the advertising transport. They are fatal.
	ErrTransport = errors.New("advertising transport")
	// ErrSampleSkipped marks a cycle that did not broadcast because the
	// sensor could not be read.
	ErrSampleSkipped = errors.New("sample skipped")
)

// Advertiser is the radio side of the cycle.
type Advertiser interface {
	// Configure encodes adv into the live advertising set, stopping it first
	// if it is running. It fails rather than truncating oversized frames.
	Configure(adv payload.Advertisement) error
	Start() error
	Stop() error
}

type Options struct {
	CompanyID   uint16
	SettleDelay time.Duration
	// InitialSequence is the first sequence byte broadcast.
	InitialSequence uint8
	// Wait suspends for d; it must return early with ctx.Err() when ctx ends.
	// Defaults to a timer-based wait.
	Wait func(ctx context.Context, d time.Duration) error
}

// Broadcast describes one completed cycle.
type Broadcast struct {
	Sequence    uint8
	Measurement sensor.Measurement
	Payload     payload.Payload
}

// Broadcaster owns the sequence counter and the collaborators of the cycle.
// It is not safe for concurrent use; Run serializes cycles.
type Broadcaster struct {
	sensor     sensor.Device
	advertiser Advertiser
	logger     *slog.Logger

	companyID   uint16
	settleDelay time.Duration
	wait        func(ctx context.Context, d time.Duration) error

	seq uint8
}

func NewBroadcaster(dev sensor.Device, adv Advertiser, logger *slog.Logger, opts Options) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CompanyID == 0 {
		opts.CompanyID = payload.DefaultCompanyID
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.Wait == nil {
		opts.Wait = sleepContext
	}
	return &Broadcaster{
		sensor:      dev,
		advertiser:  adv,
		logger:      logger,
		companyID:   opts.CompanyID,
		settleDelay: opts.SettleDelay,
		wait:        opts.Wait,
		seq:         opts.InitialSequence,
	}
}

// Sequence returns the sequence byte the next broadcast will carry.
func (b *Broadcaster) Sequence() uint8 {
	return b.seq
}

// Cycle acquires one measurement and broadcasts it. Sensor failures stop the
// live advertisement and return an error wrapping ErrSampleSkipped; transport
// failures return an error wrapping ErrTransport.
func (b *Broadcaster) Cycle(ctx context.Context) (Broadcast, error) {
	m, err := b.acquire(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Broadcast{}, ctxErr
		}
		return Broadcast{}, b.skip(err)
	}

	seq := b.seq
	p := payload.Encode(seq, m.Temperature, m.Pressure)

	adv := payload.Advertisement{CompanyID: b.companyID, Data: p[:]}
	if err := b.advertiser.Configure(adv); err != nil {
		return Broadcast{}, fmt.Errorf("%w: configure: %w", ErrTransport, err)
	}
	if err := b.advertiser.Start(); err != nil {
		return Broadcast{}, fmt.Errorf("%w: start: %w", ErrTransport, err)
	}
	b.seq++

	b.logger.Debug("broadcast",
		"seq", seq,
		"temperature_centi_c", m.Temperature,
		"pressure_pa", m.Pressure,
		"payload", fmt.Sprintf("% X", p[:]),
	)
	return Broadcast{Sequence: seq, Measurement: m, Payload: p}, nil
}

func (b *Broadcaster) acquire(ctx context.Context) (sensor.Measurement, error) {
	if err := b.sensor.Enable(); err != nil {
		return sensor.Measurement{}, fmt.Errorf("enable sensor: %w", err)
	}
	if err := b.sensor.TriggerMeasurement(); err != nil {
		return sensor.Measurement{}, fmt.Errorf("trigger measurement: %w", err)
	}
	if err := b.wait(ctx, b.settleDelay); err != nil {
		return sensor.Measurement{}, err
	}
	m, err := b.sensor.ReadMeasurement()
	if err != nil {
		return sensor.Measurement{}, fmt.Errorf("read measurement: %w", err)
	}
	return m, nil
}

// skip takes the previous reading off the air so observers never see it as
// current.
func (b *Broadcaster) skip(cause error) error {
	b.logger.Warn("sensor read failed, skipping broadcast", "seq", b.seq, "error", cause)
	if err := b.advertiser.Stop(); err != nil {
		return fmt.Errorf("%w: stop: %w", ErrTransport, err)
	}
	return fmt.Errorf("%w: %w", ErrSampleSkipped, cause)
}

// Run arms the trigger and runs a cycle on every firing until ctx ends or a
// transport error occurs. Skipped samples are not fatal.
func (b *Broadcaster) Run(ctx context.Context, trigger *Trigger) error {
	return trigger.Run(ctx, func(ctx context.Context) error {
		_, err := b.Cycle(ctx)
		if errors.Is(err, ErrSampleSkipped) {
			return nil
		}
		return err
	})
}

// Shutdown takes the beacon off the air.
func (b *Broadcaster) Shutdown() error {
	if err := b.advertiser.Stop(); err != nil {
		return fmt.Errorf("%w: stop: %w", ErrTransport, err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
