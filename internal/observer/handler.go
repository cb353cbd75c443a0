// Package observer turns scanned beacon advertisements into stored and
// published observations.
package observer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gogela/nrf5-temperature-beacon/internal/ble"
	"github.com/gogela/nrf5-temperature-beacon/internal/payload"
	"github.com/gogela/nrf5-temperature-beacon/internal/store"
	"github.com/gogela/nrf5-temperature-beacon/internal/telemetry"
	"github.com/gogela/nrf5-temperature-beacon/internal/utils"
)

var ErrDuplicate = errors.New("duplicate advertisement")

type Publisher interface {
	PublishTelemetry(stationID string, t telemetry.Telemetry) error
}

type Recorder interface {
	InsertObservation(ctx context.Context, o store.Observation) error
}

type Options struct {
	StationID string
	// Publisher and Recorder are optional.
	Publisher Publisher
	Recorder  Recorder
	Tracker   *Tracker
	Logger    *slog.Logger
}

type Handler struct {
	stationID string
	publisher Publisher
	recorder  Recorder
	tracker   *Tracker
	logger    *slog.Logger
}

func NewHandler(opts Options) *Handler {
	if opts.Tracker == nil {
		opts.Tracker = NewTracker(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{
		stationID: opts.StationID,
		publisher: opts.Publisher,
		recorder:  opts.Recorder,
		tracker:   opts.Tracker,
		logger:    opts.Logger,
	}
}

// Handle decodes one match and, unless it repeats the last sequence from
// the same beacon, records and publishes it. Store and publish failures are
// logged and returned together; they never affect the tracker.
func (h *Handler) Handle(ctx context.Context, m ble.Match) (store.Observation, error) {
	r, err := payload.Decode(m.Data)
	if err != nil {
		h.logger.Debug("ble: ignore non-beacon payload", "addr", m.Address, "error", err)
		return store.Observation{}, err
	}

	missed, dup := h.tracker.Observe(m.Address, r.Sequence)
	if dup {
		return store.Observation{}, ErrDuplicate
	}

	seen := m.SeenAt
	if seen.IsZero() {
		seen = time.Now()
	}
	o := store.Observation{
		Address:     m.Address,
		CompanyID:   m.CompanyID,
		LocalName:   m.LocalName,
		Time:        seen,
		Sequence:    r.Sequence,
		Temperature: r.Temperature,
		Pressure:    r.Pressure,
		Missed:      missed,
		RSSI:        m.RSSI,
		Raw:         m.Data[:payload.Len],
	}

	if missed > 0 {
		h.logger.Warn("ble: broadcasts missed", "addr", m.Address, "seq", r.Sequence, "missed", missed)
	}

	var errs []error
	if h.recorder != nil {
		if err := h.recorder.InsertObservation(ctx, o); err != nil {
			h.logger.Warn("failed to store observation", "addr", m.Address, "seq", r.Sequence, "error", err)
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if h.publisher != nil {
		if err := h.publisher.PublishTelemetry(h.stationID, telemetryFor(o)); err != nil {
			h.logger.Warn("ble: failed to publish telemetry", "addr", m.Address, "seq", r.Sequence, "error", err)
			errs = append(errs, fmt.Errorf("publish: %w", err))
		}
	}

	h.logger.Info("ble: beacon observation",
		"addr", m.Address,
		"seq", r.Sequence,
		"rssi", m.RSSI,
		"T", r.Celsius(), "P", r.HectoPascal(),
		"missed", missed,
		"data", utils.BytesToHex(m.Data),
	)
	return o, errors.Join(errs...)
}

func telemetryFor(o store.Observation) telemetry.Telemetry {
	r := payload.Reading{Sequence: o.Sequence, Temperature: o.Temperature, Pressure: o.Pressure}
	temp := r.Celsius()
	press := r.HectoPascal()
	seq := int(o.Sequence)
	return telemetry.Telemetry{
		Timestamp:   o.Time,
		Beacon:      o.Address,
		Temperature: &temp,
		Pressure:    &press,
		Sequence:    &seq,
		Missed:      o.Missed,
		RSSI:        o.RSSI,
	}
}
