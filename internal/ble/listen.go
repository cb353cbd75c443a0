package ble

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tinygo.org/x/bluetooth"
)

// Match is a single observation of a beacon.
type Match struct {
	Address   string
	RSSI      int16
	LocalName string
	CompanyID uint16
	Data      []byte
	SeenAt    time.Time
}

type Filter struct {
	LocalName string
	CompanyID uint16
	// MinDataLen drops manufacturer data shorter than this.
	MinDataLen int
}

type Options struct {
	Adapter string // "hci0" by default
	Filter  Filter
}

// Listener wraps scanning with context cancellation.
type Listener struct {
	adapter *bluetooth.Adapter
	opts    Options
}

func NewListener(opts Options) *Listener {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}

	return &Listener{
		adapter: Adapter(opts.Adapter),
		opts:    opts,
	}
}

func (l *Listener) Run(ctx context.Context, onMatch func(Match)) error {
	slog.Info("ble: enabling adapter", "adapter", l.opts.Adapter)
	if err := l.adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable (%s): %w", l.opts.Adapter, err)
	}
	slog.Info("ble: adapter enabled", "adapter", l.opts.Adapter)

	go func() {
		<-ctx.Done()
		_ = l.adapter.StopScan()
	}()

	slog.Info("ble: scanning started",
		"filter_name", l.opts.Filter.LocalName,
		"filter_company", fmt.Sprintf("0x%04X", l.opts.Filter.CompanyID),
		"filter_min_len", l.opts.Filter.MinDataLen,
	)

	// Scan blocks until StopScan() or error.
	err := l.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
		elements := make([]manufacturerData, 0, 2)
		for _, md := range r.ManufacturerData() {
			elements = append(elements, manufacturerData{CompanyID: md.CompanyID, Data: md.Data})
		}
		obs, ok := l.opts.Filter.match(r.Address.String(), r.RSSI, r.LocalName(), elements)
		if ok && onMatch != nil {
			onMatch(obs)
		}
	})

	// If ctx canceled, treat as clean shutdown.
	if ctx.Err() != nil {
		slog.Info("ble: scanning stopped (context canceled)")
		return nil
	}

	if err != nil {
		return fmt.Errorf("ble scan: %w", err)
	}

	slog.Info("ble: scanning stopped")
	return nil
}

type manufacturerData struct {
	CompanyID uint16
	Data      []byte
}

// match applies the filter to one scan result and returns the first matching
// manufacturer data element. Data is copied; the stack reuses its buffers.
func (f Filter) match(addr string, rssi int16, name string, elements []manufacturerData) (Match, bool) {
	if f.LocalName != "" && name != f.LocalName {
		return Match{}, false
	}
	for _, md := range elements {
		if f.CompanyID != 0 && md.CompanyID != f.CompanyID {
			continue
		}
		if len(md.Data) < f.MinDataLen {
			continue
		}
		return Match{
			Address:   addr,
			RSSI:      rssi,
			LocalName: name,
			CompanyID: md.CompanyID,
			Data:      append([]byte(nil), md.Data...),
			SeenAt:    time.Now(),
		}, true
	}
	return Match{}, false
}
