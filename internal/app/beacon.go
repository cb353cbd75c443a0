//go:build !tinygo

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gogela/nrf5-temperature-beacon/internal/beacon"
	"github.com/gogela/nrf5-temperature-beacon/internal/ble"
	"github.com/gogela/nrf5-temperature-beacon/internal/config"
	"github.com/gogela/nrf5-temperature-beacon/internal/sensor"
	"github.com/gogela/nrf5-temperature-beacon/internal/utils"
)

// RunBeacon samples the sensor and broadcasts every cfg.Period until ctx is
// canceled or the advertising transport fails. The advertisement is always
// taken off the air on the way out.
func RunBeacon(ctx context.Context, cfg config.Beacon, logger *slog.Logger) (err error) {
	logger.Info("initializing beacon",
		"adapter", cfg.BLEAdapter,
		"company_id", "0x"+utils.Hex4(cfg.CompanyID),
		"sensor_driver", cfg.SensorDriver,
		"i2c_bus", cfg.I2CBus,
		"bme280_address", fmt.Sprintf("0x%02X", cfg.BME280Address),
		"period", cfg.Period,
		"adv_duration", cfg.AdvDuration,
	)

	dev, closeSensor, err := openSensor(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeSensor.Close(); cerr != nil {
			logger.Warn("close sensor", "error", cerr)
		}
	}()

	adv, err := ble.NewAdvertiser(ble.Adapter(cfg.BLEAdapter), ble.AdvertiserOptions{
		Interval:  cfg.AdvInterval,
		Duration:  cfg.AdvDuration,
		LocalName: cfg.LocalName,
	}, logger)
	if err != nil {
		return fmt.Errorf("%w: %w", beacon.ErrTransport, err)
	}

	b := beacon.NewBroadcaster(dev, adv, logger, beacon.Options{
		CompanyID:   cfg.CompanyID,
		SettleDelay: cfg.SettleDelay,
	})
	defer func() {
		if serr := b.Shutdown(); serr != nil {
			logger.Error("stop advertising", "error", serr)
			err = errors.Join(err, serr)
		}
	}()

	logger.Info("beacon running")
	err = b.Run(ctx, beacon.NewTrigger(cfg.Period))
	logger.Info("beacon stopped", "next_seq", b.Sequence())
	return err
}

// openSensor opens the I2C bus and configures the BME280 with the selected
// driver. The returned closer releases the device and the bus.
func openSensor(cfg config.Beacon) (sensor.Device, io.Closer, error) {
	bus, err := sensor.OpenBus(cfg.I2CBus)
	if err != nil {
		return nil, nil, err
	}

	var (
		dev    sensor.Device
		closer io.Closer = bus
	)
	switch cfg.SensorDriver {
	case "tinygo":
		// periph's i2c.Bus already has the Tx signature tinygo drivers use.
		dev = sensor.NewBME280(bus)
	default:
		p := sensor.NewPeriph(bus)
		dev = p
		closer = closers{p, bus}
	}

	if err := dev.Configure(sensor.Options{Address: cfg.BME280Address}); err != nil {
		_ = closer.Close()
		return nil, nil, fmt.Errorf("configure sensor: %w", err)
	}
	return dev, closer, nil
}

type closers []io.Closer

func (cs closers) Close() error {
	var errs []error
	for _, c := range cs {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
