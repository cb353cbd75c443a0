package sensor

import (
	"fmt"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/bme280"
)

// forcedSettings keeps the chip asleep between cycles. With these
// oversampling rates one forced conversion takes about 46ms, inside the
// default settle delay.
var forcedSettings = bme280.Config{
	Mode:        bme280.ModeSleep,
	Period:      bme280.Period0_5ms,
	Temperature: bme280.Sampling2X,
	Humidity:    bme280.Sampling1X,
	Pressure:    bme280.Sampling16X,
	IIR:         bme280.Coeff0,
}

// BME280 drives the sensor through the TinyGo driver. The bus can be a
// machine.I2C on a microcontroller or a periph.io bus on Linux.
type BME280 struct {
	device *bme280.Device
	bus    drivers.I2C
	ready  bool
}

func NewBME280(bus drivers.I2C) *BME280 {
	return &BME280{bus: bus}
}

func (s *BME280) Configure(opts Options) error {
	dev := bme280.New(s.bus)
	if opts.Address != 0 {
		dev.Address = opts.Address
	}
	dev.ConfigureWithSettings(forcedSettings)
	s.device = &dev
	s.ready = false
	return nil
}

// Enable checks the chip id so a missing or miswired sensor is reported
// before a conversion is read.
func (s *BME280) Enable() error {
	if s.device == nil {
		return fmt.Errorf("bme280: %w", ErrNotConnected)
	}
	if !s.device.Connected() {
		return fmt.Errorf("bme280 at 0x%02X: %w", s.device.Address, ErrNotConnected)
	}
	return nil
}

// TriggerMeasurement starts one forced conversion by writing CTRL_MEAS.
// The chip returns to sleep when it completes; the driver is put back in
// sleep mode too, otherwise every read would start another conversion.
func (s *BME280) TriggerMeasurement() error {
	if s.device == nil {
		return fmt.Errorf("bme280: %w", ErrNotConnected)
	}
	s.device.SetMode(bme280.ModeForced)
	s.device.Config.Mode = bme280.ModeSleep
	s.ready = true
	return nil
}

func (s *BME280) ReadMeasurement() (Measurement, error) {
	if s.device == nil {
		return Measurement{}, fmt.Errorf("bme280: %w", ErrNotConnected)
	}
	if !s.ready {
		return Measurement{}, ErrNoConversion
	}

	t, err := s.device.ReadTemperature()
	if err != nil {
		return Measurement{}, fmt.Errorf("read temperature: %w", err)
	}
	p, err := s.device.ReadPressure()
	if err != nil {
		return Measurement{}, fmt.Errorf("read pressure: %w", err)
	}

	return Measurement{
		Temperature: centiCelsiusFromMilli(t),
		Pressure:    pascalFromMilli(p),
	}, nil
}
