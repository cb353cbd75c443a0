//go:build !tinygo

package sensor

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

var hostInit struct {
	once sync.Once
	err  error
}

// OpenBus initializes the host drivers once and opens the named I2C bus.
// An empty name selects the first bus, usually /dev/i2c-1.
func OpenBus(name string) (i2c.BusCloser, error) {
	hostInit.once.Do(func() {
		_, hostInit.err = host.Init()
	})
	if hostInit.err != nil {
		return nil, fmt.Errorf("host init: %w", hostInit.err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", name, err)
	}
	return bus, nil
}

// Periph drives the sensor through periph.io's bmxx80 driver.
type Periph struct {
	bus  i2c.Bus
	dev  *bmxx80.Dev
	last *physic.Env
}

func NewPeriph(bus i2c.Bus) *Periph {
	return &Periph{bus: bus}
}

func (s *Periph) Configure(opts Options) error {
	addr := opts.Address
	if addr == 0 {
		addr = DefaultAddress
	}
	if s.dev != nil {
		_ = s.dev.Halt()
	}
	dev, err := bmxx80.NewI2C(s.bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		return fmt.Errorf("bmxx80 at 0x%02X: %w", addr, err)
	}
	s.dev = dev
	s.last = nil
	return nil
}

func (s *Periph) Enable() error {
	if s.dev == nil {
		return fmt.Errorf("bmxx80: %w", ErrNotConnected)
	}
	return nil
}

// TriggerMeasurement runs one forced conversion and keeps the result for
// ReadMeasurement.
func (s *Periph) TriggerMeasurement() error {
	if s.dev == nil {
		return fmt.Errorf("bmxx80: %w", ErrNotConnected)
	}
	var env physic.Env
	if err := s.dev.Sense(&env); err != nil {
		return fmt.Errorf("sense: %w", err)
	}
	s.last = &env
	return nil
}

func (s *Periph) ReadMeasurement() (Measurement, error) {
	if s.last == nil {
		return Measurement{}, ErrNoConversion
	}
	return measurementFromEnv(*s.last), nil
}

// Close halts the device.
func (s *Periph) Close() error {
	if s.dev == nil {
		return nil
	}
	return s.dev.Halt()
}

func measurementFromEnv(env physic.Env) Measurement {
	return Measurement{
		Temperature: centiCelsius(env.Temperature.Celsius()),
		Pressure:    int32((env.Pressure + physic.Pascal/2) / physic.Pascal),
	}
}
