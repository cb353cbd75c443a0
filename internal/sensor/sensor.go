// Package sensor reads temperature and pressure from a BME280 over I2C.
package sensor

import (
	"errors"
	"math"
)

// DefaultAddress is the BME280 I2C address with SDO tied to ground.
const DefaultAddress uint16 = 0x76

var (
	ErrNotConnected = errors.New("sensor not connected")
	// ErrNoConversion is returned by ReadMeasurement when no measurement has
	// been triggered since the device was configured.
	ErrNoConversion = errors.New("no completed conversion")
)

// Measurement is one temperature/pressure sample.
type Measurement struct {
	// Temperature in hundredths of a degree Celsius.
	Temperature int16
	// Pressure in pascal.
	Pressure int32
}

type Options struct {
	Address uint16
}

// Device is the sensor as seen by the broadcast cycle.
type Device interface {
	Configure(opts Options) error
	Enable() error
	TriggerMeasurement() error
	ReadMeasurement() (Measurement, error)
}

// centiCelsius converts a float temperature to hundredths of a degree,
// saturating at the int16 range.
func centiCelsius(c float64) int16 {
	v := math.Round(c * 100)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// centiCelsiusFromMilli converts milli-degrees to hundredths of a degree.
func centiCelsiusFromMilli(mc int32) int16 {
	return centiCelsius(float64(mc) / 1000.0)
}

// pascalFromMilli converts milli-pascal to pascal, rounding to nearest.
func pascalFromMilli(mpa int32) int32 {
	return int32(math.Round(float64(mpa) / 1000.0))
}
