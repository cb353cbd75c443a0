// Package payload encodes and decodes the beacon's manufacturer data.
//
// Manufacturer data format (big-endian):
// [0] sequence, [1:3] temperature int16 (0.01 °C), [3:7] pressure int32 (Pa),
// [7:9] reserved, always zero (9 bytes total).
package payload

import (
	"encoding/binary"
	"fmt"
)

const (
	Len = 9

	seqOffset      = 0
	tempOffset     = 1
	pressureOffset = 3
	reservedOffset = 7
)

// Payload is the manufacturer data carried by one broadcast.
type Payload [Len]byte

// Reading is a decoded payload.
type Reading struct {
	Sequence uint8
	// Temperature in hundredths of a degree Celsius.
	Temperature int16
	// Pressure in pascal.
	Pressure int32
}

// Celsius returns the temperature in degrees Celsius.
func (r Reading) Celsius() float64 {
	return float64(r.Temperature) / 100.0
}

// HectoPascal returns the pressure in hPa.
func (r Reading) HectoPascal() float64 {
	return float64(r.Pressure) / 100.0
}

// Encode builds the payload for sequence seq. Reserved bytes are zeroed.
func Encode(seq uint8, temperature int16, pressure int32) Payload {
	var p Payload
	p[seqOffset] = seq
	binary.BigEndian.PutUint16(p[tempOffset:pressureOffset], uint16(temperature))
	binary.BigEndian.PutUint32(p[pressureOffset:reservedOffset], uint32(pressure))
	return p
}

// Decode parses manufacturer data. Trailing bytes past the reserved field are
// ignored so that future layouts stay readable.
func Decode(data []byte) (Reading, error) {
	if len(data) < Len {
		return Reading{}, fmt.Errorf("payload too short: %d", len(data))
	}
	return Reading{
		Sequence:    data[seqOffset],
		Temperature: int16(binary.BigEndian.Uint16(data[tempOffset:pressureOffset])),
		Pressure:    int32(binary.BigEndian.Uint32(data[pressureOffset:reservedOffset])),
	}, nil
}
