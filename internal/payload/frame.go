package payload

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Advertising data types and limits as assigned by the Bluetooth SIG.
const (
	MaxFrameLen = 31

	adTypeFlags            = 0x01
	adTypeCompleteName     = 0x09
	adTypeManufacturerData = 0xFF

	// FlagBREDRNotSupported is the only flag the beacon sets.
	FlagBREDRNotSupported = 0x04

	// DefaultCompanyID is the company identifier carried by the beacon (3Com).
	DefaultCompanyID uint16 = 0x0005
)

var (
	ErrFrameTooLarge      = errors.New("advertisement frame too large")
	ErrNoManufacturerData = errors.New("no manufacturer data")
)

// Advertisement describes what goes into one advertising frame.
type Advertisement struct {
	// LocalName is optional; the beacon normally advertises without a name.
	LocalName string
	CompanyID uint16
	Data      []byte
}

// Len returns the encoded frame length: flags AD, optional name AD and
// manufacturer AD.
func (a Advertisement) Len() int {
	n := 3 + 4 + len(a.Data)
	if a.LocalName != "" {
		n += 2 + len(a.LocalName)
	}
	return n
}

// AppendFrame encodes a into the advertising data format and appends it to dst.
// It fails instead of truncating when the frame does not fit in MaxFrameLen.
func AppendFrame(dst []byte, a Advertisement) ([]byte, error) {
	if n := a.Len(); n > MaxFrameLen {
		return dst, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, n, MaxFrameLen)
	}
	dst = append(dst, 2, adTypeFlags, FlagBREDRNotSupported)
	if a.LocalName != "" {
		dst = append(dst, byte(1+len(a.LocalName)), adTypeCompleteName)
		dst = append(dst, a.LocalName...)
	}
	dst = append(dst, byte(3+len(a.Data)), adTypeManufacturerData)
	dst = binary.LittleEndian.AppendUint16(dst, a.CompanyID)
	dst = append(dst, a.Data...)
	return dst, nil
}

// EncodeFrame is AppendFrame into a fresh slice.
func EncodeFrame(a Advertisement) ([]byte, error) {
	return AppendFrame(make([]byte, 0, MaxFrameLen), a)
}

// ManufacturerData walks the AD structures in frame and returns the first
// manufacturer-specific element, together with the complete local name if
// one precedes it.
func ManufacturerData(frame []byte) (Advertisement, error) {
	var name string
	for i := 0; i < len(frame); {
		n := int(frame[i])
		if n == 0 {
			break
		}
		if i+1+n > len(frame) {
			return Advertisement{}, fmt.Errorf("malformed AD structure at offset %d", i)
		}
		field := frame[i+1 : i+1+n]
		if field[0] == adTypeCompleteName {
			name = string(field[1:])
		}
		if field[0] == adTypeManufacturerData {
			if len(field) < 3 {
				return Advertisement{}, fmt.Errorf("manufacturer data too short: %d", len(field))
			}
			return Advertisement{
				LocalName: name,
				CompanyID: binary.LittleEndian.Uint16(field[1:3]),
				Data:      append([]byte(nil), field[3:]...),
			}, nil
		}
		i += 1 + n
	}
	return Advertisement{}, ErrNoManufacturerData
}
