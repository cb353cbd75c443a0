//go:build !linux || baremetal

package ble

import "tinygo.org/x/bluetooth"

// Adapter returns the default adapter; only BlueZ has more than one.
func Adapter(string) *bluetooth.Adapter {
	return bluetooth.DefaultAdapter
}
