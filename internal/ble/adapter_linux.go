//go:build linux && !baremetal

package ble

import "tinygo.org/x/bluetooth"

// Adapter returns the BlueZ adapter with the given id, e.g. "hci0".
func Adapter(id string) *bluetooth.Adapter {
	return bluetooth.NewAdapter(id)
}
