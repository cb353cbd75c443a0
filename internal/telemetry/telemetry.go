package telemetry

import "time"

// Telemetry is one beacon observation as published on MQTT.
type Telemetry struct {
	StationID   string    `json:"station_id"`
	Timestamp   time.Time `json:"timestamp"`
	Beacon      string    `json:"beacon"`
	Temperature *float64  `json:"temperature_c,omitempty"`
	Pressure    *float64  `json:"pressure_hpa,omitempty"`
	Sequence    *int      `json:"sequence,omitempty"`
	Missed      int       `json:"missed"`
	RSSI        int16     `json:"rssi"`
}
