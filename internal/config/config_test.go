package config

import (
	"log/slog"
	"testing"
	"time"
)

var commonKeys = []string{"APP_ENV", "LOG_LEVEL", "BLE_ADAPTER", "COMPANY_ID"}

var beaconKeys = []string{
	"BME280_ADDRESS", "I2C_BUS", "SENSOR_DRIVER", "BEACON_PERIOD",
	"SETTLE_DELAY", "ADV_INTERVAL", "ADV_DURATION", "BEACON_LOCAL_NAME",
}

var observerKeys = []string{
	"MQTT_ENABLED", "MQTT_BROKER", "MQTT_PORT", "MQTT_CLIENT_ID", "STATION_ID",
	"DB_DRIVER", "SQLITE_PATH", "SQLITE_DSN", "DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS",
	"DB_CONN_MAX_LIFETIME", "SQL_LOG", "HTTP_ADDR",
}

func clearEnv(t *testing.T, keys ...[]string) {
	t.Helper()
	for _, set := range keys {
		for _, k := range set {
			t.Setenv(k, "")
		}
	}
}

func TestLoadBeaconFromEnv_Defaults(t *testing.T) {
	clearEnv(t, commonKeys, beaconKeys)

	got, err := LoadBeaconFromEnv()
	if err != nil {
		t.Fatalf("LoadBeaconFromEnv() error = %v, want nil", err)
	}

	if got.AppEnv != "dev" {
		t.Errorf("AppEnv = %q, want %q", got.AppEnv, "dev")
	}
	if got.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", got.LogLevel, slog.LevelInfo)
	}
	if got.BLEAdapter != "hci0" {
		t.Errorf("BLEAdapter = %q, want hci0", got.BLEAdapter)
	}
	if got.CompanyID != 0x0005 {
		t.Errorf("CompanyID = 0x%04X, want 0x0005", got.CompanyID)
	}
	if got.BME280Address != 0x76 {
		t.Errorf("BME280Address = 0x%X, want 0x76", got.BME280Address)
	}
	if got.SensorDriver != "periph" {
		t.Errorf("SensorDriver = %q, want periph", got.SensorDriver)
	}
	if got.Period != 100*time.Second {
		t.Errorf("Period = %v, want 100s", got.Period)
	}
	if got.SettleDelay != 50*time.Millisecond {
		t.Errorf("SettleDelay = %v, want 50ms", got.SettleDelay)
	}
	if got.AdvInterval != 100*time.Millisecond {
		t.Errorf("AdvInterval = %v, want 100ms", got.AdvInterval)
	}
	if got.AdvDuration != 30*time.Second {
		t.Errorf("AdvDuration = %v, want 30s", got.AdvDuration)
	}
	if got.LocalName != "" {
		t.Errorf("LocalName = %q, want empty", got.LocalName)
	}
}

func TestLoadBeaconFromEnv_Overrides(t *testing.T) {
	clearEnv(t, commonKeys, beaconKeys)
	t.Setenv("COMPANY_ID", "0x0059")
	t.Setenv("BME280_ADDRESS", "0x77")
	t.Setenv("SENSOR_DRIVER", " TinyGo ")
	t.Setenv("BEACON_PERIOD", "10s")
	t.Setenv("SETTLE_DELAY", "20ms")
	t.Setenv("ADV_INTERVAL", "1s")
	t.Setenv("ADV_DURATION", "5s")
	t.Setenv("BEACON_LOCAL_NAME", " nrf5 ")

	got, err := LoadBeaconFromEnv()
	if err != nil {
		t.Fatalf("LoadBeaconFromEnv() error = %v, want nil", err)
	}
	if got.CompanyID != 0x0059 {
		t.Errorf("CompanyID = 0x%04X, want 0x0059", got.CompanyID)
	}
	if got.BME280Address != 0x77 {
		t.Errorf("BME280Address = 0x%X, want 0x77", got.BME280Address)
	}
	if got.SensorDriver != "tinygo" {
		t.Errorf("SensorDriver = %q, want tinygo", got.SensorDriver)
	}
	if got.Period != 10*time.Second || got.SettleDelay != 20*time.Millisecond || got.AdvInterval != time.Second {
		t.Errorf("durations = %v/%v/%v", got.Period, got.SettleDelay, got.AdvInterval)
	}
	if got.AdvDuration != 5*time.Second {
		t.Errorf("AdvDuration = %v, want 5s", got.AdvDuration)
	}
	if got.LocalName != "nrf5" {
		t.Errorf("LocalName = %q, want nrf5", got.LocalName)
	}
}

func TestLoadBeaconFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "app env", key: "APP_ENV", val: "staging"},
		{name: "log level", key: "LOG_LEVEL", val: "verbose"},
		{name: "company id not a number", key: "COMPANY_ID", val: "3com"},
		{name: "company id too large", key: "COMPANY_ID", val: "0x10000"},
		{name: "bme280 address", key: "BME280_ADDRESS", val: "seventy-six"},
		{name: "sensor driver", key: "SENSOR_DRIVER", val: "i2c-dev"},
		{name: "period not a duration", key: "BEACON_PERIOD", val: "100"},
		{name: "period zero", key: "BEACON_PERIOD", val: "0s"},
		{name: "negative settle delay", key: "SETTLE_DELAY", val: "-50ms"},
		{name: "settle longer than period", key: "SETTLE_DELAY", val: "200s"},
		{name: "adv interval too short", key: "ADV_INTERVAL", val: "10ms"},
		{name: "adv interval too long", key: "ADV_INTERVAL", val: "11s"},
		{name: "adv duration zero", key: "ADV_DURATION", val: "0s"},
		{name: "adv duration longer than period", key: "ADV_DURATION", val: "101s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t, commonKeys, beaconKeys)
			t.Setenv(tt.key, tt.val)

			if _, err := LoadBeaconFromEnv(); err == nil {
				t.Fatalf("LoadBeaconFromEnv() error = nil, want non-nil for %s=%q", tt.key, tt.val)
			}
		})
	}
}

func TestLoadObserverFromEnv_Defaults(t *testing.T) {
	clearEnv(t, commonKeys, observerKeys)

	got, err := LoadObserverFromEnv()
	if err != nil {
		t.Fatalf("LoadObserverFromEnv() error = %v, want nil", err)
	}
	if !got.MQTTEnabled {
		t.Error("MQTTEnabled = false, want true")
	}
	if got.MQTTBroker != "localhost" || got.MQTTPort != 1883 || got.MQTTClientID != "nrf5-observer" {
		t.Errorf("mqtt = %s:%d %s", got.MQTTBroker, got.MQTTPort, got.MQTTClientID)
	}
	if got.StationID != "beacon" {
		t.Errorf("StationID = %q, want beacon", got.StationID)
	}
	if got.SQLiteDriver != "sqlite3" || got.SQLitePath != "data/observer.db" || got.SQLiteDSN != "" {
		t.Errorf("sqlite = %q %q %q", got.SQLiteDriver, got.SQLitePath, got.SQLiteDSN)
	}
	if got.SQLiteMaxOpenConns != 1 || got.SQLiteMaxIdleConns != 1 || got.SQLiteConnMaxLifetime != 0 {
		t.Errorf("pool = %d/%d/%v", got.SQLiteMaxOpenConns, got.SQLiteMaxIdleConns, got.SQLiteConnMaxLifetime)
	}
	if got.SQLLog {
		t.Error("SQLLog = true, want false")
	}
	if got.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", got.HTTPAddr)
	}
}

func TestLoadObserverFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		key string
		val string
	}{
		{key: "MQTT_ENABLED", val: "maybe"},
		{key: "MQTT_PORT", val: "mqtt"},
		{key: "DB_MAX_OPEN_CONNS", val: "many"},
		{key: "DB_MAX_IDLE_CONNS", val: "few"},
		{key: "DB_CONN_MAX_LIFETIME", val: "forever"},
		{key: "SQL_LOG", val: "yes please"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t, commonKeys, observerKeys)
			t.Setenv(tt.key, tt.val)

			if _, err := LoadObserverFromEnv(); err == nil {
				t.Fatalf("LoadObserverFromEnv() error = nil, want non-nil for %s=%q", tt.key, tt.val)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: " warn ", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "trace", want: slog.LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLogLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
