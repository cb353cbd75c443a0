package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Common holds the settings shared by every binary.
type Common struct {
	AppEnv     string
	LogLevel   slog.Level
	BLEAdapter string
	CompanyID  uint16
}

// Beacon is read once at startup; nothing in it changes while running.
type Beacon struct {
	Common

	BME280Address uint16
	I2CBus        string
	SensorDriver  string
	Period        time.Duration
	SettleDelay   time.Duration
	AdvInterval   time.Duration
	AdvDuration   time.Duration
	LocalName     string
}

type Observer struct {
	Common

	MQTTEnabled  bool
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	StationID    string

	SQLiteDriver          string
	SQLitePath            string
	SQLiteDSN             string
	SQLiteMaxOpenConns    int
	SQLiteMaxIdleConns    int
	SQLiteConnMaxLifetime time.Duration
	SQLLog                bool

	HTTPAddr string
}

func loadCommon() (Common, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Common{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Common{}, err
	}

	bleAdapter := strings.TrimSpace(os.Getenv("BLE_ADAPTER"))
	if bleAdapter == "" {
		bleAdapter = "hci0"
	}

	companyIDStr := strings.TrimSpace(os.Getenv("COMPANY_ID"))
	if companyIDStr == "" {
		companyIDStr = "0x0005"
	}
	companyID, err := strconv.ParseUint(companyIDStr, 0, 16)
	if err != nil {
		return Common{}, fmt.Errorf("invalid COMPANY_ID %q: %w", companyIDStr, err)
	}

	return Common{
		AppEnv:     appEnv,
		LogLevel:   level,
		BLEAdapter: bleAdapter,
		CompanyID:  uint16(companyID),
	}, nil
}

func LoadBeaconFromEnv() (Beacon, error) {
	common, err := loadCommon()
	if err != nil {
		return Beacon{}, err
	}

	bme280AddressStr := strings.TrimSpace(os.Getenv("BME280_ADDRESS"))
	if bme280AddressStr == "" {
		bme280AddressStr = "0x76"
	}
	bme280Address, err := strconv.ParseUint(bme280AddressStr, 0, 16)
	if err != nil {
		return Beacon{}, fmt.Errorf("invalid BME280_ADDRESS %q: %w", bme280AddressStr, err)
	}

	sensorDriver := strings.ToLower(strings.TrimSpace(os.Getenv("SENSOR_DRIVER")))
	if sensorDriver == "" {
		sensorDriver = "periph"
	}
	switch sensorDriver {
	case "periph", "tinygo":
	default:
		return Beacon{}, fmt.Errorf("invalid SENSOR_DRIVER %q (allowed: periph, tinygo)", sensorDriver)
	}

	period, err := positiveDuration("BEACON_PERIOD", "100s")
	if err != nil {
		return Beacon{}, err
	}
	settleDelay, err := positiveDuration("SETTLE_DELAY", "50ms")
	if err != nil {
		return Beacon{}, err
	}
	advInterval, err := positiveDuration("ADV_INTERVAL", "100ms")
	if err != nil {
		return Beacon{}, err
	}
	// BLE allows 20ms to 10.24s for advertising intervals.
	if advInterval < 20*time.Millisecond || advInterval > 10240*time.Millisecond {
		return Beacon{}, fmt.Errorf("ADV_INTERVAL must be between 20ms and 10.24s, got %v", advInterval)
	}
	advDuration, err := positiveDuration("ADV_DURATION", "30s")
	if err != nil {
		return Beacon{}, err
	}
	if advDuration > period {
		return Beacon{}, fmt.Errorf("ADV_DURATION (%v) must not exceed BEACON_PERIOD (%v)", advDuration, period)
	}
	if settleDelay >= period {
		return Beacon{}, fmt.Errorf("SETTLE_DELAY (%v) must be shorter than BEACON_PERIOD (%v)", settleDelay, period)
	}

	return Beacon{
		Common:        common,
		BME280Address: uint16(bme280Address),
		I2CBus:        strings.TrimSpace(os.Getenv("I2C_BUS")),
		SensorDriver:  sensorDriver,
		Period:        period,
		SettleDelay:   settleDelay,
		AdvInterval:   advInterval,
		AdvDuration:   advDuration,
		LocalName:     strings.TrimSpace(os.Getenv("BEACON_LOCAL_NAME")),
	}, nil
}

func LoadObserverFromEnv() (Observer, error) {
	common, err := loadCommon()
	if err != nil {
		return Observer{}, err
	}

	mqttEnabled, err := boolEnv("MQTT_ENABLED", true)
	if err != nil {
		return Observer{}, err
	}

	mqttBroker := strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	if mqttBroker == "" {
		mqttBroker = "localhost"
	}

	mqttPortStr := strings.TrimSpace(os.Getenv("MQTT_PORT"))
	if mqttPortStr == "" {
		mqttPortStr = "1883"
	}
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Observer{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}

	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		mqttClientID = "nrf5-observer"
	}

	stationID := strings.TrimSpace(os.Getenv("STATION_ID"))
	if stationID == "" {
		stationID = "beacon"
	}

	sqliteDriver := strings.TrimSpace(os.Getenv("DB_DRIVER"))
	if sqliteDriver == "" {
		sqliteDriver = "sqlite3"
	}
	sqlitePath := strings.TrimSpace(os.Getenv("SQLITE_PATH"))
	if sqlitePath == "" {
		sqlitePath = "data/observer.db"
	}

	maxOpenConnsStr := strings.TrimSpace(os.Getenv("DB_MAX_OPEN_CONNS"))
	if maxOpenConnsStr == "" {
		maxOpenConnsStr = "1"
	}
	maxOpenConns, err := strconv.Atoi(maxOpenConnsStr)
	if err != nil {
		return Observer{}, fmt.Errorf("invalid DB_MAX_OPEN_CONNS %q: %w", maxOpenConnsStr, err)
	}

	maxIdleConnsStr := strings.TrimSpace(os.Getenv("DB_MAX_IDLE_CONNS"))
	if maxIdleConnsStr == "" {
		maxIdleConnsStr = "1"
	}
	maxIdleConns, err := strconv.Atoi(maxIdleConnsStr)
	if err != nil {
		return Observer{}, fmt.Errorf("invalid DB_MAX_IDLE_CONNS %q: %w", maxIdleConnsStr, err)
	}

	connMaxLifetimeStr := strings.TrimSpace(os.Getenv("DB_CONN_MAX_LIFETIME"))
	if connMaxLifetimeStr == "" {
		connMaxLifetimeStr = "0s"
	}
	connMaxLifetime, err := time.ParseDuration(connMaxLifetimeStr)
	if err != nil {
		return Observer{}, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME %q: %w", connMaxLifetimeStr, err)
	}

	sqlLog, err := boolEnv("SQL_LOG", false)
	if err != nil {
		return Observer{}, err
	}

	httpAddr := strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	return Observer{
		Common:                common,
		MQTTEnabled:           mqttEnabled,
		MQTTBroker:            mqttBroker,
		MQTTPort:              mqttPort,
		MQTTClientID:          mqttClientID,
		StationID:             stationID,
		SQLiteDriver:          sqliteDriver,
		SQLitePath:            sqlitePath,
		SQLiteDSN:             strings.TrimSpace(os.Getenv("SQLITE_DSN")),
		SQLiteMaxOpenConns:    maxOpenConns,
		SQLiteMaxIdleConns:    maxIdleConns,
		SQLiteConnMaxLifetime: connMaxLifetime,
		SQLLog:                sqlLog,
		HTTPAddr:              httpAddr,
	}, nil
}

func positiveDuration(key, def string) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		s = def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}

func boolEnv(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
