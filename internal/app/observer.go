package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gogela/nrf5-temperature-beacon/internal/ble"
	"github.com/gogela/nrf5-temperature-beacon/internal/config"
	"github.com/gogela/nrf5-temperature-beacon/internal/db"
	"github.com/gogela/nrf5-temperature-beacon/internal/httpapi"
	"github.com/gogela/nrf5-temperature-beacon/internal/mqtt"
	"github.com/gogela/nrf5-temperature-beacon/internal/observer"
	"github.com/gogela/nrf5-temperature-beacon/internal/payload"
	"github.com/gogela/nrf5-temperature-beacon/internal/store"
	"github.com/gogela/nrf5-temperature-beacon/internal/utils"
)

// scanner is the BLE side of the observer.
type scanner interface {
	Run(ctx context.Context, onMatch func(ble.Match)) error
}

var newScanner = func(opts ble.Options) scanner {
	return ble.NewListener(opts)
}

// RunObserver scans for beacons until ctx is canceled, storing every new
// observation and publishing it to MQTT when enabled. The HTTP API keeps
// serving if the BLE adapter cannot be brought up.
func RunObserver(ctx context.Context, cfg config.Observer, logger *slog.Logger) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	logger.Info("initializing observer",
		"adapter", cfg.BLEAdapter,
		"company_id", "0x"+utils.Hex4(cfg.CompanyID),
		"mqtt_enabled", cfg.MQTTEnabled,
		"sqlite_path", cfg.SQLitePath,
		"http_addr", cfg.HTTPAddr,
	)

	database, err := db.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(database); err != nil {
			logger.Error("close database", "error", err)
		}
	}()

	if err := store.Migrate(ctx, database, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	repo := store.NewRepository(database)

	seed, err := repo.LastSequences(ctx)
	if err != nil {
		return fmt.Errorf("load last sequences: %w", err)
	}

	opts := observer.Options{
		StationID: cfg.StationID,
		Recorder:  repo,
		Tracker:   observer.NewTracker(seed),
		Logger:    logger,
	}

	if cfg.MQTTEnabled {
		client := mqtt.NewClient(mqtt.Options{
			Broker:   cfg.MQTTBroker,
			Port:     cfg.MQTTPort,
			ClientID: cfg.MQTTClientID,
		}, logger)
		defer client.Disconnect()

		go func() {
			if err := client.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("mqtt connect failed", "error", err)
			}
		}()
		opts.Publisher = client
	}
	handler := observer.NewHandler(opts)

	srv := httpapi.NewServer(cfg.HTTPAddr, httpapi.NewMux(database, repo), logger)
	srvErr := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	listener := newScanner(ble.Options{
		Adapter: cfg.BLEAdapter,
		Filter: ble.Filter{
			CompanyID:  cfg.CompanyID,
			MinDataLen: payload.Len,
		},
	})
	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		err := listener.Run(ctx, func(m ble.Match) {
			_, _ = handler.Handle(ctx, m)
		})
		if err != nil {
			logger.Warn("ble listener could not be initialized; observer continues without BLE", "error", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-srvErr:
		if ok {
			runErr = fmt.Errorf("http: %w", err)
		}
	}

	logger.Info("observer shutting down")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	// The database is closed on return; no match may be handled after that.
	select {
	case <-listenerDone:
	case <-shutdownCtx.Done():
		logger.Error("ble listener did not stop in time")
	}
	return runErr
}
