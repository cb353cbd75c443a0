//go:build tinygo

// Firmware for an nRF52 (or Pico W) board with a BME280 on the default I2C
// pins. Every 100 seconds it advertises a fresh reading for 30 seconds. It
// never returns; a transport failure takes the beacon off the air and parks
// the CPU.
package main

import (
	"context"
	"log/slog"
	"machine"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/gogela/nrf5-temperature-beacon/internal/beacon"
	"github.com/gogela/nrf5-temperature-beacon/internal/ble"
	"github.com/gogela/nrf5-temperature-beacon/internal/sensor"
)

const (
	period      = beacon.DefaultPeriod
	settleDelay = beacon.DefaultSettleDelay
	advInterval = ble.DefaultInterval
	advDuration = ble.DefaultDuration
)

func main() {
	machine.Serial.Configure(machine.UARTConfig{})
	// Give the host time to enumerate the USB serial device.
	time.Sleep(1500 * time.Millisecond)

	logger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("boot: nrf5 temperature beacon")

	i2c := machine.I2C0
	if err := i2c.Configure(machine.I2CConfig{
		SDA:       machine.SDA_PIN,
		SCL:       machine.SCL_PIN,
		Frequency: 100 * machine.KHz,
	}); err != nil {
		halt(logger, "i2c configure", err)
	}

	dev := sensor.NewBME280(i2c)
	if err := dev.Configure(sensor.Options{Address: sensor.DefaultAddress}); err != nil {
		halt(logger, "sensor configure", err)
	}

	adv, err := ble.NewAdvertiser(bluetooth.DefaultAdapter, ble.AdvertiserOptions{
		Interval: advInterval,
		Duration: advDuration,
	}, logger)
	if err != nil {
		halt(logger, "ble enable", err)
	}

	b := beacon.NewBroadcaster(dev, adv, logger, beacon.Options{SettleDelay: settleDelay})
	err = b.Run(context.Background(), beacon.NewTrigger(period))
	if serr := b.Shutdown(); serr != nil {
		logger.Error("ble: stop advertising", "error", serr)
	}
	halt(logger, "broadcast", err)
}

func halt(logger *slog.Logger, what string, err error) {
	logger.Error("FATAL: "+what, "error", err)
	for {
		time.Sleep(time.Hour)
	}
}
