package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"

	"github.com/gogela/nrf5-temperature-beacon/internal/ble"
	"github.com/gogela/nrf5-temperature-beacon/internal/config"
	"github.com/gogela/nrf5-temperature-beacon/internal/db"
	"github.com/gogela/nrf5-temperature-beacon/internal/observer"
	"github.com/gogela/nrf5-temperature-beacon/internal/payload"
	"github.com/gogela/nrf5-temperature-beacon/internal/store"
	"github.com/gogela/nrf5-temperature-beacon/internal/utils"
)

// CLI is the root command structure for beacontool.
type CLI struct {
	Verbose bool             `short:"v" help:"Enable debug logging"`
	Version kong.VersionFlag `help:"Print version and exit"`

	Decode  DecodeCmd  `cmd:"" help:"Decode a 9-byte payload or a full advertising frame given in hex"`
	Encode  EncodeCmd  `cmd:"" help:"Build the advertising frame for a reading"`
	Scan    ScanCmd    `cmd:"" help:"Print beacon readings as they are received"`
	Migrate MigrateCmd `cmd:"" help:"Apply pending observer database migrations"`
}

// --- Decode ---

type DecodeCmd struct {
	Hex string `arg:"" help:"Payload or frame bytes, e.g. 0709F600018BCD0000"`
}

func (c *DecodeCmd) Run(globals *CLI, out io.Writer) error {
	data, err := utils.ParseHex(c.Hex)
	if err != nil {
		return err
	}

	if len(data) == payload.Len {
		r, err := payload.Decode(data)
		if err != nil {
			return err
		}
		printReading(out, r)
		return nil
	}

	adv, err := payload.ManufacturerData(data)
	if err != nil {
		return fmt.Errorf("neither a %d-byte payload nor an advertising frame: %w", payload.Len, err)
	}
	r, err := payload.Decode(adv.Data)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "company:     0x%s\n", utils.Hex4(adv.CompanyID))
	if adv.LocalName != "" {
		fmt.Fprintf(out, "name:        %s\n", adv.LocalName)
	}
	printReading(out, r)
	return nil
}

func printReading(out io.Writer, r payload.Reading) {
	fmt.Fprintf(out, "sequence:    %d\n", r.Sequence)
	fmt.Fprintf(out, "temperature: %.2f °C (%d)\n", r.Celsius(), r.Temperature)
	fmt.Fprintf(out, "pressure:    %d Pa (%.2f hPa)\n", r.Pressure, r.HectoPascal())
}

// --- Encode ---

type EncodeCmd struct {
	Seq         uint8   `help:"Sequence byte" default:"0"`
	Temperature float64 `required:"" help:"Temperature in °C, two decimals are kept"`
	Pressure    int32   `required:"" help:"Pressure in Pa"`
	CompanyID   string  `name:"company-id" help:"Bluetooth SIG company identifier" default:"0x0005"`
	Name        string  `help:"Optional complete local name"`
}

func (c *EncodeCmd) Run(globals *CLI, out io.Writer) error {
	companyID, err := strconv.ParseUint(c.CompanyID, 0, 16)
	if err != nil {
		return fmt.Errorf("invalid company id %q: %w", c.CompanyID, err)
	}
	centi := math.Round(c.Temperature * 100)
	if centi < math.MinInt16 || centi > math.MaxInt16 {
		return fmt.Errorf("temperature %.2f °C does not fit the payload (%.2f to %.2f)",
			c.Temperature, float64(math.MinInt16)/100, float64(math.MaxInt16)/100)
	}

	p := payload.Encode(c.Seq, int16(centi), c.Pressure)
	frame, err := payload.EncodeFrame(payload.Advertisement{
		LocalName: c.Name,
		CompanyID: uint16(companyID),
		Data:      p[:],
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "payload: %s\n", utils.BytesToHex(p[:]))
	fmt.Fprintf(out, "frame:   %s (%d bytes)\n", utils.BytesToHex(frame), len(frame))
	return nil
}

// --- Scan ---

type ScanCmd struct {
	Adapter   string        `help:"HCI adapter" default:"hci0"`
	CompanyID string        `name:"company-id" help:"Only show this company identifier" default:"0x0005"`
	Timeout   time.Duration `help:"Stop after this long (0 scans until interrupted)" default:"0"`
}

func (c *ScanCmd) Run(globals *CLI, out io.Writer) error {
	companyID, err := strconv.ParseUint(c.CompanyID, 0, 16)
	if err != nil {
		return fmt.Errorf("invalid company id %q: %w", c.CompanyID, err)
	}

	level := slog.LevelWarn
	if globals.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.Kitchen})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	listener := ble.NewListener(ble.Options{
		Adapter: c.Adapter,
		Filter:  ble.Filter{CompanyID: uint16(companyID), MinDataLen: payload.Len},
	})
	printer := newScanPrinter(out)
	return listener.Run(ctx, printer.print)
}

// scanPrinter prints each new sequence once per beacon.
type scanPrinter struct {
	out     io.Writer
	handler *observer.Handler
}

func newScanPrinter(out io.Writer) *scanPrinter {
	return &scanPrinter{
		out:     out,
		handler: observer.NewHandler(observer.Options{Logger: slog.New(slog.DiscardHandler)}),
	}
}

func (p *scanPrinter) print(m ble.Match) {
	o, err := p.handler.Handle(context.Background(), m)
	if errors.Is(err, observer.ErrDuplicate) || o.Address == "" {
		return
	}
	r := payload.Reading{Sequence: o.Sequence, Temperature: o.Temperature, Pressure: o.Pressure}
	line := fmt.Sprintf("%s  %s  seq=%-3d  %6.2f °C  %7.2f hPa  rssi=%d",
		o.Time.Format(time.TimeOnly), o.Address, o.Sequence, r.Celsius(), r.HectoPascal(), o.RSSI)
	if o.Missed > 0 {
		line += fmt.Sprintf("  missed=%d", o.Missed)
	}
	fmt.Fprintln(p.out, strings.TrimRight(line, " "))
}

// --- Migrate ---

type MigrateCmd struct {
	SQLitePath string `name:"sqlite-path" env:"SQLITE_PATH" help:"Observer database file" default:"data/observer.db"`
}

func (c *MigrateCmd) Run(globals *CLI, out io.Writer) error {
	level := slog.LevelInfo
	if globals.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.Kitchen}))

	database, err := db.Open(config.Observer{
		SQLiteDriver:       "sqlite3",
		SQLitePath:         c.SQLitePath,
		SQLiteMaxOpenConns: 1,
		SQLiteMaxIdleConns: 1,
		SQLLog:             globals.Verbose,
	}, logger)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(database) }()

	if err := store.Migrate(context.Background(), database, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintln(out, "migrations applied")
	return nil
}
