// Package store keeps beacon observations in sqlite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"
)

//go:embed sql/upsert-beacon.sql
var upsertBeaconSQL string

//go:embed sql/insert-observation.sql
var insertObservationSQL string

//go:embed sql/get-beacons.sql
var getBeaconsSQL string

//go:embed sql/get-latest-observations.sql
var getLatestObservationsSQL string

//go:embed sql/get-last-sequences.sql
var getLastSequencesSQL string

// Observation is one accepted (non-duplicate) advertisement.
type Observation struct {
	Address     string    `json:"address"`
	CompanyID   uint16    `json:"-"`
	LocalName   string    `json:"-"`
	Time        time.Time `json:"time"`
	Sequence    uint8     `json:"sequence"`
	Temperature int16     `json:"temperature_centi_c"`
	Pressure    int32     `json:"pressure_pa"`
	Missed      int       `json:"missed"`
	RSSI        int16     `json:"rssi"`
	Raw         []byte    `json:"-"`
}

type Beacon struct {
	Address      string    `json:"address"`
	CompanyID    uint16    `json:"company_id"`
	LocalName    string    `json:"local_name,omitempty"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	LastSequence uint8     `json:"last_sequence"`
	TotalMissed  int       `json:"total_missed"`
	Observations int       `json:"observations"`
}

type Repository interface {
	InsertObservation(ctx context.Context, o Observation) error
	Beacons(ctx context.Context) ([]Beacon, error)
	LatestObservations(ctx context.Context, address string, limit int) ([]Observation, error)
	LastSequences(ctx context.Context) (map[string]uint8, error)
}

// Fixed width keeps text timestamps in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repositoryImpl{db: db}
}

// InsertObservation updates the beacon summary and appends the observation
// in a single transaction.
func (r *repositoryImpl) InsertObservation(ctx context.Context, o Observation) error {
	if o.Address == "" {
		return fmt.Errorf("observation without address")
	}
	ts := o.Time.UTC().Format(timeLayout)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, upsertBeaconSQL,
		o.Address, o.CompanyID, o.LocalName, ts, ts, o.Sequence, o.Missed,
	); err != nil {
		return fmt.Errorf("upsert beacon %s: %w", o.Address, err)
	}

	raw := o.Raw
	if raw == nil {
		raw = []byte{}
	}
	if _, err := tx.ExecContext(ctx, insertObservationSQL,
		o.Address, ts, o.Sequence, o.Temperature, o.Pressure, o.Missed, o.RSSI, raw,
	); err != nil {
		return fmt.Errorf("insert observation %s: %w", o.Address, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *repositoryImpl) Beacons(ctx context.Context) ([]Beacon, error) {
	rows, err := r.db.QueryContext(ctx, getBeaconsSQL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close beacons rows", "error", err)
		}
	}()

	out := []Beacon{}
	for rows.Next() {
		var (
			b                   Beacon
			firstSeen, lastSeen string
		)
		if err := rows.Scan(&b.Address, &b.CompanyID, &b.LocalName, &firstSeen, &lastSeen,
			&b.LastSequence, &b.TotalMissed, &b.Observations); err != nil {
			return nil, err
		}
		if b.FirstSeen, err = parseTime(firstSeen); err != nil {
			return nil, err
		}
		if b.LastSeen, err = parseTime(lastSeen); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// LatestObservations returns up to limit observations of one beacon, newest first.
func (r *repositoryImpl) LatestObservations(ctx context.Context, address string, limit int) ([]Observation, error) {
	rows, err := r.db.QueryContext(ctx, getLatestObservationsSQL, address, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close observations rows", "error", err)
		}
	}()
	return scanObservations(rows)
}

// LastSequences returns the last sequence stored per beacon so a restarted
// observer keeps counting missed broadcasts.
func (r *repositoryImpl) LastSequences(ctx context.Context) (map[string]uint8, error) {
	rows, err := r.db.QueryContext(ctx, getLastSequencesSQL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close sequence rows", "error", err)
		}
	}()

	out := make(map[string]uint8)
	for rows.Next() {
		var (
			addr string
			seq  uint8
		)
		if err := rows.Scan(&addr, &seq); err != nil {
			return nil, err
		}
		out[addr] = seq
	}
	return out, rows.Err()
}

func scanObservations(rows *sql.Rows) ([]Observation, error) {
	out := []Observation{}
	for rows.Next() {
		var (
			o  Observation
			ts string
		)
		if err := rows.Scan(&o.Address, &ts, &o.Sequence, &o.Temperature, &o.Pressure,
			&o.Missed, &o.RSSI, &o.Raw); err != nil {
			return nil, err
		}
		t, err := parseTime(ts)
		if err != nil {
			return nil, err
		}
		o.Time = t
		out = append(out, o)
	}
	return out, rows.Err()
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t2, err2 := time.Parse(time.RFC3339, s)
		if err2 != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: RFC3339Nano: %w; RFC3339: %w", s, err, err2)
		}
		return t2, nil
	}
	return t, nil
}
