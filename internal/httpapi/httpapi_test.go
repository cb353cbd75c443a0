package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gogela/nrf5-temperature-beacon/internal/payload"
	"github.com/gogela/nrf5-temperature-beacon/internal/store"
)

func setupDB(t *testing.T) (*sql.DB, store.Repository) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	if err := store.Migrate(context.Background(), db, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db, store.NewRepository(db)
}

type mockRepo struct {
	store.Repository
	err error
}

func (m *mockRepo) Beacons(context.Context) ([]store.Beacon, error) { return nil, m.err }

func (m *mockRepo) LatestObservations(context.Context, string, int) ([]store.Observation, error) {
	return nil, m.err
}

func TestHealthz(t *testing.T) {
	db, repo := setupDB(t)
	mux := NewMux(db, repo)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"status":"ok"}` {
		t.Errorf("body = %s", body)
	}

	_ = db.Close()
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("closed db status = %d; want 500", rec.Code)
	}
}

func TestBeaconsAndObservations(t *testing.T) {
	db, repo := setupDB(t)
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		p := payload.Encode(uint8(i), 2550, 101325)
		err := repo.InsertObservation(ctx, store.Observation{
			Address:     "C0:FF:EE:00:00:01",
			CompanyID:   payload.DefaultCompanyID,
			Time:        t0.Add(time.Duration(i) * 100 * time.Second),
			Sequence:    uint8(i),
			Temperature: 2550,
			Pressure:    101325,
			RSSI:        -64,
			Raw:         p[:],
		})
		if err != nil {
			t.Fatalf("InsertObservation: %v", err)
		}
	}
	mux := NewMux(db, repo)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/beacons", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /beacons status = %d; body %s", rec.Code, rec.Body)
	}
	var beacons []store.Beacon
	if err := json.NewDecoder(rec.Body).Decode(&beacons); err != nil {
		t.Fatalf("decode beacons: %v", err)
	}
	if len(beacons) != 1 || beacons[0].LastSequence != 2 || beacons[0].Observations != 3 {
		t.Fatalf("beacons = %+v", beacons)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/beacons/C0:FF:EE:00:00:01/observations?limit=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET observations status = %d; body %s", rec.Code, rec.Body)
	}
	var obs []observationView
	if err := json.NewDecoder(rec.Body).Decode(&obs); err != nil {
		t.Fatalf("decode observations: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("got %d observations; want 2", len(obs))
	}
	if obs[0].Sequence != 2 || obs[0].TemperatureC != 25.5 || obs[0].PressureHpa != 1013.25 {
		t.Errorf("newest = %+v", obs[0])
	}
	if obs[0].Payload != "0209F600018BCD0000" {
		t.Errorf("payload = %s", obs[0].Payload)
	}
}

func TestObservations_EmptyListForUnknownBeacon(t *testing.T) {
	db, repo := setupDB(t)
	rec := httptest.NewRecorder()
	NewMux(db, repo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/beacons/unknown/observations", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %s; want []", body)
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{query: "", want: 50},
		{query: "limit=1", want: 1},
		{query: "limit=500", want: 500},
		{query: "limit=501", wantErr: true},
		{query: "limit=0", wantErr: true},
		{query: "limit=-3", wantErr: true},
		{query: "limit=ten", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/beacons/x/observations?"+tt.query, nil)
			got, err := parseLimit(r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLimit(%q) error = %v; wantErr %v", tt.query, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseLimit(%q) = %d; want %d", tt.query, got, tt.want)
			}
		})
	}
}

func TestBeaconHandlers_RepositoryErrors(t *testing.T) {
	db, _ := setupDB(t)
	mux := NewMux(db, &mockRepo{err: errors.New("disk I/O error")})

	for _, path := range []string{"/beacons", "/beacons/C0:FF:EE:00:00:01/observations", "/beacons/x/observations?limit=bad"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		want := http.StatusInternalServerError
		if strings.Contains(path, "limit=bad") {
			want = http.StatusBadRequest
		}
		if rec.Code != want {
			t.Errorf("GET %s status = %d; want %d", path, rec.Code, want)
		}
		if strings.Contains(rec.Body.String(), "disk I/O") {
			t.Errorf("GET %s leaks repository error: %s", path, rec.Body)
		}
	}
}
