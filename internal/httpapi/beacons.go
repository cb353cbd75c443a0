package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gogela/nrf5-temperature-beacon/internal/payload"
	"github.com/gogela/nrf5-temperature-beacon/internal/store"
	"github.com/gogela/nrf5-temperature-beacon/internal/utils"
)

const (
	defaultObservationLimit = 50
	maxObservationLimit     = 500
)

type beaconController struct {
	repository store.Repository
}

type observationView struct {
	Time         time.Time `json:"time"`
	Sequence     uint8     `json:"sequence"`
	TemperatureC float64   `json:"temperature_c"`
	PressurePa   int32     `json:"pressure_pa"`
	PressureHpa  float64   `json:"pressure_hpa"`
	Missed       int       `json:"missed"`
	RSSI         int16     `json:"rssi"`
	Payload      string    `json:"payload"`
}

func (c *beaconController) handleBeacons(w http.ResponseWriter, r *http.Request) {
	beacons, err := c.repository.Beacons(r.Context())
	if err != nil {
		slog.Error("beacons: query failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load beacons")
		return
	}
	utils.WriteJSON(w, http.StatusOK, beacons)
}

func (c *beaconController) handleObservations(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if address == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing beacon address")
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	obs, err := c.repository.LatestObservations(r.Context(), address, limit)
	if err != nil {
		slog.Error("observations: query failed", "address", address, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load observations")
		return
	}

	out := make([]observationView, 0, len(obs))
	for _, o := range obs {
		reading := payload.Reading{Sequence: o.Sequence, Temperature: o.Temperature, Pressure: o.Pressure}
		out = append(out, observationView{
			Time:         o.Time,
			Sequence:     o.Sequence,
			TemperatureC: reading.Celsius(),
			PressurePa:   o.Pressure,
			PressureHpa:  reading.HectoPascal(),
			Missed:       o.Missed,
			RSSI:         o.RSSI,
			Payload:      utils.BytesToHex(o.Raw),
		})
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

func parseLimit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultObservationLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid 'limit' (expected integer)")
	}
	if n <= 0 {
		return 0, errors.New("'limit' must be > 0")
	}
	if n > maxObservationLimit {
		return 0, errors.New("'limit' must be <= 500")
	}
	return n, nil
}

func registerBeacons(mux *http.ServeMux, repo store.Repository) {
	c := &beaconController{repository: repo}
	mux.HandleFunc("GET /beacons", c.handleBeacons)
	mux.HandleFunc("GET /beacons/{address}/observations", c.handleObservations)
}
