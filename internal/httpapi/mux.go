package httpapi

import (
	"database/sql"
	"net/http"

	"github.com/gogela/nrf5-temperature-beacon/internal/store"
)

func NewMux(db *sql.DB, repo store.Repository) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db)
	registerBeacons(mux, repo)
	return mux
}
