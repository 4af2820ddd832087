package rest

import (
	"log/slog"
	"net/http"
)

// NewRouter serves the health and stats endpoints and mounts ws on /ws.
func NewRouter(logger *slog.Logger, ws http.Handler, rooms roomCounter, connections connectionCounter) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ping", Ping)
	mux.Handle("GET /stats", NewStatsHandler(logger, rooms, connections))
	mux.Handle("/ws", ws)

	return mux
}
