package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type roomCounter interface {
	Len() int
}

type connectionCounter interface {
	Connections() int
}

type statsResponse struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

type StatsHandler struct {
	logger      *slog.Logger
	rooms       roomCounter
	connections connectionCounter
}

func NewStatsHandler(logger *slog.Logger, rooms roomCounter, connections connectionCounter) *StatsHandler {
	return &StatsHandler{
		logger:      logger.With("component", "stats"),
		rooms:       rooms,
		connections: connections,
	}
}

// ServeHTTP reports the number of active rooms and live connections.
func (that *StatsHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	response := statsResponse{
		Rooms:       that.rooms.Len(),
		Connections: that.connections.Connections(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		that.logger.Error("failed to write stats", "error", err)
	}
}
