package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
)

type roomEvictor interface {
	ListRooms() []string
	EvictIfStale(id string, threshold time.Duration, beforeRemove func(room entity.Room)) (entity.Room, bool)
}

type groupNotifier interface {
	SendToGroup(group string, event entity.Event)
	DropGroup(group string)
}

// ReaperService periodically removes rooms that saw no activity for staleAfter.
type ReaperService struct {
	logger      *slog.Logger
	registry    roomEvictor
	broadcaster groupNotifier

	staleAfter time.Duration
	interval   time.Duration
}

func NewReaperService(logger *slog.Logger, registry roomEvictor, broadcaster groupNotifier, staleAfter, interval time.Duration) *ReaperService {
	return &ReaperService{
		logger:      logger.With("component", "reaper"),
		registry:    registry,
		broadcaster: broadcaster,
		staleAfter:  staleAfter,
		interval:    interval,
	}
}

// Run sweeps every interval until ctx is done.
func (that *ReaperService) Run(ctx context.Context) error {
	log := that.logger.With("method", "Run")
	log.Info("reaper started", "interval", that.interval, "staleAfter", that.staleAfter)

	ticker := time.NewTicker(that.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("reaper stopped")
			return nil
		case <-ticker.C:
			if n := that.Sweep(); n > 0 {
				log.Info("stale rooms evicted", "count", n)
			}
		}
	}
}

// Sweep evicts every stale room once and returns how many were removed.
// Rooms are locked one at a time, occupied ones are told they were abandoned first.
func (that *ReaperService) Sweep() int {
	log := that.logger.With("method", "Sweep")

	evicted := 0
	for _, id := range that.registry.ListRooms() {
		room, ok := that.registry.EvictIfStale(id, that.staleAfter, that.notify)
		if !ok {
			continue
		}

		evicted++

		log.Debug("room evicted", "roomID", id, "status", room.Status, "lastActivity", room.LastActivity)
	}

	return evicted
}

// notify runs while the evicted id is still reserved, so no new room can join the group being dropped.
func (that *ReaperService) notify(room entity.Room) {
	if room.HumanSeats() > 0 {
		that.broadcaster.SendToGroup(room.ID, entity.RoomAbandonedEvent(room.ID))
	}

	that.broadcaster.DropGroup(room.ID)
}
