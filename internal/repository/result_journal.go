package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
)

type ResultJournal interface {
	Record(ctx context.Context, summary entity.RoomSummary) error
	Recent(ctx context.Context, n int64) ([]entity.RoomSummary, error)
}

type dbResultJournal struct {
	client *redis.Client
	key    string
	limit  int64
}

// NewResultJournal keeps the last limit room summaries in the redis list key, newest last.
func NewResultJournal(client *redis.Client, key string, limit int64) ResultJournal {
	return &dbResultJournal{
		client: client,
		key:    key,
		limit:  limit,
	}
}

func (that *dbResultJournal) Record(ctx context.Context, summary entity.RoomSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("could not marshal room summary: %w", err)
	}

	_, err = that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, that.key, summaryJSON)
		pipe.LTrim(ctx, that.key, -that.limit, -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record room summary: %w", err)
	}

	return nil
}

// Recent returns up to n of the newest summaries, oldest first.
func (that *dbResultJournal) Recent(ctx context.Context, n int64) ([]entity.RoomSummary, error) {
	if n <= 0 {
		return nil, nil
	}

	response, err := that.client.LRange(ctx, that.key, -n, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read room summaries: %w", err)
	}

	summaries := make([]entity.RoomSummary, 0, len(response))
	for _, raw := range response {
		var summary entity.RoomSummary
		if err = json.Unmarshal([]byte(raw), &summary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal room summary: %w", err)
		}

		summaries = append(summaries, summary)
	}

	return summaries, nil
}
