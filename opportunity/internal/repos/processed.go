package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProcessedEventsRepo struct {
	pool *pgxpool.Pool
}

func NewProcessedEventsRepo(pool *pgxpool.Pool) *ProcessedEventsRepo {
	return &ProcessedEventsRepo{pool: pool}
}

// MarkProcessed reports whether this is the first delivery of the event to
// the group; replays hit the conflict clause and return false.
func (r *ProcessedEventsRepo) MarkProcessed(ctx context.Context, consumerGroup string, eventID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO processed_events (consumer_group, event_id, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (consumer_group, event_id) DO NOTHING
	`, consumerGroup, eventID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
