package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
)

// LikeCounter counts like events straight from Postgres. It backs the cached
// engagement reader when no Redis mirror is configured.
type LikeCounter struct {
	pool *pgxpool.Pool
}

func NewLikeCounter(pool *pgxpool.Pool) *LikeCounter {
	return &LikeCounter{pool: pool}
}

func (c *LikeCounter) CountInWindow(ctx context.Context, postID string, from, to time.Time) (int, error) {
	var count int
	err := c.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM like_events WHERE post_id=$1 AND created_at >= $2 AND created_at < $3`,
		postID, from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count likes: %w", err)
	}
	return count, nil
}
