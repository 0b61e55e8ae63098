package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// EngagementReader counts likes from a per-post sorted set where each member
// is a like event scored by its unix-millisecond timestamp:
//
//	ZADD post:{postID}:likes {unixMilli} {userID}
//
// A window count is then a single ZCOUNT with an exclusive upper bound,
// matching the engine's half-open [from, to) windows.
type EngagementReader struct {
	client *redis.Client
}

func NewEngagementReader(client *redis.Client) *EngagementReader {
	return &EngagementReader{client: client}
}

func (r *EngagementReader) CountInWindow(ctx context.Context, postID string, from, to time.Time) (int, error) {
	min := strconv.FormatInt(from.UnixMilli(), 10)
	max := "(" + strconv.FormatInt(to.UnixMilli(), 10)
	n, err := r.client.ZCount(ctx, r.key(postID), min, max).Result()
	if err != nil {
		return 0, fmt.Errorf("zcount %s: %w", postID, err)
	}
	return int(n), nil
}

// RecordLike appends a like event. The engine itself never writes likes; this
// exists for the surrounding application, demos, and tests.
func (r *EngagementReader) RecordLike(ctx context.Context, postID, userID string, at time.Time) error {
	return r.client.ZAdd(ctx, r.key(postID), redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: userID,
	}).Err()
}

func (r *EngagementReader) key(postID string) string {
	return "post:" + postID + ":likes"
}
